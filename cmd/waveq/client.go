package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// client talks to the daemon's HTTP API.
type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient(base, token string) *client {
	return &client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 5 * time.Minute},
	}
}

type submitResponse struct {
	RequestID  string   `json:"request_id"`
	Status     string   `json:"status"`
	Operations []string `json:"operations"`
	Confidence float64  `json:"confidence"`
	Message    string   `json:"message"`
}

type statusResponse struct {
	RequestID string         `json:"request_id"`
	Status    string         `json:"status"`
	Progress  *float64       `json:"progress"`
	Result    map[string]any `json:"result"`
	Error     string         `json:"error"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

type listResponse struct {
	Requests []statusResponse `json:"requests"`
	Total    int              `json:"total"`
}

type operationInfo struct {
	Name        string         `json:"name"`
	Aliases     []string       `json:"aliases"`
	Description string         `json:"description"`
	Defaults    map[string]any `json:"defaults"`
}

type operationsResponse struct {
	Operations []operationInfo `json:"operations"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Requests struct {
		Total      int `json:"total"`
		Submitted  int `json:"submitted"`
		Processing int `json:"processing"`
		Completed  int `json:"completed"`
		Failed     int `json:"failed"`
		Cancelled  int `json:"cancelled"`
	} `json:"requests"`
}

// SubmitUpload streams the audio file and submission fields as a multipart
// request. text and operationsJSON are mutually exclusive.
func (c *client) SubmitUpload(path, operationsJSON, text, clientID, priority, description string) (*submitResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio_file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	fields := map[string]string{
		"operations":  operationsJSON,
		"text":        text,
		"client_id":   clientID,
		"priority":    priority,
		"description": description,
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	var out submitResponse
	if err := c.do(http.MethodPost, "/api/audio/edit", writer.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitPath submits a request for a file already visible to the daemon.
func (c *client) SubmitPath(path string, operations []map[string]any, text, clientID, priority, description string) (*submitResponse, error) {
	endpoint := "/api/audio/edit"
	payload := map[string]any{
		"file_path":   path,
		"client_id":   clientID,
		"priority":    priority,
		"description": description,
	}
	if text != "" {
		endpoint = "/api/audio/natural"
		payload["text"] = text
	} else {
		payload["operations"] = operations
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out submitResponse
	if err := c.do(http.MethodPost, endpoint, "application/json", bytes.NewReader(data), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Status(id string) (*statusResponse, error) {
	var out statusResponse
	if err := c.do(http.MethodGet, "/api/audio/status/"+url.PathEscape(id), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) List(clientID, status string, limit int) (*listResponse, error) {
	query := url.Values{}
	if clientID != "" {
		query.Set("client_id", clientID)
	}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	endpoint := "/api/audio/requests"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var out listResponse
	if err := c.do(http.MethodGet, endpoint, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Cancel(id string) (*statusResponse, error) {
	var out statusResponse
	if err := c.do(http.MethodDelete, "/api/audio/requests/"+url.PathEscape(id), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download fetches the completed artifact into dest and returns the path
// written.
func (c *client) Download(id, dest string) (string, error) {
	req, err := c.newRequest(http.MethodGet, "/api/audio/download/"+url.PathEscape(id), "", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	if dest == "" {
		dest = id + ".out"
		if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
			if idx := strings.Index(disposition, "filename="); idx >= 0 {
				dest = strings.Trim(disposition[idx+len("filename="):], `"`)
			}
		}
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	return dest, out.Close()
}

func (c *client) Operations() ([]operationInfo, error) {
	var out operationsResponse
	if err := c.do(http.MethodGet, "/api/audio/operations", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Operations, nil
}

func (c *client) Health() (*healthResponse, error) {
	var out healthResponse
	if err := c.do(http.MethodGet, "/api/health", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) newRequest(method, endpoint, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, c.base+endpoint, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *client) do(method, endpoint, contentType string, body io.Reader, out any) error {
	req, err := c.newRequest(method, endpoint, contentType, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("daemon returned HTTP %d", resp.StatusCode)
}
