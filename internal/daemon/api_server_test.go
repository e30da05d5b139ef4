package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"waveq/internal/api"
	"waveq/internal/event"
	"waveq/internal/fileutil"
	"waveq/internal/request"
	"waveq/internal/testsupport"
)

type stubQueue struct {
	mu   sync.Mutex
	jobs []event.JobPayload
}

func (q *stubQueue) Enqueue(_ context.Context, job event.JobPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func newTestServer(t *testing.T, token string) (*httptest.Server, *request.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.APIToken = token
	if err := fileutil.EnsureDir(cfg.UploadDir); err != nil {
		t.Fatalf("ensure upload dir: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	svc := api.NewService(store, &stubQueue{}, nil)
	srv := newAPIServer(cfg, svc, nil)
	if srv == nil {
		t.Fatal("api server not constructed")
	}
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)
	return ts, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestEditEndpointSubmitsRequest(t *testing.T) {
	ts, store := newTestServer(t, "")

	resp := postJSON(t, ts.URL+"/api/audio/edit", map[string]any{
		"file_path": "/uploads/song.wav",
		"operations": []map[string]any{
			{"operation": "fade-in", "parameters": map[string]any{"duration": 2.0}},
			{"operation": "trim", "parameters": map[string]any{"start_time": 0.0, "end_time": 5.0}},
		},
		"client_id": "client-a",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	id, _ := body["request_id"].(string)
	if id == "" {
		t.Fatalf("no request id in response: %#v", body)
	}
	ops, _ := body["operations"].([]any)
	if len(ops) != 2 || ops[0] != "trim" || ops[1] != "fade-in" {
		t.Fatalf("operations not in execution order: %#v", ops)
	}

	req, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("request not stored: %v", err)
	}
	if req.ClientID != "client-a" {
		t.Fatalf("client id lost: %q", req.ClientID)
	}
}

func TestNaturalEndpointReportsConfidence(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := postJSON(t, ts.URL+"/api/audio/natural", map[string]any{
		"file_path": "/uploads/song.wav",
		"text":      "normalize to -18 dB",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if conf, _ := body["confidence"].(float64); conf != 1.0 {
		t.Fatalf("unexpected confidence: %#v", body["confidence"])
	}
}

func TestNaturalEndpointUnresolvedText(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := postJSON(t, ts.URL+"/api/audio/natural", map[string]any{
		"file_path": "/uploads/song.wav",
		"text":      "paint the walls blue",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEditEndpointValidation(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := postJSON(t, ts.URL+"/api/audio/edit", map[string]any{
		"operations": []map[string]any{{"operation": "trim"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestStatusAndCancelEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := postJSON(t, ts.URL+"/api/audio/edit", map[string]any{
		"file_path":  "/uploads/song.wav",
		"operations": []map[string]any{{"operation": "normalize"}},
	})
	id := decodeBody(t, resp)["request_id"].(string)

	statusResp, err := http.Get(ts.URL + "/api/audio/status/" + id)
	if err != nil {
		t.Fatalf("GET status failed: %v", err)
	}
	if statusResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", statusResp.StatusCode)
	}
	if got := decodeBody(t, statusResp)["status"]; got != "submitted" {
		t.Fatalf("unexpected request status: %v", got)
	}

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/audio/requests/"+id, nil)
	if err != nil {
		t.Fatalf("build DELETE: %v", err)
	}
	cancelResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	if cancelResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected cancel status: %d", cancelResp.StatusCode)
	}
	if got := decodeBody(t, cancelResp)["status"]; got != "cancelled" {
		t.Fatalf("unexpected request status: %v", got)
	}

	// A second cancel conflicts with the terminal state.
	again, err := http.DefaultClient.Do(req.Clone(context.Background()))
	if err != nil {
		t.Fatalf("second DELETE failed: %v", err)
	}
	if again.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", again.StatusCode)
	}
	again.Body.Close()
}

func TestUnknownRequestIs404(t *testing.T) {
	ts, _ := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/api/audio/status/no-such-id")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDownloadNotReadyConflicts(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := postJSON(t, ts.URL+"/api/audio/edit", map[string]any{
		"file_path":  "/uploads/song.wav",
		"operations": []map[string]any{{"operation": "normalize"}},
	})
	id := decodeBody(t, resp)["request_id"].(string)

	dl, err := http.Get(ts.URL + "/api/audio/download/" + id)
	if err != nil {
		t.Fatalf("GET download failed: %v", err)
	}
	if dl.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", dl.StatusCode)
	}
	dl.Body.Close()
}

func TestOperationsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/api/audio/operations")
	if err != nil {
		t.Fatalf("GET operations failed: %v", err)
	}
	body := decodeBody(t, resp)
	ops, _ := body["operations"].([]any)
	if len(ops) != 14 {
		t.Fatalf("expected 14 operations, got %d", len(ops))
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET health failed: %v", err)
	}
	body := decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %#v", body)
	}
}

func TestBearerTokenRequired(t *testing.T) {
	ts, _ := newTestServer(t, "sekrit")

	resp, err := http.Get(ts.URL + "/api/audio/operations")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	wrong, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/audio/operations", nil)
	wrong.Header.Set("Authorization", "Bearer sekrit2")
	denied, err := http.DefaultClient.Do(wrong)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if denied.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", denied.StatusCode)
	}
	denied.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/audio/operations", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized GET failed: %v", err)
	}
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authed.StatusCode)
	}
	authed.Body.Close()

	// Health stays open without a token.
	health, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET health failed: %v", err)
	}
	if health.StatusCode != http.StatusOK {
		t.Fatalf("expected open health endpoint, got %d", health.StatusCode)
	}
	health.Body.Close()
}

func TestListEndpointFilters(t *testing.T) {
	ts, _ := newTestServer(t, "")

	for i := 0; i < 3; i++ {
		client := "client-a"
		if i == 2 {
			client = "client-b"
		}
		resp := postJSON(t, ts.URL+"/api/audio/edit", map[string]any{
			"file_path":  fmt.Sprintf("/uploads/song-%d.wav", i),
			"operations": []map[string]any{{"operation": "normalize"}},
			"client_id":  client,
		})
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/api/audio/requests?client_id=client-a")
	if err != nil {
		t.Fatalf("GET requests failed: %v", err)
	}
	body := decodeBody(t, resp)
	if total, _ := body["total"].(float64); total != 2 {
		t.Fatalf("expected 2 requests, got %v", body["total"])
	}

	bad, err := http.Get(ts.URL + "/api/audio/requests?status=bogus")
	if err != nil {
		t.Fatalf("GET requests failed: %v", err)
	}
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status filter, got %d", bad.StatusCode)
	}
	bad.Body.Close()
}

func TestMultipartUpload(t *testing.T) {
	ts, store := newTestServer(t, "")

	var buf bytes.Buffer
	boundary := "waveqtestboundary"
	fmt.Fprintf(&buf, "--%s\r\nContent-Disposition: form-data; name=\"audio_file\"; filename=\"song.wav\"\r\nContent-Type: audio/wav\r\n\r\nRIFFdata\r\n", boundary)
	fmt.Fprintf(&buf, "--%s\r\nContent-Disposition: form-data; name=\"operations\"\r\n\r\n[{\"operation\":\"normalize\",\"parameters\":{}}]\r\n", boundary)
	fmt.Fprintf(&buf, "--%s\r\nContent-Disposition: form-data; name=\"client_id\"\r\n\r\nuploader\r\n", boundary)
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	resp, err := http.Post(ts.URL+"/api/audio/edit", "multipart/form-data; boundary="+boundary, &buf)
	if err != nil {
		t.Fatalf("multipart POST failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	id := decodeBody(t, resp)["request_id"].(string)

	req, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("request not stored: %v", err)
	}
	if !strings.HasSuffix(req.AudioRef, "_song.wav") {
		t.Fatalf("upload not stored under request-scoped name: %q", req.AudioRef)
	}
}

func TestMultipartUploadBadOperationsCleansUp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := fileutil.EnsureDir(cfg.UploadDir); err != nil {
		t.Fatalf("ensure upload dir: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	svc := api.NewService(store, &stubQueue{}, nil)
	srv := newAPIServer(cfg, svc, nil)
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)

	var buf bytes.Buffer
	boundary := "waveqtestboundary"
	fmt.Fprintf(&buf, "--%s\r\nContent-Disposition: form-data; name=\"audio_file\"; filename=\"song.wav\"\r\nContent-Type: audio/wav\r\n\r\nRIFFdata\r\n", boundary)
	fmt.Fprintf(&buf, "--%s\r\nContent-Disposition: form-data; name=\"operations\"\r\n\r\nnot json\r\n", boundary)
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	resp, err := http.Post(ts.URL+"/api/audio/edit", "multipart/form-data; boundary="+boundary, &buf)
	if err != nil {
		t.Fatalf("multipart POST failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed operations, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	entries, err := os.ReadDir(cfg.UploadDir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected upload left %d file(s) behind", len(entries))
	}
}
