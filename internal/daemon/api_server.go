package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"waveq/internal/api"
	"waveq/internal/chain"
	"waveq/internal/config"
	"waveq/internal/dispatch"
	"waveq/internal/fileutil"
	"waveq/internal/logging"
	"waveq/internal/request"
)

const maxUploadBytes = 512 << 20

type apiServer struct {
	bind      string
	uploadDir string
	token     string
	logger    *slog.Logger
	service   *api.Service

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, svc *api.Service, logger *slog.Logger) *apiServer {
	if cfg == nil || svc == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:      bind,
		uploadDir: cfg.UploadDir,
		token:     cfg.APIToken,
		logger:    logger,
		service:   svc,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/audio/edit", srv.requireAuth(srv.handleEdit))
	mux.HandleFunc("/api/audio/natural", srv.requireAuth(srv.handleNatural))
	mux.HandleFunc("/api/audio/requests", srv.requireAuth(srv.handleRequests))
	mux.HandleFunc("/api/audio/requests/", srv.requireAuth(srv.handleRequestItem))
	mux.HandleFunc("/api/audio/status/", srv.requireAuth(srv.handleStatus))
	mux.HandleFunc("/api/audio/download/", srv.requireAuth(srv.handleDownload))
	mux.HandleFunc("/api/audio/operations", srv.requireAuth(srv.handleOperations))
	mux.HandleFunc("/api/health", srv.handleHealth)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr reports the bound listen address once started.
func (s *apiServer) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type editRequest struct {
	FilePath    string                `json:"file_path"`
	Operations  []chain.OperationSpec `json:"operations"`
	ClientID    string                `json:"client_id"`
	Priority    string                `json:"priority"`
	Description string                `json:"description"`
}

type naturalRequest struct {
	FilePath    string `json:"file_path"`
	Text        string `json:"text"`
	ClientID    string `json:"client_id"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
}

type submitResponse struct {
	RequestID  string   `json:"request_id"`
	Status     string   `json:"status"`
	Operations []string `json:"operations"`
	Confidence float64  `json:"confidence,omitempty"`
	Message    string   `json:"message"`
	Timestamp  string   `json:"timestamp"`
}

// handleEdit accepts structured submissions. JSON bodies reference a file
// already on disk; multipart bodies carry the upload itself plus an
// operations form field.
func (s *apiServer) handleEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var in api.SubmitInput
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		parsed, err := s.parseUpload(r)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		in = *parsed
	default:
		var body editRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		in = api.SubmitInput{
			AudioRef:    body.FilePath,
			Operations:  body.Operations,
			ClientID:    body.ClientID,
			Priority:    body.Priority,
			Description: body.Description,
		}
	}

	s.submit(w, r, in)
}

// handleNatural accepts natural language submissions.
func (s *apiServer) handleNatural(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body naturalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.submit(w, r, api.SubmitInput{
		AudioRef:    body.FilePath,
		Text:        body.Text,
		ClientID:    body.ClientID,
		Priority:    body.Priority,
		Description: body.Description,
	})
}

func (s *apiServer) submit(w http.ResponseWriter, r *http.Request, in api.SubmitInput) {
	res, err := s.service.Submit(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, submitResponse{
		RequestID:  res.RequestID,
		Status:     string(request.StatusSubmitted),
		Operations: res.Chain.Names(),
		Confidence: res.Confidence,
		Message:    "audio edit request submitted",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

// parseUpload stores the uploaded file under a request-scoped name and
// returns the submission it describes.
func (s *apiServer) parseUpload(r *http.Request) (*api.SubmitInput, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	file, header, err := r.FormFile("audio_file")
	if err != nil {
		return nil, fmt.Errorf("audio_file field is required")
	}
	defer file.Close()

	name := fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(header.Filename))
	dest := filepath.Join(s.uploadDir, name)
	out, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		_ = fileutil.CleanupFile(dest)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	in := &api.SubmitInput{
		AudioRef:    dest,
		Text:        r.FormValue("text"),
		ClientID:    r.FormValue("client_id"),
		Priority:    r.FormValue("priority"),
		Description: r.FormValue("description"),
	}
	if raw := r.FormValue("operations"); raw != "" {
		var ops []chain.OperationSpec
		if err := json.Unmarshal([]byte(raw), &ops); err != nil {
			_ = fileutil.CleanupFile(dest)
			return nil, fmt.Errorf("invalid operations JSON")
		}
		in.Operations = ops
	}
	return in, nil
}

type statusResponse struct {
	RequestID string         `json:"request_id"`
	Status    string         `json:"status"`
	Progress  *float64       `json:"progress,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

func statusPayload(req *request.Request) statusResponse {
	return statusResponse{
		RequestID: req.ID,
		Status:    string(req.Status),
		Progress:  req.Progress,
		Result:    req.Result,
		Error:     req.Error,
		CreatedAt: req.CreatedAt.Format(time.RFC3339),
		UpdatedAt: req.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := pathTail(r.URL.Path, "/api/audio/status/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "request not found")
		return
	}
	req, err := s.service.GetStatus(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusPayload(req))
}

type listResponse struct {
	Requests []statusResponse `json:"requests"`
	Total    int              `json:"total"`
}

func (s *apiServer) handleRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	reqs, err := s.service.List(r.Context(), query.Get("client_id"), query.Get("status"), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]statusResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, statusPayload(req))
	}
	s.writeJSON(w, http.StatusOK, listResponse{Requests: out, Total: len(out)})
}

func (s *apiServer) handleRequestItem(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/audio/requests/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "request not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		req, err := s.service.GetStatus(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, statusPayload(req))
	case http.MethodDelete:
		req, err := s.service.Cancel(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, statusPayload(req))
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := pathTail(r.URL.Path, "/api/audio/download/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "request not found")
		return
	}
	path, err := s.service.Download(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if _, err := os.Stat(path); err != nil {
		s.writeError(w, http.StatusNotFound, "artifact no longer available")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func (s *apiServer) handleOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"operations": s.service.Operations()})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary, err := s.service.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"requests": summary,
	})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, api.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, api.ErrUnresolved):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, request.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "request not found")
	case errors.Is(err, request.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, api.ErrNotReady):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrSubmissionFailed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathTail(path, prefix string) string {
	tail := strings.TrimPrefix(path, prefix)
	if tail == "" || strings.Contains(tail, "/") {
		return ""
	}
	return tail
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}
