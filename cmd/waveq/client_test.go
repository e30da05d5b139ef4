package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSubmitPathRoutesNaturalText(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"request_id": "req-1", "status": "submitted"})
	}))
	defer server.Close()

	cli := newClient(server.URL, "")
	res, err := cli.SubmitPath("/audio/in.wav", nil, "add a fade in", "cli", "normal", "")
	if err != nil {
		t.Fatalf("SubmitPath failed: %v", err)
	}
	if res.RequestID != "req-1" {
		t.Fatalf("unexpected response: %#v", res)
	}
	if gotPath != "/api/audio/natural" {
		t.Fatalf("text submission hit %s", gotPath)
	}
	if gotBody["text"] != "add a fade in" || gotBody["file_path"] != "/audio/in.wav" {
		t.Fatalf("unexpected body: %#v", gotBody)
	}
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"operations": []any{}})
	}))
	defer server.Close()

	cli := newClient(server.URL, "sekrit")
	if _, err := cli.Operations(); err != nil {
		t.Fatalf("Operations failed: %v", err)
	}
	if gotAuth != "Bearer sekrit" {
		t.Fatalf("token not sent: %q", gotAuth)
	}
}

func TestClientSurfacesErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "result not ready: request is processing"})
	}))
	defer server.Close()

	cli := newClient(server.URL, "")
	_, err := cli.Status("req-1")
	if err == nil {
		t.Fatal("expected error")
	}
	want := "result not ready: request is processing (HTTP 409)"
	if err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}
