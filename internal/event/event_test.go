package event_test

import (
	"encoding/json"
	"testing"
	"time"

	"waveq/internal/chain"
	"waveq/internal/event"
)

func TestSubjectRoundTrip(t *testing.T) {
	cases := []struct {
		subject string
		wantID  string
	}{
		{event.StatusSubject("req-1"), "req-1"},
		{event.ResultSubject("req-2"), "req-2"},
		{"audio.jobs", ""},
		{"other.status.req-3", ""},
	}
	for _, tc := range cases {
		if got := event.RequestIDFromSubject(tc.subject); got != tc.wantID {
			t.Errorf("RequestIDFromSubject(%q) = %q, want %q", tc.subject, got, tc.wantID)
		}
	}
}

func TestJobPayloadValidate(t *testing.T) {
	valid := event.JobPayload{
		RequestID: "req-1",
		AudioRef:  "/tmp/in.wav",
		Operations: []chain.OperationSpec{
			{Name: "trim", Parameters: map[string]any{"start_time": 1.0}},
		},
		Timestamp: time.Now().UTC(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	missing := valid
	missing.Operations = nil
	if err := missing.Validate(); err == nil {
		t.Fatal("payload without operations accepted")
	}
	missing = valid
	missing.RequestID = ""
	if err := missing.Validate(); err == nil {
		t.Fatal("payload without request id accepted")
	}
}

func TestJobPayloadJSONKeys(t *testing.T) {
	payload := event.JobPayload{
		RequestID: "req-1",
		AudioRef:  "in.wav",
		Operations: []chain.OperationSpec{
			{Name: "normalize", Parameters: map[string]any{"target_db": -20.0}},
		},
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"request_id", "audio_ref", "operations", "timestamp"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("payload missing %q key", key)
		}
	}
	ops := decoded["operations"].([]any)
	first := ops[0].(map[string]any)
	if first["operation"] != "normalize" {
		t.Fatalf("operation key mismatch: %#v", first)
	}
}

func TestStatusEventOptionalFields(t *testing.T) {
	raw := []byte(`{"request_id":"req-1","status":"processing"}`)
	var ev event.StatusEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if ev.Progress != nil {
		t.Fatal("absent progress decoded as present")
	}

	raw = []byte(`{"request_id":"req-1","status":"processing","progress":0.0}`)
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if ev.Progress == nil || *ev.Progress != 0.0 {
		t.Fatal("explicit zero progress lost")
	}
}
