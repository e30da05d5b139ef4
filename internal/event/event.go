// Package event defines the wire payloads and subject layout shared by the
// dispatcher, the workers, and the status listener. Payloads are JSON and
// every event carries the request id so consumers can route on content as
// well as on subject.
package event

import (
	"fmt"
	"strings"
	"time"

	"waveq/internal/chain"
)

// Subject layout. Jobs flow through a single work-queue subject; status and
// result events fan out on per-request subjects so clients can subscribe
// narrowly while the listener subscribes with the wildcard forms.
const (
	SubjectJobs           = "audio.jobs"
	subjectStatusPrefix   = "audio.status."
	subjectResultsPrefix  = "audio.results."
	SubjectStatusWildcard = "audio.status.*"
	SubjectResultWildcard = "audio.results.*"
)

// StatusSubject returns the per-request status subject.
func StatusSubject(requestID string) string {
	return subjectStatusPrefix + requestID
}

// ResultSubject returns the per-request result subject.
func ResultSubject(requestID string) string {
	return subjectResultsPrefix + requestID
}

// RequestIDFromSubject extracts the request id from a per-request status or
// result subject. It returns an empty string for subjects outside those
// families.
func RequestIDFromSubject(subject string) string {
	if id, ok := strings.CutPrefix(subject, subjectStatusPrefix); ok {
		return id
	}
	if id, ok := strings.CutPrefix(subject, subjectResultsPrefix); ok {
		return id
	}
	return ""
}

// JobPayload is the message enqueued for workers. Operations carry the
// planned chain in execution order.
type JobPayload struct {
	RequestID   string                `json:"request_id"`
	AudioRef    string                `json:"audio_ref"`
	Operations  []chain.OperationSpec `json:"operations"`
	ClientID    string                `json:"client_id,omitempty"`
	Priority    string                `json:"priority,omitempty"`
	Description string                `json:"description,omitempty"`
	Timestamp   time.Time             `json:"timestamp"`
}

// Validate reports whether the payload carries the minimum a worker needs.
func (p *JobPayload) Validate() error {
	if p.RequestID == "" {
		return fmt.Errorf("job payload missing request_id")
	}
	if p.AudioRef == "" {
		return fmt.Errorf("job payload missing audio_ref")
	}
	if len(p.Operations) == 0 {
		return fmt.Errorf("job payload has no operations")
	}
	return nil
}

// StatusEvent reports a lifecycle change for a request. Progress and Message
// are optional; absent fields leave the stored values untouched.
type StatusEvent struct {
	RequestID string   `json:"request_id"`
	Status    string   `json:"status"`
	Progress  *float64 `json:"progress,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// ResultEvent carries the final artifact once a chain completes.
type ResultEvent struct {
	RequestID        string            `json:"request_id"`
	OutputPath       string            `json:"output_path"`
	OperationDetails []OperationDetail `json:"operation_details"`
}

// OperationDetail records one applied step of a chain for the result record.
type OperationDetail struct {
	Operation  string         `json:"operation"`
	Parameters map[string]any `json:"parameters"`
	OutputRef  string         `json:"output_ref"`
}
