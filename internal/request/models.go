package request

import (
	"strings"
	"time"

	"waveq/internal/chain"
)

// Status represents the lifecycle state of a request.
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusSubmitted,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// transitions is the full set of permitted status edges. Everything else,
// including any edge out of a terminal status, is rejected.
var transitions = map[Status][]Status{
	StatusSubmitted:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further status transition is permitted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the edge from s to next is permitted.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Request is one audio-edit request tracked through its lifecycle. The chain
// is set at creation and never reordered afterward; result and error are only
// set on terminal statuses.
type Request struct {
	ID        string
	Status    Status
	Chain     chain.Chain
	ClientID  string
	AudioRef  string
	Priority  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Progress  *float64
	Result    map[string]any
	Error     string
}

// Clone returns a deep enough copy for handing across goroutines. Chain
// elements are immutable by contract, so the slice header copy suffices.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Chain = append(chain.Chain(nil), r.Chain...)
	if r.Progress != nil {
		v := *r.Progress
		cp.Progress = &v
	}
	if r.Result != nil {
		cp.Result = make(map[string]any, len(r.Result))
		for k, v := range r.Result {
			cp.Result[k] = v
		}
	}
	return &cp
}

// Fields is a partial update applied with merge semantics: nil members are
// left untouched.
type Fields struct {
	Status   *Status
	Progress *float64
	Result   map[string]any
	Error    *string
}

// HealthSummary aggregates request counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Submitted  int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}
