// Package api is the request-facing service layer: it validates submissions,
// resolves natural language into operation chains, and hands accepted work
// to the dispatcher. HTTP handlers in the daemon stay thin by delegating
// here.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"waveq/internal/catalog"
	"waveq/internal/chain"
	"waveq/internal/dispatch"
	"waveq/internal/event"
	"waveq/internal/logging"
	"waveq/internal/request"
	"waveq/internal/resolver"
)

// Service coordinates submissions against the store and the job queue.
type Service struct {
	store  *request.Store
	queue  dispatch.Enqueuer
	logger *slog.Logger
}

// NewService builds the service.
func NewService(store *request.Store, queue dispatch.Enqueuer, logger *slog.Logger) *Service {
	return &Service{store: store, queue: queue, logger: logging.NewComponentLogger(logger, "api")}
}

// SubmitInput is one submission. Either Text or Operations must be set;
// Operations wins when both are present.
type SubmitInput struct {
	Text        string
	Operations  []chain.OperationSpec
	AudioRef    string
	ClientID    string
	Priority    string
	Description string
}

// SubmitResult reports the accepted request and, for natural language
// submissions, how confidently the text was resolved.
type SubmitResult struct {
	RequestID  string
	Chain      chain.Chain
	Confidence float64
	Candidates []resolver.Candidate
}

// Submit validates the input, plans the operation chain, records the
// request, and enqueues the job. No request record survives a failed
// enqueue.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if in.AudioRef == "" {
		return nil, fmt.Errorf("%w: audio reference is required", ErrValidation)
	}
	if len(in.Operations) == 0 && in.Text == "" {
		return nil, fmt.Errorf("%w: either operations or text is required", ErrValidation)
	}

	result := &SubmitResult{}
	var ops []chain.OperationSpec
	switch {
	case len(in.Operations) > 0:
		for _, op := range in.Operations {
			if !catalog.Known(op.Name) {
				return nil, fmt.Errorf("%w: unknown operation %q", ErrValidation, op.Name)
			}
		}
		ops = in.Operations
	default:
		resolved := resolver.Resolve(in.Text)
		if len(resolved.Candidates) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnresolved, in.Text)
		}
		result.Confidence = resolved.OverallConfidence
		result.Candidates = resolved.Candidates
		ops = make([]chain.OperationSpec, 0, len(resolved.Candidates))
		for _, c := range resolved.Candidates {
			ops = append(ops, chain.OperationSpec{Name: c.Operation, Parameters: c.Parameters})
		}
	}

	planned := chain.Plan(ops)
	id := uuid.NewString()

	if _, err := s.store.Create(ctx, id, planned, in.ClientID, in.AudioRef, in.Priority); err != nil {
		return nil, fmt.Errorf("record request: %w", err)
	}

	job := event.JobPayload{
		RequestID:   id,
		AudioRef:    in.AudioRef,
		Operations:  planned,
		ClientID:    in.ClientID,
		Priority:    in.Priority,
		Description: in.Description,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		if _, removeErr := s.store.Remove(ctx, id); removeErr != nil {
			s.logger.Warn("orphaned request after enqueue failure",
				logging.String(logging.FieldRequestID, id),
				logging.Error(removeErr))
		}
		return nil, err
	}

	s.logger.Info("request submitted",
		logging.String(logging.FieldRequestID, id),
		logging.Int("operations", len(planned)),
		logging.String("client_id", in.ClientID))

	result.RequestID = id
	result.Chain = planned
	return result, nil
}

// GetStatus returns the current request record.
func (s *Service) GetStatus(ctx context.Context, id string) (*request.Request, error) {
	return s.store.Get(ctx, id)
}

// List returns recent requests, optionally filtered.
func (s *Service) List(ctx context.Context, clientID, statusFilter string, limit int) ([]*request.Request, error) {
	var status request.Status
	if statusFilter != "" {
		parsed, ok := request.ParseStatus(statusFilter)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, statusFilter)
		}
		status = parsed
	}
	return s.store.List(ctx, clientID, status, limit)
}

// Cancel moves the request to cancelled. Requests already terminal return
// request.ErrInvalidTransition.
func (s *Service) Cancel(ctx context.Context, id string) (*request.Request, error) {
	cancelled := request.StatusCancelled
	req, err := s.store.Update(ctx, id, request.Fields{Status: &cancelled})
	if err != nil {
		return nil, err
	}
	s.logger.Info("request cancelled", logging.String(logging.FieldRequestID, id))
	return req, nil
}

// Download returns the artifact path for a completed request.
func (s *Service) Download(ctx context.Context, id string) (string, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if req.Status != request.StatusCompleted {
		return "", fmt.Errorf("%w: request is %s", ErrNotReady, req.Status)
	}
	path, _ := req.Result["output_path"].(string)
	if path == "" {
		return "", fmt.Errorf("%w: no artifact recorded", request.ErrNotFound)
	}
	return path, nil
}

// OperationInfo describes one catalog operation for clients.
type OperationInfo struct {
	Name        string         `json:"name"`
	Aliases     []string       `json:"aliases"`
	Description string         `json:"description"`
	Defaults    map[string]any `json:"defaults"`
}

// Operations lists every supported operation.
func (s *Service) Operations() []OperationInfo {
	ops := catalog.All()
	infos := make([]OperationInfo, 0, len(ops))
	for _, op := range ops {
		infos = append(infos, OperationInfo{
			Name:        op.Name,
			Aliases:     op.Aliases,
			Description: op.Description,
			Defaults:    catalog.Defaults(op.Name),
		})
	}
	return infos
}

// Health summarizes the store for the health endpoint.
func (s *Service) Health(ctx context.Context) (request.HealthSummary, error) {
	return s.store.Health(ctx)
}
