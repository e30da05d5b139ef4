// Package status folds status and result events back into the request store.
// The listener is the only event-driven writer, so replayed or duplicated
// events converge on the same stored state.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"

	"waveq/internal/event"
	"waveq/internal/logging"
	"waveq/internal/request"
)

// Listener consumes per-request status and result subjects and applies them
// to the store.
type Listener struct {
	store  *request.Store
	logger *slog.Logger
	subs   []*nats.Subscription
}

// NewListener builds a listener bound to the store.
func NewListener(store *request.Store, logger *slog.Logger) *Listener {
	return &Listener{store: store, logger: logging.NewComponentLogger(logger, "status-listener")}
}

// Start subscribes to the status and result wildcards and routes messages on
// a single goroutine until the context is cancelled. Events are applied in
// arrival order; a bad event is logged and skipped, never fatal.
func (l *Listener) Start(ctx context.Context, conn *nats.Conn) error {
	inbox := make(chan *nats.Msg, 256)

	statusSub, err := conn.ChanSubscribe(event.SubjectStatusWildcard, inbox)
	if err != nil {
		return err
	}
	resultSub, err := conn.ChanSubscribe(event.SubjectResultWildcard, inbox)
	if err != nil {
		_ = statusSub.Unsubscribe()
		return err
	}
	l.subs = []*nats.Subscription{statusSub, resultSub}

	go func() {
		defer l.drainSubs()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-inbox:
				l.route(ctx, msg)
			}
		}
	}()

	l.logger.Info("status listener started",
		logging.String(logging.FieldSubject, event.SubjectStatusWildcard))
	return nil
}

func (l *Listener) drainSubs() {
	for _, sub := range l.subs {
		if err := sub.Unsubscribe(); err != nil {
			l.logger.Debug("unsubscribe failed", logging.Error(err))
		}
	}
}

func (l *Listener) route(ctx context.Context, msg *nats.Msg) {
	id := event.RequestIDFromSubject(msg.Subject)
	if id == "" {
		l.logger.Warn("event on unexpected subject",
			logging.String(logging.FieldSubject, msg.Subject))
		return
	}
	switch {
	case msg.Subject == event.ResultSubject(id):
		l.ApplyResult(ctx, msg.Data)
	default:
		l.ApplyStatus(ctx, msg.Data)
	}
}

// ApplyStatus decodes one status event and applies the fields it carries.
func (l *Listener) ApplyStatus(ctx context.Context, data []byte) {
	var ev event.StatusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		l.logger.Warn("malformed status event", logging.Error(err))
		return
	}
	if ev.RequestID == "" {
		l.logger.Warn("status event missing request id")
		return
	}
	next, ok := request.ParseStatus(ev.Status)
	if !ok {
		l.logger.Warn("status event with unknown status",
			logging.String(logging.FieldRequestID, ev.RequestID),
			logging.String("status", ev.Status))
		return
	}

	fields := request.Fields{Status: &next, Progress: ev.Progress}
	if next == request.StatusFailed && ev.Message != "" {
		fields.Error = &ev.Message
	}

	if _, err := l.store.Update(ctx, ev.RequestID, fields); err != nil {
		l.logEventError(ev.RequestID, "status", err)
	}
}

// ApplyResult decodes one result event and attaches the artifact record.
func (l *Listener) ApplyResult(ctx context.Context, data []byte) {
	var ev event.ResultEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		l.logger.Warn("malformed result event", logging.Error(err))
		return
	}
	if ev.RequestID == "" {
		l.logger.Warn("result event missing request id")
		return
	}

	operations := make([]any, 0, len(ev.OperationDetails))
	for _, detail := range ev.OperationDetails {
		operations = append(operations, map[string]any{
			"operation":  detail.Operation,
			"parameters": detail.Parameters,
			"output_ref": detail.OutputRef,
		})
	}
	result := map[string]any{
		"output_path": ev.OutputPath,
		"operations":  operations,
	}

	if _, err := l.store.Update(ctx, ev.RequestID, request.Fields{Result: result}); err != nil {
		l.logEventError(ev.RequestID, "result", err)
	}
}

func (l *Listener) logEventError(id, kind string, err error) {
	switch {
	case errors.Is(err, request.ErrNotFound):
		l.logger.Warn("event for unknown request",
			logging.String(logging.FieldRequestID, id),
			logging.String(logging.FieldEventType, kind))
	case errors.Is(err, request.ErrInvalidTransition):
		l.logger.Warn("event rejected by state machine",
			logging.String(logging.FieldRequestID, id),
			logging.String(logging.FieldEventType, kind),
			logging.Error(err))
	default:
		l.logger.Error("event apply failed",
			logging.String(logging.FieldRequestID, id),
			logging.String(logging.FieldEventType, kind),
			logging.Error(err))
	}
}
