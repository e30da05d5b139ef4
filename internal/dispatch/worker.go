package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"waveq/internal/event"
	"waveq/internal/executor"
	"waveq/internal/logging"
	"waveq/internal/request"
)

// Worker consumes jobs from the queue and runs their operation chains. All
// state changes flow out as events; the status listener is the single writer
// that folds them back into the store.
type Worker struct {
	store      *request.Store
	exec       executor.Executor
	pub        Publisher
	logger     *slog.Logger
	slots      int
	maxRetries int
}

// NewWorker builds a worker. slots bounds the number of jobs processed
// concurrently.
func NewWorker(store *request.Store, exec executor.Executor, pub Publisher, slots, maxRetries int, logger *slog.Logger) *Worker {
	if slots <= 0 {
		slots = 1
	}
	return &Worker{
		store:      store,
		exec:       exec,
		pub:        pub,
		logger:     logging.NewComponentLogger(logger, "worker"),
		slots:      slots,
		maxRetries: maxRetries,
	}
}

// Run fetches jobs until the context is cancelled. Each job is handled on
// its own goroutine, bounded by the worker's slot count.
func (w *Worker) Run(ctx context.Context, consumer jetstream.Consumer) error {
	sem := make(chan struct{}, w.slots)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Debug("fetch timed out", logging.Error(err))
			continue
		}
		for msg := range msgs.Messages() {
			sem <- struct{}{}
			go func(msg jetstream.Msg) {
				defer func() { <-sem }()
				w.handleMessage(ctx, msg)
			}(msg)
		}
	}
}

// handleMessage decodes and runs one job, then decides its queue fate. A
// retryable failure is NAKed for redelivery until MaxDeliver is exhausted;
// the final attempt publishes a failed status so the request terminates.
func (w *Worker) handleMessage(ctx context.Context, msg jetstream.Msg) {
	if ctx.Err() != nil {
		if err := msg.Nak(); err != nil {
			w.logger.Warn("nak during shutdown failed", logging.Error(err))
		}
		return
	}

	var job event.JobPayload
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		w.logger.Error("malformed job payload, dropping", logging.Error(err))
		w.ack(msg)
		return
	}
	if err := job.Validate(); err != nil {
		w.logger.Error("invalid job payload, dropping",
			logging.String(logging.FieldRequestID, job.RequestID),
			logging.Error(err))
		w.ack(msg)
		return
	}

	err := w.ProcessJob(ctx, job)
	if err == nil {
		w.ack(msg)
		return
	}

	delivered := 1
	if meta, metaErr := msg.Metadata(); metaErr == nil {
		delivered = int(meta.NumDelivered)
	}
	if delivered <= w.maxRetries {
		w.logger.Warn("job failed, requeueing",
			logging.String(logging.FieldRequestID, job.RequestID),
			logging.Int("delivery", delivered),
			logging.Error(err))
		if nakErr := msg.Nak(); nakErr != nil {
			w.logger.Warn("nak failed", logging.Error(nakErr))
		}
		return
	}

	w.logger.Error("job failed permanently",
		logging.String(logging.FieldRequestID, job.RequestID),
		logging.Int("delivery", delivered),
		logging.Error(err))
	w.publishStatus(ctx, event.StatusEvent{
		RequestID: job.RequestID,
		Status:    string(request.StatusFailed),
		Message:   err.Error(),
	})
	w.ack(msg)
}

// ProcessJob runs the operation chain for one job, threading each step's
// output into the next. It publishes processing and progress events as it
// goes and terminal events when the chain ends. A request already cancelled
// or otherwise terminal is skipped without side effects.
func (w *Worker) ProcessJob(ctx context.Context, job event.JobPayload) error {
	req, err := w.store.Get(ctx, job.RequestID)
	if err != nil {
		// The request record is gone; nothing to execute against.
		w.logger.Warn("job references unknown request, dropping",
			logging.String(logging.FieldRequestID, job.RequestID),
			logging.Error(err))
		return nil
	}
	if req.Status.IsTerminal() {
		w.logger.Info("skipping job for terminal request",
			logging.String(logging.FieldRequestID, job.RequestID),
			logging.String("status", string(req.Status)))
		return nil
	}

	w.publishStatus(ctx, event.StatusEvent{
		RequestID: job.RequestID,
		Status:    string(request.StatusProcessing),
		Progress:  progressPtr(0),
	})

	currentRef := job.AudioRef
	details := make([]event.OperationDetail, 0, len(job.Operations))
	total := len(job.Operations)

	for i, op := range job.Operations {
		if ctx.Err() != nil {
			return fmt.Errorf("chain interrupted: %w", ctx.Err())
		}
		if w.cancelled(ctx, job.RequestID) {
			w.logger.Info("request cancelled mid-chain",
				logging.String(logging.FieldRequestID, job.RequestID),
				logging.String(logging.FieldOperation, op.Name))
			return nil
		}

		outputRef, err := w.exec.Apply(ctx, currentRef, op)
		if err != nil {
			return fmt.Errorf("operation %s (step %d/%d): %w", op.Name, i+1, total, err)
		}
		details = append(details, event.OperationDetail{
			Operation:  op.Name,
			Parameters: op.Parameters,
			OutputRef:  outputRef,
		})
		currentRef = outputRef

		w.publishStatus(ctx, event.StatusEvent{
			RequestID: job.RequestID,
			Status:    string(request.StatusProcessing),
			Progress:  progressPtr(float64(i+1) / float64(total)),
			Message:   op.Name,
		})
	}

	if err := w.pub.PublishResult(ctx, event.ResultEvent{
		RequestID:        job.RequestID,
		OutputPath:       currentRef,
		OperationDetails: details,
	}); err != nil {
		w.logger.Warn("result publish failed",
			logging.String(logging.FieldRequestID, job.RequestID),
			logging.Error(err))
	}
	w.publishStatus(ctx, event.StatusEvent{
		RequestID: job.RequestID,
		Status:    string(request.StatusCompleted),
		Progress:  progressPtr(1),
	})
	return nil
}

func (w *Worker) cancelled(ctx context.Context, id string) bool {
	req, err := w.store.Get(ctx, id)
	if err != nil {
		return false
	}
	return req.Status == request.StatusCancelled
}

func (w *Worker) publishStatus(ctx context.Context, ev event.StatusEvent) {
	if err := w.pub.PublishStatus(ctx, ev); err != nil {
		w.logger.Warn("status publish failed",
			logging.String(logging.FieldRequestID, ev.RequestID),
			logging.Error(err))
	}
}

func (w *Worker) ack(msg jetstream.Msg) {
	if err := msg.Ack(); err != nil {
		w.logger.Warn("ack failed", logging.Error(err))
	}
}

func progressPtr(v float64) *float64 { return &v }
