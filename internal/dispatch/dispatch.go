// Package dispatch moves jobs between the API layer and the workers over a
// durable work queue, and fans status and result events back out to whoever
// listens. The queue is a JetStream work-queue stream; status and result
// events ride core NATS subjects.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"waveq/internal/config"
	"waveq/internal/event"
	"waveq/internal/logging"
)

// StreamName is the JetStream stream backing the job queue.
const StreamName = "WAVEQ-JOBS"

// ConsumerName is the durable consumer shared by workers.
const ConsumerName = "waveq-workers"

// ErrSubmissionFailed is returned when a job cannot be placed on the queue
// after exhausting publish retries.
var ErrSubmissionFailed = errors.New("job submission failed")

// Enqueuer places a job on the work queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job event.JobPayload) error
}

// Publisher emits status and result events for a request.
type Publisher interface {
	PublishStatus(ctx context.Context, ev event.StatusEvent) error
	PublishResult(ctx context.Context, ev event.ResultEvent) error
}

// Dispatcher publishes jobs to the JetStream work queue.
type Dispatcher struct {
	js      jetstream.JetStream
	logger  *slog.Logger
	retries int
	backoff time.Duration
}

// NewDispatcher ensures the job stream exists and returns a dispatcher bound
// to it. Jobs older than the configured TTL are dropped by the stream itself.
func NewDispatcher(ctx context.Context, js jetstream.JetStream, cfg *config.Config, logger *slog.Logger) (*Dispatcher, error) {
	logger = logging.NewComponentLogger(logger, "dispatcher")
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{event.SubjectJobs},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    time.Duration(cfg.Jobs.TTLSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure job stream: %w", err)
	}
	return &Dispatcher{
		js:      js,
		logger:  logger,
		retries: 3,
		backoff: 250 * time.Millisecond,
	}, nil
}

// Enqueue publishes the job, retrying transient failures with backoff.
func (d *Dispatcher) Enqueue(ctx context.Context, job event.JobPayload) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: encode job: %v", ErrSubmissionFailed, err)
	}

	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrSubmissionFailed, ctx.Err())
			case <-time.After(d.backoff * time.Duration(attempt)):
			}
		}
		if _, lastErr = d.js.Publish(ctx, event.SubjectJobs, data); lastErr == nil {
			d.logger.Debug("job enqueued",
				logging.String(logging.FieldRequestID, job.RequestID),
				logging.Int("operations", len(job.Operations)))
			return nil
		}
		d.logger.Warn("job publish failed, retrying",
			logging.String(logging.FieldRequestID, job.RequestID),
			logging.Int("attempt", attempt+1),
			logging.Error(lastErr))
	}
	return fmt.Errorf("%w: %v", ErrSubmissionFailed, lastErr)
}

// EnsureConsumer creates or updates the durable worker consumer on the job
// stream. MaxDeliver covers the first delivery plus the configured retries.
func EnsureConsumer(ctx context.Context, js jetstream.JetStream, cfg *config.Config) (jetstream.Consumer, error) {
	stream, err := js.Stream(ctx, StreamName)
	if err != nil {
		return nil, fmt.Errorf("get job stream: %w", err)
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: event.SubjectJobs,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       time.Duration(cfg.Jobs.AckWaitSeconds) * time.Second,
		MaxDeliver:    cfg.Jobs.MaxRetries + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create worker consumer: %w", err)
	}
	return consumer, nil
}
