package daemon

import (
	"context"
	"encoding/json"
	"testing"

	"waveq/internal/api"
	"waveq/internal/chain"
	"waveq/internal/dispatch"
	"waveq/internal/event"
	"waveq/internal/request"
	"waveq/internal/status"
	"waveq/internal/testsupport"
)

// loopbackPublisher feeds worker events straight into the status listener,
// standing in for the broker.
type loopbackPublisher struct {
	listener *status.Listener
}

func (p *loopbackPublisher) PublishStatus(ctx context.Context, ev event.StatusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.listener.ApplyStatus(ctx, data)
	return nil
}

func (p *loopbackPublisher) PublishResult(ctx context.Context, ev event.ResultEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.listener.ApplyResult(ctx, data)
	return nil
}

// loopbackQueue runs each job synchronously on submit.
type loopbackQueue struct {
	worker *dispatch.Worker
}

func (q *loopbackQueue) Enqueue(ctx context.Context, job event.JobPayload) error {
	return q.worker.ProcessJob(ctx, job)
}

func TestSubmitToCompletionPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	listener := status.NewListener(store, nil)
	exec := &testsupport.StubExecutor{}
	pub := &loopbackPublisher{listener: listener}
	worker := dispatch.NewWorker(store, exec, pub, 1, cfg.Jobs.MaxRetries, nil)
	svc := api.NewService(store, &loopbackQueue{worker: worker}, nil)

	res, err := svc.Submit(ctx, api.SubmitInput{
		AudioRef: "/uploads/song.wav",
		ClientID: "pipeline",
		Operations: []chain.OperationSpec{
			{Name: "fade-out", Parameters: map[string]any{"duration": 1.5}},
			{Name: "trim", Parameters: map[string]any{"start_time": 0.0, "end_time": 10.0}},
		},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	req, err := store.Get(ctx, res.RequestID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if req.Status != request.StatusCompleted {
		t.Fatalf("pipeline did not complete: %s (error %q)", req.Status, req.Error)
	}
	if req.Progress == nil || *req.Progress != 1 {
		t.Fatalf("final progress not recorded: %#v", req.Progress)
	}
	if req.Result == nil || req.Result["output_path"] != "/uploads/song.wav.trim.fade-out" {
		t.Fatalf("result artifact missing or chain misordered: %#v", req.Result)
	}

	if applied := exec.Applied(); len(applied) != 2 || applied[0] != "trim" || applied[1] != "fade-out" {
		t.Fatalf("operations not run in precedence order: %v", applied)
	}

	path, err := svc.Download(ctx, res.RequestID)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if path != "/uploads/song.wav.trim.fade-out" {
		t.Fatalf("unexpected artifact path: %q", path)
	}
}

func TestPipelineFailureMarksRequestFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	listener := status.NewListener(store, nil)
	exec := &testsupport.StubExecutor{Fail: "normalize"}
	pub := &loopbackPublisher{listener: listener}
	worker := dispatch.NewWorker(store, exec, pub, 1, 0, nil)

	// Bypass the service so the record survives the synchronous failure.
	ch := chain.Chain{{Name: "trim", Parameters: map[string]any{"start_time": 0.0}}, {Name: "normalize"}}
	if _, err := store.Create(ctx, "req-pipe-fail", chain.Plan(ch), "", "/uploads/in.wav", ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	job := event.JobPayload{
		RequestID:  "req-pipe-fail",
		AudioRef:   "/uploads/in.wav",
		Operations: chain.Plan(ch),
	}
	err := worker.ProcessJob(ctx, job)
	if err == nil {
		t.Fatal("expected chain failure")
	}

	// Terminal failure events are published by the queue consumer once
	// deliveries are exhausted; emulate that final step.
	if pubErr := pub.PublishStatus(ctx, event.StatusEvent{
		RequestID: job.RequestID,
		Status:    string(request.StatusFailed),
		Message:   err.Error(),
	}); pubErr != nil {
		t.Fatalf("publish failed status: %v", pubErr)
	}

	req, getErr := store.Get(ctx, job.RequestID)
	if getErr != nil {
		t.Fatalf("Get failed: %v", getErr)
	}
	if req.Status != request.StatusFailed {
		t.Fatalf("request not failed: %s", req.Status)
	}
	if req.Error == "" {
		t.Fatal("failure message not recorded")
	}
}
