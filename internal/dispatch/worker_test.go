package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"waveq/internal/chain"
	"waveq/internal/dispatch"
	"waveq/internal/event"
	"waveq/internal/request"
	"waveq/internal/testsupport"
)

// recordingPublisher captures published events in order.
type recordingPublisher struct {
	mu       sync.Mutex
	statuses []event.StatusEvent
	results  []event.ResultEvent
}

func (p *recordingPublisher) PublishStatus(_ context.Context, ev event.StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, ev)
	return nil
}

func (p *recordingPublisher) PublishResult(_ context.Context, ev event.ResultEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, ev)
	return nil
}

func (p *recordingPublisher) snapshot() ([]event.StatusEvent, []event.ResultEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.StatusEvent(nil), p.statuses...), append([]event.ResultEvent(nil), p.results...)
}

func newJob(id string, ops ...string) event.JobPayload {
	specs := make([]chain.OperationSpec, 0, len(ops))
	for _, op := range ops {
		specs = append(specs, chain.OperationSpec{Name: op, Parameters: map[string]any{}})
	}
	return event.JobPayload{
		RequestID:  id,
		AudioRef:   "/uploads/in.wav",
		Operations: specs,
		Timestamp:  time.Now().UTC(),
	}
}

func TestProcessJobRunsChainAndPublishes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := newJob("req-ok", "trim", "normalize")
	if _, err := store.Create(ctx, job.RequestID, chainFromJob(job), "", job.AudioRef, ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	exec := &testsupport.StubExecutor{}
	pub := &recordingPublisher{}
	worker := dispatch.NewWorker(store, exec, pub, 1, 2, nil)

	if err := worker.ProcessJob(ctx, job); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}

	if got := exec.Applied(); len(got) != 2 || got[0] != "trim" || got[1] != "normalize" {
		t.Fatalf("unexpected operation order: %v", got)
	}

	statuses, results := pub.snapshot()
	if len(results) != 1 {
		t.Fatalf("expected one result event, got %d", len(results))
	}
	if results[0].OutputPath != "/uploads/in.wav.trim.normalize" {
		t.Fatalf("output refs not threaded: %q", results[0].OutputPath)
	}
	if len(results[0].OperationDetails) != 2 {
		t.Fatalf("expected 2 operation details, got %d", len(results[0].OperationDetails))
	}

	// processing(0), processing(0.5), processing(1.0), completed
	if len(statuses) != 4 {
		t.Fatalf("expected 4 status events, got %d: %#v", len(statuses), statuses)
	}
	if statuses[0].Status != string(request.StatusProcessing) || *statuses[0].Progress != 0 {
		t.Fatalf("first event not processing start: %#v", statuses[0])
	}
	last := statuses[len(statuses)-1]
	if last.Status != string(request.StatusCompleted) || *last.Progress != 1 {
		t.Fatalf("last event not completed: %#v", last)
	}
}

func TestProcessJobSkipsTerminalRequest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := newJob("req-cancelled", "trim")
	if _, err := store.Create(ctx, job.RequestID, chainFromJob(job), "", job.AudioRef, ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	cancelled := request.StatusCancelled
	if _, err := store.Update(ctx, job.RequestID, request.Fields{Status: &cancelled}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	exec := &testsupport.StubExecutor{}
	pub := &recordingPublisher{}
	worker := dispatch.NewWorker(store, exec, pub, 1, 2, nil)

	if err := worker.ProcessJob(ctx, job); err != nil {
		t.Fatalf("ProcessJob errored on terminal request: %v", err)
	}
	if len(exec.Applied()) != 0 {
		t.Fatal("executor invoked for a cancelled request")
	}
	statuses, results := pub.snapshot()
	if len(statuses) != 0 || len(results) != 0 {
		t.Fatalf("events published for a cancelled request: %#v %#v", statuses, results)
	}
}

func TestProcessJobFailureStopsChain(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := newJob("req-fail", "trim", "normalize", "fade-in")
	if _, err := store.Create(ctx, job.RequestID, chainFromJob(job), "", job.AudioRef, ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	exec := &testsupport.StubExecutor{Fail: "normalize"}
	pub := &recordingPublisher{}
	worker := dispatch.NewWorker(store, exec, pub, 1, 2, nil)

	err := worker.ProcessJob(ctx, job)
	if err == nil {
		t.Fatal("expected chain failure")
	}

	applied := exec.Applied()
	if len(applied) != 2 {
		t.Fatalf("chain did not stop at failing step: %v", applied)
	}

	statuses, results := pub.snapshot()
	if len(results) != 0 {
		t.Fatal("result published for failed chain")
	}
	for _, ev := range statuses {
		if ev.Status == string(request.StatusCompleted) {
			t.Fatal("completed event published for failed chain")
		}
	}
}

// cancellingExecutor cancels the request through the store after the first
// applied operation, simulating a client cancel racing a running chain.
type cancellingExecutor struct {
	store *request.Store
	id    string
	inner testsupport.StubExecutor
	once  sync.Once
}

func (e *cancellingExecutor) Apply(ctx context.Context, inputRef string, op chain.OperationSpec) (string, error) {
	out, err := e.inner.Apply(ctx, inputRef, op)
	if err != nil {
		return "", err
	}
	e.once.Do(func() {
		cancelled := request.StatusCancelled
		if _, err := e.store.Update(ctx, e.id, request.Fields{Status: &cancelled}); err != nil {
			panic(err)
		}
	})
	return out, nil
}

func TestProcessJobStopsWhenCancelledMidChain(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := newJob("req-midcancel", "trim", "normalize", "fade-in")
	if _, err := store.Create(ctx, job.RequestID, chainFromJob(job), "", job.AudioRef, ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	processing := request.StatusProcessing
	if _, err := store.Update(ctx, job.RequestID, request.Fields{Status: &processing}); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	exec := &cancellingExecutor{store: store, id: job.RequestID}
	pub := &recordingPublisher{}
	worker := dispatch.NewWorker(store, exec, pub, 1, 2, nil)

	if err := worker.ProcessJob(ctx, job); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}
	if applied := exec.inner.Applied(); len(applied) != 1 {
		t.Fatalf("chain continued past cancellation: %v", applied)
	}
	_, results := pub.snapshot()
	if len(results) != 0 {
		t.Fatal("result published for cancelled chain")
	}
}

func TestProcessJobUnknownRequestIsDropped(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	exec := &testsupport.StubExecutor{}
	pub := &recordingPublisher{}
	worker := dispatch.NewWorker(store, exec, pub, 1, 2, nil)

	if err := worker.ProcessJob(context.Background(), newJob("req-ghost", "trim")); err != nil {
		t.Fatalf("unknown request should be dropped, got %v", err)
	}
	if len(exec.Applied()) != 0 {
		t.Fatal("executor invoked for unknown request")
	}
}

func chainFromJob(job event.JobPayload) chain.Chain {
	return chain.Chain(job.Operations)
}
