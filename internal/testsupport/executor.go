package testsupport

import (
	"context"
	"fmt"
	"sync"

	"waveq/internal/chain"
)

// StubExecutor records applied operations and returns deterministic output
// references. Fail, when set, makes the named operation return an error.
type StubExecutor struct {
	Fail string

	mu      sync.Mutex
	applied []string
}

// Apply satisfies the executor contract for tests.
func (e *StubExecutor) Apply(ctx context.Context, inputRef string, op chain.OperationSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	e.applied = append(e.applied, op.Name)
	e.mu.Unlock()

	if e.Fail != "" && op.Name == e.Fail {
		return "", fmt.Errorf("stub failure in %s", op.Name)
	}
	return fmt.Sprintf("%s.%s", inputRef, op.Name), nil
}

// Applied returns the operation names applied so far, in order.
func (e *StubExecutor) Applied() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]string, len(e.applied))
	copy(cp, e.applied)
	return cp
}
