package testsupport

import (
	"testing"

	"waveq/internal/config"
	"waveq/internal/request"
)

// MustOpenStore opens a request.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *request.Store {
	t.Helper()

	store, err := request.Open(cfg)
	if err != nil {
		t.Fatalf("open request store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close request store: %v", err)
		}
	})
	return store
}
