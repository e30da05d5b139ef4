package testsupport

import (
	"path/filepath"
	"testing"

	"waveq/internal/config"
)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.UploadDir = filepath.Join(base, "uploads")
	cfg.ProcessedDir = filepath.Join(base, "processed")
	cfg.LogDir = filepath.Join(base, "logs")
	cfg.APIBind = "127.0.0.1:0"
	return &cfg
}
