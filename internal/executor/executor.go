// Package executor applies audio operations to files by shelling out to
// ffmpeg. Each operation takes an input reference and produces a new output
// file, so a chain threads artifacts from step to step without mutating the
// original upload.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"waveq/internal/catalog"
	"waveq/internal/chain"
	"waveq/internal/config"
	"waveq/internal/logging"
)

var commandContext = exec.CommandContext

// Executor applies one operation to an audio file and returns a reference to
// the produced artifact.
type Executor interface {
	Apply(ctx context.Context, inputRef string, op chain.OperationSpec) (string, error)
}

// FFmpeg runs operations through an ffmpeg binary.
type FFmpeg struct {
	binary    string
	outputDir string
	timeout   time.Duration
	logger    *slog.Logger
}

// New builds an FFmpeg executor from configuration. Outputs land in the
// processed directory.
func New(cfg *config.Config, logger *slog.Logger) *FFmpeg {
	return &FFmpeg{
		binary:    cfg.Executor.FFmpegBinary,
		outputDir: cfg.ProcessedDir,
		timeout:   time.Duration(cfg.Executor.TimeoutSeconds) * time.Second,
		logger:    logging.NewComponentLogger(logger, "executor"),
	}
}

// Apply runs one operation. Parameters the request did not set are filled
// from the catalog defaults before argument construction.
func (f *FFmpeg) Apply(ctx context.Context, inputRef string, op chain.OperationSpec) (string, error) {
	params := MergeDefaults(op.Name, op.Parameters)
	outputRef := OutputPath(f.outputDir, inputRef, op.Name, params)

	args, err := buildArgs(op.Name, params, inputRef, outputRef)
	if err != nil {
		return "", err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	f.logger.Debug("running ffmpeg",
		logging.String(logging.FieldOperation, op.Name),
		logging.String("input", inputRef),
		logging.String("output", outputRef))

	cmd := commandContext(ctx, f.binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg %s: %w: %s", op.Name, err, strings.TrimSpace(string(output)))
	}
	return outputRef, nil
}

// MergeDefaults overlays provided parameters on the catalog defaults for the
// operation. Provided values win.
func MergeDefaults(opName string, provided map[string]any) map[string]any {
	merged := catalog.Defaults(opName)
	if merged == nil {
		merged = make(map[string]any)
	}
	for k, v := range provided {
		merged[k] = v
	}
	return merged
}

// OutputPath derives the artifact path for one operation from the input
// file's stem. The derivation is deterministic so retries overwrite rather
// than accumulate. A format conversion swaps the extension; a split produces
// a numbered segment pattern.
func OutputPath(dir, inputRef, opName string, params map[string]any) string {
	base := filepath.Base(inputRef)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	suffix := strings.ReplaceAll(opName, "-", "_")

	switch opName {
	case catalog.OpFormatConvert:
		if target, ok := params["target_format"].(string); ok && target != "" {
			ext = "." + strings.ToLower(target)
		}
		return filepath.Join(dir, stem+"_"+suffix+ext)
	case catalog.OpSplit:
		return filepath.Join(dir, stem+"_"+suffix+"_%03d"+ext)
	default:
		return filepath.Join(dir, stem+"_"+suffix+ext)
	}
}
