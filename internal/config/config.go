package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Config captures the full daemon and CLI configuration.
type Config struct {
	UploadDir    string `toml:"upload_dir"`
	ProcessedDir string `toml:"processed_dir"`
	LogDir       string `toml:"log_dir"`
	APIBind      string `toml:"api_bind"`
	APIToken     string `toml:"api_token"`

	NATS     NATS     `toml:"nats"`
	Jobs     Jobs     `toml:"jobs"`
	Executor Executor `toml:"executor"`
	Logging  Logging  `toml:"logging"`
}

// NATS contains connection settings for the message broker.
type NATS struct {
	URL           string `toml:"url"`
	Name          string `toml:"name"`
	MaxReconnects int    `toml:"max_reconnects"`
	ReconnectWait int    `toml:"reconnect_wait_seconds"`
}

// Jobs contains dispatch queue tuning.
type Jobs struct {
	TTLSeconds     int `toml:"ttl_seconds"`
	MaxRetries     int `toml:"max_retries"`
	Workers        int `toml:"workers"`
	AckWaitSeconds int `toml:"ack_wait_seconds"`
}

// Executor contains settings for the audio transform runner.
type Executor struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// DefaultConfigPath returns the preferred config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "waveq", "config.toml"), nil
}

// Load reads configuration from path, falling back to the default location
// and then to built-in defaults when no file exists. It returns the config
// and the path that was read (empty when defaults were used).
func Load(path string) (*Config, string, error) {
	cfg := Default()

	resolved := strings.TrimSpace(path)
	if resolved == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, "", err
		}
		resolved = defaultPath
	}
	resolved = ExpandPath(resolved)

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && strings.TrimSpace(path) == "" {
			cfg.applyEnvOverrides()
			cfg.normalize()
			return &cfg, "", nil
		}
		return nil, "", fmt.Errorf("read config %s: %w", resolved, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, "", fmt.Errorf("parse config %s: %w", resolved, err)
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	return &cfg, resolved, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	target := ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("config file already exists: %s", target)
	}
	return os.WriteFile(target, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the runtime directories the daemon needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.UploadDir, c.ProcessedDir, c.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("WAVEQ_NATS_URL")); v != "" {
		c.NATS.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("WAVEQ_API_TOKEN")); v != "" {
		c.APIToken = v
	}
}

func (c *Config) normalize() {
	c.UploadDir = ExpandPath(c.UploadDir)
	c.ProcessedDir = ExpandPath(c.ProcessedDir)
	c.LogDir = ExpandPath(c.LogDir)
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = defaultJobWorkers
	}
	if c.Jobs.TTLSeconds <= 0 {
		c.Jobs.TTLSeconds = defaultJobTTLSeconds
	}
	if c.Jobs.MaxRetries < 0 {
		c.Jobs.MaxRetries = 0
	}
	if c.Jobs.AckWaitSeconds <= 0 {
		c.Jobs.AckWaitSeconds = defaultJobAckWaitSeconds
	}
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || !strings.HasPrefix(trimmed, "~") {
		return trimmed
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return trimmed
	}
	if trimmed == "~" {
		return home
	}
	return filepath.Join(home, strings.TrimPrefix(trimmed, "~/"))
}
