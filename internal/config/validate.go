package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateExecutor(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.UploadDir) == "" {
		return errors.New("upload_dir must be set")
	}
	if strings.TrimSpace(c.ProcessedDir) == "" {
		return errors.New("processed_dir must be set")
	}
	if strings.TrimSpace(c.APIBind) == "" {
		return errors.New("api_bind must be set")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if strings.TrimSpace(c.NATS.URL) == "" {
		return errors.New("nats.url must be set")
	}
	if c.NATS.MaxReconnects < 0 {
		return errors.New("nats.max_reconnects must not be negative")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.TTLSeconds <= 0 {
		return errors.New("jobs.ttl_seconds must be positive")
	}
	if c.Jobs.MaxRetries < 0 || c.Jobs.MaxRetries > 10 {
		return errors.New("jobs.max_retries must be between 0 and 10")
	}
	if c.Jobs.Workers <= 0 {
		return errors.New("jobs.workers must be positive")
	}
	return nil
}

func (c *Config) validateExecutor() error {
	if strings.TrimSpace(c.Executor.FFmpegBinary) == "" {
		return errors.New("executor.ffmpeg_binary must be set")
	}
	if c.Executor.TimeoutSeconds <= 0 {
		return errors.New("executor.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}
