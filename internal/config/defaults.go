package config

const (
	defaultUploadDir         = "~/.local/share/waveq/uploads"
	defaultProcessedDir      = "~/.local/share/waveq/processed"
	defaultLogDir            = "~/.local/share/waveq/logs"
	defaultAPIBind           = "127.0.0.1:8002"
	defaultNATSURL           = "nats://127.0.0.1:4222"
	defaultNATSName          = "waveq"
	defaultNATSMaxReconnects = 10
	defaultNATSReconnectWait = 2
	defaultJobTTLSeconds     = 3600
	defaultJobMaxRetries     = 2
	defaultJobWorkers        = 2
	defaultJobAckWaitSeconds = 300
	defaultFFmpegBinary      = "ffmpeg"
	defaultExecutorTimeout   = 600
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		UploadDir:    defaultUploadDir,
		ProcessedDir: defaultProcessedDir,
		LogDir:       defaultLogDir,
		APIBind:      defaultAPIBind,
		NATS: NATS{
			URL:           defaultNATSURL,
			Name:          defaultNATSName,
			MaxReconnects: defaultNATSMaxReconnects,
			ReconnectWait: defaultNATSReconnectWait,
		},
		Jobs: Jobs{
			TTLSeconds:     defaultJobTTLSeconds,
			MaxRetries:     defaultJobMaxRetries,
			Workers:        defaultJobWorkers,
			AckWaitSeconds: defaultJobAckWaitSeconds,
		},
		Executor: Executor{
			FFmpegBinary:   defaultFFmpegBinary,
			TimeoutSeconds: defaultExecutorTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
