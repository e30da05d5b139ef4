package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/nats-io/nats.go"

	"waveq/internal/api"
	"waveq/internal/config"
	"waveq/internal/dispatch"
	"waveq/internal/executor"
	"waveq/internal/fileutil"
	"waveq/internal/logging"
	"waveq/internal/request"
	"waveq/internal/status"
)

// Daemon wires the request store, the job queue, the workers, and the status
// listener together, and enforces single-instance execution through a file
// lock.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *request.Store
	service *api.Service

	conn     *nats.Conn
	worker   *dispatch.Worker
	listener *status.Listener
	server   *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon and connects its dependencies. The NATS connection
// is established here; Start only begins processing.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	for _, dir := range []string{cfg.UploadDir, cfg.ProcessedDir, cfg.LogDir} {
		if err := fileutil.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("ensure directory: %w", err)
		}
	}

	store, err := request.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open request store: %w", err)
	}

	conn, err := dispatch.Connect(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	lockPath := filepath.Join(cfg.LogDir, "waveqd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		conn:     conn,
		listener: status.NewListener(store, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	return d, nil
}

// Start acquires the instance lock and launches the queue consumer, the
// status listener, the API server, and housekeeping.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another waveq daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	js, err := dispatch.JetStream(d.conn)
	if err != nil {
		d.rollbackStart()
		return err
	}
	dispatcher, err := dispatch.NewDispatcher(runCtx, js, d.cfg, d.logger)
	if err != nil {
		d.rollbackStart()
		return err
	}
	consumer, err := dispatch.EnsureConsumer(runCtx, js, d.cfg)
	if err != nil {
		d.rollbackStart()
		return err
	}

	d.service = api.NewService(d.store, dispatcher, d.logger)

	exec := executor.New(d.cfg, d.logger)
	publisher := dispatch.NewPublisher(d.conn)
	d.worker = dispatch.NewWorker(d.store, exec, publisher, d.cfg.Jobs.Workers, d.cfg.Jobs.MaxRetries, d.logger)

	if err := d.listener.Start(runCtx, d.conn); err != nil {
		d.rollbackStart()
		return fmt.Errorf("start status listener: %w", err)
	}

	go func() {
		if err := d.worker.Run(runCtx, consumer); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("worker loop exited", logging.Error(err))
		}
	}()

	d.server = newAPIServer(d.cfg, d.service, d.logger)
	if d.server != nil {
		if err := d.server.start(runCtx); err != nil {
			d.rollbackStart()
			return err
		}
	}

	go d.housekeeping(runCtx)

	d.running.Store(true)
	d.logger.Info("waveq daemon started",
		logging.String("lock", d.lockPath),
		logging.String("nats", d.cfg.NATS.URL))
	return nil
}

func (d *Daemon) rollbackStart() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	_ = d.lock.Unlock()
}

// housekeeping removes stale uploads and processed artifacts on an hourly
// cadence. Retention follows the logging retention setting.
func (d *Daemon) housekeeping(ctx context.Context) {
	retention := time.Duration(d.cfg.Logging.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, dir := range []string{d.cfg.UploadDir, d.cfg.ProcessedDir} {
				removed, err := fileutil.CleanupOldFiles(dir, retention)
				if err != nil {
					d.logger.Warn("housekeeping sweep failed",
						logging.String("dir", dir),
						logging.Error(err))
					continue
				}
				if removed > 0 {
					d.logger.Info("housekeeping removed stale files",
						logging.String("dir", dir),
						logging.Int("count", removed))
				}
			}
		}
	}
}

// Stop halts processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.server != nil {
		d.server.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("waveq daemon stopped")
}

// Close stops the daemon and releases its connections.
func (d *Daemon) Close() error {
	d.Stop()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	if d.store != nil {
		err := d.store.Close()
		d.store = nil
		return err
	}
	return nil
}

// Service exposes the request service, primarily for the CLI running
// in-process during tests.
func (d *Daemon) Service() *api.Service {
	return d.service
}
