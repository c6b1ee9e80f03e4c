package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"opuspress/internal/config"
	"opuspress/internal/ledger"
	"opuspress/internal/logging"
	"opuspress/internal/notifications"
	"opuspress/internal/opus"
	"opuspress/internal/pipeline"
	"opuspress/internal/session"
)

// Daemon coordinates the encode pipeline and API server and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *ledger.Store
	sessions *session.Store
	pipeline *pipeline.Pipeline
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool
	PID              int
	HistoryDBPath    string
	LockFilePath     string
	ConcurrencyLimit int
	Dependencies     []DependencyStatus
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *ledger.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, history store, and logger")
	}

	tier, ok := opus.TierForBitrate(cfg.Defaults.BitrateKbps)
	if !ok {
		return nil, fmt.Errorf("no quality tier for default bitrate %d kbps", cfg.Defaults.BitrateKbps)
	}
	sessions := session.NewStore(session.Settings{
		Tier:            tier,
		SpeechOptimized: cfg.Defaults.SpeechOptimized,
	})
	notifier := notifications.NewService(cfg)

	lockPath := filepath.Join(cfg.Paths.LogDir, "opuspressd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		sessions: sessions,
		pipeline: pipeline.New(cfg, sessions, notifier, store, logger),
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	api, err := newAPIServer(cfg, d, logging.NewComponentLogger(logger, "api"))
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Pipeline exposes the encode pipeline, mainly for tests and the CLI
// in-process path.
func (d *Daemon) Pipeline() *pipeline.Pipeline {
	return d.pipeline
}

// Sessions exposes the per-user settings store.
func (d *Daemon) Sessions() *session.Store {
	return d.sessions
}

// Start acquires the daemon lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another opuspress daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			cancel()
			d.cancel = nil
			_ = d.lock.Unlock()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("opuspress daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("encode_slots", d.pipeline.ConcurrencyLimit()))
	return nil
}

// Stop halts the API server and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("opuspress daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports runtime and dependency information.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:          d.running.Load(),
		PID:              os.Getpid(),
		HistoryDBPath:    d.store.Path(),
		LockFilePath:     d.lockPath,
		ConcurrencyLimit: d.pipeline.ConcurrencyLimit(),
		Dependencies:     CheckDependencies(ctx, d.cfg),
	}
}
