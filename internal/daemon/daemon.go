// Package daemon wires the store, processor, notifier and HTTP API into one
// long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/granobox/spool/internal/api"
	"github.com/granobox/spool/internal/api/middleware"
	"github.com/granobox/spool/internal/config"
	"github.com/granobox/spool/internal/core"
	"github.com/granobox/spool/internal/db"
	"github.com/granobox/spool/internal/discovery"
	"github.com/granobox/spool/internal/logging"
	"github.com/granobox/spool/internal/notify"
	"github.com/granobox/spool/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

var ErrAlreadyRunning = errors.New("another spoold instance is already running")

type Daemon struct {
	cfg    *config.Config
	logger *zap.Logger
	lock   *flock.Flock

	// ready receives the bound address once the listener is open.
	ready chan string
}

func New(cfg *config.Config, logger *zap.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	lockPath := cfg.Database.LockPath
	if lockPath == "" {
		lockPath = cfg.Database.Path + ".lock"
	}

	return &Daemon{
		cfg:    cfg,
		logger: logging.OrNop(logger),
		lock:   flock.New(lockPath),
		ready:  make(chan string, 1),
	}, nil
}

// Ready yields the listen address after Run has bound its socket.
func (d *Daemon) Ready() <-chan string {
	return d.ready
}

// Run holds the instance lock and serves until ctx is cancelled or a
// component fails.
func (d *Daemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(d.lock.Path()), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", zap.Error(err))
		}
	}()

	conn, err := db.Open(db.Config{Path: d.cfg.Database.Path})
	if err != nil {
		return fmt.Errorf("failed to open queue database: %w", err)
	}
	defer conn.Close()

	jobs := db.NewJobStore(conn)
	hub := notify.NewHub(d.logger)
	var notifier notify.Broadcaster = hub
	if len(d.cfg.Webhooks.Targets) > 0 {
		sender := webhook.NewSender(d.cfg.Webhooks, d.logger)
		sender.Start()
		defer sender.Stop()
		notifier = notify.Fanout{hub, sender}
	}
	printer := core.NewPrinterManager(core.PrinterManagerOptions{Logger: d.logger})
	defer printer.Close()

	processor := core.NewProcessor(jobs, printer, notifier, &d.cfg.Queue, d.logger)
	scanner := discovery.NewScanner(discovery.Options{
		Timeout: d.cfg.Discovery.Timeout,
		Logger:  d.logger,
	})

	router := api.NewRouter(api.RouterOptions{
		Jobs:      jobs,
		Presets:   db.NewPresetStore(conn),
		Discovery: scanner,
		Notifier:  notifier,
		WebSocket: hub,
		Auth:      middleware.NewAuthMiddleware(d.cfg.Server.AuthSecret, d.cfg.Server.AdminPasswordHash),
		Logger:    d.logger,
	})

	ln, err := net.Listen("tcp", d.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.Address(), err)
	}

	server := &http.Server{
		Handler:      router,
		ReadTimeout:  d.cfg.Server.ReadTimeout,
		WriteTimeout: d.cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.logger.Info("spoold listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("database", d.cfg.Database.Path),
			zap.String("platform", scanner.Platform()),
			zap.Bool("auth", d.cfg.Server.AuthSecret != ""))
		d.ready <- ln.Addr().String()
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := processor.Start(gctx); err != nil {
			return fmt.Errorf("failed to start queue processor: %w", err)
		}
		<-gctx.Done()
		processor.Stop()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		d.logger.Info("shutting down")
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}
