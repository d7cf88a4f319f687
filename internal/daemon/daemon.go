package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/zipbot/internal/config"
	"github.com/harun/zipbot/internal/logger"
	"github.com/harun/zipbot/internal/observability"
	"github.com/harun/zipbot/internal/telegram"
	"github.com/harun/zipbot/pkg/archive"
	"github.com/harun/zipbot/pkg/blobstore"
	"github.com/harun/zipbot/pkg/conversation"
	"github.com/harun/zipbot/pkg/session"
)

// Daemon represents the zipbot service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	blobs      *blobstore.FSStore
	sessions   *session.Store
	assembler  *archive.Assembler
	controller *conversation.Controller
	janitor    *blobstore.Janitor

	// Services
	telegramBot   *telegram.Bot
	router        *Router
	metricsServer *http.Server

	// Internal
	lifecycle *LifecycleManager

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Sessions  int
	Lanes     int
}

var newTelegramBot = func(cfg *config.TelegramConfig, log *logger.Logger) (*telegram.Bot, error) {
	return telegram.New(cfg, log)
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
	}

	if r := log.Redactor(); r != nil {
		r.AddSecret(cfg.Telegram.BotToken)
	}

	if err := d.initializeCoreModules(); err != nil {
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules builds the storage and conversation layers
func (d *Daemon) initializeCoreModules() error {
	auditPath := d.config.Logging.AuditFile
	if auditPath == "" {
		auditPath = filepath.Join(d.config.DataDir, "audit.log")
	}
	if err := observability.InitAuditLogger(auditPath); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to initialize audit logger, continuing without audit trail")
	}

	storeLogger := d.logger.Component("blobstore")
	switch d.config.Storage.Backend {
	case "memory":
		d.blobs = blobstore.NewMemoryStore(storeLogger)
	default:
		blobs, err := blobstore.NewDiskStore(d.config.Storage.Dir, storeLogger)
		if err != nil {
			return fmt.Errorf("failed to open blob store: %w", err)
		}
		d.blobs = blobs
	}
	d.logger.Info().
		Str("backend", d.config.Storage.Backend).
		Str("dir", d.config.Storage.Dir).
		Msg("Blob store initialized")

	d.sessions = session.NewStore()
	d.assembler = archive.NewAssembler(d.blobs, d.logger.GetZerolog())
	d.controller = conversation.NewController(
		d.sessions,
		d.blobs,
		d.assembler,
		d.logger.GetZerolog(),
		conversation.WithMaxUploadSize(d.config.Storage.MaxUploadBytes),
	)

	d.janitor = blobstore.NewJanitor(
		d.blobs,
		d.sessions.StagedPaths,
		d.config.Storage.SweepSchedule,
		time.Duration(d.config.Storage.OrphanMaxAge)*time.Minute,
		d.logger.Component("blobstore"),
	)

	return nil
}

// initializeServices builds the Telegram transport and metrics endpoint
func (d *Daemon) initializeServices() error {
	bot, err := newTelegramBot(&d.config.Telegram, d.logger)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	d.telegramBot = bot
	d.router = NewRouter(bot, d.controller, d.config.Storage.MaxUploadBytes, d.logger.GetZerolog())

	if d.config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		d.metricsServer = &http.Server{
			Addr:              d.config.Metrics.Addr(),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.logger.GetZerolog().With().Str("run_id", observability.NewRequestID()).Logger()
	logger.Info().Msg("Starting zipbot daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	// Blobs from a previous run have no session to return to
	if removed, err := d.janitor.Sweep(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("Startup blob sweep failed")
	} else if removed > 0 {
		logger.Info().Int("removed", removed).Msg("Startup blob sweep finished")
	}

	if err := d.janitor.Start(); err != nil {
		return fmt.Errorf("failed to start blob janitor: %w", err)
	}

	if d.metricsServer != nil {
		go func() {
			if err := d.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		logger.Info().Str("addr", d.metricsServer.Addr).Msg("Metrics server started")
	}

	if err := d.router.PublishCommands(); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish bot commands")
	}

	if err := d.telegramBot.Start(); err != nil {
		return fmt.Errorf("failed to start telegram bot: %w", err)
	}

	logger.Info().Msg("Daemon started successfully")

	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.logger.GetZerolog()
	logger.Info().Msg("Stopping zipbot daemon")

	if d.telegramBot.IsRunning() {
		if err := d.telegramBot.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop telegram bot")
		}
	}

	if d.janitor.IsRunning() {
		if err := d.janitor.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop blob janitor")
		}
	}

	if d.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop metrics server")
		}
		cancel()
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Int("abandoned_sessions", d.sessions.Len()).Msg("Daemon stopped successfully")

	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:  d.running,
		Sessions: d.sessions.Len(),
		Lanes:    d.telegramBot.Queue().ActiveLanes(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetSessions returns the session store
func (d *Daemon) GetSessions() *session.Store {
	return d.sessions
}

// GetController returns the conversation controller
func (d *Daemon) GetController() *conversation.Controller {
	return d.controller
}

// GetTelegramBot returns the Telegram bot
func (d *Daemon) GetTelegramBot() *telegram.Bot {
	return d.telegramBot
}
