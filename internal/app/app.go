// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/eventscout/eventscout/internal/config"
	"github.com/eventscout/eventscout/internal/digest"
	eventspostgres "github.com/eventscout/eventscout/internal/events/postgres"
	smtpmailer "github.com/eventscout/eventscout/internal/mailer/smtp"
	"github.com/eventscout/eventscout/internal/matching"
	"github.com/eventscout/eventscout/internal/matchqueue"
	matchqueuepostgres "github.com/eventscout/eventscout/internal/matchqueue/postgres"
	"github.com/eventscout/eventscout/internal/pkg/ctxlog"
	"github.com/eventscout/eventscout/internal/pkg/httputil"
	"github.com/eventscout/eventscout/internal/pkg/metrics"
	"github.com/eventscout/eventscout/internal/pkg/postgres"
	"github.com/eventscout/eventscout/internal/retention"
	"github.com/eventscout/eventscout/internal/schedule"
	schedulepostgres "github.com/eventscout/eventscout/internal/schedule/postgres"
	"github.com/eventscout/eventscout/internal/scorer"
	userspostgres "github.com/eventscout/eventscout/internal/users/postgres"
	"github.com/eventscout/eventscout/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server

	bgCtx    context.Context
	bgCancel context.CancelFunc

	queue          *matchqueue.Manager
	matchingRunner *matching.Runner
	digestRunner   *digest.Runner
	sweeper        *retention.Sweeper
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	bgCtx, bgCancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))

	app := &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}

	if err := app.setupPipeline(); err != nil {
		db.Close()
		bgCancel()
		return nil, fmt.Errorf("setup pipeline: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// setupPipeline wires repositories, the scorer, the mailer and the
// background runners.
func (a *App) setupPipeline() error {
	cfg := a.config

	queueRepo := matchqueuepostgres.NewRepository(a.db)
	queue := matchqueue.NewManager(queueRepo)
	schedules := schedule.NewManager(schedulepostgres.NewRepository(a.db))
	eventsRepo := eventspostgres.NewRepository(a.db)
	usersRepo := userspostgres.NewRepository(a.db)

	var embeddings *scorer.EmbeddingClient
	if cfg.Scorer.URL != "" {
		embeddings = scorer.NewEmbeddingClient(scorer.EmbeddingConfig{
			URL:     cfg.Scorer.URL,
			APIKey:  cfg.Scorer.APIKey,
			Model:   cfg.Scorer.Model,
			Timeout: cfg.Scorer.Timeout,
		})
	} else {
		a.logger.Warn("embedding scorer disabled, lexical matching only")
	}

	mailer, err := smtpmailer.NewSender(smtpmailer.Config{
		Enabled:        cfg.SMTP.Enabled,
		SMTPHost:       cfg.SMTP.Host,
		SMTPPort:       cfg.SMTP.Port,
		SMTPUser:       cfg.SMTP.User,
		SMTPPassword:   cfg.SMTP.Password,
		FromAddress:    cfg.SMTP.FromAddress,
		SendsPerSecond: cfg.SMTP.SendsPerSecond,
	}, usersRepo)
	if err != nil {
		return fmt.Errorf("create smtp sender: %w", err)
	}
	if !cfg.SMTP.Enabled {
		a.logger.Warn("smtp sender is disabled: digests will be dropped, not delivered")
	}

	a.queue = queue

	a.matchingRunner = matching.NewRunner(matching.Config{
		Interval:        cfg.Matching.Interval,
		FreshnessWindow: cfg.Matching.FreshnessWindow,
		MinScore:        cfg.Matching.MinScore,
	}, schedules, eventsRepo, scorer.NewComposite(embeddings), queue)

	dispatcher := digest.NewDispatcher(digest.Config{
		Concurrency:   cfg.Digest.Concurrency,
		MailerTimeout: cfg.Digest.MailerTimeout,
	}, schedules, queue, mailer)
	a.digestRunner = digest.NewRunner(dispatcher, cfg.Digest.Interval)

	a.sweeper = retention.NewSweeper(retention.Config{
		Horizon:  cfg.Retention.Horizon,
		Interval: cfg.Retention.Interval,
	}, queueRepo)

	return nil
}

// Run starts the background pipeline and the HTTP servers. It blocks
// until the main server stops.
func (a *App) Run() error {
	a.matchingRunner.Start(a.bgCtx)
	a.digestRunner.Start(a.bgCtx)
	a.sweeper.Start(a.bgCtx)

	go a.collectDBMetrics(a.bgCtx)
	go a.collectQueueMetrics(a.bgCtx)

	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Stop the pipeline first so no cycle is cut off mid-send.
	a.matchingRunner.Stop()
	a.digestRunner.Stop()
	a.sweeper.Stop()
	a.bgCancel()

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := a.queue.Stats(ctx)
			if err != nil {
				a.logger.Error("failed to get queue stats", "error", err)
				continue
			}
			matchqueue.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/queue/stats", a.queueStatsHandler)
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func (a *App) queueStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := a.queue.Stats(r.Context())
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("failed to get queue stats", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to get queue stats")
		return
	}
	httputil.JSON(w, http.StatusOK, stats)
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
