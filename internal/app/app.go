// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bissquit/incident-tracker/api/openapi"
	"github.com/bissquit/incident-tracker/internal/comments"
	commentspostgres "github.com/bissquit/incident-tracker/internal/comments/postgres"
	"github.com/bissquit/incident-tracker/internal/config"
	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/identity"
	"github.com/bissquit/incident-tracker/internal/identity/jwt"
	identitypostgres "github.com/bissquit/incident-tracker/internal/identity/postgres"
	"github.com/bissquit/incident-tracker/internal/incidents"
	incidentspostgres "github.com/bissquit/incident-tracker/internal/incidents/postgres"
	"github.com/bissquit/incident-tracker/internal/jobs"
	"github.com/bissquit/incident-tracker/internal/notifications"
	"github.com/bissquit/incident-tracker/internal/notifications/email"
	"github.com/bissquit/incident-tracker/internal/notifications/mattermost"
	notificationspostgres "github.com/bissquit/incident-tracker/internal/notifications/postgres"
	"github.com/bissquit/incident-tracker/internal/pkg/cache"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/bissquit/incident-tracker/internal/pkg/metrics"
	"github.com/bissquit/incident-tracker/internal/pkg/postgres"
	"github.com/bissquit/incident-tracker/internal/seed"
	"github.com/bissquit/incident-tracker/internal/version"
	"github.com/bissquit/incident-tracker/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const seedTimeout = time.Minute

//go:embed docs.html
var docsPage []byte

// App represents the application instance.
type App struct {
	config             *config.Config
	logger             *slog.Logger
	db                 *pgxpool.Pool
	cache              cache.Cache
	server             *http.Server
	metricsServer      *http.Server
	metricsCancel      context.CancelFunc
	notificationWorker *notifications.Worker
	workerCancel       context.CancelFunc
	scheduler          *jobs.Scheduler
}

// services holds the wired domain services shared by seeding and routing.
type services struct {
	tx        *postgres.TxManager
	identity  *identity.Service
	incidents *incidents.Service
	comments  *comments.Service

	incidentRepo *incidentspostgres.Repository
	commentRepo  *commentspostgres.Repository
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

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

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(migrations.FS, cfg.Database.URL); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	statsCache, err := newCache(cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		cache:         statsCache,
		metricsCancel: metricsCancel,
	}

	fail := func(err error) (*App, error) {
		_ = app.stopBackground(context.Background())
		metricsCancel()
		_ = statsCache.Close()
		db.Close()
		return nil, err
	}

	go every(metricsCtx, metricsInterval, app.recordPoolStats)

	svc, err := app.setupServices(metricsCtx)
	if err != nil {
		return fail(fmt.Errorf("setup services: %w", err))
	}

	seedCtx, seedCancel := context.WithTimeout(context.Background(), seedTimeout)
	defer seedCancel()
	if err := app.seed(seedCtx, svc); err != nil {
		return fail(fmt.Errorf("seed: %w", err))
	}

	proxies, err := httputil.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return fail(fmt.Errorf("trusted proxies: %w", err))
	}
	router := app.setupRouter(svc, proxies)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

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

// Run serves the metrics listener in the background and blocks on the API listener.
func (a *App) Run() error {
	go func() {
		a.logger.Info("metrics listener up", "addr", a.metricsServer.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics listener failed", "error", err)
		}
	}()

	a.logger.Info("api listener up", "addr", a.server.Addr, "version", version.Version)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve api: %w", err)
	}
	return nil
}

// Shutdown drains both listeners, then stops background work and closes
// the cache and the pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutdown started")
	a.metricsCancel()

	var g errgroup.Group
	for name, srv := range map[string]*http.Server{"api": a.server, "metrics": a.metricsServer} {
		g.Go(func() error {
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown %s listener: %w", name, err)
			}
			return nil
		})
	}
	errs := []error{g.Wait()}

	// In-flight requests may still enqueue notifications, so background
	// processing stops after the servers.
	errs = append(errs, a.stopBackground(ctx))

	if err := a.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	a.db.Close()

	return errors.Join(errs...)
}

// stopBackground lets the worker finish its current batch. When ctx expires
// first, in-flight sends are cancelled; their items are claimed again once
// the processing timeout passes.
func (a *App) stopBackground(ctx context.Context) error {
	if a.notificationWorker != nil {
		stopped := make(chan struct{})
		go func() {
			a.notificationWorker.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			a.logger.Warn("notification worker did not stop in time, cancelling sends")
			a.workerCancel()
			<-stopped
		}
		a.workerCancel()
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			return fmt.Errorf("stop scheduler: %w", err)
		}
	}
	return nil
}

const metricsInterval = 15 * time.Second

// every calls fn right away and then on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fn(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) recordPoolStats(context.Context) {
	metrics.RecordDBPoolMetrics(a.db)
}

func recordQueueStats(repo notifications.Repository) func(context.Context) {
	return func(ctx context.Context) {
		stats, err := repo.GetQueueStats(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("queue stats unavailable", "error", err)
			}
			return
		}
		notifications.RecordQueueStats(stats)
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// NotificationWorker returns the notification worker instance.
// Returns nil if notifications are disabled.
func (a *App) NotificationWorker() *notifications.Worker {
	return a.notificationWorker
}

// Scheduler returns the job scheduler. Returns nil if jobs are disabled.
func (a *App) Scheduler() *jobs.Scheduler {
	return a.scheduler
}

func (a *App) setupServices(ctx context.Context) (*services, error) {
	tx := postgres.NewTxManager(a.db)

	jwtAuth, err := jwt.NewAuthenticator(jwt.Config{
		PrivateKeyPath:      a.config.JWT.PrivateKeyPath,
		Issuer:              a.config.JWT.Issuer,
		AccessTokenDuration: a.config.JWT.AccessTokenDuration,
		KeyBits:             a.config.JWT.KeyBits,
	})
	if err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}
	identityService := identity.NewService(identitypostgres.NewRepository(tx), jwtAuth)

	notificationsRepo := notificationspostgres.NewRepository(a.db)
	notifier, err := a.setupNotifications(ctx, notificationsRepo)
	if err != nil {
		return nil, err
	}

	if err := a.setupJobs(notificationsRepo); err != nil {
		return nil, err
	}

	incidentRepo := incidentspostgres.NewRepository(tx)
	incidentOpts := []incidents.Option{
		incidents.WithStatsCache(a.cache, a.config.Redis.StatsTTL),
	}
	// A nil *Notifier must not reach the services as a non-nil interface.
	var commentNotifier comments.Notifier
	if notifier != nil {
		incidentOpts = append(incidentOpts, incidents.WithNotifier(notifier))
		commentNotifier = notifier
	}
	incidentService := incidents.NewService(incidentRepo, incidentOpts...)

	commentRepo := commentspostgres.NewRepository(tx)
	commentService := comments.NewService(commentRepo, incidentService, tx, commentNotifier)

	return &services{
		tx:           tx,
		identity:     identityService,
		incidents:    incidentService,
		comments:     commentService,
		incidentRepo: incidentRepo,
		commentRepo:  commentRepo,
	}, nil
}

func (a *App) setupNotifications(ctx context.Context, repo *notificationspostgres.Repository) (*notifications.Notifier, error) {
	cfg := a.config.Notifications

	slog.Info("notifications configured",
		"enabled", cfg.Enabled,
		"email_enabled", cfg.Email.Enabled,
		"mattermost_enabled", cfg.Mattermost.WebhookURL != "",
	)

	if !cfg.Enabled {
		return nil, nil
	}

	emailSender, err := email.NewSender(email.Config{
		Enabled:            cfg.Email.Enabled,
		SMTPHost:           cfg.Email.SMTPHost,
		SMTPPort:           cfg.Email.SMTPPort,
		SMTPUser:           cfg.Email.SMTPUser,
		SMTPPassword:       cfg.Email.SMTPPassword,
		FromAddress:        cfg.Email.FromAddress,
		InsecureSkipVerify: cfg.Email.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}

	if !cfg.Email.Enabled {
		slog.Warn("email sender is disabled: email notifications will not be sent")
	}

	mattermostSender := mattermost.NewSender(mattermost.Config{
		Username: cfg.Mattermost.Username,
		IconURL:  cfg.Mattermost.IconURL,
		Channel:  cfg.Mattermost.Channel,
		Timeout:  cfg.Mattermost.Timeout,
	})

	dispatcher := notifications.NewDispatcher(emailSender, mattermostSender)

	renderer, err := notifications.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create notification renderer: %w", err)
	}

	notifier := notifications.NewNotifier(repo, notifications.NotifierConfig{
		EmailEnabled:         cfg.Email.Enabled,
		MattermostWebhookURL: cfg.Mattermost.WebhookURL,
		BaseURL:              cfg.BaseURL,
		MaxAttempts:          cfg.Retry.MaxAttempts,
	})

	a.notificationWorker = notifications.NewWorker(notifications.WorkerConfig{
		BatchSize:         cfg.Worker.BatchSize,
		PollInterval:      cfg.Worker.PollInterval,
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialBackoff:    cfg.Retry.InitialBackoff,
		MaxBackoff:        cfg.Retry.MaxBackoff,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		NumWorkers:        cfg.Worker.NumWorkers,
	}, repo, dispatcher, renderer)
	// The worker outlives the metrics context so Shutdown can let in-flight
	// sends finish; stopBackground cancels it.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	a.workerCancel = workerCancel
	a.notificationWorker.Start(workerCtx)

	go every(ctx, metricsInterval, recordQueueStats(repo))

	return notifier, nil
}

func (a *App) setupJobs(cleaner jobs.QueueCleaner) error {
	if !a.config.Jobs.Enabled {
		return nil
	}

	jobsCfg := jobs.DefaultConfig()
	jobsCfg.CleanupSchedule = a.config.Jobs.CleanupSchedule
	jobsCfg.Retention = a.config.Jobs.Retention
	jobsCfg.Timezone = a.config.Jobs.Timezone

	scheduler, err := jobs.NewScheduler(jobsCfg, postgres.NewAdvisoryLocker(a.db), cleaner)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	scheduler.Start()
	a.scheduler = scheduler
	return nil
}

func (a *App) seed(ctx context.Context, svc *services) error {
	b := a.config.Bootstrap
	seeder := seed.New(seed.Config{
		AdminUsername: b.AdminUsername,
		AdminPassword: b.AdminPassword,
		DemoData:      b.DemoData,
		DemoPassword:  b.DemoPassword,
	}, svc.identity, svc.incidentRepo, svc.commentRepo, svc.tx)
	return seeder.Run(ctx)
}

func (a *App) setupRouter(svc *services, proxies httputil.TrustedProxies) *chi.Mux {
	r := chi.NewRouter()

	// Order matters: metrics see the whole request and preflights
	// are answered before logging and auth.
	r.Use(httputil.MetricsMiddleware)
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(proxies.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.config.Server.RequestTimeout))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		_, _ = w.Write(openapi.Spec)
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(docsPage)
	})

	identityHandler := identity.NewHandler(svc.identity)
	incidentsHandler := incidents.NewHandler(svc.incidents)
	commentsHandler := comments.NewHandler(svc.comments)

	var loginMiddleware []func(http.Handler) http.Handler
	if a.config.RateLimit.Enabled {
		limiter := httputil.NewIPRateLimiter(a.config.RateLimit.LoginRPS, a.config.RateLimit.LoginBurst)
		loginMiddleware = append(loginMiddleware, limiter.Middleware)
	}

	r.Route("/api/v1", func(r chi.Router) {
		identityHandler.RegisterRoutes(r, loginMiddleware...)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(svc.identity))

			identityHandler.RegisterProtectedRoutes(r)
			incidentsHandler.RegisterRoutes(r)
			commentsHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				incidentsHandler.RegisterAdminRoutes(r)
				identityHandler.RegisterAdminRoutes(r)
			})
		})
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

// readyzHandler reports 503 naming the first dependency that fails to answer.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", a.db.Ping},
		{"cache", a.cache.Ping},
	}
	for _, c := range checks {
		if err := c.ping(ctx); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "dependency", c.name, "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, c.name+" unavailable")
			return
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func newCache(cfg config.RedisConfig) (cache.Cache, error) {
	if cfg.URL == "" {
		return cache.Noop{}, nil
	}
	rc, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	slog.Info("redis stats cache enabled", "ttl", cfg.StatsTTL)
	return rc, nil
}

// initLogger builds the process logger. Unknown levels fall back to info.
func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
