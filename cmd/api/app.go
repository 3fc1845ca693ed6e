package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/plaques/internal/api"
	"github.com/onnwee/plaques/internal/auth"
	"github.com/onnwee/plaques/internal/catalog"
	"github.com/onnwee/plaques/internal/config"
	"github.com/onnwee/plaques/internal/db"
	"github.com/onnwee/plaques/internal/events"
	"github.com/onnwee/plaques/internal/health"
	"github.com/onnwee/plaques/internal/image"
	"github.com/onnwee/plaques/internal/jobs"
	"github.com/onnwee/plaques/internal/middleware"
	"github.com/onnwee/plaques/internal/upload"
	"github.com/onnwee/plaques/internal/viewmodel"
	"github.com/onnwee/plaques/internal/visit"
)

// rateLimitCleanupInterval is how often expired in-memory rate limit
// windows are dropped.
const rateLimitCleanupInterval = time.Minute

// app holds the wired server and the resources it owns.
type app struct {
	handler http.Handler

	views       *viewmodel.Store
	broadcaster *events.Broadcaster
	sessions    *auth.Manager
	rateLimits  *middleware.InMemoryRateLimitStore

	logger  *slog.Logger
	closers []func() error
}

// newApp builds every component from cfg. Optional backends fall back to
// in-memory implementations when their settings are empty.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	logger.Info("catalog loaded", "plaques", cat.Len())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := middleware.NewMetrics()
	visitMetrics := visit.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	for _, r := range []interface{ Register(prometheus.Registerer) error }{httpMetrics, visitMetrics, jobMetrics} {
		if err := r.Register(reg); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	var healthCfg api.HealthHandlersConfig

	// Visit ledger
	var ledger visit.Ledger
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		if err := db.Migrate(ctx, conn, logger); err != nil {
			return nil, err
		}
		ledger = visit.NewPostgresLedger(conn, logger)
		healthCfg.DBChecker = health.NewDBChecker(conn)
		logger.Info("using postgres visit ledger")
	} else {
		ledger = visit.NewInMemoryLedger()
		logger.Warn("DATABASE_URL not set, visits are kept in memory")
	}

	// Photo storage
	var (
		store  upload.ObjectStore
		photos *api.PhotoHandlers
	)
	if cfg.R2Enabled() {
		r2, err := upload.NewR2Store(upload.R2Config{
			BucketName:      cfg.R2BucketName,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Endpoint:        cfg.R2Endpoint,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create R2 store: %w", err)
		}
		store = r2
		healthCfg.StorageChecker = r2
		logger.Info("using R2 photo storage", "bucket", r2.BucketName())
	} else {
		memStore := upload.NewInMemoryStore(fmt.Sprintf("http://localhost:%d/photos", cfg.Port))
		store = memStore
		photos = api.NewPhotoHandlers(memStore)
		logger.Warn("R2 not configured, photos are kept in memory and served from /photos/")
	}

	// Sessions and rate limiting
	var (
		revoked    auth.RevocationStore
		limitStore middleware.RateLimitStore
	)
	if cfg.RedisURL != "" {
		client, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		revoked = auth.NewRedisRevocationStore(client)
		limitStore = middleware.NewRedisRateLimitStore(client).WithMetrics(httpMetrics).WithLogger(logger)
		healthCfg.RedisChecker = health.NewRedisChecker(client)
		logger.Info("using redis for sessions and rate limits")
	} else {
		revoked = auth.NewInMemoryRevocationStore()
		a.rateLimits = middleware.NewInMemoryRateLimitStore()
		limitStore = a.rateLimits
	}

	users := auth.NewInMemoryUserStore()
	if cfg.UsersFile != "" {
		n, err := auth.LoadUsersFile(cfg.UsersFile, users)
		if err != nil {
			return nil, err
		}
		logger.Info("users loaded", "count", n)
	} else {
		logger.Warn("USERS_FILE not set, nobody can sign in")
	}
	a.sessions = auth.NewManager(users, auth.NewJWTService(cfg.JWTSecret, cfg.JWTPreviousSecret), revoked, logger)

	// View model and live events
	a.views = viewmodel.NewStore(cat, ledger, jobMetrics, logger)
	a.broadcaster = events.NewBroadcaster(logger)
	a.sessions.Subscribe(func(ev auth.SessionEvent) {
		a.broadcaster.SendToUser(ev.Session.User.ID, events.SessionChanged(string(ev.Kind)))
	})

	maxImageBytes := int64(cfg.R2MaxUploadSizeMB) * 1024 * 1024
	visits, err := visit.NewService(visit.ServiceConfig{
		Catalog:       cat,
		Ledger:        ledger,
		Store:         store,
		Sanitizer:     image.NewProcessor(image.DefaultConfig()),
		Metrics:       visitMetrics,
		Logger:        logger,
		MaxImageBytes: maxImageBytes,
		OnChange: func(ctx context.Context, plaqueID int) {
			if err := a.views.Refresh(ctx); err != nil {
				logger.Warn("view refresh after mutation degraded", "plaque_id", plaqueID, "error", err)
			}
			a.broadcaster.Broadcast(events.VisitsChanged(plaqueID))
		},
	})
	if err != nil {
		return nil, err
	}

	if err := a.views.Refresh(ctx); err != nil {
		logger.Warn("initial view refresh degraded", "error", err)
	}

	healthCfg.View = a.views
	mux := api.NewRouter(api.RouterConfig{
		Plaques: api.NewPlaqueHandlers(a.views, visits),
		Visits:  api.NewVisitHandlers(visits, a.views, maxImageBytes),
		Auth:    api.NewAuthHandlers(a.sessions),
		Events:  api.NewEventHandlers(a.broadcaster, a.sessions, cfg.CORSAllowedOrigins),
		Health:  api.NewHealthHandlers(healthCfg),
		Photos:  photos,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		LoginLimiter: middleware.RateLimiter(limitStore, middleware.RateLimitConfig{
			RequestsPerWindow: cfg.LoginRateLimitRequests,
			WindowDuration:    cfg.LoginRateLimitWindow,
		}, middleware.IPKeyFunc(), httpMetrics),
		MutationLimiter: middleware.RateLimiter(limitStore, middleware.DefaultMutationLimit(), middleware.UserKeyFunc(), httpMetrics),
	})

	// RequestID -> Tracing -> Logging -> HTTPMetrics -> CORS -> Authenticate
	var handler http.Handler = middleware.Authenticate(a.sessions)(mux)
	handler = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins))(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing(config.DefaultServiceName)(handler)
	a.handler = middleware.RequestID(handler)

	ok = true
	return a, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// runBackground starts the periodic view refresh and, for in-memory rate
// limits, the window cleanup. Both stop when ctx is cancelled.
func (a *app) runBackground(ctx context.Context, refreshInterval time.Duration) {
	go a.views.Run(ctx, refreshInterval)

	if a.rateLimits == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(rateLimitCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.rateLimits.Cleanup()
			}
		}
	}()
}

// Close releases database and redis connections.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
