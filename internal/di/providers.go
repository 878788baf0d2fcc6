package di

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Rox-Lvmaohua/qrsignature/internal/app"
	"github.com/Rox-Lvmaohua/qrsignature/internal/config"
	"github.com/Rox-Lvmaohua/qrsignature/internal/database"
	"github.com/Rox-Lvmaohua/qrsignature/internal/http/handler"
	"github.com/Rox-Lvmaohua/qrsignature/internal/http/middleware"
	"github.com/Rox-Lvmaohua/qrsignature/internal/http/router"
	"github.com/Rox-Lvmaohua/qrsignature/internal/observability"
	"github.com/Rox-Lvmaohua/qrsignature/internal/repository"
	"github.com/Rox-Lvmaohua/qrsignature/internal/security"
	"github.com/Rox-Lvmaohua/qrsignature/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(provideLogger)

var RuntimeInfraSet = wire.NewSet(provideOpenDB, provideRedis)

var RepositorySet = wire.NewSet(
	repository.NewSignSessionRepository,
	repository.NewUserSignatureRepository,
)

var SecuritySet = wire.NewSet(provideTokenCodec)

var ServiceSet = wire.NewSet(
	provideStatusCache,
	provideArchive,
	provideSignService,
)

var HTTPSet = wire.NewSet(
	handler.NewSignHandler,
	handler.NewSignatureHandler,
	provideRouterDependencies,
	provideRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

func provideLogger(cfg *config.Config) *slog.Logger {
	return observability.NewLogger(cfg.Env, cfg.LogLevel)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

func provideRedis(cfg *config.Config) redis.UniversalClient {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

func provideTokenCodec(cfg *config.Config) *security.SignTokenCodec {
	return security.NewSignTokenCodec(cfg.TokenIssuer, cfg.TokenAudience, cfg.TokenSecret)
}

func provideStatusCache(cfg *config.Config, rdb redis.UniversalClient) service.StatusCacheStore {
	if rdb != nil {
		return service.NewRedisStatusCacheStore(rdb, "sign_status")
	}
	return service.NewInMemoryStatusCacheStore()
}

func provideArchive(cfg *config.Config, logger *slog.Logger) service.SignatureArchive {
	if !cfg.ArchiveEnabled() {
		return nil
	}
	archive, err := service.NewMinIOSignatureArchive(
		cfg.ArchiveEndpoint,
		cfg.ArchiveAccessKey,
		cfg.ArchiveSecretKey,
		cfg.ArchiveBucket,
		cfg.ArchiveUseSSL,
	)
	if err != nil {
		// The session row keeps the authoritative image; running without the
		// archive beats refusing to start.
		logger.Warn("signature archive disabled", "error", err)
		return nil
	}
	return archive
}

func provideSignService(
	sessions repository.SignSessionRepository,
	signatures repository.UserSignatureRepository,
	codec *security.SignTokenCodec,
	cache service.StatusCacheStore,
	archive service.SignatureArchive,
	logger *slog.Logger,
	cfg *config.Config,
) service.SignServiceInterface {
	return service.NewSignService(sessions, signatures, codec, cache, archive, logger, service.SignServiceConfig{
		BaseURL:        cfg.SignBaseURL,
		SessionTTL:     cfg.SessionTTL,
		TokenTTL:       cfg.TokenTTL,
		StatusCacheTTL: cfg.StatusCacheTTL,
		Retention:      cfg.SessionRetention,
	})
}

func provideRouterDependencies(
	logger *slog.Logger,
	signHandler *handler.SignHandler,
	signatureHandler *handler.SignatureHandler,
	codec *security.SignTokenCodec,
	db *gorm.DB,
	rdb redis.UniversalClient,
	cfg *config.Config,
) router.Dependencies {
	bypass := middleware.NewRequestBypassEvaluator(middleware.RequestBypassConfig{
		EnableInternalProbeBypass: cfg.RateLimitProbeBypass,
		TrustedMonitorCIDRs:       cfg.TrustedMonitorCIDRs,
	})

	var statusBackend, apiBackend middleware.Limiter
	if rdb != nil {
		statusBackend = middleware.NewRedisFixedWindowLimiter(rdb, "rl_status")
		apiBackend = middleware.NewRedisFixedWindowLimiter(rdb, "rl_api")
	} else {
		statusBackend = middleware.NewLocalFixedWindowLimiter()
		apiBackend = middleware.NewLocalFixedWindowLimiter()
	}

	// Status polling fails open: a limiter outage must not blind the caller
	// waiting for a signature. The mutating surface fails closed.
	statusLimiter := middleware.NewDistributedRateLimiter(
		statusBackend,
		cfg.StatusRateLimitPerMin,
		time.Minute,
		middleware.FailOpen,
		"status",
		middleware.SessionRefOrIPKeyFunc(),
	).WithBypass(bypass)
	apiLimiter := middleware.NewDistributedRateLimiter(
		apiBackend,
		cfg.APIRateLimitPerMin,
		time.Minute,
		middleware.FailClosed,
		"api",
		nil,
	).WithBypass(bypass)

	return router.Dependencies{
		Logger:           logger,
		SignHandler:      signHandler,
		SignatureHandler: signatureHandler,
		TokenCodec:       codec,
		StatusLimiter:    statusLimiter,
		APILimiter:       apiLimiter,
		DB:               db,
		Redis:            rdb,
	}
}

func provideRouter(dep router.Dependencies) *chi.Mux {
	return router.New(dep)
}

func provideHTTPServer(cfg *config.Config, mux *chi.Mux) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// MigrationRunner applies the schema without starting the HTTP surface.
type MigrationRunner struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewMigrationRunner(db *gorm.DB, logger *slog.Logger) *MigrationRunner {
	return &MigrationRunner{db: db, logger: logger}
}

func (m *MigrationRunner) Run() error {
	if err := database.Migrate(m.db); err != nil {
		return err
	}
	m.logger.Info("database migration complete")
	return nil
}
