package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/carebook/carebook/libs/auth"
	"github.com/carebook/carebook/libs/db"
	"github.com/carebook/carebook/libs/grpcx"
	"github.com/carebook/carebook/libs/httpx"
	"github.com/carebook/carebook/libs/kafkax"
	otelx "github.com/carebook/carebook/libs/otel"
	"github.com/carebook/carebook/libs/runtime"
	"github.com/carebook/carebook/services/schedule-service/internal/consumer"
	"github.com/carebook/carebook/services/schedule-service/internal/gate"
	"github.com/carebook/carebook/services/schedule-service/internal/handlers"
	"github.com/carebook/carebook/services/schedule-service/internal/inbox"
	"github.com/carebook/carebook/services/schedule-service/internal/metrics"
	"github.com/carebook/carebook/services/schedule-service/internal/outbox"
	"github.com/carebook/carebook/services/schedule-service/internal/slots"
	"github.com/carebook/carebook/services/schedule-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfg, err := loadSettings()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.Service)
	if err := run(cfg, logger); err != nil {
		logger.Error("schedule service stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg settings, logger *slog.Logger) error {
	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, cfg.Tracing)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := runtime.ShutdownContext(5 * time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{})
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := storage.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		logger.Info("schema ensured")
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var revoked auth.RevocationList
	var rateLimit httpx.Middleware
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		revoked = auth.NewRedisRevocationList(rdb, "revoked")
		rl := httpx.NewRedisRateLimiter(rdb, cfg.RatePerMinute, time.Minute, "rl:schedule", gate.RateLimitKey)
		rateLimit = rl.Middleware(logger, true)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("redis enabled", "addr", cfg.RedisAddr)
	} else {
		rateLimit = httpx.NewRateLimiter(cfg.RatePerMinute, time.Minute, gate.RateLimitKey).Middleware()
		logger.Warn("redis not configured: token revocation disabled, rate limiting in-memory")
	}

	outboxRepo := outbox.NewRepository()
	if len(cfg.KafkaBrokers) > 0 {
		writer := kafkax.NewWriter(cfg.KafkaBrokers)
		defer func() { _ = writer.Close() }()
		go outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{}).Run(ctx)

		reader := kafkax.NewReader(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.DirectoryTopic)
		directory := consumer.DirectoryHandler(consumer.NewDirectoryStore(pool, inbox.NewRepository(), storage.NewProviderRepository()), logger)
		go consumer.New(reader, logger, directory).Run(ctx)

		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	} else {
		logger.Warn("kafka not configured: outbox publisher and directory sync disabled")
	}

	var jwks *auth.JWKSClient
	if cfg.JWKSURL != "" {
		jwks = auth.NewJWKSClient(cfg.JWKSURL, cfg.JWKSCacheTTL)
	}
	identity := gate.New(auth.NewVerifier(cfg.JWTSecret, jwks), revoked, logger)

	m := metrics.New()
	engine := slots.NewEngine(
		storage.NewSlotRepository(pool, outboxRepo),
		slots.WithDefaultDuration(cfg.SlotDuration),
		slots.WithLogger(logger),
		slots.WithObserver(m),
	)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", m.Handler())
	handlers.Register(mux, handlers.NewScheduleHandler(engine, logger), identity, rateLimit)

	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.RequestTimeout),
		// Innermost so it sees the Pattern the mux sets on the request.
		m.Middleware,
	)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(handler, cfg.Service),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger, cfg.Service)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		errCh <- grpcSrv.Serve(lis)
	}()
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	health.SetServingStatus(cfg.Service, healthpb.HealthCheckResponse_SERVING)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("server failed", "err", runErr)
	}

	health.Shutdown()
	shutdownCtx, cancel := runtime.ShutdownContext(10 * time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
	return runErr
}
