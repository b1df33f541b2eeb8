package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/joycewetu0805/wigvival/libs/auth"
	"github.com/joycewetu0805/wigvival/libs/config"
	"github.com/joycewetu0805/wigvival/libs/db"
	"github.com/joycewetu0805/wigvival/libs/httpx"
	"github.com/joycewetu0805/wigvival/libs/kafkax"
	otelx "github.com/joycewetu0805/wigvival/libs/otel"
	"github.com/joycewetu0805/wigvival/libs/runtime"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/deposit"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/expiry"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/handlers"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/metrics"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/outbox"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/reservation"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage/postgres"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port := must(config.Port("PORT", "8083"))
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL := must(config.RequiredString("DATABASE_URL"))
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(must(config.Int("DB_MAX_CONNS", 10))),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	location, err := time.LoadLocation(config.String("SALON_TIMEZONE", "UTC"))
	if err != nil {
		logger.Error("invalid SALON_TIMEZONE", "err", err)
		panic(err)
	}

	reg := metrics.NewRegistry()
	bookingMetrics := metrics.New(reg)

	outboxRepo := outbox.NewRepository()
	store := postgres.New(pool, outboxRepo, postgres.Options{
		LockTimeout: must(config.Duration("DB_LOCK_TIMEOUT", 2*time.Second)),
	})
	svc := reservation.New(store, reservation.Config{
		MaxAttempts:  must(config.Int("RESERVATION_MAX_ATTEMPTS", 3)),
		RetryInitial: must(config.Duration("RESERVATION_RETRY_INITIAL", 50*time.Millisecond)),
		RetryMax:     must(config.Duration("RESERVATION_RETRY_MAX", time.Second)),
		Location:     location,
	}, reservation.WithLogger(logger), reservation.WithRecorder(bookingMetrics))

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	sweeper := expiry.NewSweeper(svc, bookingMetrics, logger, expiry.Config{
		Schedule: config.String("EXPIRY_SCHEDULE", expiry.DefaultSchedule),
		TTL:      must(config.Duration("PENDING_DEPOSIT_TTL", expiry.DefaultTTL)),
	})
	if err := sweeper.Start(ctx); err != nil {
		logger.Error("expiry scheduler failed to start", "err", err)
		panic(err)
	}
	defer sweeper.Stop()

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}

	perMinute := must(config.Int("RATE_LIMIT_PER_MINUTE", 30))
	var writeLimit httpx.Middleware
	if redisURL := strings.TrimSpace(config.String("REDIS_URL", "")); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			panic(err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		writeLimit = httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, service+":appointments").
			Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	} else {
		writeLimit = httpx.NewRateLimiter(perMinute, time.Minute).Middleware()
	}

	adminSecret := config.String("ADMIN_JWT_SECRET", "")
	if adminSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes disabled")
	}

	var provider deposit.Provider
	if key := strings.TrimSpace(config.String("STRIPE_SECRET_KEY", "")); key != "" {
		provider = deposit.NewStripeProvider(key)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; deposit payments disabled")
	}
	deposits := deposit.NewService(svc, store, provider, deposit.Config{
		Percentage: must(config.Int("DEPOSIT_PERCENTAGE", 30)),
		Currency:   config.String("DEPOSIT_CURRENCY", "usd"),
	})
	toleranceSeconds := must(config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300))

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", metrics.Handler(reg))
	handlers.NewBookingHandler(svc, logger).Register(mux, auth.RequireRole(adminSecret, "admin"), writeLimit)
	deposit.NewHandler(deposits, svc, logger, deposit.HandlerConfig{
		WebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		WebhookTolerance: time.Duration(toleranceSeconds) * time.Second,
		Metrics:          bookingMetrics,
	}).Register(mux)

	httpHandler := httpx.Chain(httpx.RecordRoute(mux),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(must(config.Duration("HTTP_HANDLER_TIMEOUT", 15*time.Second))),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
