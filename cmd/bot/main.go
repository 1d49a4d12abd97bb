package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/secondmind/notify/internal/api"
	"github.com/secondmind/notify/internal/briefing"
	"github.com/secondmind/notify/internal/circuitbreaker"
	"github.com/secondmind/notify/internal/config"
	"github.com/secondmind/notify/internal/db"
	"github.com/secondmind/notify/internal/events"
	"github.com/secondmind/notify/internal/metrics"
	"github.com/secondmind/notify/internal/observ"
	"github.com/secondmind/notify/internal/redis"
	"github.com/secondmind/notify/internal/scheduler"
	"github.com/secondmind/notify/internal/sender"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting secondmind notify",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	// Redis is optional; without it the API runs with idempotency and
	// rate limiting disabled.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var idempotencyService *redis.IdempotencyService
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		idempotencyService = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  60,
			Window: 1 * time.Minute,
		})
		defer redisClient.Close()
	}

	multiSender, err := buildSenders(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Delivery event feed is optional
	var producer *events.Producer
	if cfg.EventsQueueURL != "" {
		producer, err = events.NewProducer(ctx, events.Config{
			Region:   cfg.AWSRegion,
			QueueURL: cfg.EventsQueueURL,
		}, logger)
		if err != nil {
			logger.Warn("events producer unavailable, delivery events disabled",
				zap.Error(err),
			)
			producer = nil
		}
	}

	var eventPublisher scheduler.EventPublisher
	if producer != nil {
		eventPublisher = producer
	}

	sched := scheduler.New(scheduler.Config{
		PollInterval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
		Grace:        time.Duration(cfg.PollGraceSeconds) * time.Second,
		TimerHorizon: time.Duration(cfg.TimerHorizonSeconds) * time.Second,
		PollBatch:    cfg.PollBatchSize,
		StoreTimeout: time.Duration(cfg.StoreTimeoutSeconds) * time.Second,
	}, repo, multiSender, eventPublisher, logger)

	generator, err := briefing.New(briefing.Config{
		MorningTime:       cfg.MorningBriefTime,
		EveningTime:       cfg.EveningSummaryTime,
		Timezone:          cfg.BriefingTimezone,
		ResurfaceInterval: time.Duration(cfg.ResurfaceIntervalHours) * time.Hour,
		WeatherAPIKey:     cfg.WeatherAPIKey,
	}, repo, sched, logger)
	if err != nil {
		return fmt.Errorf("failed to create briefing generator: %w", err)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	go sched.Start(bgCtx)
	go generator.Start(bgCtx)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	handler := api.NewHandler(logger, sched, repo, idempotencyService)

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.UserKeyFunc))

		r.Post("/reminders", handler.CreateReminder)
		r.Get("/notifications", handler.ListNotifications)
		r.Get("/notifications/{id}", handler.GetNotification)
		r.Post("/notifications/{id}/cancel", handler.CancelNotification)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		bgCancel()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

// buildSenders assembles the delivery channels: Telegram behind a circuit
// breaker as the primary, SES email and SNS SMS when available.
func buildSenders(ctx context.Context, cfg *config.Config, logger *zap.Logger) (sender.Sender, error) {
	var senders []sender.Sender

	if cfg.TelegramBotToken != "" {
		telegram := sender.NewTelegramSender(sender.TelegramConfig{
			BotToken: cfg.TelegramBotToken,
		}, logger)
		breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("telegram"), logger)
		senders = append(senders, circuitbreaker.NewProtectedSender(telegram, breaker, logger))
	} else {
		logger.Warn("telegram bot token not set, telegram delivery disabled")
	}

	sesSender, err := sender.NewSESSender(ctx, sender.SESConfig{
		Region:    cfg.AWSRegion,
		FromEmail: cfg.SESFromEmail,
	}, logger)
	if err != nil {
		logger.Warn("SES sender unavailable, email notifications disabled", zap.Error(err))
	} else {
		senders = append(senders, sesSender)
	}

	snsSender, err := sender.NewSNSSender(ctx, sender.SNSConfig{
		Region: cfg.AWSRegion,
	}, logger)
	if err != nil {
		logger.Warn("SNS sender unavailable, SMS notifications disabled", zap.Error(err))
	} else {
		senders = append(senders, snsSender)
	}

	if len(senders) == 0 {
		logger.Warn("no delivery channels configured, falling back to log sender")
		senders = append(senders, sender.NewLogSender(logger))
	}

	logger.Info("initialized multi-channel delivery",
		zap.Int("channels", len(senders)),
	)

	return sender.NewMultiSender(logger, senders...), nil
}
