package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valooran/patient-intake-system/cmd/mainconfig"
	"github.com/valooran/patient-intake-system/internal/api/router"
	"github.com/valooran/patient-intake-system/internal/app/bootstrap"
	"github.com/valooran/patient-intake-system/internal/appointments"
	"github.com/valooran/patient-intake-system/internal/archive"
	"github.com/valooran/patient-intake-system/internal/audit"
	"github.com/valooran/patient-intake-system/internal/auth"
	appconfig "github.com/valooran/patient-intake-system/internal/config"
	"github.com/valooran/patient-intake-system/internal/conversation"
	"github.com/valooran/patient-intake-system/internal/feedback"
	httpmiddleware "github.com/valooran/patient-intake-system/internal/http/middleware"
	"github.com/valooran/patient-intake-system/internal/notify"
	"github.com/valooran/patient-intake-system/internal/observability/metrics"
	"github.com/valooran/patient-intake-system/internal/webchat"
	"github.com/valooran/patient-intake-system/pkg/logging"
)

const (
	janitorInterval     = time.Minute
	limiterPruneEvery   = 5 * time.Minute
	limiterMaxIdle      = 10 * time.Minute
	shutdownGracePeriod = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting patient intake API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
		"session_backend", cfg.SessionBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer app.close()
	app.startBackground(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

type application struct {
	handler  http.Handler
	sessions bootstrap.Sessions
	limiter  *httpmiddleware.RateLimiter
	closers  []func()
}

func (a *application) startBackground(ctx context.Context) {
	if a.sessions.Memory != nil {
		go a.sessions.Memory.RunJanitor(ctx, janitorInterval)
	}
	if a.limiter != nil {
		go a.limiter.RunPruner(ctx, limiterPruneEvery, limiterMaxIdle)
	}
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// setupMetrics builds the registry served at /metrics.
func setupMetrics() (http.Handler, *metrics.ConversationMetrics, *metrics.AppointmentMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return handler, metrics.NewConversationMetrics(reg), metrics.NewAppointmentMetrics(reg)
}

func needsAWS(cfg *appconfig.Config) bool {
	return cfg.LLMProvider == bootstrap.ProviderBedrock ||
		cfg.TranscriptArchiveBucket != "" ||
		cfg.SESFromEmail != ""
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*application, error) {
	app := &application{}
	metricsHandler, convMetrics, apptMetrics := setupMetrics()

	var awsCfg *aws.Config
	if needsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = &loaded
	}

	llm, err := bootstrap.BuildLLM(ctx, cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() { _ = llm.Close() })
	logger.Info("LLM client ready", "provider", llm.Provider, "model", llm.Model)

	var sink conversation.EvictionSink
	if cfg.TranscriptArchiveBucket != "" && awsCfg != nil {
		sink = archive.NewTranscriptArchive(s3.NewFromConfig(*awsCfg), cfg.TranscriptArchiveBucket, logger)
		logger.Info("transcript archive enabled", "bucket", cfg.TranscriptArchiveBucket)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, cfg.UsesRedisSessions())
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
	}
	app.sessions = bootstrap.BuildSessionStore(cfg, redisClient, convMetrics, sink, logger)

	engineOpts := []conversation.EngineOption{
		conversation.WithProvider(llm.Provider),
		conversation.WithModel(llm.Model),
		conversation.WithMaxTokens(int32(cfg.LLMMaxTokens)),
		conversation.WithTemperature(float32(cfg.LLMTemperature)),
		conversation.WithTimeout(cfg.LLMTimeout),
		conversation.WithMetrics(convMetrics),
	}
	if app.sessions.Locker != nil {
		engineOpts = append(engineOpts, conversation.WithTurnLocker(app.sessions.Locker))
	}
	engine := conversation.NewEngine(llm.Client, app.sessions.Store, logger, engineOpts...)

	var apptRepo appointments.Repository = appointments.NewInMemoryRepository()
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		apptRepo = appointments.NewPostgresRepository(pool)
		app.closers = append(app.closers, pool.Close)
	} else {
		logger.Warn("DATABASE_URL not set; appointments are kept in memory")
	}

	var feedbackRepo feedback.Repository = feedback.NewInMemoryRepository()
	apptOpts := []appointments.ServiceOption{appointments.WithMetrics(apptMetrics)}
	sqlDB, err := bootstrap.BuildSQLDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if sqlDB != nil {
		feedbackRepo = feedback.NewPostgresRepository(sqlDB)
		apptOpts = append(apptOpts, appointments.WithListener(audit.NewStore(sqlDB)))
		app.closers = append(app.closers, func() { _ = sqlDB.Close() })
	}

	var sesClient *sesv2.Client
	if awsCfg != nil && cfg.SESFromEmail != "" {
		sesClient = sesv2.NewFromConfig(*awsCfg)
	}
	notifier := notify.NewService(bootstrap.BuildEmailSender(cfg, sesClient, logger), cfg.AdminNotifyEmail, logger)
	apptOpts = append(apptOpts, appointments.WithListener(notifier))

	apptService := appointments.NewService(apptRepo, logger, apptOpts...)
	feedbackService := feedback.NewService(feedbackRepo, logger)

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set; every authenticated route will reject requests")
	}
	authenticate := func(token string) (auth.Identity, error) {
		return httpmiddleware.ParseToken(cfg.JWTSecret, token)
	}
	app.limiter = httpmiddleware.NewRateLimiter(cfg.ChatRatePerSec, cfg.ChatRateBurst)
	webChat := webchat.NewHandler(engine, authenticate, logger,
		webchat.WithTurnLimiter(app.limiter),
		webchat.WithMetrics(convMetrics),
	)

	cors := httpmiddleware.CORSPolicy{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: cfg.CORSAllowedMethods,
		AllowedHeaders: cfg.CORSAllowedHeaders,
		MaxAge:         cfg.CORSMaxAge,
	}

	app.handler = router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(engine, logger),
		AppointmentsHandler: appointments.NewHandler(apptService, logger),
		FeedbackHandler:     feedback.NewHandler(feedbackService, logger),
		WebChatHandler:      webChat,
		MetricsHandler:      metricsHandler,
		JWTSecret:           cfg.JWTSecret,
		CORS:                cors,
		ChatLimiter:         app.limiter,
	})
	return app, nil
}
