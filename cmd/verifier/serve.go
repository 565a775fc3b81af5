package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/agency"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/api"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/blocklist"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/config"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/database"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/detection"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/intake"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/logging"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/messaging"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/metrics"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/moderation"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/ratelimit"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/report"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verification"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/webchat"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, web chat and NATS intake",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending database migrations on start")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	// Sentry error tracking
	sentryOn := false
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "sentry init failed: %v\n", err)
		} else {
			sentryOn = true
			defer sentry.Flush(2 * time.Second)
		}
	}
	logger := logging.Setup(cfg.LogLevel, os.Stdout, sentryOn)

	// --- PostgreSQL ---
	db, err := database.Open(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()
	if migrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	// --- Redis ---
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsClient, err := messaging.NewNATSClient(natsConfig, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close()

	// --- AMQP agency hand-off ---
	var agencyNotifier report.Notifier
	if cfg.AMQPURL != "" {
		publisher, err := agency.NewPublisher(cfg.AMQPURL, cfg.AgencyQueuePrefix, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		agencyNotifier = publisher
	} else {
		logger.Warn("AMQP_URL not set, case reports will not be handed to agencies")
	}

	counters := metrics.NewCounter(rdb)
	guard := blocklist.NewGuard(blocklist.NewStore(rdb), ratelimit.NewLimiter(rdb, logger), logger)
	verifications := verification.NewStore(db)

	router := cfg.Router()
	svc, err := pipeline.NewService(detection.DefaultSet(logger), verifications, pipeline.Options{
		Router:   router,
		Timeout:  cfg.PipelineTimeout,
		Counters: counters,
		Notifier: intake.NewNotifier(natsClient),
	}, logger)
	if err != nil {
		return err
	}
	reports := report.NewService(report.NewStore(db), counters, agencyNotifier, logger)

	// --- Moderation queue monitor ---
	monitor := moderation.NewMonitor(verifications, counters, cfg.MonitorInterval, cfg.ModerationSLA, logger)
	go monitor.Run(ctx)

	// --- NATS intake ---
	consumer := intake.NewConsumer(natsClient, natsClient, svc, guard, cfg.Workers, logger)
	if err := consumer.Start(); err != nil {
		return err
	}

	// --- Web chat ---
	wcfg := webchat.DefaultConfig()
	wcfg.ListenAddr = cfg.WebChatAddr
	wcfg.MaxConnections = cfg.WebChatMaxConnections
	wcfg.TrustedProxyHops = cfg.TrustedProxyHops
	chat := webchat.NewServer(wcfg, webchat.NewHandler(svc, reports, guard, logger), guard, logger)
	if err := natsClient.SubscribeReplies(pipeline.ChannelWeb, chat.DeliverReply); err != nil {
		return err
	}

	// --- HTTP API ---
	app := api.New(api.Deps{
		Verifier: svc,
		Reports:  reports,
		Counters: counters,
		Throttle: guard,
		Blocks:   guard,
		Checks:   healthChecks(db, rdb, natsClient),
	}, api.Config{JWTSecret: cfg.JWTSecret, Sentry: sentryOn}, logger)

	errc := make(chan error, 2)
	go func() {
		logger.Info("http api listening", "addr", cfg.HTTPAddr)
		errc <- app.Listen(cfg.HTTPAddr)
	}()
	go func() { errc <- chat.Start() }()

	logger.Info("verifier started",
		"auto_reply_threshold", router.AutoReplyThreshold,
		"human_review_threshold", router.HumanReviewThreshold,
		"workers", cfg.Workers,
		"pipeline_timeout", cfg.PipelineTimeout.String())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errc:
		logger.Error("listener stopped", "error", runErr)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	consumer.Stop()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if err := chat.Shutdown(shutdownCtx); err != nil {
		logger.Error("web chat shutdown error", "error", err)
	}

	logger.Info("verifier stopped")
	return runErr
}

func healthChecks(db *sql.DB, rdb *redis.Client, nc *messaging.NATSClient) map[string]api.HealthCheck {
	return map[string]api.HealthCheck{
		"postgres": db.PingContext,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
		"nats": func(context.Context) error {
			if !nc.Conn().IsConnected() {
				return errors.New("not connected")
			}
			return nil
		},
	}
}

// quietLogger is used by offline commands that print their own output.
func quietLogger() *slog.Logger {
	return logging.Setup("error", os.Stderr, false)
}
