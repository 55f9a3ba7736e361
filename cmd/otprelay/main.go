package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/mixelka/otprelay/internal/config"
	"github.com/mixelka/otprelay/internal/database"
	"github.com/mixelka/otprelay/internal/delivery"
	"github.com/mixelka/otprelay/internal/email"
	"github.com/mixelka/otprelay/internal/envelope"
	"github.com/mixelka/otprelay/internal/formatter"
	"github.com/mixelka/otprelay/internal/metrics"
	"github.com/mixelka/otprelay/internal/notify"
	"github.com/mixelka/otprelay/internal/parser"
	"github.com/mixelka/otprelay/internal/policy"
	"github.com/mixelka/otprelay/internal/poller"
	"github.com/mixelka/otprelay/internal/registry"
	"github.com/mixelka/otprelay/internal/scheduler"
	"github.com/mixelka/otprelay/internal/source"
	"github.com/mixelka/otprelay/internal/sweeper"
	"github.com/mixelka/otprelay/internal/telegram"
	"github.com/mixelka/otprelay/internal/webhook"
	"github.com/mixelka/otprelay/pkg/models"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFile := flag.String("env-file", "", "path to an env file to load before reading the environment")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting otp relay")

	if err := run(cfg, logger); err != nil {
		logger.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("database migrations completed")

	// Metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	reg := registry.New()

	// Notification sinks
	sinks := notify.Multi{notify.NewLogSink(logger)}
	var tgBot *telegram.Bot
	if cfg.TelegramEnabled() {
		tgBot, err = telegram.NewBot(telegram.BotDeps{
			Token:     cfg.TelegramToken,
			ChatID:    cfg.TelegramChatID,
			TopicID:   cfg.TelegramTopicID,
			Pending:   reg,
			Cursors:   db,
			Formatter: formatter.NewTelegramFormatter(),
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, tgBot)
		logger.Info("telegram notifications enabled", "chat_id", cfg.TelegramChatID)
	}

	dispatcher := delivery.New(delivery.Deps{
		Sealer: envelope.New(),
		Submitter: policy.NewClient(policy.Config{
			BaseURL: cfg.PolicyAPIURL,
			Token:   cfg.PolicyAPIToken,
			Timeout: cfg.PolicyAPITimeout,
		}),
		Sink:    sinks,
		Metrics: m,
		Logger:  logger,
	})

	// Capture sources
	var (
		sources []source.Source
		enabled []string
		inbox   *source.SMSInbox
		mailbox *email.Client
	)
	if cfg.EmailEnabled() {
		server := cfg.IMAPServer
		if server == "" {
			server, err = email.NewResolver().Resolve(ctx, cfg.IMAPEmail)
			if err != nil {
				return err
			}
			logger.Info("resolved IMAP server", "server", server)
		}
		mailbox = email.NewClient(email.ClientConfig{
			Email:       cfg.IMAPEmail,
			Password:    cfg.IMAPPassword,
			Server:      server,
			Mailbox:     cfg.IMAPMailbox,
			DialTimeout: cfg.IMAPDialTimeout,
		}, parser.NewHTMLParser(), logger)
		defer mailbox.Close()
		sources = append(sources, mailbox)
		enabled = append(enabled, models.SourceEmail)
	}
	if cfg.SMSInboxEnabled {
		inbox = source.NewSMSInbox(cfg.SMSInboxCapacity)
		sources = append(sources, inbox)
		enabled = append(enabled, models.SourceSMS)
	}

	// Periodic tasks
	detector := parser.NewCodeDetector()
	tasks := make([]scheduler.Task, 0, len(sources)+1)
	for _, src := range sources {
		p := poller.New(poller.Config{
			Source:        src,
			Registry:      reg,
			Detector:      detector,
			Deliverer:     dispatcher,
			Cursors:       db,
			Metrics:       m,
			MinConfidence: cfg.MinConfidence,
			Logger:        logger,
		})
		tasks = append(tasks, scheduler.Task{
			Name:     "poll_" + p.Name(),
			Interval: cfg.PollInterval,
			Run:      p.Tick,
		})
	}
	sw := sweeper.New(reg, sinks, m, logger)
	tasks = append(tasks, scheduler.Task{
		Name:     "sweep",
		Interval: cfg.SweepInterval,
		Run:      sw.Tick,
	})

	// HTTP ingress
	handler := webhook.New(webhook.Config{
		Secret:         cfg.WebhookSecret,
		SecretHeader:   cfg.WebhookSecretHeader,
		DefaultTTL:     cfg.DefaultRequestTTL,
		EnabledSources: enabled,
	}, webhook.Deps{
		Registry: reg,
		Inbox:    inbox,
		Metrics:  m,
		Gatherer: promReg,
		Logger:   logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.New(logger, tasks...).Run(ctx)
	})

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "sources", enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if tgBot != nil {
		g.Go(func() error {
			tgBot.Start(ctx)
			return nil
		})
	}

	return g.Wait()
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
