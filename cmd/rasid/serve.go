package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/rasidhq/rasid/internal/billing"
	"github.com/rasidhq/rasid/internal/config"
	"github.com/rasidhq/rasid/internal/confirm"
	"github.com/rasidhq/rasid/internal/gateway"
	"github.com/rasidhq/rasid/internal/gateway/httpapi"
	"github.com/rasidhq/rasid/internal/gateway/telegram"
	"github.com/rasidhq/rasid/internal/interp"
	"github.com/rasidhq/rasid/internal/observability"
	"github.com/rasidhq/rasid/internal/ops"
	"github.com/rasidhq/rasid/internal/ratelimit"
	"github.com/rasidhq/rasid/internal/reminder"
	"github.com/rasidhq/rasid/internal/storage"
	goutils "github.com/jkaninda/go-utils"
)

var (
	serveConfigPath string
	servePort       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the assistant (Telegram bot, HTTP API, reminders)",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `rasid --config path` and `rasid serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&servePort, "port", "", "override HTTP API listen port (e.g. :8080)")
	}
}

// chatMessenger forwards sends to the Telegram gateway once it exists.
// Operations are registered before the gateway is constructed, so the
// binding happens late.
type chatMessenger struct {
	inner ops.Messenger
}

func (m *chatMessenger) Send(ctx context.Context, chatID int64, text string) error {
	if m.inner == nil {
		return fmt.Errorf("no chat gateway configured")
	}
	return m.inner.Send(ctx, chatID, text)
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("RASID_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if servePort != "" {
		if cfg.HTTPAPI == nil {
			cfg.HTTPAPI = &config.HTTPAPIConfig{}
		}
		cfg.HTTPAPI.ListenAddr = servePort
	}

	logger.Info("starting rasid", slog.String("config", serveConfigPath))

	// Observability (optional).
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return err
	}
	var tracer trace.Tracer
	if obs != nil && obs.Tracer != nil {
		tracer = obs.Tracer.Tracer()
	}

	// Storage.
	store, err := storage.Open(storage.Config{
		Driver: cfg.Storage.StorageDriver(),
		Path:   cfg.DatabasePath(),
		DSN:    storageDSN(cfg),
	}, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	logger.Info("database ready", slog.String("driver", store.Driver()))

	svc := billing.NewService(store.Resellers(), store.Invoices(), store.Payments(), logger)

	// Operation registry. The messenger binding is deferred until the
	// Telegram gateway exists.
	messenger := &chatMessenger{}
	registry := ops.NewRegistry()
	ops.RegisterBillingOps(registry, svc, messenger)
	if cfg.Report != nil {
		ops.RegisterReportOp(registry, ops.ReportConfig{
			DSN:     cfg.Report.DSN,
			MaxRows: cfg.Report.MaxRows,
		}, logger)
	}

	// Confirmation gateway over the registry's classification.
	var confirmMetrics *confirm.Metrics
	if obs != nil && obs.Metrics != nil {
		confirmMetrics = confirm.NewMetrics(obs.Metrics.Registry)
	}
	storeOpts := []confirm.StoreOption{confirm.WithMetrics(confirmMetrics)}
	if cfg.Confirm.MaxPending > 0 {
		storeOpts = append(storeOpts, confirm.WithMaxPending(cfg.Confirm.MaxPending))
	}
	confirmStore := confirm.NewStore(cfg.Confirm.TTL(), logger, storeOpts...)
	stopSweep := confirmStore.StartSweep(cfg.Confirm.SweepInterval())
	defer stopSweep()

	confirmGW := confirm.NewGateway(registry.Classifier(), confirm.NewRenderer(), confirmStore, logger)

	// Interpreter, instrumented when observability is on.
	interpreter, err := interp.New(interp.Config{
		APIKey:  cfg.Interpreter.APIKey,
		BaseURL: cfg.Interpreter.BaseURL,
		Model:   cfg.Interpreter.Model,
	}, registry, logger)
	if err != nil {
		return err
	}
	var ip observability.Interpreter = interpreter
	if obs != nil {
		ip = observability.InstrumentInterpreter(interpreter, obs.Metrics, tracer)
	}

	// Executor.
	executor := ops.NewExecutor(registry, logger)
	if obs != nil && obs.Metrics != nil {
		executor = executor.WithObserver(observability.NewOperationObserver(obs.Metrics))
	}

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.RateLimit.BurstSize,
	})

	// Health checks.
	var health *observability.HealthChecker
	if obs != nil {
		health = obs.Health
		health.AddCheck("database", store.Ping)
	}

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if obs != nil {
		defer obs.Shutdown(context.Background())
	}

	// Gateways.
	var gateways []gateway.Gateway

	if cfg.Telegram != nil {
		tg := telegram.New(telegram.Config{
			BotToken:     cfg.Telegram.BotToken,
			WebhookURL:   cfg.Telegram.WebhookURL,
			ListenAddr:   cfg.Telegram.ListenAddr,
			AllowedChats: cfg.Telegram.AllowedChats,
			PollTimeout:  cfg.Telegram.PollTimeout,
		}, ip, confirmGW, executor, limiter, logger)
		messenger.inner = tg
		gateways = append(gateways, tg)
		logger.Info("telegram gateway enabled", slog.Int("allowed_chats", len(cfg.Telegram.AllowedChats)))
	}

	if cfg.HTTPAPI != nil {
		apiCfg := httpapi.Config{
			ListenAddr:    cfg.HTTPAPI.ListenAddr,
			EnableDocs:    cfg.HTTPAPI.EnableDocs,
			APIKeys:       cfg.HTTPAPI.APIKeys,
			HealthChecker: health,
			Tracer:        tracer,
		}
		if obs != nil && obs.Metrics != nil {
			apiCfg.MetricsRegistry = obs.Metrics.Registry
			apiCfg.Metrics = obs.Metrics
			if cfg.Observability != nil && cfg.Observability.Metrics != nil {
				apiCfg.MetricsPath = cfg.Observability.Metrics.Path
			}
		}
		api := httpapi.NewGateway(apiCfg, ip, confirmGW, executor, svc, limiter, logger).
			WithReminderTemplates(store.ReminderTemplates())
		gateways = append(gateways, api)
		logger.Info("http api gateway enabled", slog.String("addr", cfg.HTTPAPI.ListenAddr))
	}

	if len(gateways) == 0 {
		return fmt.Errorf("no gateways enabled in config")
	}

	// Reminder scheduler (optional).
	if cfg.Reminders != nil && cfg.Reminders.Enabled {
		var obsMetrics *observability.MetricsCollector
		if obs != nil {
			obsMetrics = obs.Metrics
		}
		rem := reminder.New(store.ReminderTemplates(), svc, messenger, obsMetrics, logger, cfg.Reminders)
		if cfg.Telegram != nil && len(cfg.Telegram.AllowedChats) > 0 {
			// The first allowed chat is the owner; overdue summaries and
			// unlinked-reseller reminders land there.
			rem.WithOperatorChat(cfg.Telegram.AllowedChats[0])
		}
		cancelReminders := rem.Start(ctx)
		defer cancelReminders()
	}

	// Start all gateways in goroutines.
	errs := make(chan error, len(gateways))
	for _, gw := range gateways {
		go func(g gateway.Gateway) {
			errs <- g.Start(ctx)
		}(gw)
	}

	// Wait for signal or first gateway error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := len(gateways) - 1; i >= 0; i-- {
		if err := gateways[i].Stop(shutdownCtx); err != nil {
			logger.Error("stopping gateway", slog.String("error", err.Error()))
		}
	}

	return nil
}

// storageDSN returns the Postgres DSN when that driver is selected.
func storageDSN(cfg *config.Config) string {
	if cfg.Storage != nil {
		return cfg.Storage.DSN
	}
	return ""
}
