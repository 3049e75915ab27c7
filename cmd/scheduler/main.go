package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calapi "google.golang.org/api/calendar/v3"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/inboxpilot/scheduler/internal/agent"
	"github.com/inboxpilot/scheduler/internal/compose"
	"github.com/inboxpilot/scheduler/internal/config"
	"github.com/inboxpilot/scheduler/internal/email"
	"github.com/inboxpilot/scheduler/internal/ingest"
	"github.com/inboxpilot/scheduler/internal/notify"
	"github.com/inboxpilot/scheduler/internal/parser"
	"github.com/inboxpilot/scheduler/internal/server"
	"github.com/inboxpilot/scheduler/internal/store"
	"github.com/inboxpilot/scheduler/internal/token"
	"github.com/inboxpilot/scheduler/internal/workflow"
)

// renewalSweepInterval is how often all subscriptions are checked, as a
// backstop for mailboxes that receive no mail for days.
const renewalSweepInterval = 6 * time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting scheduler")

	// Connect to database
	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// OAuth app config shared by the refresher and the connect flow
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			gmailapi.GmailModifyScope,
			calapi.CalendarScope,
		},
	}

	// Token lifecycle: refresh + push-subscription renewal
	tokens := token.NewManager(
		db,
		token.NewOAuthRefresher(oauthConfig),
		email.NewWatchRenewer(cfg.PubSubTopic, logger),
		logger,
	)

	// Operator notifications (optional)
	var notifier notify.Notifier
	tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
	if err != nil {
		logger.Error("failed to create telegram notifier", "error", err)
		os.Exit(1)
	}
	if tg != nil {
		notifier = tg
		logger.Info("telegram notifications enabled")
	} else {
		notifier = notify.NopNotifier{}
	}

	// Agent service, with deterministic fallbacks when not configured
	var classifier agent.Classifier
	var synthesizer agent.SlotSynthesizer
	if cfg.AgentEnabled() {
		client := agent.NewHTTPClient(agent.Config{
			BaseURL: cfg.AgentBaseURL,
			APIKey:  cfg.AgentAPIKey,
		})
		classifier = client
		synthesizer = client
		logger.Info("agent service enabled", "base_url", cfg.AgentBaseURL)
	} else {
		classifier = agent.NewKeywordClassifier()
		synthesizer = agent.LocalSynthesizer{}
		logger.Info("agent service not configured, using local fallbacks")
	}

	orchestrator := workflow.NewOrchestrator(workflow.Deps{
		DB:          db,
		Clients:     workflow.NewGoogleClientFactory(tokens, logger),
		Classifier:  classifier,
		Synthesizer: synthesizer,
		HTMLParser:  parser.NewHTMLParser(),
		Options:     parser.NewOptionDetector(),
		Composer:    compose.NewComposer(""),
		Notifier:    notifier,
		Logger:      logger,
		SearchDays:  cfg.SlotSearchDays,
	})

	gate := ingest.NewGate(db, cfg.MaxAttempts, logger)
	runner := workflow.NewRunner(
		db,
		gate,
		tokens,
		workflow.NewGoogleClientFactory(tokens, logger),
		orchestrator,
		notifier,
		logger,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Periodic subscription renewal for all connected accounts
	go renewalSweep(ctx, db, tokens, notifier, logger)

	srv := server.New(cfg.Port, runner, cfg.AgentAPIKey, logger)
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown did not complete cleanly", "error", err)
		}
	}()

	logger.Info("scheduler is running, press Ctrl+C to stop", "port", cfg.Port)
	if err := srv.Start(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("scheduler stopped")
}

// renewalSweep renews expiring push subscriptions for every connected
// account, immediately on start and then on a fixed interval.
func renewalSweep(ctx context.Context, db *store.DB, tokens *token.Manager, notifier notify.Notifier, logger *slog.Logger) {
	sweep := func() {
		users, err := db.GetAllUsers(ctx)
		if err != nil {
			logger.Error("renewal sweep failed to list users", "error", err)
			return
		}
		for _, user := range users {
			result, err := tokens.RenewSubscriptionIfExpiring(ctx, user.ID)
			if err != nil {
				logger.Warn("subscription renewal failed", "user_id", user.ID, "error", err)
				if errors.Is(err, token.ErrNotConnected) || errors.Is(err, token.ErrRefreshFailed) {
					notifier.ReconnectRequired(ctx, user.Email, err)
				}
				continue
			}
			if result.Renewed {
				logger.Info("subscription renewed by sweep", "user_id", user.ID, "expiry", result.Expiry)
			}
		}
	}

	sweep()
	ticker := time.NewTicker(renewalSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
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
			NoColor:    false,
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
