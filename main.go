// Newsdesk ingests items from polled content feeds, verifies them, turns the
// accepted ones into bilingual posts, and routes them to a human moderation
// gate.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/run"
	"github.com/sethvargo/go-envconfig"
	_ "golang.org/x/crypto/x509roots/fallback"
	_ "modernc.org/sqlite"

	"newsdesk/internal/classifier"
	"newsdesk/internal/feed"
	"newsdesk/internal/fetch"
	"newsdesk/internal/migrations"
	"newsdesk/internal/moderation"
	"newsdesk/internal/notify"
	"newsdesk/internal/pipeline"
	"newsdesk/internal/poller"
	"newsdesk/internal/server"
	"newsdesk/internal/sqlite"
	"newsdesk/internal/transform"
	"newsdesk/logger"
)

type config struct {
	Port     int    `env:"PORT, default=4444"`
	Database string `env:"DATABASE, required"`

	TelegramToken    string  `env:"TELEGRAM_TOKEN, required"`
	ModerationChatID int64   `env:"MODERATION_CHAT_ID, required"`
	AdminChatIDs     []int64 `env:"ADMIN_CHAT_IDS, required"`
	CallbackSecret   string  `env:"CALLBACK_SECRET, required"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY, required"`

	PollInterval     time.Duration `env:"POLL_INTERVAL, default=2m"`
	SeenCacheSize    int           `env:"SEEN_CACHE_SIZE, default=4096"`
	MaxFetchAttempts int           `env:"MAX_FETCH_ATTEMPTS, default=3"`
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT, default=15s"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	// Determine which logger format to use
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if cfg.LoggerFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	l := slog.New(logger.NewContextHandler(handler))
	slog.SetDefault(l)

	if err := runApp(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func runApp(ctx context.Context, cfg config) error {
	slog.Info("running", "database", cfg.Database, "port", cfg.Port, "interval", cfg.PollInterval)

	// Connect to the db
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL", cfg.Database))
	if err != nil {
		return fmt.Errorf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Migrate, always
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error migrating: %s", err)
	}

	repo := sqlite.New(dbx)
	notifier := notify.New(cfg.TelegramToken, cfg.ModerationChatID, cfg.AdminChatIDs)
	claude := classifier.New(classifier.Config{APIKey: cfg.AnthropicAPIKey})

	checks := pipeline.New(repo, claude, notifier)
	stage := transform.New(claude)
	handoff := moderation.NewHandoff(repo, notifier)

	p, err := poller.New(poller.Config{
		Interval:         cfg.PollInterval,
		CacheSize:        cfg.SeenCacheSize,
		MaxFetchAttempts: cfg.MaxFetchAttempts,
	}, repo, feed.NewClient(), fetch.NewClient(cfg.FetchTimeout), checks, stage, handoff, notifier)
	if err != nil {
		return fmt.Errorf("error creating poller: %s", err)
	}

	srvr := server.New(server.Config{
		Port:   cfg.Port,
		Secret: cfg.CallbackSecret,
	}, moderation.NewResolver(repo))

	var g run.Group
	{
		// The ingestion loop
		pollCtx, pollCancel := context.WithCancel(ctx)
		g.Add(func() error {
			if err := p.Run(pollCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("error running poller: %s", err)
			}
			return nil
		}, func(error) {
			pollCancel()
		})
	}
	{
		// The moderation callback server
		g.Add(func() error {
			if err := srvr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("error listening: %s", err)
			}
			return nil
		}, func(error) {
			downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := srvr.Shutdown(downCtx); err != nil {
				slog.Error("error shutting down server", "error", err)
			}
		})
	}
	g.Add(run.SignalHandler(ctx, os.Interrupt))

	err = g.Run()
	sigErr := &run.SignalError{}
	if errors.As(err, sigErr) || errors.Is(err, context.Canceled) {
		slog.Info("shutting down", "reason", err)
		return nil
	}

	return err
}
