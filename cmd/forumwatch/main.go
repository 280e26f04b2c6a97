// Package main provides the forumwatch executable: it watches a forum board
// and notifies about qualifying new topics once.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/coregx/forumwatch"
	"github.com/coregx/forumwatch/adapters/bitcointalk"
	"github.com/coregx/forumwatch/adapters/postgres"
	"github.com/coregx/forumwatch/adapters/relica"
	"github.com/coregx/forumwatch/adapters/telegram"
	"github.com/coregx/forumwatch/cmd/forumwatch/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML configuration file")
	once := flag.Bool("once", false, "run a single scan and exit, ignoring schedule.cron")
	flag.Parse()

	if err := run(*configPath, *once); err != nil {
		fmt.Fprintf(os.Stderr, "forumwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, once bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newConsoleLogger(cfg.Logging.Level)
	logger.Infof("🚀 Starting forumwatch (listing: %s)", cfg.Forum.ListingURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Infof("✅ Store ready (%s)", cfg.Database.Driver)

	loc := cfg.Forum.Location()
	since, err := forumwatch.ParseCutoff(cfg.Criteria.IgnoreOlder, loc)
	if err != nil {
		return err
	}
	logger.Infof("📝 Criteria: created after %q (now %s), views >= %d, replies >= %d",
		cfg.Criteria.IgnoreOlder, since(time.Now()).Format(forumwatch.CreatedLayout),
		cfg.Criteria.MinViews, cfg.Criteria.MinReplies)

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}

	client := bitcointalk.NewClient(
		bitcointalk.WithUserAgent(cfg.Forum.UserAgent),
		bitcointalk.WithTimeout(cfg.Forum.Timeout),
		bitcointalk.WithRateLimit(cfg.Forum.RequestsPerSecond),
		bitcointalk.WithLogger(logger),
	)

	pipeline, err := forumwatch.NewPipeline(
		forumwatch.WithListingURL(cfg.Forum.ListingURL),
		forumwatch.WithTopicRepository(repo),
		forumwatch.WithSource(client, bitcointalk.NewExtractor()),
		forumwatch.WithNotifier(notifier),
		forumwatch.WithCriteria(forumwatch.Criteria{
			Since:      since,
			MinViews:   cfg.Criteria.MinViews,
			MinReplies: cfg.Criteria.MinReplies,
		}),
		forumwatch.WithLogger(logger),
		forumwatch.WithConcurrency(cfg.Pipeline.Concurrency),
		forumwatch.WithClaimLease(cfg.Pipeline.ClaimLease),
		forumwatch.WithLocation(loc),
	)
	if err != nil {
		return err
	}

	if once || cfg.Schedule.Cron == "" {
		_, err := pipeline.Scan(ctx)
		return err
	}

	runner, err := forumwatch.NewRunner(
		forumwatch.WithScanner(pipeline),
		forumwatch.WithSchedule(cfg.Schedule.Cron),
		forumwatch.WithRunnerLogger(logger),
	)
	if err != nil {
		return err
	}

	logger.Infof("🔄 Scanning on schedule %q", cfg.Schedule.Cron)
	runner.Run(ctx)
	return nil
}

// openStore connects the configured database, applies migrations and
// returns the repository with its close function.
func openStore(ctx context.Context, db config.DatabaseConfig) (forumwatch.TopicRepository, func(), error) {
	if db.Driver == "pgx" {
		pool, err := postgres.Open(ctx, db.GetDSN(), int32(db.MaxConns))
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.NewTopicRepository(pool), pool.Close, nil
	}

	sqlDB, err := sql.Open(db.Driver, db.GetDSN())
	if err != nil {
		return nil, nil, forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to open database", err)
	}
	closeDB := func() { _ = sqlDB.Close() }

	switch {
	case db.Driver == "sqlite3":
		// one writer at a time avoids SQLITE_BUSY under concurrent scans
		sqlDB.SetMaxOpenConns(1)
	case db.MaxConns > 0:
		sqlDB.SetMaxOpenConns(db.MaxConns)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		closeDB()
		return nil, nil, forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to connect to database", err)
	}
	if err := forumwatch.ApplyMigrations(ctx, sqlDB, db.Driver); err != nil {
		closeDB()
		return nil, nil, err
	}

	repo, err := relica.NewTopicRepository(sqlDB, db.Driver)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return repo, closeDB, nil
}

// buildNotifier returns the console echo, followed by Telegram when configured.
func buildNotifier(cfg *config.Config, logger forumwatch.Logger) (forumwatch.Notifier, error) {
	echo := forumwatch.NewLoggingNotifier(logger)
	if cfg.Notifier.Kind == "log" {
		return echo, nil
	}

	bot, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.ChatID)
	if err != nil {
		return nil, err
	}
	logger.Infof("✅ Telegram bot @%s authenticated", bot.BotName())
	return forumwatch.MultiNotifier{echo, bot}, nil
}
