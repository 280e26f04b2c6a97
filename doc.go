// Package forumwatch watches a forum board listing and sends a one-time
// notification for every new topic that crosses the configured thresholds.
//
// Each scan fetches the listing page, upserts every row into a topic store,
// resolves a topic's creation time from its own page the first time it is
// seen, and notifies about qualifying topics exactly once. Scans are
// idempotent: re-running one never re-sends a notification.
//
// # Features
//
//   - Atomic insert-or-update of listing rows (one row per topic URL)
//   - Lazy, write-once resolution of the topic creation time ("Today at" aware)
//   - Static qualification criteria: cutoff date, view and reply floors
//   - At-most-once notification guarded by a store-side claim lease
//   - Per-topic failure isolation; failed sends are retried on the next scan
//   - Options Pattern constructors, pluggable Logger and Notifier
//   - Multi-Database Support: PostgreSQL (lib/pq or pgx), SQLite, MySQL
//   - Embedded, idempotent migrations per SQL dialect
//   - Cron scheduling with exponential backoff after failed scans
//
// # Quick Start
//
//	db, _ := sql.Open("postgres", dsn)
//	if err := forumwatch.ApplyMigrations(ctx, db, "postgres"); err != nil {
//	    log.Fatal(err)
//	}
//	repo, _ := relica.NewTopicRepository(db, "postgres")
//
//	pipeline, err := forumwatch.NewPipeline(
//	    forumwatch.WithListingURL(bitcointalk.DefaultListingURL),
//	    forumwatch.WithTopicRepository(repo),
//	    forumwatch.WithSource(bitcointalk.NewClient(), bitcointalk.NewExtractor()),
//	    forumwatch.WithNotifier(notifier),
//	    forumwatch.WithCriteria(forumwatch.Criteria{
//	        IgnoreOlder: cutoff,
//	        MinViews:    200,
//	        MinReplies:  10,
//	    }),
//	    forumwatch.WithLogger(logger),
//	)
//
//	result, err := pipeline.Scan(ctx)
//
// Repeat scans on a schedule with a Runner:
//
//	runner, _ := forumwatch.NewRunner(
//	    forumwatch.WithScanner(pipeline),
//	    forumwatch.WithSchedule("@every 10m"),
//	    forumwatch.WithRunnerLogger(logger),
//	)
//	runner.Run(ctx)
//
// # Topic Lifecycle
//
//	Seen -> Upserted -> CreatedResolved -> Qualified -> Claimed -> Notified
//	                                   \-> NotQualified (re-evaluated next scan)
//
// A failed send releases the claim and leaves the topic unposted. Posted
// topics are never evaluated again.
//
// # Standalone Binary
//
// cmd/forumwatch reads config.yml (overridable through environment
// variables), opens the configured store, applies migrations and either runs
// one scan or keeps scanning on schedule.cron until interrupted.
//
// # Error Handling
//
// All errors are *Error values carrying a code: FETCH_ERROR, PARSE_ERROR,
// DATABASE_ERROR, NOTIFY_ERROR, NO_DATA, VALIDATION_ERROR or
// CONFIGURATION_ERROR. Use HasCode to test any error in a chain.
//
// # Thread Safety
//
// Pipeline and Runner are safe for concurrent use. Overlapping scans, in one
// process or several, coordinate through the store only.
package forumwatch
