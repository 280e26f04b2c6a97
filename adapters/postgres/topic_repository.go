package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coregx/forumwatch"
	"github.com/coregx/forumwatch/model"
)

// Querier is the part of *pgxpool.Pool (and pgx.Tx) the repository uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	upsertSQL = `INSERT INTO forum (url, title, replies, views, updated) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (url) DO UPDATE SET title = excluded.title, replies = excluded.replies, views = excluded.views, updated = excluded.updated`
	loadSQL         = `SELECT url, title, replies, views, created, updated, posted, claim_expires FROM forum WHERE url = $1`
	setCreatedSQL   = `UPDATE forum SET created = $1 WHERE url = $2 AND created IS NULL`
	claimSQL        = `UPDATE forum SET claim_expires = $1 WHERE url = $2 AND posted = false AND (claim_expires IS NULL OR claim_expires < $3)`
	releaseSQL      = `UPDATE forum SET claim_expires = NULL WHERE url = $1 AND posted = false`
	markPostedSQL   = `UPDATE forum SET posted = true, claim_expires = NULL WHERE url = $1 AND posted = false`
	countPendingSQL = `SELECT COUNT(*) FROM forum WHERE posted = false`
)

// Open connects a pool. maxConns <= 0 keeps the default of 4.
func Open(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, forumwatch.NewErrorWithCause(forumwatch.ErrCodeConfiguration, "invalid postgres DSN", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to connect to postgres", err)
	}
	return pool, nil
}

// Migrate applies the PostgreSQL schema.
func Migrate(ctx context.Context, q Querier) error {
	statements, err := forumwatch.MigrationStatements("postgres")
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to apply migration", err)
		}
	}
	return nil
}

// TopicRepository implements forumwatch.TopicRepository using pgx.
type TopicRepository struct {
	q Querier
}

// NewTopicRepository creates a new TopicRepository.
func NewTopicRepository(q Querier) *TopicRepository {
	return &TopicRepository{q: q}
}

// Upsert inserts a topic or refreshes its mutable fields.
func (r *TopicRepository) Upsert(ctx context.Context, raw model.RawTopic, seenAt time.Time) error {
	if _, err := r.q.Exec(ctx, upsertSQL, raw.URL, raw.Title, raw.Replies, raw.Views, seenAt.UTC()); err != nil {
		return forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to upsert topic", err)
	}
	return nil
}

// Load retrieves a topic by URL.
func (r *TopicRepository) Load(ctx context.Context, url string) (model.Topic, error) {
	var (
		topic   model.Topic
		created *time.Time
		claim   *int64
	)
	err := r.q.QueryRow(ctx, loadSQL, url).Scan(
		&topic.URL, &topic.Title, &topic.Replies, &topic.Views,
		&created, &topic.Updated, &topic.Posted, &claim,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return topic, forumwatch.ErrNoData
	}
	if err != nil {
		return topic, forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to load topic", err)
	}

	if created != nil {
		topic.Created.Time, topic.Created.Valid = *created, true
	}
	if claim != nil {
		topic.ClaimExpires.Int64, topic.ClaimExpires.Valid = *claim, true
	}
	return topic, nil
}

// SetCreated stores the creation time if none is stored yet.
func (r *TopicRepository) SetCreated(ctx context.Context, url string, created time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, setCreatedSQL, created.UTC(), url)
	if err != nil {
		return false, forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to set creation time", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimNotification takes the notification lease of an unposted topic.
func (r *TopicRepository) ClaimNotification(ctx context.Context, url string, now time.Time, lease time.Duration) (bool, error) {
	tag, err := r.q.Exec(ctx, claimSQL, now.Add(lease).Unix(), url, now.Unix())
	if err != nil {
		return false, forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to claim topic", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseClaim drops the lease of an unposted topic.
func (r *TopicRepository) ReleaseClaim(ctx context.Context, url string) error {
	if _, err := r.q.Exec(ctx, releaseSQL, url); err != nil {
		return forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to release claim", err)
	}
	return nil
}

// MarkPosted flips posted to true and clears the lease.
func (r *TopicRepository) MarkPosted(ctx context.Context, url string) (bool, error) {
	tag, err := r.q.Exec(ctx, markPostedSQL, url)
	if err != nil {
		return false, forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to mark topic posted", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountPending returns the number of topics not yet posted.
func (r *TopicRepository) CountPending(ctx context.Context) (int, error) {
	var count int64
	if err := r.q.QueryRow(ctx, countPendingSQL).Scan(&count); err != nil {
		return 0, forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to count pending topics", err)
	}
	return int(count), nil
}
