package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/forumwatch"
	"github.com/coregx/forumwatch/model"
)

// TopicRepository implements forumwatch.TopicRepository using Relica.
type TopicRepository struct {
	db *relica.DB
}

// NewTopicRepository creates a TopicRepository on an open database.
// The driverName should be "postgres", "sqlite3", or "mysql".
func NewTopicRepository(sqlDB *sql.DB, driverName string) (*TopicRepository, error) {
	if _, err := forumwatch.Dialect(driverName); err != nil {
		return nil, err
	}
	return &TopicRepository{
		db: relica.WrapDB(sqlDB, driverName),
	}, nil
}

// Upsert inserts a topic or refreshes its mutable fields in one statement.
// Relica renders ON CONFLICT or ON DUPLICATE KEY for the dialect.
func (r *TopicRepository) Upsert(ctx context.Context, raw model.RawTopic, seenAt time.Time) error {
	_, err := r.db.Builder().
		Upsert(model.TableName, map[string]interface{}{
			"url":     raw.URL,
			"title":   raw.Title,
			"replies": raw.Replies,
			"views":   raw.Views,
			"updated": seenAt.UTC(),
		}).
		OnConflict("url").
		DoUpdate("title", "replies", "views", "updated").
		WithContext(ctx).
		Execute()

	if err != nil {
		return forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to upsert topic", err)
	}
	return nil
}

// Load retrieves a topic by URL.
func (r *TopicRepository) Load(ctx context.Context, url string) (model.Topic, error) {
	var topic model.Topic
	err := r.db.WithContext(ctx).Select("*").From(model.TableName).Where("url = ?", url).One(&topic)
	if errors.Is(err, sql.ErrNoRows) {
		return topic, forumwatch.ErrNoData
	}
	if err != nil {
		return topic, forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to load topic", err)
	}
	return topic, nil
}

// SetCreated stores the creation time if none is stored yet.
func (r *TopicRepository) SetCreated(ctx context.Context, url string, created time.Time) (bool, error) {
	wrote, err := r.updateOne(ctx,
		map[string]interface{}{
			"created": created.UTC(),
		},
		"url = ? AND created IS NULL", url)

	if err != nil {
		return false, forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to set creation time", err)
	}
	return wrote, nil
}

// ClaimNotification takes the notification lease of an unposted topic.
func (r *TopicRepository) ClaimNotification(ctx context.Context, url string, now time.Time, lease time.Duration) (bool, error) {
	claimed, err := r.updateOne(ctx,
		map[string]interface{}{
			"claim_expires": now.Add(lease).Unix(),
		},
		"url = ? AND posted = ? AND (claim_expires IS NULL OR claim_expires < ?)", url, false, now.Unix())

	if err != nil {
		return false, forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to claim topic", err)
	}
	return claimed, nil
}

// ReleaseClaim drops the lease of an unposted topic.
func (r *TopicRepository) ReleaseClaim(ctx context.Context, url string) error {
	_, err := r.db.WithContext(ctx).Update(model.TableName).
		Set(map[string]interface{}{
			"claim_expires": nil,
		}).
		Where("url = ? AND posted = ?", url, false).
		WithContext(ctx).
		Execute()

	if err != nil {
		return forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to release claim", err)
	}
	return nil
}

// MarkPosted flips posted to true and clears the lease.
func (r *TopicRepository) MarkPosted(ctx context.Context, url string) (bool, error) {
	marked, err := r.updateOne(ctx,
		map[string]interface{}{
			"posted":        true,
			"claim_expires": nil,
		},
		"url = ? AND posted = ?", url, false)

	if err != nil {
		return false, forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to mark topic posted", err)
	}
	return marked, nil
}

// CountPending returns the number of topics not yet posted.
func (r *TopicRepository) CountPending(ctx context.Context) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Select("COUNT(*)").From(model.TableName).Where("posted = ?", false).One(&count)
	if err != nil {
		return 0, forumwatch.NewErrorWithCause(forumwatch.ErrCodeDatabase, "failed to count pending topics", err)
	}
	return int(count), nil
}

// updateOne runs a guarded UPDATE and reports whether it changed the row.
// The guard is re-checked by the database, so of two racing callers at most
// one sees true.
func (r *TopicRepository) updateOne(ctx context.Context, values map[string]interface{}, where string, args ...interface{}) (bool, error) {
	res, err := r.db.WithContext(ctx).Update(model.TableName).
		Set(values).
		Where(where, args...).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
