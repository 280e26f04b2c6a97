package forumwatch

import (
	"context"
	"time"

	"github.com/coregx/forumwatch/model"
)

// TopicRepository defines the persistence interface for observed topics.
//
// Every write is a single atomic statement on one row. The pipeline relies on
// the store, not on in-process locking, to coordinate overlapping scans, so
// implementations must never emulate a conditional write with read-then-write.
type TopicRepository interface {
	// Upsert inserts the topic or refreshes title, replies, views and updated
	// of the existing row with the same URL.
	Upsert(ctx context.Context, raw model.RawTopic, seenAt time.Time) error

	// Load retrieves a topic by URL.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, url string) (model.Topic, error)

	// SetCreated stores the creation time only if none is stored yet.
	// Returns true when this call wrote the value.
	SetCreated(ctx context.Context, url string, created time.Time) (bool, error)

	// ClaimNotification takes the notification lease of an unposted topic
	// whose previous lease (if any) expired before now.
	// Returns true when the caller owns the lease until now+lease.
	ClaimNotification(ctx context.Context, url string, now time.Time, lease time.Duration) (bool, error)

	// ReleaseClaim drops the lease of an unposted topic after a failed send.
	ReleaseClaim(ctx context.Context, url string) error

	// MarkPosted flips posted to true and clears the lease.
	// Returns false when the topic was already posted.
	MarkPosted(ctx context.Context, url string) (bool, error)

	// CountPending returns the number of topics that are not yet posted.
	// Useful for the end-of-scan summary.
	CountPending(ctx context.Context) (int, error)
}
