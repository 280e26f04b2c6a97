package forumwatch

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/forumwatch/model"
)

// Cutoff resolves the age bound for a scan started at now.
type Cutoff func(now time.Time) time.Time

// Criteria is the qualification policy for notifications.
//
// A topic qualifies when all of the following hold:
//   - created is strictly after the age bound
//   - views >= MinViews
//   - replies >= MinReplies
//
// The age bound is IgnoreOlder, or Since(scan start) when Since is set.
// Use Since for relative bounds such as "30 days ago".
type Criteria struct {
	IgnoreOlder time.Time // Fixed age bound; topics created at or before it are never notified
	Since       Cutoff    // Age bound resolved per scan, overrides IgnoreOlder
	MinViews    int       // View-count floor (inclusive)
	MinReplies  int       // Reply-count floor (inclusive)
}

// Validate checks the thresholds.
func (c Criteria) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.IgnoreOlder, validation.When(c.Since == nil, validation.Required)),
		validation.Field(&c.MinViews, validation.Min(0)),
		validation.Field(&c.MinReplies, validation.Min(0)),
	)
}

// At returns the criteria in force for a scan started at now, with the age
// bound resolved.
func (c Criteria) At(now time.Time) Criteria {
	if c.Since != nil {
		c.IgnoreOlder = c.Since(now)
		c.Since = nil
	}
	return c
}

// Qualifies reports whether a resolved topic crosses every threshold.
// A topic without a creation time never qualifies; resolve it first.
// Call At first when Since is set.
func (c Criteria) Qualifies(topic model.Topic) bool {
	if !topic.HasCreated() {
		return false
	}
	return topic.Created.Time.After(c.IgnoreOlder) &&
		topic.Views >= c.MinViews &&
		topic.Replies >= c.MinReplies
}
