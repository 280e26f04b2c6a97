package forumwatch

import (
	"fmt"
	"time"
)

// Option is a function that configures a Pipeline.
//
// Example:
//
//	pipeline, err := forumwatch.NewPipeline(
//	    forumwatch.WithListingURL("https://bitcointalk.org/index.php?board=159.0"),
//	    forumwatch.WithTopicRepository(repo),
//	    forumwatch.WithSource(client, extractor),
//	    forumwatch.WithNotifier(notifier),
//	    forumwatch.WithCriteria(criteria),
//	    forumwatch.WithLogger(logger),
//	    forumwatch.WithConcurrency(4), // optional
//	)
type Option func(*Pipeline) error

// WithListingURL sets the board listing page scanned on every pass.
//
// This is a required option for NewPipeline.
func WithListingURL(url string) Option {
	return func(p *Pipeline) error {
		if url == "" {
			return fmt.Errorf("listing url cannot be empty")
		}
		p.listingURL = url
		return nil
	}
}

// WithTopicRepository sets the topic store.
//
// This is a required option for NewPipeline.
func WithTopicRepository(repo TopicRepository) Option {
	return func(p *Pipeline) error {
		if repo == nil {
			return fmt.Errorf("topic repository cannot be nil")
		}
		p.repo = repo
		return nil
	}
}

// WithSource sets the page fetcher and the markup extractor.
// Both are required and must not be nil.
//
// This is a required option for NewPipeline.
func WithSource(fetcher PageFetcher, extractor Extractor) Option {
	return func(p *Pipeline) error {
		if fetcher == nil {
			return fmt.Errorf("fetcher cannot be nil")
		}
		if extractor == nil {
			return fmt.Errorf("extractor cannot be nil")
		}
		p.fetcher = fetcher
		p.extractor = extractor
		return nil
	}
}

// WithNotifier sets the outbound notification channel.
//
// This is a required option for NewPipeline.
func WithNotifier(notifier Notifier) Option {
	return func(p *Pipeline) error {
		if notifier == nil {
			return fmt.Errorf("notifier cannot be nil")
		}
		p.notifier = notifier
		return nil
	}
}

// WithCriteria sets the qualification thresholds. They are validated here.
//
// This is a required option for NewPipeline.
func WithCriteria(criteria Criteria) Option {
	return func(p *Pipeline) error {
		if err := criteria.Validate(); err != nil {
			return NewErrorWithCause(ErrCodeValidation, "invalid criteria", err)
		}
		p.criteria = criteria
		p.hasCriteria = true
		return nil
	}
}

// WithLogger sets the logger instance.
//
// This is a required option for NewPipeline.
// Use NoopLogger for silent operation.
func WithLogger(logger Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithConcurrency sets how many listing entries are processed at once.
// This is an optional configuration - default is 1 (sequential pass).
//
// Steps for one topic always run in order; entries are independent.
func WithConcurrency(workers int) Option {
	return func(p *Pipeline) error {
		if workers <= 0 {
			return fmt.Errorf("concurrency must be > 0, got %d", workers)
		}
		p.concurrency = workers
		return nil
	}
}

// WithClaimLease sets how long a scan owns a topic while sending its
// notification. This is an optional configuration - default is 5 minutes.
//
// A scan that crashes between send and mark leaves the lease behind; the
// topic becomes claimable again once it expires.
func WithClaimLease(lease time.Duration) Option {
	return func(p *Pipeline) error {
		if lease <= 0 {
			return fmt.Errorf("claim lease must be > 0, got %v", lease)
		}
		p.claimLease = lease
		return nil
	}
}

// WithLocation sets the time zone of the forum's creation timestamps.
// This is an optional configuration - default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(p *Pipeline) error {
		if loc == nil {
			return fmt.Errorf("location cannot be nil")
		}
		p.location = loc
		return nil
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		p.now = now
		return nil
	}
}
