package forumwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/forumwatch/model"
)

// Outcome is the terminal state of one listing entry within a scan.
type Outcome string

const (
	// OutcomeNotified means a notification was sent and the topic marked posted.
	OutcomeNotified Outcome = "notified"

	// OutcomeAlreadyPosted means the topic was notified by an earlier scan.
	OutcomeAlreadyPosted Outcome = "already_posted"

	// OutcomeNotQualified means the topic is below a threshold or too old.
	OutcomeNotQualified Outcome = "not_qualified"

	// OutcomeClaimedElsewhere means an overlapping scan holds the notification lease.
	OutcomeClaimedElsewhere Outcome = "claimed_elsewhere"

	// OutcomeFailed means a step failed; the topic keeps its last committed state.
	OutcomeFailed Outcome = "failed"
)

// EntryError reports the failure of one listing entry.
type EntryError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e EntryError) Error() string {
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e EntryError) Unwrap() error {
	return e.Err
}

// ScanResult summarizes one pass over the listing page.
type ScanResult struct {
	Seen             int          // Distinct listing entries processed
	Notified         int          // Notifications sent in this scan
	AlreadyPosted    int          // Entries notified by an earlier scan
	NotQualified     int          // Entries below thresholds
	ClaimedElsewhere int          // Entries owned by an overlapping scan
	Failed           int          // Entries that hit an error
	Errors           []EntryError // Per-entry errors, in completion order
	Duration         time.Duration
}

func (r *ScanResult) record(url string, outcome Outcome, err error) {
	switch outcome {
	case OutcomeNotified:
		r.Notified++
	case OutcomeAlreadyPosted:
		r.AlreadyPosted++
	case OutcomeNotQualified:
		r.NotQualified++
	case OutcomeClaimedElsewhere:
		r.ClaimedElsewhere++
	case OutcomeFailed:
		r.Failed++
	}
	if err != nil {
		r.Errors = append(r.Errors, EntryError{URL: url, Err: err})
	}
}

// Pipeline turns a listing scrape into at most one notification per
// qualifying topic.
//
// For every listing entry it runs, in order:
//  1. Upsert the row (atomic insert-or-update)
//  2. Read the row back
//  3. Resolve the creation time from the topic page if absent
//  4. Evaluate the qualification criteria
//  5. Claim, send, and mark posted
//
// Entries are independent: a failure is recorded in the ScanResult and the
// scan continues. The store is the only synchronization point, so scans may
// overlap, within one process or across processes.
//
// Thread safety: Safe for concurrent use.
type Pipeline struct {
	listingURL  string
	repo        TopicRepository
	fetcher     PageFetcher
	extractor   Extractor
	notifier    Notifier
	criteria    Criteria
	hasCriteria bool
	logger      Logger
	concurrency int
	claimLease  time.Duration
	location    *time.Location
	now         func() time.Time
}

// NewPipeline creates a new Pipeline with the provided options.
//
// Required options:
//   - WithListingURL: board listing page
//   - WithTopicRepository: topic store
//   - WithSource: page fetcher and extractor
//   - WithNotifier: notification channel
//   - WithCriteria: qualification thresholds
//   - WithLogger: logger instance
//
// Optional options:
//   - WithConcurrency: entries processed at once (default: 1)
//   - WithClaimLease: notification lease (default: 5m)
//   - WithLocation: forum time zone (default: UTC)
//   - WithClock: time source (default: time.Now)
func NewPipeline(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		concurrency: 1,
		claimLease:  5 * time.Minute,
		location:    time.UTC,
		now:         time.Now,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply pipeline option", err)
		}
	}

	if p.listingURL == "" {
		return nil, NewError(ErrCodeConfiguration, "listing URL is required (use WithListingURL)")
	}
	if p.repo == nil {
		return nil, NewError(ErrCodeConfiguration, "TopicRepository is required (use WithTopicRepository)")
	}
	if p.fetcher == nil || p.extractor == nil {
		return nil, NewError(ErrCodeConfiguration, "PageFetcher and Extractor are required (use WithSource)")
	}
	if p.notifier == nil {
		return nil, NewError(ErrCodeConfiguration, "Notifier is required (use WithNotifier)")
	}
	if !p.hasCriteria {
		return nil, NewError(ErrCodeConfiguration, "Criteria are required (use WithCriteria)")
	}
	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}

	return p, nil
}

// Scan runs one pass over the listing page.
//
// A failure to fetch or extract the listing aborts the pass and is returned.
// Per-entry failures never abort the pass; they are counted and collected in
// the result. If ctx is cancelled, entries not yet started are skipped and
// ctx.Err() is returned together with the partial result.
func (p *Pipeline) Scan(ctx context.Context) (*ScanResult, error) {
	started := p.now()
	p.logger.Debugf("Scanning listing %s", p.listingURL)

	entries, err := p.listing(ctx)
	if err != nil {
		return nil, err
	}

	criteria := p.criteria.At(started)
	p.logger.Debugf("Age cutoff for this scan: %s", criteria.IgnoreOlder.Format(CreatedLayout))

	result := &ScanResult{Seen: len(entries)}
	var mu sync.Mutex

	workers := p.concurrency
	if workers > len(entries) {
		workers = len(entries)
	}

	jobs := make(chan model.RawTopic)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for raw := range jobs {
				outcome, err := p.processEntry(ctx, raw, started, criteria)
				p.report(raw.URL, outcome, err)

				mu.Lock()
				result.record(raw.URL, outcome, err)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, raw := range entries {
		select {
		case jobs <- raw:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	result.Duration = p.now().Sub(started)

	if pending, err := p.repo.CountPending(ctx); err != nil {
		p.logger.Warnf("Failed to count pending topics: %v", err)
	} else {
		p.logger.Debugf("Topics not yet posted: %d", pending)
	}

	p.logger.Infof("Scan finished: seen=%d, notified=%d, posted_before=%d, not_qualified=%d, claimed_elsewhere=%d, failed=%d",
		result.Seen, result.Notified, result.AlreadyPosted, result.NotQualified, result.ClaimedElsewhere, result.Failed)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// listing fetches and extracts the listing page. Rows repeated on the page
// are processed once (first occurrence wins).
func (p *Pipeline) listing(ctx context.Context) ([]model.RawTopic, error) {
	page, err := p.fetcher.Fetch(ctx, p.listingURL)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeFetch, "failed to fetch listing", err)
	}

	rows, err := p.extractor.ExtractListing(page)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeParse, "failed to extract listing", err)
	}

	seen := make(map[string]struct{}, len(rows))
	entries := make([]model.RawTopic, 0, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.URL]; dup {
			continue
		}
		seen[row.URL] = struct{}{}
		entries = append(entries, row)
	}
	return entries, nil
}

// processEntry drives one listing entry through the per-topic state machine.
// A non-nil error may accompany OutcomeNotified when the send succeeded but
// the posted flag could not be written.
func (p *Pipeline) processEntry(ctx context.Context, raw model.RawTopic, now time.Time, criteria Criteria) (Outcome, error) {
	// Seen -> Upserted
	if err := p.repo.Upsert(ctx, raw, now); err != nil {
		return OutcomeFailed, NewErrorWithCause(ErrCodeDatabase, "failed to upsert topic", err)
	}

	topic, err := p.repo.Load(ctx, raw.URL)
	if err != nil {
		return OutcomeFailed, NewErrorWithCause(ErrCodeDatabase, "failed to load topic", err)
	}

	// Posted topics are never evaluated again
	if topic.Posted {
		return OutcomeAlreadyPosted, nil
	}

	// Upserted -> CreatedResolved
	if !topic.HasCreated() {
		topic, err = p.resolveCreated(ctx, topic, now)
		if err != nil {
			return OutcomeFailed, err
		}
	}

	// CreatedResolved -> Qualified | NotQualified
	if !criteria.Qualifies(topic) {
		return OutcomeNotQualified, nil
	}

	// Qualified -> Notified
	return p.dispatch(ctx, topic)
}

// resolveCreated fetches the topic page and stores its creation time with a
// set-if-null write. When another scan stored a value first, that value is
// read back and used.
func (p *Pipeline) resolveCreated(ctx context.Context, topic model.Topic, now time.Time) (model.Topic, error) {
	page, err := p.fetcher.Fetch(ctx, topic.URL)
	if err != nil {
		return topic, NewErrorWithCause(ErrCodeFetch, "failed to fetch topic page", err)
	}

	text, err := p.extractor.ExtractCreated(page)
	if err != nil {
		return topic, NewErrorWithCause(ErrCodeParse, "failed to extract creation time", err)
	}

	created, err := ParseCreated(text, now, p.location)
	if err != nil {
		return topic, NewErrorWithCause(ErrCodeParse, "failed to parse creation time", err)
	}

	wrote, err := p.repo.SetCreated(ctx, topic.URL, created)
	if err != nil {
		return topic, NewErrorWithCause(ErrCodeDatabase, "failed to store creation time", err)
	}
	if wrote {
		topic.SetCreated(created)
		p.logger.Debugf("Resolved creation time of %s: %s", topic.URL, created.Format(CreatedLayout))
		return topic, nil
	}

	stored, err := p.repo.Load(ctx, topic.URL)
	if err != nil {
		return topic, NewErrorWithCause(ErrCodeDatabase, "failed to reload topic", err)
	}
	return stored, nil
}

// dispatch claims the topic, sends the message and marks the topic posted.
// A failed send releases the claim so the next scan retries.
func (p *Pipeline) dispatch(ctx context.Context, topic model.Topic) (Outcome, error) {
	claimed, err := p.repo.ClaimNotification(ctx, topic.URL, p.now(), p.claimLease)
	if err != nil {
		return OutcomeFailed, NewErrorWithCause(ErrCodeDatabase, "failed to claim topic", err)
	}
	if !claimed {
		return OutcomeClaimedElsewhere, nil
	}

	if err := p.notifier.Send(ctx, FormatMessage(topic)); err != nil {
		if relErr := p.repo.ReleaseClaim(ctx, topic.URL); relErr != nil {
			p.logger.Warnf("Failed to release claim on %s: %v", topic.URL, relErr)
		}
		return OutcomeFailed, NewErrorWithCause(ErrCodeNotify, "failed to send notification", err)
	}

	if _, err := p.repo.MarkPosted(ctx, topic.URL); err != nil {
		return OutcomeNotified, NewErrorWithCause(ErrCodeDatabase, "notification sent but not marked posted", err)
	}
	return OutcomeNotified, nil
}

// report logs the outcome of one entry.
func (p *Pipeline) report(url string, outcome Outcome, err error) {
	switch {
	case err != nil && HasCode(err, ErrCodeNotify):
		p.logger.Warnf("⚠️ Notification failed, will retry next scan: url=%s, error=%v", url, err)
	case err != nil:
		p.logger.Errorf("Failed to process topic %s: %v", url, err)
	case outcome == OutcomeNotified:
		p.logger.Infof("✅ Notified: %s", url)
	case outcome == OutcomeClaimedElsewhere:
		p.logger.Debugf("Skipped %s: claimed by another scan", url)
	default:
		p.logger.Debugf("Processed %s: %s", url, outcome)
	}
}
