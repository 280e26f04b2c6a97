package forumwatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/forumwatch/model"
)

var (
	scanClock   = time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	ignoreOlder = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

type pipelineFixture struct {
	repo     *memoryRepository
	source   *fakeSource
	notifier *recordingNotifier
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T, listing []model.RawTopic, opts ...Option) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		repo:     newMemoryRepository(),
		source:   newFakeSource(listing...),
		notifier: &recordingNotifier{},
	}

	base := []Option{
		WithListingURL(testListingURL),
		WithTopicRepository(f.repo),
		WithSource(f.source, f.source),
		WithNotifier(f.notifier),
		WithCriteria(Criteria{IgnoreOlder: ignoreOlder, MinViews: 100, MinReplies: 5}),
		WithLogger(&NoopLogger{}),
		WithClock(func() time.Time { return scanClock }),
	}
	p, err := NewPipeline(append(base, opts...)...)
	require.NoError(t, err)
	f.pipeline = p
	return f
}

func TestNewPipeline_RequiredOptions(t *testing.T) {
	repo := newMemoryRepository()
	source := newFakeSource()
	criteria := Criteria{IgnoreOlder: ignoreOlder}

	all := map[string]Option{
		"listing":  WithListingURL(testListingURL),
		"repo":     WithTopicRepository(repo),
		"source":   WithSource(source, source),
		"notifier": WithNotifier(&NoOpNotifier{}),
		"criteria": WithCriteria(criteria),
		"logger":   WithLogger(&NoopLogger{}),
	}

	for missing := range all {
		t.Run("without "+missing, func(t *testing.T) {
			var opts []Option
			for name, opt := range all {
				if name != missing {
					opts = append(opts, opt)
				}
			}
			_, err := NewPipeline(opts...)
			assert.True(t, HasCode(err, ErrCodeConfiguration), "got %v", err)
		})
	}

	t.Run("invalid options", func(t *testing.T) {
		base := make([]Option, 0, len(all))
		for _, opt := range all {
			base = append(base, opt)
		}
		for _, bad := range []Option{
			WithConcurrency(0),
			WithClaimLease(0),
			WithLocation(nil),
			WithClock(nil),
			WithCriteria(Criteria{MinViews: -1}),
		} {
			_, err := NewPipeline(append(base, bad)...)
			assert.True(t, HasCode(err, ErrCodeConfiguration))
		}
	})
}

func TestScan_NotifiesQualifyingTopicOnce(t *testing.T) {
	raw := model.RawTopic{URL: topicURL(1), Title: "[ANN] Alpha", Replies: 12, Views: 1340}
	f := newPipelineFixture(t, []model.RawTopic{raw})
	f.source.created[raw.URL] = "March 04, 2024, 02:32:10 PM"

	result, err := f.pipeline.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Seen)
	assert.Equal(t, 1, result.Notified)
	assert.Empty(t, result.Errors)

	assert.Equal(t, []string{
		"[ANN] Alpha\nreplies: 12, views: 1340, created: 2024-03-04 14:32:10\n" + raw.URL,
	}, f.notifier.messages())

	stored := f.repo.get(raw.URL)
	assert.True(t, stored.Posted)
	assert.False(t, stored.ClaimExpires.Valid)

	// Second scan never notifies again and never re-fetches the topic page
	result, err = f.pipeline.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.AlreadyPosted)
	assert.Equal(t, 0, result.Notified)
	assert.Len(t, f.notifier.messages(), 1)
	assert.Equal(t, 1, f.source.fetchCount(raw.URL))
}

func TestScan_UpsertRefreshesCounters(t *testing.T) {
	raw := model.RawTopic{URL: topicURL(1), Title: "Alpha", Replies: 1, Views: 10}
	f := newPipelineFixture(t, []model.RawTopic{raw})
	f.source.created[raw.URL] = "2024-03-04 10:00:00"

	result, err := f.pipeline.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.NotQualified)
	assert.Empty(t, f.notifier.messages())

	// The topic grows past the floors; the stored creation time is reused
	raw.Title, raw.Replies, raw.Views = "Alpha [ANN]", 5, 100
	f.source.setListing(raw)

	result, err = f.pipeline.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)
	assert.Equal(t, 1, f.source.fetchCount(raw.URL))

	stored := f.repo.get(raw.URL)
	assert.Equal(t, "Alpha [ANN]", stored.Title)
	assert.Equal(t, 5, stored.Replies)
	assert.Equal(t, 100, stored.Views)
	assert.True(t, stored.Updated.Equal(scanClock))
}

func TestScan_QualificationBoundary(t *testing.T) {
	atFloor := model.RawTopic{URL: topicURL(1), Title: "floor", Replies: 5, Views: 100}
	atCutoff := model.RawTopic{URL: topicURL(2), Title: "cutoff", Replies: 50, Views: 5000}
	tooFewViews := model.RawTopic{URL: topicURL(3), Title: "views", Replies: 50, Views: 99}

	f := newPipelineFixture(t, []model.RawTopic{atFloor, atCutoff, tooFewViews})
	f.source.created[atFloor.URL] = "2024-03-04 10:00:00"
	f.source.created[atCutoff.URL] = "2024-03-01 00:00:00"
	f.source.created[tooFewViews.URL] = "2024-03-04 10:00:00"

	result, err := f.pipeline.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)
	assert.Equal(t, 2, result.NotQualified)

	assert.True(t, f.repo.get(atFloor.URL).Posted)
	assert.False(t, f.repo.get(atCutoff.URL).Posted)
	assert.False(t, f.repo.get(tooFewViews.URL).Posted)
}

func TestScan_TodayAtUsesScanDate(t *testing.T) {
	raw := model.RawTopic{URL: topicURL(1), Title: "fresh", Replies: 5, Views: 100}
	f := newPipelineFixture(t, []model.RawTopic{raw})
	f.source.created[raw.URL] = "Today at 02:32:10 PM"

	_, err := f.pipeline.Scan(context.Background())
	require.NoError(t, err)

	stored := f.repo.get(raw.URL)
	require.True(t, stored.Created.Valid)
	assert.True(t, stored.Created.Time.Equal(time.Date(2024, 3, 5, 14, 32, 10, 0, time.UTC)))
}

func TestScan_CreatedResolvedElsewhereWins(t *testing.T) {
	raw := model.RawTopic{URL: topicURL(1), Title: "race", Replies: 5, Views: 100}
	f := newPipelineFixture(t, []model.RawTopic{raw})
	f.source.created[raw.URL] = "2024-03-04 10:00:00"

	winner := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	f.repo.beforeSetCreated = func(t *model.Topic) {
		t.SetCreated(winner)
	}

	result, err := f.pipeline.Scan(context.Background())
	require.NoError(t, err)

	// The stored (older) value is used, so the topic does not qualify
	assert.Equal(t, 1, result.NotQualified)
	assert.True(t, f.repo.get(raw.URL).Created.Time.Equal(winner))
}

func TestScan_NotifyFailureRetriedNextScan(t *testing.T) {
	raw := model.RawTopic{URL: topicURL(1), Title: "Alpha", Replies: 5, Views: 100}
	f := newPipelineFixture(t, []model.RawTopic{raw})
	f.source.created[raw.URL] = "2024-03-04 10:00:00"
	f.notifier.failures = 1

	result, err := f.pipeline.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, raw.URL, result.Errors[0].URL)
	assert.True(t, HasCode(result.Errors[0], ErrCodeNotify))

	stored := f.repo.get(raw.URL)
	assert.False(t, stored.Posted)
	assert.False(t, stored.ClaimExpires.Valid, "claim is released after a failed send")

	result, err = f.pipeline.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)
	assert.True(t, f.repo.get(raw.URL).Posted)
	assert.Len(t, f.notifier.messages(), 1)
}

func TestScan_ClaimedElsewhereIsSkipped(t *testing.T) {
	raw := model.RawTopic{URL: topicURL(1), Title: "Alpha", Replies: 5, Views: 100}
	f := newPipelineFixture(t, []model.RawTopic{raw})
	f.source.created[raw.URL] = "2024-03-04 10:00:00"

	ctx := context.Background()
	require.NoError(t, f.repo.Upsert(ctx, raw, scanClock))
	claimed, err := f.repo.ClaimNotification(ctx, raw.URL, scanClock, time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	result, err := f.pipeline.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ClaimedElsewhere)
	assert.Empty(t, f.notifier.messages())
}

func TestScan_ExpiredClaimIsTakenOver(t *testing.T) {
	raw := model.RawTopic{URL: topicURL(1), Title: "Alpha", Replies: 5, Views: 100}
	f := newPipelineFixture(t, []model.RawTopic{raw}, WithClaimLease(time.Minute))
	f.source.created[raw.URL] = "2024-03-04 10:00:00"

	ctx := context.Background()
	require.NoError(t, f.repo.Upsert(ctx, raw, scanClock))
	_, err := f.repo.ClaimNotification(ctx, raw.URL, scanClock.Add(-time.Hour), time.Minute)
	require.NoError(t, err)

	result, err := f.pipeline.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)
}

func TestScan_PartialFailureIsolated(t *testing.T) {
	tests := []struct {
		name   string
		inject func(f *pipelineFixture)
		code   string
	}{
		{
			name:   "upsert",
			inject: func(f *pipelineFixture) { f.repo.upsertErr[topicURL(3)] = errors.New("deadlock detected") },
			code:   ErrCodeDatabase,
		},
		{
			name:   "topic page fetch",
			inject: func(f *pipelineFixture) { f.source.fetchErr[topicURL(3)] = errors.New("connection reset") },
			code:   ErrCodeFetch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var listing []model.RawTopic
			for i := 1; i <= 5; i++ {
				listing = append(listing, model.RawTopic{URL: topicURL(i), Title: "t", Replies: 5, Views: 100})
			}
			f := newPipelineFixture(t, listing)
			for _, raw := range listing {
				f.source.created[raw.URL] = "2024-03-04 10:00:00"
			}
			tt.inject(f)

			result, err := f.pipeline.Scan(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 5, result.Seen)
			assert.Equal(t, 4, result.Notified)
			assert.Equal(t, 1, result.Failed)
			require.Len(t, result.Errors, 1)
			assert.Equal(t, topicURL(3), result.Errors[0].URL)
			assert.True(t, HasCode(result.Errors[0].Err, tt.code))

			for _, i := range []int{1, 2, 4, 5} {
				assert.True(t, f.repo.get(topicURL(i)).Posted)
			}
		})
	}
}

func TestScan_EntryErrorsByStep(t *testing.T) {
	upsertFails := model.RawTopic{URL: topicURL(1), Title: "a", Replies: 5, Views: 100}
	noCreated := model.RawTopic{URL: topicURL(2), Title: "b", Replies: 5, Views: 100}
	badCreated := model.RawTopic{URL: topicURL(3), Title: "c", Replies: 5, Views: 100}

	f := newPipelineFixture(t, []model.RawTopic{upsertFails, noCreated, badCreated})
	f.repo.upsertErr[upsertFails.URL] = errors.New("disk full")
	f.source.created[badCreated.URL] = "sometime last spring"

	result, err := f.pipeline.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Failed)

	codes := make(map[string]string)
	for _, e := range result.Errors {
		switch {
		case HasCode(e, ErrCodeDatabase):
			codes[e.URL] = ErrCodeDatabase
		case HasCode(e, ErrCodeParse):
			codes[e.URL] = ErrCodeParse
		}
	}
	assert.Equal(t, map[string]string{
		upsertFails.URL: ErrCodeDatabase,
		noCreated.URL:   ErrCodeParse,
		badCreated.URL:  ErrCodeParse,
	}, codes)
}

func TestScan_MarkPostedFailureStillCountsAsNotified(t *testing.T) {
	raw := model.RawTopic{URL: topicURL(1), Title: "Alpha", Replies: 5, Views: 100}
	f := newPipelineFixture(t, []model.RawTopic{raw})
	f.source.created[raw.URL] = "2024-03-04 10:00:00"
	f.repo.markErr = errors.New("connection lost")

	result, err := f.pipeline.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)
	require.Len(t, result.Errors, 1)
	assert.True(t, HasCode(result.Errors[0], ErrCodeDatabase))

	// The live claim blocks a resend until the lease expires
	f.repo.markErr = nil
	result, err = f.pipeline.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ClaimedElsewhere)
	assert.Len(t, f.notifier.messages(), 1)
}

func TestScan_ListingFailures(t *testing.T) {
	t.Run("fetch", func(t *testing.T) {
		f := newPipelineFixture(t, nil)
		f.source.fetchErr[testListingURL] = errors.New("503")

		result, err := f.pipeline.Scan(context.Background())
		assert.Nil(t, result)
		assert.True(t, HasCode(err, ErrCodeFetch))
	})

	t.Run("extract", func(t *testing.T) {
		f := newPipelineFixture(t, nil)
		f.source.listingErr = errors.New("layout changed")

		result, err := f.pipeline.Scan(context.Background())
		assert.Nil(t, result)
		assert.True(t, HasCode(err, ErrCodeParse))
	})
}

func TestScan_DuplicateRowsProcessedOnce(t *testing.T) {
	raw := model.RawTopic{URL: topicURL(1), Title: "Alpha", Replies: 5, Views: 100}
	dup := raw
	dup.Title = "Alpha (sticky)"
	f := newPipelineFixture(t, []model.RawTopic{raw, dup})
	f.source.created[raw.URL] = "2024-03-04 10:00:00"

	result, err := f.pipeline.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Seen)
	assert.Equal(t, "Alpha", f.repo.get(raw.URL).Title)
}

func TestScan_ConcurrentScansNotifyAtMostOnce(t *testing.T) {
	var listing []model.RawTopic
	for i := 1; i <= 20; i++ {
		listing = append(listing, model.RawTopic{URL: topicURL(i), Title: "t", Replies: 5, Views: 100})
	}
	f := newPipelineFixture(t, listing, WithConcurrency(4))
	for _, raw := range listing {
		f.source.created[raw.URL] = "2024-03-04 10:00:00"
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.pipeline.Scan(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sent := f.notifier.messages()
	assert.Len(t, sent, len(listing))

	seen := make(map[string]bool)
	for _, msg := range sent {
		assert.False(t, seen[msg], "duplicate notification: %s", msg)
		seen[msg] = true
	}
	for _, raw := range listing {
		assert.True(t, f.repo.get(raw.URL).Posted)
	}
}

func TestScan_Cancelled(t *testing.T) {
	raw := model.RawTopic{URL: topicURL(1), Title: "Alpha", Replies: 5, Views: 100}
	f := newPipelineFixture(t, []model.RawTopic{raw})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Scan(ctx)
	assert.Error(t, err)
	assert.Empty(t, f.notifier.messages())
}

func TestScan_RelativeCutoffMovesWithClock(t *testing.T) {
	url := topicURL(1)
	listing := []model.RawTopic{{URL: url, Title: "t", Replies: 10, Views: 50}}

	clock := scanClock
	now := func() time.Time { return clock }

	since, err := ParseCutoff("30d", time.UTC)
	require.NoError(t, err)

	f := newPipelineFixture(t, listing,
		WithCriteria(Criteria{Since: since, MinViews: 100, MinReplies: 5}),
		WithClock(now),
	)
	f.source.created[url] = "2024-02-10 10:00:00"

	// 2024-03-05: cutoff is 2024-02-04, topic is recent but below the view floor
	result, err := f.pipeline.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.NotQualified)

	// 2024-03-20: views cross the floor, but the cutoff has moved to 2024-02-19
	clock = scanClock.AddDate(0, 0, 15)
	f.source.setListing(model.RawTopic{URL: url, Title: "t", Replies: 10, Views: 500})

	result, err = f.pipeline.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.NotQualified)
	assert.Equal(t, 0, result.Notified)
	assert.Empty(t, f.notifier.messages())
	assert.False(t, f.repo.get(url).Posted)
}
