package forumwatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/forumwatch/model"
)

const testListingURL = "https://bitcointalk.org/index.php?board=159.0"

func topicURL(n int) string {
	return fmt.Sprintf("https://bitcointalk.org/index.php?topic=%d.0", 5500000+n)
}

// memoryRepository is an in-memory TopicRepository. Each method holds the
// lock for its whole body and applies the same guards as the SQL stores'
// conditional writes.
type memoryRepository struct {
	mu        sync.Mutex
	topics    map[string]*model.Topic
	upsertErr map[string]error
	markErr   error

	// beforeSetCreated runs inside SetCreated before the conditional write.
	beforeSetCreated func(t *model.Topic)
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		topics:    make(map[string]*model.Topic),
		upsertErr: make(map[string]error),
	}
}

func (r *memoryRepository) Upsert(_ context.Context, raw model.RawTopic, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.upsertErr[raw.URL]; err != nil {
		return err
	}
	t, ok := r.topics[raw.URL]
	if !ok {
		t = &model.Topic{URL: raw.URL}
		r.topics[raw.URL] = t
	}
	t.Title = raw.Title
	t.Replies = raw.Replies
	t.Views = raw.Views
	t.Updated = seenAt
	return nil
}

func (r *memoryRepository) Load(_ context.Context, url string) (model.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[url]
	if !ok {
		return model.Topic{}, ErrNoData
	}
	return *t, nil
}

func (r *memoryRepository) SetCreated(_ context.Context, url string, created time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[url]
	if !ok {
		return false, nil
	}
	if r.beforeSetCreated != nil {
		r.beforeSetCreated(t)
	}
	return t.SetCreated(created), nil
}

func (r *memoryRepository) ClaimNotification(_ context.Context, url string, now time.Time, lease time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[url]
	if !ok {
		return false, nil
	}
	if t.Posted || (t.ClaimExpires.Valid && t.ClaimExpires.Int64 >= now.Unix()) {
		return false, nil
	}
	t.ClaimExpires = sql.NullInt64{Int64: now.Add(lease).Unix(), Valid: true}
	return true, nil
}

func (r *memoryRepository) ReleaseClaim(_ context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.topics[url]; ok && !t.Posted {
		t.ClaimExpires = sql.NullInt64{}
	}
	return nil
}

func (r *memoryRepository) MarkPosted(_ context.Context, url string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return false, r.markErr
	}
	t, ok := r.topics[url]
	if !ok {
		return false, nil
	}
	if t.Posted {
		return false, nil
	}
	t.Posted = true
	t.ClaimExpires = sql.NullInt64{}
	return true, nil
}

func (r *memoryRepository) CountPending(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.topics {
		if !t.Posted {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) get(url string) model.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.topics[url]
}

// fakeSource serves pages whose content is their own URL and extracts
// preconfigured rows and creation texts from them.
type fakeSource struct {
	mu         sync.Mutex
	listing    []model.RawTopic
	created    map[string]string
	fetchErr   map[string]error
	listingErr error
	fetches    map[string]int
}

func newFakeSource(listing ...model.RawTopic) *fakeSource {
	return &fakeSource{
		listing:  listing,
		created:  make(map[string]string),
		fetchErr: make(map[string]error),
		fetches:  make(map[string]int),
	}
}

func (s *fakeSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches[url]++
	if err := s.fetchErr[url]; err != nil {
		return nil, err
	}
	return []byte(url), nil
}

func (s *fakeSource) ExtractListing(page []byte) ([]model.RawTopic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listingErr != nil {
		return nil, s.listingErr
	}
	if string(page) != testListingURL {
		return nil, errors.New("not a listing page")
	}
	return append([]model.RawTopic(nil), s.listing...), nil
}

func (s *fakeSource) ExtractCreated(page []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.created[string(page)]
	if !ok {
		return "", ErrCreatedMissing
	}
	return text, nil
}

func (s *fakeSource) setListing(rows ...model.RawTopic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listing = rows
}

func (s *fakeSource) fetchCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[url]
}

// recordingNotifier records sent messages and fails while failures > 0.
type recordingNotifier struct {
	mu       sync.Mutex
	sent     []string
	failures int
}

func (n *recordingNotifier) Send(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures > 0 {
		n.failures--
		return errors.New("chat unavailable")
	}
	n.sent = append(n.sent, text)
	return nil
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}
