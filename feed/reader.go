package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mmcdole/gofeed"
	gofeedrss "github.com/mmcdole/gofeed/rss"

	"news-engine/models"
)

// ErrInvalidFeedXML is returned when the response body cannot be parsed
// as RSS or Atom.
var ErrInvalidFeedXML = errors.New("feed: invalid feed XML")

// DedupCache is the per-cycle capability a poller hands to the reader.
// The reader never owns the underlying socket.
type DedupCache interface {
	// Get returns the stored value for key and whether the key exists.
	Get(key string) (value string, found bool, err error)
	// Set stores value under key.
	Set(key, value string) error
}

// Snapshot is the externally visible result of one GetFeed call.
type Snapshot struct {
	Source        *models.Source
	Feed          *gofeed.Feed
	TTLMinutes    int
	LastUpdatedAt *time.Time
	LastRefreshAt time.Time
	// HasNewSinceLastRead is true exactly when the previous fetch saw the
	// first entry's fingerprint change to one the cache had not seen. It
	// is consumed by this read.
	HasNewSinceLastRead bool
}

// Reader fetches and parses one source's feed and tracks its novelty
// state. A reader belongs to a single poller; it is not safe for
// concurrent use.
type Reader struct {
	source *models.Source
	client *http.Client
	parser *gofeed.Parser
	rss    *gofeedrss.Parser

	minRefreshInterval time.Duration
	now                func() time.Time

	feed            *gofeed.Feed
	ttlMinutes      int
	lastRefreshAt   time.Time
	lastUpdatedAt   *time.Time
	lastFingerprint uint64
	hasNew          bool
}

// ReaderOption customizes a Reader.
type ReaderOption func(*Reader)

// WithHTTPClient overrides the HTTP client used for feed fetches.
func WithHTTPClient(client *http.Client) ReaderOption {
	return func(r *Reader) { r.client = client }
}

// WithMinRefreshInterval overrides how long a fetched feed stays fresh.
func WithMinRefreshInterval(d time.Duration) ReaderOption {
	return func(r *Reader) { r.minRefreshInterval = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ReaderOption {
	return func(r *Reader) { r.now = now }
}

// NewReader creates a reader for source.
func NewReader(source *models.Source, opts ...ReaderOption) *Reader {
	r := &Reader{
		source:             source,
		client:             &http.Client{Timeout: 30 * time.Second},
		parser:             gofeed.NewParser(),
		rss:                &gofeedrss.Parser{},
		minRefreshInterval: 10 * time.Second,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Source returns the configured source.
func (r *Reader) Source() *models.Source {
	return r.source
}

// GetFeed refreshes the feed if the last fetch is older than the minimum
// refresh interval, then returns a snapshot and clears the one-shot
// novelty flag.
func (r *Reader) GetFeed(ctx context.Context, cache DedupCache) (*Snapshot, error) {
	if r.lastRefreshAt.IsZero() || r.now().Sub(r.lastRefreshAt) >= r.minRefreshInterval {
		if err := r.fetchFeed(ctx, cache); err != nil {
			return nil, err
		}
	}
	snap := &Snapshot{
		Source:              r.source,
		Feed:                r.feed,
		TTLMinutes:          r.ttlMinutes,
		LastUpdatedAt:       r.lastUpdatedAt,
		LastRefreshAt:       r.lastRefreshAt,
		HasNewSinceLastRead: r.hasNew,
	}
	r.hasNew = false
	return snap, nil
}

// fetchFeed downloads and parses the feed, then runs novelty detection on
// the first entry against the dedup cache.
func (r *Reader) fetchFeed(ctx context.Context, cache DedupCache) error {
	body, err := r.download(ctx)
	if err != nil {
		return err
	}

	parsed, err := r.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: source %s (%s): %v", ErrInvalidFeedXML, r.source.ID, r.source.Name, err)
	}
	r.feed = parsed
	r.ttlMinutes = r.feedTTL(parsed, body)

	if len(parsed.Items) > 0 {
		if err := r.detectNovelty(parsed.Items[0], cache); err != nil {
			return err
		}
	}

	r.lastRefreshAt = r.now()
	if updated := feedTimestamp(parsed); updated != nil {
		r.lastUpdatedAt = updated
	}
	return nil
}

func (r *Reader) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.source.RSSURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: fetch %s: %w", r.source.RSSURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("feed: fetch %s: status %d", r.source.RSSURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// detectNovelty latches the one-shot flag when the first entry's
// fingerprint is new both locally and in the shared cache. The flag is
// latched before the cache write, so a failed Set fails this fetch but the
// entry is still delivered on a later successful cycle; delivery is
// at-least-once.
func (r *Reader) detectNovelty(first *gofeed.Item, cache DedupCache) error {
	fp := Fingerprint(first)
	key := FingerprintKey(fp)

	_, found, err := cache.Get(key)
	if err != nil {
		return err
	}
	if found || fp == r.lastFingerprint {
		return nil
	}

	r.hasNew = true
	r.lastFingerprint = fp
	if err := cache.Set(key, r.now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return nil
}

// feedTTL extracts the RSS <ttl> hint in minutes; 0 means the feed does
// not declare one. Atom has no equivalent.
func (r *Reader) feedTTL(parsed *gofeed.Feed, body []byte) int {
	if parsed.FeedType != "rss" {
		return 0
	}
	rssFeed, err := r.rss.Parse(bytes.NewReader(body))
	if err != nil || rssFeed.TTL == "" {
		return 0
	}
	minutes, err := strconv.Atoi(rssFeed.TTL)
	if err != nil || minutes <= 0 {
		return 0
	}
	return minutes
}

// feedTimestamp picks the feed's own update time: feed published, feed
// updated, then the first entry's published/updated. gofeed has already
// parsed the textual formats; the first non-nil candidate wins.
func feedTimestamp(parsed *gofeed.Feed) *time.Time {
	candidates := []*time.Time{parsed.PublishedParsed, parsed.UpdatedParsed}
	if len(parsed.Items) > 0 {
		candidates = append(candidates, parsed.Items[0].PublishedParsed, parsed.Items[0].UpdatedParsed)
	}
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}
