package extractor

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-engine/ipc"
	"news-engine/models"
	"news-engine/ratelimit"
	"news-engine/registry"
)

type fakePublisher struct {
	mu     sync.Mutex
	accept bool
	keys   []string
}

func (f *fakePublisher) Publish(key string, value any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.accept {
		return false
	}
	f.keys = append(f.keys, key)
	return true
}

func (f *fakePublisher) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

type fakeSink struct {
	mu      sync.Mutex
	records []models.ArticleRecord
}

func (f *fakeSink) Append(r models.ArticleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return nil
}

func (f *fakeSink) appended() []models.ArticleRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ArticleRecord(nil), f.records...)
}

func startDispatcher(t *testing.T, srv *httptest.Server, pub *fakePublisher, sink *fakeSink) (*Dispatcher, *ipc.PushSocket, *models.Source) {
	t.Helper()

	src := testSource(srv)
	reg := registry.New([]*models.Source{src})
	scraper := NewScraper(srv.Client(), ratelimit.NewHostRateLimiter(time.Millisecond))

	d, err := NewDispatcher(Config{
		ListenAddr:  "127.0.0.1:0",
		RecvTimeout: 50 * time.Millisecond,
	}, reg, scraper, pub, sink, slog.Default())
	require.NoError(t, err)
	d.Start()
	t.Cleanup(d.Stop)

	push, err := ipc.DialPush(d.Addr(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { push.Close() })
	return d, push, src
}

func TestDispatcherPublishesExtractedArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	pub := &fakePublisher{accept: true}
	sink := &fakeSink{}
	_, push, src := startDispatcher(t, srv, pub, sink)

	articleURL := srv.URL + "/story"
	require.NoError(t, push.Send(models.ExtractionRequest{
		SourceID: src.ID, Name: src.Name, URL: articleURL,
	}, time.Second))

	require.Eventually(t, func() bool {
		return len(pub.published()) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, articleURL, pub.published()[0])
	assert.Empty(t, sink.appended())
}

func TestDispatcherFallsBackToSink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	pub := &fakePublisher{accept: false}
	sink := &fakeSink{}
	_, push, src := startDispatcher(t, srv, pub, sink)

	require.NoError(t, push.Send(models.ExtractionRequest{
		SourceID: src.ID, Name: src.Name, URL: srv.URL + "/story",
	}, time.Second))

	require.Eventually(t, func() bool {
		return len(sink.appended()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	rec := sink.appended()[0]
	assert.Equal(t, "Breaking News Story", rec.Title)
	assert.Equal(t, "Jane Writer", rec.Author)
	assert.Empty(t, pub.published())
}

func TestDispatcherDiscardsUnknownSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unknown source must not trigger a fetch")
	}))
	defer srv.Close()

	pub := &fakePublisher{accept: true}
	sink := &fakeSink{}
	_, push, _ := startDispatcher(t, srv, pub, sink)

	require.NoError(t, push.Send(models.ExtractionRequest{
		SourceID: "ghost", Name: "Ghost", URL: srv.URL + "/story",
	}, time.Second))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, pub.published())
	assert.Empty(t, sink.appended())
}

func TestDispatcherDiscardsForeignDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	pub := &fakePublisher{accept: true}
	sink := &fakeSink{}
	_, push, src := startDispatcher(t, srv, pub, sink)

	require.NoError(t, push.Send(models.ExtractionRequest{
		SourceID: src.ID, Name: src.Name, URL: "https://elsewhere.example.net/story",
	}, time.Second))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, pub.published())
	assert.Empty(t, sink.appended())
}

func TestDispatcherSurvivesMalformedFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	pub := &fakePublisher{accept: true}
	sink := &fakeSink{}
	_, push, src := startDispatcher(t, srv, pub, sink)

	require.NoError(t, push.Send("not an extraction request", time.Second))
	require.NoError(t, push.Send(models.ExtractionRequest{
		SourceID: src.ID, Name: src.Name, URL: srv.URL + "/story",
	}, time.Second))

	require.Eventually(t, func() bool {
		return len(pub.published()) == 1
	}, 5*time.Second, 20*time.Millisecond)
}
