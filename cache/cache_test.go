package cache

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-engine/ipc"
)

func TestTTLStoreExpiry(t *testing.T) {
	store := NewTTLStore(10*time.Second, 100)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Set("k", "v")
	v, ok := store.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	// One second before expiry the entry is still live.
	now = now.Add(9 * time.Second)
	_, ok = store.Get("k")
	assert.True(t, ok)

	// Reads must not have extended the lifetime.
	now = now.Add(time.Second)
	_, ok = store.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestTTLStoreEvictsOldestWhenFull(t *testing.T) {
	store := NewTTLStore(time.Hour, 3)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Set("a", "1")
	now = now.Add(time.Second)
	store.Set("b", "2")
	now = now.Add(time.Second)
	store.Set("c", "3")

	// Reading "a" does not promote it; it is still the eviction victim.
	_, ok := store.Get("a")
	require.True(t, ok)

	now = now.Add(time.Second)
	store.Set("d", "4")

	_, ok = store.Get("a")
	assert.False(t, ok)
	for _, k := range []string{"b", "c", "d"} {
		_, ok := store.Get(k)
		assert.True(t, ok, "expected %q to survive", k)
	}
}

func TestTTLStoreSetRefreshesInsertion(t *testing.T) {
	store := NewTTLStore(time.Hour, 2)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Set("a", "1")
	now = now.Add(time.Second)
	store.Set("b", "2")
	now = now.Add(time.Second)
	// Re-setting "a" makes it the newest entry, so "b" gets evicted next.
	store.Set("a", "updated")
	now = now.Add(time.Second)
	store.Set("c", "3")

	v, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "updated", v)
	_, ok = store.Get("b")
	assert.False(t, ok)
}

func startService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		Addr:        "127.0.0.1:0",
		TTL:         time.Hour,
		Capacity:    100,
		RecvTimeout: 50 * time.Millisecond,
	}, slog.Default())
	require.NoError(t, err)
	svc.Start()
	t.Cleanup(svc.Stop)
	return svc
}

func dialClient(t *testing.T, svc *Service) *Client {
	t.Helper()
	sock, err := ipc.DialReq(svc.Addr(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })
	return NewClient(sock, time.Second)
}

func TestServiceGetSet(t *testing.T) {
	svc := startService(t)
	client := dialClient(t, svc)

	_, found, err := client.Get("12345")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.Set("12345", "2025-01-01T12:00:00Z"))

	v, found, err := client.Get("12345")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2025-01-01T12:00:00Z", v)

	svc.Stop()
	assert.Equal(t, 1, svc.Len())
}

func TestServiceSurvivesMalformedRequest(t *testing.T) {
	svc := startService(t)

	sock, err := ipc.DialReq(svc.Addr(), time.Second)
	require.NoError(t, err)
	defer sock.Close()

	// Unknown action gets a failed reply, not a dropped connection.
	var r reply
	require.NoError(t, sock.Do(request{Action: "purge", Key: "x"}, &r, time.Second))
	assert.Equal(t, statusFailed, r.Status)
	assert.NotEmpty(t, r.Error)

	// The service keeps answering afterwards.
	client := NewClient(sock, time.Second)
	require.NoError(t, client.Set("k", "v"))
}

func TestServiceManyClients(t *testing.T) {
	svc := startService(t)

	for i := 0; i < 5; i++ {
		client := dialClient(t, svc)
		require.NoError(t, client.Set("shared", "v"))
		v, found, err := client.Get("shared")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "v", v)
	}
}
