package engine

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"news-engine/cache"
	"news-engine/feed"
	"news-engine/ipc"
	"news-engine/metrics"
	"news-engine/models"
)

const (
	// poolBackoffFactor stretches the interval when no socket is available.
	poolBackoffFactor = 1.5
	poolBackoffCap    = 300 * time.Second

	// errorBackoffFactor stretches the interval after a failed cycle.
	errorBackoffFactor = 2.0
	errorBackoffCap    = 600 * time.Second

	minSleep     = 10 * time.Second
	jitterFactor = 0.1
)

func (e *Engine) runPoller(ctx context.Context, h *PollerHandle) {
	defer e.wg.Done()

	// Per-worker seed so concurrent pollers jitter out of phase.
	seed := time.Now().UnixNano()
	for _, b := range []byte(h.Source.ID) {
		seed = seed*31 + int64(b)
	}
	rng := rand.New(rand.NewSource(seed))
	refresh := e.cfg.MinRefreshInterval

	for {
		refresh = e.runCycle(ctx, h, refresh)

		sleep := refresh + time.Duration(rng.Float64()*jitterFactor*float64(refresh))
		if sleep < minSleep {
			sleep = minSleep
		}
		e.logger.Debug("next poll scheduled", "source", h.Source.Name, "sleep", sleep)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runCycle performs one poll and returns the next refresh interval.
func (e *Engine) runCycle(ctx context.Context, h *PollerHandle, refresh time.Duration) time.Duration {
	push, err := e.pushPool.Get(ctx, e.cfg.ExtractEndpoint)
	if err != nil {
		return e.backoff(h, refresh, err)
	}
	metrics.PoolSocketsInUse.WithLabelValues("extract").Set(float64(e.pushPool.InUse()))

	req, err := e.reqPool.Get(ctx, e.cfg.CacheEndpoint)
	if err != nil {
		e.pushPool.Put(push)
		return e.backoff(h, refresh, err)
	}
	metrics.PoolSocketsInUse.WithLabelValues("cache").Set(float64(e.reqPool.InUse()))

	pushSock := push.(*ipc.PushSocket)
	reqSock := req.(*ipc.ReqSocket)
	pushOK := true
	cycleOK := true
	defer func() {
		// Sockets go back on every exit path. A failed send leaves the push
		// socket's buffered writer with a latched error and possibly a
		// half-written frame, and a failed cycle may have left the request
		// socket mid-exchange; either one is discarded instead of reused.
		if pushOK {
			e.pushPool.Put(push)
		} else {
			e.pushPool.Discard(push)
		}
		if cycleOK {
			e.reqPool.Put(req)
		} else {
			e.reqPool.Discard(req)
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	client := cache.NewClient(reqSock, e.cfg.CacheRequestTimeout)
	snap, err := h.Reader.GetFeed(fetchCtx, client)
	if err != nil {
		cycleOK = false
		metrics.PollsTotal.WithLabelValues(h.Source.Name, "error").Inc()
		e.logger.Error("poll cycle failed", "source", h.Source.Name, "error", err)
		return stretch(refresh, errorBackoffFactor, errorBackoffCap)
	}
	metrics.PollsTotal.WithLabelValues(h.Source.Name, "ok").Inc()

	refresh = computeRefresh(refresh, snap, time.Now(), e.cfg.RefreshBuffer)

	if snap.HasNewSinceLastRead && len(snap.Feed.Items) > 0 {
		metrics.NoveltyTotal.WithLabelValues(h.Source.Name).Inc()
		msg := models.ExtractionRequest{
			SourceID: h.Source.ID,
			Name:     h.Source.Name,
			URL:      snap.Feed.Items[0].Link,
		}
		// Best effort: a backed-up queue fails the send fast and the
		// poller moves on. Delivery is at-least-once overall.
		if err := pushSock.Send(msg, e.cfg.PushTimeout); err != nil {
			pushOK = false
			e.logger.Error("extraction push failed", "source", h.Source.Name, "url", msg.URL, "error", err)
		} else {
			e.logger.Info("new article queued", "source", h.Source.Name, "url", msg.URL)
		}
	}

	return refresh
}

func (e *Engine) backoff(h *PollerHandle, refresh time.Duration, err error) time.Duration {
	if errors.Is(err, ipc.ErrPoolExhausted) {
		metrics.PollsTotal.WithLabelValues(h.Source.Name, "pool_exhausted").Inc()
		e.logger.Warn("socket pool exhausted, skipping cycle", "source", h.Source.Name)
		return stretch(refresh, poolBackoffFactor, poolBackoffCap)
	}
	metrics.PollsTotal.WithLabelValues(h.Source.Name, "error").Inc()
	e.logger.Error("socket acquisition failed", "source", h.Source.Name, "error", err)
	return stretch(refresh, errorBackoffFactor, errorBackoffCap)
}

func stretch(d time.Duration, factor float64, limit time.Duration) time.Duration {
	d = time.Duration(float64(d) * factor)
	if d > limit {
		return limit
	}
	return d
}

// computeRefresh derives the next poll interval from the feed's TTL hint.
// When the feed timestamps its updates, the interval is phase-aligned so
// polls land one buffer after the source's own cadence. Feeds without a
// TTL keep the previous interval.
func computeRefresh(prev time.Duration, snap *feed.Snapshot, now time.Time, buffer time.Duration) time.Duration {
	if snap.TTLMinutes <= 0 {
		return prev
	}
	refresh := time.Duration(snap.TTLMinutes) * time.Minute
	if snap.LastUpdatedAt != nil {
		if elapsed := now.Sub(*snap.LastUpdatedAt); elapsed > 0 {
			refresh -= elapsed % refresh
		}
	}
	return refresh + buffer
}
