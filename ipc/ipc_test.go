package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPullRoundTrip(t *testing.T) {
	pull, err := ListenPull("127.0.0.1:0", 100)
	require.NoError(t, err)
	defer pull.Close()

	push, err := DialPush(pull.Addr(), time.Second)
	require.NoError(t, err)
	defer push.Close()

	type msg struct {
		SourceID string `json:"source_id"`
		URL      string `json:"url"`
	}
	require.NoError(t, push.Send(msg{SourceID: "s1", URL: "https://x.com/a"}, time.Second))

	frame, err := pull.Recv(2 * time.Second)
	require.NoError(t, err)

	var got msg
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.Equal(t, "s1", got.SourceID)
	assert.Equal(t, "https://x.com/a", got.URL)
}

func TestPullRecvTimeout(t *testing.T) {
	pull, err := ListenPull("127.0.0.1:0", 10)
	require.NoError(t, err)
	defer pull.Close()

	_, err = pull.Recv(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPullManyWriters(t *testing.T) {
	pull, err := ListenPull("127.0.0.1:0", 100)
	require.NoError(t, err)
	defer pull.Close()

	const writers = 5
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			push, err := DialPush(pull.Addr(), time.Second)
			if err != nil {
				return
			}
			defer push.Close()
			push.Send(map[string]string{"k": "v"}, time.Second)
		}()
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		_, err := pull.Recv(2 * time.Second)
		require.NoError(t, err)
	}
}

func TestReqRepRoundTrip(t *testing.T) {
	rep, err := ListenRep("127.0.0.1:0", 10)
	require.NoError(t, err)
	defer rep.Close()

	go func() {
		for {
			req, err := rep.Recv(time.Second)
			if err != nil {
				return
			}
			var in map[string]string
			if err := json.Unmarshal(req.Frame, &in); err != nil {
				req.Reply(map[string]string{"status": "failed"})
				continue
			}
			req.Reply(map[string]string{"status": "success", "echo": in["key"]})
		}
	}()

	req, err := DialReq(rep.Addr(), time.Second)
	require.NoError(t, err)
	defer req.Close()

	var out map[string]string
	require.NoError(t, req.Do(map[string]string{"key": "abc"}, &out, time.Second))
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "abc", out["echo"])

	// Lockstep: a second request on the same socket works.
	require.NoError(t, req.Do(map[string]string{"key": "def"}, &out, time.Second))
	assert.Equal(t, "def", out["echo"])
}

func TestPoolPrefersSameEndpoint(t *testing.T) {
	pull, err := ListenPull("127.0.0.1:0", 10)
	require.NoError(t, err)
	defer pull.Close()

	var dials int
	pool := NewPool(func(endpoint string) (Conn, error) {
		dials++
		return DialPush(endpoint, time.Second)
	}, PoolConfig{MaxPoolSize: 4, MaxConcurrentUsers: 4, ConnectionTimeout: time.Second})
	defer pool.CloseAll()

	c1, err := pool.Get(context.Background(), pull.Addr())
	require.NoError(t, err)
	pool.Put(c1)

	c2, err := pool.Get(context.Background(), pull.Addr())
	require.NoError(t, err)
	pool.Put(c2)

	assert.Same(t, c1, c2)
	assert.Equal(t, 1, dials)
}

func TestPoolExhaustion(t *testing.T) {
	pull, err := ListenPull("127.0.0.1:0", 10)
	require.NoError(t, err)
	defer pull.Close()

	pool := NewPool(func(endpoint string) (Conn, error) {
		return DialPush(endpoint, time.Second)
	}, PoolConfig{MaxPoolSize: 4, MaxConcurrentUsers: 2, ConnectionTimeout: 100 * time.Millisecond})
	defer pool.CloseAll()

	c1, err := pool.Get(context.Background(), pull.Addr())
	require.NoError(t, err)
	c2, err := pool.Get(context.Background(), pull.Addr())
	require.NoError(t, err)

	// Third concurrent user must fail within the connection timeout.
	start := time.Now()
	_, err = pool.Get(context.Background(), pull.Addr())
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.Less(t, time.Since(start), time.Second)

	pool.Put(c1)
	pool.Put(c2)

	c3, err := pool.Get(context.Background(), pull.Addr())
	require.NoError(t, err)
	pool.Put(c3)
}

func TestPoolBoundsTotalSockets(t *testing.T) {
	pull, err := ListenPull("127.0.0.1:0", 10)
	require.NoError(t, err)
	defer pull.Close()

	pool := NewPool(func(endpoint string) (Conn, error) {
		return DialPush(endpoint, time.Second)
	}, PoolConfig{MaxPoolSize: 3, MaxConcurrentUsers: 3, ConnectionTimeout: 100 * time.Millisecond})
	defer pool.CloseAll()

	var conns []Conn
	for i := 0; i < 3; i++ {
		c, err := pool.Get(context.Background(), pull.Addr())
		require.NoError(t, err)
		conns = append(conns, c)
	}
	for _, c := range conns {
		pool.Put(c)
	}

	assert.LessOrEqual(t, pool.Idle()+pool.InUse(), 3)
}

func TestPoolRecoversAfterTimedOutSend(t *testing.T) {
	pull, err := ListenPull("127.0.0.1:0", 1)
	require.NoError(t, err)
	defer pull.Close()

	pool := NewPool(func(endpoint string) (Conn, error) {
		return DialPush(endpoint, time.Second)
	}, PoolConfig{MaxPoolSize: 2, MaxConcurrentUsers: 2, ConnectionTimeout: time.Second})
	defer pool.CloseAll()

	conn, err := pool.Get(context.Background(), pull.Addr())
	require.NoError(t, err)
	push := conn.(*PushSocket)

	// Stuff the transport until a send times out: the puller is not
	// reading, so the frame queue and both TCP buffers back up.
	payload := strings.Repeat("x", 256*1024)
	var sendErr error
	for i := 0; i < 200; i++ {
		if sendErr = push.Send(payload, 100*time.Millisecond); sendErr != nil {
			break
		}
	}
	require.ErrorIs(t, sendErr, ErrTimeout)

	// The borrower drops the timed-out socket; after the queue drains the
	// pool must hand out a working replacement, not the poisoned handle.
	pool.Discard(conn)
	for {
		if _, err := pull.Recv(200 * time.Millisecond); err != nil {
			break
		}
	}

	replacement, err := pool.Get(context.Background(), pull.Addr())
	require.NoError(t, err)
	defer pool.Put(replacement)
	require.NoError(t, replacement.(*PushSocket).Send("hello", time.Second))

	frame, err := pull.Recv(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, string(frame))
}

func TestOversizedFrameRejected(t *testing.T) {
	pull, err := ListenPull("127.0.0.1:0", 10)
	require.NoError(t, err)
	defer pull.Close()

	conn, err := net.Dial("tcp", pull.Addr())
	require.NoError(t, err)
	defer conn.Close()

	// A peer that streams forever without a newline must be cut off, not
	// buffered without bound.
	junk := bytes.Repeat([]byte("a"), 64*1024)
	for i := 0; i < 40; i++ {
		if _, err := conn.Write(junk); err != nil {
			break
		}
	}
	_, err = pull.Recv(200 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	// The reader drops the connection at the cap instead of waiting for a
	// delimiter that never comes.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)
	var nerr net.Error
	if errors.As(err, &nerr) {
		assert.False(t, nerr.Timeout())
	}

	// A well-behaved pusher is unaffected.
	push, err := DialPush(pull.Addr(), time.Second)
	require.NoError(t, err)
	defer push.Close()
	require.NoError(t, push.Send("ok", time.Second))
	frame, err := pull.Recv(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, string(frame))
}
