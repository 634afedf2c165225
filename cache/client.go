package cache

import (
	"errors"
	"fmt"
	"time"

	"news-engine/ipc"
)

// ErrUnavailable is returned when the cache service does not answer in
// time or rejects a request. Callers treat it as "no novelty this cycle".
var ErrUnavailable = errors.New("cache: service unavailable")

// Client wraps a pooled request socket with the cache protocol. It is a
// per-cycle capability: the poller borrows a socket, hands it to the feed
// reader through this client, and returns it when the cycle ends.
type Client struct {
	sock    *ipc.ReqSocket
	timeout time.Duration
}

// NewClient wraps sock. timeout covers one request/reply round trip.
func NewClient(sock *ipc.ReqSocket, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{sock: sock, timeout: timeout}
}

// Get looks up key. The second result is false when the service has not
// seen the key (the "NA" reply).
func (c *Client) Get(key string) (string, bool, error) {
	var r reply
	if err := c.sock.Do(request{Action: actionGet, Key: key}, &r, c.timeout); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if r.Status != statusSuccess {
		return "", false, fmt.Errorf("%w: %s", ErrUnavailable, r.Error)
	}
	if r.Value == NAValue {
		return "", false, nil
	}
	return r.Value, true, nil
}

// Set stores value under key. A non-success reply is an error; the caller
// must not latch novelty in that case.
func (c *Client) Set(key, value string) error {
	var r reply
	if err := c.sock.Do(request{Action: actionSet, Key: key, Value: value}, &r, c.timeout); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if r.Status != statusSuccess {
		return fmt.Errorf("%w: %s", ErrUnavailable, r.Error)
	}
	return nil
}
