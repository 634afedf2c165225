// Package ipc provides the local message transport between the engine,
// the extraction dispatcher and the dedup cache service. Sockets exchange
// newline-delimited JSON frames over TCP in two shapes: push/pull (many
// writers, one reader) and request/reply. A small connection pool bounds
// descriptor usage no matter how many pollers are running.
package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxFrameSize bounds a single JSON frame. Feed entries and cache replies
// are tiny; anything larger indicates a broken peer.
const MaxFrameSize = 1 << 20

// ErrTimeout is returned when a receive or send deadline elapses.
var ErrTimeout = errors.New("ipc: operation timed out")

// ErrClosed is returned when using a closed socket.
var ErrClosed = errors.New("ipc: socket closed")

func writeFrame(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ipc: encode frame: %w", err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("ipc: frame exceeds %d bytes", MaxFrameSize)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// readFrame reads one newline-terminated frame. The size cap is enforced
// while reading, so a peer that never sends the delimiter cannot make the
// reader buffer without bound.
func readFrame(r *bufio.Reader) (json.RawMessage, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > MaxFrameSize+1 {
			return nil, fmt.Errorf("ipc: frame exceeds %d bytes", MaxFrameSize)
		}
		if err == nil {
			break
		}
		if err != bufio.ErrBufferFull {
			return nil, err
		}
	}
	// Trim the delimiter, keep the payload as-is.
	return json.RawMessage(line[:len(line)-1]), nil
}
