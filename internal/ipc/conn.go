// Package ipc implements newline delimited JSON messaging over a local socket (unix domain socket, or a named pipe on
// Windows).  Requests carry a request_id and their responses are matched back to the caller; every other frame is
// handed to a frame handler.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/PizzaHomicide/playcore/internal/log"
)

// ErrClosed is returned for calls on, or pending on, a closed connection
var ErrClosed = errors.New("ipc connection closed")

// maxFrameSize bounds a single line.  Track lists and position batches are well below this.
const maxFrameSize = 1 << 20

// FrameHandler receives frames that are not responses to an outstanding Call.  It runs on the reader goroutine.
type FrameHandler func(frame json.RawMessage)

type envelope struct {
	RequestID *int64 `json:"request_id"`
}

// Conn is a bidirectional JSON-lines connection
type Conn struct {
	conn    net.Conn
	onFrame FrameHandler

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan json.RawMessage
	closed  bool
	err     error

	done chan struct{}
}

// NewConn takes ownership of conn and starts reading from it.  onFrame may be nil.
func NewConn(conn net.Conn, onFrame FrameHandler) *Conn {
	c := &Conn{
		conn:    conn,
		onFrame: onFrame,
		pending: make(map[int64]chan json.RawMessage),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Call sends the message built for a fresh request id and waits for the frame carrying the same id back
func (c *Conn) Call(ctx context.Context, build func(id int64) any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan json.RawMessage, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.Send(build(id)); err != nil {
		return nil, err
	}

	select {
	case frame := <-ch:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closeErr()
	}
}

// Send writes v as a single line without waiting for any reply
func (c *Conn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Done is closed once the reader stops, either through Close or because the peer went away
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection stopped.  It is nil while the connection is open.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.closeErr()
	default:
		return nil
	}
}

// Close shuts the connection down and fails every outstanding call
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.conn.Close()
}

func (c *Conn) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}

func (c *Conn) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if log.TraceEnabled() {
			log.Trace("Raw IPC frame", "data", string(line))
		}

		frame := make(json.RawMessage, len(line))
		copy(frame, line)

		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			log.Error("Failed to unmarshal IPC frame", "error", err)
			continue
		}

		if env.RequestID != nil && c.deliver(*env.RequestID, frame) {
			continue
		}
		if c.onFrame != nil {
			c.onFrame(frame)
		}
	}

	err := scanner.Err()
	if err != nil {
		log.Debug("IPC reader stopped with error", "error", err)
	} else {
		log.Debug("IPC reader stopped")
	}

	c.mu.Lock()
	c.closed = true
	if err != nil {
		c.err = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	c.mu.Unlock()
	_ = c.conn.Close()
	close(c.done)
}

func (c *Conn) deliver(id int64, frame json.RawMessage) bool {
	c.mu.Lock()
	ch, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- frame:
	default:
		log.Warn("Duplicate IPC response dropped", "request_id", id)
	}
	return true
}
