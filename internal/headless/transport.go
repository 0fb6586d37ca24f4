package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/PizzaHomicide/playcore/internal/ipc"
	"github.com/PizzaHomicide/playcore/internal/log"
)

// Subscription is a handle on a push listener
type Subscription interface {
	Unsubscribe()
}

// Transport is the session channel the client drives.  Every call is keyed by a session id.
type Transport interface {
	Load(ctx context.Context, info MediaInfo, params LoadParams, session SessionID) error
	Play(ctx context.Context, session SessionID) error
	Pause(ctx context.Context, session SessionID) error
	Seek(ctx context.Context, position float64, relative bool, session SessionID) error
	Unload(ctx context.Context, session SessionID) error
	SetVideoView(ctx context.Context, handle string, session SessionID) error
	ClearVideoView(ctx context.Context, session SessionID) error
	SetTextView(ctx context.Context, handle string, session SessionID) error
	ClearTextView(ctx context.Context, session SessionID) error
	RegisterPositionListener(ctx context.Context, fn func([]PositionUpdate), interval time.Duration, session SessionID) (Subscription, error)
	RegisterStatusListener(ctx context.Context, fn func([]StatusUpdate), session SessionID) (Subscription, error)
	SendMessage(ctx context.Context, msg Message) (MessageResponse, error)
}

// TransportFactory produces a transport connected to the host identified by componentID
type TransportFactory func(ctx context.Context, componentID string) (Transport, error)

// ErrRemote wraps failures reported by the host
var ErrRemote = errors.New("headless host error")

// unsubscribeTimeout bounds the fire-and-forget unsubscribe request
const unsubscribeTimeout = 2 * time.Second

// pushQueueSize bounds pushes waiting for delivery before the reader starts to block
const pushQueueSize = 256

// SocketTransport implements Transport over an ipc connection to a Server
type SocketTransport struct {
	conn   *ipc.Conn
	pushes chan Push

	mu       sync.Mutex
	handlers map[int64]func(Push)
}

// NewSocketTransport takes ownership of conn
func NewSocketTransport(conn net.Conn) *SocketTransport {
	t := &SocketTransport{
		handlers: make(map[int64]func(Push)),
		pushes:   make(chan Push, pushQueueSize),
	}
	t.conn = ipc.NewConn(conn, t.onFrame)
	go t.deliverPushes()
	return t
}

// DialTransport returns a factory that connects to the host listening on socketPath.  An empty socketPath derives the
// address from the component id.
func DialTransport(socketPath string) TransportFactory {
	return func(ctx context.Context, componentID string) (Transport, error) {
		path := socketPath
		if path == "" {
			path = ipc.SocketPath(componentID + ".sock")
		}
		conn, err := ipc.Dial(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("connecting to headless host %s: %w", componentID, err)
		}
		return NewSocketTransport(conn), nil
	}
}

// Close drops the connection
func (t *SocketTransport) Close() error {
	return t.conn.Close()
}

func (t *SocketTransport) Load(ctx context.Context, info MediaInfo, params LoadParams, session SessionID) error {
	_, err := t.call(ctx, MethodLoad, session, loadRequest{MediaInfo: info, LoadParams: params})
	return err
}

func (t *SocketTransport) Play(ctx context.Context, session SessionID) error {
	_, err := t.call(ctx, MethodPlay, session, nil)
	return err
}

func (t *SocketTransport) Pause(ctx context.Context, session SessionID) error {
	_, err := t.call(ctx, MethodPause, session, nil)
	return err
}

func (t *SocketTransport) Seek(ctx context.Context, position float64, relative bool, session SessionID) error {
	_, err := t.call(ctx, MethodSeek, session, seekRequest{Position: position, Relative: relative})
	return err
}

func (t *SocketTransport) Unload(ctx context.Context, session SessionID) error {
	_, err := t.call(ctx, MethodUnload, session, nil)
	return err
}

func (t *SocketTransport) SetVideoView(ctx context.Context, handle string, session SessionID) error {
	_, err := t.call(ctx, MethodSetVideoView, session, viewRequest{Handle: handle})
	return err
}

func (t *SocketTransport) ClearVideoView(ctx context.Context, session SessionID) error {
	_, err := t.call(ctx, MethodClearVideoView, session, nil)
	return err
}

func (t *SocketTransport) SetTextView(ctx context.Context, handle string, session SessionID) error {
	_, err := t.call(ctx, MethodSetTextView, session, viewRequest{Handle: handle})
	return err
}

func (t *SocketTransport) ClearTextView(ctx context.Context, session SessionID) error {
	_, err := t.call(ctx, MethodClearTextView, session, nil)
	return err
}

func (t *SocketTransport) RegisterPositionListener(ctx context.Context, fn func([]PositionUpdate), interval time.Duration, session SessionID) (Subscription, error) {
	return t.subscribe(ctx, MethodSubscribePosition, session, subscribeRequest{IntervalSeconds: interval.Seconds()}, func(p Push) {
		if p.Push == PushPosition {
			fn(p.Positions)
		}
	})
}

func (t *SocketTransport) RegisterStatusListener(ctx context.Context, fn func([]StatusUpdate), session SessionID) (Subscription, error) {
	return t.subscribe(ctx, MethodSubscribeStatus, session, subscribeRequest{}, func(p Push) {
		if p.Push == PushStatus {
			fn(p.Statuses)
		}
	})
}

func (t *SocketTransport) SendMessage(ctx context.Context, msg Message) (MessageResponse, error) {
	var resp MessageResponse
	result, err := t.call(ctx, MethodMessage, msg.SessionID, msg)
	if err != nil {
		return resp, err
	}
	if len(result) == 0 || string(result) == "null" {
		return resp, fmt.Errorf("%w: no response to %s", ErrRemote, msg.Type)
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return resp, fmt.Errorf("decoding %s response: %w", msg.Type, err)
	}
	return resp, nil
}

func (t *SocketTransport) subscribe(ctx context.Context, method Method, session SessionID, params any, handler func(Push)) (Subscription, error) {
	result, err := t.call(ctx, method, session, params)
	if err != nil {
		return nil, err
	}
	var sub subscribeResult
	if err := json.Unmarshal(result, &sub); err != nil {
		return nil, fmt.Errorf("decoding subscription: %w", err)
	}

	t.mu.Lock()
	t.handlers[sub.SubscriptionID] = handler
	t.mu.Unlock()

	log.Debug("Subscribed to headless pushes", "method", string(method), "session_id", string(session), "subscription_id", sub.SubscriptionID)
	return &socketSubscription{t: t, id: sub.SubscriptionID, session: session}, nil
}

func (t *SocketTransport) call(ctx context.Context, method Method, session SessionID, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding %s params: %w", method, err)
		}
		raw = data
	}

	frame, err := t.conn.Call(ctx, func(id int64) any {
		return Request{RequestID: id, Method: method, SessionID: session, Params: raw}
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	var resp Response
	if err := json.Unmarshal(frame, &resp); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", method, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}
	return resp.Result, nil
}

// onFrame runs on the reader goroutine.  Pushes are handed to a separate goroutine so listeners are free to issue calls
// of their own.
func (t *SocketTransport) onFrame(frame json.RawMessage) {
	var p Push
	if err := json.Unmarshal(frame, &p); err != nil || p.Push == "" {
		log.Debug("Ignoring unexpected frame from headless host", "frame", string(frame))
		return
	}
	select {
	case t.pushes <- p:
	case <-t.conn.Done():
	}
}

func (t *SocketTransport) deliverPushes() {
	for {
		select {
		case p := <-t.pushes:
			t.dispatch(p)
		case <-t.conn.Done():
			return
		}
	}
}

func (t *SocketTransport) dispatch(p Push) {
	t.mu.Lock()
	handler, ok := t.handlers[p.SubscriptionID]
	t.mu.Unlock()
	if !ok {
		log.Trace("Push for unknown subscription", "subscription_id", p.SubscriptionID)
		return
	}
	handler(p)
}

type socketSubscription struct {
	t       *SocketTransport
	id      int64
	session SessionID
	once    sync.Once
}

// Unsubscribe stops local delivery straight away and tells the host in the background
func (s *socketSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.t.mu.Lock()
		delete(s.t.handlers, s.id)
		s.t.mu.Unlock()

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
			defer cancel()
			if _, err := s.t.call(ctx, MethodUnsubscribe, s.session, unsubscribeRequest{SubscriptionID: s.id}); err != nil {
				log.Debug("Failed to unsubscribe on headless host", "subscription_id", s.id, "error", err)
			}
		}()
	})
}
