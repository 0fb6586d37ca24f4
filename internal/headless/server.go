package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/ipc"
	"github.com/PizzaHomicide/playcore/internal/log"
	"github.com/PizzaHomicide/playcore/internal/playback"
)

// ServiceFactory creates the in-process controller backing one hosted session
type ServiceFactory func() *playback.InProcessService

// DefaultPositionInterval is used when a position subscription does not ask for a rate
const DefaultPositionInterval = 250 * time.Millisecond

// minPositionInterval stops a client from asking for a busy loop
const minPositionInterval = 10 * time.Millisecond

// errUnknownSession answers requests naming a session that was never created
var errUnknownSession = errors.New("unknown session")

// Server hosts playback sessions for clients connecting over a local socket.  Sessions belong to the connection that
// created them and are destroyed when it goes away.
type Server struct {
	newService ServiceFactory
}

// NewServer creates a server that backs every session with a service from newService
func NewServer(newService ServiceFactory) *Server {
	return &Server{newService: newService}
}

// Serve accepts connections on l until ctx is done or l fails
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	log.Info("Headless host listening", "address", l.Addr().String())
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting headless client: %w", err)
		}
		go s.ServeConn(ctx, conn)
	}
}

// ServeConn serves a single client until it disconnects or ctx is done
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	sc := &serverConn{
		server:   s,
		sessions: make(map[SessionID]*hostedSession),
		subs:     make(map[int64]*serverSubscription),
		ready:    make(chan struct{}),
	}
	sc.conn = ipc.NewConn(conn, sc.onFrame)
	close(sc.ready)

	log.Debug("Headless client connected")
	select {
	case <-sc.conn.Done():
	case <-ctx.Done():
		_ = sc.conn.Close()
		<-sc.conn.Done()
	}
	sc.shutdown()
	log.Debug("Headless client disconnected")
}

type serverConn struct {
	server *Server
	conn   *ipc.Conn
	// ready is closed once conn is set.  Frames can arrive before NewConn returns.
	ready chan struct{}

	mu        sync.Mutex
	sessions  map[SessionID]*hostedSession
	subs      map[int64]*serverSubscription
	nextSubID int64
	closed    bool
}

// hostedSession tracks what a status push needs to know.  The element only reports transitions as events, so the
// state is rebuilt from them.
type hostedSession struct {
	id       SessionID
	service  *playback.InProcessService
	listener *events.Listener

	mu        sync.Mutex
	loaded    bool
	playing   bool
	seeking   bool
	buffering bool
	ended     bool
	failed    bool
}

type serverSubscription struct {
	id      int64
	kind    PushKind
	session SessionID
	stop    chan struct{}
}

func (sc *serverConn) onFrame(frame json.RawMessage) {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil || req.Method == "" {
		log.Debug("Ignoring unexpected frame from headless client", "frame", string(frame))
		return
	}
	<-sc.ready
	go sc.handle(req)
}

func (sc *serverConn) handle(req Request) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sc.conn.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Trace("Headless request", "method", string(req.Method), "session_id", string(req.SessionID), "request_id", req.RequestID)

	result, err := sc.dispatch(ctx, req)
	resp := Response{RequestID: req.RequestID}
	if err != nil {
		log.Debug("Headless request failed", "method", string(req.Method), "error", err)
		resp.Error = err.Error()
	} else if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			resp.Error = fmt.Sprintf("encoding result: %v", err)
		} else {
			resp.Result = data
		}
	}

	if err := sc.conn.Send(resp); err != nil {
		log.Debug("Failed to answer headless request", "method", string(req.Method), "error", err)
		return
	}

	// The initial status goes out after the subscription id is known to the client
	if req.Method == MethodSubscribeStatus && err == nil {
		if sess := sc.session(req.SessionID); sess != nil {
			sc.pushStatus(sess)
		}
	}
}

func (sc *serverConn) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Method {
	case MethodLoad:
		var params loadRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return nil, sc.load(ctx, req.SessionID, params)
	case MethodPlay:
		return sc.withService(req.SessionID, func(svc *playback.InProcessService) error { return svc.Play(ctx) })
	case MethodPause:
		return sc.withService(req.SessionID, func(svc *playback.InProcessService) error { return svc.Pause(ctx) })
	case MethodSeek:
		var params seekRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return sc.withService(req.SessionID, func(svc *playback.InProcessService) error {
			if params.Relative {
				return svc.SeekOffsetBy(ctx, params.Position)
			}
			return svc.SeekTo(ctx, params.Position)
		})
	case MethodUnload:
		sc.unload(ctx, req.SessionID)
		return nil, nil
	case MethodSetVideoView:
		var params viewRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		sc.sessionOrCreate(req.SessionID).service.OnSurfaceViewCreated(ctx, playback.ViewHandle(params.Handle))
		return nil, nil
	case MethodClearVideoView:
		return sc.withService(req.SessionID, func(svc *playback.InProcessService) error {
			surface, _ := svc.BufferedViews()
			return svc.OnSurfaceViewDestroyed(ctx, surface.OrEmpty())
		})
	case MethodSetTextView:
		var params viewRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		sc.sessionOrCreate(req.SessionID).service.OnCaptionViewCreated(ctx, playback.ViewHandle(params.Handle))
		return nil, nil
	case MethodClearTextView:
		return sc.withService(req.SessionID, func(svc *playback.InProcessService) error {
			_, caption := svc.BufferedViews()
			return svc.OnCaptionViewDestroyed(ctx, caption.OrEmpty())
		})
	case MethodSubscribePosition:
		var params subscribeRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return sc.subscribe(req.SessionID, PushPosition, time.Duration(params.IntervalSeconds*float64(time.Second))), nil
	case MethodSubscribeStatus:
		return sc.subscribe(req.SessionID, PushStatus, 0), nil
	case MethodUnsubscribe:
		var params unsubscribeRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		sc.unsubscribe(params.SubscriptionID)
		return nil, nil
	case MethodMessage:
		var msg Message
		if err := decodeParams(req.Params, &msg); err != nil {
			return nil, err
		}
		return sc.message(msg), nil
	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
}

func (sc *serverConn) load(ctx context.Context, id SessionID, params loadRequest) error {
	sess := sc.sessionOrCreate(id)
	src := params.MediaInfo.Source(params.LoadParams)

	log.Info("Loading hosted session", "session_id", string(id), "uri", src.URI, "type", string(src.Type))

	sess.mu.Lock()
	sess.loaded = false
	sess.seeking, sess.ended, sess.failed = false, false, false
	// An autoplaying load buffers towards playing, anything else sits paused
	sess.playing, sess.buffering = src.Autoplay, true
	sess.mu.Unlock()

	if err := sess.service.Initialize(ctx, src); err != nil {
		sess.mu.Lock()
		sess.failed = true
		sess.mu.Unlock()
		sc.pushStatus(sess)
		return err
	}

	sess.mu.Lock()
	sess.loaded = true
	sess.mu.Unlock()

	if params.LoadParams.StartPosition > 0 {
		if err := sess.service.SeekTo(ctx, params.LoadParams.StartPosition); err != nil {
			log.Warn("Failed to seek to start position", "session_id", string(id), "error", err)
		}
	}
	sc.pushStatus(sess)
	return nil
}

func (sc *serverConn) unload(ctx context.Context, id SessionID) {
	sc.mu.Lock()
	sess, ok := sc.sessions[id]
	delete(sc.sessions, id)
	stale := lo.Filter(lo.Values(sc.subs), func(sub *serverSubscription, _ int) bool { return sub.session == id })
	sc.mu.Unlock()

	for _, sub := range stale {
		sc.unsubscribe(sub.id)
	}
	if !ok {
		return
	}

	log.Info("Unloading hosted session", "session_id", string(id))
	sess.detach()
	sess.service.Destroy(ctx)
}

func (sc *serverConn) message(msg Message) *MessageResponse {
	sess := sc.session(msg.SessionID)
	now := time.Now().UnixMilli()

	switch msg.Type {
	case MessageGetExactPosition:
		if sess == nil {
			return nil
		}
		position := sess.service.PlaybackTime()
		return &MessageResponse{Type: "POSITION_RESPONSE", Position: &position, Timestamp: now}
	case MessageGetPlayerState:
		if sess == nil {
			return nil
		}
		return &MessageResponse{Type: "STATE_RESPONSE", PlaybackState: sess.state(), Timestamp: now}
	case MessageSetPlaybackRate:
		return &MessageResponse{
			Type:      "PLAYBACK_RATE_RESPONSE",
			Success:   lo.ToPtr(false),
			Message:   "Playback rate not yet implemented",
			Timestamp: now,
		}
	case MessageSetActiveTrack:
		log.Debug("Active track change requested", "session_id", string(msg.SessionID), "track_type", msg.TrackType, "track_id", msg.TrackID)
		return &MessageResponse{
			Type:      "TRACK_RESPONSE",
			Success:   lo.ToPtr(true),
			TrackType: msg.TrackType,
			TrackID:   msg.TrackID,
			Timestamp: now,
		}
	case MessageGetBufferedRanges:
		return &MessageResponse{Type: "BUFFERED_RANGES_RESPONSE", Ranges: []TimeRange{}, Timestamp: now}
	default:
		log.Debug("Unknown headless message", "type", string(msg.Type))
		return nil
	}
}

func (sc *serverConn) subscribe(id SessionID, kind PushKind, interval time.Duration) subscribeResult {
	sc.sessionOrCreate(id)

	sc.mu.Lock()
	sc.nextSubID++
	sub := &serverSubscription{id: sc.nextSubID, kind: kind, session: id, stop: make(chan struct{})}
	sc.subs[sub.id] = sub
	sc.mu.Unlock()

	if kind == PushPosition {
		if interval <= 0 {
			interval = DefaultPositionInterval
		}
		go sc.pushPositions(sub, max(interval, minPositionInterval))
	}

	log.Debug("Headless subscription added", "kind", string(kind), "session_id", string(id), "subscription_id", sub.id)
	return subscribeResult{SubscriptionID: sub.id}
}

func (sc *serverConn) unsubscribe(subID int64) {
	sc.mu.Lock()
	sub, ok := sc.subs[subID]
	delete(sc.subs, subID)
	sc.mu.Unlock()
	if ok {
		close(sub.stop)
		log.Debug("Headless subscription removed", "subscription_id", subID)
	}
}

func (sc *serverConn) pushPositions(sub *serverSubscription, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-sub.stop:
			return
		case <-sc.conn.Done():
			return
		case <-ticker.C:
			sess := sc.session(sub.session)
			if sess == nil || !sess.isLoaded() {
				continue
			}
			push := Push{
				Push:           PushPosition,
				SubscriptionID: sub.id,
				Positions:      []PositionUpdate{{SessionID: sub.session, Position: sess.service.PlaybackTime()}},
			}
			if err := sc.conn.Send(push); err != nil {
				return
			}
		}
	}
}

func (sc *serverConn) pushStatus(sess *hostedSession) {
	sc.mu.Lock()
	subs := lo.Filter(lo.Values(sc.subs), func(sub *serverSubscription, _ int) bool {
		return sub.kind == PushStatus && sub.session == sess.id
	})
	sc.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	update := StatusUpdate{SessionID: sess.id, Duration: sess.service.Duration(), PlaybackState: sess.state()}
	for _, sub := range subs {
		push := Push{Push: PushStatus, SubscriptionID: sub.id, Statuses: []StatusUpdate{update}}
		if err := sc.conn.Send(push); err != nil {
			log.Debug("Failed to push status", "session_id", string(sess.id), "error", err)
			return
		}
	}
}

func (sc *serverConn) session(id SessionID) *hostedSession {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sessions[id]
}

// sessionOrCreate lets view handles and subscriptions arrive before the load that starts playback
func (sc *serverConn) sessionOrCreate(id SessionID) *hostedSession {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sess, ok := sc.sessions[id]; ok {
		return sess
	}

	sess := &hostedSession{id: id, service: sc.server.newService()}
	sess.listener = events.NewListener(func(e events.Event) {
		if sess.apply(e.Type) {
			sc.pushStatus(sess)
		}
	})
	for _, t := range lo.Without(events.All, events.TimeUpdate) {
		sess.service.AddEventListener(t, sess.listener)
	}
	sc.sessions[id] = sess

	log.Debug("Hosted session created", "session_id", string(id))
	return sess
}

func (sc *serverConn) withService(id SessionID, fn func(svc *playback.InProcessService) error) (any, error) {
	sess := sc.session(id)
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", errUnknownSession, id)
	}
	return nil, fn(sess.service)
}

func (sc *serverConn) shutdown() {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	sc.closed = true
	sessions := lo.Values(sc.sessions)
	subs := lo.Values(sc.subs)
	sc.sessions = make(map[SessionID]*hostedSession)
	sc.subs = make(map[int64]*serverSubscription)
	sc.mu.Unlock()

	for _, sub := range subs {
		close(sub.stop)
	}
	for _, sess := range sessions {
		sess.detach()
		if !sess.service.DestroySync(playback.DefaultDeinitTimeout) {
			log.Debug("Hosted session was not torn down cleanly", "session_id", string(sess.id))
		}
	}
}

// apply folds an element event into the session flags.  It reports whether the derived state may have changed.
func (h *hostedSession) apply(t events.Type) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch t {
	case events.Play:
		h.playing, h.ended = true, false
	case events.Playing:
		h.playing, h.buffering, h.ended = true, false, false
	case events.Pause:
		h.playing = false
	case events.Seeking:
		h.seeking = true
	case events.Seeked:
		h.seeking = false
	case events.Waiting:
		h.buffering = true
	case events.CanPlay:
		h.buffering = false
	case events.LoadedMetadata:
		// duration is now known
	case events.Ended:
		h.ended, h.playing = true, false
	case events.Error:
		h.failed = true
	default:
		return false
	}
	return true
}

func (h *hostedSession) state() PlayerState {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.failed:
		return PlayerStateError
	case !h.loaded && !h.buffering:
		return PlayerStateIdle
	case h.ended:
		return PlayerStateEnded
	case h.seeking:
		return PlayerStateSeeking
	case !h.playing:
		// A paused element reports paused even while it is still buffering
		return PlayerStatePaused
	case h.buffering:
		return PlayerStateBuffering
	default:
		return PlayerStatePlaying
	}
}

func (h *hostedSession) isLoaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

func (h *hostedSession) detach() {
	for _, t := range events.All {
		h.service.RemoveEventListener(t, h.listener)
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding params: %w", err)
	}
	return nil
}
