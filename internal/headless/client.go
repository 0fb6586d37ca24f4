package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/log"
	"github.com/PizzaHomicide/playcore/internal/media"
	"github.com/PizzaHomicide/playcore/internal/playback"
)

var (
	// ErrInitInProgress rejects an Initialize that overlaps another one
	ErrInitInProgress = errors.New("Initialization already in progress")
	// ErrClientNotInitialized is returned by operations that need a live session
	ErrClientNotInitialized = errors.New("Player client not initialized")
)

// interpolationWindow is how long after a position push the playhead is extrapolated
const interpolationWindow = time.Second

// ClientConfig configures a Client
type ClientConfig struct {
	// ServiceComponentID names the host to connect to
	ServiceComponentID string
	// EnableStatusUpdates subscribes to status and position pushes on initialize
	EnableStatusUpdates bool
	// PositionInterval is the requested position push rate
	PositionInterval time.Duration
}

// DefaultClientConfig returns the defaults used when nothing is configured
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServiceComponentID:  "playcore.headless",
		EnableStatusUpdates: true,
		PositionInterval:    100 * time.Millisecond,
	}
}

// Client controls a playback session hosted in another process.  It mirrors the in-process controller so callers do
// not need to care which one they hold.
type Client struct {
	cfg          ClientConfig
	newTransport TransportFactory
	now          func() time.Time

	dispatcher *events.Dispatcher
	registry   *events.Registry

	mu             sync.Mutex
	transport      Transport
	sessionID      SessionID
	initialized    bool
	initializing   bool
	positionSub    Subscription
	statusSub      Subscription
	position       float64
	lastPositionAt time.Time
	duration       float64
	state          PlayerState
	playbackRate   float64
	surface        mo.Option[playback.ViewHandle]
	caption        mo.Option[playback.ViewHandle]
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithClock overrides the time source used for position interpolation
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates an uninitialized client that will obtain its transport from newTransport
func NewClient(cfg ClientConfig, newTransport TransportFactory, opts ...ClientOption) *Client {
	c := &Client{
		cfg:          cfg,
		newTransport: newTransport,
		now:          time.Now,
		dispatcher:   events.NewDispatcher(),
		state:        PlayerStatePaused,
		playbackRate: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registry = events.NewRegistry(events.WithClock(c.now))
	c.registry.Bind(c.dispatcher)

	log.Debug("Headless client created", "service_component_id", cfg.ServiceComponentID)
	return c
}

// Type implements playback.Controller
func (c *Client) Type() playback.ControllerType {
	return playback.CrossThread
}

// Initialize connects to the host, opens a session and loads src.  Overlapping calls fail with ErrInitInProgress, and a
// failed attempt leaves the client ready for a retry.
func (c *Client) Initialize(ctx context.Context, src media.VideoSource) error {
	c.mu.Lock()
	if c.initializing {
		c.mu.Unlock()
		return ErrInitInProgress
	}
	if c.initialized {
		c.mu.Unlock()
		log.Debug("Headless client already initialized, skipping")
		return nil
	}
	c.initializing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.initializing = false
		c.mu.Unlock()
	}()

	if err := c.initialize(ctx, src); err != nil {
		log.Error("Headless client initialization failed", "error", err)
		c.resetAfterFailure()
		return err
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	log.Debug("Headless client initialization complete", "session_id", string(c.SessionID()))
	return nil
}

func (c *Client) initialize(ctx context.Context, src media.VideoSource) error {
	if err := media.Validate(src); err != nil {
		return &playback.Error{Kind: playback.KindInvalidSource, Message: err.Error(), Err: err}
	}

	log.Debug("Initializing headless client", "type", string(src.Type), "uri", src.URI)

	transport, err := c.newTransport(ctx, c.cfg.ServiceComponentID)
	if err != nil {
		return fmt.Errorf("creating player client: %w", err)
	}
	if transport == nil {
		return errors.New("Failed to create PlayerClient")
	}

	session := SessionID(uuid.NewString())
	c.mu.Lock()
	c.transport = transport
	c.sessionID = session
	surface, caption := c.surface, c.caption
	c.mu.Unlock()

	log.Debug("Created headless session", "session_id", string(session))

	if c.cfg.EnableStatusUpdates {
		statusSub, err := transport.RegisterStatusListener(ctx, c.onStatus, session)
		if err != nil {
			return fmt.Errorf("registering status listener: %w", err)
		}
		c.mu.Lock()
		c.statusSub = statusSub
		c.mu.Unlock()

		positionSub, err := transport.RegisterPositionListener(ctx, c.onPosition, c.cfg.PositionInterval, session)
		if err != nil {
			return fmt.Errorf("registering position listener: %w", err)
		}
		c.mu.Lock()
		c.positionSub = positionSub
		c.mu.Unlock()
	}

	if h, ok := surface.Get(); ok {
		if err := transport.SetVideoView(ctx, string(h), session); err != nil {
			return fmt.Errorf("setting video view: %w", err)
		}
	}
	if h, ok := caption.Get(); ok {
		if err := transport.SetTextView(ctx, string(h), session); err != nil {
			return fmt.Errorf("setting text view: %w", err)
		}
	}

	info := MediaInfoFor(src)
	log.Debug("Loading video on headless host", "url", info.URL)
	if err := transport.Load(ctx, info, LoadParams{StartPosition: 0, AutoPlay: src.Autoplay}, session); err != nil {
		return fmt.Errorf("loading video: %w", err)
	}
	return nil
}

func (c *Client) resetAfterFailure() {
	c.mu.Lock()
	positionSub, statusSub := c.positionSub, c.statusSub
	transport := c.transport
	c.positionSub = nil
	c.statusSub = nil
	c.transport = nil
	c.sessionID = ""
	c.initialized = false
	c.mu.Unlock()

	unsubscribe("position", positionSub)
	unsubscribe("status", statusSub)
	closeTransport(transport)
}

// PullTextTracks is a no-op, the host does not expose text tracks yet
func (c *Client) PullTextTracks() {
	log.Debug("Headless client does not support pulling text tracks yet")
}

// TextTracks is always empty
func (c *Client) TextTracks() []playback.TrackToken {
	return []playback.TrackToken{}
}

// SelectTextTrack is accepted and ignored
func (c *Client) SelectTextTrack(mo.Option[playback.TrackToken]) error {
	log.Debug("Headless client does not support selecting text tracks yet")
	return nil
}

// ActiveTextTrack is always None
func (c *Client) ActiveTextTrack() mo.Option[playback.TrackToken] {
	return mo.None[playback.TrackToken]()
}

// IsTextTrackVisible is always false
func (c *Client) IsTextTrackVisible() bool {
	return false
}

// AvailableQualities is always empty
func (c *Client) AvailableQualities() ([]playback.QualityVariant, error) {
	log.Debug("Headless client does not support quality selection yet")
	return []playback.QualityVariant{}, nil
}

// SetQuality is accepted and ignored
func (c *Client) SetQuality(playback.TrackToken) error {
	log.Debug("Headless client does not support quality selection yet")
	return nil
}

func (c *Client) Play(ctx context.Context) error {
	transport, session, err := c.live()
	if err != nil {
		return err
	}
	log.Debug("Headless play", "session_id", string(session))
	// playing is emitted once the status push arrives
	return transport.Play(ctx, session)
}

func (c *Client) Pause(ctx context.Context) error {
	transport, session, err := c.live()
	if err != nil {
		return err
	}
	log.Debug("Headless pause", "session_id", string(session))
	return transport.Pause(ctx, session)
}

// SeekTo seeks to t.  The host only understands relative seeks, so the offset from the cached position is sent.
func (c *Client) SeekTo(ctx context.Context, t float64) error {
	duration := c.Duration()
	target := math.Max(0, t)
	if duration > 0 {
		target = media.ConstrainTime(t, duration)
	}
	return c.seek(ctx, target)
}

func (c *Client) seek(ctx context.Context, target float64) error {
	transport, session, err := c.live()
	if err != nil {
		return err
	}

	// UI feedback should not wait for the round trip
	c.emit(events.Seeking, nil)

	c.mu.Lock()
	offset := target - c.position
	c.mu.Unlock()

	log.Debug("Headless seek", "target", target, "offset", offset)
	return transport.Seek(ctx, offset, true, session)
}

// SeekOffsetBy sends offset straight through as a relative seek
func (c *Client) SeekOffsetBy(ctx context.Context, offset float64) error {
	transport, session, err := c.live()
	if err != nil {
		return err
	}
	c.emit(events.Seeking, nil)
	log.Debug("Headless seek offset", "offset", offset)
	return transport.Seek(ctx, offset, true, session)
}

// FastSeek has no cheaper path on the host and is a regular seek
func (c *Client) FastSeek(t float64) error {
	return c.SeekTo(context.Background(), t)
}

// PlaybackTime returns the cached position, extrapolated by the playback rate while playing and the last push is
// recent.
func (c *Client) PlaybackTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playbackTimeLocked()
}

func (c *Client) playbackTimeLocked() float64 {
	since := c.now().Sub(c.lastPositionAt)
	if c.state == PlayerStatePlaying && since < interpolationWindow {
		return c.position + since.Seconds()*c.playbackRate
	}
	return c.position
}

// ExactCurrentPosition asks the host for the precise position, falling back to PlaybackTime on failure
func (c *Client) ExactCurrentPosition(ctx context.Context) (float64, error) {
	transport, session, err := c.live()
	if err != nil {
		return 0, err
	}

	resp, err := transport.SendMessage(ctx, Message{Type: MessageGetExactPosition, SessionID: session})
	if err != nil {
		log.Error("Error getting exact position", "error", err)
		return c.PlaybackTime(), nil
	}
	if resp.Position == nil {
		log.Debug("Invalid exact position response, using cached position")
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.position, nil
	}

	c.mu.Lock()
	c.position = *resp.Position
	c.lastPositionAt = c.now()
	c.mu.Unlock()
	return *resp.Position, nil
}

// Duration is the last duration reported by the host, 0 until the first status push
func (c *Client) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// Progress is 0 while the duration is unknown
func (c *Client) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.duration == 0 {
		return 0
	}
	return c.position * 100 / c.duration
}

func (c *Client) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == PlayerStatePaused || c.state == PlayerStateIdle
}

// SetPlaybackRate asks the host to change speed.  It reports whether the host accepted.
func (c *Client) SetPlaybackRate(ctx context.Context, rate float64) (bool, error) {
	transport, session, err := c.live()
	if err != nil {
		return false, err
	}

	resp, err := transport.SendMessage(ctx, Message{Type: MessageSetPlaybackRate, SessionID: session, PlaybackRate: rate})
	if err != nil {
		log.Error("Error setting playback rate", "error", err)
		return false, nil
	}
	if resp.Success == nil || !*resp.Success {
		log.Debug("Playback rate change rejected", "message", resp.Message)
		return false, nil
	}

	c.mu.Lock()
	c.playbackRate = rate
	c.mu.Unlock()
	return true, nil
}

// SetActiveTrack asks the host to activate a track of the given kind (AUDIO, VIDEO or TEXT)
func (c *Client) SetActiveTrack(ctx context.Context, trackType, trackID string) (bool, error) {
	transport, session, err := c.live()
	if err != nil {
		return false, err
	}

	resp, err := transport.SendMessage(ctx, Message{Type: MessageSetActiveTrack, SessionID: session, TrackType: trackType, TrackID: trackID})
	if err != nil {
		log.Error("Error setting active track", "error", err)
		return false, nil
	}
	return resp.Success != nil && *resp.Success, nil
}

// BufferedRanges returns what the host reports as buffered, which may be nothing
func (c *Client) BufferedRanges(ctx context.Context) ([]TimeRange, error) {
	transport, session, err := c.live()
	if err != nil {
		return nil, err
	}

	resp, err := transport.SendMessage(ctx, Message{Type: MessageGetBufferedRanges, SessionID: session})
	if err != nil {
		log.Error("Error getting buffered ranges", "error", err)
		return []TimeRange{}, nil
	}
	if resp.Ranges == nil {
		return []TimeRange{}, nil
	}
	return resp.Ranges, nil
}

func (c *Client) PlaybackRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playbackRate
}

func (c *Client) SessionID() SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *Client) AddEventListener(t events.Type, l *events.Listener) {
	log.Trace("Headless addEventListener", "event", string(t))
	c.registry.Add(t, l)
}

func (c *Client) RemoveEventListener(t events.Type, l *events.Listener) {
	log.Trace("Headless removeEventListener", "event", string(t))
	c.registry.Remove(t, l)
}

// OnSurfaceViewCreated buffers h and forwards it when a session exists
func (c *Client) OnSurfaceViewCreated(ctx context.Context, h playback.ViewHandle) {
	c.mu.Lock()
	c.surface = mo.Some(h)
	transport, session := c.transport, c.sessionID
	c.mu.Unlock()

	if transport == nil {
		log.Debug("Buffering surface handle", "handle", string(h))
		return
	}
	if err := transport.SetVideoView(ctx, string(h), session); err != nil {
		log.Warn("Failed to set video view", "handle", string(h), "error", err)
	}
}

func (c *Client) OnSurfaceViewDestroyed(ctx context.Context, _ playback.ViewHandle) error {
	c.mu.Lock()
	transport, session := c.transport, c.sessionID
	c.mu.Unlock()
	if transport == nil {
		return nil
	}
	return transport.ClearVideoView(ctx, session)
}

// OnCaptionViewCreated buffers h and forwards it when a session exists
func (c *Client) OnCaptionViewCreated(ctx context.Context, h playback.ViewHandle) {
	c.mu.Lock()
	c.caption = mo.Some(h)
	transport, session := c.transport, c.sessionID
	c.mu.Unlock()

	if transport == nil {
		log.Debug("Buffering caption handle", "handle", string(h))
		return
	}
	if err := transport.SetTextView(ctx, string(h), session); err != nil {
		log.Warn("Failed to set text view", "handle", string(h), "error", err)
	}
}

func (c *Client) OnCaptionViewDestroyed(ctx context.Context, _ playback.ViewHandle) error {
	c.mu.Lock()
	transport, session := c.transport, c.sessionID
	c.mu.Unlock()
	if transport == nil {
		return nil
	}
	return transport.ClearTextView(ctx, session)
}

func (c *Client) BufferedViews() (mo.Option[playback.ViewHandle], mo.Option[playback.ViewHandle]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface, c.caption
}

// Destroy unsubscribes from pushes, unloads the session and drops all listeners.  Unload failures are only logged.
func (c *Client) Destroy(ctx context.Context) {
	log.Debug("Destroying headless client")

	positionSub, statusSub, transport, session := c.detach()
	unsubscribe("position", positionSub)
	unsubscribe("status", statusSub)

	if transport != nil && session != "" {
		if err := transport.Unload(ctx, session); err != nil {
			log.Error("Error unloading headless session", "session_id", string(session), "error", err)
		}
	}
	closeTransport(transport)

	c.clearListeners()
	c.cleanup()
	log.Debug("Headless client destroyed")
}

// DestroySync tears the client down without waiting on the host.  The unload is fired in the background bounded by
// timeout.  It returns false if there was nothing to destroy.
func (c *Client) DestroySync(timeout time.Duration) (ok bool) {
	c.mu.Lock()
	live := c.transport != nil
	c.mu.Unlock()
	if !live {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Headless synchronous teardown panicked", "error", r)
			ok = false
		}
	}()

	log.Debug("Destroying headless client synchronously", "timeout", timeout)

	c.clearListeners()
	positionSub, statusSub, transport, session := c.detach()
	unsubscribe("position", positionSub)
	unsubscribe("status", statusSub)

	if transport != nil && session != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := transport.Unload(ctx, session); err != nil {
				log.Error("Error while unloading headless session", "session_id", string(session), "error", err)
			}
			closeTransport(transport)
		}()
	}

	c.cleanup()
	return true
}

func (c *Client) detach() (Subscription, Subscription, Transport, SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	positionSub, statusSub := c.positionSub, c.statusSub
	c.positionSub = nil
	c.statusSub = nil
	return positionSub, statusSub, c.transport, c.sessionID
}

func (c *Client) clearListeners() {
	c.registry.Clear()
	c.registry.Bind(c.dispatcher)
}

// cleanup forgets the session.  Buffered view handles are kept for the next initialize.
func (c *Client) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = nil
	c.sessionID = ""
	c.initialized = false
	c.initializing = false
	c.position = 0
	c.lastPositionAt = time.Time{}
	c.duration = 0
	c.state = PlayerStatePaused
}

func (c *Client) live() (Transport, SessionID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return nil, "", ErrClientNotInitialized
	}
	return c.transport, c.sessionID, nil
}

func (c *Client) onPosition(updates []PositionUpdate) {
	c.mu.Lock()
	update, ok := lo.Find(updates, func(u PositionUpdate) bool { return u.SessionID == c.sessionID })
	if !ok {
		c.mu.Unlock()
		return
	}
	c.position = update.Position
	c.lastPositionAt = c.now()
	c.mu.Unlock()

	log.Trace("Headless position updated", "position", update.Position)
	c.emit(events.TimeUpdate, update.Position)
}

func (c *Client) onStatus(updates []StatusUpdate) {
	c.mu.Lock()
	update, ok := lo.Find(updates, func(u StatusUpdate) bool { return u.SessionID == c.sessionID })
	if !ok {
		c.mu.Unlock()
		return
	}
	prev := c.state
	next := update.PlaybackState
	if next == "" {
		next = PlayerStatePaused
	}
	c.duration = update.Duration
	c.state = next
	c.mu.Unlock()

	log.Debug("Headless status updated", "state", string(next), "duration", update.Duration)
	c.handleStateChange(prev, next)
}

// handleStateChange derives the normalized events from a state delta, the only signal available on this side
func (c *Client) handleStateChange(prev, next PlayerState) {
	switch next {
	case PlayerStatePlaying:
		// Always emitted so a buffering spinner goes away
		c.emit(events.Playing, nil)
		if prev != PlayerStatePlaying {
			c.emit(events.Play, nil)
		}
	case PlayerStatePaused:
		if prev == PlayerStatePlaying || prev == PlayerStateBuffering {
			c.emit(events.Pause, nil)
		}
	case PlayerStateSeeking:
		c.emit(events.Seeking, nil)
	case PlayerStateEnded:
		c.emit(events.Ended, nil)
	case PlayerStateError:
		c.emit(events.Error, nil)
	case PlayerStateBuffering:
		c.emit(events.Waiting, nil)
	}

	if prev == PlayerStateSeeking && next != PlayerStateSeeking {
		c.emit(events.Seeked, nil)
	}
}

func (c *Client) emit(t events.Type, data any) {
	c.dispatcher.Emit(events.Event{Type: t, Data: data})
}

func unsubscribe(name string, sub Subscription) {
	if sub == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Error unsubscribing listener", "listener", name, "error", r)
		}
	}()
	sub.Unsubscribe()
}

func closeTransport(t Transport) {
	if closer, ok := t.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Debug("Error closing headless transport", "error", err)
		}
	}
}
