package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/log"
	"github.com/PizzaHomicide/playcore/internal/media"
)

// InProcessService owns one media element and one adapter in the caller's own execution context.  Both are exclusive
// to the service and are torn down before any reinitialization.
type InProcessService struct {
	newElement ElementFactory
	newAdapter AdapterConstructor
	registry   *events.Registry

	mu         sync.RWMutex
	element    MediaElement
	adapter    Adapter
	textTracks []TrackToken
	videoType  media.VideoType
	surface    mo.Option[ViewHandle]
	caption    mo.Option[ViewHandle]
}

// ServiceOption configures an InProcessService
type ServiceOption func(*InProcessService)

// WithRegistry replaces the event registry, mostly so tests can inject a clock
func WithRegistry(r *events.Registry) ServiceOption {
	return func(s *InProcessService) {
		s.registry = r
	}
}

// NewInProcessService creates a service that will build its element and adapter with the given constructors on
// Initialize.
func NewInProcessService(newElement ElementFactory, newAdapter AdapterConstructor, opts ...ServiceOption) *InProcessService {
	s := &InProcessService{
		newElement: newElement,
		newAdapter: newAdapter,
		registry:   events.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Type implements Controller
func (s *InProcessService) Type() ControllerType {
	return InProcess
}

// Initialize brings up a fresh element and adapter and loads src.  An already initialized service is fully destroyed
// first.
func (s *InProcessService) Initialize(ctx context.Context, src media.VideoSource) error {
	if err := media.Validate(src); err != nil {
		return &Error{Kind: KindInvalidSource, Message: err.Error(), Err: err}
	}

	if s.initialized() {
		log.Debug("Reinitializing in-process player, destroying previous instance")
		s.Destroy(ctx)
	}

	el := s.newElement()
	if err := el.Initialize(ctx); err != nil {
		return NewError(KindPlaybackError, fmt.Errorf("initializing media element: %w", err))
	}

	s.mu.RLock()
	surface, caption := s.surface, s.caption
	s.mu.RUnlock()

	// Views that mounted before we were ready
	if h, ok := surface.Get(); ok {
		if err := el.SetSurfaceHandle(h); err != nil {
			log.Warn("Failed to apply buffered surface handle", "handle", string(h), "error", err)
		}
	}
	if h, ok := caption.Get(); ok {
		if err := el.SetCaptionViewHandle(h); err != nil {
			log.Warn("Failed to apply buffered caption handle", "handle", string(h), "error", err)
		}
	}

	adapter, err := s.newAdapter(el)
	if err != nil {
		s.step("deinitialize media element", func() error { return el.Deinitialize(ctx) })
		return NewError(KindPlaybackError, fmt.Errorf("creating player adapter: %w", err))
	}

	s.mu.Lock()
	s.element = el
	s.adapter = adapter
	s.videoType = src.Type
	s.mu.Unlock()

	// Subscriptions made against a previous instance carry over
	s.registry.Bind(el)

	for _, track := range src.TextTracks {
		log.Debug("Loading text track", "uri", src.URI, "language", track.Language)
		if err := adapter.AddTextTrack(ctx, track); err != nil {
			return NewError(KindInvalidSource, err)
		}
	}

	el.SetAutoplay(src.Autoplay)
	if err := adapter.Load(ctx, src, src.Autoplay); err != nil {
		log.Error("Failed to load video source", "uri", src.URI, "error", err)
		return NewError(KindInvalidSource, err)
	}

	log.Info("Video source loaded", "uri", src.URI, "type", string(src.Type), "autoplay", src.Autoplay)
	return nil
}

// PullTextTracks merges the adapter's tracks into the known set and deselects any caption track.  Call it only once the
// player has signalled canplay.
func (s *InProcessService) PullTextTracks() {
	adapter, err := s.currentAdapter()
	if err != nil {
		log.Warn("Cannot pull text tracks", "error", err)
		return
	}

	s.mu.Lock()
	s.textTracks = lo.Uniq(append(s.textTracks, adapter.TextTracks()...))
	count := len(s.textTracks)
	s.mu.Unlock()

	log.Debug("Pulled text tracks", "count", count)

	if err := adapter.SelectTextTrack(mo.None[TrackToken]()); err != nil {
		log.Warn("Failed to clear text track selection", "error", err)
	}
}

func (s *InProcessService) Play(ctx context.Context) error {
	adapter, err := s.currentAdapter()
	if err != nil {
		return err
	}
	if err := adapter.Play(ctx); err != nil {
		log.Error("Play failed", "error", err)
		return NewError(KindPlaybackError, err)
	}
	return nil
}

func (s *InProcessService) Pause(ctx context.Context) error {
	adapter, err := s.currentAdapter()
	if err != nil {
		return err
	}
	if err := adapter.Pause(ctx); err != nil {
		return NewError(KindPlaybackError, err)
	}
	return nil
}

// SeekTo seeks to t, clamped into [0, duration]
func (s *InProcessService) SeekTo(ctx context.Context, t float64) error {
	adapter, err := s.currentAdapter()
	if err != nil {
		return err
	}
	target := media.ConstrainTime(t, s.Duration())
	if err := adapter.Seek(ctx, target); err != nil {
		return NewError(KindSeekError, err)
	}
	return nil
}

// SeekOffsetBy seeks relative to the current position.  Negative offsets seek backwards.
func (s *InProcessService) SeekOffsetBy(ctx context.Context, offset float64) error {
	if _, err := s.currentAdapter(); err != nil {
		return err
	}
	if err := s.SeekTo(ctx, s.PlaybackTime()+offset); err != nil {
		return NewError(KindSeekError, err)
	}
	return nil
}

// FastSeek asks the adapter for an approximate, keyframe aligned seek
func (s *InProcessService) FastSeek(t float64) error {
	adapter, err := s.currentAdapter()
	if err != nil {
		return err
	}
	if err := adapter.FastSeek(t); err != nil {
		return NewError(KindSeekError, err)
	}
	return nil
}

func (s *InProcessService) SetQuality(token TrackToken) error {
	adapter, err := s.currentAdapter()
	if err != nil {
		return err
	}
	if err := adapter.SetQuality(token); err != nil {
		return NewError(KindQualityChangeError, err)
	}
	return nil
}

func (s *InProcessService) AvailableQualities() ([]QualityVariant, error) {
	adapter, err := s.currentAdapter()
	if err != nil {
		return nil, err
	}
	qualities, err := adapter.AvailableQualities()
	if err != nil {
		return nil, NewError(KindQualityFetchError, err)
	}
	return qualities, nil
}

// TextTracks returns the tracks known since the last PullTextTracks
func (s *InProcessService) TextTracks() []TrackToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TrackToken(nil), s.textTracks...)
}

// SelectTextTrack activates a single caption track, or none
func (s *InProcessService) SelectTextTrack(track mo.Option[TrackToken]) error {
	adapter, err := s.currentAdapter()
	if err != nil {
		return err
	}
	return adapter.SelectTextTrack(track)
}

// ActiveTextTrack returns the selected caption track.  It is None whenever text tracks are configured invisible, no
// matter what is selected underneath.
func (s *InProcessService) ActiveTextTrack() mo.Option[TrackToken] {
	adapter, err := s.currentAdapter()
	if err != nil {
		return mo.None[TrackToken]()
	}
	if !adapter.IsTextTrackVisible() {
		return mo.None[TrackToken]()
	}
	return adapter.ActiveTextTrack()
}

func (s *InProcessService) IsTextTrackVisible() bool {
	adapter, err := s.currentAdapter()
	if err != nil {
		return false
	}
	return adapter.IsTextTrackVisible()
}

// PlaybackTime is the element's current position in seconds, or 0 before initialization
func (s *InProcessService) PlaybackTime() float64 {
	if el := s.currentElement(); el != nil {
		return el.CurrentTime()
	}
	return 0
}

func (s *InProcessService) Duration() float64 {
	if el := s.currentElement(); el != nil {
		return el.Duration()
	}
	return 0
}

// Progress is PlaybackTime as a percentage of Duration.  It is NaN or Inf when the duration is 0.
func (s *InProcessService) Progress() float64 {
	return s.PlaybackTime() * 100 / s.Duration()
}

func (s *InProcessService) Paused() bool {
	if el := s.currentElement(); el != nil {
		return el.Paused()
	}
	return true
}

// VideoType is the type of the currently loaded source
func (s *InProcessService) VideoType() media.VideoType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.videoType
}

// AddEventListener subscribes l to t.  Subscriptions persist across reinitialization.
func (s *InProcessService) AddEventListener(t events.Type, l *events.Listener) {
	s.registry.Add(t, l)
}

func (s *InProcessService) RemoveEventListener(t events.Type, l *events.Listener) {
	s.registry.Remove(t, l)
}

// OnSurfaceViewCreated remembers h and applies it straight away when a player exists
func (s *InProcessService) OnSurfaceViewCreated(_ context.Context, h ViewHandle) {
	s.mu.Lock()
	s.surface = mo.Some(h)
	el := s.element
	s.mu.Unlock()

	if el == nil {
		log.Debug("Surface view created before player, buffering handle", "handle", string(h))
		return
	}
	if err := el.SetSurfaceHandle(h); err != nil {
		log.Warn("Failed to set surface handle", "handle", string(h), "error", err)
	}
}

func (s *InProcessService) OnSurfaceViewDestroyed(_ context.Context, h ViewHandle) error {
	el := s.currentElement()
	if el == nil {
		return ErrNotInitialized
	}
	return el.ClearSurfaceHandle(h)
}

// OnCaptionViewCreated remembers h and applies it straight away when a player exists
func (s *InProcessService) OnCaptionViewCreated(_ context.Context, h ViewHandle) {
	s.mu.Lock()
	s.caption = mo.Some(h)
	el := s.element
	s.mu.Unlock()

	if el == nil {
		log.Debug("Caption view created before player, buffering handle", "handle", string(h))
		return
	}
	if err := el.SetCaptionViewHandle(h); err != nil {
		log.Warn("Failed to set caption view handle", "handle", string(h), "error", err)
	}
}

func (s *InProcessService) OnCaptionViewDestroyed(_ context.Context, h ViewHandle) error {
	el := s.currentElement()
	if el == nil {
		return ErrNotInitialized
	}
	return el.ClearCaptionViewHandle(h)
}

func (s *InProcessService) BufferedViews() (mo.Option[ViewHandle], mo.Option[ViewHandle]) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.surface, s.caption
}

// Destroy gracefully tears down the adapter and element.  Individual failures are logged and never stop the remaining
// steps.  Event subscriptions are kept so a later Initialize restores them.
func (s *InProcessService) Destroy(ctx context.Context) {
	s.mu.RLock()
	el, adapter := s.element, s.adapter
	s.mu.RUnlock()
	if adapter == nil {
		return
	}

	log.Debug("Destroying in-process player resources")

	s.registry.Unbind()
	s.step("pause", func() error { return adapter.Pause(ctx) })
	s.step("unload", func() error { return adapter.Unload(ctx) })
	if el != nil {
		s.step("deinitialize media element", func() error { return el.Deinitialize(ctx) })
	}

	s.cleanup()
	log.Debug("Finished destroying in-process player resources")
}

// DestroySync is the bounded, best-effort teardown.  It never panics and reports whether the final deinitialization
// succeeded.  It returns false straight away if nothing was ever initialized.  Event subscriptions are dropped.
func (s *InProcessService) DestroySync(timeout time.Duration) (ok bool) {
	s.mu.RLock()
	el, adapter := s.element, s.adapter
	s.mu.RUnlock()
	if adapter == nil {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Synchronous teardown panicked", "error", r)
			ok = false
		}
	}()

	s.registry.Clear()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.step("pause", func() error { return adapter.Pause(ctx) })
	s.step("unload", func() error { return adapter.Unload(ctx) })

	if el == nil {
		log.Debug("Deinitializing media element skipped")
		return false
	}

	ok = s.step("deinitialize media element synchronously", func() error { return el.DeinitializeSync(timeout) })
	s.cleanup()
	return ok
}

func (s *InProcessService) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.element = nil
	s.adapter = nil
	s.textTracks = nil
}

func (s *InProcessService) initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adapter != nil || s.element != nil
}

func (s *InProcessService) currentAdapter() (Adapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.adapter == nil {
		return nil, ErrNotInitialized
	}
	return s.adapter, nil
}

func (s *InProcessService) currentElement() MediaElement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.element
}

// step runs one teardown action, logging rather than propagating errors and panics.  It reports whether the action
// succeeded.
func (s *InProcessService) step(name string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Teardown step panicked", "step", name, "error", r)
			ok = false
		}
	}()
	if err := fn(); err != nil {
		log.Error("Teardown step failed", "step", name, "error", err)
		return false
	}
	return true
}
