package playback

import (
	"context"
	"sync"
	"time"

	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/log"
	"github.com/PizzaHomicide/playcore/internal/media"
)

// ControllerFactory builds a fresh, uninitialized controller
type ControllerFactory func() Controller

// Session binds one controller to a StateMachine and exposes the state together with a remount key.  The key changes
// every time the controller is replaced so views know to recreate their native surfaces.
type Session struct {
	newController ControllerFactory
	deinitTimeout time.Duration
	machine       *StateMachine

	mu          sync.Mutex
	ctrl        Controller
	key         int
	listeners   map[events.Type]*events.Listener
	pullPending bool
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithDeinitTimeout sets the advisory timeout used when a session tears its controller down
func WithDeinitTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.deinitTimeout = d
	}
}

// NewSession creates a controller with newController, subscribes to its events and moves to StateInstantiated
func NewSession(newController ControllerFactory, opts ...SessionOption) *Session {
	s := &Session{
		newController: newController,
		deinitTimeout: DefaultDeinitTimeout,
		machine:       NewStateMachine(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mount(nil)
	return s
}

// State returns the current playback state
func (s *Session) State() State {
	return s.machine.State()
}

// Key returns the remount key
func (s *Session) Key() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Controller returns the controller currently owned by the session
func (s *Session) Controller() Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl
}

// Observe registers fn for every state transition
func (s *Session) Observe(fn func(Transition)) {
	s.machine.Observe(fn)
}

// Start initializes the controller with src.  Failures move the session to StateError and are returned.
func (s *Session) Start(ctx context.Context, src media.VideoSource) error {
	ctrl := s.Controller()
	if ctrl == nil {
		return ErrNotInitialized
	}
	if s.State() != StateInstantiated {
		log.Debug("Starting session outside of instantiated state", "state", s.State().String())
	}

	s.mu.Lock()
	s.pullPending = true
	s.mu.Unlock()

	log.Debug("Initializing the player", "controller", string(ctrl.Type()), "uri", src.URI)
	if err := ctrl.Initialize(ctx, src); err != nil {
		log.Error("Error initializing player", "error", err)
		s.machine.Set(StateError)
		return err
	}

	// There is no canplay on the cross-thread path, so a successful initialize is as good as ready
	if ctrl.Type() == CrossThread && s.State() == StateInstantiated {
		s.machine.Set(StateReady)
	}
	return nil
}

// Reset tears the current controller down synchronously and replaces it with a fresh one.  Buffered surface and
// caption handles are handed over to the new controller.
func (s *Session) Reset() {
	prev := s.unmount()
	s.mount(prev)
}

// Close tears the current controller down without replacing it
func (s *Session) Close() {
	s.unmount()
}

func (s *Session) mount(prev Controller) {
	ctrl := s.newController()

	if prev != nil {
		surface, caption := prev.BufferedViews()
		if h, ok := surface.Get(); ok {
			ctrl.OnSurfaceViewCreated(context.Background(), h)
		}
		if h, ok := caption.Get(); ok {
			ctrl.OnCaptionViewCreated(context.Background(), h)
		}
	}

	listeners := make(map[events.Type]*events.Listener, len(events.All))
	for _, t := range events.All {
		if t == events.TimeUpdate {
			continue
		}
		listeners[t] = events.NewListener(s.handler(ctrl))
	}

	s.mu.Lock()
	s.ctrl = ctrl
	s.listeners = listeners
	s.pullPending = true
	s.mu.Unlock()

	s.machine.Set(StateInstantiated)

	log.Debug("Registering player event listeners", "controller", string(ctrl.Type()))
	for t, l := range listeners {
		ctrl.AddEventListener(t, l)
	}
}

func (s *Session) unmount() Controller {
	s.mu.Lock()
	ctrl := s.ctrl
	listeners := s.listeners
	s.ctrl = nil
	s.listeners = nil
	s.mu.Unlock()

	s.machine.Reset()
	if ctrl == nil {
		return nil
	}

	for t, l := range listeners {
		ctrl.RemoveEventListener(t, l)
	}
	ctrl.DestroySync(s.deinitTimeout)

	s.mu.Lock()
	s.key++
	s.mu.Unlock()
	return ctrl
}

func (s *Session) handler(ctrl Controller) func(events.Event) {
	return func(e events.Event) {
		switch e.Type {
		case events.CanPlay:
			// Tracks are pulled once per initialization, later canplays come from seeks
			s.mu.Lock()
			pull := s.pullPending && s.ctrl == ctrl
			s.pullPending = false
			s.mu.Unlock()
			if pull {
				ctrl.PullTextTracks()
			}
		case events.Error:
			log.Error("Player has reported an error", "error", e.Data)
		}
		s.machine.Handle(e.Type)
	}
}
