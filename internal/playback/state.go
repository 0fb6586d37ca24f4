package playback

import (
	"slices"
	"sync"

	"github.com/samber/mo"

	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/log"
)

// State is the lifecycle state of a playback controller as seen by the UI layer
type State string

const (
	StateInstantiating State = "instantiating"
	StateInstantiated  State = "instantiated"
	StateLoadingVideo  State = "loading_video"
	StateReady         State = "ready"
	StateSeeking       State = "seeking"
	StatePlaying       State = "playing"
	StateWaiting       State = "waiting"
	StatePaused        State = "paused"
	StateError         State = "error"
	StateEnded         State = "ended"
)

// IsInitialized reports whether a player has been brought up and has not failed
func (s State) IsInitialized() bool {
	return s != StateInstantiating && s != StateError
}

// IsPlayable reports whether transport controls make sense in this state
func (s State) IsPlayable() bool {
	switch s {
	case StatePaused, StatePlaying, StateReady, StateSeeking:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// Transition is a single observed state change
type Transition struct {
	From  State
	To    State
	Cause events.Type
}

// StateMachine turns normalized player events into State.  Every change is delivered to observers synchronously from
// the goroutine that applied it, one call per change.
type StateMachine struct {
	mu         sync.Mutex
	state      State
	beforeSeek mo.Option[State]
	observers  []func(Transition)
}

// NewStateMachine returns a machine in StateInstantiating
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateInstantiating}
}

// State returns the current state
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Observe registers fn to be called after every state change
func (m *StateMachine) Observe(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Set forces the state, used for explicit API driven transitions such as reinitialization
func (m *StateMachine) Set(s State) {
	m.apply(s, "")
}

// Reset returns to StateInstantiating and forgets any remembered pre-seek state.  The pre-seek state otherwise
// survives every transition until the matching seeked.
func (m *StateMachine) Reset() {
	m.mu.Lock()
	m.beforeSeek = mo.None[State]()
	m.mu.Unlock()
	m.apply(StateInstantiating, "")
}

// Handle applies the transition rule for event t.  Events with no rule leave the state untouched.
func (m *StateMachine) Handle(t events.Type) {
	switch t {
	case events.Play:
		log.Debug("Player requested to play")
	case events.Playing:
		m.apply(StatePlaying, t)
	case events.Pause:
		m.apply(StatePaused, t)
	case events.LoadedMetadata:
		m.apply(StateLoadingVideo, t)
	case events.CanPlay:
		m.apply(StateReady, t)
	case events.Waiting:
		m.apply(StateWaiting, t)
	case events.Seeking:
		m.mu.Lock()
		// A second seeking while already seeking keeps the state from before the first one
		if m.state != StateSeeking {
			m.beforeSeek = mo.Some(m.state)
		}
		m.mu.Unlock()
		m.apply(StateSeeking, t)
	case events.Seeked:
		m.mu.Lock()
		prev, ok := m.beforeSeek.Get()
		m.beforeSeek = mo.None[State]()
		m.mu.Unlock()
		if !ok {
			log.Debug("Seeked without a remembered state, staying put", "state", m.State())
			return
		}
		m.apply(prev, t)
	case events.Ended:
		m.apply(StateReady, t)
	case events.Error:
		m.apply(StateError, t)
	}
}

func (m *StateMachine) apply(next State, cause events.Type) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	observers := slices.Clone(m.observers)
	m.mu.Unlock()

	if prev == next {
		return
	}

	log.Debug("Playback state changed", "from", prev.String(), "to", next.String(), "event", string(cause))
	tr := Transition{From: prev, To: next, Cause: cause}
	for _, fn := range observers {
		fn(tr)
	}
}
