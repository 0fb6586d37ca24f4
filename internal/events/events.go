package events

import (
	"sync/atomic"
)

// Type is a normalized player event name
type Type string

const (
	// Play indicates that playback was requested.  Informational only.
	Play           Type = "play"
	Playing        Type = "playing"
	Pause          Type = "pause"
	Seeking        Type = "seeking"
	Seeked         Type = "seeked"
	Waiting        Type = "waiting"
	CanPlay        Type = "canplay"
	LoadedMetadata Type = "loadedmetadata"
	Ended          Type = "ended"
	Error          Type = "error"
	TimeUpdate     Type = "timeupdate"
)

// All lists the normalized event vocabulary
var All = []Type{Play, Playing, Pause, Seeking, Seeked, Waiting, CanPlay, LoadedMetadata, Ended, Error, TimeUpdate}

// Event is what listeners receive
type Event struct {
	Type Type
	// Data carries event specific payload, e.g. the position for TimeUpdate or an error for Error
	Data any
}

var lastListenerID atomic.Uint64

// Listener is a callback with a stable identity.  Go funcs are not comparable, so registration, lookup and removal are
// keyed by the ID assigned when the listener is created.
type Listener struct {
	id uint64
	fn func(Event)
}

// NewListener wraps fn in a Listener with a fresh ID
func NewListener(fn func(Event)) *Listener {
	return &Listener{
		id: lastListenerID.Add(1),
		fn: fn,
	}
}

// ID returns the identity the listener was registered under
func (l *Listener) ID() uint64 {
	return l.id
}

// Call invokes the underlying callback
func (l *Listener) Call(e Event) {
	if l != nil && l.fn != nil {
		l.fn(e)
	}
}

// Emitter is anything raw events can be subscribed on, typically a media element
type Emitter interface {
	AddEventListener(t Type, l *Listener)
	RemoveEventListener(t Type, l *Listener)
}
