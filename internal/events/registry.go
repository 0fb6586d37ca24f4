package events

import (
	"sync"
	"time"

	"github.com/PizzaHomicide/playcore/internal/log"
)

// DefaultThrottleInterval caps throttled events at 60Hz
const DefaultThrottleInterval = time.Second / 60

// throttled is the fixed allow-list of high-frequency progress events that may be rate-limited.  State-changing events
// are never in here.
var throttled = map[Type]struct{}{
	TimeUpdate: {},
}

// IsThrottled reports whether events of type t are rate-limited
func IsThrottled(t Type) bool {
	_, ok := throttled[t]
	return ok
}

type registration struct {
	original *Listener
	wrapped  *Listener
}

// Registry sits between callers and an Emitter.  Each (event, listener) pair is attached to the emitter at most once,
// throttle-eligible events are wrapped in a rate limiter, and removal by the original listener finds the wrapper that the
// emitter actually knows about.  Registrations survive rebinding to a new emitter.
type Registry struct {
	mu        sync.Mutex
	interval  time.Duration
	now       func() time.Time
	target    Emitter
	byType    map[Type][]*registration
	lastFired map[Type]time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithInterval overrides the throttle interval
func WithInterval(d time.Duration) Option {
	return func(r *Registry) {
		r.interval = d
	}
}

// WithClock overrides the time source used for throttling
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty registry, not yet bound to any emitter
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		interval:  DefaultThrottleInterval,
		now:       time.Now,
		byType:    make(map[Type][]*registration),
		lastFired: make(map[Type]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers l for events of type t.  Adding the same pair twice is a no-op.
func (r *Registry) Add(t Type, l *Listener) {
	if l == nil {
		return
	}

	r.mu.Lock()
	if r.findLocked(t, l) != nil {
		r.mu.Unlock()
		return
	}
	reg := &registration{original: l, wrapped: r.wrap(t, l)}
	r.byType[t] = append(r.byType[t], reg)
	target := r.target
	r.mu.Unlock()

	if target != nil {
		target.AddEventListener(t, reg.wrapped)
	}
}

// Remove detaches l from events of type t.  It is a no-op when the pair was never registered.
func (r *Registry) Remove(t Type, l *Listener) {
	if l == nil {
		return
	}

	r.mu.Lock()
	reg := r.findLocked(t, l)
	if reg == nil {
		r.mu.Unlock()
		return
	}
	regs := r.byType[t]
	for i, candidate := range regs {
		if candidate == reg {
			regs = append(regs[:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(r.byType, t)
	} else {
		r.byType[t] = regs
	}
	target := r.target
	r.mu.Unlock()

	if target != nil {
		target.RemoveEventListener(t, reg.wrapped)
	}
}

// Bind attaches every registered wrapper to em, in registration order.  Each wrapper is removed first so binding the same
// emitter twice never double-attaches.
func (r *Registry) Bind(em Emitter) {
	r.mu.Lock()
	r.target = em
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if em == nil {
		return
	}
	for _, s := range snapshot {
		em.RemoveEventListener(s.t, s.reg.wrapped)
		em.AddEventListener(s.t, s.reg.wrapped)
	}
}

// Unbind detaches every wrapper from the current emitter but keeps the registrations so a later Bind restores them.
// Throttle timestamps are reset.
func (r *Registry) Unbind() {
	r.mu.Lock()
	target := r.target
	r.target = nil
	snapshot := r.snapshotLocked()
	r.lastFired = make(map[Type]time.Time)
	r.mu.Unlock()

	if target == nil {
		return
	}
	for _, s := range snapshot {
		target.RemoveEventListener(s.t, s.reg.wrapped)
	}
}

// Clear is the full teardown: detach everything, then forget every registration.
func (r *Registry) Clear() {
	r.Unbind()

	r.mu.Lock()
	r.byType = make(map[Type][]*registration)
	r.mu.Unlock()
}

// Len returns the number of registered (event, listener) pairs
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, regs := range r.byType {
		n += len(regs)
	}
	return n
}

// Has reports whether l is registered for t
func (r *Registry) Has(t Type, l *Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(t, l) != nil
}

func (r *Registry) findLocked(t Type, l *Listener) *registration {
	for _, reg := range r.byType[t] {
		if reg.original.ID() == l.ID() {
			return reg
		}
	}
	return nil
}

type typedRegistration struct {
	t   Type
	reg *registration
}

// snapshotLocked returns registrations grouped by event type, in registration order within a type
func (r *Registry) snapshotLocked() []typedRegistration {
	var out []typedRegistration
	for _, t := range All {
		for _, reg := range r.byType[t] {
			out = append(out, typedRegistration{t: t, reg: reg})
		}
	}
	// Event names outside the normalized vocabulary still need to be carried
	for t, regs := range r.byType {
		if isKnown(t) {
			continue
		}
		for _, reg := range regs {
			out = append(out, typedRegistration{t: t, reg: reg})
		}
	}
	return out
}

func isKnown(t Type) bool {
	for _, k := range All {
		if k == t {
			return true
		}
	}
	return false
}

// wrap returns the listener that gets attached to the emitter.  Non-throttled events pass the original straight through.
func (r *Registry) wrap(t Type, l *Listener) *Listener {
	if !IsThrottled(t) {
		return l
	}
	return NewListener(func(e Event) {
		if r.allow(t) {
			l.Call(e)
		}
	})
}

// allow implements the throttle: fire only when at least one interval has passed since the last fired event of this
// type, and only advance the timestamp when actually firing.
func (r *Registry) allow(t Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	last, ok := r.lastFired[t]
	if ok && now.Sub(last) < r.interval {
		log.Trace("Throttled event", "event", string(t))
		return false
	}
	r.lastFired[t] = now
	return true
}
