package events

import (
	"fmt"
	"sync"

	"github.com/PizzaHomicide/playcore/internal/log"
)

// Dispatcher is an in-memory Emitter.  Listeners for a type fire in the order they were added.  A listener that panics
// is logged and dropped so one bad subscriber cannot starve the rest.
type Dispatcher struct {
	mu        sync.Mutex
	listeners map[Type][]*Listener
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[Type][]*Listener)}
}

// AddEventListener attaches l.  Attaching the same listener twice is a no-op.
func (d *Dispatcher) AddEventListener(t Type, l *Listener) {
	if l == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.listeners[t] {
		if existing.ID() == l.ID() {
			return
		}
	}
	d.listeners[t] = append(d.listeners[t], l)
}

// RemoveEventListener detaches l if present
func (d *Dispatcher) RemoveEventListener(t Type, l *Listener) {
	if l == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(t, l.ID())
}

func (d *Dispatcher) removeLocked(t Type, id uint64) {
	ls := d.listeners[t]
	for i, existing := range ls {
		if existing.ID() == id {
			d.listeners[t] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(d.listeners[t]) == 0 {
		delete(d.listeners, t)
	}
}

// Emit delivers e synchronously to every listener registered for e.Type
func (d *Dispatcher) Emit(e Event) {
	d.mu.Lock()
	snapshot := append([]*Listener(nil), d.listeners[e.Type]...)
	d.mu.Unlock()

	for _, l := range snapshot {
		if err := safeCall(l, e); err != nil {
			log.Warn("Event listener failed, removing it", "event", string(e.Type), "listener_id", l.ID(), "error", err)
			d.mu.Lock()
			d.removeLocked(e.Type, l.ID())
			d.mu.Unlock()
		}
	}
}

// Count returns the number of listeners attached for t
func (d *Dispatcher) Count(t Type) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners[t])
}

// Reset drops every listener
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = make(map[Type][]*Listener)
}

func safeCall(l *Listener, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	l.Call(e)
	return nil
}
