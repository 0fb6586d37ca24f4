// Package playbacktest provides in-memory media elements and adapters for exercising playback controllers without a
// real player.
package playbacktest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samber/mo"

	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/media"
	"github.com/PizzaHomicide/playcore/internal/playback"
)

// FakeElement is a scriptable playback.MediaElement.  Events are fired by hand with Fire.
type FakeElement struct {
	*events.Dispatcher

	mu            sync.Mutex
	currentTime   float64
	duration      float64
	paused        bool
	autoplay      bool
	initialized   bool
	surface       mo.Option[playback.ViewHandle]
	caption       mo.Option[playback.ViewHandle]
	calls         []string
	InitErr       error
	DeinitErr     error
	DeinitSyncErr error
	// PanicOnDeinitSync makes DeinitializeSync panic, like a misbehaving native binding
	PanicOnDeinitSync bool
}

// NewFakeElement returns a paused element with no duration
func NewFakeElement() *FakeElement {
	return &FakeElement{
		Dispatcher: events.NewDispatcher(),
		paused:     true,
	}
}

func (e *FakeElement) record(call string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
}

// Calls returns the method calls seen so far, in order
func (e *FakeElement) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *FakeElement) Initialize(context.Context) error {
	e.record("initialize")
	if e.InitErr != nil {
		return e.InitErr
	}
	e.mu.Lock()
	e.initialized = true
	e.mu.Unlock()
	return nil
}

func (e *FakeElement) Deinitialize(context.Context) error {
	e.record("deinitialize")
	e.mu.Lock()
	e.initialized = false
	e.mu.Unlock()
	return e.DeinitErr
}

func (e *FakeElement) DeinitializeSync(time.Duration) error {
	e.record("deinitialize_sync")
	if e.PanicOnDeinitSync {
		panic("native deinit failed")
	}
	e.mu.Lock()
	e.initialized = false
	e.mu.Unlock()
	return e.DeinitSyncErr
}

func (e *FakeElement) SetSurfaceHandle(h playback.ViewHandle) error {
	e.record("set_surface:" + string(h))
	e.mu.Lock()
	defer e.mu.Unlock()
	e.surface = mo.Some(h)
	return nil
}

func (e *FakeElement) ClearSurfaceHandle(h playback.ViewHandle) error {
	e.record("clear_surface:" + string(h))
	e.mu.Lock()
	defer e.mu.Unlock()
	e.surface = mo.None[playback.ViewHandle]()
	return nil
}

func (e *FakeElement) SetCaptionViewHandle(h playback.ViewHandle) error {
	e.record("set_caption:" + string(h))
	e.mu.Lock()
	defer e.mu.Unlock()
	e.caption = mo.Some(h)
	return nil
}

func (e *FakeElement) ClearCaptionViewHandle(h playback.ViewHandle) error {
	e.record("clear_caption:" + string(h))
	e.mu.Lock()
	defer e.mu.Unlock()
	e.caption = mo.None[playback.ViewHandle]()
	return nil
}

func (e *FakeElement) SetAutoplay(autoplay bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoplay = autoplay
}

// Autoplay returns the last value handed to SetAutoplay
func (e *FakeElement) Autoplay() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoplay
}

// Surface returns the currently attached surface handle
func (e *FakeElement) Surface() mo.Option[playback.ViewHandle] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface
}

// Caption returns the currently attached caption view handle
func (e *FakeElement) Caption() mo.Option[playback.ViewHandle] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.caption
}

func (e *FakeElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime
}

func (e *FakeElement) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *FakeElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// SetPosition moves the playhead and duration
func (e *FakeElement) SetPosition(currentTime, duration float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentTime = currentTime
	e.duration = duration
}

func (e *FakeElement) SetPaused(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = paused
}

// Fire emits an event of type t with no payload
func (e *FakeElement) Fire(t events.Type) {
	e.Emit(events.Event{Type: t})
}

// LoadCall records one Adapter.Load invocation
type LoadCall struct {
	Source   media.VideoSource
	Autoplay bool
}

// FakeAdapter is a scriptable playback.Adapter.  Set the *Err fields to make the corresponding call fail.
type FakeAdapter struct {
	Element playback.MediaElement

	mu              sync.Mutex
	loads           []LoadCall
	seeks           []float64
	addedTracks     []media.TextTrack
	calls           []string
	tracks          []playback.TrackToken
	active          mo.Option[playback.TrackToken]
	visible         bool
	qualities       []playback.QualityVariant
	quality         playback.TrackToken
	textTrackPulls  int
	LoadErr         error
	PlayErr         error
	PauseErr        error
	SeekErr         error
	UnloadErr       error
	AddTextTrackErr error
	QualityErr      error
	// PanicOnUnload makes Unload panic
	PanicOnUnload bool
}

// NewFakeAdapter returns an adapter with visible text tracks and nothing loaded
func NewFakeAdapter(el playback.MediaElement) *FakeAdapter {
	return &FakeAdapter{Element: el, visible: true}
}

func (a *FakeAdapter) record(call string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
}

// Calls returns the adapter calls seen so far, in order
func (a *FakeAdapter) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *FakeAdapter) Load(_ context.Context, src media.VideoSource, autoplay bool) error {
	a.record("load")
	a.mu.Lock()
	a.loads = append(a.loads, LoadCall{Source: src, Autoplay: autoplay})
	a.mu.Unlock()
	return a.LoadErr
}

// Loads returns every Load call
func (a *FakeAdapter) Loads() []LoadCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]LoadCall(nil), a.loads...)
}

func (a *FakeAdapter) Play(context.Context) error {
	a.record("play")
	return a.PlayErr
}

func (a *FakeAdapter) Pause(context.Context) error {
	a.record("pause")
	return a.PauseErr
}

func (a *FakeAdapter) Seek(_ context.Context, t float64) error {
	a.record("seek")
	a.mu.Lock()
	a.seeks = append(a.seeks, t)
	a.mu.Unlock()
	return a.SeekErr
}

func (a *FakeAdapter) FastSeek(t float64) error {
	a.record("fast_seek")
	a.mu.Lock()
	a.seeks = append(a.seeks, t)
	a.mu.Unlock()
	return a.SeekErr
}

// Seeks returns every seek target
func (a *FakeAdapter) Seeks() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]float64(nil), a.seeks...)
}

func (a *FakeAdapter) Unload(context.Context) error {
	a.record("unload")
	if a.PanicOnUnload {
		panic("unload exploded")
	}
	return a.UnloadErr
}

func (a *FakeAdapter) AddTextTrack(_ context.Context, track media.TextTrack) error {
	a.record("add_text_track:" + track.Language)
	if a.AddTextTrackErr != nil {
		return a.AddTextTrackErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addedTracks = append(a.addedTracks, track)
	a.tracks = append(a.tracks, playback.TrackToken(track.Language))
	return nil
}

// AddedTracks returns the tracks passed to AddTextTrack, in order
func (a *FakeAdapter) AddedTracks() []media.TextTrack {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]media.TextTrack(nil), a.addedTracks...)
}

// SetTracks replaces the tracks reported by TextTracks
func (a *FakeAdapter) SetTracks(tokens ...playback.TrackToken) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tracks = tokens
}

func (a *FakeAdapter) TextTracks() []playback.TrackToken {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.textTrackPulls++
	return append([]playback.TrackToken(nil), a.tracks...)
}

// TextTrackPulls counts TextTracks calls
func (a *FakeAdapter) TextTrackPulls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.textTrackPulls
}

func (a *FakeAdapter) SelectTextTrack(track mo.Option[playback.TrackToken]) error {
	a.record("select_text_track")
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := track.Get(); ok {
		found := false
		for _, known := range a.tracks {
			if known == t {
				found = true
				break
			}
		}
		if !found {
			return errors.New("unknown text track " + string(t))
		}
	}
	a.active = track
	return nil
}

func (a *FakeAdapter) ActiveTextTrack() mo.Option[playback.TrackToken] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *FakeAdapter) IsTextTrackVisible() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.visible
}

// SetTextTrackVisible toggles caption visibility independently of the selection
func (a *FakeAdapter) SetTextTrackVisible(visible bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.visible = visible
}

// SetQualities replaces the reported quality variants
func (a *FakeAdapter) SetQualities(q ...playback.QualityVariant) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.qualities = q
}

func (a *FakeAdapter) AvailableQualities() ([]playback.QualityVariant, error) {
	if a.QualityErr != nil {
		return nil, a.QualityErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]playback.QualityVariant(nil), a.qualities...), nil
}

func (a *FakeAdapter) SetQuality(token playback.TrackToken) error {
	a.record("set_quality:" + string(token))
	if a.QualityErr != nil {
		return a.QualityErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.quality = token
	return nil
}

// Quality returns the last token set with SetQuality
func (a *FakeAdapter) Quality() playback.TrackToken {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quality
}

// Rig hands out fake elements and adapters to a service and keeps hold of them for assertions
type Rig struct {
	mu       sync.Mutex
	elements []*FakeElement
	adapters []*FakeAdapter
	// ConfigureElement and ConfigureAdapter run on every new fake before it is handed out
	ConfigureElement func(*FakeElement)
	ConfigureAdapter func(*FakeAdapter)
	AdapterErr       error
}

// NewElement satisfies playback.ElementFactory
func (r *Rig) NewElement() playback.MediaElement {
	el := NewFakeElement()
	if r.ConfigureElement != nil {
		r.ConfigureElement(el)
	}
	r.mu.Lock()
	r.elements = append(r.elements, el)
	r.mu.Unlock()
	return el
}

// NewAdapter satisfies playback.AdapterConstructor
func (r *Rig) NewAdapter(el playback.MediaElement) (playback.Adapter, error) {
	if r.AdapterErr != nil {
		return nil, r.AdapterErr
	}
	a := NewFakeAdapter(el)
	if r.ConfigureAdapter != nil {
		r.ConfigureAdapter(a)
	}
	r.mu.Lock()
	r.adapters = append(r.adapters, a)
	r.mu.Unlock()
	return a, nil
}

// Service builds an InProcessService wired to this rig
func (r *Rig) Service(opts ...playback.ServiceOption) *playback.InProcessService {
	return playback.NewInProcessService(r.NewElement, r.NewAdapter, opts...)
}

// Element returns the most recently created element, or nil
func (r *Rig) Element() *FakeElement {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.elements) == 0 {
		return nil
	}
	return r.elements[len(r.elements)-1]
}

// Adapter returns the most recently created adapter, or nil
func (r *Rig) Adapter() *FakeAdapter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.adapters) == 0 {
		return nil
	}
	return r.adapters[len(r.adapters)-1]
}

// Elements returns every element created so far
func (r *Rig) Elements() []*FakeElement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*FakeElement(nil), r.elements...)
}
