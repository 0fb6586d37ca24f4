package playback

import (
	"context"
	"time"

	"github.com/samber/mo"

	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/media"
)

// DefaultDeinitTimeout is the advisory timeout handed to synchronous teardown when the caller has no better value
const DefaultDeinitTimeout = 1500 * time.Millisecond

// ControllerType identifies which backing implementation a Controller uses
type ControllerType string

const (
	InProcess   ControllerType = "in-process"
	CrossThread ControllerType = "cross-thread"
)

// TrackToken is an opaque identifier for a text track or quality variant, handed out by the adapter
type TrackToken string

// ViewHandle is an opaque reference to a native video surface or caption view
type ViewHandle string

// QualityVariant is one selectable quality level
type QualityVariant struct {
	Label string     `json:"label"`
	Token TrackToken `json:"track_token"`
}

// MediaElement is the low level media handle a player adapter drives.  Raw events are emitted on it.
type MediaElement interface {
	events.Emitter

	Initialize(ctx context.Context) error
	Deinitialize(ctx context.Context) error
	// DeinitializeSync tears the element down without blocking for longer than timeout.  A nil error means the
	// native layer reported success.
	DeinitializeSync(timeout time.Duration) error

	SetSurfaceHandle(h ViewHandle) error
	ClearSurfaceHandle(h ViewHandle) error
	SetCaptionViewHandle(h ViewHandle) error
	ClearCaptionViewHandle(h ViewHandle) error

	SetAutoplay(autoplay bool)
	CurrentTime() float64
	Duration() float64
	Paused() bool
}

// Adapter is the pluggable decoder layer that loads a source into a MediaElement and exposes transport, track and
// quality operations over it.
type Adapter interface {
	Load(ctx context.Context, src media.VideoSource, autoplay bool) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, t float64) error
	FastSeek(t float64) error
	Unload(ctx context.Context) error

	AddTextTrack(ctx context.Context, track media.TextTrack) error
	TextTracks() []TrackToken
	SelectTextTrack(track mo.Option[TrackToken]) error
	ActiveTextTrack() mo.Option[TrackToken]
	IsTextTrackVisible() bool

	AvailableQualities() ([]QualityVariant, error)
	SetQuality(token TrackToken) error
}

// ElementFactory creates a fresh, uninitialized media element
type ElementFactory func() MediaElement

// AdapterConstructor builds an adapter bound to el.  Adapter settings are captured by the constructor itself.
type AdapterConstructor func(el MediaElement) (Adapter, error)

// Controller is the implementation agnostic transport surface.  UI code is written once against it and never needs to
// know which backing implementation was picked.
type Controller interface {
	Type() ControllerType

	Initialize(ctx context.Context, src media.VideoSource) error
	Destroy(ctx context.Context)
	DestroySync(timeout time.Duration) bool

	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	SeekTo(ctx context.Context, t float64) error
	SeekOffsetBy(ctx context.Context, offset float64) error

	PlaybackTime() float64
	Duration() float64
	Progress() float64
	Paused() bool

	PullTextTracks()
	TextTracks() []TrackToken
	SelectTextTrack(track mo.Option[TrackToken]) error
	ActiveTextTrack() mo.Option[TrackToken]
	IsTextTrackVisible() bool

	AvailableQualities() ([]QualityVariant, error)
	SetQuality(token TrackToken) error

	AddEventListener(t events.Type, l *events.Listener)
	RemoveEventListener(t events.Type, l *events.Listener)

	OnSurfaceViewCreated(ctx context.Context, h ViewHandle)
	OnSurfaceViewDestroyed(ctx context.Context, h ViewHandle) error
	OnCaptionViewCreated(ctx context.Context, h ViewHandle)
	OnCaptionViewDestroyed(ctx context.Context, h ViewHandle) error
	// BufferedViews returns the most recent surface and caption handles handed to the controller
	BufferedViews() (surface, caption mo.Option[ViewHandle])
}
