package mpv

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/PizzaHomicide/playcore/internal/log"
	"github.com/PizzaHomicide/playcore/internal/media"
	"github.com/PizzaHomicide/playcore/internal/playback"
)

// ErrDRMUnsupported rejects protected sources, mpv has no license handling
var ErrDRMUnsupported = errors.New("DRM protected sources are not supported by mpv")

// Adapter is the playback.Adapter for an mpv Element
type Adapter struct {
	el *Element
}

// NewAdapter satisfies playback.AdapterConstructor.  It only accepts elements created by this package.
func NewAdapter(el playback.MediaElement) (playback.Adapter, error) {
	mpvEl, ok := el.(*Element)
	if !ok {
		return nil, fmt.Errorf("mpv adapter needs an mpv element, got %T", el)
	}
	return &Adapter{el: mpvEl}, nil
}

// Load replaces whatever is playing with src.  Without autoplay the file is opened paused.
func (a *Adapter) Load(ctx context.Context, src media.VideoSource, autoplay bool) error {
	if src.DRM != nil {
		return ErrDRMUnsupported
	}

	log.Debug("Loading file into mpv", "uri", src.URI, "autoplay", autoplay)
	if _, err := a.el.command(ctx, "set_property", "pause", !autoplay); err != nil {
		return err
	}
	if src.Title != "" {
		if _, err := a.el.command(ctx, "set_property", "force-media-title", src.Title); err != nil {
			log.Debug("Failed to set media title", "error", err)
		}
	}
	_, err := a.el.command(ctx, "loadfile", src.URI, "replace")
	return err
}

func (a *Adapter) Play(ctx context.Context) error {
	_, err := a.el.command(ctx, "set_property", "pause", false)
	return err
}

func (a *Adapter) Pause(ctx context.Context) error {
	_, err := a.el.command(ctx, "set_property", "pause", true)
	return err
}

func (a *Adapter) Seek(ctx context.Context, t float64) error {
	_, err := a.el.command(ctx, "seek", t, "absolute+exact")
	return err
}

// FastSeek jumps to the nearest keyframe
func (a *Adapter) FastSeek(t float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	_, err := a.el.command(ctx, "seek", t, "absolute+keyframes")
	return err
}

func (a *Adapter) Unload(ctx context.Context) error {
	_, err := a.el.command(ctx, "stop")
	return err
}

// AddTextTrack loads an external subtitle file without selecting it.  Tracks added before a file is loaded are held
// until mpv reports file-loaded.
func (a *Adapter) AddTextTrack(ctx context.Context, track media.TextTrack) error {
	if track.URI == "" {
		return errors.New("text track has no uri")
	}
	if a.el.queueSubtitle(track) {
		log.Debug("Deferring text track until the file is loaded", "uri", track.URI)
		return nil
	}
	return a.el.subAdd(ctx, track)
}

// TextTracks lists subtitle tracks, embedded and external
func (a *Adapter) TextTracks() []playback.TrackToken {
	s := a.el.snapshot()
	return lo.Map(s.tracksOfType("sub"), func(t Track, _ int) playback.TrackToken { return t.Token() })
}

// SelectTextTrack sets sid, or disables subtitles for None
func (a *Adapter) SelectTextTrack(track mo.Option[playback.TrackToken]) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	token, ok := track.Get()
	if !ok {
		_, err := a.el.command(ctx, "set_property", "sid", "no")
		return err
	}
	id, err := a.trackID("sub", token)
	if err != nil {
		return err
	}
	_, err = a.el.command(ctx, "set_property", "sid", id)
	return err
}

func (a *Adapter) ActiveTextTrack() mo.Option[playback.TrackToken] {
	s := a.el.snapshot()
	id, ok := s.sid.Get()
	if !ok {
		return mo.None[playback.TrackToken]()
	}
	return mo.Some(playback.TrackToken(strconv.FormatInt(id, 10)))
}

func (a *Adapter) IsTextTrackVisible() bool {
	return a.el.snapshot().subVisible
}

// AvailableQualities maps video tracks to quality variants
func (a *Adapter) AvailableQualities() ([]playback.QualityVariant, error) {
	s := a.el.snapshot()
	if !s.loaded {
		return nil, errors.New("no file loaded")
	}
	return lo.Map(s.tracksOfType("video"), func(t Track, _ int) playback.QualityVariant {
		return playback.QualityVariant{Label: t.Label(), Token: t.Token()}
	}), nil
}

// SetQuality switches the video track
func (a *Adapter) SetQuality(token playback.TrackToken) error {
	id, err := a.trackID("video", token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	_, err = a.el.command(ctx, "set_property", "vid", id)
	return err
}

func (a *Adapter) trackID(kind string, token playback.TrackToken) (int64, error) {
	s := a.el.snapshot()
	t, ok := lo.Find(s.tracksOfType(kind), func(t Track) bool { return t.Token() == token })
	if !ok {
		return 0, fmt.Errorf("unknown %s track %s", kind, token)
	}
	return t.ID, nil
}
