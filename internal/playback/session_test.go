package playback_test

import (
	"context"
	"errors"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/playback"
	"github.com/PizzaHomicide/playcore/internal/playback/playbacktest"
)

// remoteController pretends to be a cross-thread controller so the session takes that path
type remoteController struct {
	*playback.InProcessService
}

func (remoteController) Type() playback.ControllerType { return playback.CrossThread }

func TestSessionCanPlayPullsTracksOnce(t *testing.T) {
	ctx := context.Background()
	rig := &playbacktest.Rig{}
	session := playback.NewSession(func() playback.Controller { return rig.Service() })
	require.NoError(t, session.Start(ctx, mp4Source))

	el := rig.Element()
	el.Fire(events.CanPlay)
	el.Fire(events.Playing)
	el.Fire(events.Seeking)
	el.Fire(events.CanPlay)
	el.Fire(events.Seeked)
	el.Fire(events.CanPlay)

	assert.Equal(t, 1, rig.Adapter().TextTrackPulls())

	// A fresh initialize pulls again
	require.NoError(t, session.Start(ctx, mp4Source))
	require.Len(t, rig.Elements(), 2)
	rig.Element().Fire(events.CanPlay)
	assert.Equal(t, 1, rig.Adapter().TextTrackPulls())
}

func TestSessionStartFailure(t *testing.T) {
	rig := &playbacktest.Rig{ConfigureAdapter: func(a *playbacktest.FakeAdapter) {
		a.LoadErr = errors.New("bad manifest")
	}}
	session := playback.NewSession(func() playback.Controller { return rig.Service() })

	err := session.Start(context.Background(), mp4Source)
	assert.Error(t, err)
	assert.Equal(t, playback.StateError, session.State())
}

func TestSessionErrorEvent(t *testing.T) {
	rig := &playbacktest.Rig{}
	session := playback.NewSession(func() playback.Controller { return rig.Service() })
	require.NoError(t, session.Start(context.Background(), mp4Source))

	rig.Element().Emit(events.Event{Type: events.Error, Data: errors.New("decode error")})
	assert.Equal(t, playback.StateError, session.State())
}

func TestSessionCrossThreadReadyOnInitialize(t *testing.T) {
	rig := &playbacktest.Rig{}
	session := playback.NewSession(func() playback.Controller {
		return remoteController{InProcessService: rig.Service()}
	})

	require.NoError(t, session.Start(context.Background(), mp4Source))
	assert.Equal(t, playback.StateReady, session.State())
}

func TestSessionReset(t *testing.T) {
	ctx := context.Background()
	rig := &playbacktest.Rig{}
	session := playback.NewSession(func() playback.Controller { return rig.Service() })

	var states []playback.State
	session.Observe(func(tr playback.Transition) { states = append(states, tr.To) })

	first := session.Controller()
	first.OnSurfaceViewCreated(ctx, "surface")
	first.OnCaptionViewCreated(ctx, "captions")
	require.NoError(t, session.Start(ctx, mp4Source))
	oldElement := rig.Element()

	session.Reset()

	assert.Equal(t, 1, session.Key())
	assert.Equal(t, playback.StateInstantiated, session.State())
	assert.Equal(t, []playback.State{playback.StateInstantiating, playback.StateInstantiated}, states)
	assert.NotSame(t, first, session.Controller())
	assert.Contains(t, oldElement.Calls(), "deinitialize_sync")

	surface, caption := session.Controller().BufferedViews()
	assert.Equal(t, mo.Some[playback.ViewHandle]("surface"), surface)
	assert.Equal(t, mo.Some[playback.ViewHandle]("captions"), caption)

	require.NoError(t, session.Start(ctx, mp4Source))
	assert.Equal(t, mo.Some[playback.ViewHandle]("surface"), rig.Element().Surface())

	// Old element no longer drives state
	oldElement.Fire(events.Playing)
	assert.Equal(t, playback.StateInstantiated, session.State())
	rig.Element().Fire(events.Playing)
	assert.Equal(t, playback.StatePlaying, session.State())
}

func TestSessionClose(t *testing.T) {
	rig := &playbacktest.Rig{}
	session := playback.NewSession(func() playback.Controller { return rig.Service() })
	require.NoError(t, session.Start(context.Background(), mp4Source))

	session.Close()
	assert.Nil(t, session.Controller())
	assert.Equal(t, playback.StateInstantiating, session.State())
	assert.ErrorIs(t, session.Start(context.Background(), mp4Source), playback.ErrNotInitialized)
}
