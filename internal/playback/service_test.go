package playback_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/media"
	"github.com/PizzaHomicide/playcore/internal/playback"
	"github.com/PizzaHomicide/playcore/internal/playback/playbacktest"
)

var mp4Source = media.VideoSource{URI: "https://e.com/v.mp4", Type: media.VideoTypeMP4, Autoplay: true}

func initializedService(t *testing.T) (*playback.InProcessService, *playbacktest.Rig) {
	t.Helper()
	rig := &playbacktest.Rig{}
	svc := rig.Service()
	require.NoError(t, svc.Initialize(context.Background(), mp4Source))
	return svc, rig
}

func TestInProcessInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadsWithAutoplay", func(t *testing.T) {
		_, rig := initializedService(t)

		loads := rig.Adapter().Loads()
		require.Len(t, loads, 1)
		assert.True(t, loads[0].Autoplay)
		assert.Equal(t, mp4Source.URI, loads[0].Source.URI)
		assert.True(t, rig.Element().Autoplay())
	})

	t.Run("InvalidSourceRejected", func(t *testing.T) {
		rig := &playbacktest.Rig{}
		err := rig.Service().Initialize(ctx, media.VideoSource{URI: "https://e.com/v.avi", Type: "avi"})
		assert.ErrorIs(t, err, playback.ErrInvalidSource)
		assert.Nil(t, rig.Element())
	})

	t.Run("LoadFailureKeepsAdapterMessage", func(t *testing.T) {
		rig := &playbacktest.Rig{ConfigureAdapter: func(a *playbacktest.FakeAdapter) {
			a.LoadErr = errors.New("manifest 404")
		}}
		err := rig.Service().Initialize(ctx, mp4Source)

		var perr *playback.Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, playback.KindInvalidSource, perr.Kind)
		assert.Equal(t, "manifest 404", perr.Message)
	})

	t.Run("TextTracksLoadedInOrderBeforeSource", func(t *testing.T) {
		rig := &playbacktest.Rig{}
		src := mp4Source
		src.TextTracks = []media.TextTrack{
			{URI: "https://e.com/en.vtt", Language: "en", Kind: media.TextTrackSubtitles},
			{URI: "https://e.com/de.vtt", Language: "de", Kind: media.TextTrackCaptions},
		}
		require.NoError(t, rig.Service().Initialize(ctx, src))

		assert.Equal(t, []string{"add_text_track:en", "add_text_track:de", "load"}, rig.Adapter().Calls())
	})

	t.Run("BufferedViewsAppliedOnInit", func(t *testing.T) {
		rig := &playbacktest.Rig{}
		svc := rig.Service()
		svc.OnSurfaceViewCreated(ctx, "surface-1")
		svc.OnCaptionViewCreated(ctx, "caption-1")
		svc.OnSurfaceViewCreated(ctx, "surface-2") // last write wins

		require.NoError(t, svc.Initialize(ctx, mp4Source))

		assert.Equal(t, mo.Some[playback.ViewHandle]("surface-2"), rig.Element().Surface())
		assert.Equal(t, mo.Some[playback.ViewHandle]("caption-1"), rig.Element().Caption())
	})

	t.Run("ViewsAppliedImmediatelyAfterInit", func(t *testing.T) {
		svc, rig := initializedService(t)
		svc.OnSurfaceViewCreated(ctx, "late")
		assert.Equal(t, mo.Some[playback.ViewHandle]("late"), rig.Element().Surface())

		require.NoError(t, svc.OnSurfaceViewDestroyed(ctx, "late"))
		assert.True(t, rig.Element().Surface().IsAbsent())
	})

	t.Run("ReinitializeDestroysPrevious", func(t *testing.T) {
		svc, rig := initializedService(t)
		first := rig.Element()
		firstAdapter := rig.Adapter()

		require.NoError(t, svc.Initialize(ctx, mp4Source))

		assert.NotSame(t, first, rig.Element())
		assert.Contains(t, first.Calls(), "deinitialize")
		assert.Equal(t, []string{"load", "pause", "unload"}, firstAdapter.Calls())
	})

	t.Run("ListenersSurviveReinitialize", func(t *testing.T) {
		svc, rig := initializedService(t)
		calls := 0
		svc.AddEventListener(events.Playing, events.NewListener(func(events.Event) { calls++ }))

		require.NoError(t, svc.Initialize(ctx, mp4Source))
		rig.Elements()[0].Fire(events.Playing)
		rig.Element().Fire(events.Playing)

		assert.Equal(t, 1, calls)
	})
}

func TestInProcessTransport(t *testing.T) {
	ctx := context.Background()

	t.Run("NotInitialized", func(t *testing.T) {
		svc := (&playbacktest.Rig{}).Service()
		assert.ErrorIs(t, svc.Play(ctx), playback.ErrNotInitialized)
		assert.ErrorIs(t, svc.Pause(ctx), playback.ErrNotInitialized)
		assert.ErrorIs(t, svc.SeekTo(ctx, 1), playback.ErrNotInitialized)
		assert.ErrorIs(t, svc.SeekOffsetBy(ctx, 1), playback.ErrNotInitialized)
		assert.ErrorIs(t, svc.SetQuality("hd"), playback.ErrNotInitialized)
		assert.ErrorIs(t, svc.OnSurfaceViewDestroyed(ctx, "x"), playback.ErrNotInitialized)
		_, err := svc.AvailableQualities()
		assert.ErrorIs(t, err, playback.ErrNotInitialized)
	})

	t.Run("PlayFailureSurfacesAsPlaybackError", func(t *testing.T) {
		svc, rig := initializedService(t)
		rig.Adapter().PlayErr = errors.New("not allowed")

		err := svc.Play(ctx)
		assert.ErrorIs(t, err, playback.ErrPlayback)
		assert.Equal(t, "not allowed", err.Error())
	})

	t.Run("SeekToClamps", func(t *testing.T) {
		svc, rig := initializedService(t)
		rig.Element().SetPosition(10, 100)

		require.NoError(t, svc.SeekTo(ctx, 9999))
		require.NoError(t, svc.SeekTo(ctx, -5))
		assert.Equal(t, []float64{100, 0}, rig.Adapter().Seeks())
	})

	t.Run("SeekOffsetBy", func(t *testing.T) {
		svc, rig := initializedService(t)
		rig.Element().SetPosition(40, 100)

		require.NoError(t, svc.SeekOffsetBy(ctx, 15))
		require.NoError(t, svc.SeekOffsetBy(ctx, -60))
		assert.Equal(t, []float64{55, 0}, rig.Adapter().Seeks())
	})

	t.Run("SeekFailure", func(t *testing.T) {
		svc, rig := initializedService(t)
		rig.Adapter().SeekErr = errors.New("")
		err := svc.SeekTo(ctx, 1)
		assert.ErrorIs(t, err, playback.ErrSeek)
		assert.Equal(t, "Failed to seek to specified time", err.Error())
	})

	t.Run("Qualities", func(t *testing.T) {
		svc, rig := initializedService(t)
		rig.Adapter().SetQualities(playback.QualityVariant{Label: "1080p", Token: "v1"})

		q, err := svc.AvailableQualities()
		require.NoError(t, err)
		assert.Equal(t, []playback.QualityVariant{{Label: "1080p", Token: "v1"}}, q)

		require.NoError(t, svc.SetQuality("v1"))
		assert.Equal(t, playback.TrackToken("v1"), rig.Adapter().Quality())

		rig.Adapter().QualityErr = errors.New("")
		assert.ErrorIs(t, svc.SetQuality("v2"), playback.ErrQualityChange)
		_, err = svc.AvailableQualities()
		assert.ErrorIs(t, err, playback.ErrQualityFetch)
	})

	t.Run("Progress", func(t *testing.T) {
		svc, rig := initializedService(t)
		rig.Element().SetPosition(25, 100)
		assert.Equal(t, 25.0, svc.Progress())

		rig.Element().SetPosition(0, 0)
		assert.True(t, math.IsNaN(svc.Progress()))
	})
}

func TestInProcessTextTracks(t *testing.T) {
	t.Run("PullMergesAndDeselects", func(t *testing.T) {
		svc, rig := initializedService(t)
		rig.Adapter().SetTracks("en", "de")
		require.NoError(t, svc.SelectTextTrack(mo.Some[playback.TrackToken]("en")))

		svc.PullTextTracks()
		rig.Adapter().SetTracks("de", "fr")
		svc.PullTextTracks()

		assert.ElementsMatch(t, []playback.TrackToken{"en", "de", "fr"}, svc.TextTracks())
		assert.True(t, rig.Adapter().ActiveTextTrack().IsAbsent())
	})

	t.Run("ActiveTrackHiddenWhenInvisible", func(t *testing.T) {
		for _, selected := range []mo.Option[playback.TrackToken]{mo.None[playback.TrackToken](), mo.Some[playback.TrackToken]("en")} {
			svc, rig := initializedService(t)
			rig.Adapter().SetTracks("en")
			require.NoError(t, svc.SelectTextTrack(selected))

			rig.Adapter().SetTextTrackVisible(false)
			assert.True(t, svc.ActiveTextTrack().IsAbsent())

			rig.Adapter().SetTextTrackVisible(true)
			assert.Equal(t, selected, svc.ActiveTextTrack())
		}
	})
}

func TestInProcessDestroy(t *testing.T) {
	t.Run("DestroySyncWithoutInitialize", func(t *testing.T) {
		svc := (&playbacktest.Rig{}).Service()
		assert.False(t, svc.DestroySync(time.Second))
	})

	t.Run("DestroySyncSuccess", func(t *testing.T) {
		svc, rig := initializedService(t)
		el := rig.Element()
		svc.AddEventListener(events.Pause, events.NewListener(func(events.Event) {}))

		assert.True(t, svc.DestroySync(time.Second))
		assert.Equal(t, []string{"load", "pause", "unload"}, rig.Adapter().Calls())
		assert.Contains(t, el.Calls(), "deinitialize_sync")
		assert.Equal(t, 0, el.Count(events.Pause))
		assert.ErrorIs(t, svc.Play(context.Background()), playback.ErrNotInitialized)
	})

	t.Run("DestroySyncNeverPanics", func(t *testing.T) {
		rig := &playbacktest.Rig{
			ConfigureElement: func(e *playbacktest.FakeElement) { e.PanicOnDeinitSync = true },
			ConfigureAdapter: func(a *playbacktest.FakeAdapter) { a.PanicOnUnload = true },
		}
		svc := rig.Service()
		require.NoError(t, svc.Initialize(context.Background(), mp4Source))

		var ok bool
		assert.NotPanics(t, func() { ok = svc.DestroySync(time.Second) })
		assert.False(t, ok)
	})

	t.Run("DestroySyncReportsDeinitFailure", func(t *testing.T) {
		rig := &playbacktest.Rig{
			ConfigureElement: func(e *playbacktest.FakeElement) { e.DeinitSyncErr = errors.New("busy") },
		}
		svc := rig.Service()
		require.NoError(t, svc.Initialize(context.Background(), mp4Source))
		assert.False(t, svc.DestroySync(time.Second))
	})

	t.Run("DestroyContinuesPastFailures", func(t *testing.T) {
		svc, rig := initializedService(t)
		rig.Adapter().PauseErr = errors.New("pause failed")
		rig.Adapter().UnloadErr = errors.New("unload failed")

		svc.Destroy(context.Background())

		assert.Equal(t, []string{"load", "pause", "unload"}, rig.Adapter().Calls())
		assert.Contains(t, rig.Element().Calls(), "deinitialize")
		assert.Empty(t, svc.TextTracks())
	})
}

// Drives the full in-process happy path the way a UI session would
func TestInProcessEndToEnd(t *testing.T) {
	ctx := context.Background()
	rig := &playbacktest.Rig{}
	session := playback.NewSession(func() playback.Controller { return rig.Service() })
	assert.Equal(t, playback.StateInstantiated, session.State())

	require.NoError(t, session.Start(ctx, mp4Source))
	loads := rig.Adapter().Loads()
	require.Len(t, loads, 1)
	assert.True(t, loads[0].Autoplay)

	el := rig.Element()
	el.Fire(events.LoadedMetadata)
	assert.Equal(t, playback.StateLoadingVideo, session.State())

	el.Fire(events.CanPlay)
	assert.Equal(t, playback.StateReady, session.State())
	assert.Equal(t, 1, rig.Adapter().TextTrackPulls())

	el.Fire(events.Playing)
	assert.Equal(t, playback.StatePlaying, session.State())

	el.SetPosition(30, 100)
	require.NoError(t, session.Controller().SeekTo(ctx, 9999))
	assert.Equal(t, []float64{100}, rig.Adapter().Seeks())
}
