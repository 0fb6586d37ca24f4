package player

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PizzaHomicide/playcore/internal/config"
	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/headless"
	"github.com/PizzaHomicide/playcore/internal/media"
	"github.com/PizzaHomicide/playcore/internal/playback"
	"github.com/PizzaHomicide/playcore/internal/playback/playbacktest"
	"github.com/PizzaHomicide/playcore/internal/selector"
)

var (
	vod  = media.VideoSource{URI: "https://cdn.example.com/vod/pilot.m3u8", Type: media.VideoTypeHLS}
	live = media.VideoSource{URI: "https://cdn.example.com/live/news.m3u8", Type: media.VideoTypeHLS}
)

func forced(t playback.ControllerType) *selector.Selector {
	return selector.New(selector.Config{ForceType: t}, selector.StaticPlatform{})
}

// hostedTransport serves every dial with a fresh headless server connection over an in-memory pipe
func hostedTransport(t *testing.T, newService headless.ServiceFactory) headless.TransportFactory {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	server := headless.NewServer(newService)

	return func(context.Context, string) (headless.Transport, error) {
		clientSide, serverSide := net.Pipe()
		go server.ServeConn(ctx, serverSide)
		transport := headless.NewSocketTransport(clientSide)
		t.Cleanup(func() { _ = transport.Close() })
		return transport, nil
	}
}

func TestFactoryInProcess(t *testing.T) {
	rig := &playbacktest.Rig{}
	f := NewFactory(&config.Config{}, WithBackend(rig.NewElement, rig.NewAdapter), WithSelector(forced(playback.InProcess)))

	session := f.NewSession(vod)
	t.Cleanup(session.Close)

	require.Equal(t, playback.InProcess, session.Controller().Type())
	assert.Equal(t, playback.StateInstantiated, session.State())

	require.NoError(t, session.Start(context.Background(), vod))
	require.Len(t, rig.Adapter().Loads(), 1)
	assert.Equal(t, vod.URI, rig.Adapter().Loads()[0].Source.URI)

	rig.Element().Fire(events.CanPlay)
	assert.Equal(t, playback.StateReady, session.State())

	session.Reset()
	assert.Equal(t, 1, session.Key())
	assert.Equal(t, playback.InProcess, session.Controller().Type(), "the selection is made once per source")
}

func TestFactoryCrossThread(t *testing.T) {
	rig := &playbacktest.Rig{}
	var f *Factory
	f = NewFactory(&config.Config{},
		WithBackend(rig.NewElement, rig.NewAdapter),
		WithSelector(forced(playback.CrossThread)),
		WithTransport(hostedTransport(t, func() *playback.InProcessService { return f.NewService() })))

	session := f.NewSession(live)
	t.Cleanup(session.Close)

	require.Equal(t, playback.CrossThread, session.Controller().Type())
	require.NoError(t, session.Start(context.Background(), live))
	assert.True(t, session.State().IsInitialized())

	require.Len(t, rig.Adapter().Loads(), 1)
	assert.Equal(t, live.URI, rig.Adapter().Loads()[0].Source.URI)

	rig.Element().SetPosition(5, 0)
	rig.Element().Fire(events.Playing)
	require.Eventually(t, func() bool {
		return session.State() == playback.StatePlaying
	}, time.Second, 5*time.Millisecond)
}

func TestFactoryCrossThreadWithoutAutoplay(t *testing.T) {
	rig := &playbacktest.Rig{}
	var f *Factory
	f = NewFactory(&config.Config{},
		WithBackend(rig.NewElement, rig.NewAdapter),
		WithSelector(forced(playback.CrossThread)),
		WithTransport(hostedTransport(t, func() *playback.InProcessService { return f.NewService() })))

	session := f.NewSession(live)
	t.Cleanup(session.Close)

	var (
		mu   sync.Mutex
		seen []playback.State
	)
	session.Observe(func(tr playback.Transition) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, tr.To)
	})

	require.NoError(t, session.Start(context.Background(), live))
	rig.Element().Fire(events.LoadedMetadata)
	rig.Element().Fire(events.CanPlay)

	assert.Never(t, func() bool {
		return session.State() == playback.StateWaiting
	}, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, playback.StateReady, session.State())

	rig.Element().Fire(events.Play)
	rig.Element().Fire(events.Playing)
	require.Eventually(t, func() bool {
		return session.State() == playback.StatePlaying
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, seen, playback.StateWaiting)
}

func TestFactorySelection(t *testing.T) {
	cfg := &config.Config{Selector: config.SelectorConfig{
		EnableCrossThread:    config.Bool(true),
		EnableForLiveStreams: config.Bool(true),
		EnableForVOD:         config.Bool(false),
	}}
	f := NewFactory(cfg, WithSelector(selector.New(SelectorConfig(cfg), selector.StaticPlatform{TV: true})))

	assert.Equal(t, playback.CrossThread, f.ControllerFactory(live)().Type())
	assert.Equal(t, playback.InProcess, f.ControllerFactory(vod)().Type())
}

func TestSelectorConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		assert.Equal(t, selector.Config{
			EnableCrossThread:    true,
			EnableForLiveStreams: true,
		}, SelectorConfig(&config.Config{}))
	})

	t.Run("Explicit", func(t *testing.T) {
		cfg := &config.Config{Selector: config.SelectorConfig{
			ForceType:         "in-process",
			EnableCrossThread: config.Bool(false),
			EnableForVOD:      config.Bool(true),
			MinMemoryMB:       4096,
		}}
		assert.Equal(t, selector.Config{
			ForceType:            playback.InProcess,
			MinMemoryMB:          4096,
			EnableForLiveStreams: true,
			EnableForVOD:         true,
		}, SelectorConfig(cfg))
	})
}
