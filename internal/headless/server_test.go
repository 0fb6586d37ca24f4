package headless

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/playback"
	"github.com/PizzaHomicide/playcore/internal/playback/playbacktest"
)

// hostedRig connects a Client to a Server over an in-memory pipe.  Every hosted session is backed by rig fakes.
type hostedRig struct {
	rig       *playbacktest.Rig
	client    *Client
	transport *SocketTransport
	cancel    context.CancelFunc
	served    chan struct{}
}

func newHostedRig(t *testing.T) *hostedRig {
	t.Helper()

	rig := &playbacktest.Rig{}
	server := NewServer(func() *playback.InProcessService { return rig.Service() })

	clientSide, serverSide := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		server.ServeConn(ctx, serverSide)
		close(served)
	}()

	transport := NewSocketTransport(clientSide)
	cfg := DefaultClientConfig()
	cfg.PositionInterval = 10 * time.Millisecond
	client := NewClient(cfg, func(context.Context, string) (Transport, error) {
		return transport, nil
	})

	h := &hostedRig{rig: rig, client: client, transport: transport, cancel: cancel, served: served}
	t.Cleanup(func() {
		cancel()
		_ = transport.Close()
		<-served
	})
	return h
}

type eventLog struct {
	mu   sync.Mutex
	seen []events.Type
}

func (l *eventLog) listen(c playback.Controller, types ...events.Type) {
	listener := events.NewListener(func(e events.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.seen = append(l.seen, e.Type)
	})
	for _, t := range types {
		c.AddEventListener(t, listener)
	}
}

func (l *eventLog) contains(t events.Type) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.seen {
		if s == t {
			return true
		}
	}
	return false
}

func TestHostedPlayback(t *testing.T) {
	ctx := context.Background()
	h := newHostedRig(t)

	var seen eventLog
	seen.listen(h.client, events.Playing, events.Play, events.Pause, events.Waiting, events.Ended)

	h.client.OnSurfaceViewCreated(ctx, "surface-1")
	require.NoError(t, h.client.Initialize(ctx, hlsSource))

	el, adapter := h.rig.Element(), h.rig.Adapter()
	require.NotNil(t, el)
	require.NotNil(t, adapter)

	t.Run("LoadReachesHost", func(t *testing.T) {
		loads := adapter.Loads()
		require.Len(t, loads, 1)
		assert.Equal(t, hlsSource.URI, loads[0].Source.URI)
		assert.Equal(t, hlsSource.Type, loads[0].Source.Type)
		assert.Equal(t, "FMP4", loads[0].Source.Format)
		assert.True(t, loads[0].Autoplay)
		assert.Equal(t, "surface-1", string(el.Surface().OrEmpty()))
	})

	t.Run("StatusPushesBecomeEvents", func(t *testing.T) {
		el.SetPosition(12, 300)
		el.Fire(events.Playing)

		require.Eventually(t, func() bool {
			return seen.contains(events.Playing) && seen.contains(events.Play)
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, 300.0, h.client.Duration())
		assert.False(t, h.client.Paused())
	})

	t.Run("PositionPushes", func(t *testing.T) {
		el.SetPosition(42, 300)
		require.Eventually(t, func() bool {
			return h.client.PlaybackTime() >= 42
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("Transport", func(t *testing.T) {
		require.NoError(t, h.client.Pause(ctx))
		require.NoError(t, h.client.Play(ctx))
		assert.Contains(t, adapter.Calls(), "pause")
		assert.Contains(t, adapter.Calls(), "play")
	})

	t.Run("SeekIsRelativeOnHost", func(t *testing.T) {
		el.SetPosition(100, 300)
		el.Fire(events.Pause)
		require.Eventually(t, func() bool {
			return h.client.Paused() && h.client.PlaybackTime() == 100
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, h.client.SeekTo(ctx, 130))
		seeks := adapter.Seeks()
		require.NotEmpty(t, seeks)
		assert.Equal(t, 130.0, seeks[len(seeks)-1])
	})

	t.Run("Messages", func(t *testing.T) {
		el.SetPosition(77, 300)
		pos, err := h.client.ExactCurrentPosition(ctx)
		require.NoError(t, err)
		assert.Equal(t, 77.0, pos)

		ok, err := h.client.SetPlaybackRate(ctx, 2)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = h.client.SetActiveTrack(ctx, "TEXT", "en")
		require.NoError(t, err)
		assert.True(t, ok)

		ranges, err := h.client.BufferedRanges(ctx)
		require.NoError(t, err)
		assert.Empty(t, ranges)
	})

	t.Run("Ended", func(t *testing.T) {
		el.Fire(events.Ended)
		require.Eventually(t, func() bool { return seen.contains(events.Ended) }, time.Second, 5*time.Millisecond)
	})

	t.Run("DestroyUnloadsHostedSession", func(t *testing.T) {
		h.client.Destroy(ctx)
		require.Eventually(t, func() bool {
			for _, call := range el.Calls() {
				if call == "deinitialize" {
					return true
				}
			}
			return false
		}, time.Second, 5*time.Millisecond)
		assert.Contains(t, adapter.Calls(), "unload")
	})
}

func TestHostedRequestErrors(t *testing.T) {
	ctx := context.Background()
	h := newHostedRig(t)

	t.Run("UnknownSession", func(t *testing.T) {
		err := h.transport.Play(ctx, "missing")
		assert.ErrorIs(t, err, ErrRemote)
		assert.Contains(t, err.Error(), "unknown session")
	})

	t.Run("UnknownMessage", func(t *testing.T) {
		_, err := h.transport.SendMessage(ctx, Message{Type: "GET_BITRATE", SessionID: "missing"})
		assert.ErrorIs(t, err, ErrRemote)
	})

	t.Run("UnloadUnknownSessionIsNoop", func(t *testing.T) {
		assert.NoError(t, h.transport.Unload(ctx, "missing"))
	})

	// Runs last, a failed initialize closes the shared transport
	t.Run("HostLoadFailure", func(t *testing.T) {
		h.rig.AdapterErr = assert.AnError
		defer func() { h.rig.AdapterErr = nil }()

		err := h.client.Initialize(ctx, hlsSource)
		assert.ErrorIs(t, err, ErrRemote)
		assert.False(t, h.client.IsInitialized())
	})
}

func TestHostedRequestBeforeServe(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = clientSide.Close()
	})

	// The request is already on the wire when the server starts reading
	written := make(chan error, 1)
	go func() {
		_, err := clientSide.Write([]byte(`{"request_id":7,"method":"play","session_id":"missing"}` + "\n"))
		written <- err
	}()
	go NewServer(func() *playback.InProcessService { return nil }).ServeConn(ctx, serverSide)

	require.NoError(t, clientSide.SetReadDeadline(time.Now().Add(time.Second)))
	line, err := bufio.NewReader(clientSide).ReadBytes('\n')
	require.NoError(t, err)
	require.NoError(t, <-written)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	assert.Equal(t, int64(7), resp.RequestID)
	assert.Contains(t, resp.Error, "unknown session")
}

func TestHostedDisconnectTearsDownSessions(t *testing.T) {
	ctx := context.Background()
	h := newHostedRig(t)
	require.NoError(t, h.client.Initialize(ctx, hlsSource))
	el := h.rig.Element()

	require.NoError(t, h.transport.Close())
	select {
	case <-h.served:
	case <-time.After(time.Second):
		t.Fatal("server did not notice the disconnect")
	}
	assert.Contains(t, el.Calls(), "deinitialize_sync")
}

func TestHostedSessionState(t *testing.T) {
	s := &hostedSession{}
	assert.Equal(t, PlayerStateIdle, s.state())

	s.buffering = true
	assert.Equal(t, PlayerStatePaused, s.state(), "loading without autoplay reports paused")

	s.loaded = true
	assert.True(t, s.apply(events.CanPlay))
	assert.Equal(t, PlayerStatePaused, s.state())

	s.apply(events.Waiting)
	assert.Equal(t, PlayerStatePaused, s.state())
	s.apply(events.Play)
	assert.Equal(t, PlayerStateBuffering, s.state())
	s.apply(events.Pause)
	assert.Equal(t, PlayerStatePaused, s.state())

	s.apply(events.Playing)
	assert.Equal(t, PlayerStatePlaying, s.state())

	s.apply(events.Seeking)
	assert.Equal(t, PlayerStateSeeking, s.state())
	s.apply(events.Seeked)
	assert.Equal(t, PlayerStatePlaying, s.state())

	s.apply(events.Ended)
	assert.Equal(t, PlayerStateEnded, s.state())

	s.apply(events.Error)
	assert.Equal(t, PlayerStateError, s.state())

	assert.False(t, s.apply(events.TimeUpdate))
}
