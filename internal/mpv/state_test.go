package mpv

import (
	"encoding/json"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	"github.com/PizzaHomicide/playcore/internal/events"
)

func property(name string, data string) frame {
	return frame{Event: "property-change", Name: name, Data: json.RawMessage(data)}
}

func types(evs []events.Event) []events.Type {
	return lo.Map(evs, func(e events.Event, _ int) events.Type { return e.Type })
}

func TestPlayerStateLifecycle(t *testing.T) {
	s := newPlayerState()

	assert.Empty(t, s.apply(property("pause", "false")), "pause toggles before load are silent")
	assert.Empty(t, s.apply(frame{Event: "start-file"}))
	assert.Empty(t, s.apply(frame{Event: "file-loaded"}), "no duration yet")

	evs := s.apply(property("duration", "120.5"))
	assert.Equal(t, []events.Type{events.LoadedMetadata}, types(evs))
	assert.Equal(t, 120.5, evs[0].Data)
	assert.Empty(t, s.apply(property("duration", "121")), "loadedmetadata fires once per file")

	assert.Equal(t, []events.Type{events.CanPlay, events.Playing}, types(s.apply(frame{Event: "playback-restart"})))

	evs = s.apply(property("time-pos", "3.25"))
	assert.Equal(t, []events.Type{events.TimeUpdate}, types(evs))
	assert.Equal(t, 3.25, evs[0].Data)
	assert.Empty(t, s.apply(property("time-pos", "null")))
	assert.Equal(t, 3.25, s.timePos)

	assert.Equal(t, []events.Type{events.Pause}, types(s.apply(property("pause", "true"))))
	assert.Empty(t, s.apply(property("pause", "true")), "unchanged values are ignored")
	assert.Equal(t, []events.Type{events.Play, events.Playing}, types(s.apply(property("pause", "false"))))

	assert.Equal(t, []events.Type{events.Seeking}, types(s.apply(property("seeking", "true"))))
	assert.Equal(t, []events.Type{events.Seeked}, types(s.apply(property("seeking", "false"))))

	assert.Equal(t, []events.Type{events.Waiting}, types(s.apply(property("paused-for-cache", "true"))))
	assert.Equal(t, []events.Type{events.Playing}, types(s.apply(property("paused-for-cache", "false"))))

	assert.Equal(t, []events.Type{events.Ended}, types(s.apply(frame{Event: "end-file", Reason: "eof"})))
}

func TestPlayerStateStartPaused(t *testing.T) {
	s := newPlayerState()
	s.apply(frame{Event: "file-loaded"})

	assert.Equal(t, []events.Type{events.CanPlay}, types(s.apply(frame{Event: "playback-restart"})))
	assert.Equal(t, []events.Type{events.Play, events.Playing}, types(s.apply(property("pause", "false"))))
}

func TestPlayerStateBufferingWhilePaused(t *testing.T) {
	s := newPlayerState()
	s.apply(frame{Event: "file-loaded"})
	s.apply(property("paused-for-cache", "true"))

	assert.Equal(t, []events.Type{events.CanPlay}, types(s.apply(property("paused-for-cache", "false"))))
}

func TestPlayerStateEndFile(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		s := newPlayerState()
		evs := s.apply(frame{Event: "end-file", Reason: "error", FileError: "loading failed"})
		assert.Equal(t, []events.Type{events.Error}, types(evs))
		assert.Equal(t, "loading failed", evs[0].Data)
	})

	t.Run("Stopped", func(t *testing.T) {
		s := newPlayerState()
		assert.Empty(t, s.apply(frame{Event: "end-file", Reason: "stop"}))
	})
}

func TestPlayerStateTracks(t *testing.T) {
	s := newPlayerState()
	s.apply(property("track-list", `[
		{"id":1,"type":"video","demux-h":1080,"selected":true},
		{"id":2,"type":"video","title":"Director's cut"},
		{"id":1,"type":"audio","lang":"eng"},
		{"id":1,"type":"sub","lang":"eng"},
		{"id":2,"type":"sub","lang":"jpn","external":true}
	]`))
	s.apply(property("sid", "2"))
	s.apply(property("vid", "1"))
	s.apply(property("sub-visibility", "false"))

	subs := s.tracksOfType("sub")
	assert.Len(t, subs, 2)
	assert.Equal(t, "jpn", subs[1].Lang)
	assert.Equal(t, []string{"1080p", "Director's cut"}, lo.Map(s.tracksOfType("video"), func(t Track, _ int) string { return t.Label() }))

	assert.Equal(t, int64(2), s.sid.MustGet())
	assert.Equal(t, int64(1), s.vid.MustGet())
	assert.False(t, s.subVisible)

	s.apply(property("sid", "false"))
	assert.True(t, s.sid.IsAbsent())
}

func TestTrackLabel(t *testing.T) {
	assert.Equal(t, "720p", Track{ID: 4, Height: 720}.Label())
	assert.Equal(t, "Track 4", Track{ID: 4}.Label())
	assert.Equal(t, "4", string(Track{ID: 4}.Token()))
}
