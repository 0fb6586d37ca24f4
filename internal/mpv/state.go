package mpv

import (
	"encoding/json"
	"strconv"

	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/log"
	"github.com/PizzaHomicide/playcore/internal/playback"
)

// Properties observed on every instance.  The index is the observe id.
var observedProperties = []string{
	"time-pos",
	"duration",
	"pause",
	"seeking",
	"paused-for-cache",
	"track-list",
	"sub-visibility",
	"sid",
	"vid",
}

// frame is anything mpv writes that is not a command reply
type frame struct {
	Event     string          `json:"event"`
	ID        int64           `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	FileError string          `json:"file_error,omitempty"`
}

// Track is one entry of mpv's track-list
type Track struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Lang     string `json:"lang,omitempty"`
	Selected bool   `json:"selected"`
	External bool   `json:"external"`
	Height   int    `json:"demux-h,omitempty"`
	Width    int    `json:"demux-w,omitempty"`
}

// Token is the track id as used by the playback layer
func (t Track) Token() playback.TrackToken {
	return playback.TrackToken(strconv.FormatInt(t.ID, 10))
}

// Label is a human readable name for a video track
func (t Track) Label() string {
	switch {
	case t.Height > 0:
		return strconv.Itoa(t.Height) + "p"
	case t.Title != "":
		return t.Title
	default:
		return "Track " + strconv.FormatInt(t.ID, 10)
	}
}

// playerState mirrors the observed properties and turns their changes into normalized events.  It is not safe for
// concurrent use, the element guards it.
type playerState struct {
	timePos      float64
	duration     float64
	paused       bool
	seeking      bool
	buffering    bool
	loaded       bool
	metadataSent bool
	tracks       []Track
	subVisible   bool
	sid          mo.Option[int64]
	vid          mo.Option[int64]
}

func newPlayerState() *playerState {
	return &playerState{paused: true, subVisible: true}
}

func (s *playerState) apply(f frame) []events.Event {
	switch f.Event {
	case "property-change":
		return s.applyProperty(f.Name, f.Data)
	case "start-file":
		s.loaded = false
		s.metadataSent = false
		s.timePos = 0
		s.duration = 0
		return nil
	case "file-loaded":
		s.loaded = true
		return s.metadata()
	case "playback-restart":
		out := []events.Event{{Type: events.CanPlay}}
		if !s.paused && !s.buffering {
			out = append(out, events.Event{Type: events.Playing})
		}
		return out
	case "end-file":
		s.loaded = false
		switch f.Reason {
		case "eof":
			return []events.Event{{Type: events.Ended}}
		case "error":
			return []events.Event{{Type: events.Error, Data: f.FileError}}
		}
		return nil
	default:
		log.Trace("Unhandled mpv event", "event", f.Event)
		return nil
	}
}

func (s *playerState) applyProperty(name string, data json.RawMessage) []events.Event {
	switch name {
	case "time-pos":
		var pos float64
		if !decode(data, &pos) {
			return nil
		}
		s.timePos = pos
		return []events.Event{{Type: events.TimeUpdate, Data: pos}}
	case "duration":
		var d float64
		if !decode(data, &d) {
			return nil
		}
		s.duration = d
		if s.loaded {
			return s.metadata()
		}
		return nil
	case "pause":
		var paused bool
		if !decode(data, &paused) || paused == s.paused {
			return nil
		}
		s.paused = paused
		// Toggled while idle or loading, the state is picked up by playback-restart
		if !s.loaded {
			return nil
		}
		if paused {
			return []events.Event{{Type: events.Pause}}
		}
		out := []events.Event{{Type: events.Play}}
		if !s.buffering && !s.seeking {
			out = append(out, events.Event{Type: events.Playing})
		}
		return out
	case "seeking":
		var seeking bool
		if !decode(data, &seeking) || seeking == s.seeking {
			return nil
		}
		s.seeking = seeking
		if seeking {
			return []events.Event{{Type: events.Seeking}}
		}
		return []events.Event{{Type: events.Seeked}}
	case "paused-for-cache":
		var buffering bool
		if !decode(data, &buffering) || buffering == s.buffering {
			return nil
		}
		s.buffering = buffering
		if buffering {
			return []events.Event{{Type: events.Waiting}}
		}
		if !s.paused {
			return []events.Event{{Type: events.Playing}}
		}
		return []events.Event{{Type: events.CanPlay}}
	case "track-list":
		var tracks []Track
		if decode(data, &tracks) {
			s.tracks = tracks
		}
		return nil
	case "sub-visibility":
		var visible bool
		if decode(data, &visible) {
			s.subVisible = visible
		}
		return nil
	case "sid":
		s.sid = trackID(data)
		return nil
	case "vid":
		s.vid = trackID(data)
		return nil
	default:
		return nil
	}
}

// metadata fires loadedmetadata once per file, as soon as both the file and its duration are known
func (s *playerState) metadata() []events.Event {
	if s.metadataSent || !s.loaded || s.duration <= 0 {
		return nil
	}
	s.metadataSent = true
	return []events.Event{{Type: events.LoadedMetadata, Data: s.duration}}
}

func (s *playerState) tracksOfType(kind string) []Track {
	return lo.Filter(s.tracks, func(t Track, _ int) bool { return t.Type == kind })
}

// trackID parses a sid/vid value.  mpv reports false or "no" when nothing is selected.
func trackID(data json.RawMessage) mo.Option[int64] {
	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		return mo.Some(id)
	}
	return mo.None[int64]()
}

// decode ignores null values, which mpv sends for properties that are unavailable
func decode(data json.RawMessage, v any) bool {
	if len(data) == 0 || string(data) == "null" {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Debug("Failed to decode mpv property", "data", string(data), "error", err)
		return false
	}
	return true
}
