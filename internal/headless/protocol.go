// Package headless runs playback in a separate host process and controls it over a local socket.  The Client mirrors the
// in-process controller contract while every operation becomes a message to a session hosted by a Server.
package headless

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/PizzaHomicide/playcore/internal/media"
)

// SessionID identifies one playback instance across the channel
type SessionID string

// PlayerState is the session state reported in status pushes
type PlayerState string

const (
	PlayerStatePlaying   PlayerState = "PLAYING"
	PlayerStatePaused    PlayerState = "PAUSED"
	PlayerStateSeeking   PlayerState = "SEEKING"
	PlayerStateEnded     PlayerState = "ENDED"
	PlayerStateError     PlayerState = "ERROR"
	PlayerStateBuffering PlayerState = "BUFFERING"
	PlayerStateIdle      PlayerState = "IDLE"
)

// Method names a request
type Method string

const (
	MethodLoad              Method = "load"
	MethodPlay              Method = "play"
	MethodPause             Method = "pause"
	MethodSeek              Method = "seek"
	MethodUnload            Method = "unload"
	MethodSetVideoView      Method = "set_video_view"
	MethodClearVideoView    Method = "clear_video_view"
	MethodSetTextView       Method = "set_text_view"
	MethodClearTextView     Method = "clear_text_view"
	MethodSubscribePosition Method = "subscribe_position"
	MethodSubscribeStatus   Method = "subscribe_status"
	MethodUnsubscribe       Method = "unsubscribe"
	MethodMessage           Method = "message"
)

// Request is a client to host frame
type Request struct {
	RequestID int64           `json:"request_id"`
	Method    Method          `json:"method"`
	SessionID SessionID       `json:"session_id,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Response answers exactly one Request.  Error is set when the host failed to carry the request out.
type Response struct {
	RequestID int64           `json:"request_id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// PushKind tells position and status pushes apart
type PushKind string

const (
	PushPosition PushKind = "position"
	PushStatus   PushKind = "status"
)

// Push is an unsolicited host to client frame delivered to a subscription
type Push struct {
	Push           PushKind         `json:"push"`
	SubscriptionID int64            `json:"subscription_id"`
	Positions      []PositionUpdate `json:"positions,omitempty"`
	Statuses       []StatusUpdate   `json:"statuses,omitempty"`
}

// PositionUpdate is the playhead of one session
type PositionUpdate struct {
	SessionID SessionID `json:"session_id"`
	Position  float64   `json:"position"`
}

// StatusUpdate is the state and duration of one session
type StatusUpdate struct {
	SessionID     SessionID   `json:"session_id"`
	Duration      float64     `json:"duration"`
	PlaybackState PlayerState `json:"playback_state,omitempty"`
}

// Header is a name/value pair attached to the media URL
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MediaInfo describes what to load
type MediaInfo struct {
	URL     string          `json:"url"`
	Type    media.VideoType `json:"type,omitempty"`
	Headers []Header        `json:"http_headers,omitempty"`
}

// LoadParams controls how loading starts
type LoadParams struct {
	StartPosition float64 `json:"start_position"`
	AutoPlay      bool    `json:"auto_play"`
}

type loadRequest struct {
	MediaInfo  MediaInfo  `json:"media_info"`
	LoadParams LoadParams `json:"load_params"`
}

type seekRequest struct {
	Position float64 `json:"position"`
	Relative bool    `json:"relative"`
}

type viewRequest struct {
	Handle string `json:"handle"`
}

type subscribeRequest struct {
	IntervalSeconds float64 `json:"interval_s,omitempty"`
}

type subscribeResult struct {
	SubscriptionID int64 `json:"subscription_id"`
}

type unsubscribeRequest struct {
	SubscriptionID int64 `json:"subscription_id"`
}

// MessageType names a custom query handled outside the regular transport methods
type MessageType string

const (
	MessageGetExactPosition  MessageType = "GET_EXACT_POSITION"
	MessageGetPlayerState    MessageType = "GET_PLAYER_STATE"
	MessageSetPlaybackRate   MessageType = "SET_PLAYBACK_RATE"
	MessageSetActiveTrack    MessageType = "SET_ACTIVE_TRACK"
	MessageGetBufferedRanges MessageType = "GET_BUFFERED_RANGES"
)

// Message is a custom query to a session
type Message struct {
	Type         MessageType `json:"type"`
	SessionID    SessionID   `json:"session_id,omitempty"`
	PlaybackRate float64     `json:"playback_rate,omitempty"`
	TrackType    string      `json:"track_type,omitempty"`
	TrackID      string      `json:"track_id,omitempty"`
}

// TimeRange is a buffered span in seconds
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// MessageResponse is the answer to a Message.  Which fields are set depends on the message type.
type MessageResponse struct {
	Type          string      `json:"type"`
	Position      *float64    `json:"position,omitempty"`
	PlaybackState PlayerState `json:"playback_state,omitempty"`
	Success       *bool       `json:"success,omitempty"`
	Message       string      `json:"message,omitempty"`
	TrackType     string      `json:"track_type,omitempty"`
	TrackID       string      `json:"track_id,omitempty"`
	Ranges        []TimeRange `json:"ranges,omitempty"`
	Timestamp     int64       `json:"timestamp"`
}

// containerHeader carries the source format, the only header the host interprets
const containerHeader = "container"

// defaultContainer is assumed when a source does not name its format
const defaultContainer = "FMP4"

// MediaInfoFor builds the load description for src
func MediaInfoFor(src media.VideoSource) MediaInfo {
	container := src.Format
	if container == "" {
		container = defaultContainer
	}
	return MediaInfo{
		URL:     src.URI,
		Type:    src.Type,
		Headers: []Header{{Name: containerHeader, Value: container}},
	}
}

// Source turns a load description back into a VideoSource.  A missing type is guessed from the URL extension.
func (m MediaInfo) Source(params LoadParams) media.VideoSource {
	src := media.VideoSource{
		URI:      m.URL,
		Type:     m.Type,
		Autoplay: params.AutoPlay,
	}
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, containerHeader) {
			src.Format = h.Value
		}
	}
	if src.Type == "" {
		src.Type = guessType(m.URL)
	}
	return src
}

func guessType(uri string) media.VideoType {
	clean := uri
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	switch strings.ToLower(path.Ext(clean)) {
	case ".m3u8":
		return media.VideoTypeHLS
	case ".mpd":
		return media.VideoTypeDASH
	default:
		return media.VideoTypeMP4
	}
}
