package media

import (
	"errors"
	"fmt"
	"net/url"
)

// VideoType is the container / delivery type of a source
type VideoType string

const (
	VideoTypeMP4  VideoType = "mp4"
	VideoTypeDASH VideoType = "dash"
	VideoTypeHLS  VideoType = "hls"
)

// ErrInvalidSource is the canonical message for a source that cannot be played.
var ErrInvalidSource = errors.New("Invalid video source")

// DrmScheme describes the DRM system protecting a source
type DrmScheme struct {
	Name       string `yaml:"name"`
	LicenseURI string `yaml:"license_uri"`
	HeaderTag  string `yaml:"header_tag,omitempty"`
	HeaderData string `yaml:"header_data,omitempty"`
}

// TextTrackKind is either subtitles or captions
type TextTrackKind string

const (
	TextTrackSubtitles TextTrackKind = "subtitles"
	TextTrackCaptions  TextTrackKind = "captions"
)

// TextTrack describes an out-of-band caption/subtitle file that should be loaded alongside the main source
type TextTrack struct {
	URI      string        `yaml:"uri"`
	Language string        `yaml:"language"`
	Kind     TextTrackKind `yaml:"kind"`
	MimeType string        `yaml:"mime_type,omitempty"`
	Codec    string        `yaml:"codec,omitempty"`
	Label    string        `yaml:"label,omitempty"`
}

// VideoSource is an immutable description of a playable item.  It is created by the caller before playback and is
// only ever read afterwards.
type VideoSource struct {
	URI          string      `yaml:"uri"`
	Type         VideoType   `yaml:"type"`
	Title        string      `yaml:"title,omitempty"`
	Format       string      `yaml:"format,omitempty"`
	Autoplay     bool        `yaml:"autoplay,omitempty"`
	DRM          *DrmScheme  `yaml:"drm_scheme,omitempty"`
	TextTracks   []TextTrack `yaml:"text_tracks,omitempty"`
	ThumbnailURL string      `yaml:"thumbnail_url,omitempty"`
	// IsLive is an explicit live/VOD hint.  nil means unknown.
	IsLive *bool `yaml:"is_live,omitempty"`
}

// Live returns a pointer suitable for VideoSource.IsLive
func Live(v bool) *bool {
	return &v
}

// IsValidType reports whether t is one of the supported video types
func IsValidType(t VideoType) bool {
	switch t {
	case VideoTypeMP4, VideoTypeDASH, VideoTypeHLS:
		return true
	}
	return false
}

// Validate checks that the source has a URI and a supported type, and that the URI is an absolute URL.
func Validate(src VideoSource) error {
	if src.URI == "" || src.Type == "" {
		return ErrInvalidSource
	}
	if !IsValidType(src.Type) {
		return fmt.Errorf("%w: Unsupported video type '%s'", ErrInvalidSource, src.Type)
	}
	u, err := url.Parse(src.URI)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: Invalid URI format", ErrInvalidSource)
	}
	return nil
}
