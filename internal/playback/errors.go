package playback

import (
	"errors"
)

// ErrorKind classifies a playback failure
type ErrorKind string

const (
	KindInvalidSource        ErrorKind = "INVALID_SOURCE"
	KindPlayerNotInitialized ErrorKind = "PLAYER_NOT_INITIALIZED"
	KindPlaybackError        ErrorKind = "PLAYBACK_ERROR"
	KindQualityChangeError   ErrorKind = "QUALITY_CHANGE_ERROR"
	KindQualityFetchError    ErrorKind = "QUALITY_FETCH_ERROR"
	KindSeekError            ErrorKind = "SEEK_ERROR"
)

var canonicalMessages = map[ErrorKind]string{
	KindInvalidSource:        "Invalid video source",
	KindPlayerNotInitialized: "Video player not initialized",
	KindPlaybackError:        "Error during playback",
	KindQualityChangeError:   "Failed to change video quality",
	KindQualityFetchError:    "Failed to fetch available qualities",
	KindSeekError:            "Failed to seek to specified time",
}

// Error is the single error type surfaced by playback controllers.  Message is the underlying adapter message when one
// was available, otherwise the canonical message for Kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Sentinels for use with errors.Is.  Matching is by kind only.
var (
	ErrInvalidSource  = &Error{Kind: KindInvalidSource, Message: canonicalMessages[KindInvalidSource]}
	ErrNotInitialized = &Error{Kind: KindPlayerNotInitialized, Message: canonicalMessages[KindPlayerNotInitialized]}
	ErrPlayback       = &Error{Kind: KindPlaybackError, Message: canonicalMessages[KindPlaybackError]}
	ErrQualityChange  = &Error{Kind: KindQualityChangeError, Message: canonicalMessages[KindQualityChangeError]}
	ErrQualityFetch   = &Error{Kind: KindQualityFetchError, Message: canonicalMessages[KindQualityFetchError]}
	ErrSeek           = &Error{Kind: KindSeekError, Message: canonicalMessages[KindSeekError]}
)

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an Error of the given kind.  The message of err is preserved when present.
func NewError(kind ErrorKind, err error) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	msg := canonicalMessages[kind]
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// CanonicalMessage returns the default message for kind
func CanonicalMessage(kind ErrorKind) string {
	return canonicalMessages[kind]
}
