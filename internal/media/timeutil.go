package media

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ConstrainTime clamps t into [0, duration]
func ConstrainTime(t, duration float64) float64 {
	return math.Max(0, math.Min(t, duration))
}

// FormatTime renders a number of seconds as MM:SS, or HH:MM:SS when at least an hour long.  A nil value renders as
// "--:--" and a negative or NaN value as "00:00".
func FormatTime(seconds *float64) string {
	if seconds == nil {
		return "--:--"
	}
	s := *seconds
	if math.IsNaN(s) || s < 0 {
		return "00:00"
	}

	// Rounding keeps the last second visible at the very end of playback
	total := int64(math.Round(s))
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

// ThumbnailURL returns the trick-play image covering the given second.  Images are cut in 10 second blocks and named
// with an 8 digit, 1-based block number.
func ThumbnailURL(second float64, baseURL string) (string, error) {
	if second < 0 {
		return "", errors.New("second cannot be negative")
	}
	if baseURL == "" {
		return "", errors.New("base URL is required")
	}

	base := strings.TrimSuffix(baseURL, "/")
	block := int64(math.Floor(second/10)) + 1
	return fmt.Sprintf("%s/%08d.jpg", base, block), nil
}
