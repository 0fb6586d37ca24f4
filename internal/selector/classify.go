package selector

import (
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/PizzaHomicide/playcore/internal/media"
)

// ContentType is the coarse classification used to route a source
type ContentType string

const (
	ContentLive    ContentType = "live"
	ContentVOD     ContentType = "vod"
	ContentUnknown ContentType = "unknown"
)

// Matched against the lowercased uri.  VOD patterns win over live ones.
var (
	vodPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/vod/`),
		regexp.MustCompile(`/archive/`),
		regexp.MustCompile(`/recording/`),
		regexp.MustCompile(`\.mp4`),
		regexp.MustCompile(`\.m4v`),
	}
	livePatterns = []*regexp.Regexp{
		regexp.MustCompile(`/live/`),
		regexp.MustCompile(`/stream/`),
		regexp.MustCompile(`[-_]live[-_.]`),
		regexp.MustCompile(`[-_]stream[-_.]`),
		regexp.MustCompile(`/channel/`),
		regexp.MustCompile(`/broadcast/`),
	}
)

// Classify decides whether src is live or VOD.  An explicit IsLive hint always wins.  Adaptive streams are classified
// by uri and default to VOD, mp4 is always VOD and anything else is unknown.
func Classify(src media.VideoSource) ContentType {
	if src.IsLive != nil {
		if *src.IsLive {
			return ContentLive
		}
		return ContentVOD
	}

	switch src.Type {
	case media.VideoTypeHLS, media.VideoTypeDASH:
		uri := strings.ToLower(src.URI)
		matches := func(re *regexp.Regexp) bool { return re.MatchString(uri) }

		if lo.SomeBy(vodPatterns, matches) {
			return ContentVOD
		}
		if lo.SomeBy(livePatterns, matches) {
			return ContentLive
		}
		// Bare .m3u8 and unrecognised shapes are far more often VOD
		return ContentVOD
	case media.VideoTypeMP4:
		return ContentVOD
	default:
		return ContentUnknown
	}
}
