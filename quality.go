package video_fetcher

import (
	"fmt"
	"strconv"
	"strings"
)

// Heights that a height-capped Quality may use.
var QualityHeights = []int{360, 480, 720, 1080, 1440, 2160}

// Quality is the user's quality preference: best available, audio only, or best up to a height.
type Quality struct {
	audio  bool
	height int
}

var (
	QualityBest  = Quality{}
	QualityAudio = Quality{audio: true}
)

// QualityMaxHeight returns a height-capped Quality. Height must be one of QualityHeights.
func QualityMaxHeight(height int) (Quality, error) {
	for _, h := range QualityHeights {
		if h == height {
			return Quality{height: height}, nil
		}
	}
	return Quality{}, fmt.Errorf("unsupported height %d", height)
}

// ParseQuality parses "best", "audio" or "<height>p".
func ParseQuality(s string) (Quality, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "best":
		return QualityBest, nil
	case "audio":
		return QualityAudio, nil
	}
	if h, err := strconv.Atoi(strings.TrimSuffix(s, "p")); err == nil && strings.HasSuffix(s, "p") {
		return QualityMaxHeight(h)
	}
	return Quality{}, fmt.Errorf("unknown quality %q", s)
}

// QualityNames lists every accepted ParseQuality input, for help text.
func QualityNames() []string {
	names := []string{"best", "audio"}
	for _, h := range QualityHeights {
		names = append(names, fmt.Sprintf("%dp", h))
	}
	return names
}

func (q Quality) IsAudio() bool {
	return q.audio
}

// MaxHeight returns the height cap, or 0 if there isn't one.
func (q Quality) MaxHeight() int {
	return q.height
}

// FormatSelector is the format-selection expression handed to the external tool.
func (q Quality) FormatSelector() string {
	switch {
	case q.audio:
		return "bestaudio"
	case q.height > 0:
		return fmt.Sprintf("best[height<=%d]", q.height)
	default:
		return "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	}
}

func (q Quality) String() string {
	switch {
	case q.audio:
		return "audio"
	case q.height > 0:
		return fmt.Sprintf("%dp", q.height)
	default:
		return "best"
	}
}
