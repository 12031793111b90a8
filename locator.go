package video_fetcher

import "fmt"

// LocatorKind says how a Locator should be retrieved. It is decided once, when the resolution pipeline finishes,
// and is authoritative from then on.
type LocatorKind int

const (
	// KindAmbiguous is a locator that looked like neither a video service nor a media file, e.g. a literal value
	// lifted from an unfamiliar player.
	KindAmbiguous LocatorKind = iota
	KindVideoService
	KindDirectMedia
)

func (k LocatorKind) String() string {
	switch k {
	case KindVideoService:
		return "video-service"
	case KindDirectMedia:
		return "direct-media"
	default:
		return "ambiguous"
	}
}

// A Locator is the single output of the resolution pipeline: something a download method can act on.
type Locator struct {
	URL  string
	Kind LocatorKind
	// Strategy names the rule that produced the locator ("classify", "redirect", or an extraction strategy).
	Strategy string
}

func (l Locator) String() string {
	return fmt.Sprintf("%s [%s]", l.URL, l.Kind)
}

// Page is the result of fetching a SourceURL: owned by the call that produced it and never mutated.
type Page struct {
	// URL is the URL that was requested.
	URL string
	// FinalURL is the URL that was reached after following redirects.
	FinalURL   string
	StatusCode int
	Body       []byte
	Redirected bool
}
