// Package classify decides, from a URL string alone, how much work is needed to find its media.
package classify

import (
	"strings"

	"github.com/alanbriolat/video-fetcher"
	"github.com/alanbriolat/video-fetcher/generic"
	"github.com/alanbriolat/video-fetcher/provider/raw"
	"github.com/alanbriolat/video-fetcher/util"
)

type Kind int

const (
	// Opaque URLs need their page fetched and inspected.
	Opaque Kind = iota
	AlreadyVideoService
	DirectMediaFile
)

func (k Kind) String() string {
	switch k {
	case AlreadyVideoService:
		return "video-service"
	case DirectMediaFile:
		return "direct-media"
	default:
		return "opaque"
	}
}

type Result struct {
	Kind Kind
	// URL is the input, trimmed and with a scheme added if it had none.
	URL string
}

// A Classifier is pure: no I/O, no state beyond its configuration.
type Classifier struct {
	serviceHosts generic.Set[string]
	media        *raw.Config
}

func New(cfg video_fetcher.Config) *Classifier {
	hosts := generic.NewSet[string]()
	for _, h := range cfg.VideoServiceHosts {
		hosts.Add(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), "."))
	}
	return &Classifier{
		serviceHosts: hosts,
		media:        raw.NewConfig(cfg.MediaExtensions...),
	}
}

// Classify applies the rules in order: video service host, then media suffix, else opaque. It never fails.
func (c *Classifier) Classify(s string) Result {
	u, err := util.ParseLoose(s)
	if err != nil || u.Host == "" {
		return Result{Kind: Opaque, URL: strings.TrimSpace(s)}
	}
	res := Result{URL: u.String()}
	switch {
	case c.IsVideoServiceHost(u.Hostname()):
		res.Kind = AlreadyVideoService
	case c.media.MatchURL(u):
		res.Kind = DirectMediaFile
	default:
		res.Kind = Opaque
	}
	return res
}

// IsVideoServiceHost matches host against the configured hosts and their subdomains.
func (c *Classifier) IsVideoServiceHost(host string) bool {
	return util.MatchHost(c.serviceHosts, host)
}

// IsVideoServiceURL is IsVideoServiceHost for an unparsed URL.
func (c *Classifier) IsVideoServiceURL(s string) bool {
	u, err := util.ParseLoose(s)
	return err == nil && c.IsVideoServiceHost(u.Hostname())
}

// MediaExtensions returns the configured media extensions in priority order.
func (c *Classifier) MediaExtensions() []string {
	return c.media.OrderedExtensions()
}

// LocatorKind maps a classification onto the kind of Locator it implies.
func (k Kind) LocatorKind() video_fetcher.LocatorKind {
	switch k {
	case AlreadyVideoService:
		return video_fetcher.KindVideoService
	case DirectMediaFile:
		return video_fetcher.KindDirectMedia
	default:
		return video_fetcher.KindAmbiguous
	}
}
