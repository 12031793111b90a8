package resolve

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bitly/go-simplejson"

	"github.com/alanbriolat/video-fetcher"
	"github.com/alanbriolat/video-fetcher/classify"
	"github.com/alanbriolat/video-fetcher/generic"
	"github.com/alanbriolat/video-fetcher/provider/youtube"
	"github.com/alanbriolat/video-fetcher/util"
)

const (
	StrategyPartner       = "partner"
	StrategyServiceIframe = "service-iframe"
	StrategyProxyIframe   = "proxy-iframe"
	StrategyContainer     = "container"
	StrategyVideoTag      = "video-tag"
	StrategyPlayerJSON    = "player-json"
	StrategyServiceAnchor = "service-anchor"
	StrategyMediaRegex    = "media-regex"
)

// NewRegistry builds the extraction cascade from the configuration, in its fixed order.
func NewRegistry(cfg video_fetcher.Config, classifier *classify.Classifier) (*StrategyRegistry, error) {
	partner, err := partnerStrategy(cfg.Partners)
	if err != nil {
		return nil, err
	}
	strategies := []Strategy{
		partner,
		serviceIframeStrategy(classifier),
		proxyIframeStrategy(cfg.ProxyEndpoint),
		containerStrategy(cfg.ContainerClass),
		videoTagStrategy(),
		playerJSONStrategy(cfg.PlayerDataAttribute),
		serviceAnchorStrategy(),
		mediaRegexStrategy(classifier.MediaExtensions()),
	}
	var r StrategyRegistry
	for i, s := range strategies {
		if err := r.Add(s.WithPriority(int16(10 * (i + 1)))); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

type partnerRule struct {
	hosts    generic.Set[string]
	patterns []*regexp.Regexp
}

func partnerStrategy(partners []video_fetcher.PartnerRule) (Strategy, error) {
	rules := make([]partnerRule, 0, len(partners))
	for _, p := range partners {
		rule := partnerRule{hosts: generic.NewSet(strings.ToLower(p.Domain))}
		for _, pattern := range p.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return Strategy{}, fmt.Errorf("invalid pattern for partner %v: %w", p.Domain, err)
			}
			rule.patterns = append(rule.patterns, re)
		}
		rules = append(rules, rule)
	}
	return Strategy{
		Name: StrategyPartner,
		Extract: func(in *Input) generic.Option[string] {
			for _, rule := range rules {
				if !rule.appliesTo(in) {
					continue
				}
				for _, re := range rule.patterns {
					if m := re.FindSubmatch(in.Body()); m != nil {
						value := m[0]
						if len(m) > 1 {
							value = m[1]
						}
						if resolved, ok := in.Resolve(string(value)); ok {
							return generic.Some(resolved)
						}
					}
				}
			}
			return generic.None[string]()
		},
	}, nil
}

func (r partnerRule) appliesTo(in *Input) bool {
	for _, host := range in.Hosts() {
		if util.MatchHost(r.hosts, host) {
			return true
		}
	}
	return false
}

// firstAttr returns the first resolved value of attr within the selection that satisfies accept.
func firstAttr(in *Input, sel *goquery.Selection, attr string, accept func(string) bool) generic.Option[string] {
	result := generic.None[string]()
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw, _ := s.Attr(attr)
		if resolved, ok := in.Resolve(raw); ok && (accept == nil || accept(resolved)) {
			result = generic.Some(resolved)
			return false
		}
		return true
	})
	return result
}

// selectorStrategy tries each selector in turn, taking the first usable attribute value.
func selectorStrategy(name string, attr string, accept func(string) bool, selectors ...string) Strategy {
	return Strategy{
		Name: name,
		Extract: func(in *Input) generic.Option[string] {
			doc, ok := in.Document()
			if !ok {
				return generic.None[string]()
			}
			for _, selector := range selectors {
				if found := firstAttr(in, doc.Find(selector), attr, accept); found.IsSome() {
					return found
				}
			}
			return generic.None[string]()
		},
	}
}

func serviceIframeStrategy(classifier *classify.Classifier) Strategy {
	return selectorStrategy(StrategyServiceIframe, "src", classifier.IsVideoServiceURL, "iframe[src]")
}

// proxyIframeStrategy unwraps redirector frames like <iframe src="/video.php?v=...">.
func proxyIframeStrategy(endpoint string) Strategy {
	return Strategy{
		Name: StrategyProxyIframe,
		Extract: func(in *Input) generic.Option[string] {
			doc, ok := in.Document()
			if !ok || endpoint == "" {
				return generic.None[string]()
			}
			result := generic.None[string]()
			doc.Find("iframe[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				src, _ := s.Attr("src")
				u, ok := in.resolveRaw(src)
				if !ok || !strings.HasSuffix(u.Path, endpoint) {
					return true
				}
				// Query has already decoded v
				v := strings.TrimSpace(u.Query().Get("v"))
				if v == "" {
					return true
				}
				if youtube.IsVideoID(v) {
					result = generic.Some(youtube.WatchURL(v))
				} else if target, ok := in.resolveRaw(v); ok && (target.Scheme == "http" || target.Scheme == "https") {
					result = generic.Some(target.String())
				} else {
					return true
				}
				return false
			})
			return result
		},
	}
}

func containerStrategy(class string) Strategy {
	return selectorStrategy(StrategyContainer, "src", nil, "."+class+" iframe[src]")
}

// videoTagStrategy takes the first <video> with a usable source, preferring its nested <source> over its own src.
func videoTagStrategy() Strategy {
	return Strategy{
		Name: StrategyVideoTag,
		Extract: func(in *Input) generic.Option[string] {
			doc, ok := in.Document()
			if !ok {
				return generic.None[string]()
			}
			result := generic.None[string]()
			doc.Find("video").EachWithBreak(func(_ int, video *goquery.Selection) bool {
				result = firstAttr(in, video.Find("source[src]"), "src", nil).
					OrElse(func() generic.Option[string] { return firstAttr(in, video, "src", nil) })
				return result.IsNone()
			})
			return result
		},
	}
}

// playerJSONStrategy reads players configured like <div data-setup='{"sources": [{"src": "..."}]}'>.
func playerJSONStrategy(attr string) Strategy {
	return Strategy{
		Name: StrategyPlayerJSON,
		Extract: func(in *Input) generic.Option[string] {
			doc, ok := in.Document()
			if !ok || attr == "" {
				return generic.None[string]()
			}
			result := generic.None[string]()
			doc.Find("[" + attr + "]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				payload, _ := s.Attr(attr)
				js, err := simplejson.NewJson([]byte(payload))
				if err != nil {
					return true
				}
				src, err := js.Get("sources").GetIndex(0).Get("src").String()
				if err != nil {
					return true
				}
				if resolved, ok := in.Resolve(src); ok {
					result = generic.Some(resolved)
					return false
				}
				return true
			})
			return result
		},
	}
}

func serviceAnchorStrategy() Strategy {
	return selectorStrategy(StrategyServiceAnchor, "href", func(s string) bool {
		u, err := util.ParseLoose(s)
		return err == nil && youtube.IsWatchLink(u)
	}, "a[href]")
}

func mediaRegexStrategy(extensions []string) Strategy {
	patterns := make([]*regexp.Regexp, 0, len(extensions))
	for _, ext := range extensions {
		patterns = append(patterns, regexp.MustCompile(`https?://[^"'\s<>]+\.`+regexp.QuoteMeta(ext)+`[^"'\s<>]*`))
	}
	return Strategy{
		Name: StrategyMediaRegex,
		Extract: func(in *Input) generic.Option[string] {
			for _, re := range patterns {
				if m := re.Find(in.Body()); m != nil {
					if resolved, ok := in.Resolve(string(m)); ok {
						return generic.Some(resolved)
					}
				}
			}
			return generic.None[string]()
		},
	}
}
