package resolve

import (
	"bytes"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/alanbriolat/video-fetcher"
	"github.com/alanbriolat/video-fetcher/util"
)

// Input is what every Strategy sees: the source URL and its fetched page. The HTML is parsed at most once, on first
// use, and shared between strategies.
type Input struct {
	Source string
	Page   *video_fetcher.Page

	base     *url.URL
	docOnce  sync.Once
	doc      *goquery.Document
	hostsSet []string
}

func NewInput(source string, page *video_fetcher.Page) *Input {
	in := &Input{Source: source, Page: page}
	if page != nil && page.FinalURL != "" {
		in.base, _ = url.Parse(page.FinalURL)
	}
	if in.base == nil {
		in.base, _ = util.ParseLoose(source)
	}
	return in
}

// Body is the raw page body, or nil if there is no page.
func (in *Input) Body() []byte {
	if in.Page == nil {
		return nil
	}
	return in.Page.Body
}

// Document returns the parsed page, or false if it could not be parsed.
func (in *Input) Document() (*goquery.Document, bool) {
	in.docOnce.Do(func() {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(in.Body())); err == nil {
			in.doc = doc
		}
	})
	return in.doc, in.doc != nil
}

// Hosts returns the host names of the source URL and the page's final URL.
func (in *Input) Hosts() []string {
	if in.hostsSet == nil {
		in.hostsSet = []string{}
		if u, err := util.ParseLoose(in.Source); err == nil && u.Host != "" {
			in.hostsSet = append(in.hostsSet, u.Hostname())
		}
		if in.base != nil && in.base.Host != "" {
			in.hostsSet = append(in.hostsSet, in.base.Hostname())
		}
	}
	return in.hostsSet
}

// Resolve percent-decodes an attribute value and resolves it against the page URL. Only http(s) results count.
func (in *Input) Resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(util.Unescape(ref))
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if in.base != nil {
		u = in.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

// resolveRaw resolves ref without decoding it first, keeping any query string intact for parsing.
func (in *Input) resolveRaw(ref string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, false
	}
	if in.base != nil {
		u = in.base.ResolveReference(u)
	}
	return u, true
}
