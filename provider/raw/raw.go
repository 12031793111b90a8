// Package raw recognises direct media file URLs: anything that can be fetched with a plain GET.
package raw

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/alanbriolat/video-fetcher/generic"
	"github.com/alanbriolat/video-fetcher/util"
)

type Config struct {
	Protocols  generic.Set[string]
	Extensions generic.Set[string]
	// Ordered copy of Extensions, since scans for media URLs try each extension in turn.
	ordered  []string
	contains *regexp.Regexp
}

// NewConfig builds a Config for the given extensions (with or without the leading dot, any case).
func NewConfig(extensions ...string) *Config {
	c := &Config{
		Protocols:  generic.NewSet("http", "https"),
		Extensions: generic.NewSet[string](),
	}
	quoted := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext == "" || !c.Extensions.Add(ext) {
			continue
		}
		c.ordered = append(c.ordered, ext)
		quoted = append(quoted, regexp.QuoteMeta(ext))
	}
	if len(quoted) > 0 {
		c.contains = regexp.MustCompile(`\.(?:` + strings.Join(quoted, "|") + `)(?:$|[^a-z0-9])`)
	}
	return c
}

// OrderedExtensions returns the extensions in the order they were configured.
func (c *Config) OrderedExtensions() []string {
	return append([]string(nil), c.ordered...)
}

// MatchURL returns true if the path or the (decoded) query of u mentions a known media file extension.
func (c *Config) MatchURL(u *url.URL) bool {
	if c.contains == nil || u == nil {
		return false
	}
	if u.Scheme != "" && !c.Protocols.Contains(strings.ToLower(u.Scheme)) {
		return false
	}
	if c.contains.MatchString(strings.ToLower(u.Path)) {
		return true
	}
	return u.RawQuery != "" && c.contains.MatchString(strings.ToLower(util.Unescape(u.RawQuery)))
}

// HasMediaExtension is the strict form of MatchURL: the file name in the path must end with a known extension.
func (c *Config) HasMediaExtension(u *url.URL) bool {
	filename, err := util.FilenameFromURL(u)
	if err != nil {
		return false
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	return ext != "" && c.Extensions.Contains(ext)
}
