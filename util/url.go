package util

import (
	"errors"
	"net/url"
	"strings"

	"github.com/alanbriolat/video-fetcher/generic"
)

var (
	ErrNoFilename = errors.New("cannot extract valid filename")
)

// DefaultMediaFilename is used when a media URL has no usable last path element.
const DefaultMediaFilename = "video.mp4"

func FilenameFromURL(url *url.URL) (string, error) {
	if url == nil {
		return "", ErrNoFilename
	}
	path := strings.Trim(url.Path, "/")
	if path == "" {
		return "", ErrNoFilename
	}
	pathElements := strings.Split(path, "/")
	filename := pathElements[len(pathElements)-1]
	if filename == "" {
		return "", ErrNoFilename
	}
	// Don't allow "filenames" that are just ".", "..", etc.
	if strings.ReplaceAll(filename, ".", "") == "" {
		return "", ErrNoFilename
	}
	return filename, nil
}

func FilenameFromURLString(s string) (string, error) {
	if parsedURL, err := url.Parse(s); err != nil {
		return "", err
	} else {
		return FilenameFromURL(parsedURL)
	}
}

// MediaFilename picks the local file name for a direct media URL: the percent-decoded last path element with spaces
// replaced by underscores, or DefaultMediaFilename.
func MediaFilename(s string) string {
	filename, err := FilenameFromURLString(s)
	if err != nil {
		return DefaultMediaFilename
	}
	if unescaped, err := url.PathUnescape(filename); err == nil {
		filename = unescaped
	}
	// Path separators can reappear after unescaping
	filename = strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(filename)
	if strings.ReplaceAll(filename, ".", "") == "" {
		return DefaultMediaFilename
	}
	return filename
}

// Unescape percent-decodes s, returning it unchanged if it is not validly encoded.
func Unescape(s string) string {
	if unescaped, err := url.PathUnescape(s); err == nil {
		return unescaped
	}
	return s
}

// ParseLoose parses s as a URL, assuming https:// if it has no scheme.
func ParseLoose(s string) (*url.URL, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "//") {
		return url.Parse("https:" + s)
	}
	u, err := url.Parse(s)
	if err == nil && u.Host != "" {
		return u, nil
	}
	if err == nil && u.Scheme == "" && !strings.HasPrefix(s, "/") {
		return url.Parse("https://" + s)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// MatchHost returns true if host, or any parent domain of host, is in hosts. Hosts must be lower case.
func MatchHost(hosts generic.Set[string], host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for host != "" {
		if hosts.Contains(host) {
			return true
		}
		_, parent, found := strings.Cut(host, ".")
		if !found {
			return false
		}
		host = parent
	}
	return false
}
