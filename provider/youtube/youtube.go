// Package youtube recognises YouTube URLs and rewrites them to the canonical watch form.
package youtube

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/alanbriolat/video-fetcher/generic"
	"github.com/alanbriolat/video-fetcher/util"
)

const CanonicalHost = "www.youtube.com"

var (
	ErrNotYouTube = errors.New("not a YouTube URL")
	ErrNoVideoID  = errors.New("could not extract video ID")
)

var (
	hosts         = generic.NewSet("youtube.com", "youtu.be", "youtube-nocookie.com")
	videoIDRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	// IDs in a URL path or query are taken at any length, as long as the characters fit.
	idSegmentRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	// Path prefixes that are followed by the video ID.
	idPathPrefixes = []string{"/embed/", "/v/", "/shorts/", "/live/", "/e/"}
)

// MatchHost returns true for youtube.com, youtu.be, youtube-nocookie.com and any of their subdomains.
func MatchHost(host string) bool {
	return util.MatchHost(hosts, host)
}

// IsVideoID returns true if s has the shape of a bare YouTube video ID. It is stricter than the ID matching within
// YouTube URLs, since a bare value has no host to vouch for it.
func IsVideoID(s string) bool {
	return videoIDRegexp.MatchString(s)
}

// WatchURL returns the canonical URL for a video ID.
func WatchURL(videoID string) string {
	return fmt.Sprintf("https://%s/watch?v=%s", CanonicalHost, videoID)
}

// Normalize rewrites any recognised YouTube URL shape to WatchURL form.
func Normalize(u *url.URL) (string, error) {
	id, err := ExtractVideoID(u)
	if err != nil {
		return "", err
	}
	return WatchURL(id), nil
}

// IsWatchLink returns true if u is a YouTube URL in one of the documented single-video shapes.
func IsWatchLink(u *url.URL) bool {
	return u != nil && MatchHost(u.Hostname()) && pathVideoID(u) != ""
}

// ExtractVideoID extracts the video ID from a YouTube URL.
//
// Allowed URL formats:
//
//	http(s?)://(www|m|music).youtube.com/(watch|details)?v={VIDEO_ID}
//	http(s?)://(www.)youtube(-nocookie).com/(embed|v|shorts|live|e)/{VIDEO_ID}
//	http(s?)://youtu.be/{VIDEO_ID}
//
// Anything else on a YouTube host is passed to the youtube client library's more lenient matcher.
func ExtractVideoID(u *url.URL) (string, error) {
	if u == nil || !MatchHost(u.Hostname()) {
		return "", ErrNotYouTube
	}
	id := pathVideoID(u)
	if id == "" {
		// Only the request URI: the library would happily take 11 characters of the hostname as an ID
		if libID, err := youtube.ExtractVideoID(u.RequestURI()); err == nil && IsVideoID(libID) {
			id = libID
		}
	}
	if id == "" {
		return "", ErrNoVideoID
	}
	return id, nil
}

func pathVideoID(u *url.URL) string {
	var id string
	switch {
	case strings.TrimSuffix(strings.ToLower(u.Hostname()), ".") == "youtu.be":
		id = strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)[0]
	case u.Path == "/watch" || u.Path == "/details":
		id = u.Query().Get("v")
	default:
		for _, prefix := range idPathPrefixes {
			if strings.HasPrefix(u.Path, prefix) {
				id = strings.SplitN(strings.TrimPrefix(u.Path, prefix), "/", 2)[0]
				break
			}
		}
	}
	if !idSegmentRegexp.MatchString(id) {
		return ""
	}
	return id
}
