// Package cookies finds the cookie store handed to the external tool, and reads Netscape cookie files.
package cookies

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alanbriolat/video-fetcher"
	"github.com/alanbriolat/video-fetcher/generic"
)

var ErrMalformedLine = errors.New("malformed cookie line")

const httpOnlyPrefix = "#HttpOnly_"

// Netscape cookie files start with one of these.
var headers = []string{"# Netscape HTTP Cookie File", "# HTTP Cookie File"}

// A Store is a cookie file that exists on disk. Verified means it starts with a Netscape cookie file header.
type Store struct {
	Path     string
	Verified bool
}

// Locator knows where to look for a Store. Empty fields are skipped.
type Locator struct {
	Override      string
	ExecutableDir string
	WorkingDir    string
	UserPath      string
	FileName      string
}

// NewLocator fills in the default search locations from the configuration.
func NewLocator(cfg video_fetcher.CookieConfig, override string) *Locator {
	l := &Locator{
		Override: override,
		UserPath: video_fetcher.ExpandHome(cfg.UserPath),
		FileName: cfg.FileName,
	}
	if exe, err := os.Executable(); err == nil {
		l.ExecutableDir = filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		l.WorkingDir = wd
	}
	return l
}

// Candidates returns the paths Locate checks, in order.
func (l *Locator) Candidates() []string {
	var paths []string
	if l.Override != "" {
		paths = append(paths, video_fetcher.ExpandHome(l.Override))
	}
	if l.FileName != "" {
		for _, dir := range []string{l.ExecutableDir, l.WorkingDir} {
			if dir != "" {
				paths = append(paths, filepath.Join(dir, l.FileName))
			}
		}
	}
	if l.UserPath != "" {
		paths = append(paths, l.UserPath)
	}
	return paths
}

// Locate returns the first candidate that exists as a regular file. Finding nothing is not an error.
func (l *Locator) Locate() generic.Option[Store] {
	log := zap.S().Named("cookies")
	for _, path := range l.Candidates() {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		store := Store{Path: path, Verified: hasHeader(path)}
		log.Debugw("found cookie store", "path", path, "verified", store.Verified)
		return generic.Some(store)
	}
	log.Debugw("no cookie store found", "candidates", l.Candidates())
	return generic.None[Store]()
}

func hasHeader(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		for _, header := range headers {
			if strings.HasPrefix(line, header) {
				return true
			}
		}
		return false
	}
	return false
}

// Cookies parses the store, returning the entries whose domain contains domain. An empty domain returns everything.
func (s Store) Cookies(domain string) ([]*http.Cookie, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie store: %w", err)
	}
	defer f.Close()

	var cookies []*http.Cookie
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		cookie, err := ParseLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("%v line %d: %w", s.Path, lineNo, err)
		}
		if cookie == nil {
			continue
		}
		if domain == "" || strings.Contains(cookie.Domain, domain) {
			cookies = append(cookies, cookie)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookie store: %w", err)
	}
	return cookies, nil
}

// ParseLine parses one line of a Netscape cookie file. Blank lines and comments give a nil cookie.
func ParseLine(line string) (*http.Cookie, error) {
	line = strings.TrimRight(line, "\r\n")
	httpOnly := false
	if strings.HasPrefix(line, httpOnlyPrefix) {
		httpOnly = true
		line = strings.TrimPrefix(line, httpOnlyPrefix)
	}
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}

	fields := strings.Split(line, "\t")
	if len(fields) != 7 {
		return nil, fmt.Errorf("%w: expected 7 fields, got %d", ErrMalformedLine, len(fields))
	}
	expires, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expiry %q", ErrMalformedLine, fields[4])
	}
	cookie := &http.Cookie{
		Domain:   fields[0],
		Path:     fields[2],
		Secure:   strings.EqualFold(fields[3], "TRUE"),
		Name:     fields[5],
		Value:    fields[6],
		HttpOnly: httpOnly,
	}
	// Zero means a session cookie
	if expires > 0 {
		cookie.Expires = time.Unix(expires, 0)
	}
	return cookie, nil
}
