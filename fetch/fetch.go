// Package fetch issues the HTTP requests of the resolution pipeline and of direct streaming. It never retries:
// every failure goes back to the caller as a *video_fetcher.NetworkError.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/alanbriolat/video-fetcher"
)

type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxPageBytes int64
}

type Option func(*Fetcher)

// WithClient replaces the default HTTP client, e.g. for tests.
func WithClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

func New(cfg video_fetcher.Config, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:       &http.Client{Timeout: cfg.FetchTimeout},
		userAgent:    cfg.UserAgent,
		maxPageBytes: cfg.MaxPageBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs a page, following redirects.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*video_fetcher.Page, error) {
	resp, err := f.do(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body := io.Reader(resp.Body)
	if f.maxPageBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxPageBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &video_fetcher.NetworkError{URL: url, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	finalURL := resp.Request.URL.String()
	return &video_fetcher.Page{
		URL:        url,
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Body:       data,
		Redirected: finalURL != url,
	}, nil
}

// ProbeSize issues a HEAD request and returns the Content-Length, or -1 if the server doesn't say.
func (f *Fetcher) ProbeSize(ctx context.Context, url string) (int64, error) {
	resp, err := f.do(ctx, http.MethodHead, url)
	if err != nil {
		return -1, err
	}
	resp.Body.Close()
	return resp.ContentLength, nil
}

// Open starts a streaming GET. The caller must close the returned body. The size is -1 if unknown.
func (f *Fetcher) Open(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	resp, err := f.do(ctx, http.MethodGet, url)
	if err != nil {
		return nil, -1, err
	}
	return resp.Body, resp.ContentLength, nil
}

func (f *Fetcher) do(ctx context.Context, method string, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, &video_fetcher.NetworkError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &video_fetcher.NetworkError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &video_fetcher.NetworkError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
