package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/alanbriolat/video-fetcher"
	"github.com/alanbriolat/video-fetcher/cookies"
	"github.com/alanbriolat/video-fetcher/fetch"
	"github.com/alanbriolat/video-fetcher/generic"
	"github.com/alanbriolat/video-fetcher/ytdlp"
)

const botError = "ERROR: [youtube] dQw4w9WgXcQ: Sign in to confirm you're not a bot. Use --cookies-from-browser\n"

var content = strings.Repeat("0123456789", 2000)

type fakeRunner struct {
	invocations []ytdlp.Invocation
	respond     func(inv ytdlp.Invocation) (ytdlp.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, inv ytdlp.Invocation) (ytdlp.Result, error) {
	f.invocations = append(f.invocations, inv)
	if f.respond == nil {
		return ytdlp.Result{}, nil
	}
	return f.respond(inv)
}

func failWith(stderr string) func(ytdlp.Invocation) (ytdlp.Result, error) {
	return func(ytdlp.Invocation) (ytdlp.Result, error) {
		return ytdlp.Result{ExitCode: 1, Stderr: stderr}, ytdlp.ErrToolFailed
	}
}

func newServer(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/My Clip.mp4":
			w.Header().Set("Content-Length", "20000")
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, content)
			}
		case "/files/broken.mp4":
			w.Header().Set("Content-Length", "20000")
			if r.Method == http.MethodGet {
				// Short body: the client sees an unexpected EOF
				_, _ = io.WriteString(w, content[:100])
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

type harness struct {
	dispatcher *Dispatcher
	runner     *fakeRunner
	transition []string
	locates    int
}

func newHarness(t *testing.T, store generic.Option[cookies.Store], opts ...Option) *harness {
	h := &harness{runner: &fakeRunner{}}
	opts = append([]Option{
		WithCookieLocator(func(string) generic.Option[cookies.Store] {
			h.locates++
			return store
		}),
		WithStateObserver(func(_ video_fetcher.Job, from State, to State) {
			h.transition = append(h.transition, to.String())
		}),
	}, opts...)
	h.dispatcher = New(video_fetcher.DefaultConfig(), fetch.New(video_fetcher.DefaultConfig()), h.runner, opts...)
	return h
}

func noStore() generic.Option[cookies.Store] {
	return generic.None[cookies.Store]()
}

func someStore() generic.Option[cookies.Store] {
	return generic.Some(cookies.Store{Path: "/home/user/cookies.txt", Verified: true})
}

func directJob(url string, dest string) video_fetcher.Job {
	return video_fetcher.Job{
		ID:          "job-1",
		Locator:     video_fetcher.Locator{URL: url, Kind: video_fetcher.KindDirectMedia},
		Destination: dest,
		Quality:     video_fetcher.QualityBest,
	}
}

func serviceJob(dest string) video_fetcher.Job {
	return video_fetcher.Job{
		ID:          "job-2",
		Locator:     video_fetcher.Locator{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", Kind: video_fetcher.KindVideoService},
		Destination: dest,
		Quality:     video_fetcher.QualityBest,
	}
}

func methods(attempts []video_fetcher.Attempt) []string {
	var result []string
	for _, a := range attempts {
		if a.Credential == "" {
			result = append(result, string(a.Method))
		} else {
			result = append(result, string(a.Method)+"="+a.Credential)
		}
	}
	return result
}

func assertNoTempFiles(assert *assert_.Assertions, dir string) {
	matches, _ := filepath.Glob(filepath.Join(dir, ".video-fetcher-*"))
	assert.Empty(matches)
}

func TestDispatcher_Direct(t *testing.T) {
	assert := assert_.New(t)
	server := newServer(t)
	dest := filepath.Join(t.TempDir(), "videos")
	h := newHarness(t, someStore())

	var lastDownloaded, lastExpected int64
	job := directJob(server.URL+"/files/My%20Clip.mp4", dest)
	job.Progress = func(downloaded int64, expected int64) {
		lastDownloaded, lastExpected = downloaded, expected
	}
	result, err := h.dispatcher.Run(context.Background(), job)
	assert.Nil(err)
	assert.Equal(video_fetcher.MethodDirect, result.Method)
	assert.Equal(filepath.Join(dest, "My_Clip.mp4"), result.Path)
	data, _ := os.ReadFile(result.Path)
	assert.Equal(content, string(data))
	assert.Equal(int64(len(content)), lastDownloaded)
	assert.Equal(int64(len(content)), lastExpected)
	assert.Equal([]string{"direct-streaming", "done"}, h.transition)
	assertNoTempFiles(assert, dest)
	// Direct streaming never needs cookies or the tool
	assert.Equal(0, h.locates)
	assert.Empty(h.runner.invocations)
}

func TestDispatcher_Direct_Overwrite(t *testing.T) {
	assert := assert_.New(t)
	server := newServer(t)
	dest := t.TempDir()
	existing := filepath.Join(dest, "My_Clip.mp4")
	job := directJob(server.URL+"/files/My%20Clip.mp4", dest)

	// Declined: the original is untouched, and the job counts as cancelled
	assert.Nil(os.WriteFile(existing, []byte("original"), 0644))
	var asked []string
	h := newHarness(t, noStore(), WithConfirm(func(ctx context.Context, path string) (bool, error) {
		asked = append(asked, path)
		return false, nil
	}))
	_, err := h.dispatcher.Run(context.Background(), job)
	assert.ErrorIs(err, video_fetcher.ErrOverwriteDeclined)
	assert.True(video_fetcher.IsCancelled(err))
	assert.Equal([]string{existing}, asked)
	data, _ := os.ReadFile(existing)
	assert.Equal("original", string(data))
	assert.Equal([]string{"direct-streaming", "failed"}, h.transition)

	// Accepted: replaced
	h = newHarness(t, noStore(), WithConfirm(video_fetcher.AlwaysOverwrite))
	_, err = h.dispatcher.Run(context.Background(), job)
	assert.Nil(err)
	data, _ = os.ReadFile(existing)
	assert.Equal(content, string(data))
	assertNoTempFiles(assert, dest)
}

func TestDispatcher_Direct_Failure(t *testing.T) {
	assert := assert_.New(t)
	server := newServer(t)
	dest := t.TempDir()
	existing := filepath.Join(dest, "broken.mp4")
	assert.Nil(os.WriteFile(existing, []byte("original"), 0644))
	h := newHarness(t, noStore(), WithConfirm(video_fetcher.AlwaysOverwrite))

	// A failure part way through never replaces the existing file
	_, err := h.dispatcher.Run(context.Background(), directJob(server.URL+"/files/broken.mp4", dest))
	var failed *video_fetcher.DownloadFailedError
	assert.True(errors.As(err, &failed))
	assert.Len(failed.Attempts, 1)
	assert.False(failed.Cancelled())
	data, _ := os.ReadFile(existing)
	assert.Equal("original", string(data))
	assertNoTempFiles(assert, dest)

	_, err = h.dispatcher.Run(context.Background(), directJob(server.URL+"/files/missing.mp4", dest))
	var netErr *video_fetcher.NetworkError
	assert.True(errors.As(err, &netErr))
	assert.Equal(http.StatusNotFound, netErr.StatusCode)
}

func TestDispatcher_Delegated(t *testing.T) {
	assert := assert_.New(t)
	dest := t.TempDir()
	h := newHarness(t, someStore())

	result, err := h.dispatcher.Run(context.Background(), serviceJob(dest))
	assert.Nil(err)
	assert.Equal(video_fetcher.MethodDelegated, result.Method)
	assert.Equal(dest, result.Path)
	if assert.Len(h.runner.invocations, 1) {
		inv := h.runner.invocations[0]
		assert.Equal("/home/user/cookies.txt", inv.CookieFile)
		assert.Equal("", inv.Browser)
		assert.Equal(filepath.Join(dest, "%(title)s.%(ext)s"), inv.OutputTemplate)
		assert.Equal(video_fetcher.QualityBest, inv.Quality)
	}
	assert.Equal([]string{"delegated-fetch", "done"}, h.transition)
}

func TestDispatcher_BrowserFallback(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t, someStore())
	h.runner.respond = func(inv ytdlp.Invocation) (ytdlp.Result, error) {
		if inv.Browser == "firefox" {
			return ytdlp.Result{}, nil
		}
		return failWith(botError)(inv)
	}

	result, err := h.dispatcher.Run(context.Background(), serviceJob(t.TempDir()))
	assert.Nil(err)
	assert.Equal(video_fetcher.MethodBrowser, result.Method)
	assert.Equal([]string{
		"delegated=/home/user/cookies.txt",
		"browser-cookies=browser:chrome",
		"browser-cookies=browser:firefox",
	}, methods(result.Attempts))
	assert.Equal([]string{"delegated-fetch", "browser-cookie-fallback", "done"}, h.transition)
	// Located once for the whole job
	assert.Equal(1, h.locates)
	for _, inv := range h.runner.invocations[1:] {
		assert.Equal("", inv.CookieFile)
	}
}

func TestDispatcher_BrowserFallback_Exhausted(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t, someStore())
	h.runner.respond = failWith(botError)

	_, err := h.dispatcher.Run(context.Background(), serviceJob(t.TempDir()))
	var failed *video_fetcher.DownloadFailedError
	assert.True(errors.As(err, &failed))
	assert.Equal([]string{
		"delegated=/home/user/cookies.txt",
		"browser-cookies=browser:chrome",
		"browser-cookies=browser:firefox",
		"browser-cookies=browser:edge",
		"browser-cookies=browser:safari",
	}, methods(failed.Attempts))
	assert.ErrorIs(err, ytdlp.ErrToolFailed)
	assert.False(failed.Cancelled())
}

func TestDispatcher_NoFallback(t *testing.T) {
	assert := assert_.New(t)

	// Bot check without a cookie store: browser cookies are not tried
	h := newHarness(t, noStore())
	h.runner.respond = failWith(botError)
	_, err := h.dispatcher.Run(context.Background(), serviceJob(t.TempDir()))
	var failed *video_fetcher.DownloadFailedError
	assert.True(errors.As(err, &failed))
	assert.Equal([]string{"delegated"}, methods(failed.Attempts))

	// Other failures with a cookie store: also not tried
	h = newHarness(t, someStore())
	h.runner.respond = failWith("ERROR: Video unavailable\n")
	_, err = h.dispatcher.Run(context.Background(), serviceJob(t.TempDir()))
	assert.True(errors.As(err, &failed))
	assert.Equal([]string{"delegated=/home/user/cookies.txt"}, methods(failed.Attempts))
	assert.Equal([]string{"delegated-fetch", "failed"}, h.transition)
}

func TestDispatcher_Ambiguous(t *testing.T) {
	assert := assert_.New(t)
	server := newServer(t)
	dest := t.TempDir()
	job := directJob(server.URL+"/files/My%20Clip.mp4", dest)
	job.Locator.Kind = video_fetcher.KindAmbiguous

	// The tool fails, so the one switch to direct streaming happens
	h := newHarness(t, noStore())
	h.runner.respond = failWith("ERROR: Unsupported URL\n")
	result, err := h.dispatcher.Run(context.Background(), job)
	assert.Nil(err)
	assert.Equal([]string{"delegated", "direct"}, methods(result.Attempts))
	assert.False(result.Attempts[0].Succeeded())
	assert.True(result.Attempts[1].Succeeded())
	assert.Equal([]string{"delegated-fetch", "direct-streaming", "done"}, h.transition)

	// Both fail: no cycling back
	job.Locator.URL = server.URL + "/files/missing"
	h = newHarness(t, noStore())
	h.runner.respond = failWith("ERROR: Unsupported URL\n")
	_, err = h.dispatcher.Run(context.Background(), job)
	var failed *video_fetcher.DownloadFailedError
	assert.True(errors.As(err, &failed))
	assert.Equal([]string{"delegated", "direct"}, methods(failed.Attempts))
	assert.Len(h.runner.invocations, 1)
}

func TestDispatcher_Cancelled(t *testing.T) {
	assert := assert_.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := newHarness(t, someStore())
	_, err := h.dispatcher.Run(ctx, serviceJob(t.TempDir()))
	var failed *video_fetcher.DownloadFailedError
	assert.True(errors.As(err, &failed))
	assert.True(failed.Cancelled())
	assert.True(video_fetcher.IsCancelled(err))
	assert.Empty(h.runner.invocations)

	// Cancelled while the tool runs: no fallback, no switch of method
	ctx, cancel = context.WithCancel(context.Background())
	h = newHarness(t, someStore())
	h.runner.respond = func(ytdlp.Invocation) (ytdlp.Result, error) {
		cancel()
		return ytdlp.Result{ExitCode: -1, Stderr: botError}, context.Canceled
	}
	job := serviceJob(t.TempDir())
	job.Locator.Kind = video_fetcher.KindAmbiguous
	_, err = h.dispatcher.Run(ctx, job)
	assert.True(video_fetcher.IsCancelled(err))
	assert.True(errors.As(err, &failed))
	assert.Equal([]string{"delegated=/home/user/cookies.txt"}, methods(failed.Attempts))
}

func TestState_String(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("browser-cookie-fallback", StateBrowserCookieFallback.String())
	assert.Equal("State(42)", State(42).String())
	assert.True(StateDone.Terminal())
	assert.True(StateFailed.Terminal())
	assert.False(StateDelegatedFetch.Terminal())
}
