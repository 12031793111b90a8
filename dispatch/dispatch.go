// Package dispatch carries out a Job: it picks the download method from the Locator's kind and walks the fallback
// ladders, recording every Attempt.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/alanbriolat/video-fetcher"
	"github.com/alanbriolat/video-fetcher/cookies"
	"github.com/alanbriolat/video-fetcher/download"
	"github.com/alanbriolat/video-fetcher/generic"
	"github.com/alanbriolat/video-fetcher/util"
	"github.com/alanbriolat/video-fetcher/ytdlp"
)

type State int

const (
	StateIdle State = iota
	StateDirectStreaming
	StateDelegatedFetch
	StateBrowserCookieFallback
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDirectStreaming:
		return "direct-streaming"
	case StateDelegatedFetch:
		return "delegated-fetch"
	case StateBrowserCookieFallback:
		return "browser-cookie-fallback"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal states are Done and Failed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Streamer is the part of fetch.Fetcher that direct streaming needs.
type Streamer interface {
	ProbeSize(ctx context.Context, url string) (int64, error)
	Open(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// Runner is the part of ytdlp.Executor that delegated fetching needs.
type Runner interface {
	Run(ctx context.Context, inv ytdlp.Invocation) (ytdlp.Result, error)
}

type CookieLocateFunc = func(override string) generic.Option[cookies.Store]

type StateFunc = func(job video_fetcher.Job, from State, to State)

// Result describes a successful Job.
type Result struct {
	Method video_fetcher.Method
	// Path is the downloaded file for direct streaming, or the destination directory when the tool picked the name.
	Path     string
	Attempts []video_fetcher.Attempt
}

type Dispatcher struct {
	cfg      video_fetcher.Config
	streamer Streamer
	runner   Runner
	confirm  video_fetcher.ConfirmFunc
	locate   CookieLocateFunc
	onState  StateFunc
}

type Option func(*Dispatcher)

// WithConfirm sets how existing destination files are handled. The default is NeverOverwrite.
func WithConfirm(f video_fetcher.ConfirmFunc) Option {
	return func(d *Dispatcher) {
		d.confirm = f
	}
}

func WithCookieLocator(f CookieLocateFunc) Option {
	return func(d *Dispatcher) {
		d.locate = f
	}
}

// WithStateObserver registers f to be called on every state transition, from the job's goroutine.
func WithStateObserver(f StateFunc) Option {
	return func(d *Dispatcher) {
		d.onState = f
	}
}

func New(cfg video_fetcher.Config, streamer Streamer, runner Runner, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		streamer: streamer,
		runner:   runner,
		confirm:  video_fetcher.NeverOverwrite,
		locate: func(override string) generic.Option[cookies.Store] {
			return cookies.NewLocator(cfg.Cookies, override).Locate()
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run carries out job. On failure the error is a *video_fetcher.DownloadFailedError; use video_fetcher.IsCancelled
// to tell aborts from failures.
func (d *Dispatcher) Run(ctx context.Context, job video_fetcher.Job) (*Result, error) {
	r := &jobRun{
		d:     d,
		job:   job,
		state: StateIdle,
		log:   video_fetcher.Logger(ctx).Sugar().With("job", job.ID),
	}
	if r.job.Destination == "" {
		r.job.Destination = "."
	}
	r.log.Infow("starting download", "url", job.Locator.URL, "kind", job.Locator.Kind, "quality", job.Quality)

	var err error
	switch job.Locator.Kind {
	case video_fetcher.KindDirectMedia:
		err = r.direct(ctx)
	case video_fetcher.KindVideoService:
		err = r.delegated(ctx)
	default:
		// One switch of method, never back again
		if err = r.delegated(ctx); err != nil && !video_fetcher.IsCancelled(err) {
			r.log.Infow("delegated fetch failed, trying direct streaming", "error", err)
			err = r.direct(ctx)
		}
	}

	if err != nil {
		r.setState(StateFailed)
		return nil, &video_fetcher.DownloadFailedError{Attempts: r.attempts}
	}
	r.setState(StateDone)
	last := r.attempts[len(r.attempts)-1]
	r.log.Infow("download complete", "method", last.Method, "path", r.path, "attempts", len(r.attempts))
	return &Result{Method: last.Method, Path: r.path, Attempts: r.attempts}, nil
}

// jobRun is the state of one Run call, confined to its goroutine.
type jobRun struct {
	d        *Dispatcher
	job      video_fetcher.Job
	state    State
	attempts []video_fetcher.Attempt
	path     string
	log      *zap.SugaredLogger

	located     bool
	cookieStore generic.Option[cookies.Store]
}

func (r *jobRun) setState(to State) {
	if to == r.state {
		return
	}
	from := r.state
	r.state = to
	r.log.Debugw("state transition", "from", from, "to", to)
	if r.d.onState != nil {
		r.d.onState(r.job, from, to)
	}
}

// store locates the cookie store on first use, and then remembers the answer for the rest of the job.
func (r *jobRun) store() generic.Option[cookies.Store] {
	if !r.located {
		r.located = true
		r.cookieStore = r.d.locate(r.job.CookieOverride)
		if s, ok := r.cookieStore.Get(); ok {
			r.log.Infow("using cookie store", "path", s.Path, "verified", s.Verified)
		} else {
			r.log.Infow("no cookie store found, some videos may be unavailable")
		}
	}
	return r.cookieStore
}

// attempt runs f as one Attempt. Errors while ctx is done are recorded as cancellation.
func (r *jobRun) attempt(ctx context.Context, method video_fetcher.Method, credential string, f func() error) error {
	start := time.Now()
	var err error
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else {
		err = f()
	}
	if err != nil && ctx.Err() != nil && !video_fetcher.IsCancelled(err) {
		err = fmt.Errorf("%w: %w", video_fetcher.ErrCancelled, err)
	}
	a := video_fetcher.Attempt{
		Method:     method,
		Quality:    r.job.Quality,
		Credential: credential,
		Err:        err,
		Duration:   time.Since(start),
	}
	r.attempts = append(r.attempts, a)
	if err != nil {
		r.log.Infow("attempt failed", "attempt", a.String(), "error", err)
	} else {
		r.log.Debugw("attempt succeeded", "attempt", a.String(), "duration", a.Duration)
	}
	return err
}

func (r *jobRun) delegated(ctx context.Context) error {
	r.setState(StateDelegatedFetch)
	inv := ytdlp.Invocation{
		URL:            r.job.Locator.URL,
		OutputTemplate: filepath.Join(r.job.Destination, r.d.cfg.Tool.OutputTemplate),
		Quality:        r.job.Quality,
	}
	store, usedStore := r.store().Get()
	credential := ""
	if usedStore {
		inv.CookieFile = store.Path
		credential = store.Path
	}

	var result ytdlp.Result
	err := r.attempt(ctx, video_fetcher.MethodDelegated, credential, func() error {
		if err := os.MkdirAll(r.job.Destination, 0755); err != nil {
			return fmt.Errorf("failed to create destination: %w", err)
		}
		var err error
		result, err = r.d.runner.Run(ctx, inv)
		return err
	})
	if err == nil {
		r.path = r.job.Destination
		return nil
	}
	if video_fetcher.IsCancelled(err) || !usedStore || !result.MatchesAny(r.d.cfg.BotSignatures) {
		return err
	}

	r.setState(StateBrowserCookieFallback)
	r.log.Infow("cookie store rejected by bot check, trying browser cookies", "browsers", r.d.cfg.Browsers)
	for _, browser := range r.d.cfg.Browsers {
		inv.CookieFile = ""
		inv.Browser = browser
		err = r.attempt(ctx, video_fetcher.MethodBrowser, "browser:"+browser, func() error {
			_, err := r.d.runner.Run(ctx, inv)
			return err
		})
		if err == nil {
			r.path = r.job.Destination
			return nil
		} else if video_fetcher.IsCancelled(err) {
			return err
		}
	}
	return err
}

func (r *jobRun) direct(ctx context.Context) error {
	r.setState(StateDirectStreaming)
	url := r.job.Locator.URL
	filename := util.MediaFilename(url)
	return r.attempt(ctx, video_fetcher.MethodDirect, "", func() error {
		return download.WithDownloadState(func(state *download.DownloadState) error {
			target := state.TargetPath(filename)
			if state.Exists(filename) {
				ok, err := r.d.confirm(ctx, target)
				if err != nil {
					return fmt.Errorf("failed to confirm overwrite: %w", err)
				} else if !ok {
					return video_fetcher.ErrOverwriteDeclined
				}
				r.log.Infow("overwriting existing file", "path", target)
			}

			size, err := r.d.streamer.ProbeSize(ctx, url)
			if err != nil {
				r.log.Debugw("size probe failed", "error", err)
				size = -1
			}
			body, openSize, err := r.d.streamer.Open(ctx, url)
			if err != nil {
				return err
			}
			defer body.Close()
			if size < 0 {
				size = openSize
			}

			dl := video_fetcher.NewDownloadBuilder().
				WithContext(ctx).
				WithProgressCallback(r.job.Progress).
				WithChunkSize(r.d.cfg.ChunkSize).
				Build()
			defer dl.Cancel()
			dl.SetExpectedBytes(size)
			r.log.Infow("streaming", "url", url, "path", target, "bytes", size)
			path, err := dl.SaveStream(state, filename, body)
			if err != nil {
				return err
			}
			r.path = path
			return nil
		}, download.WithTargetDir(r.job.Destination))
	})
}
