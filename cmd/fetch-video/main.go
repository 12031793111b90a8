package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/r3labs/diff/v3"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alanbriolat/video-fetcher"
	"github.com/alanbriolat/video-fetcher/async"
	"github.com/alanbriolat/video-fetcher/cookies"
	"github.com/alanbriolat/video-fetcher/dispatch"
	"github.com/alanbriolat/video-fetcher/fetch"
	"github.com/alanbriolat/video-fetcher/internal/prompt"
	"github.com/alanbriolat/video-fetcher/internal/pubsub"
	"github.com/alanbriolat/video-fetcher/internal/session"
	"github.com/alanbriolat/video-fetcher/resolve"
	"github.com/alanbriolat/video-fetcher/ytdlp"
)

const (
	exitFailure   = 1
	exitCancelled = 130
)

func main() {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.Level.SetLevel(zapcore.InfoLevel)
	config.DisableStacktrace = true
	logger, err := config.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := newApp(config.Level)
	result := async.Run(func() error { return app.RunContext(ctx, os.Args) })

	select {
	case err = <-result:
	case <-ctx.Done():
		stop()
		logger.Info("Exiting gracefully...")
		err = <-result
	}
	stop()

	code := exitCode(err)
	if err != nil {
		logger.Error(err.Error())
	}
	_ = logger.Sync()
	os.Exit(code)
}

func newApp(level zap.AtomicLevel) *cli.App {
	return &cli.App{
		Name:      "fetch-video",
		Usage:     "find the video on a web page and download it",
		ArgsUsage: "[URL...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "source",
				Aliases: []string{"s"},
				Usage:   "download the video found at `URL` (repeatable)",
			},
			&cli.StringFlag{
				Name:    "destination",
				Aliases: []string{"d"},
				Value:   ".",
				Usage:   "save downloaded videos to `DIR`",
			},
			&cli.StringFlag{
				Name:    "cookies",
				Aliases: []string{"c"},
				Usage:   "use the Netscape cookie file at `PATH` before the default locations",
			},
			&cli.StringFlag{
				Name:    "quality",
				Aliases: []string{"q"},
				Value:   "best",
				Usage:   "one of " + strings.Join(video_fetcher.QualityNames(), ", "),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "show debug logging and the download tool's output",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "overwrite existing files without asking",
			},
			&cli.BoolFlag{
				Name:  "no-clobber",
				Usage: "never overwrite existing files",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "load configuration from YAML `FILE`",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "give up on each video after `DURATION` (0 for no limit)",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				level.SetLevel(zapcore.DebugLevel)
			}
			if c.Bool("yes") && c.Bool("no-clobber") {
				return errors.New("--yes and --no-clobber are mutually exclusive")
			}
			return nil
		},
		Action: fetchVideos,
		Commands: []*cli.Command{
			{
				Name:      "resolve",
				Usage:     "print the media locator found for each URL, without downloading",
				ArgsUsage: "URL...",
				Action:    resolveVideos,
			},
			{
				Name:   "cookies",
				Usage:  "show which cookie store would be used",
				Action: showCookies,
			},
		},
		HideHelpCommand: true,
		// Errors are reported by main, which also picks the exit code
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// exitCode is 130 only if every error is a cancellation.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	errs := []error{err}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		errs = merr.Errors
	}
	for _, e := range errs {
		if !video_fetcher.IsCancelled(e) && !errors.Is(e, context.Canceled) {
			return exitFailure
		}
	}
	return exitCancelled
}

// components shared by every job of one invocation.
type components struct {
	cfg      video_fetcher.Config
	fetcher  *fetch.Fetcher
	pipeline *resolve.Pipeline
}

func newComponents(c *cli.Context) (*components, error) {
	cfg, err := video_fetcher.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	fetcher := fetch.New(cfg)
	pipeline, err := resolve.NewPipeline(cfg, fetcher)
	if err != nil {
		return nil, fmt.Errorf("failed to build resolution pipeline: %w", err)
	}
	zap.S().Debugf("extraction strategies: %v", pipeline.Strategies())
	return &components{cfg: cfg, fetcher: fetcher, pipeline: pipeline}, nil
}

func sourceArgs(c *cli.Context) []string {
	var sources []string
	for _, s := range append(c.StringSlice("source"), c.Args().Slice()...) {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}
	return sources
}

func fetchVideos(c *cli.Context) error {
	ctx := c.Context
	logger := zap.S()

	comp, err := newComponents(c)
	if err != nil {
		return err
	}
	quality, err := video_fetcher.ParseQuality(c.String("quality"))
	if err != nil {
		return err
	}
	destination := c.String("destination")
	if err := os.MkdirAll(destination, 0o755); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	prompter := prompt.New(os.Stdin, os.Stderr)
	defer prompter.Close()

	sources := sourceArgs(c)
	if len(sources) == 0 {
		source, err := prompter.Ask(ctx, "Video page URL: ")
		if err != nil {
			return fmt.Errorf("no URL given: %w", err)
		}
		if source = strings.TrimSpace(source); source == "" {
			return errors.New("no URL given")
		}
		sources = []string{source}
	}

	var confirm video_fetcher.ConfirmFunc = prompter.ConfirmOverwrite
	switch {
	case c.Bool("yes"):
		confirm = video_fetcher.AlwaysOverwrite
	case c.Bool("no-clobber"):
		confirm = video_fetcher.NeverOverwrite
	}

	var executorOpts []ytdlp.Option
	if c.Bool("verbose") {
		executorOpts = append(executorOpts, ytdlp.WithStdout(os.Stdout))
	}
	executor := ytdlp.NewExecutor(comp.cfg.Tool, executorOpts...)
	if path, err := executor.BinaryPath(); err != nil {
		logger.Warnf("%v: only direct media downloads will work", err)
	} else {
		logger.Debugf("using %s", path)
	}

	var ses *session.Session
	dispatcher := dispatch.New(comp.cfg, comp.fetcher, executor,
		dispatch.WithConfirm(confirm),
		dispatch.WithStateObserver(func(job video_fetcher.Job, from dispatch.State, to dispatch.State) {
			ses.ObserveState(job, from, to)
		}),
	)

	sesConfig := session.DefaultConfig
	sesConfig.Destination = destination
	sesConfig.Quality = quality
	sesConfig.CookieOverride = c.String("cookies")
	sesConfig.Timeout = c.Duration("timeout")
	ses = session.New(ctx, sesConfig, comp.pipeline, dispatcher)
	defer ses.Close()

	events, err := ses.Subscribe()
	if err != nil {
		return err
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		report(events, len(sources) == 1)
	}()

	logger.Infof("Downloading %d video(s) into %s (quality %s)", len(sources), destination, quality)
	for _, source := range sources {
		if _, err := ses.Add(source); err != nil {
			return err
		}
	}
	ses.Wait()
	jobs := ses.List()
	ses.Close()
	wg.Wait()

	return summarise(jobs)
}

// summarise collects the errors of every unsuccessful job.
func summarise(jobs []*session.Job) error {
	var result *multierror.Error
	for _, j := range jobs {
		if _, err := j.Result(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", j.State().Source, err))
		}
	}
	return result.ErrorOrNil()
}

// report logs a status line for every job transition. With showBar, direct streaming also draws a progress bar.
func report(events pubsub.Receiver[session.Event], showBar bool) {
	logger := zap.S()
	var view *progressView
	if showBar {
		view = newProgressView(func() *progressbar.ProgressBar {
			return progressbar.DefaultBytes(-1, "downloading")
		})
	}
	for event := range events.Receive() {
		switch e := event.(type) {
		case session.JobAdded:
			state := e.Job().State()
			logger.Infof("[%s] added %s", shortID(state.ID), state.Source)
		case session.JobUpdated:
			logStateDiff(e.OldState, e.NewState)
			old, cur := e.OldState, e.NewState
			if old.Status != cur.Status {
				logStatus(cur)
			}
			if old.Phase != cur.Phase && cur.Phase != "" {
				logger.Infof("[%s] %s", shortID(cur.ID), cur.Phase)
			}
			if view != nil {
				view.update(cur)
			}
		case session.JobFinished:
			if view != nil {
				view.finish()
			}
		}
	}
}

// progressView draws a progress bar while a job is streaming directly. If the bar can't be drawn, it gives up on
// bars for good.
type progressView struct {
	newBar   func() *progressbar.ProgressBar
	bar      *progressbar.ProgressBar
	disabled bool
}

func newProgressView(newBar func() *progressbar.ProgressBar) *progressView {
	return &progressView{newBar: newBar}
}

func (v *progressView) update(state session.JobState) {
	if v.disabled {
		return
	}
	streaming := state.Phase == dispatch.StateDirectStreaming.String()
	switch {
	case streaming && v.bar == nil:
		v.bar = v.newBar()
	case !streaming && v.bar != nil:
		v.finish()
	}
	if v.bar == nil {
		return
	}
	if state.Expected >= 0 && v.bar.GetMax() != int(state.Expected) {
		v.bar.ChangeMax(int(state.Expected))
	}
	if err := v.bar.Set(int(state.Downloaded)); err != nil {
		zap.S().Warnf("failed to draw progress bar, disabling it: %v", err)
		v.bar = nil
		v.disabled = true
	}
}

func (v *progressView) finish() {
	if v.bar != nil {
		_ = v.bar.Finish()
		v.bar = nil
	}
}

func logStatus(state session.JobState) {
	logger := zap.S()
	id := shortID(state.ID)
	switch state.Status {
	case session.JobStatusResolved:
		logger.Infof("[%s] found %s locator %s (via %s)", id, state.Kind, state.Locator, state.Strategy)
	case session.JobStatusComplete:
		if state.Downloaded > 0 {
			logger.Infof("[%s] saved %s to %s", id, humanize.Bytes(uint64(state.Downloaded)), state.Path)
		} else {
			logger.Infof("[%s] saved to %s", id, state.Path)
		}
	case session.JobStatusFailed:
		logger.Errorf("[%s] failed: %s", id, state.Error)
	case session.JobStatusCancelled:
		logger.Warnf("[%s] cancelled: %s", id, state.Error)
	default:
		logger.Infof("[%s] %s", id, state.Status)
	}
}

func logStateDiff(old session.JobState, cur session.JobState) {
	logger := zap.S()
	if !logger.Desugar().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	changes, err := diff.Diff(old, cur)
	if err != nil {
		logger.Errorf("failed to diff old and new job state: %v", err)
		return
	}
	for _, change := range changes {
		logger.Debugf("[%s] %v: %#v -> %#v", shortID(cur.ID), strings.Join(change.Path, "."), change.From, change.To)
	}
}

func shortID(id session.JobID) string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

func resolveVideos(c *cli.Context) error {
	comp, err := newComponents(c)
	if err != nil {
		return err
	}
	sources := c.Args().Slice()
	if len(sources) == 0 {
		return errors.New("no URL given")
	}
	var result *multierror.Error
	for _, source := range sources {
		locator, err := comp.pipeline.Resolve(c.Context, source)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", source, err))
			continue
		}
		fmt.Printf("%s\t%s\t%s\n", locator.URL, locator.Kind, locator.Strategy)
	}
	return result.ErrorOrNil()
}

func showCookies(c *cli.Context) error {
	cfg, err := video_fetcher.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	locator := cookies.NewLocator(cfg.Cookies, c.String("cookies"))
	store, ok := locator.Locate().Get()
	if !ok {
		fmt.Println("No cookie store found. Looked in:")
		for _, path := range locator.Candidates() {
			fmt.Printf("  %s\n", path)
		}
		return nil
	}

	info, err := os.Stat(store.Path)
	if err != nil {
		return fmt.Errorf("failed to read cookie store: %w", err)
	}
	entries, err := store.Cookies(cfg.Cookies.Domain)
	if err != nil {
		return err
	}
	expired := 0
	now := time.Now()
	for _, entry := range entries {
		if !entry.Expires.IsZero() && entry.Expires.Before(now) {
			expired++
		}
	}

	fmt.Printf("Cookie store: %s (%s, modified %s)\n",
		store.Path, humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()))
	if !store.Verified {
		fmt.Println("Warning: file does not start with a Netscape cookie file header")
	}
	fmt.Printf("%d entries for %s, %d expired\n", len(entries), cfg.Cookies.Domain, expired)
	return nil
}
