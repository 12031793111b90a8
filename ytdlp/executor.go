// Package ytdlp runs the external video-service download tool. Only its exit code and stderr are inspected.
package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/alanbriolat/video-fetcher"
)

var (
	ErrToolFailed   = errors.New("download tool failed")
	ErrToolNotFound = errors.New("download tool not found")
)

// An Invocation is one run of the tool. At most one of CookieFile and Browser should be set.
type Invocation struct {
	URL string
	// OutputTemplate is the full output path template, directory included.
	OutputTemplate string
	Quality        video_fetcher.Quality
	CookieFile     string
	Browser        string
}

type Result struct {
	// ExitCode is -1 if the tool never ran to completion.
	ExitCode int
	Stderr   string
}

// DefaultWaitDelay is how long Run waits for the tool's output to close once the tool has exited or been killed.
const DefaultWaitDelay = 2 * time.Second

type Executor struct {
	cfg       video_fetcher.ToolConfig
	stdout    io.Writer
	log       *zap.SugaredLogger
	waitDelay time.Duration
}

type Option func(*Executor)

// WithStdout passes the tool's standard output through to w, which is otherwise discarded.
func WithStdout(w io.Writer) Option {
	return func(e *Executor) {
		e.stdout = w
	}
}

func WithWaitDelay(d time.Duration) Option {
	return func(e *Executor) {
		e.waitDelay = d
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Executor) {
		e.log = log
	}
}

func NewExecutor(cfg video_fetcher.ToolConfig, opts ...Option) *Executor {
	e := &Executor{
		cfg:       cfg,
		stdout:    io.Discard,
		log:       zap.S().Named("ytdlp"),
		waitDelay: DefaultWaitDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath is the resolved tool path, or ErrToolNotFound.
func (e *Executor) BinaryPath() (string, error) {
	path, err := exec.LookPath(e.cfg.BinaryPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrToolNotFound, err)
	}
	return path, nil
}

// Args builds the tool's argument list for inv.
func (e *Executor) Args(inv Invocation) []string {
	var args []string
	if inv.CookieFile != "" {
		args = append(args, "--cookies", inv.CookieFile)
	} else if inv.Browser != "" {
		args = append(args, "--cookies-from-browser", inv.Browser)
	}
	args = append(args, "-f", inv.Quality.FormatSelector())
	if inv.Quality.IsAudio() {
		args = append(args, "-x", "--audio-format", e.cfg.AudioFormat)
	}
	output := inv.OutputTemplate
	if output == "" {
		output = e.cfg.OutputTemplate
	}
	args = append(args, "-o", output, "--no-playlist")
	if e.cfg.GeoBypass {
		args = append(args, "--geo-bypass")
	}
	if e.cfg.ExtractorRetries > 0 {
		args = append(args, "--extractor-retries", strconv.Itoa(e.cfg.ExtractorRetries))
	}
	args = append(args, e.cfg.ExtraArgs...)
	return append(args, inv.URL)
}

// Run invokes the tool and waits for it to exit. The error is nil only for exit code 0; a non-zero exit wraps
// ErrToolFailed, and cancellation wraps video_fetcher.ErrCancelled.
func (e *Executor) Run(ctx context.Context, inv Invocation) (Result, error) {
	result := Result{ExitCode: -1}
	args := e.Args(inv)
	e.log.Debugw("running tool", "binary", e.cfg.BinaryPath, "args", args)

	var stderr strings.Builder
	stderrLog := &zapio.Writer{Log: e.log.Desugar().With(zap.String("stream", "stderr")), Level: zap.DebugLevel}
	cmd := exec.CommandContext(ctx, e.cfg.BinaryPath, args...)
	cmd.Stdout = e.stdout
	cmd.Stderr = io.MultiWriter(&stderr, stderrLog)
	// Processes started by the tool (e.g. ffmpeg) survive it being killed and hold its output open
	cmd.WaitDelay = e.waitDelay
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return result, fmt.Errorf("%w: %v", ErrToolNotFound, err)
		}
		return result, fmt.Errorf("failed to start tool: %w", err)
	}
	err := cmd.Wait()
	_ = stderrLog.Close()
	result.Stderr = stderr.String()

	if ctx.Err() != nil {
		return result, fmt.Errorf("%w: %w", video_fetcher.ErrCancelled, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, fmt.Errorf("%w: exit code %d", ErrToolFailed, result.ExitCode)
	} else if err != nil {
		return result, fmt.Errorf("%w: %v", ErrToolFailed, err)
	}
	result.ExitCode = 0
	return result, nil
}

// MatchesAny reports whether stderr contains any of the signatures, ignoring case.
func (r Result) MatchesAny(signatures []string) bool {
	stderr := strings.ToLower(r.Stderr)
	for _, s := range signatures {
		if s != "" && strings.Contains(stderr, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
