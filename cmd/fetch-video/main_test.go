package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/schollz/progressbar/v3"
	assert_ "github.com/stretchr/testify/assert"

	"github.com/alanbriolat/video-fetcher"
	"github.com/alanbriolat/video-fetcher/dispatch"
	"github.com/alanbriolat/video-fetcher/internal/session"
)

func TestExitCode(t *testing.T) {
	assert := assert_.New(t)
	failed := &video_fetcher.DownloadFailedError{Attempts: []video_fetcher.Attempt{
		{Method: video_fetcher.MethodDirect, Err: errors.New("boom")},
	}}
	cancelled := &video_fetcher.DownloadFailedError{Attempts: []video_fetcher.Attempt{
		{Method: video_fetcher.MethodDelegated, Err: video_fetcher.ErrCancelled},
	}}

	assert.Equal(0, exitCode(nil))
	assert.Equal(exitFailure, exitCode(failed))
	assert.Equal(exitCancelled, exitCode(cancelled))
	assert.Equal(exitCancelled, exitCode(video_fetcher.ErrOverwriteDeclined))
	assert.Equal(exitCancelled, exitCode(fmt.Errorf("no URL given: %w", context.Canceled)))
	assert.Equal(exitCancelled, exitCode(multierror.Append(nil, cancelled, video_fetcher.ErrCancelled)))
	assert.Equal(exitFailure, exitCode(multierror.Append(nil, cancelled, failed)))
}

func TestShortID(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("0123abcd", shortID(session.JobID("0123abcd-4567-89ef")))
	assert.Equal("abc", shortID(session.JobID("abc")))
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("stdout closed")
}

func TestProgressView_BrokenOutput(t *testing.T) {
	assert := assert_.New(t)
	bars := 0
	view := newProgressView(func() *progressbar.ProgressBar {
		bars++
		return progressbar.NewOptions(-1, progressbar.OptionSetWriter(brokenWriter{}))
	})
	state := session.JobState{Phase: dispatch.StateDirectStreaming.String(), Expected: 100, Downloaded: 50}

	assert.NotPanics(func() { view.update(state) })
	assert.Equal(1, bars)
	assert.Nil(view.bar)

	// No new bar once drawing has failed
	state.Downloaded = 100
	assert.NotPanics(func() { view.update(state) })
	assert.Equal(1, bars)
	assert.NotPanics(view.finish)
}

func TestProgressView_Lifecycle(t *testing.T) {
	assert := assert_.New(t)
	bars := 0
	view := newProgressView(func() *progressbar.ProgressBar {
		bars++
		return progressbar.NewOptions(-1, progressbar.OptionSetWriter(io.Discard))
	})

	view.update(session.JobState{Phase: dispatch.StateDelegatedFetch.String()})
	assert.Nil(view.bar)
	view.update(session.JobState{Phase: dispatch.StateDirectStreaming.String(), Expected: 100, Downloaded: 10})
	if assert.NotNil(view.bar) {
		assert.Equal(100, view.bar.GetMax())
	}
	view.update(session.JobState{Phase: dispatch.StateDone.String(), Expected: 100, Downloaded: 100})
	assert.Nil(view.bar)
	assert.Equal(1, bars)
}
