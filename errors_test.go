package video_fetcher

import (
	"errors"
	"fmt"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestStageError(t *testing.T) {
	assert := assert_.New(t)
	assert.Nil(AtStage(StageFetch, nil))

	err := fmt.Errorf("resolving: %w", AtStage(StageExtraction, ErrNoLocatorFound))
	assert.ErrorIs(err, ErrNoLocatorFound)
	stage, ok := StageOf(err)
	assert.True(ok)
	assert.Equal(StageExtraction, stage)
	assert.Equal("resolving: extraction failed: no video locator found", err.Error())

	_, ok = StageOf(errors.New("plain"))
	assert.False(ok)
}

func TestNetworkError(t *testing.T) {
	assert := assert_.New(t)
	withStatus := &NetworkError{URL: "https://example.com/a", StatusCode: 404}
	assert.Equal("request to https://example.com/a failed with HTTP 404", withStatus.Error())

	cause := errors.New("connection refused")
	transport := &NetworkError{URL: "https://example.com/a", Err: cause}
	assert.Equal("request to https://example.com/a failed: connection refused", transport.Error())
	assert.ErrorIs(transport, cause)
}

func TestDownloadFailedError(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("download failed: no attempts made", (&DownloadFailedError{}).Error())

	netErr := &NetworkError{URL: "https://example.com/clip.mp4", StatusCode: 403}
	err := &DownloadFailedError{Attempts: []Attempt{
		{Method: MethodDelegated, Quality: QualityBest, Credential: "/tmp/cookies.txt", Err: errors.New("exit status 1")},
		{Method: MethodBrowser, Quality: QualityBest, Credential: "browser:chrome", Err: netErr},
	}}
	assert.Contains(err.Error(), "after 2 attempt(s)")
	assert.Contains(err.Error(), "#1 delegated (best, cookies=/tmp/cookies.txt): exit status 1")
	assert.Contains(err.Error(), "#2 browser-cookies (best, cookies=browser:chrome)")
	assert.False(err.Cancelled())
	assert.False(IsCancelled(err))

	var target *NetworkError
	if assert.ErrorAs(err, &target) {
		assert.Equal(403, target.StatusCode)
	}

	err.Attempts = append(err.Attempts, Attempt{Method: MethodDirect, Err: fmt.Errorf("%w: %w", ErrCancelled, errors.New("context canceled"))})
	assert.True(err.Cancelled())
	assert.True(IsCancelled(fmt.Errorf("job: %w", err)))
}

func TestErrOverwriteDeclined(t *testing.T) {
	assert := assert_.New(t)
	assert.True(IsCancelled(ErrOverwriteDeclined))
	assert.False(IsCancelled(ErrNoLocatorFound))
}

func TestAttempt(t *testing.T) {
	assert := assert_.New(t)
	a := Attempt{Method: MethodDirect, Quality: QualityAudio}
	assert.True(a.Succeeded())
	assert.Equal("direct (audio)", a.String())
}
