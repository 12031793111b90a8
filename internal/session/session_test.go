package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/alanbriolat/video-fetcher"
	"github.com/alanbriolat/video-fetcher/dispatch"
	"github.com/alanbriolat/video-fetcher/internal/pubsub"
)

type fakeResolver struct {
	err error
}

func (f fakeResolver) Resolve(ctx context.Context, source string) (video_fetcher.Locator, error) {
	if f.err != nil {
		return video_fetcher.Locator{}, f.err
	}
	return video_fetcher.Locator{URL: source + "/clip.mp4", Kind: video_fetcher.KindDirectMedia, Strategy: "video-tag"}, nil
}

type runnerFunc func(ctx context.Context, job video_fetcher.Job) (*dispatch.Result, error)

func (f runnerFunc) Run(ctx context.Context, job video_fetcher.Job) (*dispatch.Result, error) {
	return f(ctx, job)
}

func succeed(ctx context.Context, job video_fetcher.Job) (*dispatch.Result, error) {
	job.Progress(0, 100)
	job.Progress(50, 100)
	job.Progress(100, 100)
	return &dispatch.Result{Method: video_fetcher.MethodDirect, Path: job.Destination + "/clip.mp4"}, nil
}

func waitForCancel(ctx context.Context, job video_fetcher.Job) (*dispatch.Result, error) {
	<-ctx.Done()
	return nil, &video_fetcher.DownloadFailedError{Attempts: []video_fetcher.Attempt{
		{Method: video_fetcher.MethodDirect, Err: video_fetcher.ErrCancelled},
	}}
}

// collect gathers events until the subscription is closed.
func collect(sub pubsub.ReceiverCloser[Event]) <-chan []Event {
	result := make(chan []Event, 1)
	go func() {
		var events []Event
		for e := range sub.Receive() {
			events = append(events, e)
		}
		result <- events
	}()
	return result
}

func statuses(events []Event) []JobStatus {
	var result []JobStatus
	for _, e := range events {
		if u, ok := e.(JobUpdated); ok && u.OldState.Status != u.NewState.Status {
			result = append(result, u.NewState.Status)
		}
	}
	return result
}

func newSession(resolver Resolver, runner Runner) *Session {
	config := DefaultConfig
	config.Destination = "/videos"
	return New(context.Background(), config, resolver, runner)
}

func TestSession_Add(t *testing.T) {
	assert := assert_.New(t)
	s := newSession(fakeResolver{}, runnerFunc(succeed))
	sub, err := s.Subscribe()
	assert.Nil(err)
	events := collect(sub)

	j, err := s.Add("https://example.com/post")
	assert.Nil(err)
	<-j.Done()
	s.Close()

	result, err := j.Result()
	assert.Nil(err)
	assert.Equal(video_fetcher.MethodDirect, result.Method)
	state := j.State()
	assert.Equal(JobStatusComplete, state.Status)
	assert.Equal("/videos/clip.mp4", state.Path)
	assert.Equal("https://example.com/post/clip.mp4", state.Locator)
	assert.Equal("direct-media", state.Kind)
	assert.Equal("video-tag", state.Strategy)
	assert.Equal(int64(100), state.Downloaded)
	assert.Equal(int64(100), state.Expected)
	assert.True(state.Status.IsTerminal())

	all := <-events
	if assert.NotEmpty(all) {
		_, ok := all[0].(JobAdded)
		assert.True(ok)
		finished, ok := all[len(all)-1].(JobFinished)
		assert.True(ok)
		assert.Nil(finished.Err)
		assert.Equal(j, finished.Job())
	}
	assert.Equal([]JobStatus{JobStatusResolving, JobStatusResolved, JobStatusDownloading, JobStatusComplete}, statuses(all))
	assert.Equal([]*Job{j}, s.List())
	assert.Equal(j, s.Get(j.ID()))
}

func TestSession_Failed(t *testing.T) {
	assert := assert_.New(t)
	resolveErr := video_fetcher.AtStage(video_fetcher.StageExtraction, video_fetcher.ErrNoLocatorFound)
	s := newSession(fakeResolver{err: resolveErr}, runnerFunc(succeed))
	defer s.Close()

	j, err := s.Add("https://example.com/empty")
	assert.Nil(err)
	<-j.Done()
	_, err = j.Result()
	assert.ErrorIs(err, video_fetcher.ErrNoLocatorFound)
	assert.Equal(JobStatusFailed, j.State().Status)
	assert.Contains(j.State().Error, "no video locator found")
}

func TestSession_Cancel(t *testing.T) {
	assert := assert_.New(t)
	s := newSession(fakeResolver{}, runnerFunc(waitForCancel))
	defer s.Close()

	j, err := s.Add("https://example.com/post")
	assert.Nil(err)
	j.Cancel()
	<-j.Done()
	assert.Equal(JobStatusCancelled, j.State().Status)
	_, err = j.Result()
	assert.True(video_fetcher.IsCancelled(err))
}

func TestSession_Timeout(t *testing.T) {
	assert := assert_.New(t)
	config := DefaultConfig
	config.Timeout = 20 * time.Millisecond
	s := New(context.Background(), config, fakeResolver{}, runnerFunc(waitForCancel))
	defer s.Close()

	j, err := s.Add("https://example.com/post")
	assert.Nil(err)
	select {
	case <-j.Done():
	case <-time.After(5 * time.Second):
		assert.FailNow("job should have timed out")
	}
	assert.Equal(JobStatusCancelled, j.State().Status)
}

func TestSession_Concurrent(t *testing.T) {
	assert := assert_.New(t)
	const n = 5
	var inFlight int32
	allRunning := make(chan struct{})
	var once sync.Once
	runner := runnerFunc(func(ctx context.Context, job video_fetcher.Job) (*dispatch.Result, error) {
		if atomic.AddInt32(&inFlight, 1) == n {
			once.Do(func() { close(allRunning) })
		}
		// Every job waits for all the others, which only works if they really run in parallel
		select {
		case <-allRunning:
			return &dispatch.Result{Method: video_fetcher.MethodDelegated}, nil
		case <-time.After(5 * time.Second):
			return nil, errors.New("jobs did not run concurrently")
		}
	})
	s := newSession(fakeResolver{}, runner)
	defer s.Close()

	for i := 0; i < n; i++ {
		_, err := s.Add("https://example.com/post")
		assert.Nil(err)
	}
	s.Wait()
	for _, j := range s.List() {
		assert.Equal(JobStatusComplete, j.State().Status)
	}
	assert.Len(s.List(), n)
}

func TestSession_Close(t *testing.T) {
	assert := assert_.New(t)
	s := newSession(fakeResolver{}, runnerFunc(waitForCancel))
	sub, err := s.Subscribe()
	assert.Nil(err)
	events := collect(sub)

	j, err := s.Add("https://example.com/post")
	assert.Nil(err)
	s.Close()
	// Close waited for the job
	assert.True(j.State().Status.IsTerminal())
	assert.Equal(JobStatusCancelled, j.State().Status)
	<-events

	_, err = s.Add("https://example.com/other")
	assert.ErrorIs(err, ErrSessionClosed)
	s.Close()
}

func TestSession_SubscribeJob_ObserveState(t *testing.T) {
	assert := assert_.New(t)
	var s *Session
	runner := runnerFunc(func(ctx context.Context, job video_fetcher.Job) (*dispatch.Result, error) {
		s.ObserveState(job, dispatch.StateIdle, dispatch.StateDelegatedFetch)
		s.ObserveState(job, dispatch.StateDelegatedFetch, dispatch.StateDone)
		return &dispatch.Result{Method: video_fetcher.MethodDelegated}, nil
	})
	s = newSession(fakeResolver{}, runner)

	start := make(chan struct{})
	blockingResolver := resolverFunc(func(ctx context.Context, source string) (video_fetcher.Locator, error) {
		<-start
		return fakeResolver{}.Resolve(ctx, source)
	})
	s.resolver = blockingResolver

	j1, _ := s.Add("https://example.com/one")
	j2, _ := s.Add("https://example.com/two")
	sub, err := s.SubscribeJob(j2.ID())
	assert.Nil(err)
	events := collect(sub)
	close(start)
	<-j1.Done()
	<-j2.Done()
	s.Close()

	var phases []string
	for _, e := range <-events {
		assert.Equal(j2, e.Job())
		if u, ok := e.(JobUpdated); ok && u.OldState.Phase != u.NewState.Phase {
			phases = append(phases, u.NewState.Phase)
		}
	}
	assert.Equal([]string{"delegated-fetch", "done"}, phases)
	assert.Equal("done", j1.State().Phase)
}

type resolverFunc func(ctx context.Context, source string) (video_fetcher.Locator, error)

func (f resolverFunc) Resolve(ctx context.Context, source string) (video_fetcher.Locator, error) {
	return f(ctx, source)
}
