package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alanbriolat/video-fetcher"
	"github.com/alanbriolat/video-fetcher/dispatch"
	"github.com/alanbriolat/video-fetcher/generic"
	"github.com/alanbriolat/video-fetcher/internal/sync_"
)

type JobID string

func NewJobID() JobID {
	return JobID(generic.Unwrap(uuid.NewRandom()).String())
}

type JobStatus string

const (
	JobStatusNew         JobStatus = "new"
	JobStatusResolving   JobStatus = "resolving"
	JobStatusResolved    JobStatus = "resolved"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusComplete    JobStatus = "complete"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

var terminalStatuses = generic.NewSet(JobStatusComplete, JobStatusFailed, JobStatusCancelled)

// IsTerminal returns true if the Job has finished, one way or another.
func (s JobStatus) IsTerminal() bool {
	return terminalStatuses.Contains(s)
}

// JobState is a snapshot of a Job. It only holds plain values, so snapshots can be compared and diffed.
type JobState struct {
	ID       JobID
	Source   string
	AddedAt  time.Time
	Status   JobStatus
	Quality  string
	Locator  string
	Kind     string
	Strategy string
	// Phase is the download dispatcher's current state.
	Phase      string
	Downloaded int64
	Expected   int64
	Path       string
	Error      string
}

// A Job is one source URL on its way to a file on disk.
type Job struct {
	session *Session
	ctx     context.Context
	cancel  context.CancelFunc
	state   *sync_.RWMutexed[JobState]
	done    sync_.Event
	// Written once, before done is set
	result *dispatch.Result
	err    error

	lastProgress time.Time
}

func newJob(s *Session, source string) *Job {
	ctx, cancel := context.WithCancel(s.ctx)
	return &Job{
		session: s,
		ctx:     ctx,
		cancel:  cancel,
		state: sync_.NewRWMutexed(JobState{
			ID:       NewJobID(),
			Source:   source,
			AddedAt:  time.Now(),
			Status:   JobStatusNew,
			Quality:  s.config.Quality.String(),
			Expected: -1,
		}),
	}
}

func (j *Job) ID() JobID {
	return j.State().ID
}

func (j *Job) State() JobState {
	return j.state.Get()
}

func (j *Job) String() string {
	state := j.State()
	return fmt.Sprintf("Job{ID:%q, Source:%q, Status:%q}", state.ID, state.Source, state.Status)
}

// Done is closed once the Job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done.Wait()
}

// Result returns the outcome of a finished Job. It must only be called after Done is closed.
func (j *Job) Result() (*dispatch.Result, error) {
	if !j.done.IsSet() {
		panic("Job.Result() called before Job finished")
	}
	return j.result, j.err
}

// Cancel stops the Job, which then finishes as cancelled.
func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) log() *zap.SugaredLogger {
	return zap.S().Named("job").With("job_id", j.ID())
}

func (j *Job) run() {
	defer j.cancel()
	ctx := j.ctx
	if j.session.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.session.config.Timeout)
		defer cancel()
	}
	ctx = video_fetcher.WithLogger(ctx, j.log().Desugar())

	j.updateState(func(s *JobState) { s.Status = JobStatusResolving })
	locator, err := j.session.resolver.Resolve(ctx, j.State().Source)
	if err != nil {
		j.finish(nil, err)
		return
	}
	j.updateState(func(s *JobState) {
		s.Status = JobStatusResolved
		s.Locator = locator.URL
		s.Kind = locator.Kind.String()
		s.Strategy = locator.Strategy
	})

	j.updateState(func(s *JobState) { s.Status = JobStatusDownloading })
	result, err := j.session.runner.Run(ctx, video_fetcher.Job{
		ID:             string(j.ID()),
		Locator:        locator,
		Destination:    j.session.config.Destination,
		Quality:        j.session.config.Quality,
		CookieOverride: j.session.config.CookieOverride,
		Progress:       j.progress,
	})
	j.finish(result, err)
}

func (j *Job) finish(result *dispatch.Result, err error) {
	j.result, j.err = result, err
	j.updateState(func(s *JobState) {
		switch {
		case err == nil:
			s.Status = JobStatusComplete
			s.Path = result.Path
		case video_fetcher.IsCancelled(err) || j.ctx.Err() != nil:
			s.Status = JobStatusCancelled
			s.Error = err.Error()
		default:
			s.Status = JobStatusFailed
			s.Error = err.Error()
		}
	})
	j.done.Set()
	j.session.events.Send(JobFinished{jobEvent{j}, err})
}

// progress is called from the dispatcher, and rate limits JobUpdated events.
func (j *Job) progress(downloaded int64, expected int64) {
	now := time.Now()
	final := expected >= 0 && downloaded >= expected
	if !final && now.Sub(j.lastProgress) < j.session.config.ProgressUpdateInterval {
		j.state.Update(func(s *JobState) {
			s.Downloaded, s.Expected = downloaded, expected
		})
		return
	}
	j.lastProgress = now
	j.updateState(func(s *JobState) {
		s.Downloaded, s.Expected = downloaded, expected
	})
}

func (j *Job) updateState(f func(s *JobState)) {
	var old, updated JobState
	j.state.Update(func(s *JobState) {
		old = *s
		f(s)
		updated = *s
	})
	if updated != old {
		j.session.events.Send(JobUpdated{jobEvent{j}, old, updated})
	}
}
