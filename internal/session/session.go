// Package session runs any number of Jobs concurrently, publishing an Event for every change.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alanbriolat/video-fetcher"
	"github.com/alanbriolat/video-fetcher/dispatch"
	"github.com/alanbriolat/video-fetcher/internal/pubsub"
	"github.com/alanbriolat/video-fetcher/internal/sync_"
)

var ErrSessionClosed = errors.New("session closed")

// Resolver is satisfied by resolve.Pipeline.
type Resolver interface {
	Resolve(ctx context.Context, source string) (video_fetcher.Locator, error)
}

// Runner is satisfied by dispatch.Dispatcher.
type Runner interface {
	Run(ctx context.Context, job video_fetcher.Job) (*dispatch.Result, error)
}

type Config struct {
	Destination    string
	Quality        video_fetcher.Quality
	CookieOverride string
	// Timeout applies to each Job separately; zero means none.
	Timeout time.Duration
	// Minimum interval between JobUpdated events from progress updates.
	ProgressUpdateInterval time.Duration
}

var DefaultConfig = Config{
	Destination:            ".",
	Quality:                video_fetcher.QualityBest,
	ProgressUpdateInterval: 200 * time.Millisecond,
}

type jobsByID = map[JobID]*Job

type Session struct {
	config    Config
	resolver  Resolver
	runner    Runner
	ctx       context.Context
	ctxCancel context.CancelFunc
	log       *zap.SugaredLogger

	mu      sync.Mutex
	closed  bool
	jobs    *sync_.RWMutexed[jobsByID]
	running sync.WaitGroup
	events  pubsub.Publisher[Event]
}

func New(ctx context.Context, config Config, resolver Resolver, runner Runner) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		config:    config,
		resolver:  resolver,
		runner:    runner,
		ctx:       ctx,
		ctxCancel: cancel,
		log:       zap.S().Named("session"),
		jobs:      sync_.NewRWMutexed(make(jobsByID)),
		events:    pubsub.NewPublisher[Event](),
	}
}

// Subscribe to all events. Subscribe before adding Jobs to be sure of seeing every event.
func (s *Session) Subscribe() (pubsub.ReceiverCloser[Event], error) {
	return s.events.Subscribe()
}

// SubscribeJob subscribes to the events of one Job.
func (s *Session) SubscribeJob(id JobID) (pubsub.ReceiverCloser[Event], error) {
	return s.events.SubscribeFunc(pubsub.DefaultSubscriberBufSize, func(e Event) bool {
		return e.Job().ID() == id
	})
}

// Add starts a Job for source.
func (s *Session) Add(source string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	j := newJob(s, source)
	s.jobs.Update(func(jobs *jobsByID) {
		(*jobs)[j.ID()] = j
	})
	s.log.Debugf("job added: %v", j)
	s.events.Send(JobAdded{jobEvent{j}})
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		j.run()
	}()
	return j, nil
}

// ObserveState records a dispatcher state change against its Job. Pass it to dispatch.WithStateObserver.
func (s *Session) ObserveState(job video_fetcher.Job, _ dispatch.State, to dispatch.State) {
	if j := s.Get(JobID(job.ID)); j != nil {
		j.updateState(func(state *JobState) { state.Phase = to.String() })
	}
}

func (s *Session) Get(id JobID) (j *Job) {
	_ = s.jobs.RLocked(func(jobs jobsByID) error {
		j = jobs[id]
		return nil
	})
	return j
}

// List returns every Job, oldest first.
func (s *Session) List() []*Job {
	var list []*Job
	_ = s.jobs.RLocked(func(jobs jobsByID) error {
		list = make([]*Job, 0, len(jobs))
		for _, j := range jobs {
			list = append(list, j)
		}
		return nil
	})
	sortJobs(list)
	return list
}

// Wait blocks until every Job added so far has finished.
func (s *Session) Wait() {
	s.running.Wait()
}

// Close cancels any unfinished Jobs, waits for them, and then closes all subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.ctxCancel()
	s.running.Wait()
	s.events.Close()
}

func sortJobs(jobs []*Job) {
	states := make(map[*Job]JobState, len(jobs))
	for _, j := range jobs {
		states[j] = j.State()
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		return states[jobs[a]].AddedAt.Before(states[jobs[b]].AddedAt)
	})
}
