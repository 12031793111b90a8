package session

type Event interface {
	// The Job this event relates to.
	Job() *Job
}

type jobEvent struct {
	job *Job
}

func (e jobEvent) Job() *Job {
	return e.job
}

type JobAdded struct {
	jobEvent
}

type JobUpdated struct {
	jobEvent
	OldState JobState
	NewState JobState
}

// JobFinished is the last event of every Job. Err is nil if it completed.
type JobFinished struct {
	jobEvent
	Err error
}
