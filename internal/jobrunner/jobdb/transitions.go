package jobdb

import (
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a lifecycle change is requested that the state machine
// queued -> processing -> {done, failed} does not allow.
type ErrInvalidTransition struct {
	JobId string
	From  Status
	To    Status
}

func (err *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("job %s cannot move from %s to %s", err.JobId, err.From, err.To)
}

// WithProcessing returns a copy of the job moved to processing with StartedAt stamped.
func (job *Job) WithProcessing(startedAt time.Time) (*Job, error) {
	if job.Status != StatusQueued {
		return nil, &ErrInvalidTransition{JobId: job.Id, From: job.Status, To: StatusProcessing}
	}
	c := job.DeepCopy()
	c.Status = StatusProcessing
	c.StartedAt = &startedAt
	return c, nil
}

// WithDone returns a copy of the job moved to done with FinishedAt stamped.
func (job *Job) WithDone(finishedAt time.Time) (*Job, error) {
	return job.finish(StatusDone, finishedAt, &Result{Ok: true})
}

// WithFailed returns a copy of the job moved to failed, recording reason in its result.
func (job *Job) WithFailed(finishedAt time.Time, reason string) (*Job, error) {
	return job.finish(StatusFailed, finishedAt, &Result{Error: reason})
}

func (job *Job) finish(to Status, finishedAt time.Time, result *Result) (*Job, error) {
	if job.Status != StatusProcessing {
		return nil, &ErrInvalidTransition{JobId: job.Id, From: job.Status, To: to}
	}
	c := job.DeepCopy()
	c.Status = to
	c.FinishedAt = &finishedAt
	c.Result = result
	return c, nil
}
