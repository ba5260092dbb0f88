package jobdb

import (
	"encoding/json"
	"time"
)

// Mode selects the simulated workload a job executes.
// Values other than the ones below are accepted and run no workload.
type Mode string

const (
	ModeCpu   Mode = "cpu"
	ModeIo    Mode = "io"
	ModeMixed Mode = "mixed"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusQueued, StatusProcessing, StatusDone, StatusFailed}

// IsTerminal returns true for done and failed.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Result is set once a job reaches a terminal state.
// Ok is set for done jobs and Error for failed ones.
type Result struct {
	Ok    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

// Job is a single unit of submitted work and its lifecycle state.
// Jobs handed out by the JobDb are copies; a Job stored in the JobDb is never modified in place.
type Job struct {
	Id     string
	Mode   Mode
	Status Status
	// Position of the job in submission order, starting at 1.
	Sequence   uint64
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Result     *Result
}

// NewQueuedJob returns a job in its initial state.
func NewQueuedJob(id string, mode Mode, sequence uint64, createdAt time.Time) *Job {
	return &Job{
		Id:        id,
		Mode:      mode,
		Status:    StatusQueued,
		Sequence:  sequence,
		CreatedAt: createdAt,
	}
}

func (job *Job) InTerminalState() bool {
	return job.Status.IsTerminal()
}

// DeepCopy is needed because jobs stored in the JobDb cannot be modified in place.
func (job *Job) DeepCopy() *Job {
	if job == nil {
		return nil
	}
	c := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		c.StartedAt = &t
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		c.FinishedAt = &t
	}
	if job.Result != nil {
		r := *job.Result
		c.Result = &r
	}
	return &c
}

type jobJson struct {
	Id         string  `json:"id"`
	Mode       Mode    `json:"mode"`
	Status     Status  `json:"status"`
	CreatedAt  int64   `json:"createdAt"`
	StartedAt  *int64  `json:"startedAt,omitempty"`
	FinishedAt *int64  `json:"finishedAt,omitempty"`
	Result     *Result `json:"result,omitempty"`
}

// MarshalJSON renders timestamps as epoch milliseconds and omits the ones not yet set.
func (job *Job) MarshalJSON() ([]byte, error) {
	return json.Marshal(jobJson{
		Id:         job.Id,
		Mode:       job.Mode,
		Status:     job.Status,
		CreatedAt:  job.CreatedAt.UnixMilli(),
		StartedAt:  millisOrNil(job.StartedAt),
		FinishedAt: millisOrNil(job.FinishedAt),
		Result:     job.Result,
	})
}

func (job *Job) UnmarshalJSON(data []byte) error {
	var j jobJson
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*job = Job{
		Id:         j.Id,
		Mode:       j.Mode,
		Status:     j.Status,
		CreatedAt:  time.UnixMilli(j.CreatedAt),
		StartedAt:  timeOrNil(j.StartedAt),
		FinishedAt: timeOrNil(j.FinishedAt),
		Result:     j.Result,
	}
	return nil
}

func millisOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func timeOrNil(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}
