package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/jobrunner/internal/common/apierrors"
	"github.com/G-Research/jobrunner/internal/common/logging"
	"github.com/G-Research/jobrunner/internal/common/util"
	"github.com/G-Research/jobrunner/internal/jobrunner/jobdb"
	"github.com/G-Research/jobrunner/internal/jobrunner/workload"
)

// ErrAlreadyRunning is returned by Run if the execution loop of the engine is already active.
var ErrAlreadyRunning = errors.New("execution loop is already running")

type SubmitRequest struct {
	Mode jobdb.Mode `json:"mode,omitempty"`
}

type SubmitResponse struct {
	Accepted bool         `json:"accepted"`
	JobId    string       `json:"jobId"`
	Mode     jobdb.Mode   `json:"mode"`
	Status   jobdb.Status `json:"status"`
}

// Stats holds the number of jobs in each status.
type Stats struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
}

// Engine executes submitted jobs one at a time in submission order.
//
// Submit and Status may be called from any goroutine. Run is the single consumer of the work queue
// and the only writer of jobs after they have been created.
type Engine struct {
	defaultMode jobdb.Mode
	jobDb       *jobdb.JobDb
	queue       *workQueue
	simulator   workload.Simulator
	clock       util.Clock
	metrics     *Metrics
	newId       func() string

	// Serialises id generation, insertion and enqueueing so that queue order matches Sequence.
	submitMu sync.Mutex
	sequence uint64

	running atomic.Bool
	log     *log.Entry
}

func New(
	defaultMode jobdb.Mode,
	jobDb *jobdb.JobDb,
	simulator workload.Simulator,
	clock util.Clock,
	metrics *Metrics,
) *Engine {
	return &Engine{
		defaultMode: defaultMode,
		jobDb:       jobDb,
		queue:       newWorkQueue(),
		simulator:   simulator,
		clock:       clock,
		metrics:     metrics,
		newId:       util.NewULID,
		log:         log.WithField("service", "Engine"),
	}
}

// Submit records a new queued job and appends it to the work queue.
// It returns as soon as the job is queued, regardless of how much work is ahead of it.
func (e *Engine) Submit(req SubmitRequest) (*SubmitResponse, error) {
	mode := req.Mode
	if mode == "" {
		mode = e.defaultMode
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	job := jobdb.NewQueuedJob(e.newId(), mode, e.sequence+1, e.clock.Now())
	if err := e.jobDb.Insert(job); err != nil {
		var alreadyExists *apierrors.ErrAlreadyExists
		if errors.As(err, &alreadyExists) {
			// Ids are unique by construction, so this can only be a bug.
			logging.WithStacktrace(e.log, err).Error("generated a job id that is already in use")
			panic(err)
		}
		return nil, errors.WithMessage(err, "error storing job")
	}
	e.sequence++
	e.queue.Push(job.Id)
	e.metrics.recordSubmitted(e.queue.Len())
	e.log.WithField("jobId", job.Id).WithField("mode", job.Mode).Debug("job queued")

	return &SubmitResponse{
		Accepted: true,
		JobId:    job.Id,
		Mode:     job.Mode,
		Status:   job.Status,
	}, nil
}

// Status returns a snapshot of the job with the given id, or an *apierrors.ErrNotFound.
func (e *Engine) Status(id string) (*jobdb.Job, error) {
	return e.jobDb.GetById(id)
}

// List returns snapshots of all jobs in submission order.
func (e *Engine) List() ([]*jobdb.Job, error) {
	return e.jobDb.GetAll()
}

func (e *Engine) Stats() (Stats, error) {
	counts, err := e.jobDb.CountByStatus()
	if err != nil {
		return Stats{}, err
	}
	return statsFromCounts(counts), nil
}

func statsFromCounts(counts map[jobdb.Status]int) Stats {
	return Stats{
		Total:      counts[jobdb.StatusQueued] + counts[jobdb.StatusProcessing] + counts[jobdb.StatusDone] + counts[jobdb.StatusFailed],
		Queued:     counts[jobdb.StatusQueued],
		Processing: counts[jobdb.StatusProcessing],
		Done:       counts[jobdb.StatusDone],
		Failed:     counts[jobdb.StatusFailed],
	}
}

// QueueDepth returns the number of jobs waiting to start.
func (e *Engine) QueueDepth() int {
	return e.queue.Len()
}

// LogStats logs the number of jobs in each status and publishes the counts as metrics.
func (e *Engine) LogStats() {
	counts, err := e.jobDb.CountByStatus()
	if err != nil {
		logging.WithStacktrace(e.log, err).Warn("error counting jobs")
		return
	}
	e.metrics.recordCounts(counts, e.queue.Len())
	stats := statsFromCounts(counts)
	e.log.WithFields(log.Fields{
		"total":      stats.Total,
		"queued":     stats.Queued,
		"processing": stats.Processing,
		"done":       stats.Done,
		"failed":     stats.Failed,
	}).Info("worker stats")
}

// Run executes queued jobs until ctx is cancelled. It blocks while the queue is empty.
// A job that has started always runs to completion, so Run returns only after the job in flight
// (if any) has finished. Jobs still queued at that point remain queued.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.WithStack(ErrAlreadyRunning)
	}
	defer e.running.Store(false)

	e.log.Info("execution loop started")
	defer e.log.Info("execution loop stopped")
	for ctx.Err() == nil {
		id, err := e.queue.Pop(ctx)
		if err != nil {
			break
		}
		e.runJob(id)
	}
	return nil
}

// Check implements health.Checker; the engine is healthy while its execution loop is running.
func (e *Engine) Check() error {
	if !e.running.Load() {
		return errors.New("execution loop is not running")
	}
	return nil
}

func (e *Engine) runJob(id string) {
	logger := e.log.WithField("jobId", id)

	job, err := e.jobDb.Transition(id, func(job *jobdb.Job) (*jobdb.Job, error) {
		return job.WithProcessing(e.clock.Now())
	})
	if err != nil {
		logging.WithStacktrace(logger, err).Error("could not start job")
		return
	}
	e.metrics.recordStarted(job, e.queue.Len())
	logger = logger.WithField("mode", job.Mode)
	logger.Debug("job started")

	workErr := e.execute(job.Mode)

	job, err = e.jobDb.Transition(id, func(job *jobdb.Job) (*jobdb.Job, error) {
		if workErr != nil {
			return job.WithFailed(e.clock.Now(), workErr.Error())
		}
		return job.WithDone(e.clock.Now())
	})
	if err != nil {
		logging.WithStacktrace(logger, err).Error("could not finish job")
		return
	}
	e.metrics.recordFinished(job)
	if workErr != nil {
		logger.WithError(workErr).Info("job failed")
	} else {
		logger.Debug("job done")
	}
}

// execute runs the simulator for one job, turning a panic into an error.
func (e *Engine) execute(mode jobdb.Mode) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("workload panicked: %v", r)
		}
	}()
	return e.simulator.Execute(mode)
}
