package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/jobrunner/internal/common/apierrors"
	"github.com/G-Research/jobrunner/internal/common/util"
	"github.com/G-Research/jobrunner/internal/jobrunner/configuration"
	"github.com/G-Research/jobrunner/internal/jobrunner/jobdb"
	"github.com/G-Research/jobrunner/internal/jobrunner/workload"
)

const waitTimeout = 10 * time.Second

func newTestEngine(t *testing.T, simulator workload.Simulator) *Engine {
	t.Helper()
	db, err := jobdb.NewJobDb()
	require.NoError(t, err)
	return New(jobdb.ModeMixed, db, simulator, &util.DefaultClock{}, NewMetrics(prometheus.NewRegistry()))
}

// startEngine runs the execution loop in the background and returns a function that stops it and
// waits for Run to return.
func startEngine(t *testing.T, e *Engine) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	require.Eventually(t, func() bool { return e.Check() == nil }, waitTimeout, time.Millisecond)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			assert.NoError(t, <-done)
		})
	}
	t.Cleanup(stop)
	return stop
}

func submit(t *testing.T, e *Engine, mode jobdb.Mode) string {
	t.Helper()
	resp, err := e.Submit(SubmitRequest{Mode: mode})
	require.NoError(t, err)
	return resp.JobId
}

func waitForTerminal(t *testing.T, e *Engine, ids ...string) []*jobdb.Job {
	t.Helper()
	jobs := make([]*jobdb.Job, len(ids))
	for i, id := range ids {
		require.Eventually(t, func() bool {
			job, err := e.Status(id)
			if err != nil {
				return false
			}
			jobs[i] = job
			return job.InTerminalState()
		}, waitTimeout, time.Millisecond, "job %s did not finish", id)
	}
	return jobs
}

type blockingSimulator struct {
	started chan jobdb.Mode
	release chan struct{}
}

func newBlockingSimulator() *blockingSimulator {
	return &blockingSimulator{
		started: make(chan jobdb.Mode, 1000),
		release: make(chan struct{}),
	}
}

func (s *blockingSimulator) Execute(mode jobdb.Mode) error {
	select {
	case s.started <- mode:
	default:
	}
	<-s.release
	return nil
}

func (s *blockingSimulator) waitForStart(t *testing.T) jobdb.Mode {
	t.Helper()
	select {
	case mode := <-s.started:
		return mode
	case <-time.After(waitTimeout):
		t.Fatal("simulator was never started")
		return ""
	}
}

func succeed(jobdb.Mode) error { return nil }

func TestSubmit_ReturnsQueuedJob(t *testing.T) {
	e := newTestEngine(t, workload.SimulatorFunc(succeed))

	resp, err := e.Submit(SubmitRequest{Mode: jobdb.ModeCpu})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.NotEmpty(t, resp.JobId)
	assert.Equal(t, jobdb.ModeCpu, resp.Mode)
	assert.Equal(t, jobdb.StatusQueued, resp.Status)

	job, err := e.Status(resp.JobId)
	require.NoError(t, err)
	assert.Equal(t, jobdb.StatusQueued, job.Status)
	assert.Equal(t, uint64(1), job.Sequence)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.FinishedAt)
	assert.Nil(t, job.Result)
	assert.Equal(t, 1, e.QueueDepth())
}

func TestSubmit_DefaultMode(t *testing.T) {
	e := newTestEngine(t, workload.SimulatorFunc(succeed))
	resp, err := e.Submit(SubmitRequest{})
	require.NoError(t, err)
	assert.Equal(t, jobdb.ModeMixed, resp.Mode)
}

func TestSubmit_IdsAreUnique(t *testing.T) {
	e := newTestEngine(t, workload.SimulatorFunc(succeed))
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		id := submit(t, e, jobdb.ModeIo)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestSubmit_DuplicateIdPanics(t *testing.T) {
	e := newTestEngine(t, workload.SimulatorFunc(succeed))
	e.newId = func() string { return "always-the-same" }

	submit(t, e, jobdb.ModeIo)
	assert.Panics(t, func() { _, _ = e.Submit(SubmitRequest{Mode: jobdb.ModeIo}) })

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, e.QueueDepth())
}

func TestStatus_UnknownId(t *testing.T) {
	e := newTestEngine(t, workload.SimulatorFunc(succeed))
	submit(t, e, jobdb.ModeCpu)

	_, err := e.Status("never-submitted")
	assert.True(t, apierrors.IsNotFound(err))
}

func TestRun_CpuJobReachesTerminalState(t *testing.T) {
	config := configuration.WorkloadConfig{CpuIterations: 10_000}
	e := newTestEngine(t, workload.NewRandomSimulator(config, 1))

	resp, err := e.Submit(SubmitRequest{Mode: jobdb.ModeCpu})
	require.NoError(t, err)
	assert.Equal(t, jobdb.StatusQueued, resp.Status)

	startEngine(t, e)
	job := waitForTerminal(t, e, resp.JobId)[0]
	assert.Equal(t, jobdb.StatusDone, job.Status)
	assert.Equal(t, &jobdb.Result{Ok: true}, job.Result)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.FinishedAt)
}

func TestRun_UnknownModeIsNoOp(t *testing.T) {
	e := newTestEngine(t, workload.NewRandomSimulator(configuration.WorkloadConfig{}, 1).WithSleep(func(time.Duration) {
		t.Error("an unknown mode must not wait")
	}))
	startEngine(t, e)

	job := waitForTerminal(t, e, submit(t, e, "gpu"))[0]
	assert.Equal(t, jobdb.Mode("gpu"), job.Mode)
	assert.Equal(t, jobdb.StatusDone, job.Status)
}

// Jobs must start in submission order, one at a time, whatever their individual durations and
// outcomes.
func TestRun_FifoOneAtATime(t *testing.T) {
	const numJobs = 30
	r := rand.New(rand.NewSource(3))
	var e *Engine
	var executed []string
	simulator := workload.SimulatorFunc(func(mode jobdb.Mode) error {
		jobs, err := e.List()
		if !assert.NoError(t, err) {
			return err
		}
		var processing []string
		for _, job := range jobs {
			if job.Status == jobdb.StatusProcessing {
				processing = append(processing, job.Id)
			}
		}
		if assert.Len(t, processing, 1, "exactly one job may be processing") {
			executed = append(executed, processing[0])
		}

		time.Sleep(time.Duration(r.Intn(3)) * time.Millisecond)
		if r.Float64() < 0.3 {
			return workload.ErrWorkloadFailure
		}
		return nil
	})
	e = newTestEngine(t, simulator)
	startEngine(t, e)

	modes := []jobdb.Mode{jobdb.ModeIo, jobdb.ModeCpu, jobdb.ModeMixed, "other"}
	ids := make([]string, numJobs)
	for i := range ids {
		ids[i] = submit(t, e, modes[i%len(modes)])
	}
	jobs := waitForTerminal(t, e, ids...)

	assert.Equal(t, ids, executed)
	for i := 1; i < len(jobs); i++ {
		prev, cur := jobs[i-1], jobs[i]
		assert.False(t, cur.FinishedAt.Before(*prev.FinishedAt), "job %d finished before job %d", i, i-1)
		assert.False(t, cur.StartedAt.Before(*prev.FinishedAt), "job %d started before job %d finished", i, i-1)
	}
}

func TestRun_IoCpuMixedFinishInSubmissionOrder(t *testing.T) {
	config := configuration.WorkloadConfig{
		FailureProbability: 0.1,
		CpuIterations:      50_000,
		MixedCpuIterations: 10_000,
		IoDelay:            configuration.DelayConfig{Min: 40 * time.Millisecond, Jitter: 60 * time.Millisecond},
		MixedDelay:         configuration.DelayConfig{Min: 10 * time.Millisecond, Jitter: 20 * time.Millisecond},
	}
	e := newTestEngine(t, workload.NewRandomSimulator(config, 11))
	startEngine(t, e)

	ids := []string{
		submit(t, e, jobdb.ModeIo),
		submit(t, e, jobdb.ModeCpu),
		submit(t, e, jobdb.ModeMixed),
	}
	jobs := waitForTerminal(t, e, ids...)
	for i := 1; i < len(jobs); i++ {
		assert.False(t, jobs[i].FinishedAt.Before(*jobs[i-1].FinishedAt))
	}
	// The io job is the slowest but was submitted first.
	assert.GreaterOrEqual(t, jobs[0].FinishedAt.Sub(*jobs[0].StartedAt), 40*time.Millisecond)
}

func TestRun_SecondJobStartsAfterFirstFinishes(t *testing.T) {
	simulator := newBlockingSimulator()
	e := newTestEngine(t, simulator)
	startEngine(t, e)

	first := submit(t, e, jobdb.ModeIo)
	simulator.waitForStart(t)
	second := submit(t, e, jobdb.ModeCpu)

	job, err := e.Status(first)
	require.NoError(t, err)
	assert.Equal(t, jobdb.StatusProcessing, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.Nil(t, job.FinishedAt)
	job, err = e.Status(second)
	require.NoError(t, err)
	assert.Equal(t, jobdb.StatusQueued, job.Status)
	assert.Nil(t, job.StartedAt)

	simulator.release <- struct{}{}
	assert.Equal(t, jobdb.ModeCpu, simulator.waitForStart(t))
	simulator.release <- struct{}{}

	jobs := waitForTerminal(t, e, first, second)
	assert.False(t, jobs[1].StartedAt.Before(*jobs[0].FinishedAt))
}

func TestSubmit_DoesNotBlockOnQueueDepth(t *testing.T) {
	simulator := newBlockingSimulator()
	e := newTestEngine(t, simulator)
	startEngine(t, e)

	submit(t, e, jobdb.ModeIo)
	simulator.waitForStart(t)

	const backlog = 2000
	start := time.Now()
	for i := 0; i < backlog; i++ {
		submit(t, e, jobdb.ModeIo)
	}
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, backlog, e.QueueDepth())

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: backlog + 1, Queued: backlog, Processing: 1}, stats)
	close(simulator.release)
}

func TestRun_FailuresAreRecordedAndIsolated(t *testing.T) {
	simulator := workload.SimulatorFunc(func(mode jobdb.Mode) error {
		switch mode {
		case jobdb.ModeIo:
			return errors.WithStack(workload.ErrWorkloadFailure)
		case jobdb.ModeCpu:
			panic("boom")
		}
		return nil
	})
	e := newTestEngine(t, simulator)
	startEngine(t, e)

	jobs := waitForTerminal(t, e,
		submit(t, e, jobdb.ModeIo),
		submit(t, e, jobdb.ModeCpu),
		submit(t, e, jobdb.ModeMixed),
	)

	assert.Equal(t, jobdb.StatusFailed, jobs[0].Status)
	assert.Equal(t, &jobdb.Result{Error: "Random worker failure"}, jobs[0].Result)
	assert.Equal(t, jobdb.StatusFailed, jobs[1].Status)
	assert.Equal(t, &jobdb.Result{Error: "workload panicked: boom"}, jobs[1].Result)
	assert.Equal(t, jobdb.StatusDone, jobs[2].Status)
	assert.Equal(t, &jobdb.Result{Ok: true}, jobs[2].Result)
	assert.NoError(t, e.Check())
}

// Polling while jobs execute must only ever show consistent records whose status never moves backwards.
func TestStatus_ConsistentWhilePolling(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	e := newTestEngine(t, workload.SimulatorFunc(func(mode jobdb.Mode) error {
		time.Sleep(time.Duration(r.Intn(500)) * time.Microsecond)
		if r.Intn(4) == 0 {
			return workload.ErrWorkloadFailure
		}
		return nil
	}))

	const numJobs = 50
	ids := make([]string, numJobs)
	for i := range ids {
		ids[i] = submit(t, e, jobdb.ModeMixed)
	}

	rank := map[jobdb.Status]int{
		jobdb.StatusQueued:     0,
		jobdb.StatusProcessing: 1,
		jobdb.StatusDone:       2,
		jobdb.StatusFailed:     2,
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	for p := 0; p < 3; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			highest := make(map[string]jobdb.Status)
			for {
				select {
				case <-done:
					return
				default:
				}
				for _, id := range ids {
					job, err := e.Status(id)
					if !assert.NoError(t, err) {
						return
					}
					assert.Equal(t, job.Status == jobdb.StatusQueued, job.StartedAt == nil)
					assert.Equal(t, job.Status.IsTerminal(), job.FinishedAt != nil)
					assert.Equal(t, job.Status.IsTerminal(), job.Result != nil)
					if prev, ok := highest[id]; ok {
						assert.GreaterOrEqual(t, rank[job.Status], rank[prev], "job %s went from %s to %s", id, prev, job.Status)
						if prev.IsTerminal() {
							assert.Equal(t, prev, job.Status)
						}
					}
					highest[id] = job.Status
				}
			}
		}()
	}

	startEngine(t, e)
	waitForTerminal(t, e, ids...)
	close(done)
	wg.Wait()
}

func TestRun_AlreadyRunning(t *testing.T) {
	e := newTestEngine(t, workload.SimulatorFunc(succeed))
	startEngine(t, e)

	err := e.Run(context.Background())
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
}

func TestRun_FinishesJobInFlightOnShutdown(t *testing.T) {
	simulator := newBlockingSimulator()
	e := newTestEngine(t, simulator)

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan error, 1)
	go func() { returned <- e.Run(ctx) }()

	first := submit(t, e, jobdb.ModeIo)
	second := submit(t, e, jobdb.ModeIo)
	simulator.waitForStart(t)
	cancel()

	select {
	case <-returned:
		t.Fatal("Run returned while a job was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(simulator.release)
	select {
	case err := <-returned:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return after shutdown")
	}

	job, err := e.Status(first)
	require.NoError(t, err)
	assert.Equal(t, jobdb.StatusDone, job.Status)
	job, err = e.Status(second)
	require.NoError(t, err)
	assert.Equal(t, jobdb.StatusQueued, job.Status)
	assert.Error(t, e.Check())
}

func TestRun_ResumesWhenWorkArrivesAfterIdle(t *testing.T) {
	e := newTestEngine(t, workload.SimulatorFunc(succeed))
	startEngine(t, e)

	waitForTerminal(t, e, submit(t, e, jobdb.ModeCpu))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, e.QueueDepth())

	job := waitForTerminal(t, e, submit(t, e, jobdb.ModeIo))[0]
	assert.Equal(t, jobdb.StatusDone, job.Status)
}

func TestStatsAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	db, err := jobdb.NewJobDb()
	require.NoError(t, err)
	e := New(jobdb.ModeMixed, db, workload.SimulatorFunc(func(mode jobdb.Mode) error {
		if mode == jobdb.ModeIo {
			return workload.ErrWorkloadFailure
		}
		return nil
	}), &util.DefaultClock{}, NewMetrics(registry))
	startEngine(t, e)

	ids := make([]string, 0)
	for i := 0; i < 6; i++ {
		mode := jobdb.ModeCpu
		if i%3 == 0 {
			mode = jobdb.ModeIo
		}
		ids = append(ids, submit(t, e, mode))
	}
	waitForTerminal(t, e, ids...)

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 6, Done: 4, Failed: 2}, stats)

	e.LogStats()
	assert.Equal(t, 6.0, testutil.ToFloat64(e.metrics.submitted))
	assert.Equal(t, 4.0, testutil.ToFloat64(e.metrics.finished.WithLabelValues("done")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.finished.WithLabelValues("failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(e.metrics.jobs.WithLabelValues("done")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.metrics.jobs.WithLabelValues("queued")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.metrics.queueDepth))
}

func TestModeLabel(t *testing.T) {
	for _, mode := range []jobdb.Mode{jobdb.ModeCpu, jobdb.ModeIo, jobdb.ModeMixed} {
		assert.Equal(t, string(mode), modeLabel(mode))
	}
	assert.Equal(t, "other", modeLabel(jobdb.Mode(fmt.Sprintf("random-%d", 7))))
}
