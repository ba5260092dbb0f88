package workload

import (
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/jobrunner/internal/common/util"
	"github.com/G-Research/jobrunner/internal/jobrunner/configuration"
	"github.com/G-Research/jobrunner/internal/jobrunner/jobdb"
)

// ErrWorkloadFailure is the injected failure a job may hit once its work is complete.
var ErrWorkloadFailure = errors.New("Random worker failure")

// Simulator performs the work for one job. A nil error means the job succeeded.
// Execute is only ever called by one goroutine at a time.
type Simulator interface {
	Execute(mode jobdb.Mode) error
}

// SimulatorFunc adapts a plain function to the Simulator interface.
type SimulatorFunc func(mode jobdb.Mode) error

func (f SimulatorFunc) Execute(mode jobdb.Mode) error {
	return f(mode)
}

// RandomSimulator burns cpu and sleeps according to the job's mode and then fails with a fixed
// probability, independent of the mode.
type RandomSimulator struct {
	config configuration.WorkloadConfig
	rand   *rand.Rand
	sleep  func(time.Duration)
}

func NewRandomSimulator(config configuration.WorkloadConfig, seed int64) *RandomSimulator {
	return &RandomSimulator{
		config: config,
		rand:   util.NewThreadsafeRand(seed),
		sleep:  time.Sleep,
	}
}

// WithSleep replaces time.Sleep, so that tests can observe the waits without performing them.
func (s *RandomSimulator) WithSleep(sleep func(time.Duration)) *RandomSimulator {
	s.sleep = sleep
	return s
}

func (s *RandomSimulator) Execute(mode jobdb.Mode) error {
	switch mode {
	case jobdb.ModeCpu:
		BurnCpu(s.config.CpuIterations)
	case jobdb.ModeIo:
		s.sleep(s.delay(s.config.IoDelay))
	case jobdb.ModeMixed:
		BurnCpu(s.config.MixedCpuIterations)
		s.sleep(s.delay(s.config.MixedDelay))
	}

	if s.rand.Float64() < s.config.FailureProbability {
		return errors.WithStack(ErrWorkloadFailure)
	}
	return nil
}

func (s *RandomSimulator) delay(config configuration.DelayConfig) time.Duration {
	return Delay(config, s.rand)
}

// WorstCaseDuration returns an upper bound on the wait performed for mode; cpu time is not included.
func (s *RandomSimulator) WorstCaseDuration(mode jobdb.Mode) time.Duration {
	switch mode {
	case jobdb.ModeIo:
		return s.config.IoDelay.Max()
	case jobdb.ModeMixed:
		return s.config.MixedDelay.Max()
	default:
		return 0
	}
}

// Delay returns config.Min plus a uniformly random duration in [0, config.Jitter).
func Delay(config configuration.DelayConfig, r *rand.Rand) time.Duration {
	if config.Jitter <= 0 {
		return config.Min
	}
	return config.Min + time.Duration(r.Int63n(int64(config.Jitter)))
}

// BurnCpu computes the sum of the square roots of [0, iterations).
func BurnCpu(iterations int) float64 {
	total := 0.0
	for i := 0; i < iterations; i++ {
		total += math.Sqrt(float64(i))
	}
	return total
}
