package configuration

import (
	"time"

	"github.com/G-Research/jobrunner/internal/jobrunner/jobdb"
)

type JobRunnerConfiguration struct {
	// Port serving the jobs api, the load target endpoints and /health
	HttpPort uint16 `validate:"required"`
	// Port serving prometheus metrics on /metrics
	MetricsPort uint16 `validate:"required"`
	// Mode used for submissions that don't specify one
	DefaultMode jobdb.Mode `validate:"required"`
	// How often the worker stats line is logged
	StatsInterval time.Duration `validate:"gt=0"`
	// How long shutdown waits for the job in flight and background tasks
	ShutdownTimeout time.Duration `validate:"gt=0"`

	Workload   WorkloadConfig
	LoadTarget LoadTargetConfig
}

// WorkloadConfig parameterises the simulated work jobs perform.
type WorkloadConfig struct {
	// Chance that any job fails once its work is complete, regardless of mode
	FailureProbability float64 `validate:"gte=0,lte=1"`
	// Square roots computed by a cpu job
	CpuIterations int `validate:"gte=0"`
	// Square roots computed by a mixed job before it waits
	MixedCpuIterations int `validate:"gte=0"`
	// Wait performed by an io job
	IoDelay DelayConfig
	// Wait performed by a mixed job after its cpu phase
	MixedDelay DelayConfig
}

// DelayConfig describes a wait of Min plus a uniformly random amount in [0, Jitter).
type DelayConfig struct {
	Min    time.Duration `validate:"gte=0"`
	Jitter time.Duration `validate:"gte=0"`
}

// Max returns the longest delay this config can produce.
func (c DelayConfig) Max() time.Duration {
	return c.Min + c.Jitter
}

// LoadTargetConfig parameterises the fixed endpoints load tests run against.
type LoadTargetConfig struct {
	SlowDelay        DelayConfig
	IoDelay          DelayConfig
	ErrorProbability float64 `validate:"gte=0,lte=1"`
	CpuIterations    int     `validate:"gte=0"`
	UserCount        int     `validate:"gte=0"`
}
