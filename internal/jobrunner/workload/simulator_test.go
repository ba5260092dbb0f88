package workload

import (
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/G-Research/jobrunner/internal/jobrunner/configuration"
	"github.com/G-Research/jobrunner/internal/jobrunner/jobdb"
)

var testConfig = configuration.WorkloadConfig{
	CpuIterations:      1000,
	MixedCpuIterations: 100,
	IoDelay:            configuration.DelayConfig{Min: 400 * time.Millisecond, Jitter: 2500 * time.Millisecond},
	MixedDelay:         configuration.DelayConfig{Min: 300 * time.Millisecond, Jitter: 2000 * time.Millisecond},
}

func TestRandomSimulator_Waits(t *testing.T) {
	tests := map[string]struct {
		mode       jobdb.Mode
		expectWait bool
		min        time.Duration
		max        time.Duration
	}{
		"cpu":     {mode: jobdb.ModeCpu},
		"io":      {mode: jobdb.ModeIo, expectWait: true, min: 400 * time.Millisecond, max: 2900 * time.Millisecond},
		"mixed":   {mode: jobdb.ModeMixed, expectWait: true, min: 300 * time.Millisecond, max: 2300 * time.Millisecond},
		"unknown": {mode: jobdb.Mode("gpu")},
		"empty":   {mode: jobdb.Mode("")},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var waits []time.Duration
			s := NewRandomSimulator(testConfig, 1).WithSleep(func(d time.Duration) { waits = append(waits, d) })

			for i := 0; i < 50; i++ {
				assert.NoError(t, s.Execute(tc.mode))
			}

			if !tc.expectWait {
				assert.Empty(t, waits)
				assert.Equal(t, time.Duration(0), s.WorstCaseDuration(tc.mode))
				return
			}
			assert.Len(t, waits, 50)
			for _, w := range waits {
				assert.GreaterOrEqual(t, w, tc.min)
				assert.Less(t, w, tc.max)
			}
			assert.Equal(t, tc.max, s.WorstCaseDuration(tc.mode))
		})
	}
}

func TestRandomSimulator_FailureProbability(t *testing.T) {
	noSleep := func(time.Duration) {}

	always := testConfig
	always.FailureProbability = 1
	s := NewRandomSimulator(always, 1).WithSleep(noSleep)
	for _, mode := range []jobdb.Mode{jobdb.ModeCpu, jobdb.ModeIo, jobdb.ModeMixed, "other"} {
		err := s.Execute(mode)
		assert.True(t, errors.Is(err, ErrWorkloadFailure))
		assert.Equal(t, "Random worker failure", err.Error())
	}

	never := testConfig
	never.FailureProbability = 0
	s = NewRandomSimulator(never, 1).WithSleep(noSleep)
	for i := 0; i < 100; i++ {
		assert.NoError(t, s.Execute("other"))
	}

	sometimes := testConfig
	sometimes.FailureProbability = 0.1
	s = NewRandomSimulator(sometimes, 7).WithSleep(noSleep)
	failures := 0
	for i := 0; i < 10000; i++ {
		if s.Execute("other") != nil {
			failures++
		}
	}
	assert.InDelta(t, 1000, failures, 150)
}

func TestDelay(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	assert.Equal(t, time.Second, Delay(configuration.DelayConfig{Min: time.Second}, r))
	for i := 0; i < 100; i++ {
		d := Delay(configuration.DelayConfig{Min: time.Second, Jitter: time.Millisecond}, r)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, time.Second+time.Millisecond)
	}
}

func TestBurnCpu(t *testing.T) {
	assert.Equal(t, 0.0, BurnCpu(0))
	assert.InDelta(t, 1+1.4142135623730951, BurnCpu(3), 1e-9)
}

func TestSimulatorFunc(t *testing.T) {
	var got jobdb.Mode
	var s Simulator = SimulatorFunc(func(mode jobdb.Mode) error {
		got = mode
		return nil
	})
	assert.NoError(t, s.Execute(jobdb.ModeIo))
	assert.Equal(t, jobdb.ModeIo, got)
}
