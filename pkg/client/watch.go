package client

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/jobrunner/internal/common/apierrors"
)

// WaitOptions controls how WaitForTerminal polls. The defaults poll six times, 600ms apart.
type WaitOptions struct {
	Attempts uint
	Interval time.Duration
}

func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		Attempts: 6,
		Interval: 600 * time.Millisecond,
	}
}

// ErrNotTerminal is returned by WaitForTerminal when the job is still queued or processing after
// the last attempt.
type ErrNotTerminal struct {
	JobId  string
	Status string
}

func (err *ErrNotTerminal) Error() string {
	return "job " + err.JobId + " is still " + err.Status
}

// WaitForTerminal polls the job until it is done or failed. Unknown jobs fail immediately.
// The last observed state is returned along with an *ErrNotTerminal if polling gave up first.
func (c *Client) WaitForTerminal(ctx context.Context, jobId string, opts WaitOptions) (*Job, error) {
	if opts.Attempts == 0 {
		opts.Attempts = 1
	}
	var job *Job
	err := retry.Do(
		func() error {
			latest, err := c.GetJob(ctx, jobId)
			if err != nil {
				return err
			}
			job = latest
			if !job.IsTerminal() {
				return &ErrNotTerminal{JobId: jobId, Status: job.Status}
			}
			return nil
		},
		retry.Attempts(opts.Attempts),
		retry.Delay(opts.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !apierrors.IsNotFound(err) && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			log.WithField("jobId", jobId).Debugf("attempt %d: %v", n+1, err)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return job, errors.WithStack(ctx.Err())
		}
		return job, err
	}
	return job, nil
}
