package jobrunnerctl

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/G-Research/jobrunner/internal/common/apierrors"
	"github.com/G-Research/jobrunner/pkg/client"
)

// Submit submits count jobs with the given mode. If wait is true it then polls each job in
// submission order until it finishes or polling gives up.
func (a *App) Submit(mode string, count int, wait bool) error {
	if count < 1 {
		return &apierrors.ErrInvalidArgument{Name: "count", Value: count, Message: "must be at least 1"}
	}
	c := a.client()
	ctx := context.Background()

	jobIds := make([]string, 0, count)
	for i := 0; i < count; i++ {
		resp, err := c.Submit(ctx, mode)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Submitted job with id %s (mode %s)\n", resp.JobId, resp.Mode)
		jobIds = append(jobIds, resp.JobId)
	}
	if !wait {
		return nil
	}
	return a.waitForJobs(ctx, c, jobIds)
}

func (a *App) waitForJobs(ctx context.Context, c *client.Client, jobIds []string) error {
	for _, jobId := range jobIds {
		job, err := c.WaitForTerminal(ctx, jobId, a.Params.WaitOptions)
		var notTerminal *client.ErrNotTerminal
		if errors.As(err, &notTerminal) {
			a.printJob(job)
			fmt.Fprintf(a.Out, "Gave up waiting for job %s after %d attempts\n", jobId, a.Params.WaitOptions.Attempts)
			continue
		}
		if err != nil {
			return err
		}
		a.printJob(job)
	}
	return nil
}
