package jobrunnerctl

import (
	"context"
	"fmt"
)

// Status prints the state of a single job, waiting for it to finish if wait is true.
func (a *App) Status(jobId string, wait bool) error {
	c := a.client()
	ctx := context.Background()
	if wait {
		return a.waitForJobs(ctx, c, []string{jobId})
	}
	job, err := c.GetJob(ctx, jobId)
	if err != nil {
		return err
	}
	a.printJob(job)
	return nil
}

// Stats prints the number of jobs in each status.
func (a *App) Stats() error {
	stats, err := a.client().Stats(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "total: %d, queued: %d, processing: %d, done: %d, failed: %d\n",
		stats.Total, stats.Queued, stats.Processing, stats.Done, stats.Failed)
	return nil
}
