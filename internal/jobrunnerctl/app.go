// Package jobrunnerctl implements the client subcommands of the jobrunner binary.
package jobrunnerctl

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/G-Research/jobrunner/pkg/client"
)

// App is the client-side counterpart of a running job runner. Output goes to Out.
type App struct {
	Params *Params
	Out    io.Writer
}

// Params are the parameters parsed from the command line.
type Params struct {
	ApiConnectionDetails *client.ApiConnectionDetails
	WaitOptions          client.WaitOptions
}

func New() *App {
	return &App{
		Params: &Params{
			ApiConnectionDetails: &client.ApiConnectionDetails{},
			WaitOptions:          client.DefaultWaitOptions(),
		},
		Out: os.Stdout,
	}
}

func (a *App) client() *client.Client {
	return client.NewClient(a.Params.ApiConnectionDetails)
}

func (a *App) printJob(job *client.Job) {
	fmt.Fprintf(a.Out, "Job %s (mode %s) is %s", job.Id, job.Mode, job.Status)
	if job.StartedAt != nil && job.FinishedAt != nil {
		fmt.Fprintf(a.Out, " after %s", time.Duration(*job.FinishedAt-*job.StartedAt)*time.Millisecond)
	}
	if job.Result != nil && job.Result.Error != "" {
		fmt.Fprintf(a.Out, ": %s", job.Result.Error)
	}
	fmt.Fprintln(a.Out)
}
