package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/jobrunner/internal/jobrunnerctl"
	"github.com/G-Research/jobrunner/pkg/client"
)

func addWaitFlags(cmd *cobra.Command) {
	defaults := client.DefaultWaitOptions()
	cmd.Flags().Bool("wait", false, "Poll until the job is done or failed")
	cmd.Flags().Uint("attempts", defaults.Attempts, "Number of times to poll when waiting")
	cmd.Flags().Duration("interval", defaults.Interval, "Time between polls when waiting")
}

func readWaitFlags(cmd *cobra.Command, params *jobrunnerctl.Params) (bool, error) {
	wait, err := cmd.Flags().GetBool("wait")
	if err != nil {
		return false, err
	}
	attempts, err := cmd.Flags().GetUint("attempts")
	if err != nil {
		return false, err
	}
	interval, err := cmd.Flags().GetDuration("interval")
	if err != nil {
		return false, err
	}
	params.WaitOptions = client.WaitOptions{Attempts: attempts, Interval: interval}
	return wait, nil
}
