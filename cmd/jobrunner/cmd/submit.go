package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/jobrunner/internal/jobrunnerctl"
)

func submitCmd(a *jobrunnerctl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit jobs to a job runner",
		Long: `Submit jobs to a job runner.

Modes are cpu, io and mixed. If no mode is given the job runner's default mode is used.

Example:

	jobrunner submit --mode io --count 5 --wait`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := cmd.Flags().GetString("mode")
			if err != nil {
				return err
			}
			count, err := cmd.Flags().GetInt("count")
			if err != nil {
				return err
			}
			wait, err := readWaitFlags(cmd, a.Params)
			if err != nil {
				return err
			}
			return a.Submit(mode, count, wait)
		},
	}
	cmd.Flags().String("mode", "", "Workload mode of the submitted jobs")
	cmd.Flags().Int("count", 1, "Number of jobs to submit")
	addWaitFlags(cmd)
	return cmd
}
