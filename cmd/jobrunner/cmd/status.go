package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/jobrunner/internal/jobrunnerctl"
)

func statusCmd(a *jobrunnerctl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <jobId>",
		Short: "Print the status of a job",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			wait, err := readWaitFlags(cmd, a.Params)
			if err != nil {
				return err
			}
			return a.Status(args[0], wait)
		},
	}
	addWaitFlags(cmd)
	return cmd
}

func statsCmd(a *jobrunnerctl.App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the number of jobs in each status",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Stats()
		},
	}
}
