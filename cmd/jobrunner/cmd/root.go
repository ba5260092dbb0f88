package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/jobrunner/internal/jobrunnerctl"
	"github.com/G-Research/jobrunner/pkg/client"
)

var defaultConfigPath = "./config/jobrunner"

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "jobrunner",
		Short:        "jobrunner executes simulated jobs one at a time in submission order.",
		SilenceUsage: true,
	}

	client.AddApiConnectionCommandlineArgs(cmd)

	cmd.AddCommand(
		runCmd(),
		configCmd(),
		submitCmd(jobrunnerctl.New()),
		statusCmd(jobrunnerctl.New()),
		statsCmd(jobrunnerctl.New()),
	)

	return cmd
}

// initParams fills in the connection details shared by every client subcommand.
func initParams(cmd *cobra.Command, params *jobrunnerctl.Params) error {
	params.ApiConnectionDetails = client.ExtractCommandlineApiConnectionDetails()
	return nil
}
