package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/jobrunner/internal/common"
	"github.com/G-Research/jobrunner/internal/common/app"
	"github.com/G-Research/jobrunner/internal/jobrunner"
	"github.com/G-Research/jobrunner/internal/jobrunner/configuration"
)

const customConfigLocation = "config"

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the job runner service",
		Args:  cobra.NoArgs,
		RunE:  runJobRunner,
	}
	cmd.Flags().StringSlice(customConfigLocation, []string{}, "Fully qualified path to application configuration files (for multiple config files repeat this arg or separate paths with commas)")
	return cmd
}

func runJobRunner(cmd *cobra.Command, _ []string) error {
	common.ConfigureLogging()

	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := app.CreateContextWithShutdown()
	defer cancel()

	jobRunner, err := jobrunner.New(*config)
	if err != nil {
		return err
	}
	return jobRunner.StartUp(ctx)
}

func loadConfig(cmd *cobra.Command) (*configuration.JobRunnerConfiguration, error) {
	userSpecifiedConfigs, err := cmd.Flags().GetStringSlice(customConfigLocation)
	if err != nil {
		return nil, err
	}
	var config configuration.JobRunnerConfiguration
	if _, err := common.LoadConfig(&config, defaultConfigPath, userSpecifiedConfigs, configuration.Hooks()...); err != nil {
		return nil, err
	}
	return &config, nil
}
