package client

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	urlFlag     = "jobRunnerUrl"
	timeoutFlag = "requestTimeout"
)

func AddApiConnectionCommandlineArgs(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()
	flags.String(urlFlag, "http://localhost:5000", "specify job runner url")
	flags.Duration(timeoutFlag, 10*time.Second, "timeout for each request to the job runner")
	bindFlags(flags, urlFlag, timeoutFlag)
}

func bindFlags(flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// ExtractCommandlineApiConnectionDetails reads the connection flags, which may also be set
// through the environment, e.g. JOBRUNNERURL.
func ExtractCommandlineApiConnectionDetails() *ApiConnectionDetails {
	viper.AutomaticEnv()
	return &ApiConnectionDetails{
		JobRunnerUrl:   viper.GetString(urlFlag),
		RequestTimeout: viper.GetDuration(timeoutFlag),
	}
}
