package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/jobrunner/cmd/jobrunner/cmd"
	"github.com/G-Research/jobrunner/internal/common"
)

func main() {
	common.ConfigureCommandLineLogging()
	root := cmd.RootCmd()
	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
