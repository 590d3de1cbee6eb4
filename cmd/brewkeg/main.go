package main

import (
	"os"

	"github.com/brewkeg/core/internal/cmd"
	"github.com/brewkeg/core/internal/logger"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := cmd.Execute(version, gitCommit, buildDate); err != nil {
		logger.Error("brewkeg: %v", err)
		os.Exit(1)
	}
}
