// Package main is the entry point of the web service, which serves the grievance dashboard.
package main

import (
	"log/slog"
	"os"

	"github.com/openaviation/grievance-insights/cmd/web-service/daemon"
	"github.com/openaviation/grievance-insights/internal/common/cli"
)

func main() {
	a, err := daemon.New()
	if err != nil {
		slog.Error("Failed to create the daemon", "err", err)
		os.Exit(cli.ExitError)
	}

	os.Exit(cli.RunDaemon(a))
}
