// Package main is the entry point of the ingest service, which loads the aviation grievances into the warehouse.
package main

import (
	"log/slog"
	"os"

	"github.com/openaviation/grievance-insights/cmd/ingest-service/daemon"
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
