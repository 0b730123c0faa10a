// Package main is the entry point for the lineage command.
package main

import (
	"fmt"
	"os"

	"github.com/zjrosen/lineage/cmd"
	"github.com/zjrosen/lineage/internal/printer"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	versionString := fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	cmd.SetVersion(versionString)
	if err := cmd.Execute(); err != nil {
		if !printer.Reported(err) {
			_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cmd.ExitCode(err))
	}
}
