// Package main is the entry point for the votedeploy CLI.
//
// All commands live in internal/cli. Build information is injected via
// ldflags at release time and defaults to "dev", "none" and "unknown".
package main

import (
	"github.com/shinji-kodama/votedeploy/internal/cli"
)

// Set with -ldflags "-X main.version=..." at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	cli.Execute(cli.NewRootCommand())
}
