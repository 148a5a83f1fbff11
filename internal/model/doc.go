// Package model defines the domain types and value objects for the
// votedeploy CLI.
//
// This package contains pure data structures with no external dependencies.
// The project configuration record (compiler version, networks, directory
// roles) and the deployment module types (futures, arguments) live here so
// that the project, ignition, deploy and cli packages can share them.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
