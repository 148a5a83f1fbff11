// Package cli implements the votedeploy command tree with cobra.
//
// Every command follows the same shape: a flags struct bound in the
// New*Command constructor, and a run* function holding the logic, which
// returns model.CLIError values so Execute can map failures to exit codes.
// Output goes to stdout as text or, with --json, as a single JSON document;
// logs and errors go to stderr.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shinji-kodama/votedeploy/internal/model"
	"github.com/shinji-kodama/votedeploy/internal/project"
	"github.com/shinji-kodama/votedeploy/internal/settings"
)

// Global flag values, shared by every subcommand.
var (
	jsonOutput bool
	verbose    bool
	configFlag string
)

// logger is the process-wide logger. Its level and format are set from
// settings before any command runs.
var logger = logrus.New()

// current holds the settings resolved for the running command.
var current = &settings.Settings{}

// Build information, injected from main.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "votedeploy",
		Short: "Declarative smart contract deployments",
		Long: `votedeploy reads a contract project's configuration and deploys
declarative modules (contracts plus follow-up calls) to a configured network.

Deployments are journaled under ignition/deployments/, so re-running a
deployment only executes the steps that have not completed yet.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Version:           fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
		PersistentPreRunE: loadSettings,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "",
		"Path to the project config file (default: search the current directory)")

	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewModuleCommand())
	rootCmd.AddCommand(NewDeployCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewNodeCommand())

	return rootCmd
}

// loadSettings resolves runtime settings from .env, the environment and the
// command's flags, then configures logging.
//
// The .env file is read from the directory of the config named by --config
// or VOTEDEPLOY_CONFIG, so that running against another project picks up
// that project's deployer key rather than the one in the working directory.
func loadSettings(cmd *cobra.Command, _ []string) error {
	configFile := configFlag
	if configFile == "" {
		configFile = os.Getenv(settings.EnvPrefix + "_CONFIG")
	}

	s, err := settings.Load(settings.Options{
		EnvFile: settings.EnvFileFor(configFile),
		Flags: map[string]*pflag.Flag{
			settings.KeyConfig:  cmd.Flags().Lookup("config"),
			settings.KeyNetwork: cmd.Flags().Lookup("network"),
		},
	})
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidConfig, "invalid settings", err)
	}
	s.ConfigureLogger(logger, verbose)
	current = s
	return nil
}

// Execute runs the command tree and exits with the code carried by a
// CLIError, or ExitGeneralError for any other failure.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}
		printError(err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

func printError(message string, underlying error) {
	if jsonOutput {
		body := map[string]string{"message": message}
		if underlying != nil {
			body["detail"] = underlying.Error()
		}
		data, _ := json.MarshalIndent(map[string]any{"error": body}, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}
	if underlying != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

// VerboseLog writes a debug message; it is shown with --verbose or
// VOTEDEPLOY_LOG_LEVEL=debug.
func VerboseLog(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

// IsJSONOutput reports whether --json was given.
func IsJSONOutput() bool {
	return jsonOutput
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

// projectEnv is a loaded project: its root directory and validated config.
type projectEnv struct {
	Root       string
	ConfigPath string
	Config     *model.ProjectConfig
}

// configPath returns the config file named by --config or
// VOTEDEPLOY_CONFIG, or searches the working directory.
func configPath() (string, error) {
	if current.ConfigPath != "" {
		return current.ConfigPath, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return project.FindConfig(cwd)
}

// loadProject finds, loads and validates the project config.
func loadProject() (*projectEnv, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	cfg, err := project.LoadAndValidate(abs)
	if err != nil {
		return nil, err
	}
	VerboseLog("Loaded project config %s", abs)
	return &projectEnv{Root: filepath.Dir(abs), ConfigPath: abs, Config: cfg}, nil
}

// networkName returns the network selected by --network or
// VOTEDEPLOY_NETWORK.
func networkName() string {
	if current.Network == "" {
		return project.InProcessNetwork
	}
	return current.Network
}
