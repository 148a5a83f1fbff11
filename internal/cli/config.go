package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/votedeploy/internal/model"
	"github.com/shinji-kodama/votedeploy/internal/project"
)

// NewConfigCommand creates the "config" command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create the project config",
	}
	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigValidateCommand())
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigPathCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the loaded project config",
		Long: `Print the project config as it was loaded, with every path role and
network resolved.

Examples:
  votedeploy config show
  votedeploy config show --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigShow() error {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := project.LoadConfig(path)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		printJSON(map[string]any{"path": path, "config": cfg})
		return nil
	}
	data, err := project.RenderConfig(cfg, project.FormatYAML)
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n%s", path, data)
	return nil
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the project config for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate()
		},
	}
}

func runConfigValidate() error {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := project.LoadConfig(path)
	if err != nil {
		return err
	}
	errs := project.ValidateConfig(cfg)

	if IsJSONOutput() {
		type issue struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		}
		issues := make([]issue, 0, len(errs))
		for _, e := range errs {
			issues = append(issues, issue{Field: e.Field, Message: e.Message})
		}
		printJSON(map[string]any{"path": path, "valid": len(errs) == 0, "errors": issues})
	} else if len(errs) == 0 {
		fmt.Printf("%s is valid (%d network(s))\n", path, len(cfg.Networks))
	}

	if len(errs) > 0 {
		return model.NewCLIError(
			model.ExitInvalidConfig,
			fmt.Sprintf("project config %s is invalid:\n%s", path, project.FormatValidationErrors(errs)),
		)
	}
	return nil
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path <artifacts|sources|cache|tests>",
		Short: "Print the absolute directory of a path role",
		Long: `Print the directory configured for a path role, resolved against the
project root. Useful in scripts, e.g. to clean the compiler output:

  rm -rf "$(votedeploy config path artifacts)"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigPath(args[0])
		},
	}
}

func runConfigPath(roleName string) error {
	role, err := model.ParsePathRole(roleName)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "invalid path role", err)
	}
	env, err := loadProject()
	if err != nil {
		return err
	}

	dir := project.ResolvePath(env.Config, env.Root, role)
	if IsJSONOutput() {
		printJSON(map[string]string{"role": role.String(), "path": dir})
		return nil
	}
	fmt.Println(dir)
	return nil
}

type configInitFlags struct {
	format string
	force  bool
	dir    string
}

func newConfigInitCommand() *cobra.Command {
	flags := &configInitFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default project config",
		Long: `Write a project config with the default compiler version, the in-process
"hardhat" network, the "localhost" node network and the standard directory
layout.

Examples:
  votedeploy config init
  votedeploy config init --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.format, "format", "json", "File format: json or yaml")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite an existing config")
	cmd.Flags().StringVar(&flags.dir, "dir", ".", "Project directory")
	return cmd
}

func runConfigInit(_ context.Context, flags *configInitFlags) error {
	var name string
	switch project.Format(flags.format) {
	case project.FormatJSON:
		name = "votedeploy.config.json"
	case project.FormatYAML:
		name = "votedeploy.config.yaml"
	default:
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid format %q: valid values are json, yaml", flags.format))
	}

	if !flags.force {
		existing, err := project.FindConfig(flags.dir)
		if err == nil {
			return model.NewCLIError(model.ExitGeneralError,
				fmt.Sprintf("%s already exists (use --force to overwrite)", existing))
		}
		var cliErr *model.CLIError
		if !errors.As(err, &cliErr) || cliErr.Code != model.ExitConfigNotFound {
			return err
		}
	}

	path := filepath.Join(flags.dir, name)
	if err := project.WriteConfig(path, project.DefaultConfig()); err != nil {
		return err
	}
	VerboseLog("Wrote %s", path)

	if IsJSONOutput() {
		printJSON(map[string]any{"path": path, "created": true})
		return nil
	}
	fmt.Printf("Created %s\n", path)
	if _, err := os.Stat(filepath.Join(flags.dir, ".env")); err != nil {
		fmt.Println("Set VOTEDEPLOY_PRIVATE_KEY in .env before deploying to a public network.")
	}
	return nil
}
