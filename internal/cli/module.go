package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/votedeploy/internal/artifact"
	"github.com/shinji-kodama/votedeploy/internal/deploy"
	"github.com/shinji-kodama/votedeploy/internal/ignition"
	"github.com/shinji-kodama/votedeploy/internal/journal"
	"github.com/shinji-kodama/votedeploy/internal/model"
	"github.com/shinji-kodama/votedeploy/internal/project"
)

// NewModuleCommand creates the "module" command group.
func NewModuleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "module",
		Short: "Inspect deployment modules",
		Long: `Inspect deployment modules.

A module is referenced either by the ID of a built-in module
(SecureVotingModule) or by the path of a module file (.yaml, .yml or .json).
Without a reference, SecureVotingModule is used.`,
	}
	cmd.AddCommand(newModuleListCommand())
	cmd.AddCommand(newModuleShowCommand())
	cmd.AddCommand(newModulePlanCommand())
	return cmd
}

// resolveModule returns the module named by ref.
func resolveModule(ref string) (*ignition.Module, error) {
	if ref == "" {
		ref = ignition.SecureVotingModuleID
	}
	if ignition.IsModuleFile(ref) {
		VerboseLog("Loading module file %s", ref)
		return ignition.LoadModule(ref)
	}
	return ignition.DefaultRegistry().Get(ref)
}

func moduleRef(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func newModuleListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := ignition.DefaultRegistry().IDs()
			if IsJSONOutput() {
				printJSON(map[string]any{"modules": ids})
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}

type moduleShowFlags struct {
	kind string
}

func newModuleShowCommand() *cobra.Command {
	flags := &moduleShowFlags{}

	cmd := &cobra.Command{
		Use:   "show [module]",
		Short: "Show a module's futures and results",
		Long: `Show the futures a module declares, in declaration order, and the
contracts it exposes as results.

Examples:
  votedeploy module show
  votedeploy module show ignition/modules/Registry.yaml --kind staticCall`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModuleShow(moduleRef(args), flags)
		},
	}

	cmd.Flags().StringVar(&flags.kind, "kind", "", "Only show futures of this kind: contract, call or staticCall")
	return cmd
}

func runModuleShow(ref string, flags *moduleShowFlags) error {
	m, err := resolveModule(ref)
	if err != nil {
		return err
	}

	futures := m.Futures
	if flags.kind != "" {
		kind, err := model.ParseFutureKind(flags.kind)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "invalid --kind", err)
		}
		futures = filterFutures(futures, kind)
	}

	printModule(m, futures)
	return nil
}

// filterFutures returns the futures of the given kind, keeping their order.
func filterFutures(futures []model.Future, kind model.FutureKind) []model.Future {
	out := []model.Future{}
	for _, f := range futures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// moduleResult is one named result of a module, resolved to its contract.
type moduleResult struct {
	Name     string `json:"name"`
	FutureID string `json:"futureId"`
	Contract string `json:"contract"`
}

// moduleResults lists the module's results sorted by name.
func moduleResults(m *ignition.Module) []moduleResult {
	out := make([]moduleResult, 0, len(m.Results))
	for _, name := range m.ResultNames() {
		r := moduleResult{Name: name, FutureID: m.Results[name]}
		if f, ok := m.Future(r.FutureID); ok {
			r.Contract = f.ContractName
		}
		out = append(out, r)
	}
	return out
}

func printModule(m *ignition.Module, futures []model.Future) {
	if IsJSONOutput() {
		printJSON(map[string]any{
			"id":        m.ID,
			"contracts": len(m.Contracts()),
			"calls":     len(m.Calls()),
			"futures":   futures,
			"results":   moduleResults(m),
		})
		return
	}

	fmt.Printf("Module: %s (%d contract(s), %d call(s))\n\n", m.ID, len(m.Contracts()), len(m.Calls()))
	fmt.Printf("%-45s %-12s %-20s %s\n", "FUTURE", "KIND", "TARGET", "ARGS")
	fmt.Printf("%-45s %-12s %-20s %s\n",
		strings.Repeat("-", 45), strings.Repeat("-", 12), strings.Repeat("-", 20), strings.Repeat("-", 10))
	for _, f := range futures {
		fmt.Printf("%-45s %-12s %-20s %s\n", f.ID, f.Kind, futureTarget(f), f.ArgsString())
	}

	if results := moduleResults(m); len(results) > 0 {
		fmt.Println("\nResults:")
		for _, r := range results {
			fmt.Printf("  %s -> %s (%s)\n", r.Name, r.Contract, r.FutureID)
		}
	}
}

// futureTarget renders the contract, or contract.method for calls.
func futureTarget(f model.Future) string {
	if f.Kind.IsCall() {
		return f.ContractName + "." + f.Method
	}
	return f.ContractName
}

type modulePlanFlags struct {
	network      string
	deploymentID string
}

func newModulePlanCommand() *cobra.Command {
	flags := &modulePlanFlags{}

	cmd := &cobra.Command{
		Use:   "plan [module]",
		Short: "Show the execution order and what a deploy would run",
		Long: `Show the order in which a deploy would execute the module's futures and
which of them are already recorded as done in the deployment journal.
Compiled artifacts are checked; the network is never contacted.

Examples:
  votedeploy module plan
  votedeploy module plan ignition/modules/Registry.yaml --network localhost`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModulePlan(moduleRef(args), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.network, "network", "n", project.InProcessNetwork, "Target network")
	cmd.Flags().StringVar(&flags.deploymentID, "deployment-id", "", "Deployment ID (default: chain-<chainId>)")
	return cmd
}

func runModulePlan(ref string, flags *modulePlanFlags) error {
	env, err := loadProject()
	if err != nil {
		return err
	}
	m, err := resolveModule(ref)
	if err != nil {
		return err
	}

	name := networkName()
	network, err := project.ResolveNetwork(env.Config, name)
	if err != nil {
		return err
	}

	store, err := artifact.NewStore(project.ResolvePath(env.Config, env.Root, model.RoleArtifacts))
	if err != nil {
		return err
	}

	j := journal.NewMemory()
	if !network.InProcess() {
		j, err = journal.Open(journal.Dir(env.Root, flags.deploymentID, network.ChainID))
		if err != nil {
			return err
		}
	}

	steps, err := deploy.DryRun(m, store, j)
	if err != nil {
		return err
	}
	printPlan(m.ID, name, steps)
	return nil
}

func printPlan(moduleID, network string, steps []deploy.FutureResult) {
	if IsJSONOutput() {
		printJSON(map[string]any{"moduleId": moduleID, "network": network, "futures": steps})
		return
	}

	fmt.Printf("Plan for %s on %s:\n\n", moduleID, network)
	fmt.Printf("%-4s %-45s %-12s %s\n", "#", "FUTURE", "KIND", "STATUS")
	for i, s := range steps {
		status := string(s.Status)
		if s.Status == model.StatusSkipped {
			status = "done"
			if s.Address != "" {
				status += " (" + s.Address + ")"
			}
		}
		fmt.Printf("%-4d %-45s %-12s %s\n", i+1, s.ID, s.Kind, status)
	}
}
