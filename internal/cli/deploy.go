package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/votedeploy/internal/artifact"
	"github.com/shinji-kodama/votedeploy/internal/chain"
	"github.com/shinji-kodama/votedeploy/internal/deploy"
	"github.com/shinji-kodama/votedeploy/internal/journal"
	"github.com/shinji-kodama/votedeploy/internal/model"
	"github.com/shinji-kodama/votedeploy/internal/project"
)

type deployFlags struct {
	network      string
	deploymentID string
	reset        bool
	dryRun       bool
}

// NewDeployCommand creates the "deploy" command.
func NewDeployCommand() *cobra.Command {
	flags := &deployFlags{}

	cmd := &cobra.Command{
		Use:   "deploy [module]",
		Short: "Deploy a module to a network",
		Long: `Deploy a module to a network.

The module's futures are executed in dependency order. Each step is
recorded in ignition/deployments/<deployment-id>/journal.jsonl, so a deploy
that fails part way can be re-run and continues where it stopped. The
in-process "hardhat" network keeps its journal in memory.

Examples:
  # Deploy SecureVotingModule to the in-process chain
  votedeploy deploy

  # Deploy to a running node
  votedeploy deploy --network localhost

  # Start over, discarding the recorded deployment
  votedeploy deploy --network localhost --reset`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd.Context(), moduleRef(args), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.network, "network", "n", project.InProcessNetwork, "Target network")
	cmd.Flags().StringVar(&flags.deploymentID, "deployment-id", "", "Deployment ID (default: chain-<chainId>)")
	cmd.Flags().BoolVar(&flags.reset, "reset", false, "Discard the journal and deploy from scratch")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Show the plan without sending transactions")
	return cmd
}

func runDeploy(ctx context.Context, ref string, flags *deployFlags) error {
	if flags.dryRun {
		return runModulePlan(ref, &modulePlanFlags{network: flags.network, deploymentID: flags.deploymentID})
	}

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

	j, err := openJournal(env.Root, flags.deploymentID, network, flags.reset)
	if err != nil {
		return err
	}

	VerboseLog("Connecting to network %s (chain %d)", name, network.ChainID)
	client, err := chain.Dial(ctx, name, network, chain.Options{
		PrivateKey:     current.PrivateKey,
		ReceiptTimeout: current.ReceiptTimeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()
	if client.InProcess() {
		logger.WithField("network", name).Info("deploying to an in-process chain; its state is discarded when the command exits")
	}

	res, runErr := deploy.NewExecutor(client, store, j, logger).Run(ctx, m)
	if res != nil {
		printDeployResult(res, j)
	}
	return runErr
}

// openJournal returns the journal for a deployment. In-process networks
// get an in-memory journal since their chain state does not outlive the
// command.
func openJournal(root, deploymentID string, network model.Network, reset bool) (*journal.Journal, error) {
	if network.InProcess() {
		return journal.NewMemory(), nil
	}

	dir := journal.Dir(root, deploymentID, network.ChainID)
	j, err := journal.Open(dir)
	if err != nil {
		return nil, err
	}
	if reset {
		VerboseLog("Resetting deployment %s", dir)
		if err := j.Reset(); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func printDeployResult(res *deploy.Result, j *journal.Journal) {
	if IsJSONOutput() {
		out := map[string]any{
			"moduleId":  res.ModuleID,
			"network":   res.Network,
			"chainId":   res.ChainID,
			"futures":   res.Futures,
			"contracts": res.Contracts,
		}
		if !j.InMemory() {
			out["journal"] = j.Path()
		}
		printJSON(out)
		return
	}

	fmt.Printf("Deploying %s to %s (chain %d)\n\n", res.ModuleID, res.Network, res.ChainID)
	for _, f := range res.Futures {
		fmt.Printf("  %-8s %s\n", statusLabel(f.Status), f.ID)
		switch {
		case f.Error != "":
			fmt.Printf("           error: %s\n", f.Error)
		case f.Address != "":
			fmt.Printf("           address: %s\n", f.Address)
		case f.Result != "":
			fmt.Printf("           result: %s\n", f.Result)
		}
	}

	if len(res.Contracts) > 0 {
		fmt.Println("\nDeployed addresses:")
		names := make([]string, 0, len(res.Contracts))
		for name := range res.Contracts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s: %s\n", name, res.Contracts[name])
		}
	}
	if !j.InMemory() {
		fmt.Printf("\nJournal: %s\n", j.Path())
	}
}

func statusLabel(s model.FutureStatus) string {
	switch s {
	case model.StatusSuccess:
		return "[done]"
	case model.StatusSkipped:
		return "[skip]"
	case model.StatusFailed:
		return "[fail]"
	default:
		return "[wait]"
	}
}
