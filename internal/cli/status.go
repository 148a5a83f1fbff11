package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/votedeploy/internal/journal"
	"github.com/shinji-kodama/votedeploy/internal/model"
	"github.com/shinji-kodama/votedeploy/internal/project"
)

type statusFlags struct {
	network      string
	deploymentID string
}

// NewStatusCommand creates the "status" command.
func NewStatusCommand() *cobra.Command {
	flags := &statusFlags{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded state of a deployment",
		Long: `Show the state of every future recorded in a deployment's journal and the
addresses of the deployed contracts. The network is not contacted.

Examples:
  votedeploy status --network localhost
  votedeploy status --deployment-id staging-1 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.network, "network", "n", project.LocalhostNetwork, "Network of the deployment")
	cmd.Flags().StringVar(&flags.deploymentID, "deployment-id", "", "Deployment ID (default: chain-<chainId>)")
	return cmd
}

// deploymentStatus is the status command's output.
type deploymentStatus struct {
	Network     string                `json:"network"`
	ChainID     uint64                `json:"chainId"`
	Path        string                `json:"path"`
	Futures     []journal.FutureState `json:"futures"`
	Addresses   map[string]string     `json:"addresses"`
	Incomplete  int                   `json:"incomplete"`
	HasDeployed bool                  `json:"hasDeployed"`
}

func runStatus(flags *statusFlags) error {
	env, err := loadProject()
	if err != nil {
		return err
	}

	name := networkName()
	network, err := project.ResolveNetwork(env.Config, name)
	if err != nil {
		return err
	}
	if network.InProcess() {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("network %s runs in-process and keeps no deployment state", name))
	}

	dir := journal.Dir(env.Root, flags.deploymentID, network.ChainID)
	j, err := journal.Open(dir)
	if err != nil {
		return err
	}
	addrs, err := journal.LoadAddresses(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if addrs == nil {
		addrs = map[string]string{}
	}

	st := &deploymentStatus{
		Network:   name,
		ChainID:   network.ChainID,
		Path:      dir,
		Futures:   j.States(),
		Addresses: addrs,
	}
	for _, s := range st.Futures {
		if s.Status != model.StatusSuccess {
			st.Incomplete++
		}
	}
	st.HasDeployed = len(st.Futures) > 0

	printStatus(st)
	return nil
}

func printStatus(st *deploymentStatus) {
	if IsJSONOutput() {
		printJSON(st)
		return
	}

	if !st.HasDeployed {
		fmt.Printf("No deployment recorded for %s (chain %d) in %s\n", st.Network, st.ChainID, st.Path)
		return
	}

	fmt.Printf("Deployment %s (chain %d)\n\n", st.Path, st.ChainID)
	fmt.Printf("%-45s %-10s %s\n", "FUTURE", "STATUS", "DETAIL")
	fmt.Printf("%-45s %-10s %s\n", strings.Repeat("-", 45), strings.Repeat("-", 10), strings.Repeat("-", 20))
	for _, s := range st.Futures {
		fmt.Printf("%-45s %-10s %s\n", s.FutureID, s.Status, stateDetail(s))
	}

	if len(st.Addresses) > 0 {
		fmt.Println("\nDeployed addresses:")
		ids := make([]string, 0, len(st.Addresses))
		for id := range st.Addresses {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("  %s: %s\n", id, st.Addresses[id])
		}
	}
	if st.Incomplete > 0 {
		fmt.Printf("\n%d future(s) not completed; run deploy again to resume.\n", st.Incomplete)
	}
}

func stateDetail(s journal.FutureState) string {
	switch {
	case s.Last.Error != "":
		return s.Last.Error
	case s.Last.Address != "":
		return s.Last.Address
	case s.Last.Result != "":
		return "= " + s.Last.Result
	case s.Last.TxHash != "":
		return s.Last.TxHash
	}
	return ""
}
