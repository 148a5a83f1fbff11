package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/votedeploy/internal/chain"
	"github.com/shinji-kodama/votedeploy/internal/docker"
	"github.com/shinji-kodama/votedeploy/internal/model"
	"github.com/shinji-kodama/votedeploy/internal/port"
	"github.com/shinji-kodama/votedeploy/internal/project"
)

const (
	nodeReadyTimeout  = 30 * time.Second
	nodeReadyInterval = 500 * time.Millisecond
)

// NewNodeCommand creates the "node" command group.
func NewNodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Manage local development nodes in Docker",
		Long: `Manage local development nodes.

A node is an anvil container serving a network from the project config
whose URL points at this machine, such as localhost (http://127.0.0.1:8545).
The container is started with the network's chain ID and port.`,
	}
	cmd.AddCommand(newNodeStartCommand())
	cmd.AddCommand(newNodeStopCommand())
	cmd.AddCommand(newNodeListCommand())
	cmd.AddCommand(newNodeRemoveCommand())
	return cmd
}

// connectDocker creates a Docker client and checks that the daemon answers.
func connectDocker(ctx context.Context) (*docker.Client, error) {
	cli, err := docker.NewClient()
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, err
	}
	return cli, nil
}

type nodeStartFlags struct {
	network string
	image   string
}

func newNodeStartCommand() *cobra.Command {
	flags := &nodeStartFlags{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the node for a network",
		Long: `Start the node serving a network. A stopped node is restarted; a running
node is left alone.

Examples:
  votedeploy node start
  votedeploy node start --network staging --image ghcr.io/foundry-rs/foundry:nightly`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNodeStart(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.network, "network", "n", project.LocalhostNetwork, "Network to serve")
	cmd.Flags().StringVar(&flags.image, "image", docker.DefaultNodeImage, "Node container image")
	return cmd
}

func runNodeStart(ctx context.Context, flags *nodeStartFlags) error {
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
			fmt.Sprintf("network %s runs in-process and needs no node", name))
	}
	nodePort, err := docker.PortFromURL(network.URL)
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidConfig, fmt.Sprintf("network %s cannot be served by a local node", name), err)
	}

	cli, err := connectDocker(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	nodes, err := docker.ListNodes(ctx, cli)
	if err != nil {
		return err
	}

	node, exists := docker.FindNode(nodes, name)
	switch {
	case exists && node.Status == model.NodeRunning:
		VerboseLog("Node %s is already running", node.ContainerName)
	case exists:
		if node.ChainID != network.ChainID || node.Port != nodePort {
			return model.NewCLIError(model.ExitGeneralError, fmt.Sprintf(
				"node %s was created for chain %d on port %d but the config now says chain %d on port %d; remove it with \"votedeploy node rm --network %s\"",
				node.ContainerName, node.ChainID, node.Port, network.ChainID, nodePort, name))
		}
		if err := port.NewScanner().CheckNodePort(nodePort); err != nil {
			return err
		}
		VerboseLog("Restarting node %s", node.ContainerName)
		if err := docker.StartNode(ctx, cli, node.ContainerID); err != nil {
			return err
		}
		node.Status = model.NodeRunning
	default:
		if err := port.NewScanner().CheckNodePort(nodePort); err != nil {
			return err
		}
		node = &model.NodeInfo{
			Network:     name,
			ChainID:     network.ChainID,
			Port:        nodePort,
			ProjectRoot: env.Root,
			Image:       flags.image,
			CreatedAt:   time.Now().UTC(),
		}
		VerboseLog("Starting node %s from %s", docker.ContainerName(name), flags.image)
		id, err := docker.RunNode(ctx, node)
		if err != nil {
			return err
		}
		node.ContainerID = id
		node.ContainerName = docker.ContainerName(name)
		node.Status = model.NodeRunning
	}

	if err := waitForNode(ctx, name, network); err != nil {
		return err
	}
	printNodeStarted(node, network.URL)
	return nil
}

// waitForNode polls the node's JSON-RPC endpoint until it answers with the
// expected chain ID.
func waitForNode(ctx context.Context, name string, network model.Network) error {
	ctx, cancel := context.WithTimeout(ctx, nodeReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(nodeReadyInterval)
	defer ticker.Stop()

	for {
		c, err := chain.Dial(ctx, name, network, chain.Options{Logger: logger})
		if err == nil {
			c.Close()
			return nil
		}
		VerboseLog("Waiting for node: %v", err)

		select {
		case <-ctx.Done():
			return model.WrapCLIError(model.ExitChainUnreachable,
				fmt.Sprintf("node for %s did not become ready at %s", name, network.URL), err)
		case <-ticker.C:
		}
	}
}

func printNodeStarted(node *model.NodeInfo, url string) {
	if IsJSONOutput() {
		printJSON(map[string]any{"node": node, "url": url})
		return
	}
	fmt.Printf("Node %s is running\n", node.ContainerName)
	fmt.Printf("  Network:  %s\n", node.Network)
	fmt.Printf("  Chain ID: %d\n", node.ChainID)
	fmt.Printf("  URL:      %s\n", url)
	fmt.Printf("  Image:    %s\n", node.Image)
}

// findNodeFor returns the node serving network, or a CLIError when there is
// none.
func findNodeFor(ctx context.Context, cli *docker.Client, network string) (*model.NodeInfo, error) {
	nodes, err := docker.ListNodes(ctx, cli)
	if err != nil {
		return nil, err
	}
	node, ok := docker.FindNode(nodes, network)
	if !ok {
		return nil, model.NewCLIError(model.ExitGeneralError, fmt.Sprintf("no node found for network %q", network))
	}
	return node, nil
}

type nodeStopFlags struct {
	network string
}

func newNodeStopCommand() *cobra.Command {
	flags := &nodeStopFlags{}

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the node for a network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNodeStop(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVarP(&flags.network, "network", "n", project.LocalhostNetwork, "Network served by the node")
	return cmd
}

func runNodeStop(ctx context.Context, _ *nodeStopFlags) error {
	cli, err := connectDocker(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	node, err := findNodeFor(ctx, cli, networkName())
	if err != nil {
		return err
	}
	if node.Status == model.NodeRunning {
		VerboseLog("Stopping %s", node.ContainerName)
		if err := docker.StopNode(ctx, cli, node.ContainerID); err != nil {
			return err
		}
	}

	if IsJSONOutput() {
		printJSON(map[string]any{"network": node.Network, "containerName": node.ContainerName, "status": model.NodeStopped})
		return nil
	}
	fmt.Printf("Node %s stopped\n", node.ContainerName)
	return nil
}

func newNodeListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List local development nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNodeList(cmd.Context())
		},
	}
}

func runNodeList(ctx context.Context) error {
	cli, err := connectDocker(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	nodes, err := docker.ListNodes(ctx, cli)
	if err != nil {
		return err
	}
	printNodeList(nodes)
	return nil
}

func printNodeList(nodes []model.NodeInfo) {
	if IsJSONOutput() {
		if nodes == nil {
			nodes = []model.NodeInfo{}
		}
		printJSON(map[string]any{"nodes": nodes})
		return
	}

	if len(nodes) == 0 {
		fmt.Println("No nodes found.")
		return
	}

	fmt.Printf("%-14s %-10s %-9s %-6s %s\n", "NETWORK", "STATUS", "CHAIN", "PORT", "PROJECT")
	fmt.Printf("%-14s %-10s %-9s %-6s %s\n",
		strings.Repeat("-", 14), strings.Repeat("-", 10), strings.Repeat("-", 9), strings.Repeat("-", 6), strings.Repeat("-", 20))
	for _, n := range nodes {
		fmt.Printf("%-14s %-10s %-9d %-6d %s\n", n.Network, n.Status, n.ChainID, n.Port, n.ProjectRoot)
	}
}

type nodeRemoveFlags struct {
	network string
	force   bool
}

func newNodeRemoveCommand() *cobra.Command {
	flags := &nodeRemoveFlags{}

	cmd := &cobra.Command{
		Use:     "rm",
		Aliases: []string{"remove"},
		Short:   "Remove the node for a network",
		Long: `Remove the node container for a network. A running node is only removed
with --force. Deployment journals are kept; reset them with "deploy --reset".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNodeRemove(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVarP(&flags.network, "network", "n", project.LocalhostNetwork, "Network served by the node")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Remove even if the node is running")
	return cmd
}

func runNodeRemove(ctx context.Context, flags *nodeRemoveFlags) error {
	cli, err := connectDocker(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	node, err := findNodeFor(ctx, cli, networkName())
	if err != nil {
		return err
	}
	if node.Status == model.NodeRunning && !flags.force {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("node %s is running; stop it first or use --force", node.ContainerName))
	}

	VerboseLog("Removing %s", node.ContainerName)
	if err := docker.RemoveNode(ctx, cli, node.ContainerID, flags.force); err != nil {
		return err
	}

	if IsJSONOutput() {
		printJSON(map[string]any{"network": node.Network, "containerName": node.ContainerName, "removed": true})
		return nil
	}
	fmt.Printf("Node %s removed\n", node.ContainerName)
	return nil
}
