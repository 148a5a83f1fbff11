package docker

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/errdefs"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// DefaultNodeImage is the image used for development nodes.
const DefaultNodeImage = "ghcr.io/foundry-rs/foundry:latest"

// ContainerName returns the container name of the node for a network.
func ContainerName(network string) string {
	return "votedeploy-" + network
}

// PortFromURL extracts the JSON-RPC port of a network served on the local
// machine. Only loopback hosts can be backed by a local node.
func PortFromURL(rawURL string) (int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("invalid network URL %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return 0, fmt.Errorf("network URL %s is not on this machine; a local node can only serve localhost", rawURL)
		}
	}
	if u.Port() == "" {
		return 0, fmt.Errorf("network URL %s has no port", rawURL)
	}
	return strconv.Atoi(u.Port())
}

// BuildRunArgs returns the "docker run" arguments that start a node. The
// Foundry image runs its command through a shell, so the anvil invocation
// is passed as a single argument.
func BuildRunArgs(node *model.NodeInfo) []string {
	args := []string{"run", "-d", "--name", ContainerName(node.Network)}
	args = append(args, LabelArgs(BuildLabels(node))...)
	args = append(args,
		"-p", fmt.Sprintf("127.0.0.1:%d:%d", node.Port, node.Port),
		node.Image,
		fmt.Sprintf("anvil --host 0.0.0.0 --port %d --chain-id %d", node.Port, node.ChainID),
	)
	return args
}

// RunNode starts a node container with "docker run -d". The CLI is used
// rather than ContainerCreate so that a missing image is pulled with the
// user's registry credentials.
func RunNode(ctx context.Context, node *model.NodeInfo) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", BuildRunArgs(node)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("docker run failed for node %q: %s",
				ContainerName(node.Network), strings.TrimSpace(string(output))),
			err,
		)
	}
	// docker run -d prints the container ID as its last line.
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

// ListNodes returns every managed node container, running or not, sorted
// by network name.
func ListNodes(ctx context.Context, cli *Client) ([]model.NodeInfo, error) {
	filterArgs := filters.NewArgs()
	for k, v := range FilterLabels() {
		filterArgs.Add("label", k+"="+v)
	}

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	nodes := make([]model.NodeInfo, 0, len(containers))
	for _, c := range containers {
		node, err := summaryToNode(c)
		if err != nil {
			// Containers with damaged labels are not ours to manage.
			continue
		}
		nodes = append(nodes, *node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Network < nodes[j].Network })
	return nodes, nil
}

func summaryToNode(c container.Summary) (*model.NodeInfo, error) {
	node, err := ParseLabels(c.Labels)
	if err != nil {
		return nil, err
	}
	node.ContainerID = c.ID
	if len(c.Names) > 0 {
		node.ContainerName = strings.TrimPrefix(c.Names[0], "/")
	}
	node.Status = containerStatus(c.State)
	return node, nil
}

func containerStatus(state string) model.NodeStatus {
	if state == "running" {
		return model.NodeRunning
	}
	return model.NodeStopped
}

// FindNode returns the node serving network.
func FindNode(nodes []model.NodeInfo, network string) (*model.NodeInfo, bool) {
	for i := range nodes {
		if nodes[i].Network == network {
			return &nodes[i], true
		}
	}
	return nil, false
}

// StartNode restarts a stopped node container.
func StartNode(ctx context.Context, cli *Client, containerID string) error {
	if err := cli.Inner().ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to start container %q", containerID),
			err,
		)
	}
	return nil
}

// StopNode stops a node container, giving anvil the daemon's default
// grace period.
func StopNode(ctx context.Context, cli *Client, containerID string) error {
	if err := cli.Inner().ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to stop container %q", containerID),
			err,
		)
	}
	return nil
}

// RemoveNode removes a node container. A running container is only
// removed when force is set. Removing a container that no longer exists
// is not an error.
func RemoveNode(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.Inner().ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force})
	if err != nil && !errdefs.IsNotFound(err) {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}
