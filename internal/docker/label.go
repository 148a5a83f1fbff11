package docker

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// Label keys written on every node container. Together they carry the
// complete NodeInfo, so listing nodes needs nothing but the Docker API.
const (
	// LabelPrefix namespaces all votedeploy labels.
	LabelPrefix = "votedeploy."

	// LabelManagedBy identifies containers created by this tool.
	LabelManagedBy = LabelPrefix + "managed-by"

	LabelNetwork     = LabelPrefix + "network"
	LabelChainID     = LabelPrefix + "chain-id"
	LabelPort        = LabelPrefix + "port"
	LabelProjectRoot = LabelPrefix + "project-root"
	LabelImage       = LabelPrefix + "image"
	LabelCreatedAt   = LabelPrefix + "created-at"
)

// ManagedByValue is the value of LabelManagedBy.
const ManagedByValue = "votedeploy"

// BuildLabels converts a NodeInfo into container labels.
func BuildLabels(node *model.NodeInfo) map[string]string {
	return map[string]string{
		LabelManagedBy:   ManagedByValue,
		LabelNetwork:     node.Network,
		LabelChainID:     strconv.FormatUint(node.ChainID, 10),
		LabelPort:        strconv.Itoa(node.Port),
		LabelProjectRoot: node.ProjectRoot,
		LabelImage:       node.Image,
		LabelCreatedAt:   node.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels rebuilds a NodeInfo from container labels. ContainerID,
// ContainerName and Status are left for the caller to fill in.
func ParseLabels(labels map[string]string) (*model.NodeInfo, error) {
	required := []string{
		LabelManagedBy,
		LabelNetwork,
		LabelChainID,
		LabelPort,
		LabelProjectRoot,
		LabelImage,
		LabelCreatedAt,
	}
	var missing []string
	for _, key := range required {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	chainID, err := strconv.ParseUint(labels[LabelChainID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelChainID, err)
	}
	port, err := strconv.Atoi(labels[LabelPort])
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid label %s: %q is not a port", LabelPort, labels[LabelPort])
	}
	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return &model.NodeInfo{
		Network:     labels[LabelNetwork],
		ChainID:     chainID,
		Port:        port,
		ProjectRoot: labels[LabelProjectRoot],
		Image:       labels[LabelImage],
		CreatedAt:   createdAt,
	}, nil
}

// LabelArgs renders labels as "docker run" flags in a stable order.
func LabelArgs(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, "--label", k+"="+labels[k])
	}
	return args
}

// FilterLabels returns the label filter that matches managed containers.
func FilterLabels() map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
	}
}
