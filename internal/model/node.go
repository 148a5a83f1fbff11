package model

import "time"

// NodeStatus is the state of a local development node container.
type NodeStatus string

const (
	// NodeRunning means the node container is up and serving JSON-RPC.
	NodeRunning NodeStatus = "running"

	// NodeStopped means the container exists but is not running.
	NodeStopped NodeStatus = "stopped"
)

// String returns the string representation of the NodeStatus.
func (s NodeStatus) String() string {
	return string(s)
}

// NodeInfo describes a local development node started by votedeploy.
// All fields except ContainerID and Status are recovered from the
// container's labels, so no state is kept outside Docker.
type NodeInfo struct {
	// Network is the config network the node serves, e.g. "localhost".
	Network string `json:"network"`

	// ChainID is the chain ID the node was started with.
	ChainID uint64 `json:"chainId"`

	// Port is the host port the JSON-RPC endpoint is published on.
	Port int `json:"port"`

	// ProjectRoot is the directory of the project that started the node.
	ProjectRoot string `json:"projectRoot"`

	// Image is the container image the node runs.
	Image string `json:"image"`

	// CreatedAt is when the node was started.
	CreatedAt time.Time `json:"createdAt"`

	ContainerID   string     `json:"containerId,omitempty"`
	ContainerName string     `json:"containerName,omitempty"`
	Status        NodeStatus `json:"status,omitempty"`
}
