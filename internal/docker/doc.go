// Package docker runs local development nodes in Docker containers.
//
// It wraps the Docker Engine SDK client with socket discovery, and manages
// node containers through labels: every container carries the node's
// network, chain ID, port and project, so the set of running nodes is
// always derived from Docker itself and nothing is stored elsewhere.
//
// A node is a single container running anvil from the Foundry image. It
// publishes its JSON-RPC port on the loopback interface so that a config
// network such as localhost (http://127.0.0.1:8545) can reach it. Node
// containers are named votedeploy-<network>, so there is at most one node
// per network.
package docker
