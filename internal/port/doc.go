// Package port checks whether the JSON-RPC port of a local development
// node can be bound before a node container is started, and suggests a
// free alternative when it cannot.
package port
