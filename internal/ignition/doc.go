// Package ignition describes deployment modules: named, declarative units
// that list which contracts to instantiate and which calls to make against
// them once they are deployed.
//
// A module is a flat list of futures. A contract future deploys one contract
// with a constructor argument list; a call future targets a contract future
// by ID and invokes a method, either as a transaction (call) or as a
// read-only eth_call (staticCall). Arguments are literals or references to
// the address of another contract future.
//
// Future IDs follow a fixed convention so that journals stay readable and
// stable across runs:
//
//	Module#Contract          contract future
//	Module#Contract.method   call future without an explicit id
//	Module#explicitId        any future given an explicit id
//
// Modules come from the Go Builder API (see SecureVoting) or from YAML
// files loaded with LoadModule.
package ignition
