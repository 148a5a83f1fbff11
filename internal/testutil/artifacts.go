// Package testutil provides compiled-contract fixtures shared by package
// tests. The fixtures are tiny hand-assembled contracts whose runtime code
// answers every call with the uint256 value 42, wrapped in Hardhat-style
// artifacts carrying the ABIs the deployment modules expect.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ConstantBytecode is creation code for a contract whose runtime returns
// uint256(42) for any input.
const ConstantBytecode = "0x600a600c600039600a6000f3602a60005260206000f3"

// ConstantRuntime is the runtime part of ConstantBytecode.
const ConstantRuntime = "0x602a60005260206000f3"

// ConstantResult is the value every fixture call returns.
const ConstantResult = "42"

// SecureVotingABI declares the voting contract's read accessors plus one
// state-changing method.
const SecureVotingABI = `[
  {"inputs": [], "stateMutability": "nonpayable", "type": "constructor"},
  {"inputs": [], "name": "votingEndTime", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getResults", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "uint8", "name": "candidate", "type": "uint8"}], "name": "vote", "outputs": [], "stateMutability": "nonpayable", "type": "function"}
]`

// RegistryABI is a registry whose register method takes an address.
const RegistryABI = `[
  {"inputs": [{"internalType": "address", "name": "entry", "type": "address"}, {"internalType": "string", "name": "label", "type": "string"}], "name": "register", "outputs": [], "stateMutability": "nonpayable", "type": "function"}
]`

// BallotABI is a contract whose constructor takes a registry address and a
// duration.
const BallotABI = `[
  {"inputs": [{"internalType": "address", "name": "registry", "type": "address"}, {"internalType": "uint256", "name": "duration", "type": "uint256"}], "stateMutability": "nonpayable", "type": "constructor"}
]`

type hardhatArtifact struct {
	Format           string            `json:"_format"`
	ContractName     string            `json:"contractName"`
	SourceName       string            `json:"sourceName"`
	ABI              json.RawMessage   `json:"abi"`
	Bytecode         string            `json:"bytecode"`
	DeployedBytecode string            `json:"deployedBytecode"`
	LinkReferences   map[string]string `json:"linkReferences"`
}

// WriteArtifact writes <root>/<sourceName>/<contractName>.json together
// with the debug file the compiler emits next to it, and returns the
// artifact path.
func WriteArtifact(t testing.TB, root, sourceName, contractName, abiJSON, bytecode string) string {
	t.Helper()

	dir := filepath.Join(root, sourceName)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	deployed := ConstantRuntime
	if bytecode == "0x" {
		deployed = "0x"
	}
	data, err := json.MarshalIndent(hardhatArtifact{
		Format:           "hh-sol-artifact-1",
		ContractName:     contractName,
		SourceName:       sourceName,
		ABI:              json.RawMessage(abiJSON),
		Bytecode:         bytecode,
		DeployedBytecode: deployed,
		LinkReferences:   map[string]string{},
	}, "", "  ")
	require.NoError(t, err)

	path := filepath.Join(dir, contractName+".json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	dbg := `{"_format": "hh-sol-dbg-1", "buildInfo": "../../build-info/abc.json"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, contractName+".dbg.json"), []byte(dbg), 0o644))
	return path
}

// WriteSecureVotingArtifacts populates an artifacts directory with the
// SecureVoting contract and an unrelated build-info file.
func WriteSecureVotingArtifacts(t testing.TB, root string) {
	t.Helper()
	WriteArtifact(t, root, "contracts/SecureVoting.sol", "SecureVoting", SecureVotingABI, ConstantBytecode)

	buildInfo := filepath.Join(root, "build-info")
	require.NoError(t, os.MkdirAll(buildInfo, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(buildInfo, "abc.json"), []byte(`{"id": "abc"}`), 0o644))
}

// WriteRegistryArtifacts populates an artifacts directory with the Registry
// and Ballot contracts used by module files with cross references.
func WriteRegistryArtifacts(t testing.TB, root string) {
	t.Helper()
	WriteArtifact(t, root, "contracts/Registry.sol", "Registry", RegistryABI, ConstantBytecode)
	WriteArtifact(t, root, "contracts/Ballot.sol", "Ballot", BallotABI, ConstantBytecode)
}
