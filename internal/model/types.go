package model

import (
	"fmt"
	"regexp"
	"strings"
)

// PathRole names one of the logical directory roles of a project.
// Each role maps to exactly one filesystem path in ProjectConfig.Paths.
type PathRole string

const (
	// RoleSources is the directory holding contract sources.
	RoleSources PathRole = "sources"

	// RoleArtifacts is the directory where the compiler writes artifacts.
	// The deploy command reads contract ABIs and bytecode from here.
	RoleArtifacts PathRole = "artifacts"

	// RoleCache is the compiler cache directory.
	RoleCache PathRole = "cache"

	// RoleTests is the directory holding contract tests.
	RoleTests PathRole = "tests"
)

// AllPathRoles lists every path role in a stable order. Validation and
// output code iterate over this slice instead of the Paths struct fields.
var AllPathRoles = []PathRole{RoleArtifacts, RoleSources, RoleCache, RoleTests}

// String returns the string representation of PathRole.
func (r PathRole) String() string {
	return string(r)
}

// IsValid checks whether the PathRole value is one of the predefined roles.
func (r PathRole) IsValid() bool {
	switch r {
	case RoleSources, RoleArtifacts, RoleCache, RoleTests:
		return true
	default:
		return false
	}
}

// ParsePathRole converts a string to a PathRole.
// Returns an error if the string does not match any valid role.
func ParsePathRole(s string) (PathRole, error) {
	role := PathRole(strings.ToLower(s))
	if !role.IsValid() {
		return "", fmt.Errorf("invalid path role: %q (valid: artifacts, sources, cache, tests)", s)
	}
	return role, nil
}

// ProjectConfig is the static configuration record of a contract project.
// It is read once per command invocation and never mutated afterwards.
type ProjectConfig struct {
	// Solidity selects the compiler version the artifacts were built with.
	Solidity SolidityConfig `json:"solidity" yaml:"solidity"`

	// Networks maps a network name (e.g. "localhost") to its endpoint.
	Networks map[string]Network `json:"networks" yaml:"networks"`

	// Paths maps each directory role to a path relative to the project root.
	Paths Paths `json:"paths" yaml:"paths"`
}

// SolidityConfig holds the compiler selection. In the config file it may
// be written as a bare version string or as an object with settings.
type SolidityConfig struct {
	// Version is the solc version, e.g. "0.8.28".
	Version string `json:"version" yaml:"version"`

	// Optimizer is only set when the object form carried optimizer settings.
	Optimizer *OptimizerSettings `json:"optimizer,omitempty" yaml:"optimizer,omitempty"`
}

// OptimizerSettings mirrors the solc optimizer block.
type OptimizerSettings struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Runs    int  `json:"runs" yaml:"runs"`
}

// Network describes one named chain endpoint.
type Network struct {
	// URL is the JSON-RPC endpoint. Empty means the chain runs in-process
	// for the lifetime of a single command.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// ChainID guards against sending transactions to the wrong chain.
	ChainID uint64 `json:"chainId" yaml:"chainId"`
}

// InProcess reports whether the network has no RPC endpoint and is
// simulated inside the CLI process.
func (n Network) InProcess() bool {
	return n.URL == ""
}

// Paths maps the directory roles to filesystem paths.
type Paths struct {
	Artifacts string `json:"artifacts" yaml:"artifacts"`
	Sources   string `json:"sources" yaml:"sources"`
	Cache     string `json:"cache" yaml:"cache"`
	Tests     string `json:"tests" yaml:"tests"`
}

// Get returns the path configured for a role, or "" for an unknown role.
func (p Paths) Get(role PathRole) string {
	switch role {
	case RoleArtifacts:
		return p.Artifacts
	case RoleSources:
		return p.Sources
	case RoleCache:
		return p.Cache
	case RoleTests:
		return p.Tests
	default:
		return ""
	}
}

// FutureKind classifies a deployment step.
type FutureKind string

const (
	// KindContract deploys a contract instance.
	KindContract FutureKind = "contract"

	// KindCall sends a state-changing transaction to a deployed contract.
	KindCall FutureKind = "call"

	// KindStaticCall performs a read-only eth_call against a deployed contract.
	KindStaticCall FutureKind = "staticCall"
)

// String returns the string representation of FutureKind.
func (k FutureKind) String() string {
	return string(k)
}

// IsValid checks whether the FutureKind value is one of the predefined kinds.
func (k FutureKind) IsValid() bool {
	switch k {
	case KindContract, KindCall, KindStaticCall:
		return true
	default:
		return false
	}
}

// IsCall returns true for both transaction calls and static calls.
func (k FutureKind) IsCall() bool {
	return k == KindCall || k == KindStaticCall
}

// ParseFutureKind converts a string to a FutureKind. Matching is exact
// except for case, so "staticcall" and "staticCall" are both accepted.
func ParseFutureKind(s string) (FutureKind, error) {
	for _, k := range []FutureKind{KindContract, KindCall, KindStaticCall} {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("invalid future kind: %q (valid: contract, call, staticCall)", s)
}

// FutureStatus is the execution state of a single future.
type FutureStatus string

const (
	StatusPending FutureStatus = "pending"
	StatusSuccess FutureStatus = "success"
	StatusFailed  FutureStatus = "failed"

	// StatusSkipped marks a future that already completed in a previous
	// run recorded in the deployment journal.
	StatusSkipped FutureStatus = "skipped"
)

// String returns the string representation of FutureStatus.
func (s FutureStatus) String() string {
	return string(s)
}

// Arg is a single constructor or call argument. Exactly one of Value or
// Ref is meaningful: when Ref is non-empty the argument resolves to the
// deployed address of the contract future with that ID.
type Arg struct {
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
	Ref   string `json:"ref,omitempty" yaml:"ref,omitempty"`
}

// IsRef reports whether the argument refers to another future.
func (a Arg) IsRef() bool {
	return a.Ref != ""
}

// String renders the argument for plans and journal entries.
func (a Arg) String() string {
	if a.IsRef() {
		return "@" + a.Ref
	}
	return fmt.Sprintf("%v", a.Value)
}

// Future is one step of a deployment module.
type Future struct {
	// ID is the fully qualified future ID, e.g. "SecureVotingModule#SecureVoting".
	ID string `json:"id"`

	Kind FutureKind `json:"kind"`

	// ContractName is the artifact name. For calls it is copied from the
	// target contract future so that ABI lookups need no extra resolution.
	ContractName string `json:"contractName"`

	// Contract is the target contract future ID. Only set for calls.
	Contract string `json:"contract,omitempty"`

	// Method is the function name. Only set for calls.
	Method string `json:"method,omitempty"`

	// Args is the ordered argument list. An empty (non-nil) slice is an
	// explicit "no arguments".
	Args []Arg `json:"args"`
}

// Dependencies returns the IDs of the futures this future must wait for:
// the target contract for calls, plus every referenced argument.
func (f *Future) Dependencies() []string {
	var deps []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			deps = append(deps, id)
		}
	}
	add(f.Contract)
	for _, a := range f.Args {
		add(a.Ref)
	}
	return deps
}

// ArgsString renders the argument list as "[a, b]".
func (f *Future) ArgsString() string {
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// identifierRegex validates module IDs, network names and explicit future
// IDs: a leading letter followed by letters, digits, underscores or hyphens.
var identifierRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ValidateIdentifier checks a module ID, network name or user-supplied
// future ID. The kind argument only feeds the error message.
func ValidateIdentifier(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s must not be empty", kind)
	}
	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid %s %q: must start with a letter and contain only letters, digits, '_' or '-'", kind, id)
	}
	return nil
}

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigNotFound indicates no project config file was found.
	ExitConfigNotFound ExitCode = 2

	// ExitInvalidConfig indicates the project config failed to parse or validate.
	ExitInvalidConfig ExitCode = 3

	// ExitInvalidModule indicates the deployment module is malformed.
	ExitInvalidModule ExitCode = 4

	// ExitArtifactNotFound indicates a compiled artifact is missing or unusable.
	ExitArtifactNotFound ExitCode = 5

	// ExitChainUnreachable indicates the RPC endpoint could not be reached.
	ExitChainUnreachable ExitCode = 6

	// ExitChainIDMismatch indicates the endpoint reported an unexpected chain ID.
	ExitChainIDMismatch ExitCode = 7

	// ExitDeploymentFailed indicates a future reverted or could not be sent.
	ExitDeploymentFailed ExitCode = 8

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 9

	// ExitPortUnavailable indicates the local node port is already bound.
	ExitPortUnavailable ExitCode = 10
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
