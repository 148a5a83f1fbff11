// Package artifact reads compiled contract artifacts from the project's
// artifacts directory and checks deployment futures against their ABIs.
//
// Artifacts use the Hardhat layout: one JSON file per contract at
// <artifacts>/<sourceName>/<ContractName>.json carrying the ABI and the
// creation bytecode. Debug files (*.dbg.json) and the build-info directory
// are ignored. ABIs are parsed with go-ethereum's accounts/abi package and
// parsed artifacts are kept in an LRU cache, since a module typically
// touches the same contract once per future.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// Format is the artifact format tag written by the compiler pipeline.
const Format = "hh-sol-artifact-1"

// defaultCacheSize bounds the number of parsed artifacts kept in memory.
const defaultCacheSize = 128

// Artifact is a parsed contract artifact.
type Artifact struct {
	Format           string          `json:"_format"`
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	RawABI           json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`

	// LinkReferences maps source → library → placeholder offsets. A
	// non-empty map means the bytecode still contains library placeholders.
	LinkReferences map[string]map[string]json.RawMessage `json:"linkReferences"`

	// Path is the file the artifact was read from.
	Path string `json:"-"`

	// ABI is the parsed form of RawABI.
	ABI abi.ABI `json:"-"`
}

// Code returns the creation bytecode. Abstract contracts and interfaces
// have empty bytecode and cannot be deployed.
func (a *Artifact) Code() ([]byte, error) {
	if a.Bytecode == "" || a.Bytecode == "0x" {
		return nil, fmt.Errorf("contract %s has no bytecode (abstract contract or interface?)", a.ContractName)
	}
	code, err := hexutil.Decode(a.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("contract %s: invalid bytecode: %w", a.ContractName, err)
	}
	return code, nil
}

// Parse decodes and checks artifact JSON.
func Parse(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("invalid artifact JSON: %w", err)
	}
	if a.ContractName == "" {
		return nil, errors.New("artifact has no contractName")
	}
	if a.Format != "" && a.Format != Format {
		return nil, fmt.Errorf("unsupported artifact format %q (want %q)", a.Format, Format)
	}
	if len(a.LinkReferences) > 0 {
		return nil, fmt.Errorf("contract %s links external libraries, which is not supported", a.ContractName)
	}
	if len(a.RawABI) == 0 {
		return nil, fmt.Errorf("contract %s: artifact has no abi", a.ContractName)
	}
	parsed, err := abi.JSON(bytes.NewReader(a.RawABI))
	if err != nil {
		return nil, fmt.Errorf("contract %s: invalid abi: %w", a.ContractName, err)
	}
	a.ABI = parsed
	return &a, nil
}

// Store locates and caches artifacts below one artifacts directory.
type Store struct {
	root  string
	cache *lru.Cache[string, *Artifact]
}

// NewStore creates a Store rooted at the artifacts directory.
func NewStore(root string) (*Store, error) {
	cache, err := lru.New[string, *Artifact](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact cache: %w", err)
	}
	return &Store{root: root, cache: cache}, nil
}

// Root returns the artifacts directory.
func (s *Store) Root() string {
	return s.root
}

// Load reads the artifact at path, using the cache when possible.
func (s *Store) Load(path string) (*Artifact, error) {
	if a, ok := s.cache.Get(path); ok {
		return a, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitArtifactNotFound, fmt.Sprintf("failed to read artifact %s", path), err)
	}
	a, err := Parse(data)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitArtifactNotFound, fmt.Sprintf("failed to load artifact %s", path), err)
	}
	a.Path = path
	s.cache.Add(path, a)
	return a, nil
}

// Find locates the artifact for a contract name by walking the artifacts
// directory. The name must be unique across sources.
func (s *Store) Find(contractName string) (*Artifact, error) {
	key := "name:" + contractName
	if a, ok := s.cache.Get(key); ok {
		return a, nil
	}

	target := contractName + ".json"
	var matches []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == target && !strings.HasSuffix(d.Name(), ".dbg.json") {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitArtifactNotFound,
			fmt.Sprintf("cannot read artifacts directory %s (did you compile the contracts?)", s.root),
			err,
		)
	}

	switch len(matches) {
	case 0:
		return nil, model.NewCLIError(
			model.ExitArtifactNotFound,
			fmt.Sprintf("artifact for contract %s not found under %s", contractName, s.root),
		)
	case 1:
	default:
		return nil, model.NewCLIError(
			model.ExitArtifactNotFound,
			fmt.Sprintf("contract name %s is ambiguous: %s", contractName, strings.Join(matches, ", ")),
		)
	}

	a, err := s.Load(matches[0])
	if err != nil {
		return nil, err
	}
	if a.ContractName != contractName {
		return nil, model.NewCLIError(
			model.ExitArtifactNotFound,
			fmt.Sprintf("artifact %s declares contract %s, expected %s", matches[0], a.ContractName, contractName),
		)
	}
	s.cache.Add(key, a)
	return a, nil
}

// CheckConstructor verifies that the contract is deployable and that its
// constructor takes nargs arguments.
func CheckConstructor(a *Artifact, nargs int) error {
	if _, err := a.Code(); err != nil {
		return err
	}
	if want := len(a.ABI.Constructor.Inputs); want != nargs {
		return fmt.Errorf("constructor of %s takes %d argument(s), got %d", a.ContractName, want, nargs)
	}
	return nil
}

// CheckMethod verifies that the contract has method name taking nargs
// arguments. Static calls may only target view or pure functions.
func CheckMethod(a *Artifact, name string, nargs int, static bool) error {
	method, ok := a.ABI.Methods[name]
	if !ok {
		return fmt.Errorf("contract %s has no method %q", a.ContractName, name)
	}
	if len(method.Inputs) != nargs {
		return fmt.Errorf("method %s.%s takes %d argument(s), got %d", a.ContractName, name, len(method.Inputs), nargs)
	}
	if static && !method.IsConstant() {
		return fmt.Errorf("static call to %s.%s, which is %s (expected view or pure)", a.ContractName, name, method.StateMutability)
	}
	return nil
}

// CheckFuture applies CheckConstructor or CheckMethod according to the
// future's kind.
func CheckFuture(a *Artifact, f *model.Future) error {
	var err error
	switch f.Kind {
	case model.KindContract:
		err = CheckConstructor(a, len(f.Args))
	case model.KindCall, model.KindStaticCall:
		err = CheckMethod(a, f.Method, len(f.Args), f.Kind == model.KindStaticCall)
	default:
		err = fmt.Errorf("unsupported future kind %q", f.Kind)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", f.ID, err)
	}
	return nil
}

// Inputs returns the ABI arguments a future's Args must be converted to.
func Inputs(a *Artifact, f *model.Future) abi.Arguments {
	if f.Kind == model.KindContract {
		return a.ABI.Constructor.Inputs
	}
	return a.ABI.Methods[f.Method].Inputs
}
