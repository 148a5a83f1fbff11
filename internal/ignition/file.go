package ignition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// moduleFile is the YAML shape of a module definition:
//
//	id: SecureVotingModule
//	contracts:
//	  - name: SecureVoting
//	    args: []
//	calls:
//	  - contract: SecureVoting
//	    method: votingEndTime
//	    args: []
//	    id: SecureVoting_checkVotingEndTime
//	    static: true
//	results:
//	  secureVoting: SecureVoting
//
// Calls and argument references name contracts by their local ID: the
// explicit id when given, otherwise the contract name.
type moduleFile struct {
	ID        string            `yaml:"id"`
	Contracts []contractEntry   `yaml:"contracts"`
	Calls     []callEntry       `yaml:"calls"`
	Results   map[string]string `yaml:"results"`
}

type contractEntry struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id,omitempty"`
	Args []any  `yaml:"args"`
}

type callEntry struct {
	Contract string `yaml:"contract"`
	Method   string `yaml:"method"`
	ID       string `yaml:"id,omitempty"`
	Args     []any  `yaml:"args"`
	Static   bool   `yaml:"static,omitempty"`
}

// IsModuleFile reports whether ref looks like a path to a module file
// rather than the ID of a built-in module.
func IsModuleFile(ref string) bool {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return strings.ContainsRune(ref, filepath.Separator)
}

// LoadModule reads and validates a YAML or JSON module file.
func LoadModule(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(model.ExitInvalidModule, fmt.Sprintf("module file not found: %s", path), err)
		}
		return nil, fmt.Errorf("failed to read module file: %w", err)
	}
	m, err := ParseModule(data)
	if err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			return nil, err
		}
		return nil, model.WrapCLIError(model.ExitInvalidModule, fmt.Sprintf("failed to parse module file %s", path), err)
	}
	return m, nil
}

// ParseModule decodes a module definition and builds it with the Builder,
// so files and Go modules produce identical futures. JSON is accepted as
// the YAML flow form.
func ParseModule(data []byte) (*Module, error) {
	var mf moduleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&mf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("module file is empty")
		}
		return nil, err
	}

	b := NewBuilder(mf.ID)
	local := make(map[string]string, len(mf.Contracts))

	// Contracts are declared first so calls and references can resolve
	// local IDs regardless of their position in the file.
	for _, c := range mf.Contracts {
		localID := c.Name
		var opts []Option
		if c.ID != "" {
			localID = c.ID
			opts = append(opts, WithID(c.ID))
		}
		if _, dup := local[localID]; dup {
			return nil, fmt.Errorf("contract %q declared twice", localID)
		}
		local[localID] = ""
		args, err := convertFileArgs(mf.ID, c.Args, local)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", localID, err)
		}
		local[localID] = b.Contract(c.Name, args, opts...)
	}

	for _, c := range mf.Calls {
		target, ok := local[c.Contract]
		if !ok {
			return nil, fmt.Errorf("call %s: unknown contract %q", c.Method, c.Contract)
		}
		args, err := convertFileArgs(mf.ID, c.Args, local)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", c.Method, err)
		}
		var opts []Option
		if c.ID != "" {
			opts = append(opts, WithID(c.ID))
		}
		if c.Static {
			b.StaticCall(target, c.Method, args, opts...)
		} else {
			b.Call(target, c.Method, args, opts...)
		}
	}

	for name, localID := range mf.Results {
		target, ok := local[localID]
		if !ok {
			return nil, fmt.Errorf("result %s: unknown contract %q", name, localID)
		}
		b.Return(name, target)
	}

	return b.Build()
}

// convertFileArgs turns YAML argument values into model.Args. A mapping
// with a single "ref" key becomes a reference; a reference to a contract
// declared later in the file is resolved to its (not yet built) future ID
// so the planner can order it.
func convertFileArgs(moduleID string, raw []any, local map[string]string) ([]model.Arg, error) {
	args := make([]model.Arg, 0, len(raw))
	for i, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			args = append(args, Value(v))
			continue
		}
		ref, ok := m["ref"].(string)
		if !ok || len(m) != 1 {
			return nil, fmt.Errorf("argument %d: mappings must have exactly one string key \"ref\"", i)
		}
		if id := local[ref]; id != "" {
			args = append(args, Ref(id))
			continue
		}
		// Forward or self reference: assume the default contract future ID.
		args = append(args, Ref(ContractFutureID(moduleID, ref)))
	}
	return args, nil
}
