package ignition

import (
	"fmt"
	"sort"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// SecureVotingModuleID is the ID of the built-in voting module.
const SecureVotingModuleID = "SecureVotingModule"

// SecureVoting builds the SecureVotingModule: deploy SecureVoting with no
// constructor arguments (its voting period is fixed inside the contract),
// then read back the voting end time and the initial results as a sanity
// check of the fresh instance.
func SecureVoting() (*Module, error) {
	b := NewBuilder(SecureVotingModuleID)

	secureVoting := b.Contract("SecureVoting", []model.Arg{})

	b.StaticCall(secureVoting, "votingEndTime", []model.Arg{},
		WithID("SecureVoting_checkVotingEndTime"))

	b.StaticCall(secureVoting, "getResults", []model.Arg{},
		WithID("SecureVoting_checkInitialResults"))

	b.Return("secureVoting", secureVoting)

	return b.Build()
}

// Registry maps module IDs to the Go functions that build them.
type Registry struct {
	builders map[string]func() (*Module, error)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]func() (*Module, error))}
}

// DefaultRegistry returns a registry holding the built-in modules.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(SecureVotingModuleID, SecureVoting)
	return r
}

// Register adds or replaces a module builder.
func (r *Registry) Register(id string, build func() (*Module, error)) {
	r.builders[id] = build
}

// Get builds the module registered under id.
func (r *Registry) Get(id string) (*Module, error) {
	build, ok := r.builders[id]
	if !ok {
		return nil, model.NewCLIError(
			model.ExitInvalidModule,
			fmt.Sprintf("unknown module %q (built-in: %v)", id, r.IDs()),
		)
	}
	return build()
}

// IDs returns the registered module IDs, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.builders))
	for id := range r.builders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
