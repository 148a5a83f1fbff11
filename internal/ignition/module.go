package ignition

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// Module is a validated deployment module.
type Module struct {
	// ID is the module name, e.g. "SecureVotingModule".
	ID string `json:"id"`

	// Futures are kept in declaration order. Plan derives the execution order.
	Futures []model.Future `json:"futures"`

	// Results maps a result name to the contract future it exposes.
	Results map[string]string `json:"results"`
}

// Future returns the future with the given ID.
func (m *Module) Future(id string) (*model.Future, bool) {
	for i := range m.Futures {
		if m.Futures[i].ID == id {
			return &m.Futures[i], true
		}
	}
	return nil, false
}

// Contracts returns the contract futures in declaration order.
func (m *Module) Contracts() []model.Future {
	return m.filter(func(f *model.Future) bool { return f.Kind == model.KindContract })
}

// Calls returns the call and static call futures in declaration order.
func (m *Module) Calls() []model.Future {
	return m.filter(func(f *model.Future) bool { return f.Kind.IsCall() })
}

func (m *Module) filter(keep func(*model.Future) bool) []model.Future {
	var out []model.Future
	for i := range m.Futures {
		if keep(&m.Futures[i]) {
			out = append(out, m.Futures[i])
		}
	}
	return out
}

// ResultNames returns the result names, sorted.
func (m *Module) ResultNames() []string {
	names := make([]string, 0, len(m.Results))
	for name := range m.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ContractFutureID builds the ID of a contract future.
func ContractFutureID(moduleID, contractName string) string {
	return moduleID + "#" + contractName
}

// CallFutureID builds the default ID of a call future.
func CallFutureID(moduleID, contractName, method string) string {
	return moduleID + "#" + contractName + "." + method
}

// ExplicitFutureID builds the ID of a future given an explicit id option.
func ExplicitFutureID(moduleID, id string) string {
	return moduleID + "#" + id
}

// Value wraps a literal argument.
func Value(v any) model.Arg {
	return model.Arg{Value: v}
}

// Ref wraps a reference to the deployed address of a contract future.
func Ref(futureID string) model.Arg {
	return model.Arg{Ref: futureID}
}

// Option customizes a future created by the Builder.
type Option func(*futureOptions)

type futureOptions struct {
	id string
}

// WithID gives a future an explicit ID, replacing the default
// Contract or Contract.method suffix.
func WithID(id string) Option {
	return func(o *futureOptions) { o.id = id }
}

// Builder assembles a Module. Errors are collected and reported by Build,
// so module definitions read as a straight list of declarations.
type Builder struct {
	id      string
	futures []model.Future
	results map[string]string
	errs    []error
}

// NewBuilder starts a module with the given ID.
func NewBuilder(moduleID string) *Builder {
	return &Builder{id: moduleID, results: make(map[string]string)}
}

// Contract declares a contract deployment and returns its future ID. A nil
// args slice is recorded as an empty argument list.
func (b *Builder) Contract(name string, args []model.Arg, opts ...Option) string {
	o := applyOptions(opts)
	id := ContractFutureID(b.id, name)
	if o.id != "" {
		if err := model.ValidateIdentifier("future id", o.id); err != nil {
			b.errs = append(b.errs, err)
		}
		id = ExplicitFutureID(b.id, o.id)
	}
	b.futures = append(b.futures, model.Future{
		ID:           id,
		Kind:         model.KindContract,
		ContractName: name,
		Args:         normalizeArgs(args),
	})
	return id
}

// Call declares a state-changing call against a deployed contract.
func (b *Builder) Call(contractID, method string, args []model.Arg, opts ...Option) string {
	return b.addCall(model.KindCall, contractID, method, args, opts)
}

// StaticCall declares a read-only call against a deployed contract.
func (b *Builder) StaticCall(contractID, method string, args []model.Arg, opts ...Option) string {
	return b.addCall(model.KindStaticCall, contractID, method, args, opts)
}

func (b *Builder) addCall(kind model.FutureKind, contractID, method string, args []model.Arg, opts []Option) string {
	o := applyOptions(opts)

	target, ok := b.find(contractID)
	if !ok || target.Kind != model.KindContract {
		b.errs = append(b.errs, fmt.Errorf("%s %q: target %q is not a contract future of module %s", kind, method, contractID, b.id))
		return ""
	}

	id := CallFutureID(b.id, target.ContractName, method)
	if o.id != "" {
		if err := model.ValidateIdentifier("future id", o.id); err != nil {
			b.errs = append(b.errs, err)
		}
		id = ExplicitFutureID(b.id, o.id)
	}
	b.futures = append(b.futures, model.Future{
		ID:           id,
		Kind:         kind,
		ContractName: target.ContractName,
		Contract:     contractID,
		Method:       method,
		Args:         normalizeArgs(args),
	})
	return id
}

// Return exposes a contract future under a result name.
func (b *Builder) Return(name, futureID string) {
	b.results[name] = futureID
}

// Build validates and returns the module.
func (b *Builder) Build() (*Module, error) {
	if len(b.errs) > 0 {
		return nil, model.WrapCLIError(
			model.ExitInvalidModule,
			fmt.Sprintf("module %s is invalid", b.id),
			errors.Join(b.errs...),
		)
	}
	m := &Module{ID: b.id, Futures: b.futures, Results: b.results}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (b *Builder) find(id string) (*model.Future, bool) {
	for i := range b.futures {
		if b.futures[i].ID == id {
			return &b.futures[i], true
		}
	}
	return nil, false
}

func applyOptions(opts []Option) futureOptions {
	var o futureOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func normalizeArgs(args []model.Arg) []model.Arg {
	if args == nil {
		return []model.Arg{}
	}
	out := make([]model.Arg, len(args))
	copy(out, args)
	return out
}
