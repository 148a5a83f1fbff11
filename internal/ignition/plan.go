package ignition

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// contractNameRegex matches Solidity contract identifiers.
var contractNameRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Validate checks the structural invariants of a module:
//   - the module ID is an identifier and the module has at least one future
//   - future IDs are unique and prefixed with "<module>#"
//   - contract futures name a valid contract and carry no call fields
//   - call futures target an existing contract future and name a method
//   - argument references point at contract futures
//   - results point at contract futures
//   - the dependency graph has no cycles
//
// All problems are reported together in one CLIError with ExitInvalidModule.
func Validate(m *Module) error {
	var errs []error

	if err := model.ValidateIdentifier("module id", m.ID); err != nil {
		errs = append(errs, err)
	}
	if len(m.Futures) == 0 {
		errs = append(errs, errors.New("module declares no futures"))
	}

	kinds := make(map[string]model.FutureKind, len(m.Futures))
	names := make(map[string]string, len(m.Futures))
	prefix := m.ID + "#"
	for i := range m.Futures {
		f := &m.Futures[i]
		if _, dup := kinds[f.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate future id %q", f.ID))
			continue
		}
		kinds[f.ID] = f.Kind
		names[f.ID] = f.ContractName
		if !strings.HasPrefix(f.ID, prefix) || len(f.ID) == len(prefix) {
			errs = append(errs, fmt.Errorf("future id %q must start with %q", f.ID, prefix))
		}
		if !f.Kind.IsValid() {
			errs = append(errs, fmt.Errorf("future %q: invalid kind %q", f.ID, f.Kind))
		}
		if !contractNameRegex.MatchString(f.ContractName) {
			errs = append(errs, fmt.Errorf("future %q: invalid contract name %q", f.ID, f.ContractName))
		}
		if f.Args == nil {
			errs = append(errs, fmt.Errorf("future %q: argument list must be present (use an empty list)", f.ID))
		}
	}

	for i := range m.Futures {
		f := &m.Futures[i]
		switch {
		case f.Kind == model.KindContract:
			if f.Contract != "" || f.Method != "" {
				errs = append(errs, fmt.Errorf("contract future %q must not set a target or method", f.ID))
			}
		case f.Kind.IsCall():
			if f.Method == "" {
				errs = append(errs, fmt.Errorf("%s future %q has no method", f.Kind, f.ID))
			}
			if kind, ok := kinds[f.Contract]; !ok || kind != model.KindContract {
				errs = append(errs, fmt.Errorf("%s future %q targets unknown contract future %q", f.Kind, f.ID, f.Contract))
			} else if names[f.Contract] != f.ContractName {
				errs = append(errs, fmt.Errorf("%s future %q: contract name %q does not match target %q", f.Kind, f.ID, f.ContractName, names[f.Contract]))
			}
		}
		for j, a := range f.Args {
			if !a.IsRef() {
				continue
			}
			if kind, ok := kinds[a.Ref]; !ok || kind != model.KindContract {
				errs = append(errs, fmt.Errorf("future %q argument %d references unknown contract future %q", f.ID, j, a.Ref))
			}
		}
	}

	for _, name := range m.ResultNames() {
		if err := model.ValidateIdentifier("result name", name); err != nil {
			errs = append(errs, err)
		}
		target := m.Results[name]
		if kind, ok := kinds[target]; !ok || kind != model.KindContract {
			errs = append(errs, fmt.Errorf("result %q references unknown contract future %q", name, target))
		}
	}

	if len(errs) == 0 {
		if _, err := Plan(m); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return model.WrapCLIError(
			model.ExitInvalidModule,
			fmt.Sprintf("module %s is invalid", m.ID),
			errors.Join(errs...),
		)
	}
	return nil
}

// Plan returns the futures in execution order. A future becomes ready once
// all of its dependencies are placed; among ready futures the one declared
// first goes next, so the order is deterministic and, for modules without
// forward references, identical to declaration order.
func Plan(m *Module) ([]model.Future, error) {
	placed := make(map[string]bool, len(m.Futures))
	order := make([]model.Future, 0, len(m.Futures))

	for len(order) < len(m.Futures) {
		progressed := false
		for i := range m.Futures {
			f := &m.Futures[i]
			if placed[f.ID] || !ready(f, placed) {
				continue
			}
			placed[f.ID] = true
			order = append(order, *f)
			progressed = true
			break
		}
		if !progressed {
			var stuck []string
			for i := range m.Futures {
				if !placed[m.Futures[i].ID] {
					stuck = append(stuck, m.Futures[i].ID)
				}
			}
			return nil, fmt.Errorf("dependency cycle or missing dependency among futures: %s", strings.Join(stuck, ", "))
		}
	}
	return order, nil
}

func ready(f *model.Future, placed map[string]bool) bool {
	for _, dep := range f.Dependencies() {
		if !placed[dep] {
			return false
		}
	}
	return true
}
