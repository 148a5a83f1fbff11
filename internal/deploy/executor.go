// Package deploy executes deployment modules.
//
// An Executor takes a validated module, checks every future against its
// compiled artifact before sending anything, reconciles the plan with the
// deployment journal, and then runs the remaining futures one by one in
// plan order: contracts are deployed, calls are sent as transactions and
// static calls are evaluated with eth_call. Each step is journaled before
// and after it runs.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/shinji-kodama/votedeploy/internal/artifact"
	"github.com/shinji-kodama/votedeploy/internal/chain"
	"github.com/shinji-kodama/votedeploy/internal/ignition"
	"github.com/shinji-kodama/votedeploy/internal/journal"
	"github.com/shinji-kodama/votedeploy/internal/model"
)

// Chain is the network access the executor needs. *chain.Client
// implements it.
type Chain interface {
	Network() string
	ChainID() uint64
	Deploy(ctx context.Context, a *artifact.Artifact, args []any) (*chain.TxResult, error)
	Transact(ctx context.Context, a *artifact.Artifact, addr common.Address, method string, args []any) (*chain.TxResult, error)
	StaticCall(ctx context.Context, a *artifact.Artifact, addr common.Address, method string, args []any) ([]any, error)

	// HasCode reports whether a contract exists at addr. It guards resumed
	// deployments against a chain that was reset since the journal was
	// written.
	HasCode(ctx context.Context, addr common.Address) (bool, error)
}

// FutureResult reports what happened to one future.
type FutureResult struct {
	ID      string             `json:"id"`
	Kind    model.FutureKind   `json:"kind"`
	Status  model.FutureStatus `json:"status"`
	Address string             `json:"address,omitempty"`
	TxHash  string             `json:"txHash,omitempty"`
	Result  string             `json:"result,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Result summarizes a deployment run.
type Result struct {
	ModuleID string         `json:"moduleId"`
	Network  string         `json:"network"`
	ChainID  uint64         `json:"chainId"`
	Futures  []FutureResult `json:"futures"`

	// Contracts maps the module's result names to deployed addresses.
	Contracts map[string]string `json:"contracts"`
}

// Executor runs modules against one chain.
type Executor struct {
	chain     Chain
	artifacts *artifact.Store
	journal   *journal.Journal
	log       logrus.FieldLogger
}

// NewExecutor creates an Executor. A nil logger means the logrus standard
// logger.
func NewExecutor(c Chain, artifacts *artifact.Store, j *journal.Journal, log logrus.FieldLogger) *Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{chain: c, artifacts: artifacts, journal: j, log: log}
}

// Run deploys the module. On failure the returned Result still lists the
// futures that completed, and the error is a CLIError.
//
// Run works in this order:
//  1. Plan the module into dependency order.
//  2. Check every future's artifact and ABI, so a missing contract is
//     reported before anything is sent.
//  3. Reconcile the plan with the journal, and make sure every contract the
//     journal says is deployed still has code on the chain.
//  4. Execute the remaining futures one at a time, journaling each outcome
//     before moving on. The first failure stops the run.
func (e *Executor) Run(ctx context.Context, m *ignition.Module) (*Result, error) {
	plan, err := ignition.Plan(m)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidModule, fmt.Sprintf("module %s cannot be planned", m.ID), err)
	}

	arts, err := CheckArtifacts(e.artifacts, plan)
	if err != nil {
		return nil, err
	}

	rec, err := e.journal.Reconcile(plan)
	if err != nil {
		return nil, err
	}
	for _, id := range rec.Orphans {
		e.log.WithField("future", id).Warn("journaled future is no longer part of the module")
	}
	if err := e.verifyCompleted(ctx, plan, rec); err != nil {
		return nil, err
	}

	log := e.log.WithFields(logrus.Fields{
		"module":  m.ID,
		"network": e.chain.Network(),
		"chainId": e.chain.ChainID(),
	})
	log.WithField("futures", len(plan)).Info("starting deployment")

	res := &Result{
		ModuleID:  m.ID,
		Network:   e.chain.Network(),
		ChainID:   e.chain.ChainID(),
		Contracts: make(map[string]string),
	}
	addresses := e.journal.Addresses()

	for i := range plan {
		f := &plan[i]
		flog := log.WithFields(logrus.Fields{"future": f.ID, "kind": f.Kind})

		if done, ok := rec.Completed[f.ID]; ok {
			flog.Info("already executed, skipping")
			res.Futures = append(res.Futures, FutureResult{
				ID:      f.ID,
				Kind:    f.Kind,
				Status:  model.StatusSkipped,
				Address: done.Address,
				TxHash:  done.TxHash,
				Result:  done.Result,
			})
			continue
		}

		fr, err := e.execute(ctx, f, arts[f.ContractName], addresses)
		if err != nil {
			flog.WithError(err).Error("future failed")
			fail := journal.NewEntry(journal.EntryFailure, f)
			fail.Error = err.Error()
			if jerr := e.journal.Append(fail); jerr != nil {
				flog.WithError(jerr).Warn("failed to journal failure")
			}
			res.Futures = append(res.Futures, FutureResult{ID: f.ID, Kind: f.Kind, Status: model.StatusFailed, Error: err.Error()})
			return res, model.WrapCLIError(model.ExitDeploymentFailed, fmt.Sprintf("future %s failed", f.ID), err)
		}

		if f.Kind == model.KindContract {
			addresses[f.ID] = fr.Address
		}
		flog.WithFields(logrus.Fields{"address": fr.Address, "tx": fr.TxHash, "result": fr.Result}).Info("future executed")
		res.Futures = append(res.Futures, *fr)
	}

	for name, id := range m.Results {
		res.Contracts[name] = addresses[id]
	}
	log.Info("deployment complete")
	return res, nil
}

// verifyCompleted checks that every journaled contract still has code on
// the chain. A development node that was restarted keeps its chain ID but
// loses its state, and skipping those futures would report contracts that
// do not exist.
func (e *Executor) verifyCompleted(ctx context.Context, plan []model.Future, rec *journal.Reconciliation) error {
	for _, f := range plan {
		done, ok := rec.Completed[f.ID]
		if !ok || f.Kind != model.KindContract {
			continue
		}
		if !common.IsHexAddress(done.Address) {
			return model.NewCLIError(model.ExitDeploymentFailed, fmt.Sprintf(
				"journaled future %s has no valid address %q; rerun with --reset to start a fresh deployment", f.ID, done.Address))
		}
		has, err := e.chain.HasCode(ctx, common.HexToAddress(done.Address))
		if err != nil {
			return model.WrapCLIError(model.ExitChainUnreachable,
				fmt.Sprintf("failed to check contract %s at %s", f.ID, done.Address), err)
		}
		if !has {
			return model.NewCLIError(model.ExitDeploymentFailed, fmt.Sprintf(
				"future %s is journaled at %s but network %s has no contract there (was the chain reset?); rerun with --reset to start a fresh deployment",
				f.ID, done.Address, e.chain.Network()))
		}
	}
	return nil
}

// execute runs one future and journals its start and success.
func (e *Executor) execute(ctx context.Context, f *model.Future, a *artifact.Artifact, addresses map[string]string) (*FutureResult, error) {
	values, err := resolveArgs(f, addresses)
	if err != nil {
		return nil, err
	}
	args, err := artifact.ConvertArgs(artifact.Inputs(a, f), values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.ID, err)
	}

	if err := e.journal.Append(journal.NewEntry(journal.EntryStart, f)); err != nil {
		return nil, err
	}

	fr := &FutureResult{ID: f.ID, Kind: f.Kind, Status: model.StatusSuccess}
	done := journal.NewEntry(journal.EntrySuccess, f)

	switch f.Kind {
	case model.KindContract:
		tx, err := e.chain.Deploy(ctx, a, args)
		if err != nil {
			return nil, err
		}
		fr.Address = tx.Address.Hex()
		fr.TxHash = tx.TxHash.Hex()
		done.BlockNumber = tx.BlockNumber

	case model.KindCall:
		target, err := targetAddress(f, addresses)
		if err != nil {
			return nil, err
		}
		tx, err := e.chain.Transact(ctx, a, target, f.Method, args)
		if err != nil {
			return nil, err
		}
		fr.TxHash = tx.TxHash.Hex()
		done.BlockNumber = tx.BlockNumber

	case model.KindStaticCall:
		target, err := targetAddress(f, addresses)
		if err != nil {
			return nil, err
		}
		out, err := e.chain.StaticCall(ctx, a, target, f.Method, args)
		if err != nil {
			return nil, err
		}
		fr.Result = artifact.FormatValues(out)

	default:
		return nil, fmt.Errorf("unsupported future kind %q", f.Kind)
	}

	done.Address = fr.Address
	done.TxHash = fr.TxHash
	done.Result = fr.Result
	if err := e.journal.Append(done); err != nil {
		return nil, err
	}
	return fr, nil
}

// resolveArgs replaces future references with the deployed addresses.
func resolveArgs(f *model.Future, addresses map[string]string) ([]any, error) {
	values := make([]any, len(f.Args))
	for i, arg := range f.Args {
		if !arg.IsRef() {
			values[i] = arg.Value
			continue
		}
		addr, ok := addresses[arg.Ref]
		if !ok {
			return nil, fmt.Errorf("%s: argument %d references %s, which has not been deployed", f.ID, i, arg.Ref)
		}
		values[i] = common.HexToAddress(addr)
	}
	return values, nil
}

func targetAddress(f *model.Future, addresses map[string]string) (common.Address, error) {
	addr, ok := addresses[f.Contract]
	if !ok {
		return common.Address{}, fmt.Errorf("%s: target %s has not been deployed", f.ID, f.Contract)
	}
	return common.HexToAddress(addr), nil
}

// CheckArtifacts loads the artifact of every future and checks the future
// against its ABI. All problems are reported together.
func CheckArtifacts(store *artifact.Store, plan []model.Future) (map[string]*artifact.Artifact, error) {
	arts := make(map[string]*artifact.Artifact)
	var problems []string
	code := model.ExitInvalidModule

	for i := range plan {
		f := &plan[i]
		a, ok := arts[f.ContractName]
		if !ok {
			var err error
			a, err = store.Find(f.ContractName)
			if err != nil {
				var cliErr *model.CLIError
				if errors.As(err, &cliErr) {
					code = cliErr.Code
				}
				problems = append(problems, err.Error())
				arts[f.ContractName] = nil
				continue
			}
			arts[f.ContractName] = a
		}
		if a == nil {
			continue
		}
		if err := artifact.CheckFuture(a, f); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return nil, model.NewCLIError(code, "artifact check failed:\n  - "+strings.Join(problems, "\n  - "))
	}
	return arts, nil
}

// DryRun reports what Run would do without touching the chain: every
// future is listed with status skipped (already executed) or pending.
// Artifacts are checked when a store is given.
func DryRun(m *ignition.Module, store *artifact.Store, j *journal.Journal) ([]FutureResult, error) {
	plan, err := ignition.Plan(m)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidModule, fmt.Sprintf("module %s cannot be planned", m.ID), err)
	}
	if store != nil {
		if _, err := CheckArtifacts(store, plan); err != nil {
			return nil, err
		}
	}
	if j == nil {
		j = journal.NewMemory()
	}
	rec, err := j.Reconcile(plan)
	if err != nil {
		return nil, err
	}

	out := make([]FutureResult, len(plan))
	for i, f := range plan {
		out[i] = FutureResult{ID: f.ID, Kind: f.Kind, Status: model.StatusPending}
		if done, ok := rec.Completed[f.ID]; ok {
			out[i].Status = model.StatusSkipped
			out[i].Address = done.Address
			out[i].Result = done.Result
		}
	}
	return out, nil
}
