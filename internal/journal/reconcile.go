package journal

import (
	"fmt"
	"strings"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// Reconciliation is the outcome of comparing a plan with the journal.
type Reconciliation struct {
	// Completed holds the success entries of futures that will be skipped.
	Completed map[string]Entry

	// Pending lists the futures that still need to run, in plan order.
	Pending []model.Future

	// Orphans are journaled futures that no longer appear in the module.
	Orphans []string
}

// Reconcile decides which futures of plan still have to run. A future that
// already succeeded is skipped. A future that succeeded with a different
// definition cannot be redeployed in place and is reported as an error;
// the caller can Reset the journal to start over.
func (j *Journal) Reconcile(plan []model.Future) (*Reconciliation, error) {
	states := j.States()
	byID := make(map[string]FutureState, len(states))
	for _, s := range states {
		byID[s.FutureID] = s
	}

	rec := &Reconciliation{Completed: make(map[string]Entry)}
	inPlan := make(map[string]bool, len(plan))
	var changed []string

	for i := range plan {
		f := &plan[i]
		inPlan[f.ID] = true

		s, ok := byID[f.ID]
		if !ok || s.Status != model.StatusSuccess {
			rec.Pending = append(rec.Pending, *f)
			continue
		}
		if !s.Last.Matches(f) {
			changed = append(changed, fmt.Sprintf(
				"%s (was %s %s%s %s, now %s %s%s %s)",
				f.ID,
				s.Last.Kind, s.Last.ContractName, methodSuffix(s.Last.Method), s.Last.Args,
				f.Kind, f.ContractName, methodSuffix(f.Method), f.ArgsString(),
			))
			continue
		}
		rec.Completed[f.ID] = s.Last
	}

	for _, s := range states {
		if !inPlan[s.FutureID] {
			rec.Orphans = append(rec.Orphans, s.FutureID)
		}
	}

	if len(changed) > 0 {
		return nil, model.NewCLIError(
			model.ExitDeploymentFailed,
			fmt.Sprintf("futures changed since they were executed: %s; rerun with --reset to start a fresh deployment",
				strings.Join(changed, "; ")),
		)
	}
	return rec, nil
}

func methodSuffix(method string) string {
	if method == "" {
		return ""
	}
	return "." + method
}
