package services

import (
	"context"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/ports"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
)

// Reconciler compares the tester and report-owner decision sets of a
// submitted version. It is a pure read: calling it twice without intervening
// writes yields the same result.
type Reconciler struct {
	store     ports.WorkflowStore
	decisions *DecisionService
}

func NewReconciler(store ports.WorkflowStore, decisions *DecisionService) *Reconciler {
	return &Reconciler{store: store, decisions: decisions}
}

// Reconcile classifies every non-locked item as agreed, mismatched, or
// undecided. Locked items auto-agree: their inclusion was never negotiable.
// AllAgree holds only when nothing is undecided and nothing mismatches, so a
// partially-reviewed version can never auto-resolve.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID string, versionID string) (types.ReconciliationResult, error) {
	version, err := r.store.GetVersion(ctx, tenantID, versionID)
	if err != nil {
		return types.ReconciliationResult{}, err
	}
	if version.Status != types.VersionSubmitted {
		return types.ReconciliationResult{}, types.ErrVersionNotSubmitted
	}

	rows, err := r.decisions.ListDecisions(ctx, tenantID, versionID)
	if err != nil {
		return types.ReconciliationResult{}, err
	}

	result := types.ReconciliationResult{
		VersionID:      versionID,
		Mismatches:     make([]types.Mismatch, 0),
		UndecidedItems: make([]string, 0),
	}
	for _, rec := range rows {
		if rec.IsLocked {
			continue
		}
		if !rec.Owner.Decided() {
			result.UndecidedItems = append(result.UndecidedItems, rec.ItemID)
			continue
		}
		if !rec.Owner.AgreesWith(rec.Tester) {
			result.Mismatches = append(result.Mismatches, types.Mismatch{
				ItemID: rec.ItemID,
				Tester: rec.Tester,
				Owner:  rec.Owner,
			})
		}
	}
	result.AllAgree = len(result.UndecidedItems) == 0 && len(result.Mismatches) == 0
	return result, nil
}
