package services

import (
	"context"
	"errors"
	"time"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/ports"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
	"github.com/dpatel76/SynapseDTE2-sub001/pkg/uuidv7"
)

// VersionManager owns the version lifecycle. Every transition is a
// compare-and-set against the observed status; a lost race surfaces as
// ErrTransitionConflict, never as a double transition.
type VersionManager struct {
	store     ports.WorkflowStore
	decisions *DecisionService
	nowUTC    func() time.Time
	newID     func() (string, error)
}

func NewVersionManager(store ports.WorkflowStore, decisions *DecisionService, nowUTC func() time.Time) *VersionManager {
	if nowUTC == nil {
		nowUTC = func() time.Time { return time.Now().UTC() }
	}
	return &VersionManager{
		store:     store,
		decisions: decisions,
		nowUTC:    nowUTC,
		newID:     uuidv7.NewString,
	}
}

// StartReviewCycle registers the item catalog for a scope and opens version 1
// as Draft. A scope with an open version cannot start another cycle.
func (m *VersionManager) StartReviewCycle(ctx context.Context, tenantID string, scope types.Scope, items []types.Item) (types.DecisionVersion, error) {
	if len(items) == 0 {
		return types.DecisionVersion{}, types.ErrItemsRequired
	}
	latest, ok, err := m.store.LatestVersion(ctx, tenantID, scope)
	if err != nil {
		return types.DecisionVersion{}, err
	}
	if ok && !latest.Status.Terminal() {
		return types.DecisionVersion{}, types.ErrOpenVersionExists
	}

	id, err := m.newID()
	if err != nil {
		return types.DecisionVersion{}, err
	}
	v := types.DecisionVersion{
		VersionID:     id,
		Scope:         scope,
		VersionNumber: latest.VersionNumber + 1,
		Status:        types.VersionDraft,
		CreatedAt:     m.nowUTC(),
	}
	if err := m.store.InsertVersion(ctx, tenantID, v); err != nil {
		return types.DecisionVersion{}, err
	}
	// The catalog is snapshotted under the new version id; earlier versions
	// of this scope keep the catalog they were decided under.
	if err := m.store.RegisterItems(ctx, tenantID, v.VersionID, items); err != nil {
		return types.DecisionVersion{}, err
	}
	return v, nil
}

// Get returns a version by id, or ErrVersionNotFound.
func (m *VersionManager) Get(ctx context.Context, tenantID string, versionID string) (types.DecisionVersion, error) {
	return m.store.GetVersion(ctx, tenantID, versionID)
}

// Submit freezes tester decisions and hands the version to the report owner.
// Every non-locked item must carry an explicit Include/Exclude first.
func (m *VersionManager) Submit(ctx context.Context, tenantID string, versionID string, notes string) (types.DecisionVersion, error) {
	rows, err := m.decisions.ListDecisions(ctx, tenantID, versionID)
	if err != nil {
		return types.DecisionVersion{}, err
	}
	for _, rec := range rows {
		if rec.IsLocked {
			continue
		}
		if !rec.Tester.Decided() {
			return types.DecisionVersion{}, types.ErrIncompleteDecisions
		}
	}
	return m.store.TransitionVersion(ctx, tenantID, versionID, types.VersionDraft, types.VersionSubmitted, m.nowUTC(), notes)
}

// Approve resolves a submitted version as accepted.
func (m *VersionManager) Approve(ctx context.Context, tenantID string, versionID string, notes string) (types.DecisionVersion, error) {
	return m.resolve(ctx, tenantID, versionID, types.VersionApproved, notes)
}

// Reject resolves a submitted version as declined.
func (m *VersionManager) Reject(ctx context.Context, tenantID string, versionID string, reason string) (types.DecisionVersion, error) {
	return m.resolve(ctx, tenantID, versionID, types.VersionRejected, reason)
}

// RequestRevision resolves a submitted version as needing tester rework.
func (m *VersionManager) RequestRevision(ctx context.Context, tenantID string, versionID string, reason string) (types.DecisionVersion, error) {
	return m.resolve(ctx, tenantID, versionID, types.VersionNeedsRevision, reason)
}

func (m *VersionManager) resolve(ctx context.Context, tenantID string, versionID string, to types.VersionStatus, notes string) (types.DecisionVersion, error) {
	v, err := m.store.TransitionVersion(ctx, tenantID, versionID, types.VersionSubmitted, to, m.nowUTC(), notes)
	if errors.Is(err, types.ErrTransitionConflict) {
		// Report the precondition failure, not the race, when the version
		// was never submitted.
		cur, getErr := m.store.GetVersion(ctx, tenantID, versionID)
		if getErr == nil && cur.Status == types.VersionDraft {
			return types.DecisionVersion{}, types.ErrVersionNotSubmitted
		}
		return types.DecisionVersion{}, types.ErrTransitionConflict
	}
	return v, err
}

// CreateResubmission opens a successor Draft seeded with the predecessor's
// tester decisions, so the tester edits deltas instead of starting over.
// Report-owner decisions reset to pending: the new round is reviewed afresh.
func (m *VersionManager) CreateResubmission(ctx context.Context, tenantID string, versionID string) (types.DecisionVersion, error) {
	prior, err := m.store.GetVersion(ctx, tenantID, versionID)
	if err != nil {
		return types.DecisionVersion{}, err
	}
	if !prior.Status.Revisable() {
		return types.DecisionVersion{}, types.ErrVersionNotRevisable
	}
	latest, ok, err := m.store.LatestVersion(ctx, tenantID, prior.Scope)
	if err != nil {
		return types.DecisionVersion{}, err
	}
	if ok && !latest.Status.Terminal() {
		return types.DecisionVersion{}, types.ErrOpenVersionExists
	}
	if ok && latest.VersionID != prior.VersionID {
		// A successor was already created and resolved; resubmit from the
		// latest version instead.
		return types.DecisionVersion{}, types.ErrVersionNotRevisable
	}

	id, err := m.newID()
	if err != nil {
		return types.DecisionVersion{}, err
	}
	next := types.DecisionVersion{
		VersionID:     id,
		Scope:         prior.Scope,
		VersionNumber: prior.VersionNumber + 1,
		Status:        types.VersionDraft,
		CreatedAt:     m.nowUTC(),
		PredecessorID: prior.VersionID,
	}
	if err := m.store.InsertVersion(ctx, tenantID, next); err != nil {
		return types.DecisionVersion{}, err
	}

	items, err := m.store.VersionItems(ctx, tenantID, prior.VersionID)
	if err != nil {
		return types.DecisionVersion{}, err
	}
	if err := m.store.RegisterItems(ctx, tenantID, next.VersionID, items); err != nil {
		return types.DecisionVersion{}, err
	}

	rows, err := m.store.ListDecisionRows(ctx, tenantID, prior.VersionID)
	if err != nil {
		return types.DecisionVersion{}, err
	}
	for _, rec := range rows {
		rec.VersionID = next.VersionID
		rec.Owner = types.OwnerPending
		rec.OwnerNotes = ""
		rec.OwnerDecidedAt = nil
		if _, err := m.store.UpsertDecision(ctx, tenantID, rec); err != nil {
			return types.DecisionVersion{}, err
		}
	}
	return next, nil
}

// ListVersions returns the scope's history, newest first, each version
// carrying the tester-decision diff against its predecessor.
func (m *VersionManager) ListVersions(ctx context.Context, tenantID string, scope types.Scope) ([]types.VersionSummary, error) {
	versions, err := m.store.ListVersions(ctx, tenantID, scope)
	if err != nil {
		return nil, err
	}
	out := make([]types.VersionSummary, 0, len(versions))
	for _, v := range versions {
		summary := types.VersionSummary{DecisionVersion: v}
		if v.PredecessorID != "" {
			deltas, err := m.diffAgainstPredecessor(ctx, tenantID, v)
			if err != nil {
				return nil, err
			}
			summary.ChangesFromPrevious = deltas
		}
		out = append(out, summary)
	}
	return out, nil
}

func (m *VersionManager) diffAgainstPredecessor(ctx context.Context, tenantID string, v types.DecisionVersion) ([]types.DecisionDelta, error) {
	current, err := m.decisions.ListDecisions(ctx, tenantID, v.VersionID)
	if err != nil {
		return nil, err
	}
	previous, err := m.decisions.ListDecisions(ctx, tenantID, v.PredecessorID)
	if err != nil {
		return nil, err
	}
	prevByItem := make(map[string]types.TesterDecision, len(previous))
	for _, rec := range previous {
		prevByItem[rec.ItemID] = rec.Tester
	}

	deltas := make([]types.DecisionDelta, 0)
	for _, rec := range current {
		prev, ok := prevByItem[rec.ItemID]
		if !ok {
			prev = types.TesterPending
		}
		if rec.Tester != prev {
			deltas = append(deltas, types.DecisionDelta{ItemID: rec.ItemID, Previous: prev, Current: rec.Tester})
		}
	}
	return deltas, nil
}
