package services

import (
	"context"
	"time"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/ports"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
)

// DecisionService owns decision-row writes. All invariants live here, above
// the storage port, so the memory, sqlite and postgres backends share one
// enforcement path.
type DecisionService struct {
	store  ports.WorkflowStore
	nowUTC func() time.Time
}

func NewDecisionService(store ports.WorkflowStore, nowUTC func() time.Time) *DecisionService {
	if nowUTC == nil {
		nowUTC = func() time.Time { return time.Now().UTC() }
	}
	return &DecisionService{store: store, nowUTC: nowUTC}
}

// SetTesterDecision records one tester decision. Locked items cannot be
// excluded; writes are allowed only while the version is Draft. Repeating the
// same write is idempotent.
func (s *DecisionService) SetTesterDecision(ctx context.Context, tenantID string, versionID string, itemID string, decision types.TesterDecision, rationale string) (types.AttributeDecision, error) {
	version, err := s.store.GetVersion(ctx, tenantID, versionID)
	if err != nil {
		return types.AttributeDecision{}, err
	}
	if version.Status != types.VersionDraft {
		return types.AttributeDecision{}, types.ErrVersionClosed
	}
	item, err := s.findItem(ctx, tenantID, versionID, itemID)
	if err != nil {
		return types.AttributeDecision{}, err
	}
	if item.IsLocked && decision == types.TesterExclude {
		return types.AttributeDecision{}, types.ErrItemLocked
	}
	if item.IsLocked {
		decision = types.TesterInclude
	}

	rec, ok, err := s.store.GetDecision(ctx, tenantID, versionID, itemID)
	if err != nil {
		return types.AttributeDecision{}, err
	}
	if !ok {
		rec = newPendingRow(versionID, item)
	}
	now := s.nowUTC()
	rec.Tester = decision
	rec.TesterRationale = rationale
	rec.TesterDecidedAt = &now
	return s.store.UpsertDecision(ctx, tenantID, rec)
}

// BulkSetTesterDecision applies one decision to many items. Locked items are
// skipped silently so a select-all action never partially fails; the returned
// slice holds the rows actually written.
func (s *DecisionService) BulkSetTesterDecision(ctx context.Context, tenantID string, versionID string, itemIDs []string, decision types.TesterDecision, rationale string) ([]types.AttributeDecision, error) {
	version, err := s.store.GetVersion(ctx, tenantID, versionID)
	if err != nil {
		return nil, err
	}
	if version.Status != types.VersionDraft {
		return nil, types.ErrVersionClosed
	}

	out := make([]types.AttributeDecision, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		item, err := s.findItem(ctx, tenantID, versionID, itemID)
		if err != nil {
			return nil, err
		}
		if item.IsLocked {
			continue
		}
		rec, err := s.SetTesterDecision(ctx, tenantID, versionID, itemID, decision, rationale)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SetReportOwnerDecision records one report-owner review decision. Allowed
// only while the version is Submitted.
func (s *DecisionService) SetReportOwnerDecision(ctx context.Context, tenantID string, versionID string, itemID string, decision types.OwnerDecision, notes string) (types.AttributeDecision, error) {
	version, err := s.store.GetVersion(ctx, tenantID, versionID)
	if err != nil {
		return types.AttributeDecision{}, err
	}
	if version.Status != types.VersionSubmitted {
		return types.AttributeDecision{}, types.ErrVersionNotSubmitted
	}
	item, err := s.findItem(ctx, tenantID, versionID, itemID)
	if err != nil {
		return types.AttributeDecision{}, err
	}

	rec, ok, err := s.store.GetDecision(ctx, tenantID, versionID, itemID)
	if err != nil {
		return types.AttributeDecision{}, err
	}
	if !ok {
		rec = newPendingRow(versionID, item)
	}
	now := s.nowUTC()
	rec.Owner = decision
	rec.OwnerNotes = notes
	rec.OwnerDecidedAt = &now
	return s.store.UpsertDecision(ctx, tenantID, rec)
}

// UpdateTesterRationale rewrites the free-text rationale without touching
// the decision itself. This is the commit target of the auto-save path.
func (s *DecisionService) UpdateTesterRationale(ctx context.Context, tenantID string, versionID string, itemID string, rationale string) (types.AttributeDecision, error) {
	version, err := s.store.GetVersion(ctx, tenantID, versionID)
	if err != nil {
		return types.AttributeDecision{}, err
	}
	if version.Status != types.VersionDraft {
		return types.AttributeDecision{}, types.ErrVersionClosed
	}
	item, err := s.findItem(ctx, tenantID, versionID, itemID)
	if err != nil {
		return types.AttributeDecision{}, err
	}
	rec, ok, err := s.store.GetDecision(ctx, tenantID, versionID, itemID)
	if err != nil {
		return types.AttributeDecision{}, err
	}
	if !ok {
		rec = newPendingRow(versionID, item)
	}
	rec.TesterRationale = rationale
	return s.store.UpsertDecision(ctx, tenantID, rec)
}

// UpdateOwnerNotes rewrites the report-owner free-text notes, preserving the
// recorded decision.
func (s *DecisionService) UpdateOwnerNotes(ctx context.Context, tenantID string, versionID string, itemID string, notes string) (types.AttributeDecision, error) {
	version, err := s.store.GetVersion(ctx, tenantID, versionID)
	if err != nil {
		return types.AttributeDecision{}, err
	}
	if version.Status != types.VersionSubmitted {
		return types.AttributeDecision{}, types.ErrVersionNotSubmitted
	}
	item, err := s.findItem(ctx, tenantID, versionID, itemID)
	if err != nil {
		return types.AttributeDecision{}, err
	}
	rec, ok, err := s.store.GetDecision(ctx, tenantID, versionID, itemID)
	if err != nil {
		return types.AttributeDecision{}, err
	}
	if !ok {
		rec = newPendingRow(versionID, item)
	}
	rec.OwnerNotes = notes
	return s.store.UpsertDecision(ctx, tenantID, rec)
}

// ListDecisions returns the full decision view for a version: materialized
// rows plus pending placeholders for items the tester has not touched,
// in catalog order. Placeholders for locked items show Include, since their
// inclusion is forced.
func (s *DecisionService) ListDecisions(ctx context.Context, tenantID string, versionID string) ([]types.AttributeDecision, error) {
	if _, err := s.store.GetVersion(ctx, tenantID, versionID); err != nil {
		return nil, err
	}
	items, err := s.store.VersionItems(ctx, tenantID, versionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListDecisionRows(ctx, tenantID, versionID)
	if err != nil {
		return nil, err
	}
	byItem := make(map[string]types.AttributeDecision, len(rows))
	for _, rec := range rows {
		byItem[rec.ItemID] = rec
	}

	out := make([]types.AttributeDecision, 0, len(items))
	for _, item := range items {
		if rec, ok := byItem[item.ItemID]; ok {
			out = append(out, rec)
			continue
		}
		out = append(out, newPendingRow(versionID, item))
	}
	return out, nil
}

// CountByState summarizes tester decisions. Locked items always count as
// included; the three buckets always sum to the catalog size.
func (s *DecisionService) CountByState(ctx context.Context, tenantID string, versionID string) (types.DecisionCounts, error) {
	rows, err := s.ListDecisions(ctx, tenantID, versionID)
	if err != nil {
		return types.DecisionCounts{}, err
	}
	var counts types.DecisionCounts
	for _, rec := range rows {
		switch {
		case rec.IsLocked || rec.Tester == types.TesterInclude:
			counts.Included++
		case rec.Tester == types.TesterExclude:
			counts.Excluded++
		default:
			counts.Pending++
		}
	}
	return counts, nil
}

func (s *DecisionService) findItem(ctx context.Context, tenantID string, versionID string, itemID string) (types.Item, error) {
	items, err := s.store.VersionItems(ctx, tenantID, versionID)
	if err != nil {
		return types.Item{}, err
	}
	for _, item := range items {
		if item.ItemID == itemID {
			return item, nil
		}
	}
	return types.Item{}, types.ErrItemNotFound
}

// newPendingRow synthesizes the lazy-materialization default for an item
// with no stored row yet.
func newPendingRow(versionID string, item types.Item) types.AttributeDecision {
	tester := types.TesterPending
	if item.IsLocked {
		tester = types.TesterInclude
	}
	return types.AttributeDecision{
		VersionID: versionID,
		ItemID:    item.ItemID,
		IsLocked:  item.IsLocked,
		Tester:    tester,
		Owner:     types.OwnerPending,
	}
}
