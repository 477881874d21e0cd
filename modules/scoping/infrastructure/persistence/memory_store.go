package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/ports"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
)

// MemoryStore keeps the full workflow state in mutex-guarded maps. It backs
// tests and single-process development runs; the single mutex makes every
// operation, including the status compare-and-set, trivially atomic.
type MemoryStore struct {
	mu        sync.Mutex
	items     map[string][]types.Item              // tenant|versionID -> catalog snapshot
	versions  map[string]types.DecisionVersion     // tenant|versionID -> version
	byScope   map[string][]string                  // tenant|scopeKey -> versionIDs in insert order
	decisions map[string]types.AttributeDecision   // tenant|versionID|itemID -> row
	rowOrder  map[string][]string                  // tenant|versionID -> itemIDs in first-write order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[string][]types.Item),
		versions:  make(map[string]types.DecisionVersion),
		byScope:   make(map[string][]string),
		decisions: make(map[string]types.AttributeDecision),
		rowOrder:  make(map[string][]string),
	}
}

var _ ports.WorkflowStore = (*MemoryStore)(nil)

func scopeMapKey(tenantID string, scope types.Scope) string {
	return tenantID + "|" + scope.Key()
}

func versionMapKey(tenantID string, versionID string) string {
	return tenantID + "|" + versionID
}

func decisionMapKey(tenantID string, versionID string, itemID string) string {
	return tenantID + "|" + versionID + "|" + itemID
}

func (s *MemoryStore) RegisterItems(_ context.Context, tenantID string, versionID string, items []types.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]types.Item, len(items))
	copy(cp, items)
	s.items[versionMapKey(tenantID, versionID)] = cp
	return nil
}

func (s *MemoryStore) VersionItems(_ context.Context, tenantID string, versionID string) ([]types.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.items[versionMapKey(tenantID, versionID)]
	if !ok {
		return nil, types.ErrScopeNotFound
	}
	cp := make([]types.Item, len(items))
	copy(cp, items)
	return cp, nil
}

func (s *MemoryStore) InsertVersion(_ context.Context, tenantID string, v types.DecisionVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[versionMapKey(tenantID, v.VersionID)] = v
	sk := scopeMapKey(tenantID, v.Scope)
	s.byScope[sk] = append(s.byScope[sk], v.VersionID)
	return nil
}

func (s *MemoryStore) GetVersion(_ context.Context, tenantID string, versionID string) (types.DecisionVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[versionMapKey(tenantID, versionID)]
	if !ok {
		return types.DecisionVersion{}, types.ErrVersionNotFound
	}
	return v, nil
}

func (s *MemoryStore) LatestVersion(_ context.Context, tenantID string, scope types.Scope) (types.DecisionVersion, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byScope[scopeMapKey(tenantID, scope)]
	if len(ids) == 0 {
		return types.DecisionVersion{}, false, nil
	}
	latest := types.DecisionVersion{}
	for _, id := range ids {
		v := s.versions[versionMapKey(tenantID, id)]
		if v.VersionNumber > latest.VersionNumber {
			latest = v
		}
	}
	return latest, true, nil
}

func (s *MemoryStore) ListVersions(_ context.Context, tenantID string, scope types.Scope) ([]types.DecisionVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byScope[scopeMapKey(tenantID, scope)]
	out := make([]types.DecisionVersion, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.versions[versionMapKey(tenantID, id)])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (s *MemoryStore) TransitionVersion(_ context.Context, tenantID string, versionID string, from, to types.VersionStatus, at time.Time, notes string) (types.DecisionVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := versionMapKey(tenantID, versionID)
	v, ok := s.versions[key]
	if !ok {
		return types.DecisionVersion{}, types.ErrVersionNotFound
	}
	if v.Status != from {
		return types.DecisionVersion{}, types.ErrTransitionConflict
	}
	v.Status = to
	stampTransition(&v, to, at, notes)
	s.versions[key] = v
	return v, nil
}

func (s *MemoryStore) UpsertDecision(_ context.Context, tenantID string, rec types.AttributeDecision) (types.AttributeDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := decisionMapKey(tenantID, rec.VersionID, rec.ItemID)
	if _, exists := s.decisions[key]; !exists {
		vk := versionMapKey(tenantID, rec.VersionID)
		s.rowOrder[vk] = append(s.rowOrder[vk], rec.ItemID)
	}
	s.decisions[key] = rec
	return rec, nil
}

func (s *MemoryStore) GetDecision(_ context.Context, tenantID string, versionID string, itemID string) (types.AttributeDecision, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.decisions[decisionMapKey(tenantID, versionID, itemID)]
	return rec, ok, nil
}

func (s *MemoryStore) ListDecisionRows(_ context.Context, tenantID string, versionID string) ([]types.AttributeDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.rowOrder[versionMapKey(tenantID, versionID)]
	out := make([]types.AttributeDecision, 0, len(ids))
	for _, itemID := range ids {
		out = append(out, s.decisions[decisionMapKey(tenantID, versionID, itemID)])
	}
	return out, nil
}

// stampTransition applies the status-dependent timestamps and notes shared by
// all backends.
func stampTransition(v *types.DecisionVersion, to types.VersionStatus, at time.Time, notes string) {
	switch {
	case to == types.VersionSubmitted:
		t := at
		v.SubmittedAt = &t
		v.SubmissionNotes = notes
	case to.Terminal():
		t := at
		v.ResolvedAt = &t
		v.ResolutionNotes = notes
	}
}
