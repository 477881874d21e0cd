package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/ports"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
)

// runWorkflowStoreTests is the behavior contract every backend must satisfy.
// Each backend test file runs it against a fresh store.
func runWorkflowStoreTests(t *testing.T, newStore func(t *testing.T) ports.WorkflowStore) {
	ctx := context.Background()
	const tenant = "tenant-1"

	scope := types.Scope{CycleID: "cycle-1", ReportID: "report-1", Phase: types.PhaseScoping}
	items := []types.Item{
		{ItemID: "attr-1"},
		{ItemID: "attr-2", IsLocked: true, GroupKey: "cde"},
	}
	baseVersion := func(id string, number int) types.DecisionVersion {
		return types.DecisionVersion{
			VersionID:     id,
			Scope:         scope,
			VersionNumber: number,
			Status:        types.VersionDraft,
			CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		}
	}

	t.Run("version items round trip in catalog order", func(t *testing.T) {
		store := newStore(t)
		if err := store.RegisterItems(ctx, tenant, "v-1", items); err != nil {
			t.Fatalf("register: %v", err)
		}
		got, err := store.VersionItems(ctx, tenant, "v-1")
		if err != nil {
			t.Fatalf("items: %v", err)
		}
		if len(got) != 2 || got[0].ItemID != "attr-1" || got[1].ItemID != "attr-2" {
			t.Fatalf("items=%+v", got)
		}
		if !got[1].IsLocked || got[1].GroupKey != "cde" {
			t.Fatalf("attr-2=%+v, lock metadata lost", got[1])
		}
	})

	t.Run("version with no catalog", func(t *testing.T) {
		store := newStore(t)
		_, err := store.VersionItems(ctx, tenant, "v-1")
		if !errors.Is(err, types.ErrScopeNotFound) {
			t.Fatalf("err=%v, want ErrScopeNotFound", err)
		}
	})

	t.Run("catalog snapshots are independent per version", func(t *testing.T) {
		store := newStore(t)
		if err := store.RegisterItems(ctx, tenant, "v-1", items); err != nil {
			t.Fatalf("register v-1: %v", err)
		}
		if err := store.RegisterItems(ctx, tenant, "v-2", []types.Item{{ItemID: "attr-9"}}); err != nil {
			t.Fatalf("register v-2: %v", err)
		}
		got, err := store.VersionItems(ctx, tenant, "v-1")
		if err != nil {
			t.Fatalf("items: %v", err)
		}
		if len(got) != 2 || got[0].ItemID != "attr-1" || got[1].ItemID != "attr-2" {
			t.Fatalf("v-1 items=%+v, changed by a later snapshot", got)
		}
	})

	t.Run("version insert, get, latest, list", func(t *testing.T) {
		store := newStore(t)
		// v-1 resolved so the open-version uniqueness rule allows v-2.
		v1 := baseVersion("v-1", 1)
		v1.Status = types.VersionApproved
		if err := store.InsertVersion(ctx, tenant, v1); err != nil {
			t.Fatalf("insert v1: %v", err)
		}
		if err := store.InsertVersion(ctx, tenant, baseVersion("v-2", 2)); err != nil {
			t.Fatalf("insert v2: %v", err)
		}

		got, err := store.GetVersion(ctx, tenant, "v-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.VersionNumber != 1 || got.Status != types.VersionApproved {
			t.Fatalf("v1=%+v", got)
		}

		latest, ok, err := store.LatestVersion(ctx, tenant, scope)
		if err != nil || !ok {
			t.Fatalf("latest: ok=%v err=%v", ok, err)
		}
		if latest.VersionID != "v-2" {
			t.Fatalf("latest=%s, want v-2", latest.VersionID)
		}

		history, err := store.ListVersions(ctx, tenant, scope)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(history) != 2 || history[0].VersionID != "v-2" || history[1].VersionID != "v-1" {
			t.Fatalf("history=%+v, want newest first", history)
		}
	})

	t.Run("get missing version", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetVersion(ctx, tenant, "missing")
		if !errors.Is(err, types.ErrVersionNotFound) {
			t.Fatalf("err=%v, want ErrVersionNotFound", err)
		}
	})

	t.Run("transition is compare-and-set", func(t *testing.T) {
		store := newStore(t)
		if err := store.InsertVersion(ctx, tenant, baseVersion("v-1", 1)); err != nil {
			t.Fatalf("insert: %v", err)
		}
		at := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

		submitted, err := store.TransitionVersion(ctx, tenant, "v-1", types.VersionDraft, types.VersionSubmitted, at, "ready")
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if submitted.Status != types.VersionSubmitted {
			t.Fatalf("status=%s", submitted.Status)
		}
		if submitted.SubmittedAt == nil || !submitted.SubmittedAt.Equal(at) {
			t.Fatalf("submitted_at=%v, want %v", submitted.SubmittedAt, at)
		}
		if submitted.SubmissionNotes != "ready" {
			t.Fatalf("notes=%q", submitted.SubmissionNotes)
		}

		// Same from-status again: the row moved on, the CAS must fail.
		_, err = store.TransitionVersion(ctx, tenant, "v-1", types.VersionDraft, types.VersionSubmitted, at, "")
		if !errors.Is(err, types.ErrTransitionConflict) {
			t.Fatalf("err=%v, want ErrTransitionConflict", err)
		}

		resolvedAt := at.Add(time.Hour)
		approved, err := store.TransitionVersion(ctx, tenant, "v-1", types.VersionSubmitted, types.VersionApproved, resolvedAt, "sign-off")
		if err != nil {
			t.Fatalf("approve: %v", err)
		}
		if approved.ResolvedAt == nil || !approved.ResolvedAt.Equal(resolvedAt) {
			t.Fatalf("resolved_at=%v, want %v", approved.ResolvedAt, resolvedAt)
		}
		if approved.ResolutionNotes != "sign-off" {
			t.Fatalf("resolution notes=%q", approved.ResolutionNotes)
		}
		// The submit stamp survives the second transition.
		if approved.SubmittedAt == nil || !approved.SubmittedAt.Equal(at) {
			t.Fatalf("submitted_at=%v after approve", approved.SubmittedAt)
		}
	})

	t.Run("transition on missing version", func(t *testing.T) {
		store := newStore(t)
		_, err := store.TransitionVersion(ctx, tenant, "missing", types.VersionDraft, types.VersionSubmitted, time.Now().UTC(), "")
		if !errors.Is(err, types.ErrVersionNotFound) {
			t.Fatalf("err=%v, want ErrVersionNotFound", err)
		}
	})

	t.Run("decision upsert replaces by version and item", func(t *testing.T) {
		store := newStore(t)
		if err := store.InsertVersion(ctx, tenant, baseVersion("v-1", 1)); err != nil {
			t.Fatalf("insert: %v", err)
		}
		decidedAt := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
		rec := types.AttributeDecision{
			VersionID:       "v-1",
			ItemID:          "attr-1",
			Tester:          types.TesterInclude,
			TesterRationale: "first pass",
			TesterDecidedAt: &decidedAt,
			Owner:           types.OwnerPending,
		}
		if _, err := store.UpsertDecision(ctx, tenant, rec); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		rec.Tester = types.TesterExclude
		rec.TesterRationale = "changed"
		if _, err := store.UpsertDecision(ctx, tenant, rec); err != nil {
			t.Fatalf("upsert again: %v", err)
		}

		got, ok, err := store.GetDecision(ctx, tenant, "v-1", "attr-1")
		if err != nil || !ok {
			t.Fatalf("get: ok=%v err=%v", ok, err)
		}
		if got.Tester != types.TesterExclude || got.TesterRationale != "changed" {
			t.Fatalf("rec=%+v", got)
		}
		if got.TesterDecidedAt == nil || !got.TesterDecidedAt.Equal(decidedAt) {
			t.Fatalf("decided_at=%v, want %v", got.TesterDecidedAt, decidedAt)
		}

		rows, err := store.ListDecisionRows(ctx, tenant, "v-1")
		if err != nil {
			t.Fatalf("rows: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("rows=%d, upsert must not duplicate", len(rows))
		}
	})

	t.Run("missing decision row", func(t *testing.T) {
		store := newStore(t)
		_, ok, err := store.GetDecision(ctx, tenant, "v-1", "attr-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if ok {
			t.Fatalf("expected no row")
		}
	})

	t.Run("tenants are isolated", func(t *testing.T) {
		store := newStore(t)
		if err := store.RegisterItems(ctx, tenant, "v-1", items); err != nil {
			t.Fatalf("register: %v", err)
		}
		if err := store.InsertVersion(ctx, tenant, baseVersion("v-1", 1)); err != nil {
			t.Fatalf("insert: %v", err)
		}

		if _, err := store.GetVersion(ctx, "tenant-2", "v-1"); !errors.Is(err, types.ErrVersionNotFound) {
			t.Fatalf("err=%v, want ErrVersionNotFound across tenants", err)
		}
		if _, err := store.VersionItems(ctx, "tenant-2", "v-1"); !errors.Is(err, types.ErrScopeNotFound) {
			t.Fatalf("err=%v, want ErrScopeNotFound across tenants", err)
		}
		if _, ok, err := store.LatestVersion(ctx, "tenant-2", scope); err != nil || ok {
			t.Fatalf("latest: ok=%v err=%v, want no version across tenants", ok, err)
		}
	})
}
