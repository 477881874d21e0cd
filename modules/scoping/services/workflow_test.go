package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/infrastructure/persistence"
)

const testTenant = "tenant-1"

func testClock() func() time.Time {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		at = at.Add(time.Minute)
		return at
	}
}

func newTestGateway(t *testing.T) *WorkflowGateway {
	t.Helper()
	escalation, err := NewEscalationPolicy(DefaultEscalationRules())
	if err != nil {
		t.Fatalf("escalation policy: %v", err)
	}
	return NewWorkflowGateway(persistence.NewMemoryStore(), testClock(), escalation)
}

func testScope() types.Scope {
	return types.Scope{CycleID: "cycle-2026-q1", ReportID: "fr-y-14m", Phase: types.PhaseScoping}
}

func testItems() []types.Item {
	return []types.Item{
		{ItemID: "attr-1"},
		{ItemID: "attr-2"},
		{ItemID: "attr-3", IsLocked: true, GroupKey: "cde"},
	}
}

func startCycle(t *testing.T, g *WorkflowGateway) types.DecisionVersion {
	t.Helper()
	v, err := g.StartReviewCycle(context.Background(), testTenant, testScope(), testItems())
	if err != nil {
		t.Fatalf("start cycle: %v", err)
	}
	return v
}

func decideAll(t *testing.T, g *WorkflowGateway, versionID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := g.RecordTesterDecision(ctx, testTenant, versionID, "attr-1", types.TesterInclude, "primary attribute"); err != nil {
		t.Fatalf("decide attr-1: %v", err)
	}
	if _, err := g.RecordTesterDecision(ctx, testTenant, versionID, "attr-2", types.TesterExclude, "out of scope this cycle"); err != nil {
		t.Fatalf("decide attr-2: %v", err)
	}
}

func submitVersion(t *testing.T, g *WorkflowGateway, versionID string) types.DecisionVersion {
	t.Helper()
	v, err := g.SubmitVersion(context.Background(), testTenant, versionID, "ready for review")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return v
}

func TestStartReviewCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("opens version one as draft", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		if v.VersionNumber != 1 {
			t.Fatalf("version number=%d, want 1", v.VersionNumber)
		}
		if v.Status != types.VersionDraft {
			t.Fatalf("status=%s, want draft", v.Status)
		}
		if v.VersionID == "" {
			t.Fatalf("expected version id")
		}
	})

	t.Run("rejects empty catalog", func(t *testing.T) {
		g := newTestGateway(t)
		_, err := g.StartReviewCycle(ctx, testTenant, testScope(), nil)
		if !errors.Is(err, types.ErrItemsRequired) {
			t.Fatalf("err=%v, want ErrItemsRequired", err)
		}
	})

	t.Run("rejects second open version for same scope", func(t *testing.T) {
		g := newTestGateway(t)
		startCycle(t, g)
		_, err := g.StartReviewCycle(ctx, testTenant, testScope(), testItems())
		if !errors.Is(err, types.ErrOpenVersionExists) {
			t.Fatalf("err=%v, want ErrOpenVersionExists", err)
		}
	})

	t.Run("same cycle and report in another phase is a separate scope", func(t *testing.T) {
		g := newTestGateway(t)
		startCycle(t, g)
		other := testScope()
		other.Phase = types.PhasePlanning
		if _, err := g.StartReviewCycle(ctx, testTenant, other, testItems()); err != nil {
			t.Fatalf("start in other phase: %v", err)
		}
	})
}

func TestTesterDecisions(t *testing.T) {
	ctx := context.Background()

	t.Run("records decision with rationale and counts", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		write, err := g.RecordTesterDecision(ctx, testTenant, v.VersionID, "attr-1", types.TesterInclude, "key risk attribute")
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if write.Record.Tester != types.TesterInclude {
			t.Fatalf("tester=%s, want include", write.Record.Tester)
		}
		if write.Record.TesterDecidedAt == nil {
			t.Fatalf("expected decided_at")
		}
		// attr-1 included, locked attr-3 counted as included, attr-2 pending.
		if write.Counts.Included != 2 || write.Counts.Pending != 1 || write.Counts.Excluded != 0 {
			t.Fatalf("counts=%+v", write.Counts)
		}
	})

	t.Run("counts always cover the whole catalog", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		decideAll(t, g, v.VersionID)
		_, counts, err := g.ListDecisions(ctx, testTenant, v.VersionID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if counts.Total() != len(testItems()) {
			t.Fatalf("total=%d, want %d", counts.Total(), len(testItems()))
		}
	})

	t.Run("re-recording overwrites without duplicating", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		if _, err := g.RecordTesterDecision(ctx, testTenant, v.VersionID, "attr-1", types.TesterInclude, "first pass"); err != nil {
			t.Fatalf("record: %v", err)
		}
		write, err := g.RecordTesterDecision(ctx, testTenant, v.VersionID, "attr-1", types.TesterExclude, "changed after sampling")
		if err != nil {
			t.Fatalf("record again: %v", err)
		}
		if write.Record.Tester != types.TesterExclude {
			t.Fatalf("tester=%s, want exclude", write.Record.Tester)
		}
		rows, _, err := g.ListDecisions(ctx, testTenant, v.VersionID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(rows) != len(testItems()) {
			t.Fatalf("rows=%d, want %d", len(rows), len(testItems()))
		}
	})

	t.Run("locked item cannot be excluded", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		_, err := g.RecordTesterDecision(ctx, testTenant, v.VersionID, "attr-3", types.TesterExclude, "")
		if !errors.Is(err, types.ErrItemLocked) {
			t.Fatalf("err=%v, want ErrItemLocked", err)
		}
	})

	t.Run("locked item include is accepted", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		write, err := g.RecordTesterDecision(ctx, testTenant, v.VersionID, "attr-3", types.TesterInclude, "")
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if write.Record.Tester != types.TesterInclude {
			t.Fatalf("tester=%s, want include", write.Record.Tester)
		}
	})

	t.Run("unknown item", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		_, err := g.RecordTesterDecision(ctx, testTenant, v.VersionID, "attr-99", types.TesterInclude, "")
		if !errors.Is(err, types.ErrItemNotFound) {
			t.Fatalf("err=%v, want ErrItemNotFound", err)
		}
	})

	t.Run("closed version rejects decisions", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		decideAll(t, g, v.VersionID)
		submitVersion(t, g, v.VersionID)
		_, err := g.RecordTesterDecision(ctx, testTenant, v.VersionID, "attr-1", types.TesterExclude, "")
		if !errors.Is(err, types.ErrVersionClosed) {
			t.Fatalf("err=%v, want ErrVersionClosed", err)
		}
	})
}

func TestBulkTesterDecisions(t *testing.T) {
	ctx := context.Background()

	t.Run("applies to all non-locked items and reports skips", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		write, err := g.BulkRecordTesterDecision(ctx, testTenant, v.VersionID, []string{"attr-1", "attr-2", "attr-3"}, types.TesterExclude, "bulk descope")
		if err != nil {
			t.Fatalf("bulk: %v", err)
		}
		if len(write.Records) != 2 {
			t.Fatalf("records=%d, want 2", len(write.Records))
		}
		if len(write.Skipped) != 1 || write.Skipped[0] != "attr-3" {
			t.Fatalf("skipped=%v, want [attr-3]", write.Skipped)
		}
		// Locked attr-3 stays included.
		if write.Counts.Excluded != 2 || write.Counts.Included != 1 {
			t.Fatalf("counts=%+v", write.Counts)
		}
	})

	t.Run("unknown item fails the batch", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		_, err := g.BulkRecordTesterDecision(ctx, testTenant, v.VersionID, []string{"attr-1", "attr-99"}, types.TesterInclude, "")
		if !errors.Is(err, types.ErrItemNotFound) {
			t.Fatalf("err=%v, want ErrItemNotFound", err)
		}
	})
}

func TestSubmitVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects undecided non-locked items", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		if _, err := g.RecordTesterDecision(ctx, testTenant, v.VersionID, "attr-1", types.TesterInclude, ""); err != nil {
			t.Fatalf("record: %v", err)
		}
		_, err := g.SubmitVersion(ctx, testTenant, v.VersionID, "")
		if !errors.Is(err, types.ErrIncompleteDecisions) {
			t.Fatalf("err=%v, want ErrIncompleteDecisions", err)
		}
	})

	t.Run("locked items do not block submission", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		decideAll(t, g, v.VersionID)
		submitted := submitVersion(t, g, v.VersionID)
		if submitted.Status != types.VersionSubmitted {
			t.Fatalf("status=%s, want submitted", submitted.Status)
		}
		if submitted.SubmittedAt == nil {
			t.Fatalf("expected submitted_at")
		}
		if submitted.SubmissionNotes != "ready for review" {
			t.Fatalf("notes=%q", submitted.SubmissionNotes)
		}
	})

	t.Run("double submit loses the race", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		decideAll(t, g, v.VersionID)
		submitVersion(t, g, v.VersionID)
		_, err := g.SubmitVersion(ctx, testTenant, v.VersionID, "")
		if !errors.Is(err, types.ErrTransitionConflict) {
			t.Fatalf("err=%v, want ErrTransitionConflict", err)
		}
	})
}

func TestOwnerDecisions(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a submitted version", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		_, err := g.RecordReportOwnerDecision(ctx, testTenant, v.VersionID, "attr-1", types.OwnerApproved, "")
		if !errors.Is(err, types.ErrVersionNotSubmitted) {
			t.Fatalf("err=%v, want ErrVersionNotSubmitted", err)
		}
	})

	t.Run("records decision preserving tester fields", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		decideAll(t, g, v.VersionID)
		submitVersion(t, g, v.VersionID)
		write, err := g.RecordReportOwnerDecision(ctx, testTenant, v.VersionID, "attr-1", types.OwnerApproved, "agree with inclusion")
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if write.Record.Owner != types.OwnerApproved {
			t.Fatalf("owner=%s, want approved", write.Record.Owner)
		}
		if write.Record.OwnerDecidedAt == nil {
			t.Fatalf("expected owner decided_at")
		}
		if write.Record.Tester != types.TesterInclude {
			t.Fatalf("tester=%s, tester decision must survive owner write", write.Record.Tester)
		}
	})
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	submitAll := func(t *testing.T, g *WorkflowGateway) types.DecisionVersion {
		t.Helper()
		v := startCycle(t, g)
		decideAll(t, g, v.VersionID)
		return submitVersion(t, g, v.VersionID)
	}

	t.Run("draft version cannot reconcile", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		_, err := g.Reconcile(ctx, testTenant, v.VersionID)
		if !errors.Is(err, types.ErrVersionNotSubmitted) {
			t.Fatalf("err=%v, want ErrVersionNotSubmitted", err)
		}
	})

	t.Run("undecided owner rows block agreement", func(t *testing.T) {
		g := newTestGateway(t)
		v := submitAll(t, g)
		result, err := g.Reconcile(ctx, testTenant, v.VersionID)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if result.AllAgree {
			t.Fatalf("expected AllAgree=false with pending owner rows")
		}
		if len(result.UndecidedItems) != 2 {
			t.Fatalf("undecided=%v, want attr-1 and attr-2", result.UndecidedItems)
		}
	})

	t.Run("full agreement with locked item skipped", func(t *testing.T) {
		g := newTestGateway(t)
		v := submitAll(t, g)
		if _, err := g.RecordReportOwnerDecision(ctx, testTenant, v.VersionID, "attr-1", types.OwnerApproved, ""); err != nil {
			t.Fatalf("owner attr-1: %v", err)
		}
		if _, err := g.RecordReportOwnerDecision(ctx, testTenant, v.VersionID, "attr-2", types.OwnerRejected, ""); err != nil {
			t.Fatalf("owner attr-2: %v", err)
		}
		result, err := g.Reconcile(ctx, testTenant, v.VersionID)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if !result.AllAgree {
			t.Fatalf("result=%+v, want AllAgree", result)
		}
	})

	t.Run("needs revision always mismatches", func(t *testing.T) {
		g := newTestGateway(t)
		v := submitAll(t, g)
		if _, err := g.RecordReportOwnerDecision(ctx, testTenant, v.VersionID, "attr-1", types.OwnerNeedsRevision, "rationale too thin"); err != nil {
			t.Fatalf("owner attr-1: %v", err)
		}
		if _, err := g.RecordReportOwnerDecision(ctx, testTenant, v.VersionID, "attr-2", types.OwnerRejected, ""); err != nil {
			t.Fatalf("owner attr-2: %v", err)
		}
		result, err := g.Reconcile(ctx, testTenant, v.VersionID)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if result.AllAgree {
			t.Fatalf("expected mismatch")
		}
		if len(result.Mismatches) != 1 || result.Mismatches[0].ItemID != "attr-1" {
			t.Fatalf("mismatches=%+v", result.Mismatches)
		}
	})

	t.Run("reconcile is deterministic", func(t *testing.T) {
		g := newTestGateway(t)
		v := submitAll(t, g)
		first, err := g.Reconcile(ctx, testTenant, v.VersionID)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		second, err := g.Reconcile(ctx, testTenant, v.VersionID)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if len(first.UndecidedItems) != len(second.UndecidedItems) {
			t.Fatalf("first=%+v second=%+v", first, second)
		}
		for i := range first.UndecidedItems {
			if first.UndecidedItems[i] != second.UndecidedItems[i] {
				t.Fatalf("order changed: %v vs %v", first.UndecidedItems, second.UndecidedItems)
			}
		}
	})
}

func TestCheckAndResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("auto-approves on full agreement", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		decideAll(t, g, v.VersionID)
		submitVersion(t, g, v.VersionID)
		if _, err := g.RecordReportOwnerDecision(ctx, testTenant, v.VersionID, "attr-1", types.OwnerApproved, ""); err != nil {
			t.Fatalf("owner attr-1: %v", err)
		}
		if _, err := g.RecordReportOwnerDecision(ctx, testTenant, v.VersionID, "attr-2", types.OwnerRejected, ""); err != nil {
			t.Fatalf("owner attr-2: %v", err)
		}
		outcome, err := g.CheckAndResolve(ctx, testTenant, v.VersionID)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if !outcome.Resolved {
			t.Fatalf("expected resolution")
		}
		if outcome.Version.Status != types.VersionApproved {
			t.Fatalf("status=%s, want approved", outcome.Version.Status)
		}
		if outcome.Version.ResolutionNotes == "" {
			t.Fatalf("expected auto-approval notes")
		}
	})

	t.Run("disagreement leaves version submitted with advice", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		decideAll(t, g, v.VersionID)
		submitVersion(t, g, v.VersionID)
		if _, err := g.RecordReportOwnerDecision(ctx, testTenant, v.VersionID, "attr-1", types.OwnerRejected, "should be out"); err != nil {
			t.Fatalf("owner attr-1: %v", err)
		}
		if _, err := g.RecordReportOwnerDecision(ctx, testTenant, v.VersionID, "attr-2", types.OwnerRejected, ""); err != nil {
			t.Fatalf("owner attr-2: %v", err)
		}
		outcome, err := g.CheckAndResolve(ctx, testTenant, v.VersionID)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if outcome.Resolved {
			t.Fatalf("expected no resolution on mismatch")
		}
		if outcome.Version.Status != types.VersionSubmitted {
			t.Fatalf("status=%s, want submitted", outcome.Version.Status)
		}
		if outcome.Advice == nil {
			t.Fatalf("expected escalation advice")
		}
	})
}

func TestResolveVersion(t *testing.T) {
	ctx := context.Background()

	submitted := func(t *testing.T, g *WorkflowGateway) types.DecisionVersion {
		t.Helper()
		v := startCycle(t, g)
		decideAll(t, g, v.VersionID)
		return submitVersion(t, g, v.VersionID)
	}

	t.Run("approve stamps resolution", func(t *testing.T) {
		g := newTestGateway(t)
		v := submitted(t, g)
		approved, err := g.ApproveVersion(ctx, testTenant, v.VersionID, "sign-off")
		if err != nil {
			t.Fatalf("approve: %v", err)
		}
		if approved.Status != types.VersionApproved || approved.ResolvedAt == nil {
			t.Fatalf("version=%+v", approved)
		}
		if approved.ResolutionNotes != "sign-off" {
			t.Fatalf("notes=%q", approved.ResolutionNotes)
		}
	})

	t.Run("draft cannot be approved", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		_, err := g.ApproveVersion(ctx, testTenant, v.VersionID, "")
		if !errors.Is(err, types.ErrVersionNotSubmitted) {
			t.Fatalf("err=%v, want ErrVersionNotSubmitted", err)
		}
	})

	t.Run("second resolution loses the race", func(t *testing.T) {
		g := newTestGateway(t)
		v := submitted(t, g)
		if _, err := g.RejectVersion(ctx, testTenant, v.VersionID, "scope drift"); err != nil {
			t.Fatalf("reject: %v", err)
		}
		_, err := g.ApproveVersion(ctx, testTenant, v.VersionID, "")
		if !errors.Is(err, types.ErrTransitionConflict) {
			t.Fatalf("err=%v, want ErrTransitionConflict", err)
		}
	})

	t.Run("unknown version", func(t *testing.T) {
		g := newTestGateway(t)
		_, err := g.ApproveVersion(ctx, testTenant, "missing", "")
		if !errors.Is(err, types.ErrVersionNotFound) {
			t.Fatalf("err=%v, want ErrVersionNotFound", err)
		}
	})
}

func TestResubmission(t *testing.T) {
	ctx := context.Background()

	revised := func(t *testing.T, g *WorkflowGateway) types.DecisionVersion {
		t.Helper()
		v := startCycle(t, g)
		decideAll(t, g, v.VersionID)
		submitVersion(t, g, v.VersionID)
		rv, err := g.RequestRevision(ctx, testTenant, v.VersionID, "rework attr-2")
		if err != nil {
			t.Fatalf("request revision: %v", err)
		}
		return rv
	}

	t.Run("approved version is not revisable", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		decideAll(t, g, v.VersionID)
		submitVersion(t, g, v.VersionID)
		if _, err := g.ApproveVersion(ctx, testTenant, v.VersionID, ""); err != nil {
			t.Fatalf("approve: %v", err)
		}
		_, err := g.CreateResubmission(ctx, testTenant, v.VersionID)
		if !errors.Is(err, types.ErrVersionNotRevisable) {
			t.Fatalf("err=%v, want ErrVersionNotRevisable", err)
		}
	})

	t.Run("carries tester decisions, resets owner decisions", func(t *testing.T) {
		g := newTestGateway(t)
		v := revised(t, g)
		next, err := g.CreateResubmission(ctx, testTenant, v.VersionID)
		if err != nil {
			t.Fatalf("resubmit: %v", err)
		}
		if next.VersionNumber != v.VersionNumber+1 {
			t.Fatalf("number=%d, want %d", next.VersionNumber, v.VersionNumber+1)
		}
		if next.PredecessorID != v.VersionID {
			t.Fatalf("predecessor=%s, want %s", next.PredecessorID, v.VersionID)
		}
		if next.Status != types.VersionDraft {
			t.Fatalf("status=%s, want draft", next.Status)
		}

		rows, _, err := g.ListDecisions(ctx, testTenant, next.VersionID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, rec := range rows {
			if rec.Owner != types.OwnerPending {
				t.Fatalf("item %s owner=%s, want pending", rec.ItemID, rec.Owner)
			}
			switch rec.ItemID {
			case "attr-1":
				if rec.Tester != types.TesterInclude {
					t.Fatalf("attr-1 tester=%s, want include", rec.Tester)
				}
			case "attr-2":
				if rec.Tester != types.TesterExclude {
					t.Fatalf("attr-2 tester=%s, want exclude", rec.Tester)
				}
			}
		}
	})

	t.Run("second resubmission of same predecessor is rejected", func(t *testing.T) {
		g := newTestGateway(t)
		v := revised(t, g)
		if _, err := g.CreateResubmission(ctx, testTenant, v.VersionID); err != nil {
			t.Fatalf("first resubmit: %v", err)
		}
		_, err := g.CreateResubmission(ctx, testTenant, v.VersionID)
		if !errors.Is(err, types.ErrOpenVersionExists) {
			t.Fatalf("err=%v, want ErrOpenVersionExists", err)
		}
	})

	t.Run("history lists newest first with deltas", func(t *testing.T) {
		g := newTestGateway(t)
		v := revised(t, g)
		next, err := g.CreateResubmission(ctx, testTenant, v.VersionID)
		if err != nil {
			t.Fatalf("resubmit: %v", err)
		}
		if _, err := g.RecordTesterDecision(ctx, testTenant, next.VersionID, "attr-2", types.TesterInclude, "added after rework"); err != nil {
			t.Fatalf("record: %v", err)
		}

		history, err := g.ListVersions(ctx, testTenant, testScope())
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("history len=%d, want 2", len(history))
		}
		if history[0].VersionID != next.VersionID {
			t.Fatalf("newest first: got %s", history[0].VersionID)
		}
		deltas := history[0].ChangesFromPrevious
		if len(deltas) != 1 {
			t.Fatalf("deltas=%+v, want one for attr-2", deltas)
		}
		if deltas[0].ItemID != "attr-2" || deltas[0].Previous != types.TesterExclude || deltas[0].Current != types.TesterInclude {
			t.Fatalf("delta=%+v", deltas[0])
		}
		if len(history[1].ChangesFromPrevious) != 0 {
			t.Fatalf("v1 has no predecessor, deltas=%+v", history[1].ChangesFromPrevious)
		}
	})
}

func TestNewCycleKeepsHistoricalCatalog(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway(t)

	v1 := startCycle(t, g)
	decideAll(t, g, v1.VersionID)
	submitVersion(t, g, v1.VersionID)
	if _, err := g.ApproveVersion(ctx, testTenant, v1.VersionID, "sign-off"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// A new review cycle on the same scope registers a different catalog.
	v2, err := g.StartReviewCycle(ctx, testTenant, testScope(), []types.Item{{ItemID: "attr-9"}})
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	// The approved version still renders against the catalog it was
	// decided under, untouched by the new registration.
	rows, counts, err := g.ListDecisions(ctx, testTenant, v1.VersionID)
	if err != nil {
		t.Fatalf("list v1: %v", err)
	}
	if len(rows) != 3 || rows[0].ItemID != "attr-1" || rows[1].ItemID != "attr-2" || rows[2].ItemID != "attr-3" {
		t.Fatalf("v1 rows=%+v, historical catalog changed", rows)
	}
	if counts.Included != 2 || counts.Excluded != 1 || counts.Pending != 0 {
		t.Fatalf("v1 counts=%+v", counts)
	}

	rows, counts, err = g.ListDecisions(ctx, testTenant, v2.VersionID)
	if err != nil {
		t.Fatalf("list v2: %v", err)
	}
	if len(rows) != 1 || rows[0].ItemID != "attr-9" {
		t.Fatalf("v2 rows=%+v", rows)
	}
	if counts.Pending != 1 || counts.Total() != 1 {
		t.Fatalf("v2 counts=%+v", counts)
	}
}

func TestFreeTextUpdates(t *testing.T) {
	ctx := context.Background()

	t.Run("rationale edit keeps decision", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		if _, err := g.RecordTesterDecision(ctx, testTenant, v.VersionID, "attr-1", types.TesterInclude, "draft text"); err != nil {
			t.Fatalf("record: %v", err)
		}
		rec, err := g.UpdateTesterRationale(ctx, testTenant, v.VersionID, "attr-1", "final text")
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if rec.TesterRationale != "final text" || rec.Tester != types.TesterInclude {
			t.Fatalf("rec=%+v", rec)
		}
	})

	t.Run("owner notes require submitted version", func(t *testing.T) {
		g := newTestGateway(t)
		v := startCycle(t, g)
		_, err := g.UpdateOwnerNotes(ctx, testTenant, v.VersionID, "attr-1", "notes")
		if !errors.Is(err, types.ErrVersionNotSubmitted) {
			t.Fatalf("err=%v, want ErrVersionNotSubmitted", err)
		}
	})
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway(t)
	v := startCycle(t, g)

	_, err := g.SubmitVersion(ctx, "tenant-2", v.VersionID, "")
	if !errors.Is(err, types.ErrVersionNotFound) {
		t.Fatalf("err=%v, want ErrVersionNotFound for foreign tenant", err)
	}
	if _, err := g.StartReviewCycle(ctx, "tenant-2", testScope(), testItems()); err != nil {
		t.Fatalf("tenant-2 cycle: %v", err)
	}
}
