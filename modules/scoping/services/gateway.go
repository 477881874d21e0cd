package services

import (
	"context"
	"time"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/ports"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
)

// autoApprovalNotes is recorded on versions resolved by the automatic path.
const autoApprovalNotes = "Auto-approved: all decisions agree"

// WorkflowGateway is the single entry point the transport layer calls. It
// composes the decision service, version manager and reconciler and returns
// authoritative state, so callers never need a second read for consistency.
type WorkflowGateway struct {
	decisions  *DecisionService
	versions   *VersionManager
	reconciler *Reconciler
	escalation *EscalationPolicy
	metrics    *WorkflowMetrics
}

func NewWorkflowGateway(store ports.WorkflowStore, nowUTC func() time.Time, escalation *EscalationPolicy) *WorkflowGateway {
	decisions := NewDecisionService(store, nowUTC)
	return &WorkflowGateway{
		decisions:  decisions,
		versions:   NewVersionManager(store, decisions, nowUTC),
		reconciler: NewReconciler(store, decisions),
		escalation: escalation,
	}
}

// UseMetrics attaches a recorder; a nil gateway recorder is a no-op.
func (g *WorkflowGateway) UseMetrics(m *WorkflowMetrics) {
	g.metrics = m
}

// DecisionWrite is the authoritative result of a mutating decision call:
// the stored row plus fresh counts.
type DecisionWrite struct {
	Record types.AttributeDecision `json:"record"`
	Counts types.DecisionCounts    `json:"counts"`
}

// BulkDecisionWrite reports per-item outcomes of a bulk action. Skipped
// holds locked items that were silently left untouched.
type BulkDecisionWrite struct {
	Records []types.AttributeDecision `json:"records"`
	Skipped []string                  `json:"skipped_locked"`
	Counts  types.DecisionCounts      `json:"counts"`
}

// ResolveOutcome is the checkAndResolve response: either the version was
// auto-approved, or the mismatch report plus optional escalation advice.
type ResolveOutcome struct {
	Resolved bool                       `json:"resolved"`
	Version  types.DecisionVersion      `json:"version"`
	Result   types.ReconciliationResult `json:"result"`
	Advice   *EscalationAdvice          `json:"advice,omitempty"`
}

func (g *WorkflowGateway) StartReviewCycle(ctx context.Context, tenantID string, scope types.Scope, items []types.Item) (types.DecisionVersion, error) {
	return g.versions.StartReviewCycle(ctx, tenantID, scope, items)
}

func (g *WorkflowGateway) RecordTesterDecision(ctx context.Context, tenantID string, versionID string, itemID string, decision types.TesterDecision, rationale string) (DecisionWrite, error) {
	rec, err := g.decisions.SetTesterDecision(ctx, tenantID, versionID, itemID, decision, rationale)
	if err != nil {
		return DecisionWrite{}, err
	}
	g.metrics.decisionWrite("tester")
	counts, err := g.decisions.CountByState(ctx, tenantID, versionID)
	if err != nil {
		return DecisionWrite{}, err
	}
	return DecisionWrite{Record: rec, Counts: counts}, nil
}

func (g *WorkflowGateway) BulkRecordTesterDecision(ctx context.Context, tenantID string, versionID string, itemIDs []string, decision types.TesterDecision, rationale string) (BulkDecisionWrite, error) {
	records, err := g.decisions.BulkSetTesterDecision(ctx, tenantID, versionID, itemIDs, decision, rationale)
	if err != nil {
		return BulkDecisionWrite{}, err
	}
	for range records {
		g.metrics.decisionWrite("tester")
	}
	written := make(map[string]bool, len(records))
	for _, rec := range records {
		written[rec.ItemID] = true
	}
	skipped := make([]string, 0)
	for _, itemID := range itemIDs {
		if !written[itemID] {
			skipped = append(skipped, itemID)
		}
	}
	counts, err := g.decisions.CountByState(ctx, tenantID, versionID)
	if err != nil {
		return BulkDecisionWrite{}, err
	}
	return BulkDecisionWrite{Records: records, Skipped: skipped, Counts: counts}, nil
}

func (g *WorkflowGateway) RecordReportOwnerDecision(ctx context.Context, tenantID string, versionID string, itemID string, decision types.OwnerDecision, notes string) (DecisionWrite, error) {
	rec, err := g.decisions.SetReportOwnerDecision(ctx, tenantID, versionID, itemID, decision, notes)
	if err != nil {
		return DecisionWrite{}, err
	}
	g.metrics.decisionWrite("report_owner")
	counts, err := g.decisions.CountByState(ctx, tenantID, versionID)
	if err != nil {
		return DecisionWrite{}, err
	}
	return DecisionWrite{Record: rec, Counts: counts}, nil
}

func (g *WorkflowGateway) UpdateTesterRationale(ctx context.Context, tenantID string, versionID string, itemID string, rationale string) (types.AttributeDecision, error) {
	return g.decisions.UpdateTesterRationale(ctx, tenantID, versionID, itemID, rationale)
}

func (g *WorkflowGateway) UpdateOwnerNotes(ctx context.Context, tenantID string, versionID string, itemID string, notes string) (types.AttributeDecision, error) {
	return g.decisions.UpdateOwnerNotes(ctx, tenantID, versionID, itemID, notes)
}

func (g *WorkflowGateway) ListDecisions(ctx context.Context, tenantID string, versionID string) ([]types.AttributeDecision, types.DecisionCounts, error) {
	rows, err := g.decisions.ListDecisions(ctx, tenantID, versionID)
	if err != nil {
		return nil, types.DecisionCounts{}, err
	}
	counts, err := g.decisions.CountByState(ctx, tenantID, versionID)
	if err != nil {
		return nil, types.DecisionCounts{}, err
	}
	return rows, counts, nil
}

func (g *WorkflowGateway) SubmitVersion(ctx context.Context, tenantID string, versionID string, notes string) (types.DecisionVersion, error) {
	version, err := g.versions.Submit(ctx, tenantID, versionID, notes)
	g.metrics.transition(types.VersionSubmitted, err)
	return version, err
}

func (g *WorkflowGateway) ApproveVersion(ctx context.Context, tenantID string, versionID string, notes string) (types.DecisionVersion, error) {
	version, err := g.versions.Approve(ctx, tenantID, versionID, notes)
	g.metrics.transition(types.VersionApproved, err)
	return version, err
}

func (g *WorkflowGateway) RejectVersion(ctx context.Context, tenantID string, versionID string, reason string) (types.DecisionVersion, error) {
	version, err := g.versions.Reject(ctx, tenantID, versionID, reason)
	g.metrics.transition(types.VersionRejected, err)
	return version, err
}

func (g *WorkflowGateway) RequestRevision(ctx context.Context, tenantID string, versionID string, reason string) (types.DecisionVersion, error) {
	version, err := g.versions.RequestRevision(ctx, tenantID, versionID, reason)
	g.metrics.transition(types.VersionNeedsRevision, err)
	return version, err
}

func (g *WorkflowGateway) CreateResubmission(ctx context.Context, tenantID string, versionID string) (types.DecisionVersion, error) {
	return g.versions.CreateResubmission(ctx, tenantID, versionID)
}

func (g *WorkflowGateway) ListVersions(ctx context.Context, tenantID string, scope types.Scope) ([]types.VersionSummary, error) {
	return g.versions.ListVersions(ctx, tenantID, scope)
}

func (g *WorkflowGateway) Reconcile(ctx context.Context, tenantID string, versionID string) (types.ReconciliationResult, error) {
	return g.reconciler.Reconcile(ctx, tenantID, versionID)
}

// CheckAndResolve runs the automatic fast path: full agreement approves the
// version outright; anything less leaves it Submitted and returns the
// mismatch report, with escalation advice when a rule matches, for the
// report owner to act on explicitly.
func (g *WorkflowGateway) CheckAndResolve(ctx context.Context, tenantID string, versionID string) (ResolveOutcome, error) {
	result, err := g.reconciler.Reconcile(ctx, tenantID, versionID)
	if err != nil {
		return ResolveOutcome{}, err
	}
	if result.AllAgree {
		version, err := g.versions.Approve(ctx, tenantID, versionID, autoApprovalNotes)
		g.metrics.transition(types.VersionApproved, err)
		if err != nil {
			return ResolveOutcome{}, err
		}
		g.metrics.autoApproval()
		return ResolveOutcome{Resolved: true, Version: version, Result: result}, nil
	}

	version, err := g.versions.Get(ctx, tenantID, versionID)
	if err != nil {
		return ResolveOutcome{}, err
	}
	outcome := ResolveOutcome{Resolved: false, Version: version, Result: result}
	if g.escalation != nil {
		advice, ok, err := g.escalation.Advise(result, version.Scope.Phase)
		if err != nil {
			return ResolveOutcome{}, err
		}
		if ok {
			outcome.Advice = &advice
		}
	}
	return outcome, nil
}
