package types

import (
	"strings"
	"time"
)

// Phase identifies which review page family a scope belongs to. One engine
// serves all four phases.
type Phase string

const (
	PhasePlanning      Phase = "planning"
	PhaseScoping       Phase = "scoping"
	PhaseTestExecution Phase = "test-execution"
	PhaseDataProfiling Phase = "data-profiling"
)

// ParsePhase normalizes a transport phase string.
func ParsePhase(raw string) (Phase, bool) {
	switch Phase(strings.ToLower(strings.TrimSpace(raw))) {
	case PhasePlanning:
		return PhasePlanning, true
	case PhaseScoping:
		return PhaseScoping, true
	case PhaseTestExecution:
		return PhaseTestExecution, true
	case PhaseDataProfiling:
		return PhaseDataProfiling, true
	default:
		return "", false
	}
}

// Scope is the unit of review: one report within one test cycle, in one
// workflow phase. All versions and decisions hang off a scope.
type Scope struct {
	CycleID  string `json:"cycle_id"`
	ReportID string `json:"report_id"`
	Phase    Phase  `json:"phase"`
}

// Key returns the stable scope key used for storage lookups.
func (s Scope) Key() string {
	return s.CycleID + "|" + s.ReportID + "|" + string(s.Phase)
}

// VersionStatus is the lifecycle state of a submission version.
type VersionStatus string

const (
	VersionDraft         VersionStatus = "draft"
	VersionSubmitted     VersionStatus = "submitted"
	VersionApproved      VersionStatus = "approved"
	VersionRejected      VersionStatus = "rejected"
	VersionNeedsRevision VersionStatus = "needs_revision"
)

// Terminal reports whether no further writes to this version are possible.
// NeedsRevision and Rejected are terminal for the version itself; they only
// enable a successor via resubmission.
func (s VersionStatus) Terminal() bool {
	switch s {
	case VersionApproved, VersionRejected, VersionNeedsRevision:
		return true
	default:
		return false
	}
}

// Revisable reports whether a resubmission may be created from this status.
func (s VersionStatus) Revisable() bool {
	return s == VersionNeedsRevision || s == VersionRejected
}

// DecisionVersion is one immutable-once-submitted snapshot of all decisions
// for a scope. Versions are append-only; superseded versions are never
// deleted.
type DecisionVersion struct {
	VersionID       string        `json:"version_id"`
	Scope           Scope         `json:"scope"`
	VersionNumber   int           `json:"version_number"`
	Status          VersionStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	SubmittedAt     *time.Time    `json:"submitted_at,omitempty"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
	PredecessorID   string        `json:"predecessor_version_id,omitempty"`
	SubmissionNotes string        `json:"submission_notes,omitempty"`
	ResolutionNotes string        `json:"resolution_notes,omitempty"`
}

// Item is an attribute or data-quality rule subject to scoping decisions.
// The catalog is owned elsewhere; the engine reads item identity and the
// locked flag only.
type Item struct {
	ItemID   string `json:"item_id"`
	IsLocked bool   `json:"is_locked"`
	GroupKey string `json:"group_key,omitempty"`
}

// AttributeDecision is one decision row, keyed (version_id, item_id). Rows
// materialize lazily on first write; reads synthesize pending placeholders
// for items with no row yet.
type AttributeDecision struct {
	VersionID      string         `json:"version_id"`
	ItemID         string         `json:"item_id"`
	IsLocked       bool           `json:"is_locked"`
	Tester         TesterDecision `json:"tester_decision"`
	TesterRationale string        `json:"tester_rationale,omitempty"`
	TesterDecidedAt *time.Time    `json:"tester_decided_at,omitempty"`
	Owner          OwnerDecision  `json:"report_owner_decision"`
	OwnerNotes     string         `json:"report_owner_notes,omitempty"`
	OwnerDecidedAt *time.Time     `json:"report_owner_decided_at,omitempty"`
}

// DecisionCounts summarizes tester decisions for a version. Locked items
// always count as included.
type DecisionCounts struct {
	Included int `json:"included"`
	Excluded int `json:"excluded"`
	Pending  int `json:"pending"`
}

// Total is the item count covered by the version.
func (c DecisionCounts) Total() int { return c.Included + c.Excluded + c.Pending }

// Mismatch is one item on which the tester and report owner disagree.
type Mismatch struct {
	ItemID string         `json:"item_id"`
	Tester TesterDecision `json:"tester_decision"`
	Owner  OwnerDecision  `json:"owner_decision"`
}

// ReconciliationResult is the computed, never-persisted comparison of the two
// decision sets for a submitted version.
type ReconciliationResult struct {
	VersionID      string     `json:"version_id"`
	AllAgree       bool       `json:"all_agree"`
	Mismatches     []Mismatch `json:"mismatches"`
	UndecidedItems []string   `json:"undecided_items"`
}

// DecisionDelta records one item whose tester decision changed between a
// version and its predecessor.
type DecisionDelta struct {
	ItemID   string         `json:"item_id"`
	Previous TesterDecision `json:"previous"`
	Current  TesterDecision `json:"current"`
}

// VersionSummary is a history entry: the version plus its diff against the
// predecessor for display.
type VersionSummary struct {
	DecisionVersion
	ChangesFromPrevious []DecisionDelta `json:"changes_from_previous,omitempty"`
}
