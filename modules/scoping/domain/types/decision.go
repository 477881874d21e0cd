package types

import "strings"

// TesterDecision is the tester-side scoping call for a single item.
type TesterDecision string

const (
	TesterPending TesterDecision = "pending"
	TesterInclude TesterDecision = "include"
	TesterExclude TesterDecision = "exclude"
)

// OwnerDecision is the report-owner review outcome for a single item.
type OwnerDecision string

const (
	OwnerPending       OwnerDecision = "pending"
	OwnerApproved      OwnerDecision = "approved"
	OwnerRejected      OwnerDecision = "rejected"
	OwnerNeedsRevision OwnerDecision = "needs_revision"
)

// ParseTesterDecision normalizes transport spellings ("Include", "ACCEPT",
// "decline"...) to the canonical enum. Raw strings never travel past the
// controller boundary.
func ParseTesterDecision(raw string) (TesterDecision, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "include", "accept", "accepted":
		return TesterInclude, true
	case "exclude", "decline", "declined":
		return TesterExclude, true
	case "pending":
		return TesterPending, true
	default:
		return "", false
	}
}

// ParseOwnerDecision normalizes transport spellings of the report-owner
// decision. Pending is not accepted: owners record a decision or nothing.
func ParseOwnerDecision(raw string) (OwnerDecision, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "approve":
		return OwnerApproved, true
	case "rejected", "reject":
		return OwnerRejected, true
	case "needs_revision", "needs-revision", "revision":
		return OwnerNeedsRevision, true
	default:
		return "", false
	}
}

// InScope reports whether the tester decision places the item in scope.
func (d TesterDecision) InScope() bool { return d == TesterInclude }

// Decided reports whether the tester has made an explicit call.
func (d TesterDecision) Decided() bool {
	return d == TesterInclude || d == TesterExclude
}

// Decided reports whether the owner has made an explicit call.
func (d OwnerDecision) Decided() bool { return d != OwnerPending && d != "" }

// AgreesWith applies the reconciliation agreement rule: Approved agrees with
// an in-scope tester call, Rejected agrees with an out-of-scope call, and
// NeedsRevision never agrees.
func (d OwnerDecision) AgreesWith(tester TesterDecision) bool {
	switch d {
	case OwnerApproved:
		return tester.InScope()
	case OwnerRejected:
		return !tester.InScope() && tester.Decided()
	default:
		return false
	}
}
