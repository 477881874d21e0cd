package authz

const (
	RoleTester      = "tester"
	RoleReportOwner = "report-owner"
	RoleAdmin       = "admin"
	RoleAnonymous   = "anonymous"
)

const (
	ActionRead    = "read"
	ActionDecide  = "decide"  // tester decision writes
	ActionReview  = "review"  // report-owner decision writes
	ActionResolve = "resolve" // version lifecycle transitions
	ActionAdmin   = "admin"
)

const (
	ObjectScopingCycles         = "scoping.cycles"
	ObjectScopingVersions       = "scoping.versions"
	ObjectScopingDecisions      = "scoping.decisions"
	ObjectScopingOwnerDecisions = "scoping.owner-decisions"
)
