package ports

import (
	"context"
	"time"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
)

// WorkflowStore is the storage port for the decision workflow. It persists
// rows and performs the compare-and-set status transition; all workflow
// policy (locked items, submission gates, reconciliation) lives in the
// services layer so every backend shares one enforcement path.
type WorkflowStore interface {
	// RegisterItems stores the item catalog a version was opened against.
	// The snapshot is keyed by version, never shared across versions, so a
	// later review cycle on the same scope cannot alter how a resolved
	// version renders.
	RegisterItems(ctx context.Context, tenantID string, versionID string, items []types.Item) error

	// VersionItems returns the catalog snapshot for a version, or
	// ErrScopeNotFound when none was registered.
	VersionItems(ctx context.Context, tenantID string, versionID string) ([]types.Item, error)

	// InsertVersion appends a new version row.
	InsertVersion(ctx context.Context, tenantID string, v types.DecisionVersion) error

	// GetVersion returns a version by id, or ErrVersionNotFound.
	GetVersion(ctx context.Context, tenantID string, versionID string) (types.DecisionVersion, error)

	// LatestVersion returns the highest-numbered version for a scope.
	LatestVersion(ctx context.Context, tenantID string, scope types.Scope) (types.DecisionVersion, bool, error)

	// ListVersions returns all versions for a scope, newest first.
	ListVersions(ctx context.Context, tenantID string, scope types.Scope) ([]types.DecisionVersion, error)

	// TransitionVersion atomically moves a version from `from` to `to`,
	// stamping submitted_at/resolved_at as appropriate and recording notes.
	// Returns ErrTransitionConflict when the observed status is not `from`,
	// ErrVersionNotFound when the version does not exist.
	TransitionVersion(ctx context.Context, tenantID string, versionID string, from, to types.VersionStatus, at time.Time, notes string) (types.DecisionVersion, error)

	// UpsertDecision writes one decision row (insert or replace by
	// (version_id, item_id)) and returns the stored row.
	UpsertDecision(ctx context.Context, tenantID string, rec types.AttributeDecision) (types.AttributeDecision, error)

	// GetDecision returns a materialized decision row if one exists.
	GetDecision(ctx context.Context, tenantID string, versionID string, itemID string) (types.AttributeDecision, bool, error)

	// ListDecisionRows returns the materialized rows for a version, in
	// stable item order. Pending placeholders are synthesized above the port.
	ListDecisionRows(ctx context.Context, tenantID string, versionID string) ([]types.AttributeDecision, error)
}
