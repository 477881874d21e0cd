package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/ports"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore is the production backend. Every call runs in its own transaction
// with the tenant pinned via set_config so row-level security policies apply.
type PGStore struct {
	pool pgBeginner
}

func NewPGStore(pool pgBeginner) *PGStore {
	return &PGStore{pool: pool}
}

var _ ports.WorkflowStore = (*PGStore)(nil)

func (s *PGStore) begin(ctx context.Context, tenantID string) (pgx.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		_ = tx.Rollback(context.Background())
		return nil, err
	}
	return tx, nil
}

func (s *PGStore) RegisterItems(ctx context.Context, tenantID string, versionID string, items []types.Item) error {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `
DELETE FROM scoping.version_items
WHERE tenant_id = $1 AND version_id = $2
`, tenantID, versionID); err != nil {
		return err
	}
	for i, item := range items {
		if _, err := tx.Exec(ctx, `
INSERT INTO scoping.version_items (tenant_id, version_id, item_id, is_locked, group_key, ord)
VALUES ($1, $2, $3, $4, $5, $6)
`, tenantID, versionID, item.ItemID, item.IsLocked, item.GroupKey, i); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PGStore) VersionItems(ctx context.Context, tenantID string, versionID string) ([]types.Item, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT item_id, is_locked, group_key
FROM scoping.version_items
WHERE tenant_id = $1 AND version_id = $2
ORDER BY ord ASC
`, tenantID, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]types.Item, 0)
	for rows.Next() {
		var item types.Item
		if err := rows.Scan(&item.ItemID, &item.IsLocked, &item.GroupKey); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, types.ErrScopeNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *PGStore) InsertVersion(ctx context.Context, tenantID string, v types.DecisionVersion) error {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO scoping.decision_versions
	(tenant_id, version_id, cycle_id, report_id, phase, version_number, status,
	 created_at, submitted_at, resolved_at, predecessor_id, submission_notes, resolution_notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`, tenantID, v.VersionID, v.Scope.CycleID, v.Scope.ReportID, string(v.Scope.Phase),
		v.VersionNumber, string(v.Status), v.CreatedAt, v.SubmittedAt, v.ResolvedAt,
		v.PredecessorID, v.SubmissionNotes, v.ResolutionNotes); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const pgVersionColumns = `
version_id, cycle_id, report_id, phase, version_number, status,
created_at, submitted_at, resolved_at, predecessor_id, submission_notes, resolution_notes`

func (s *PGStore) GetVersion(ctx context.Context, tenantID string, versionID string) (types.DecisionVersion, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.DecisionVersion{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	v, err := scanPGVersion(tx.QueryRow(ctx, `
SELECT `+pgVersionColumns+`
FROM scoping.decision_versions WHERE tenant_id = $1 AND version_id = $2
`, tenantID, versionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.DecisionVersion{}, types.ErrVersionNotFound
	}
	if err != nil {
		return types.DecisionVersion{}, err
	}
	return v, tx.Commit(ctx)
}

func (s *PGStore) LatestVersion(ctx context.Context, tenantID string, scope types.Scope) (types.DecisionVersion, bool, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.DecisionVersion{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	v, err := scanPGVersion(tx.QueryRow(ctx, `
SELECT `+pgVersionColumns+`
FROM scoping.decision_versions
WHERE tenant_id = $1 AND cycle_id = $2 AND report_id = $3 AND phase = $4
ORDER BY version_number DESC LIMIT 1
`, tenantID, scope.CycleID, scope.ReportID, string(scope.Phase)))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.DecisionVersion{}, false, nil
	}
	if err != nil {
		return types.DecisionVersion{}, false, err
	}
	return v, true, tx.Commit(ctx)
}

func (s *PGStore) ListVersions(ctx context.Context, tenantID string, scope types.Scope) ([]types.DecisionVersion, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT `+pgVersionColumns+`
FROM scoping.decision_versions
WHERE tenant_id = $1 AND cycle_id = $2 AND report_id = $3 AND phase = $4
ORDER BY version_number DESC
`, tenantID, scope.CycleID, scope.ReportID, string(scope.Phase))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.DecisionVersion, 0)
	for rows.Next() {
		v, err := scanPGVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

func (s *PGStore) TransitionVersion(ctx context.Context, tenantID string, versionID string, from, to types.VersionStatus, at time.Time, notes string) (types.DecisionVersion, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.DecisionVersion{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var sql string
	args := []any{string(to), at, notes, tenantID, versionID, string(from)}
	switch {
	case to == types.VersionSubmitted:
		sql = `
UPDATE scoping.decision_versions SET status = $1, submitted_at = $2, submission_notes = $3
WHERE tenant_id = $4 AND version_id = $5 AND status = $6
RETURNING ` + pgVersionColumns
	case to.Terminal():
		sql = `
UPDATE scoping.decision_versions SET status = $1, resolved_at = $2, resolution_notes = $3
WHERE tenant_id = $4 AND version_id = $5 AND status = $6
RETURNING ` + pgVersionColumns
	default:
		sql = `
UPDATE scoping.decision_versions SET status = $1
WHERE tenant_id = $2 AND version_id = $3 AND status = $4
RETURNING ` + pgVersionColumns
		args = []any{string(to), tenantID, versionID, string(from)}
	}

	v, err := scanPGVersion(tx.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing version from a lost CAS race.
		var exists bool
		if chkErr := tx.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM scoping.decision_versions WHERE tenant_id = $1 AND version_id = $2)
`, tenantID, versionID).Scan(&exists); chkErr != nil {
			return types.DecisionVersion{}, chkErr
		}
		if !exists {
			return types.DecisionVersion{}, types.ErrVersionNotFound
		}
		return types.DecisionVersion{}, types.ErrTransitionConflict
	}
	if err != nil {
		return types.DecisionVersion{}, err
	}
	return v, tx.Commit(ctx)
}

func (s *PGStore) UpsertDecision(ctx context.Context, tenantID string, rec types.AttributeDecision) (types.AttributeDecision, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.AttributeDecision{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO scoping.attribute_decisions
	(tenant_id, version_id, item_id, is_locked, tester_decision, tester_rationale,
	 tester_decided_at, owner_decision, owner_notes, owner_decided_at, ord)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
	(SELECT COALESCE(MAX(ord), -1) + 1 FROM scoping.attribute_decisions WHERE tenant_id = $1 AND version_id = $2))
ON CONFLICT (tenant_id, version_id, item_id) DO UPDATE SET
	is_locked = EXCLUDED.is_locked,
	tester_decision = EXCLUDED.tester_decision,
	tester_rationale = EXCLUDED.tester_rationale,
	tester_decided_at = EXCLUDED.tester_decided_at,
	owner_decision = EXCLUDED.owner_decision,
	owner_notes = EXCLUDED.owner_notes,
	owner_decided_at = EXCLUDED.owner_decided_at
`, tenantID, rec.VersionID, rec.ItemID, rec.IsLocked, string(rec.Tester), rec.TesterRationale,
		rec.TesterDecidedAt, string(rec.Owner), rec.OwnerNotes, rec.OwnerDecidedAt); err != nil {
		return types.AttributeDecision{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.AttributeDecision{}, err
	}
	return rec, nil
}

func (s *PGStore) GetDecision(ctx context.Context, tenantID string, versionID string, itemID string) (types.AttributeDecision, bool, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.AttributeDecision{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rec, err := scanPGDecision(tx.QueryRow(ctx, `
SELECT version_id, item_id, is_locked, tester_decision, tester_rationale,
       tester_decided_at, owner_decision, owner_notes, owner_decided_at
FROM scoping.attribute_decisions
WHERE tenant_id = $1 AND version_id = $2 AND item_id = $3
`, tenantID, versionID, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.AttributeDecision{}, false, nil
	}
	if err != nil {
		return types.AttributeDecision{}, false, err
	}
	return rec, true, tx.Commit(ctx)
}

func (s *PGStore) ListDecisionRows(ctx context.Context, tenantID string, versionID string) ([]types.AttributeDecision, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT version_id, item_id, is_locked, tester_decision, tester_rationale,
       tester_decided_at, owner_decision, owner_notes, owner_decided_at
FROM scoping.attribute_decisions
WHERE tenant_id = $1 AND version_id = $2
ORDER BY ord ASC
`, tenantID, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.AttributeDecision, 0)
	for rows.Next() {
		rec, err := scanPGDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

func scanPGVersion(row pgx.Row) (types.DecisionVersion, error) {
	var v types.DecisionVersion
	var phase, status string
	if err := row.Scan(&v.VersionID, &v.Scope.CycleID, &v.Scope.ReportID, &phase,
		&v.VersionNumber, &status, &v.CreatedAt, &v.SubmittedAt, &v.ResolvedAt,
		&v.PredecessorID, &v.SubmissionNotes, &v.ResolutionNotes); err != nil {
		return types.DecisionVersion{}, err
	}
	v.Scope.Phase = types.Phase(phase)
	v.Status = types.VersionStatus(status)
	return v, nil
}

func scanPGDecision(row pgx.Row) (types.AttributeDecision, error) {
	var rec types.AttributeDecision
	var tester, owner string
	if err := row.Scan(&rec.VersionID, &rec.ItemID, &rec.IsLocked, &tester, &rec.TesterRationale,
		&rec.TesterDecidedAt, &owner, &rec.OwnerNotes, &rec.OwnerDecidedAt); err != nil {
		return types.AttributeDecision{}, err
	}
	rec.Tester = types.TesterDecision(tester)
	rec.Owner = types.OwnerDecision(owner)
	return rec, nil
}
