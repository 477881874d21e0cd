package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/ports"
	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
)

// SQLiteStore is the embedded relational backend. It mirrors the postgres
// layout so the same workflow semantics run without a server; timestamps are
// stored as RFC 3339 text.
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.WorkflowStore = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS version_items (
	tenant_id  TEXT NOT NULL,
	version_id TEXT NOT NULL,
	item_id    TEXT NOT NULL,
	is_locked  INTEGER NOT NULL DEFAULT 0,
	group_key  TEXT NOT NULL DEFAULT '',
	ord        INTEGER NOT NULL,
	PRIMARY KEY (tenant_id, version_id, item_id)
);
CREATE TABLE IF NOT EXISTS decision_versions (
	tenant_id        TEXT NOT NULL,
	version_id       TEXT NOT NULL,
	cycle_id         TEXT NOT NULL,
	report_id        TEXT NOT NULL,
	phase            TEXT NOT NULL,
	version_number   INTEGER NOT NULL,
	status           TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	submitted_at     TEXT,
	resolved_at      TEXT,
	predecessor_id   TEXT NOT NULL DEFAULT '',
	submission_notes TEXT NOT NULL DEFAULT '',
	resolution_notes TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tenant_id, version_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS decision_versions_one_open
	ON decision_versions (tenant_id, cycle_id, report_id, phase)
	WHERE status IN ('draft', 'submitted');
CREATE TABLE IF NOT EXISTS attribute_decisions (
	tenant_id         TEXT NOT NULL,
	version_id        TEXT NOT NULL,
	item_id           TEXT NOT NULL,
	is_locked         INTEGER NOT NULL DEFAULT 0,
	tester_decision   TEXT NOT NULL,
	tester_rationale  TEXT NOT NULL DEFAULT '',
	tester_decided_at TEXT,
	owner_decision    TEXT NOT NULL,
	owner_notes       TEXT NOT NULL DEFAULT '',
	owner_decided_at  TEXT,
	ord               INTEGER NOT NULL,
	PRIMARY KEY (tenant_id, version_id, item_id)
);
`

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema. Use ":memory:" for a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "scoping.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc/sqlite serializes writes; a single conn avoids table locks.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) RegisterItems(ctx context.Context, tenantID string, versionID string, items []types.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
DELETE FROM version_items WHERE tenant_id = ? AND version_id = ?
`, tenantID, versionID); err != nil {
		return err
	}
	for i, item := range items {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO version_items (tenant_id, version_id, item_id, is_locked, group_key, ord)
VALUES (?, ?, ?, ?, ?, ?)
`, tenantID, versionID, item.ItemID, boolToInt(item.IsLocked), item.GroupKey, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) VersionItems(ctx context.Context, tenantID string, versionID string) ([]types.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT item_id, is_locked, group_key
FROM version_items
WHERE tenant_id = ? AND version_id = ?
ORDER BY ord ASC
`, tenantID, versionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := make([]types.Item, 0)
	for rows.Next() {
		var item types.Item
		var locked int
		if err := rows.Scan(&item.ItemID, &locked, &item.GroupKey); err != nil {
			return nil, err
		}
		item.IsLocked = locked != 0
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, types.ErrScopeNotFound
	}
	return items, nil
}

func (s *SQLiteStore) InsertVersion(ctx context.Context, tenantID string, v types.DecisionVersion) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO decision_versions
	(tenant_id, version_id, cycle_id, report_id, phase, version_number, status,
	 created_at, submitted_at, resolved_at, predecessor_id, submission_notes, resolution_notes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, tenantID, v.VersionID, v.Scope.CycleID, v.Scope.ReportID, string(v.Scope.Phase),
		v.VersionNumber, string(v.Status), formatTime(v.CreatedAt),
		formatTimePtr(v.SubmittedAt), formatTimePtr(v.ResolvedAt),
		v.PredecessorID, v.SubmissionNotes, v.ResolutionNotes)
	return err
}

const sqliteVersionColumns = `
version_id, cycle_id, report_id, phase, version_number, status,
created_at, submitted_at, resolved_at, predecessor_id, submission_notes, resolution_notes`

func (s *SQLiteStore) GetVersion(ctx context.Context, tenantID string, versionID string) (types.DecisionVersion, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+sqliteVersionColumns+`
FROM decision_versions WHERE tenant_id = ? AND version_id = ?
`, tenantID, versionID)
	v, err := scanSQLiteVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DecisionVersion{}, types.ErrVersionNotFound
	}
	return v, err
}

func (s *SQLiteStore) LatestVersion(ctx context.Context, tenantID string, scope types.Scope) (types.DecisionVersion, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+sqliteVersionColumns+`
FROM decision_versions
WHERE tenant_id = ? AND cycle_id = ? AND report_id = ? AND phase = ?
ORDER BY version_number DESC LIMIT 1
`, tenantID, scope.CycleID, scope.ReportID, string(scope.Phase))
	v, err := scanSQLiteVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DecisionVersion{}, false, nil
	}
	if err != nil {
		return types.DecisionVersion{}, false, err
	}
	return v, true, nil
}

func (s *SQLiteStore) ListVersions(ctx context.Context, tenantID string, scope types.Scope) ([]types.DecisionVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+sqliteVersionColumns+`
FROM decision_versions
WHERE tenant_id = ? AND cycle_id = ? AND report_id = ? AND phase = ?
ORDER BY version_number DESC
`, tenantID, scope.CycleID, scope.ReportID, string(scope.Phase))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]types.DecisionVersion, 0)
	for rows.Next() {
		v, err := scanSQLiteVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TransitionVersion(ctx context.Context, tenantID string, versionID string, from, to types.VersionStatus, at time.Time, notes string) (types.DecisionVersion, error) {
	var res sql.Result
	var err error
	switch {
	case to == types.VersionSubmitted:
		res, err = s.db.ExecContext(ctx, `
UPDATE decision_versions SET status = ?, submitted_at = ?, submission_notes = ?
WHERE tenant_id = ? AND version_id = ? AND status = ?
`, string(to), formatTime(at), notes, tenantID, versionID, string(from))
	case to.Terminal():
		res, err = s.db.ExecContext(ctx, `
UPDATE decision_versions SET status = ?, resolved_at = ?, resolution_notes = ?
WHERE tenant_id = ? AND version_id = ? AND status = ?
`, string(to), formatTime(at), notes, tenantID, versionID, string(from))
	default:
		res, err = s.db.ExecContext(ctx, `
UPDATE decision_versions SET status = ?
WHERE tenant_id = ? AND version_id = ? AND status = ?
`, string(to), tenantID, versionID, string(from))
	}
	if err != nil {
		return types.DecisionVersion{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.DecisionVersion{}, err
	}
	if n == 0 {
		if _, getErr := s.GetVersion(ctx, tenantID, versionID); getErr != nil {
			return types.DecisionVersion{}, getErr
		}
		return types.DecisionVersion{}, types.ErrTransitionConflict
	}
	return s.GetVersion(ctx, tenantID, versionID)
}

func (s *SQLiteStore) UpsertDecision(ctx context.Context, tenantID string, rec types.AttributeDecision) (types.AttributeDecision, error) {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO attribute_decisions
	(tenant_id, version_id, item_id, is_locked, tester_decision, tester_rationale,
	 tester_decided_at, owner_decision, owner_notes, owner_decided_at, ord)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10,
	(SELECT COALESCE(MAX(ord), -1) + 1 FROM attribute_decisions WHERE tenant_id = ?1 AND version_id = ?2))
ON CONFLICT (tenant_id, version_id, item_id) DO UPDATE SET
	is_locked = excluded.is_locked,
	tester_decision = excluded.tester_decision,
	tester_rationale = excluded.tester_rationale,
	tester_decided_at = excluded.tester_decided_at,
	owner_decision = excluded.owner_decision,
	owner_notes = excluded.owner_notes,
	owner_decided_at = excluded.owner_decided_at
`, tenantID, rec.VersionID, rec.ItemID, boolToInt(rec.IsLocked),
		string(rec.Tester), rec.TesterRationale, formatTimePtr(rec.TesterDecidedAt),
		string(rec.Owner), rec.OwnerNotes, formatTimePtr(rec.OwnerDecidedAt))
	if err != nil {
		return types.AttributeDecision{}, err
	}
	return rec, nil
}

func (s *SQLiteStore) GetDecision(ctx context.Context, tenantID string, versionID string, itemID string) (types.AttributeDecision, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT version_id, item_id, is_locked, tester_decision, tester_rationale,
       tester_decided_at, owner_decision, owner_notes, owner_decided_at
FROM attribute_decisions
WHERE tenant_id = ? AND version_id = ? AND item_id = ?
`, tenantID, versionID, itemID)
	rec, err := scanSQLiteDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AttributeDecision{}, false, nil
	}
	if err != nil {
		return types.AttributeDecision{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) ListDecisionRows(ctx context.Context, tenantID string, versionID string) ([]types.AttributeDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT version_id, item_id, is_locked, tester_decision, tester_rationale,
       tester_decided_at, owner_decision, owner_notes, owner_decided_at
FROM attribute_decisions
WHERE tenant_id = ? AND version_id = ?
ORDER BY ord ASC
`, tenantID, versionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]types.AttributeDecision, 0)
	for rows.Next() {
		rec, err := scanSQLiteDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteVersion(row rowScanner) (types.DecisionVersion, error) {
	var v types.DecisionVersion
	var phase, status, createdAt string
	var submittedAt, resolvedAt sql.NullString
	if err := row.Scan(&v.VersionID, &v.Scope.CycleID, &v.Scope.ReportID, &phase,
		&v.VersionNumber, &status, &createdAt, &submittedAt, &resolvedAt,
		&v.PredecessorID, &v.SubmissionNotes, &v.ResolutionNotes); err != nil {
		return types.DecisionVersion{}, err
	}
	v.Scope.Phase = types.Phase(phase)
	v.Status = types.VersionStatus(status)
	var err error
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return types.DecisionVersion{}, err
	}
	if v.SubmittedAt, err = parseTimePtr(submittedAt); err != nil {
		return types.DecisionVersion{}, err
	}
	if v.ResolvedAt, err = parseTimePtr(resolvedAt); err != nil {
		return types.DecisionVersion{}, err
	}
	return v, nil
}

func scanSQLiteDecision(row rowScanner) (types.AttributeDecision, error) {
	var rec types.AttributeDecision
	var locked int
	var tester, owner string
	var testerAt, ownerAt sql.NullString
	if err := row.Scan(&rec.VersionID, &rec.ItemID, &locked, &tester, &rec.TesterRationale,
		&testerAt, &owner, &rec.OwnerNotes, &ownerAt); err != nil {
		return types.AttributeDecision{}, err
	}
	rec.IsLocked = locked != 0
	rec.Tester = types.TesterDecision(tester)
	rec.Owner = types.OwnerDecision(owner)
	var err error
	if rec.TesterDecidedAt, err = parseTimePtr(testerAt); err != nil {
		return types.AttributeDecision{}, err
	}
	if rec.OwnerDecidedAt, err = parseTimePtr(ownerAt); err != nil {
		return types.AttributeDecision{}, err
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
