package persistence

import "context"

// PGSchema is the DDL for the scoping workflow tables. Deployments normally
// apply it through their migration tooling; ApplyPGSchema exists for dev
// bootstrap.
const PGSchema = `
CREATE SCHEMA IF NOT EXISTS scoping;

-- Catalog snapshot per version: later cycles on the same scope register
-- their own rows, so resolved versions keep rendering against the catalog
-- they were decided under.
CREATE TABLE IF NOT EXISTS scoping.version_items (
	tenant_id  TEXT NOT NULL,
	version_id TEXT NOT NULL,
	item_id    TEXT NOT NULL,
	is_locked  BOOLEAN NOT NULL DEFAULT FALSE,
	group_key  TEXT NOT NULL DEFAULT '',
	ord        INTEGER NOT NULL,
	PRIMARY KEY (tenant_id, version_id, item_id)
);

CREATE TABLE IF NOT EXISTS scoping.decision_versions (
	tenant_id        TEXT NOT NULL,
	version_id       TEXT NOT NULL,
	cycle_id         TEXT NOT NULL,
	report_id        TEXT NOT NULL,
	phase            TEXT NOT NULL,
	version_number   INTEGER NOT NULL,
	status           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	submitted_at     TIMESTAMPTZ,
	resolved_at      TIMESTAMPTZ,
	predecessor_id   TEXT NOT NULL DEFAULT '',
	submission_notes TEXT NOT NULL DEFAULT '',
	resolution_notes TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tenant_id, version_id)
);

-- At most one open (draft or submitted) version per scope.
CREATE UNIQUE INDEX IF NOT EXISTS decision_versions_one_open
	ON scoping.decision_versions (tenant_id, cycle_id, report_id, phase)
	WHERE status IN ('draft', 'submitted');

CREATE TABLE IF NOT EXISTS scoping.attribute_decisions (
	tenant_id         TEXT NOT NULL,
	version_id        TEXT NOT NULL,
	item_id           TEXT NOT NULL,
	is_locked         BOOLEAN NOT NULL DEFAULT FALSE,
	tester_decision   TEXT NOT NULL,
	tester_rationale  TEXT NOT NULL DEFAULT '',
	tester_decided_at TIMESTAMPTZ,
	owner_decision    TEXT NOT NULL,
	owner_notes       TEXT NOT NULL DEFAULT '',
	owner_decided_at  TIMESTAMPTZ,
	ord               INTEGER NOT NULL,
	PRIMARY KEY (tenant_id, version_id, item_id)
);
`

// ApplyPGSchema applies the workflow DDL in a single transaction.
func ApplyPGSchema(ctx context.Context, pool pgBeginner) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, PGSchema); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
