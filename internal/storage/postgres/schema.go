package postgres

// Schema defines the PostgreSQL schema for records and audit history. It
// mirrors the SQLite schema; tags and reinforcement state are JSONB so
// operators can still query into them.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	id             TEXT PRIMARY KEY,
	text           TEXT NOT NULL,
	topic          TEXT NOT NULL DEFAULT '',
	tags           JSONB NOT NULL DEFAULT '[]',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	decayed_at     TIMESTAMPTZ NOT NULL,
	weight         DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	trust          DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	emotion        TEXT NOT NULL DEFAULT '',
	shielded       BOOLEAN NOT NULL DEFAULT FALSE,
	pinned         BOOLEAN NOT NULL DEFAULT FALSE,
	pin_priority   DOUBLE PRECISION NOT NULL DEFAULT 0,
	removed        BOOLEAN NOT NULL DEFAULT FALSE,
	reinforcements JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_records_topic ON records(topic);
CREATE INDEX IF NOT EXISTS idx_records_emotion ON records(emotion);
CREATE INDEX IF NOT EXISTS idx_records_updated_at ON records(updated_at);

CREATE TABLE IF NOT EXISTS audit_log (
	seq           BIGSERIAL PRIMARY KEY,
	at            TIMESTAMPTZ NOT NULL,
	rule_id       TEXT NOT NULL,
	record_id     TEXT NOT NULL,
	action        TEXT NOT NULL DEFAULT '',
	weight_before DOUBLE PRECISION NOT NULL,
	weight_after  DOUBLE PRECISION NOT NULL,
	outcome       TEXT NOT NULL,
	detail        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_record_id ON audit_log(record_id);
`
