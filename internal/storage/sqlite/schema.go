package sqlite

// Schema defines the SQLite database schema for records and audit history.
// Tags and per-rule reinforcement state are stored as JSON text; the engine
// owns their structure and the store treats them as opaque.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	id             TEXT PRIMARY KEY,
	text           TEXT NOT NULL,
	topic          TEXT NOT NULL DEFAULT '',
	tags           TEXT NOT NULL DEFAULT '[]',
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL,
	decayed_at     TIMESTAMP NOT NULL,
	weight         REAL NOT NULL DEFAULT 0.5,
	trust          REAL NOT NULL DEFAULT 1.0,
	emotion        TEXT NOT NULL DEFAULT '',
	shielded       INTEGER NOT NULL DEFAULT 0,
	pinned         INTEGER NOT NULL DEFAULT 0,
	pin_priority   REAL NOT NULL DEFAULT 0,
	removed        INTEGER NOT NULL DEFAULT 0,
	reinforcements TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_records_topic ON records(topic);
CREATE INDEX IF NOT EXISTS idx_records_emotion ON records(emotion);
CREATE INDEX IF NOT EXISTS idx_records_updated_at ON records(updated_at);

CREATE TABLE IF NOT EXISTS audit_log (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	at            TIMESTAMP NOT NULL,
	rule_id       TEXT NOT NULL,
	record_id     TEXT NOT NULL,
	action        TEXT NOT NULL DEFAULT '',
	weight_before REAL NOT NULL,
	weight_after  REAL NOT NULL,
	outcome       TEXT NOT NULL,
	detail        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_record_id ON audit_log(record_id);
`
