// Package sqlite implements the storage interfaces on a local SQLite
// database. It is the default backend: zero-setup, single file, good enough
// for one engine instance.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/lethehq/lethe/internal/storage"
	"github.com/lethehq/lethe/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at the given DSN, configures WAL mode, and
// creates the schema.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode allows concurrent readers to proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Store creates or updates a record (upsert semantics).
func (s *Store) Store(ctx context.Context, record *types.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: record with an id is required", storage.ErrInvalidInput)
	}

	tags, reinforcements, err := marshalRecordBlobs(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (
			id, text, topic, tags, created_at, updated_at, decayed_at,
			weight, trust, emotion, shielded, pinned, pin_priority,
			removed, reinforcements
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			topic = excluded.topic,
			tags = excluded.tags,
			updated_at = excluded.updated_at,
			decayed_at = excluded.decayed_at,
			weight = excluded.weight,
			trust = excluded.trust,
			emotion = excluded.emotion,
			shielded = excluded.shielded,
			pinned = excluded.pinned,
			pin_priority = excluded.pin_priority,
			removed = excluded.removed,
			reinforcements = excluded.reinforcements
	`,
		record.ID, record.Text, record.Topic, tags,
		record.CreatedAt, record.UpdatedAt, record.DecayedAt,
		record.Weight, record.Trust, record.Emotion,
		record.Shielded, record.Pinned, record.PinPriority,
		record.Removed, reinforcements,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to store record %s: %w", record.ID, err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecords+" WHERE id = ?", id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: record %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get record %s: %w", id, err)
	}
	return record, nil
}

// List retrieves records with pagination and filtering.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Record], error) {
	opts.Normalize()

	where, args := recordFilters(opts)

	var total int
	countQuery := "SELECT COUNT(*) FROM records" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count records: %w", err)
	}

	// SortBy/SortOrder are whitelist-validated by Normalize.
	query := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT ? OFFSET ?",
		selectRecords, where, opts.SortBy, strings.ToUpper(opts.SortOrder))
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list records: %w", err)
	}
	defer rows.Close()

	items := make([]types.Record, 0, opts.Limit)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan record: %w", err)
		}
		items = append(items, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: record iteration failed: %w", err)
	}

	return &storage.PaginatedResult[types.Record]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// All returns every stored record, removed ones included, ordered by ID.
func (s *Store) All(ctx context.Context) ([]*types.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecords+" ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load records: %w", err)
	}
	defer rows.Close()

	var records []*types.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: record iteration failed: %w", err)
	}
	return records, nil
}

// ReplaceAll atomically replaces the stored set with the given records.
func (s *Store) ReplaceAll(ctx context.Context, records []*types.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("sqlite: failed to clear records: %w", err)
	}

	for _, record := range records {
		tags, reinforcements, err := marshalRecordBlobs(record)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO records (
				id, text, topic, tags, created_at, updated_at, decayed_at,
				weight, trust, emotion, shielded, pinned, pin_priority,
				removed, reinforcements
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			record.ID, record.Text, record.Topic, tags,
			record.CreatedAt, record.UpdatedAt, record.DecayedAt,
			record.Weight, record.Trust, record.Emotion,
			record.Shielded, record.Pinned, record.PinPriority,
			record.Removed, reinforcements,
		); err != nil {
			return fmt.Errorf("sqlite: failed to insert record %s: %w", record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit record set: %w", err)
	}
	return nil
}

// Delete permanently removes a record by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete record %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: record %s", storage.ErrNotFound, id)
	}
	return nil
}

// Append persists a single audit entry.
func (s *Store) Append(ctx context.Context, entry types.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (at, rule_id, record_id, action, weight_before, weight_after, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.Timestamp, entry.RuleID, entry.RecordID, string(entry.Action),
		entry.WeightBefore, entry.WeightAfter, string(entry.Outcome), entry.Detail)
	if err != nil {
		return fmt.Errorf("sqlite: failed to append audit entry: %w", err)
	}
	return nil
}

// AppendBatch persists a batch of audit entries in order, atomically.
func (s *Store) AppendBatch(ctx context.Context, entries []types.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO audit_log (at, rule_id, record_id, action, weight_before, weight_after, outcome, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, entry.Timestamp, entry.RuleID, entry.RecordID, string(entry.Action),
			entry.WeightBefore, entry.WeightAfter, string(entry.Outcome), entry.Detail); err != nil {
			return fmt.Errorf("sqlite: failed to append audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit audit batch: %w", err)
	}
	return nil
}

// ListAudit retrieves audit entries with pagination, oldest first.
func (s *Store) ListAudit(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.AuditEntry], error) {
	opts.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count audit entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT at, rule_id, record_id, action, weight_before, weight_after, outcome, detail
		FROM audit_log ORDER BY seq ASC LIMIT ? OFFSET ?
	`, opts.Limit, opts.Offset())
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list audit entries: %w", err)
	}
	defer rows.Close()

	items := make([]types.AuditEntry, 0, opts.Limit)
	for rows.Next() {
		var entry types.AuditEntry
		var action, outcome string
		if err := rows.Scan(&entry.Timestamp, &entry.RuleID, &entry.RecordID, &action,
			&entry.WeightBefore, &entry.WeightAfter, &outcome, &entry.Detail); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan audit entry: %w", err)
		}
		entry.Action = types.RuleAction(action)
		entry.Outcome = types.AuditOutcome(outcome)
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: audit iteration failed: %w", err)
	}

	return &storage.PaginatedResult[types.AuditEntry]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

const selectRecords = `
	SELECT id, text, topic, tags, created_at, updated_at, decayed_at,
	       weight, trust, emotion, shielded, pinned, pin_priority,
	       removed, reinforcements
	FROM records`

// scanner abstracts sql.Row and sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*types.Record, error) {
	var record types.Record
	var tags, reinforcements string

	if err := row.Scan(
		&record.ID, &record.Text, &record.Topic, &tags,
		&record.CreatedAt, &record.UpdatedAt, &record.DecayedAt,
		&record.Weight, &record.Trust, &record.Emotion,
		&record.Shielded, &record.Pinned, &record.PinPriority,
		&record.Removed, &reinforcements,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &record.Tags); err != nil {
		return nil, fmt.Errorf("malformed tags for record %s: %w", record.ID, err)
	}
	if err := json.Unmarshal([]byte(reinforcements), &record.Reinforcements); err != nil {
		return nil, fmt.Errorf("malformed reinforcement state for record %s: %w", record.ID, err)
	}

	return &record, nil
}

func marshalRecordBlobs(record *types.Record) (tags string, reinforcements string, err error) {
	tagBytes, err := json.Marshal(record.Tags)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode tags for record %s: %w", record.ID, err)
	}
	if record.Tags == nil {
		tagBytes = []byte("[]")
	}

	reinfBytes, err := json.Marshal(record.Reinforcements)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode reinforcement state for record %s: %w", record.ID, err)
	}
	if record.Reinforcements == nil {
		reinfBytes = []byte("{}")
	}

	return string(tagBytes), string(reinfBytes), nil
}

func recordFilters(opts storage.ListOptions) (string, []any) {
	var clauses []string
	var args []any

	if !opts.IncludeRemoved {
		clauses = append(clauses, "removed = 0")
	}
	if !opts.IncludeShielded {
		clauses = append(clauses, "shielded = 0")
	}
	if opts.Topic != "" {
		clauses = append(clauses, "topic = ?")
		args = append(args, opts.Topic)
	}
	if opts.Emotion != "" {
		clauses = append(clauses, "emotion = ?")
		args = append(args, opts.Emotion)
	}
	if opts.Tag != "" {
		// Tags are a JSON array of strings; match the quoted element.
		clauses = append(clauses, "tags LIKE ?")
		args = append(args, `%"`+opts.Tag+`"%`)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
