// Package postgres implements the storage interfaces on PostgreSQL for
// deployments where the record set outlives a single host. All queries run
// through a circuit breaker so a struggling database degrades into fast
// storage-unavailable errors instead of piling up blocked requests.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sony/gobreaker"

	"github.com/lethehq/lethe/internal/storage"
	"github.com/lethehq/lethe/pkg/types"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db      *sql.DB
	breaker *gobreaker.CircuitBreaker
}

// NewStore connects to PostgreSQL using the given DSN and creates the schema.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "postgres",
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Store{db: db, breaker: breaker}, nil
}

// Close releases the underlying database connections.
func (s *Store) Close() error {
	return s.db.Close()
}

// execute runs fn through the circuit breaker, mapping an open circuit to
// storage.ErrUnavailable.
func (s *Store) execute(fn func() (any, error)) (any, error) {
	result, err := s.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return result, err
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

	_, err = s.execute(func() (any, error) {
		return s.db.ExecContext(ctx, `
			INSERT INTO records (
				id, text, topic, tags, created_at, updated_at, decayed_at,
				weight, trust, emotion, shielded, pinned, pin_priority,
				removed, reinforcements
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (id) DO UPDATE SET
				text = EXCLUDED.text,
				topic = EXCLUDED.topic,
				tags = EXCLUDED.tags,
				updated_at = EXCLUDED.updated_at,
				decayed_at = EXCLUDED.decayed_at,
				weight = EXCLUDED.weight,
				trust = EXCLUDED.trust,
				emotion = EXCLUDED.emotion,
				shielded = EXCLUDED.shielded,
				pinned = EXCLUDED.pinned,
				pin_priority = EXCLUDED.pin_priority,
				removed = EXCLUDED.removed,
				reinforcements = EXCLUDED.reinforcements
		`,
			record.ID, record.Text, record.Topic, tags,
			record.CreatedAt, record.UpdatedAt, record.DecayedAt,
			record.Weight, record.Trust, record.Emotion,
			record.Shielded, record.Pinned, record.PinPriority,
			record.Removed, reinforcements,
		)
	})
	if err != nil {
		return fmt.Errorf("postgres: failed to store record %s: %w", record.ID, err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.Record, error) {
	result, err := s.execute(func() (any, error) {
		row := s.db.QueryRowContext(ctx, selectRecords+" WHERE id = $1", id)
		record, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: record %s", storage.ErrNotFound, id)
		}
		return record, err
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: failed to get record %s: %w", id, err)
	}
	return result.(*types.Record), nil
}

// List retrieves records with pagination and filtering.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Record], error) {
	opts.Normalize()

	result, err := s.execute(func() (any, error) {
		where, args := recordFilters(opts)

		var total int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records"+where, args...).Scan(&total); err != nil {
			return nil, fmt.Errorf("count records: %w", err)
		}

		// SortBy/SortOrder are whitelist-validated by Normalize.
		query := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT $%d OFFSET $%d",
			selectRecords, where, opts.SortBy, strings.ToUpper(opts.SortOrder),
			len(args)+1, len(args)+2)
		rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		defer rows.Close()

		items := make([]types.Record, 0, opts.Limit)
		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				return nil, fmt.Errorf("scan record: %w", err)
			}
			items = append(items, *record)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("record iteration: %w", err)
		}

		return &storage.PaginatedResult[types.Record]{
			Items:    items,
			Total:    total,
			Page:     opts.Page,
			PageSize: opts.Limit,
			HasMore:  opts.Offset()+len(items) < total,
		}, nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return result.(*storage.PaginatedResult[types.Record]), nil
}

// All returns every stored record, removed ones included, ordered by ID.
func (s *Store) All(ctx context.Context) ([]*types.Record, error) {
	result, err := s.execute(func() (any, error) {
		rows, err := s.db.QueryContext(ctx, selectRecords+" ORDER BY id ASC")
		if err != nil {
			return nil, fmt.Errorf("load records: %w", err)
		}
		defer rows.Close()

		var records []*types.Record
		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				return nil, fmt.Errorf("scan record: %w", err)
			}
			records = append(records, record)
		}
		return records, rows.Err()
	})
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return result.([]*types.Record), nil
}

// ReplaceAll atomically replaces the stored set with the given records.
func (s *Store) ReplaceAll(ctx context.Context, records []*types.Record) error {
	_, err := s.execute(func() (any, error) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
			return nil, fmt.Errorf("clear records: %w", err)
		}

		for _, record := range records {
			tags, reinforcements, err := marshalRecordBlobs(record)
			if err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO records (
					id, text, topic, tags, created_at, updated_at, decayed_at,
					weight, trust, emotion, shielded, pinned, pin_priority,
					removed, reinforcements
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			`,
				record.ID, record.Text, record.Topic, tags,
				record.CreatedAt, record.UpdatedAt, record.DecayedAt,
				record.Weight, record.Trust, record.Emotion,
				record.Shielded, record.Pinned, record.PinPriority,
				record.Removed, reinforcements,
			); err != nil {
				return nil, fmt.Errorf("insert record %s: %w", record.ID, err)
			}
		}

		return nil, tx.Commit()
	})
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return err
		}
		return fmt.Errorf("postgres: failed to replace record set: %w", err)
	}
	return nil
}

// Delete permanently removes a record by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.execute(func() (any, error) {
		res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE id = $1", id)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: record %s", storage.ErrNotFound, id)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrUnavailable) {
			return err
		}
		return fmt.Errorf("postgres: failed to delete record %s: %w", id, err)
	}
	return nil
}

// Append persists a single audit entry.
func (s *Store) Append(ctx context.Context, entry types.AuditEntry) error {
	return s.AppendBatch(ctx, []types.AuditEntry{entry})
}

// AppendBatch persists a batch of audit entries in order, atomically.
func (s *Store) AppendBatch(ctx context.Context, entries []types.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	_, err := s.execute(func() (any, error) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		for _, entry := range entries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO audit_log (at, rule_id, record_id, action, weight_before, weight_after, outcome, detail)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, entry.Timestamp, entry.RuleID, entry.RecordID, string(entry.Action),
				entry.WeightBefore, entry.WeightAfter, string(entry.Outcome), entry.Detail); err != nil {
				return nil, fmt.Errorf("append audit entry: %w", err)
			}
		}

		return nil, tx.Commit()
	})
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return err
		}
		return fmt.Errorf("postgres: failed to append audit entries: %w", err)
	}
	return nil
}

// ListAudit retrieves audit entries with pagination, oldest first.
func (s *Store) ListAudit(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.AuditEntry], error) {
	opts.Normalize()

	result, err := s.execute(func() (any, error) {
		var total int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&total); err != nil {
			return nil, fmt.Errorf("count audit entries: %w", err)
		}

		rows, err := s.db.QueryContext(ctx, `
			SELECT at, rule_id, record_id, action, weight_before, weight_after, outcome, detail
			FROM audit_log ORDER BY seq ASC LIMIT $1 OFFSET $2
		`, opts.Limit, opts.Offset())
		if err != nil {
			return nil, fmt.Errorf("list audit entries: %w", err)
		}
		defer rows.Close()

		items := make([]types.AuditEntry, 0, opts.Limit)
		for rows.Next() {
			var entry types.AuditEntry
			var action, outcome string
			if err := rows.Scan(&entry.Timestamp, &entry.RuleID, &entry.RecordID, &action,
				&entry.WeightBefore, &entry.WeightAfter, &outcome, &entry.Detail); err != nil {
				return nil, fmt.Errorf("scan audit entry: %w", err)
			}
			entry.Action = types.RuleAction(action)
			entry.Outcome = types.AuditOutcome(outcome)
			items = append(items, entry)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("audit iteration: %w", err)
		}

		return &storage.PaginatedResult[types.AuditEntry]{
			Items:    items,
			Total:    total,
			Page:     opts.Page,
			PageSize: opts.Limit,
			HasMore:  opts.Offset()+len(items) < total,
		}, nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return result.(*storage.PaginatedResult[types.AuditEntry]), nil
}

const selectRecords = `
	SELECT id, text, topic, tags, created_at, updated_at, decayed_at,
	       weight, trust, emotion, shielded, pinned, pin_priority,
	       removed, reinforcements
	FROM records`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*types.Record, error) {
	var record types.Record
	var tags, reinforcements []byte

	if err := row.Scan(
		&record.ID, &record.Text, &record.Topic, &tags,
		&record.CreatedAt, &record.UpdatedAt, &record.DecayedAt,
		&record.Weight, &record.Trust, &record.Emotion,
		&record.Shielded, &record.Pinned, &record.PinPriority,
		&record.Removed, &reinforcements,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(tags, &record.Tags); err != nil {
		return nil, fmt.Errorf("malformed tags for record %s: %w", record.ID, err)
	}
	if err := json.Unmarshal(reinforcements, &record.Reinforcements); err != nil {
		return nil, fmt.Errorf("malformed reinforcement state for record %s: %w", record.ID, err)
	}

	return &record, nil
}

func marshalRecordBlobs(record *types.Record) ([]byte, []byte, error) {
	tags, err := json.Marshal(record.Tags)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode tags for record %s: %w", record.ID, err)
	}
	if record.Tags == nil {
		tags = []byte("[]")
	}

	reinforcements, err := json.Marshal(record.Reinforcements)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode reinforcement state for record %s: %w", record.ID, err)
	}
	if record.Reinforcements == nil {
		reinforcements = []byte("{}")
	}

	return tags, reinforcements, nil
}

func recordFilters(opts storage.ListOptions) (string, []any) {
	var clauses []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !opts.IncludeRemoved {
		clauses = append(clauses, "removed = FALSE")
	}
	if !opts.IncludeShielded {
		clauses = append(clauses, "shielded = FALSE")
	}
	if opts.Topic != "" {
		clauses = append(clauses, "topic = "+arg(opts.Topic))
	}
	if opts.Emotion != "" {
		clauses = append(clauses, "emotion = "+arg(opts.Emotion))
	}
	if opts.Tag != "" {
		clauses = append(clauses, "tags ? "+arg(opts.Tag))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
