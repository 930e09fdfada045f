// Package services coordinates the engine with its durable stores: loading a
// batch, running the ruleset, persisting the mutated set and audit trail, and
// writing run snapshots.
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lethehq/lethe/internal/engine"
	"github.com/lethehq/lethe/internal/export"
	"github.com/lethehq/lethe/internal/ruleset"
	"github.com/lethehq/lethe/internal/storage"
	"github.com/lethehq/lethe/pkg/types"
)

// Runner owns one engine instance and its backing store. All evaluation runs
// go through Runner.Run, which serialises store access around the batch.
type Runner struct {
	store    storage.Store
	engine   *engine.Engine
	exporter *export.Exporter
}

// NewRunner wires an engine for the given ruleset to the store. The exporter
// may be nil to disable run snapshots.
func NewRunner(store storage.Store, set *ruleset.Set, exporter *export.Exporter) *Runner {
	eng := engine.New(set.Registry, set.Rules, set.Interference, set.Retrieval)
	return &Runner{store: store, engine: eng, exporter: exporter}
}

// Engine exposes the underlying engine, primarily for wiring the audit
// observer.
func (r *Runner) Engine() *engine.Engine {
	return r.engine
}

// Store exposes the backing store for read paths (listing, audit history).
func (r *Runner) Store() storage.Store {
	return r.store
}

// Reload swaps in a new ruleset. In-flight runs finish under the old rules.
func (r *Runner) Reload(set *ruleset.Set) {
	r.engine.Reconfigure(set.Registry, set.Rules, set.Interference, set.Retrieval)
	log.Printf("engine: ruleset reloaded: %d rules", len(set.Rules))
}

// Ingest normalises and persists a new record: assigns a UUID when the input
// carries no ID, stamps timestamps, and applies the conventional weight and
// trust defaults for unspecified values.
func (r *Runner) Ingest(ctx context.Context, record *types.Record) (*types.Record, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: record is required", storage.ErrInvalidInput)
	}
	if record.Text == "" {
		return nil, fmt.Errorf("%w: record text is required", storage.ErrInvalidInput)
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	if record.Weight == 0 {
		record.Weight = 0.5
	}
	if record.Trust == 0 {
		record.Trust = 1.0
	}

	if err := r.store.Store(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// RunSummary reports what an evaluation batch did.
type RunSummary struct {
	// Records is the batch size.
	Records int `json:"records"`

	// Removed and Shielded count records in those states after the run.
	Removed  int `json:"removed"`
	Shielded int `json:"shielded"`

	// AuditEntries is the number of audit entries this run produced.
	AuditEntries int `json:"audit_entries"`

	// Snapshots names the CSV files written for this run, when exporting.
	Snapshots *export.RunFiles `json:"snapshots,omitempty"`
}

// Run loads the full record set, evaluates the ruleset against it under the
// given evaluation context, persists the mutated set and the new audit
// entries, and writes CSV snapshots.
func (r *Runner) Run(ctx context.Context, evalCtx types.Context) (*RunSummary, error) {
	records, err := r.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	before := make([]*types.Record, len(records))
	for i, rec := range records {
		before[i] = rec.Clone()
	}

	auditStart := r.engine.Audit().Len()

	r.engine.Load(records)
	r.engine.Run(evalCtx)

	newEntries := r.engine.Audit().Entries()[auditStart:]

	if err := r.store.ReplaceAll(ctx, records); err != nil {
		return nil, fmt.Errorf("persist records: %w", err)
	}
	if err := r.store.AppendBatch(ctx, newEntries); err != nil {
		return nil, fmt.Errorf("persist audit trail: %w", err)
	}

	summary := &RunSummary{
		Records:      len(records),
		AuditEntries: len(newEntries),
	}
	for _, rec := range records {
		if rec.Removed {
			summary.Removed++
		}
		if rec.Shielded {
			summary.Shielded++
		}
	}

	if r.exporter != nil {
		files, err := r.exporter.WriteRun(before, records, newEntries)
		if err != nil {
			return nil, fmt.Errorf("write snapshots: %w", err)
		}
		summary.Snapshots = &files
	}

	log.Printf("engine: run complete: %d records, %d removed, %d shielded, %d audit entries",
		summary.Records, summary.Removed, summary.Shielded, summary.AuditEntries)

	return summary, nil
}

// Retrieve loads the current record set and ranks it for the query without
// mutating anything.
func (r *Runner) Retrieve(ctx context.Context, query string, topk int, now time.Time) ([]types.ScoredRecord, error) {
	records, err := r.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	r.engine.Load(records)
	return r.engine.Retrieve(query, topk, now), nil
}
