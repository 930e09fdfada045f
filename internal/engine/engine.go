package engine

import (
	"sync"
	"time"

	"github.com/lethehq/lethe/internal/emotion"
	"github.com/lethehq/lethe/pkg/types"
)

// Engine ties the evaluator, scorer, and audit log together around one record
// set. It provides the serialization the core model requires: Run holds
// exclusive write access for the duration of a batch, and Retrieve is a
// read-only view of the record set as it stood after the last Run.
type Engine struct {
	evaluator *Evaluator
	scorer    *Scorer
	audit     *AuditLog

	rules        []types.Rule
	interference *types.InterferenceRule
	retrieval    types.RetrievalConfig

	mu      sync.RWMutex
	records []*types.Record
}

// New creates an engine for the given registry, rules, and retrieval
// configuration. The interference rule may be nil.
func New(registry *emotion.Registry, rules []types.Rule, interference *types.InterferenceRule, retrieval types.RetrievalConfig) *Engine {
	return &Engine{
		evaluator:    NewEvaluator(registry),
		scorer:       NewScorer(registry),
		audit:        NewAuditLog(),
		rules:        rules,
		interference: interference,
		retrieval:    retrieval,
	}
}

// Reconfigure swaps the engine's ruleset in place. The audit log and the
// loaded record set survive the swap, so observers stay attached across a
// ruleset reload.
func (e *Engine) Reconfigure(registry *emotion.Registry, rules []types.Rule, interference *types.InterferenceRule, retrieval types.RetrievalConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evaluator = NewEvaluator(registry)
	e.scorer = NewScorer(registry)
	e.rules = rules
	e.interference = interference
	e.retrieval = retrieval
}

// Load replaces the engine's record set. Records are mutated in place by
// subsequent Run calls; the engine takes ownership of the slice.
func (e *Engine) Load(records []*types.Record) {
	e.mu.Lock()
	e.records = records
	e.mu.Unlock()
}

// Run applies decay refresh and the full ruleset to the loaded records under
// the given context. It blocks retrieval until the batch completes.
func (e *Engine) Run(ctx types.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ctx.Now.IsZero() {
		ctx.Now = time.Now().UTC()
	}
	e.evaluator.Run(e.records, e.rules, e.interference, ctx, e.audit)
}

// Retrieve ranks the current record set for the query. It never mutates
// records and is safe to call concurrently with other reads.
func (e *Engine) Retrieve(query string, topk int, now time.Time) []types.ScoredRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if now.IsZero() {
		now = time.Now().UTC()
	}
	return e.scorer.Retrieve(e.records, query, topk, e.retrieval, now)
}

// Records returns the engine's record set. Callers must not mutate records
// while a Run is in progress.
func (e *Engine) Records() []*types.Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.records
}

// Audit returns the engine's append-only audit log.
func (e *Engine) Audit() *AuditLog {
	return e.audit
}

// RetrievalConfig returns the engine's retrieval configuration.
func (e *Engine) RetrievalConfig() types.RetrievalConfig {
	return e.retrieval
}
