package types

import "time"

// AuditOutcome classifies what happened when a rule met a record.
type AuditOutcome string

const (
	// OutcomeApplied means the action mutated the record.
	OutcomeApplied AuditOutcome = "applied"

	// OutcomeSkippedCooldown means a reinforcement arrived before the rule's
	// cooldown elapsed. Not an error; the weight is unchanged.
	OutcomeSkippedCooldown AuditOutcome = "skipped_cooldown"

	// OutcomeSkippedRemoved means a mutation was attempted on an
	// already-removed record and ignored.
	OutcomeSkippedRemoved AuditOutcome = "skipped_removed"

	// OutcomeSkippedUnknownProfile means the rule referenced an emotion
	// profile absent from the registry; only this rule/record pair was skipped.
	OutcomeSkippedUnknownProfile AuditOutcome = "skipped_unknown_profile"
)

// AuditEntry is one immutable record of a rule application. Entries are
// appended in evaluation order and never mutated.
type AuditEntry struct {
	// Timestamp is the evaluation context's Now.
	Timestamp time.Time `json:"timestamp"`

	// RuleID identifies the rule that fired (or was skipped).
	RuleID string `json:"rule_id"`

	// RecordID identifies the affected record.
	RecordID string `json:"record_id"`

	// Action is the rule's action.
	Action RuleAction `json:"action"`

	// WeightBefore is the record weight before the action.
	WeightBefore float64 `json:"weight_before"`

	// WeightAfter is the record weight after the action. Equal to WeightBefore
	// for skipped outcomes.
	WeightAfter float64 `json:"weight_after"`

	// Outcome classifies the result.
	Outcome AuditOutcome `json:"outcome"`

	// Detail carries optional context, e.g. the preserved last state of a
	// record forgotten with keep_log, or the skip reason.
	Detail string `json:"detail,omitempty"`
}
