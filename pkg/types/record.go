// Package types defines the shared data model for the Lethe memory engine:
// records, emotion profiles, rules, evaluation context, audit entries, and
// retrieval types. All packages depend on types; types depends on nothing.
package types

import (
	"strings"
	"time"
)

// Record represents a single memory record. Records are mutated in place by
// rule evaluation (weights, flags, reinforcement state) and are never
// duplicated by the engine.
type Record struct {
	// ID is the unique record identifier. Assigned at ingest (UUID) when the
	// input record carries none.
	ID string `json:"id"`

	// Text is the free-text content of the record.
	Text string `json:"text"`

	// Topic is a single classification label (e.g. "family").
	Topic string `json:"topic,omitempty"`

	// Tags are user-defined labels used by rule filters.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is when the record entered the system.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the last mutation timestamp. Expiration compares
	// now - UpdatedAt against a rule's TTL, so it only advances when a rule
	// actually changes the record, never on a decay-only evaluation pass.
	UpdatedAt time.Time `json:"updated_at"`

	// DecayedAt anchors decay arithmetic: the time Weight was last
	// materialised by a decay refresh. Zero means UpdatedAt is the anchor.
	DecayedAt time.Time `json:"decayed_at,omitzero"`

	// Weight is the base weight, typically in [0,1].
	Weight float64 `json:"weight"`

	// Trust is the provenance confidence, typically in [0,1].
	Trust float64 `json:"trust"`

	// Emotion is the name of the bound emotion profile. Empty means no profile:
	// the weight is static and never decays.
	Emotion string `json:"emotion,omitempty"`

	// Shielded excludes the record from retrieval while retaining its data.
	// Shielded records still decay, reinforce, and expire.
	Shielded bool `json:"shielded"`

	// Pinned grants the record a retrieval score boost of PinPriority.
	Pinned bool `json:"pinned"`

	// PinPriority is the additive retrieval boost applied while Pinned.
	PinPriority float64 `json:"pin_priority,omitempty"`

	// Removed is terminal: the record is permanently excluded from retrieval
	// and ineligible for any further mutation.
	Removed bool `json:"removed"`

	// Reinforcements tracks per-rule reinforcement state, keyed by rule ID.
	// Created lazily on first reinforcement.
	Reinforcements map[string]*ReinforcementState `json:"reinforcements,omitempty"`
}

// ReinforcementState is the per-record, per-rule bookkeeping for bounded,
// cooled-down reinforcement.
type ReinforcementState struct {
	// Applied is the cumulative boost this rule has contributed so far.
	Applied float64 `json:"applied"`

	// LastAppliedAt is the timestamp of the most recent reinforcement, used
	// for cooldown enforcement.
	LastAppliedAt time.Time `json:"last_applied_at"`
}

// DecayAnchor returns the reference time for decay arithmetic: DecayedAt when
// set, otherwise UpdatedAt.
func (r *Record) DecayAnchor() time.Time {
	if !r.DecayedAt.IsZero() {
		return r.DecayedAt
	}
	return r.UpdatedAt
}

// Reinforcement returns the reinforcement state for ruleID, creating it
// lazily on first use.
func (r *Record) Reinforcement(ruleID string) *ReinforcementState {
	if r.Reinforcements == nil {
		r.Reinforcements = make(map[string]*ReinforcementState)
	}
	st, ok := r.Reinforcements[ruleID]
	if !ok {
		st = &ReinforcementState{}
		r.Reinforcements[ruleID] = st
	}
	return st
}

// Clone returns a deep copy of the record, including tags and reinforcement
// state. Used for before/after snapshots around an evaluation batch.
func (r *Record) Clone() *Record {
	dup := *r
	if r.Tags != nil {
		dup.Tags = append([]string(nil), r.Tags...)
	}
	if r.Reinforcements != nil {
		dup.Reinforcements = make(map[string]*ReinforcementState, len(r.Reinforcements))
		for k, v := range r.Reinforcements {
			st := *v
			dup.Reinforcements[k] = &st
		}
	}
	return &dup
}

// HasTag reports whether the record carries the given tag (case-insensitive).
func (r *Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
