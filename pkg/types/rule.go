package types

import (
	"strings"
	"time"
)

// RuleAction identifies what a rule does when its condition matches.
type RuleAction string

const (
	// ActionForget marks matching records removed when trust drops below the
	// rule's threshold.
	ActionForget RuleAction = "forget"

	// ActionReinforce adds a bounded, cooled-down increment to matching
	// records' weights when the context event equals the rule's event.
	ActionReinforce RuleAction = "reinforce"

	// ActionExpire shields or removes matching records whose last update is
	// older than the rule's TTL.
	ActionExpire RuleAction = "expire"

	// ActionPin flags matching records pinned with a retrieval priority boost.
	ActionPin RuleAction = "pin"

	// ActionInterfere is the optional interference pass: the newest record per
	// topic/tag attenuates older records sharing the same key.
	ActionInterfere RuleAction = "interfere"
)

// ExpireAction is the disposition an expire rule applies to stale records.
type ExpireAction string

const (
	// ExpireShield hides the record from retrieval but keeps it alive.
	ExpireShield ExpireAction = "shield"

	// ExpireRemove marks the record removed (terminal).
	ExpireRemove ExpireAction = "remove"
)

// MatchKind selects which record field a Filter compares against.
type MatchKind string

const (
	// MatchTopic compares the record's topic label (case-insensitive equality).
	MatchTopic MatchKind = "topic"

	// MatchTag matches when any record tag equals the key (case-insensitive).
	MatchTag MatchKind = "tag"

	// MatchKeyword matches when the record text contains the key
	// (case-insensitive substring).
	MatchKeyword MatchKind = "keyword"
)

// Filter is a topic/tag/keyword predicate over a record.
type Filter struct {
	// Kind selects the field to match.
	Kind MatchKind `json:"kind" yaml:"kind"`

	// Key is the value to match against.
	Key string `json:"key" yaml:"key"`
}

// Matches reports whether the record satisfies the filter.
func (f Filter) Matches(r *Record) bool {
	switch f.Kind {
	case MatchTopic:
		return strings.EqualFold(r.Topic, f.Key)
	case MatchTag:
		return r.HasTag(f.Key)
	case MatchKeyword:
		return strings.Contains(strings.ToLower(r.Text), strings.ToLower(f.Key))
	}
	return false
}

// Rule is one declarative condition + action pair. Rules arrive already
// validated (see internal/ruleset); the evaluator applies them in declaration
// order, so later rules may override flags set by earlier ones.
type Rule struct {
	// ID uniquely identifies the rule within a ruleset. Used as the key for
	// per-record reinforcement state and in audit entries.
	ID string `json:"id" yaml:"id"`

	// Action selects the rule behaviour.
	Action RuleAction `json:"action" yaml:"action"`

	// Filter restricts which records the rule applies to.
	Filter Filter `json:"filter" yaml:"filter"`

	// TrustBelow is the forget threshold: the rule fires when the effective
	// trust (context override, else record trust) is strictly below it.
	TrustBelow float64 `json:"trust_below,omitempty" yaml:"trust_below"`

	// KeepLog preserves the record's last known state in the audit trail when
	// a forget rule fires.
	KeepLog bool `json:"keep_log,omitempty" yaml:"keep_log"`

	// Event is the context event name a reinforce rule requires.
	Event string `json:"event,omitempty" yaml:"event"`

	// Emotion optionally restricts a reinforce rule to records bound to the
	// named profile. The name must exist in the registry at evaluation time.
	Emotion string `json:"emotion,omitempty" yaml:"emotion"`

	// Amount is the reinforcement increment.
	Amount float64 `json:"amount,omitempty" yaml:"amount"`

	// Cap is the maximum weight attainable through this rule's reinforcement.
	Cap float64 `json:"cap,omitempty" yaml:"cap"`

	// Cooldown is the minimum elapsed time between successive reinforcements
	// of the same record by this rule.
	Cooldown time.Duration `json:"cooldown,omitempty" yaml:"cooldown"`

	// TTL is the staleness threshold for an expire rule.
	TTL time.Duration `json:"ttl,omitempty" yaml:"ttl"`

	// OnExpire selects shield or remove for an expire rule.
	OnExpire ExpireAction `json:"on_expire,omitempty" yaml:"on_expire"`

	// Priority is the retrieval boost stored by a pin rule.
	Priority float64 `json:"priority,omitempty" yaml:"priority"`
}

// InterferenceRule configures the optional interference pass: the most
// recently updated record per topic (or first tag) attenuates older records
// sharing the same key by multiplying their weight by (1 - Alpha).
type InterferenceRule struct {
	// Match is "topic" or "tag".
	Match MatchKind `json:"match" yaml:"match"`

	// Alpha is the attenuation fraction in (0,1).
	Alpha float64 `json:"alpha" yaml:"alpha"`
}
