package types

import "time"

// Context carries the external state a rule evaluation runs against.
type Context struct {
	// Now is the evaluation timestamp. All decay, TTL, and cooldown arithmetic
	// is relative to Now so batches are reproducible.
	Now time.Time `json:"now"`

	// Event is the optional event name that reinforce rules match against.
	Event string `json:"event,omitempty"`

	// Trust optionally overrides every record's own trust for forget rules.
	// Nil means each record's trust is used.
	Trust *float64 `json:"trust,omitempty"`
}

// TrustFor returns the effective trust for a record: the context override when
// present, otherwise the record's own trust.
func (c Context) TrustFor(r *Record) float64 {
	if c.Trust != nil {
		return *c.Trust
	}
	return r.Trust
}
