package types

// GateMode selects how retrieval applies emotional gating.
type GateMode string

const (
	// GateNone disables gating; relevance is used as-is.
	GateNone GateMode = "none"

	// GateEmotion grants records bound to stable (low-lambda) profiles a small
	// positive multiplier on relevance.
	GateEmotion GateMode = "emotion"
)

// RetrievalConfig controls the retrieval scorer.
type RetrievalConfig struct {
	// TopK is the maximum number of results returned. Must be > 0; a
	// non-positive value falls back to DefaultTopK.
	TopK int `json:"topk" yaml:"topk"`

	// Gate selects the gating mode.
	Gate GateMode `json:"gate" yaml:"gate"`

	// Synonyms maps a query alias to its expansion terms. Each alias match
	// contributes its full expansion set as additional matchable terms.
	Synonyms map[string][]string `json:"synonyms,omitempty" yaml:"synonyms"`

	// EntropyFilter is reserved for future relevance filtering. Parsed and
	// stored; currently has no effect on scoring.
	EntropyFilter bool `json:"entropy_filter,omitempty" yaml:"entropy_filter"`
}

// DefaultTopK is used when a retrieval request or config specifies no limit.
const DefaultTopK = 7

// ScoreBreakdown explains how a retrieval score was computed:
//
//	final = base_weight * (relevance + gate_boost) + pin_boost
type ScoreBreakdown struct {
	// BaseWeight is the record's effective (decayed) weight.
	BaseWeight float64 `json:"base_weight"`

	// Relevance is the TF-IDF relevance over the surviving candidate set.
	Relevance float64 `json:"relevance"`

	// PinBoost is the record's pin priority, or 0 when not pinned.
	PinBoost float64 `json:"pin_boost"`

	// GateBoost is the emotional-gating addition to relevance, or 0.
	GateBoost float64 `json:"gate_boost"`

	// Final is the total score used for ranking.
	Final float64 `json:"final"`
}

// ScoredRecord is one ranked retrieval result with its score breakdown.
type ScoredRecord struct {
	// Record is the matched record.
	Record *Record `json:"record"`

	// Score equals Why.Final; duplicated for convenient sorting/serialization.
	Score float64 `json:"score"`

	// Why is the auditable breakdown of the score.
	Why ScoreBreakdown `json:"why"`
}
