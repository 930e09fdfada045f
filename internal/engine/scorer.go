package engine

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/lethehq/lethe/internal/emotion"
	"github.com/lethehq/lethe/pkg/types"
)

const (
	// stableLambdaMax is the decay-rate ceiling below which a profile counts
	// as emotionally stable for gating purposes.
	stableLambdaMax = 0.05

	// gateFactor is the relevance multiplier granted to stable profiles when
	// emotion-weighted gating is enabled.
	gateFactor = 0.1
)

// Scorer ranks records for a query. It holds no per-query state: repeated
// identical queries against an unchanged record set yield identical results.
type Scorer struct {
	registry *emotion.Registry
}

// NewScorer returns a scorer bound to the given profile registry.
func NewScorer(registry *emotion.Registry) *Scorer {
	return &Scorer{registry: registry}
}

// Retrieve ranks the candidate set for the query and returns up to topk
// results with score breakdowns. A non-positive topk falls back to cfg.TopK,
// then to types.DefaultTopK.
//
// Scoring follows
//
//	final = base_weight * (relevance + gate_boost) + pin_boost
//
// where base_weight is the effective (decayed) weight at now, relevance is
// TF-IDF over the surviving candidate set, gate_boost rewards stable emotions
// when emotion gating is on, and pin_boost is the record's pin priority.
// Ties break by most-recent update, then by record ID.
func (s *Scorer) Retrieve(records []*types.Record, query string, topk int, cfg types.RetrievalConfig, now time.Time) []types.ScoredRecord {
	if topk <= 0 {
		topk = cfg.TopK
	}
	if topk <= 0 {
		topk = types.DefaultTopK
	}

	// Shielded and removed records never surface.
	candidates := make([]*types.Record, 0, len(records))
	for _, r := range records {
		if !r.Removed && !r.Shielded {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	queryTerms := expandQuery(query, cfg.Synonyms)
	idf := inverseDocumentFrequency(candidates)

	results := make([]types.ScoredRecord, 0, len(candidates))
	for _, r := range candidates {
		breakdown := types.ScoreBreakdown{
			BaseWeight: s.effectiveWeight(r, now),
			Relevance:  tfidfScore(r.Text, queryTerms, idf),
		}

		if r.Pinned {
			breakdown.PinBoost = r.PinPriority
		}

		if cfg.Gate == types.GateEmotion && r.Emotion != "" {
			if profile, err := s.registry.Lookup(r.Emotion); err == nil && profile.Lambda <= stableLambdaMax {
				breakdown.GateBoost = gateFactor * breakdown.Relevance
			}
		}

		breakdown.Final = breakdown.BaseWeight*(breakdown.Relevance+breakdown.GateBoost) + breakdown.PinBoost

		results = append(results, types.ScoredRecord{
			Record: r,
			Score:  breakdown.Final,
			Why:    breakdown,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ri, rj := results[i].Record, results[j].Record
		if !ri.UpdatedAt.Equal(rj.UpdatedAt) {
			return ri.UpdatedAt.After(rj.UpdatedAt)
		}
		return ri.ID < rj.ID
	})

	if len(results) > topk {
		results = results[:topk]
	}
	return results
}

// effectiveWeight returns the record's decayed weight at now. Records without
// a profile, or bound to an unregistered one, keep a static clamped weight.
func (s *Scorer) effectiveWeight(r *types.Record, now time.Time) float64 {
	if r.Emotion == "" {
		return emotion.StaticWeight(r.Weight)
	}
	profile, err := s.registry.Lookup(r.Emotion)
	if err != nil {
		return emotion.StaticWeight(r.Weight)
	}
	return emotion.EffectiveWeight(profile, r.Weight, now.Sub(r.DecayAnchor()).Hours())
}

// expandQuery tokenises the query and applies the synonym table: each alias
// match contributes its full expansion set as additional matchable terms.
func expandQuery(query string, synonyms map[string][]string) []string {
	parts := strings.Fields(strings.ToLower(query))
	expanded := make([]string, 0, len(parts))
	expanded = append(expanded, parts...)

	for _, p := range parts {
		for alias, terms := range synonyms {
			if strings.EqualFold(alias, p) {
				for _, t := range terms {
					expanded = append(expanded, strings.ToLower(t))
				}
			}
		}
	}
	return expanded
}

// inverseDocumentFrequency computes idf = ln(1 + N/(1+df)) per term across the
// candidate set. Document frequency is derived at query time from the
// survivors, never precomputed globally.
func inverseDocumentFrequency(candidates []*types.Record) map[string]float64 {
	df := make(map[string]int)
	for _, r := range candidates {
		seen := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(r.Text)) {
			if !seen[w] {
				df[w]++
				seen[w] = true
			}
		}
	}

	n := float64(len(candidates))
	idf := make(map[string]float64, len(df))
	for w, c := range df {
		idf[w] = math.Log(1 + n/(1+float64(c)))
	}
	return idf
}

// tfidfScore sums tf*idf over the query terms. Terms absent from the corpus
// contribute nothing.
func tfidfScore(text string, queryTerms []string, idf map[string]float64) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 || len(queryTerms) == 0 {
		return 0
	}

	tf := make(map[string]int, len(words))
	for _, w := range words {
		tf[w]++
	}

	length := float64(len(words))
	score := 0.0
	for _, q := range queryTerms {
		score += float64(tf[q]) / length * idf[q]
	}
	return score
}
