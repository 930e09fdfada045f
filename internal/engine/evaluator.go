// Package engine implements the Lethe core: rule evaluation (forget,
// reinforce, expire, pin, interference), decay refresh, retrieval scoring,
// and the append-only audit log.
//
// The engine is single-writer: Run processes one batch of records against one
// ruleset to completion before retrieval is meaningful. Retrieval is read-only
// and may be invoked repeatedly against the last evaluated record set.
package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lethehq/lethe/internal/emotion"
	"github.com/lethehq/lethe/pkg/types"
)

// Evaluator walks a ruleset over a record batch, mutating records in place and
// emitting one audit entry per discrete action (including skips).
type Evaluator struct {
	registry *emotion.Registry
}

// NewEvaluator returns an evaluator bound to the given profile registry.
func NewEvaluator(registry *emotion.Registry) *Evaluator {
	return &Evaluator{registry: registry}
}

// Run executes one evaluation batch:
//
//  1. Staleness capture: now - UpdatedAt per record, a consistent snapshot so
//     mutations earlier in the batch do not change what later rules see.
//  2. Decay refresh: each non-removed record's weight is replaced by its
//     effective weight and its DecayedAt anchor advances to ctx.Now.
//     UpdatedAt is left alone so record age keeps accruing across runs and
//     expire rules fire regardless of the evaluation cadence.
//  3. Rule walk: for each record, each rule in declaration order. Later rules
//     may override flags set by earlier ones.
//  4. Optional interference pass.
//
// Per-pair evaluation errors (unknown profile references) are recorded as
// skipped outcomes and never abort the batch.
func (ev *Evaluator) Run(records []*types.Record, rules []types.Rule, interference *types.InterferenceRule, ctx types.Context, audit *AuditLog) {
	staleness := make(map[string]time.Duration, len(records))
	for _, r := range records {
		staleness[r.ID] = ctx.Now.Sub(r.UpdatedAt)
	}

	ev.refreshDecay(records, ctx, audit)

	for _, r := range records {
		for _, rule := range rules {
			ev.apply(r, rule, staleness[r.ID], ctx, audit)
		}
	}

	if interference != nil {
		ev.applyInterference(records, *interference, staleness, ctx, audit)
	}
}

// refreshDecay materialises each record's decayed weight. A record bound to a
// profile missing from the registry keeps a static weight and is logged once.
func (ev *Evaluator) refreshDecay(records []*types.Record, ctx types.Context, audit *AuditLog) {
	for _, r := range records {
		if r.Removed {
			continue
		}

		before := r.Weight
		if r.Emotion == "" {
			r.Weight = emotion.StaticWeight(r.Weight)
		} else {
			profile, err := ev.registry.Lookup(r.Emotion)
			if err != nil {
				audit.Append(types.AuditEntry{
					Timestamp:    ctx.Now,
					RuleID:       "decay",
					RecordID:     r.ID,
					WeightBefore: before,
					WeightAfter:  before,
					Outcome:      types.OutcomeSkippedUnknownProfile,
					Detail:       err.Error(),
				})
				continue
			}
			elapsed := ctx.Now.Sub(r.DecayAnchor()).Hours()
			r.Weight = emotion.EffectiveWeight(profile, r.Weight, elapsed)
		}
		r.DecayedAt = ctx.Now
	}
}

// apply evaluates a single rule against a single record.
func (ev *Evaluator) apply(r *types.Record, rule types.Rule, stale time.Duration, ctx types.Context, audit *AuditLog) {
	switch rule.Action {
	case types.ActionForget:
		ev.applyForget(r, rule, ctx, audit)
	case types.ActionReinforce:
		ev.applyReinforce(r, rule, ctx, audit)
	case types.ActionExpire:
		ev.applyExpire(r, rule, stale, ctx, audit)
	case types.ActionPin:
		ev.applyPin(r, rule, ctx, audit)
	}
}

func (ev *Evaluator) applyForget(r *types.Record, rule types.Rule, ctx types.Context, audit *AuditLog) {
	if ctx.TrustFor(r) >= rule.TrustBelow || !rule.Filter.Matches(r) {
		return
	}
	if r.Removed {
		ev.skipRemoved(r, rule, ctx, audit)
		return
	}

	before := r.Weight
	detail := ""
	if rule.KeepLog {
		if snapshot, err := json.Marshal(r); err == nil {
			detail = string(snapshot)
		}
	}

	r.Removed = true
	r.Weight = 0
	r.UpdatedAt = ctx.Now

	audit.Append(types.AuditEntry{
		Timestamp:    ctx.Now,
		RuleID:       rule.ID,
		RecordID:     r.ID,
		Action:       types.ActionForget,
		WeightBefore: before,
		WeightAfter:  0,
		Outcome:      types.OutcomeApplied,
		Detail:       detail,
	})
}

func (ev *Evaluator) applyReinforce(r *types.Record, rule types.Rule, ctx types.Context, audit *AuditLog) {
	if ctx.Event == "" || ctx.Event != rule.Event || !rule.Filter.Matches(r) {
		return
	}

	// An emotion constraint must name a registered profile; a bad reference
	// skips this rule/record pair only.
	if rule.Emotion != "" {
		if _, err := ev.registry.Lookup(rule.Emotion); err != nil {
			audit.Append(types.AuditEntry{
				Timestamp:    ctx.Now,
				RuleID:       rule.ID,
				RecordID:     r.ID,
				Action:       types.ActionReinforce,
				WeightBefore: r.Weight,
				WeightAfter:  r.Weight,
				Outcome:      types.OutcomeSkippedUnknownProfile,
				Detail:       err.Error(),
			})
			return
		}
		if r.Emotion != rule.Emotion {
			return
		}
	}

	if r.Removed {
		ev.skipRemoved(r, rule, ctx, audit)
		return
	}

	st := r.Reinforcement(rule.ID)
	if !st.LastAppliedAt.IsZero() && ctx.Now.Sub(st.LastAppliedAt) < rule.Cooldown {
		audit.Append(types.AuditEntry{
			Timestamp:    ctx.Now,
			RuleID:       rule.ID,
			RecordID:     r.ID,
			Action:       types.ActionReinforce,
			WeightBefore: r.Weight,
			WeightAfter:  r.Weight,
			Outcome:      types.OutcomeSkippedCooldown,
			Detail:       fmt.Sprintf("cooldown %s active since %s", rule.Cooldown, st.LastAppliedAt.Format(time.RFC3339)),
		})
		return
	}

	// min(cap, current + amount): a weight already above the cap is pulled
	// down to it.
	before := r.Weight
	after := before + rule.Amount
	if after > rule.Cap {
		after = rule.Cap
	}

	r.Weight = after
	r.UpdatedAt = ctx.Now
	st.Applied += after - before
	st.LastAppliedAt = ctx.Now

	audit.Append(types.AuditEntry{
		Timestamp:    ctx.Now,
		RuleID:       rule.ID,
		RecordID:     r.ID,
		Action:       types.ActionReinforce,
		WeightBefore: before,
		WeightAfter:  after,
		Outcome:      types.OutcomeApplied,
	})
}

func (ev *Evaluator) applyExpire(r *types.Record, rule types.Rule, stale time.Duration, ctx types.Context, audit *AuditLog) {
	if stale < rule.TTL || !rule.Filter.Matches(r) {
		return
	}
	if r.Removed {
		ev.skipRemoved(r, rule, ctx, audit)
		return
	}

	before := r.Weight
	switch rule.OnExpire {
	case types.ExpireRemove:
		r.Removed = true
		r.Weight = 0
		r.UpdatedAt = ctx.Now
		audit.Append(types.AuditEntry{
			Timestamp:    ctx.Now,
			RuleID:       rule.ID,
			RecordID:     r.ID,
			Action:       types.ActionExpire,
			WeightBefore: before,
			WeightAfter:  0,
			Outcome:      types.OutcomeApplied,
			Detail:       string(types.ExpireRemove),
		})
	default: // shield
		if r.Shielded {
			return
		}
		r.Shielded = true
		audit.Append(types.AuditEntry{
			Timestamp:    ctx.Now,
			RuleID:       rule.ID,
			RecordID:     r.ID,
			Action:       types.ActionExpire,
			WeightBefore: before,
			WeightAfter:  before,
			Outcome:      types.OutcomeApplied,
			Detail:       string(types.ExpireShield),
		})
	}
}

func (ev *Evaluator) applyPin(r *types.Record, rule types.Rule, ctx types.Context, audit *AuditLog) {
	if !rule.Filter.Matches(r) {
		return
	}
	if r.Removed {
		ev.skipRemoved(r, rule, ctx, audit)
		return
	}

	r.Pinned = true
	r.PinPriority = rule.Priority

	audit.Append(types.AuditEntry{
		Timestamp:    ctx.Now,
		RuleID:       rule.ID,
		RecordID:     r.ID,
		Action:       types.ActionPin,
		WeightBefore: r.Weight,
		WeightAfter:  r.Weight,
		Outcome:      types.OutcomeApplied,
		Detail:       fmt.Sprintf("priority %g", rule.Priority),
	})
}

// applyInterference attenuates older records that share a topic (or first tag)
// with a more recently updated record. The newest record per key is the anchor
// and is left untouched. Recency comes from the staleness capture at batch
// start, so rule mutations earlier in the same batch do not shift the anchor.
func (ev *Evaluator) applyInterference(records []*types.Record, rule types.InterferenceRule, staleness map[string]time.Duration, ctx types.Context, audit *AuditLog) {
	keyOf := func(r *types.Record) string {
		if rule.Match == types.MatchTag {
			if len(r.Tags) == 0 {
				return ""
			}
			return r.Tags[0]
		}
		return r.Topic
	}

	alive := make([]*types.Record, 0, len(records))
	for _, r := range records {
		if !r.Removed && keyOf(r) != "" {
			alive = append(alive, r)
		}
	}

	// Newest first; ID breaks timestamp ties so the anchor is deterministic.
	sort.SliceStable(alive, func(i, j int) bool {
		if staleness[alive[i].ID] != staleness[alive[j].ID] {
			return staleness[alive[i].ID] < staleness[alive[j].ID]
		}
		return alive[i].ID < alive[j].ID
	})

	anchors := make(map[string]string)
	for _, r := range alive {
		key := keyOf(r)
		if _, ok := anchors[key]; !ok {
			anchors[key] = r.ID
			continue
		}

		before := r.Weight
		after := before * (1 - rule.Alpha)
		if r.Emotion != "" {
			if profile, err := ev.registry.Lookup(r.Emotion); err == nil && after < profile.Floor {
				after = profile.Floor
			}
		}
		if after < 0 {
			after = 0
		}

		r.Weight = after
		r.UpdatedAt = ctx.Now

		audit.Append(types.AuditEntry{
			Timestamp:    ctx.Now,
			RuleID:       "interference",
			RecordID:     r.ID,
			Action:       types.ActionInterfere,
			WeightBefore: before,
			WeightAfter:  after,
			Outcome:      types.OutcomeApplied,
			Detail:       fmt.Sprintf("key %q alpha %g", key, rule.Alpha),
		})
	}
}

func (ev *Evaluator) skipRemoved(r *types.Record, rule types.Rule, ctx types.Context, audit *AuditLog) {
	audit.Append(types.AuditEntry{
		Timestamp:    ctx.Now,
		RuleID:       rule.ID,
		RecordID:     r.ID,
		Action:       rule.Action,
		WeightBefore: r.Weight,
		WeightAfter:  r.Weight,
		Outcome:      types.OutcomeSkippedRemoved,
	})
}
