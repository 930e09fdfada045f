// Package ruleset loads and validates rule files. A rule file is a single
// YAML document declaring emotion profiles, rules, an optional interference
// pass, and retrieval settings. Structural problems are fatal at load time;
// nothing malformed ever reaches the evaluator.
package ruleset

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lethehq/lethe/internal/emotion"
	"github.com/lethehq/lethe/pkg/types"
)

// ErrInvalidRule indicates a malformed rule, profile, or retrieval setting.
// Load-time only; always wrapped with the offending rule or profile name.
var ErrInvalidRule = errors.New("invalid rule")

// Set is a validated ruleset ready for evaluation.
type Set struct {
	// Registry holds the file's profiles plus the built-in neutral profile.
	Registry *emotion.Registry

	// Rules in declaration order.
	Rules []types.Rule

	// Interference is nil when the file declares no interference pass.
	Interference *types.InterferenceRule

	// Retrieval is the file's retrieval configuration.
	Retrieval types.RetrievalConfig
}

// file is the on-disk document shape. Durations are strings so rule authors
// can write "6h" or "30d"; they are parsed and range-checked during Parse.
type file struct {
	Profiles     []types.EmotionProfile `yaml:"profiles"`
	Rules        []ruleSpec             `yaml:"rules"`
	Interference *interferenceSpec      `yaml:"interference"`
	Retrieval    retrievalSpec          `yaml:"retrieval"`
}

type ruleSpec struct {
	ID         string       `yaml:"id"`
	Action     string       `yaml:"action"`
	Filter     types.Filter `yaml:"filter"`
	TrustBelow float64      `yaml:"trust_below"`
	KeepLog    bool         `yaml:"keep_log"`
	Event      string       `yaml:"event"`
	Emotion    string       `yaml:"emotion"`
	Amount     float64      `yaml:"amount"`
	Cap        *float64     `yaml:"cap"`
	Cooldown   string       `yaml:"cooldown"`
	TTL        string       `yaml:"ttl"`
	OnExpire   string       `yaml:"on_expire"`
	Priority   float64      `yaml:"priority"`
}

type interferenceSpec struct {
	Match string  `yaml:"match"`
	Alpha float64 `yaml:"alpha"`
}

type retrievalSpec struct {
	TopK          int                 `yaml:"topk"`
	Gate          string              `yaml:"gate"`
	Synonyms      map[string][]string `yaml:"synonyms"`
	EntropyFilter bool                `yaml:"entropy_filter"`
}

// Load reads and parses the rule file at path.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset %s: %w", path, err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("ruleset %s: %w", path, err)
	}
	return set, nil
}

// Parse validates a YAML rule document and builds a Set. Any structural
// error (unknown action or decay kind, out-of-range threshold, malformed
// duration, duplicate profile) aborts the load.
func Parse(data []byte) (*Set, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	registry := emotion.NewRegistry()
	for _, p := range f.Profiles {
		if err := validateProfile(p); err != nil {
			return nil, err
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}

	set := &Set{Registry: registry}

	seen := make(map[string]bool, len(f.Rules))
	for i, spec := range f.Rules {
		rule, err := buildRule(i, spec)
		if err != nil {
			return nil, err
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %q", ErrInvalidRule, rule.ID)
		}
		seen[rule.ID] = true
		set.Rules = append(set.Rules, rule)
	}

	if f.Interference != nil {
		ir, err := buildInterference(*f.Interference)
		if err != nil {
			return nil, err
		}
		set.Interference = ir
	}

	retrieval, err := buildRetrieval(f.Retrieval)
	if err != nil {
		return nil, err
	}
	set.Retrieval = retrieval

	return set, nil
}

func validateProfile(p types.EmotionProfile) error {
	if p.Name == "" {
		return fmt.Errorf("%w: profile without a name", ErrInvalidRule)
	}
	if p.Lambda < 0 {
		return fmt.Errorf("%w: profile %q: lambda must be non-negative", ErrInvalidRule, p.Name)
	}
	if p.Floor < 0 || p.Floor > 1 {
		return fmt.Errorf("%w: profile %q: floor must be in [0,1]", ErrInvalidRule, p.Name)
	}
	switch p.Kind {
	case "", types.DecayExponential, types.DecayPowerLaw, types.DecayTanh, types.DecaySigmoid:
	default:
		return fmt.Errorf("%w: profile %q: unknown decay kind %q", ErrInvalidRule, p.Name, p.Kind)
	}
	return nil
}

func buildRule(index int, spec ruleSpec) (types.Rule, error) {
	id := spec.ID
	if id == "" {
		return types.Rule{}, fmt.Errorf("%w: rule #%d has no id", ErrInvalidRule, index+1)
	}

	if err := validateFilter(id, spec.Filter); err != nil {
		return types.Rule{}, err
	}

	rule := types.Rule{
		ID:      id,
		Filter:  spec.Filter,
		KeepLog: spec.KeepLog,
		Emotion: spec.Emotion,
	}

	switch types.RuleAction(spec.Action) {
	case types.ActionForget:
		if spec.TrustBelow <= 0 || spec.TrustBelow > 1 {
			return types.Rule{}, fmt.Errorf("%w: rule %q: trust_below must be in (0,1]", ErrInvalidRule, id)
		}
		rule.Action = types.ActionForget
		rule.TrustBelow = spec.TrustBelow

	case types.ActionReinforce:
		if spec.Event == "" {
			return types.Rule{}, fmt.Errorf("%w: rule %q: reinforce requires an event", ErrInvalidRule, id)
		}
		if spec.Amount <= 0 {
			return types.Rule{}, fmt.Errorf("%w: rule %q: amount must be positive", ErrInvalidRule, id)
		}
		weightCap := 1.0
		if spec.Cap != nil {
			weightCap = *spec.Cap
		}
		if weightCap <= 0 || weightCap > 1 {
			return types.Rule{}, fmt.Errorf("%w: rule %q: cap must be in (0,1]", ErrInvalidRule, id)
		}
		cooldown, err := parseDuration(spec.Cooldown)
		if err != nil {
			return types.Rule{}, fmt.Errorf("%w: rule %q: cooldown: %v", ErrInvalidRule, id, err)
		}
		rule.Action = types.ActionReinforce
		rule.Event = spec.Event
		rule.Amount = spec.Amount
		rule.Cap = weightCap
		rule.Cooldown = cooldown

	case types.ActionExpire:
		ttl, err := parseDuration(spec.TTL)
		if err != nil {
			return types.Rule{}, fmt.Errorf("%w: rule %q: ttl: %v", ErrInvalidRule, id, err)
		}
		if ttl <= 0 {
			return types.Rule{}, fmt.Errorf("%w: rule %q: expire requires a positive ttl", ErrInvalidRule, id)
		}
		switch types.ExpireAction(spec.OnExpire) {
		case types.ExpireShield, types.ExpireRemove:
			rule.OnExpire = types.ExpireAction(spec.OnExpire)
		case "":
			rule.OnExpire = types.ExpireShield
		default:
			return types.Rule{}, fmt.Errorf("%w: rule %q: unknown on_expire %q", ErrInvalidRule, id, spec.OnExpire)
		}
		rule.Action = types.ActionExpire
		rule.TTL = ttl

	case types.ActionPin:
		if spec.Priority < 0 {
			return types.Rule{}, fmt.Errorf("%w: rule %q: priority must be non-negative", ErrInvalidRule, id)
		}
		rule.Action = types.ActionPin
		rule.Priority = spec.Priority

	default:
		return types.Rule{}, fmt.Errorf("%w: rule %q: unknown action %q", ErrInvalidRule, id, spec.Action)
	}

	return rule, nil
}

func validateFilter(ruleID string, f types.Filter) error {
	switch f.Kind {
	case types.MatchTopic, types.MatchTag, types.MatchKeyword:
	default:
		return fmt.Errorf("%w: rule %q: unknown filter kind %q", ErrInvalidRule, ruleID, f.Kind)
	}
	if f.Key == "" {
		return fmt.Errorf("%w: rule %q: filter key is required", ErrInvalidRule, ruleID)
	}
	return nil
}

func buildInterference(spec interferenceSpec) (*types.InterferenceRule, error) {
	var match types.MatchKind
	switch types.MatchKind(spec.Match) {
	case types.MatchTopic, "":
		match = types.MatchTopic
	case types.MatchTag:
		match = types.MatchTag
	default:
		return nil, fmt.Errorf("%w: interference: match must be topic or tag, got %q", ErrInvalidRule, spec.Match)
	}
	if spec.Alpha <= 0 || spec.Alpha >= 1 {
		return nil, fmt.Errorf("%w: interference: alpha must be in (0,1)", ErrInvalidRule)
	}
	return &types.InterferenceRule{Match: match, Alpha: spec.Alpha}, nil
}

func buildRetrieval(spec retrievalSpec) (types.RetrievalConfig, error) {
	cfg := types.RetrievalConfig{
		TopK:          spec.TopK,
		Synonyms:      spec.Synonyms,
		EntropyFilter: spec.EntropyFilter,
	}
	if cfg.TopK < 0 {
		return cfg, fmt.Errorf("%w: retrieval: topk must be non-negative", ErrInvalidRule)
	}
	if cfg.TopK == 0 {
		cfg.TopK = types.DefaultTopK
	}
	switch types.GateMode(spec.Gate) {
	case types.GateEmotion:
		cfg.Gate = types.GateEmotion
	case types.GateNone, "":
		cfg.Gate = types.GateNone
	default:
		return cfg, fmt.Errorf("%w: retrieval: unknown gate mode %q", ErrInvalidRule, spec.Gate)
	}
	return cfg, nil
}

// parseDuration accepts the stdlib duration syntax plus a "d" suffix for
// days. Empty means zero.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.ParseFloat(strings.TrimSuffix(s, "d"), 64)
		if err != nil {
			return 0, fmt.Errorf("malformed duration %q", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(days * 24 * float64(time.Hour)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("malformed duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
