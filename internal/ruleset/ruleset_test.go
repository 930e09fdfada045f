package ruleset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lethehq/lethe/internal/emotion"
	"github.com/lethehq/lethe/pkg/types"
)

const fullDocument = `
profiles:
  - name: gratitude
    lambda: 0.02
    floor: 0.3
  - name: sadness
    lambda: 0.2
    floor: 0.05
    decay: tanh
    k: 0.5
    t0: 48

rules:
  - id: drop-untrusted
    action: forget
    filter: {kind: topic, key: gossip}
    trust_below: 0.4
    keep_log: true
  - id: boost-support
    action: reinforce
    filter: {kind: tag, key: support-thread}
    event: milestone
    amount: 0.2
    cap: 0.8
    cooldown: 6h
  - id: archive-old
    action: expire
    filter: {kind: topic, key: family}
    ttl: 30d
    on_expire: shield
  - id: pin-essentials
    action: pin
    filter: {kind: tag, key: essential}
    priority: 1.5

interference:
  match: topic
  alpha: 0.25

retrieval:
  topk: 5
  gate: emotion
  synonyms:
    support-thread: [check-in, mentor]
  entropy_filter: true
`

func TestParseFullDocument(t *testing.T) {
	set, err := Parse([]byte(fullDocument))
	require.NoError(t, err)

	require.Len(t, set.Rules, 4)

	forget := set.Rules[0]
	assert.Equal(t, types.ActionForget, forget.Action)
	assert.Equal(t, 0.4, forget.TrustBelow)
	assert.True(t, forget.KeepLog)

	reinforce := set.Rules[1]
	assert.Equal(t, types.ActionReinforce, reinforce.Action)
	assert.Equal(t, "milestone", reinforce.Event)
	assert.Equal(t, 0.8, reinforce.Cap)
	assert.Equal(t, 6*time.Hour, reinforce.Cooldown)

	expire := set.Rules[2]
	assert.Equal(t, types.ActionExpire, expire.Action)
	assert.Equal(t, 30*24*time.Hour, expire.TTL)
	assert.Equal(t, types.ExpireShield, expire.OnExpire)

	pin := set.Rules[3]
	assert.Equal(t, types.ActionPin, pin.Action)
	assert.Equal(t, 1.5, pin.Priority)

	require.NotNil(t, set.Interference)
	assert.Equal(t, types.MatchTopic, set.Interference.Match)
	assert.Equal(t, 0.25, set.Interference.Alpha)

	assert.Equal(t, 5, set.Retrieval.TopK)
	assert.Equal(t, types.GateEmotion, set.Retrieval.Gate)
	assert.Equal(t, []string{"check-in", "mentor"}, set.Retrieval.Synonyms["support-thread"])
	assert.True(t, set.Retrieval.EntropyFilter)

	sadness, err := set.Registry.Lookup("sadness")
	require.NoError(t, err)
	assert.Equal(t, types.DecayTanh, sadness.Kind)
	assert.Equal(t, 0.5, sadness.Shape)

	// The built-in neutral profile is always present.
	_, err = set.Registry.Lookup("neutral")
	assert.NoError(t, err)
}

func TestParseDefaults(t *testing.T) {
	set, err := Parse([]byte(`
rules:
  - id: boost
    action: reinforce
    filter: {kind: tag, key: t}
    event: e
    amount: 0.1
  - id: archive
    action: expire
    filter: {kind: topic, key: x}
    ttl: 24h
`))
	require.NoError(t, err)

	assert.Equal(t, 1.0, set.Rules[0].Cap, "cap defaults to 1.0")
	assert.Equal(t, time.Duration(0), set.Rules[0].Cooldown)
	assert.Equal(t, types.ExpireShield, set.Rules[1].OnExpire, "expire defaults to shield")
	assert.Equal(t, types.DefaultTopK, set.Retrieval.TopK)
	assert.Equal(t, types.GateNone, set.Retrieval.Gate)
}

func TestParseRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown action", `
rules:
  - id: r
    action: amplify
    filter: {kind: topic, key: x}
`},
		{"unknown filter kind", `
rules:
  - id: r
    action: pin
    filter: {kind: author, key: x}
`},
		{"missing filter key", `
rules:
  - id: r
    action: pin
    filter: {kind: topic}
`},
		{"missing rule id", `
rules:
  - action: pin
    filter: {kind: topic, key: x}
`},
		{"duplicate rule id", `
rules:
  - id: r
    action: pin
    filter: {kind: topic, key: x}
  - id: r
    action: pin
    filter: {kind: topic, key: y}
`},
		{"trust threshold out of range", `
rules:
  - id: r
    action: forget
    filter: {kind: topic, key: x}
    trust_below: 1.5
`},
		{"reinforce without event", `
rules:
  - id: r
    action: reinforce
    filter: {kind: tag, key: x}
    amount: 0.1
`},
		{"non-positive amount", `
rules:
  - id: r
    action: reinforce
    filter: {kind: tag, key: x}
    event: e
    amount: 0
`},
		{"cap out of range", `
rules:
  - id: r
    action: reinforce
    filter: {kind: tag, key: x}
    event: e
    amount: 0.1
    cap: 1.2
`},
		{"malformed cooldown", `
rules:
  - id: r
    action: reinforce
    filter: {kind: tag, key: x}
    event: e
    amount: 0.1
    cooldown: soon
`},
		{"expire without ttl", `
rules:
  - id: r
    action: expire
    filter: {kind: topic, key: x}
`},
		{"unknown on_expire", `
rules:
  - id: r
    action: expire
    filter: {kind: topic, key: x}
    ttl: 24h
    on_expire: archive
`},
		{"unknown decay kind", `
profiles:
  - name: p
    lambda: 0.1
    decay: linear
`},
		{"profile floor out of range", `
profiles:
  - name: p
    lambda: 0.1
    floor: 1.5
`},
		{"negative lambda", `
profiles:
  - name: p
    lambda: -0.1
`},
		{"interference alpha out of range", `
interference:
  match: topic
  alpha: 1.0
`},
		{"interference keyword match", `
interference:
  match: keyword
  alpha: 0.2
`},
		{"unknown gate mode", `
retrieval:
  gate: trust
`},
		{"not yaml", `{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}

func TestParseDuplicateProfileAbortsLoad(t *testing.T) {
	_, err := Parse([]byte(`
profiles:
  - name: p
    lambda: 0.1
  - name: p
    lambda: 0.2
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, emotion.ErrDuplicateProfile)
}

func TestParseNeutralOverride(t *testing.T) {
	set, err := Parse([]byte(`
profiles:
  - name: neutral
    lambda: 0.01
    floor: 0.2
`))
	require.NoError(t, err)

	p, err := set.Registry.Lookup("neutral")
	require.NoError(t, err)
	assert.Equal(t, 0.01, p.Lambda)
	assert.Equal(t, 0.2, p.Floor)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullDocument), 0o644))

	set, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, set.Rules, 4)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidRule), "IO errors are not rule errors")
}

func TestParseDurationDays(t *testing.T) {
	d, err := parseDuration("1.5d")
	require.NoError(t, err)
	assert.Equal(t, 36*time.Hour, d)

	_, err = parseDuration("-2d")
	assert.Error(t, err)
}
