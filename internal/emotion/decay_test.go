package emotion_test

import (
	"testing"

	"github.com/lethehq/lethe/internal/emotion"
	"github.com/lethehq/lethe/pkg/types"
)

// TestEffectiveWeightMonotonicNonIncreasing verifies that for every kernel the
// effective weight never grows as elapsed time increases.
func TestEffectiveWeightMonotonicNonIncreasing(t *testing.T) {
	profiles := []types.EmotionProfile{
		{Name: "exp", Lambda: 0.1, Floor: 0.1, Kind: types.DecayExponential},
		{Name: "pow", Lambda: 0.8, Floor: 0.05, Kind: types.DecayPowerLaw},
		{Name: "tanh", Lambda: 0, Floor: 0.2, Kind: types.DecayTanh, Shape: 0.3, Inflection: 48},
		{Name: "sig", Lambda: 0, Floor: 0, Kind: types.DecaySigmoid, Shape: 0.5, Inflection: 24},
	}

	hours := []float64{0, 1, 6, 24, 72, 168, 720, 8760}

	for _, p := range profiles {
		t.Run(p.Name, func(t *testing.T) {
			prev := emotion.EffectiveWeight(p, 0.9, hours[0])
			for _, h := range hours[1:] {
				w := emotion.EffectiveWeight(p, 0.9, h)
				if w > prev+1e-12 {
					t.Errorf("%s: weight increased from %f to %f at dt=%f", p.Name, prev, w, h)
				}
				prev = w
			}
		})
	}
}

// TestEffectiveWeightNeverBelowFloor verifies the floor holds even at extreme ages.
func TestEffectiveWeightNeverBelowFloor(t *testing.T) {
	cases := []struct {
		name    string
		profile types.EmotionProfile
	}{
		{"exp_high_lambda", types.EmotionProfile{Lambda: 5, Floor: 0.3, Kind: types.DecayExponential}},
		{"pow_steep", types.EmotionProfile{Lambda: 3, Floor: 0.25, Kind: types.DecayPowerLaw}},
		{"tanh_late", types.EmotionProfile{Floor: 0.15, Kind: types.DecayTanh, Shape: 1, Inflection: 1}},
		{"sigmoid_late", types.EmotionProfile{Floor: 0.4, Kind: types.DecaySigmoid, Shape: 2, Inflection: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, dt := range []float64{0, 10, 100, 1e4, 1e6} {
				w := emotion.EffectiveWeight(tc.profile, 0.8, dt)
				if w < tc.profile.Floor {
					t.Errorf("dt=%f: weight %f fell below floor %f", dt, w, tc.profile.Floor)
				}
			}
		})
	}
}

// TestEffectiveWeightFreshRecordKeepsBase verifies that at dt=0 the exponential
// kernel returns the base weight unchanged.
func TestEffectiveWeightFreshRecordKeepsBase(t *testing.T) {
	p := types.EmotionProfile{Lambda: 0.1, Floor: 0.1, Kind: types.DecayExponential}

	w := emotion.EffectiveWeight(p, 0.7, 0)
	if w != 0.7 {
		t.Errorf("expected base weight 0.7 at dt=0, got %f", w)
	}
}

// TestEffectiveWeightTanhPlateauClamped verifies that before the inflection
// point the tanh kernel holds at base instead of rising above it.
func TestEffectiveWeightTanhPlateauClamped(t *testing.T) {
	p := types.EmotionProfile{Floor: 0.1, Kind: types.DecayTanh, Shape: 0.3, Inflection: 100}

	// Well before t0 the raw factor 1 - tanh(negative) exceeds 1.
	w := emotion.EffectiveWeight(p, 0.6, 1)
	if w > 0.6 {
		t.Errorf("expected plateau clamped to base 0.6, got %f", w)
	}
	if w < 0.59 {
		t.Errorf("expected near-base weight on the plateau, got %f", w)
	}
}

// TestEffectiveWeightNegativeElapsedTreatedAsZero verifies that clock skew
// (record updated "in the future") does not inflate the weight.
func TestEffectiveWeightNegativeElapsedTreatedAsZero(t *testing.T) {
	p := types.EmotionProfile{Lambda: 0.5, Kind: types.DecayExponential}

	if got, want := emotion.EffectiveWeight(p, 0.5, -24), emotion.EffectiveWeight(p, 0.5, 0); got != want {
		t.Errorf("negative dt: got %f, want %f", got, want)
	}
}

// TestEffectiveWeightUnsetKindDefaultsToExponential verifies the fallback kernel.
func TestEffectiveWeightUnsetKindDefaultsToExponential(t *testing.T) {
	unset := types.EmotionProfile{Lambda: 0.2, Floor: 0.1}
	exp := types.EmotionProfile{Lambda: 0.2, Floor: 0.1, Kind: types.DecayExponential}

	if got, want := emotion.EffectiveWeight(unset, 0.8, 48), emotion.EffectiveWeight(exp, 0.8, 48); got != want {
		t.Errorf("unset kind: got %f, want %f", got, want)
	}
}

// TestStaticWeightClamps verifies records without a profile keep a clamped base.
func TestStaticWeightClamps(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{-0.2, 0},
		{1.7, 1},
	}

	for _, tc := range cases {
		if got := emotion.StaticWeight(tc.in); got != tc.want {
			t.Errorf("StaticWeight(%f) = %f, want %f", tc.in, got, tc.want)
		}
	}
}
