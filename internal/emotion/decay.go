package emotion

import (
	"math"

	"github.com/lethehq/lethe/pkg/types"
)

// EffectiveWeight computes a record's current weight given its bound profile
// and the hours elapsed since its last update.
//
// The kernels all decay from the base weight toward the profile floor:
//
//	exponential: W = floor + (base-floor) * exp(-lambda * dt)
//	power_law:   W = floor + (base-floor) * (1 + dt)^(-lambda)
//	tanh:        W = floor + (base-floor) * (1 - tanh(k * (dt - t0)))
//	sigmoid:     W = floor + (base-floor) * (1 - 1/(1 + exp(-k * (dt - t0))))
//
// tanh and sigmoid are clamped to [floor, base] so the plateau before the
// inflection t0 never lifts the weight above base. The result is always
// clamped into [floor, 1].
//
// The function is pure: it never mutates the record. Callers write the result
// back themselves.
func EffectiveWeight(p types.EmotionProfile, base, elapsedHours float64) float64 {
	if elapsedHours < 0 {
		elapsedHours = 0
	}

	floor := clamp(p.Floor, 0, 1)
	if base < floor {
		base = floor
	}

	var factor float64
	switch p.Kind {
	case types.DecayPowerLaw:
		lam := math.Max(p.Lambda, 1e-9)
		factor = math.Pow(1+elapsedHours, -lam)
	case types.DecayTanh:
		factor = 1 - math.Tanh(p.Shape*(elapsedHours-p.Inflection))
	case types.DecaySigmoid:
		factor = 1 - 1/(1+math.Exp(-p.Shape*(elapsedHours-p.Inflection)))
	default: // exponential, also the fallback for an unset kind
		factor = math.Exp(-p.Lambda * elapsedHours)
	}

	// Before the inflection point tanh and sigmoid exceed 1; the plateau must
	// hold at base, never rise above it.
	factor = clamp(factor, 0, 1)

	return clamp(floor+(base-floor)*factor, floor, 1)
}

// StaticWeight is the effective weight of a record with no bound profile:
// the base weight, clamped into [0,1].
func StaticWeight(base float64) float64 {
	return clamp(base, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
