package types

// DecayKind identifies the decay function attached to an emotion profile.
type DecayKind string

const (
	// DecayExponential decays as exp(-lambda * dt).
	DecayExponential DecayKind = "exponential"

	// DecayPowerLaw decays as (1 + dt)^(-lambda).
	DecayPowerLaw DecayKind = "power_law"

	// DecayTanh models a plateau-then-decay curve with inflection at T0:
	// 1 - tanh(k * (dt - t0)), clamped so the weight never rises above base.
	DecayTanh DecayKind = "tanh"

	// DecaySigmoid is the reverse-sigmoid curve 1 - 1/(1+exp(-k*(dt-t0))),
	// clamped like tanh.
	DecaySigmoid DecayKind = "sigmoid"
)

// EmotionProfile is a named decay configuration. Profiles are immutable once
// loaded into the registry and are referenced by name from records and rules.
type EmotionProfile struct {
	// Name uniquely identifies the profile.
	Name string `json:"name" yaml:"name"`

	// Lambda is the decay rate (non-negative).
	Lambda float64 `json:"lambda" yaml:"lambda"`

	// Floor is the minimum weight a decaying record can reach, in [0,1].
	Floor float64 `json:"floor" yaml:"floor"`

	// Kind selects the decay function. Empty defaults to exponential.
	Kind DecayKind `json:"decay" yaml:"decay"`

	// Shape is the k parameter for tanh/sigmoid kernels.
	Shape float64 `json:"k,omitempty" yaml:"k"`

	// Inflection is the t0 parameter (hours) for tanh/sigmoid kernels.
	Inflection float64 `json:"t0,omitempty" yaml:"t0"`
}
