// Package emotion provides the emotion profile registry and the decay
// calculator. Profiles are named decay configurations; the calculator is a
// pure function from (profile, base weight, elapsed hours) to an effective
// weight.
package emotion

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lethehq/lethe/pkg/types"
)

var (
	// ErrDuplicateProfile indicates a profile name was registered twice.
	ErrDuplicateProfile = errors.New("duplicate emotion profile")

	// ErrUnknownProfile indicates a rule or record referenced a profile that
	// is not in the registry.
	ErrUnknownProfile = errors.New("unknown emotion profile")

	// ErrInvalidProfile indicates a profile definition the registry cannot
	// accept, such as one without a name.
	ErrInvalidProfile = errors.New("invalid emotion profile")
)

// NeutralProfile is registered in every new registry. It matches the engine's
// historical default: a slow exponential decay with no floor.
var NeutralProfile = types.EmotionProfile{
	Name:   "neutral",
	Lambda: 0.08,
	Floor:  0,
	Kind:   types.DecayExponential,
}

// Registry holds named emotion profiles. It is populated once at load time and
// read-only afterwards; no mutation API is exposed beyond Register.
type Registry struct {
	profiles map[string]types.EmotionProfile
}

// NewRegistry returns a registry pre-populated with the neutral profile.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]types.EmotionProfile)}
	r.profiles[NeutralProfile.Name] = NeutralProfile
	return r
}

// Register adds a profile. A profile without a name fails with
// ErrInvalidProfile; registering a name that already exists fails with
// ErrDuplicateProfile. The built-in neutral profile may be overridden exactly
// once by a user-supplied profile of the same name.
func (r *Registry) Register(p types.EmotionProfile) error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if existing, ok := r.profiles[p.Name]; ok {
		// Allow replacing the built-in default, but not a user profile.
		if p.Name != NeutralProfile.Name || existing != NeutralProfile {
			return fmt.Errorf("%w: %q", ErrDuplicateProfile, p.Name)
		}
	}
	if p.Kind == "" {
		p.Kind = types.DecayExponential
	}
	r.profiles[p.Name] = p
	return nil
}

// Lookup returns the profile with the given name, or ErrUnknownProfile.
func (r *Registry) Lookup(name string) (types.EmotionProfile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return types.EmotionProfile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Names returns the registered profile names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
