package emotion_test

import (
	"errors"
	"testing"

	"github.com/lethehq/lethe/internal/emotion"
	"github.com/lethehq/lethe/pkg/types"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := emotion.NewRegistry()

	p := types.EmotionProfile{Name: "gratitude", Lambda: 0.02, Floor: 0.3, Kind: types.DecayExponential}
	if err := reg.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := reg.Lookup("gratitude")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != p {
		t.Errorf("Lookup returned %+v, want %+v", got, p)
	}
}

func TestRegistryDuplicateProfile(t *testing.T) {
	reg := emotion.NewRegistry()

	p := types.EmotionProfile{Name: "sadness", Lambda: 0.15}
	if err := reg.Register(p); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	err := reg.Register(p)
	if !errors.Is(err, emotion.ErrDuplicateProfile) {
		t.Errorf("expected ErrDuplicateProfile, got %v", err)
	}
}

func TestRegistryRejectsUnnamedProfile(t *testing.T) {
	reg := emotion.NewRegistry()

	err := reg.Register(types.EmotionProfile{Lambda: 0.1})
	if !errors.Is(err, emotion.ErrInvalidProfile) {
		t.Errorf("expected ErrInvalidProfile, got %v", err)
	}
	if errors.Is(err, emotion.ErrDuplicateProfile) {
		t.Errorf("unnamed profile misreported as duplicate: %v", err)
	}
}

func TestRegistryUnknownProfile(t *testing.T) {
	reg := emotion.NewRegistry()

	_, err := reg.Lookup("nope")
	if !errors.Is(err, emotion.ErrUnknownProfile) {
		t.Errorf("expected ErrUnknownProfile, got %v", err)
	}
}

func TestRegistryNeutralIsBuiltIn(t *testing.T) {
	reg := emotion.NewRegistry()

	p, err := reg.Lookup("neutral")
	if err != nil {
		t.Fatalf("Lookup(neutral): %v", err)
	}
	if p.Kind != types.DecayExponential {
		t.Errorf("neutral profile kind = %q, want exponential", p.Kind)
	}
}

func TestRegistryNeutralCanBeOverriddenOnce(t *testing.T) {
	reg := emotion.NewRegistry()

	custom := types.EmotionProfile{Name: "neutral", Lambda: 0.5, Floor: 0.1, Kind: types.DecayPowerLaw}
	if err := reg.Register(custom); err != nil {
		t.Fatalf("overriding built-in neutral: %v", err)
	}

	// A second user registration of the same name is a real duplicate.
	if err := reg.Register(custom); !errors.Is(err, emotion.ErrDuplicateProfile) {
		t.Errorf("expected ErrDuplicateProfile on second override, got %v", err)
	}

	got, err := reg.Lookup("neutral")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Lambda != 0.5 {
		t.Errorf("expected overridden neutral, got %+v", got)
	}
}

func TestRegistryRegisterDefaultsKindToExponential(t *testing.T) {
	reg := emotion.NewRegistry()

	if err := reg.Register(types.EmotionProfile{Name: "calm", Lambda: 0.01}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	p, err := reg.Lookup("calm")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if p.Kind != types.DecayExponential {
		t.Errorf("expected defaulted kind exponential, got %q", p.Kind)
	}
}
