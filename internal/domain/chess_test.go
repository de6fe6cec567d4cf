package domain

import (
	"testing"
	"time"
)

func TestParseVariantAcceptsKeysAndNames(t *testing.T) {
	cases := map[string]Variant{
		"standard":         Standard,
		"Standard":         Standard,
		"":                 Standard,
		"King of the Hill": KingOfTheHill,
		"kingOfTheHill":    KingOfTheHill,
		"racing kings":     RacingKings,
		"Three-check":      ThreeCheck,
		"fromPosition":     FromPosition,
	}
	for in, want := range cases {
		got, err := ParseVariant(in)
		if err != nil {
			t.Fatalf("ParseVariant(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseVariant(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseVariant("shogi"); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
}

func TestColorChoiceProvisional(t *testing.T) {
	if ParseColorChoice("b").Provisional() != Black {
		t.Fatalf("black choice should be provisional black")
	}
	if ParseColorChoice("whatever") != ChooseRandom {
		t.Fatalf("unknown choice should be random")
	}
	if ChooseRandom.Provisional() != White {
		t.Fatalf("random should be provisional white")
	}
	if White.Opposite() != Black || NoColor.Opposite() != NoColor {
		t.Fatalf("Opposite mismatch")
	}
}

func TestSpeedFor(t *testing.T) {
	if got := SpeedFor(3*time.Minute, 2*time.Second); got != Blitz {
		t.Fatalf("3+2 = %q, want blitz", got)
	}
	if got := SpeedFor(time.Minute, 0); got != Bullet {
		t.Fatalf("1+0 = %q, want bullet", got)
	}
	if got := SpeedFor(15*time.Second, 0); got != UltraBullet {
		t.Fatalf("1/4+0 = %q, want ultraBullet", got)
	}
	if got := SpeedFor(30*time.Minute, 0); got != Classical {
		t.Fatalf("30+0 = %q, want classical", got)
	}
}
