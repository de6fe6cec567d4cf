package domain

import (
	"fmt"
	"strings"
	"time"
)

// Color identifies chess side.
type Color string

const (
	NoColor Color = ""
	White   Color = "white"
	Black   Color = "black"
)

func (c Color) Valid() bool { return c == White || c == Black }

// Opposite returns the other side. NoColor stays NoColor.
func (c Color) Opposite() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoColor
	}
}

func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	default:
		return NoColor, fmt.Errorf("unknown color %q", s)
	}
}

// ColorChoice is the locally selected side before the server assigns one.
type ColorChoice string

const (
	ChooseWhite  ColorChoice = "white"
	ChooseBlack  ColorChoice = "black"
	ChooseRandom ColorChoice = "random"
)

func ParseColorChoice(s string) ColorChoice {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "white", "w":
		return ChooseWhite
	case "black", "b":
		return ChooseBlack
	default:
		return ChooseRandom
	}
}

// Provisional is the side assumed until the game stream reports the real one.
func (c ColorChoice) Provisional() Color {
	if c == ChooseBlack {
		return Black
	}
	return White
}

// Variant uses the remote server's variant keys.
type Variant string

const (
	Standard      Variant = "standard"
	Chess960      Variant = "chess960"
	Crazyhouse    Variant = "crazyhouse"
	Antichess     Variant = "antichess"
	Atomic        Variant = "atomic"
	Horde         Variant = "horde"
	KingOfTheHill Variant = "kingOfTheHill"
	RacingKings   Variant = "racingKings"
	ThreeCheck    Variant = "threeCheck"
	FromPosition  Variant = "fromPosition"
)

var variantNames = map[Variant]string{
	Standard:      "Standard",
	Chess960:      "Chess960",
	Crazyhouse:    "Crazyhouse",
	Antichess:     "Antichess",
	Atomic:        "Atomic",
	Horde:         "Horde",
	KingOfTheHill: "King of the Hill",
	RacingKings:   "Racing Kings",
	ThreeCheck:    "Three-check",
	FromPosition:  "From Position",
}

// Name returns the display name, e.g. "King of the Hill".
func (v Variant) Name() string {
	if n, ok := variantNames[v]; ok {
		return n
	}
	return string(v)
}

// ParseVariant accepts either a variant key or its display name, case-insensitively.
func ParseVariant(s string) (Variant, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return Standard, nil
	}
	norm := normalizeVariant(v)
	for key, name := range variantNames {
		if norm == normalizeVariant(string(key)) || norm == normalizeVariant(name) {
			return key, nil
		}
	}
	return "", fmt.Errorf("unknown variant %q", s)
}

func normalizeVariant(s string) string {
	r := strings.NewReplacer(" ", "", "-", "", "_", "")
	return strings.ToLower(r.Replace(s))
}

// Speed is the time-control class reported by the server.
type Speed string

const (
	UltraBullet    Speed = "ultraBullet"
	Bullet         Speed = "bullet"
	Blitz          Speed = "blitz"
	Rapid          Speed = "rapid"
	Classical      Speed = "classical"
	Correspondence Speed = "correspondence"
)

func ParseSpeed(s string) (Speed, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "ultrabullet":
		return UltraBullet, nil
	case "bullet":
		return Bullet, nil
	case "blitz":
		return Blitz, nil
	case "rapid":
		return Rapid, nil
	case "classical":
		return Classical, nil
	case "correspondence":
		return Correspondence, nil
	default:
		return "", fmt.Errorf("unknown speed %q", s)
	}
}

// SpeedFor estimates the speed class of a clock as initial + 40 * increment.
func SpeedFor(initial, increment time.Duration) Speed {
	total := initial + 40*increment
	switch {
	case total < 30*time.Second:
		return UltraBullet
	case total < 180*time.Second:
		return Bullet
	case total < 480*time.Second:
		return Blitz
	case total < 1500*time.Second:
		return Rapid
	default:
		return Classical
	}
}
