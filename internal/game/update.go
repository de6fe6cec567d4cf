package game

import (
	"time"

	"github.com/park285/termchess/internal/domain"
)

// MaxAILevel is the strongest selectable engine level.
const MaxAILevel = 8

// Update is one of Selection, LifecycleStart, Snapshot, Incremental, Chat, OpponentGone or Finished.
type Update interface {
	updateSource() string
}

// Selection is the locally chosen game setup. Clock values are minutes and increment seconds.
type Selection struct {
	Variant          domain.Variant
	Color            domain.ColorChoice
	Rated            bool
	AILevel          int
	Minutes          int
	IncrementSeconds int
}

// LifecycleStart is the game-start notice from the lifecycle feed.
type LifecycleStart struct {
	GameID  string
	Color   domain.Color
	Rated   bool
	Variant domain.Variant
	Speed   domain.Speed
}

// ClockMillis carries clock values as reported by the server, in milliseconds.
type ClockMillis struct {
	WTime, BTime int64
	WInc, BInc   int64
}

func (c ClockMillis) normalize() (Sides[Clock], error) {
	if c.WTime < 0 || c.BTime < 0 || c.WInc < 0 || c.BInc < 0 {
		return Sides[Clock]{}, dataErr("negative clock value %+v", c)
	}
	ms := func(v int64) time.Duration { return time.Duration(v) * time.Millisecond }
	return Sides[Clock]{
		White: Clock{Time: ms(c.WTime), Increment: ms(c.WInc)},
		Black: Clock{Time: ms(c.BTime), Increment: ms(c.BInc)},
	}, nil
}

// Snapshot is a full restatement of the game. MyColor is optional.
type Snapshot struct {
	GameID     string
	Variant    domain.Variant
	Speed      domain.Speed
	Rated      bool
	InitialFEN string
	White      Player
	Black      Player
	Clock      ClockMillis
	Status     string
	MyColor    domain.Color
}

// Incremental is a clock and status update.
type Incremental struct {
	Clock  ClockMillis
	Status string
	Winner domain.Color
}

type Chat struct {
	Line ChatLine
}

type OpponentGone struct {
	Gone              bool
	ClaimWinInSeconds int
}

// Finished is the game-finish notice from the lifecycle feed.
type Finished struct {
	GameID string
	Status string
	Winner domain.Color
}

func (Selection) updateSource() string      { return "selection" }
func (LifecycleStart) updateSource() string { return "lifecycle_start" }
func (Snapshot) updateSource() string       { return "snapshot" }
func (Incremental) updateSource() string    { return "incremental" }
func (Chat) updateSource() string           { return "chat" }
func (OpponentGone) updateSource() string   { return "opponent_gone" }
func (Finished) updateSource() string       { return "finished" }

// SourceName returns a short label for logging.
func SourceName(u Update) string {
	if u == nil {
		return "nil"
	}
	return u.updateSource()
}

func (p Player) normalized() Player {
	if p.IsEngine() {
		return Player{Name: EngineName(p.AILevel), AILevel: p.AILevel}
	}
	return p
}
