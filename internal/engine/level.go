package engine

import (
	"fmt"

	"github.com/park285/termchess/internal/engine/uci"
)

// Level fixes how strongly the engine plays at one AI level.
type Level struct {
	Level          int
	SkillLevel     int
	Depth          int
	MoveTimeMillis int
}

var levels = [...]Level{
	{Level: 1, SkillLevel: 0, Depth: 1, MoveTimeMillis: 50},
	{Level: 2, SkillLevel: 2, Depth: 2, MoveTimeMillis: 100},
	{Level: 3, SkillLevel: 4, Depth: 3, MoveTimeMillis: 150},
	{Level: 4, SkillLevel: 6, Depth: 4, MoveTimeMillis: 200},
	{Level: 5, SkillLevel: 9, Depth: 6, MoveTimeMillis: 300},
	{Level: 6, SkillLevel: 12, Depth: 8, MoveTimeMillis: 400},
	{Level: 7, SkillLevel: 16, Depth: 13, MoveTimeMillis: 500},
	{Level: 8, SkillLevel: 20, Depth: 22, MoveTimeMillis: 1000},
}

const (
	MinLevel = 1
	MaxLevel = len(levels)
)

func GetLevel(n int) (Level, error) {
	if n < MinLevel || n > MaxLevel {
		return Level{}, fmt.Errorf("%w: %d (want %d-%d)", ErrInvalidLevel, n, MinLevel, MaxLevel)
	}
	return levels[n-1], nil
}

func (l Level) limits() uci.Limits {
	return uci.Limits{Depth: l.Depth, MoveTimeMillis: l.MoveTimeMillis}
}
