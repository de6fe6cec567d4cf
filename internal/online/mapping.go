package online

import (
	"fmt"
	"strings"

	"github.com/park285/termchess/internal/domain"
	"github.com/park285/termchess/internal/game"
	"github.com/park285/termchess/internal/lichess"
)

func parseVariant(v lichess.Variant) (domain.Variant, error) {
	key := v.Key
	if key == "" {
		key = v.Name
	}
	out, err := domain.ParseVariant(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", game.ErrData, err)
	}
	return out, nil
}

// wire colors are lower-case; anything else is left for Merge to reject.
func wireColor(s string) domain.Color {
	return domain.Color(strings.ToLower(strings.TrimSpace(s)))
}

func speedOf(s string) domain.Speed {
	sp, err := domain.ParseSpeed(s)
	if err != nil {
		return ""
	}
	return sp
}

func toLifecycleStart(g lichess.GameInfo) (game.LifecycleStart, error) {
	v, err := parseVariant(g.Variant)
	if err != nil {
		return game.LifecycleStart{}, err
	}
	c := wireColor(g.Color)
	if !c.Valid() {
		c = domain.NoColor
	}
	return game.LifecycleStart{
		GameID:  g.GameID,
		Color:   c,
		Rated:   g.Rated,
		Variant: v,
		Speed:   speedOf(g.Speed),
	}, nil
}

func toFinished(g lichess.GameInfo) game.Finished {
	return game.Finished{GameID: g.GameID, Status: g.Status.Name, Winner: wireColor(g.Winner)}
}

func toPlayer(p lichess.Player) game.Player {
	return game.Player{
		ID:          p.ID,
		Name:        p.Name,
		Title:       p.Title,
		Rating:      p.Rating,
		Provisional: p.Provisional,
		AILevel:     p.AILevel,
	}
}

// authoritativeColor picks this client's side from a snapshot: the account id first,
// then the side opposite an engine, then the color from the game-start notice.
func authoritativeColor(full *lichess.GameFull, accountID string, startColor domain.Color) domain.Color {
	if id := strings.ToLower(strings.TrimSpace(accountID)); id != "" {
		switch id {
		case strings.ToLower(full.White.ID):
			return domain.White
		case strings.ToLower(full.Black.ID):
			return domain.Black
		}
	}
	switch {
	case full.White.AILevel > 0 && full.Black.AILevel == 0:
		return domain.Black
	case full.Black.AILevel > 0 && full.White.AILevel == 0:
		return domain.White
	}
	return startColor
}

func toSnapshot(full *lichess.GameFull, mine domain.Color) (game.Snapshot, error) {
	v, err := parseVariant(full.Variant)
	if err != nil {
		return game.Snapshot{}, err
	}
	return game.Snapshot{
		GameID:     full.ID,
		Variant:    v,
		Speed:      speedOf(full.Speed),
		Rated:      full.Rated,
		InitialFEN: full.InitialFEN,
		White:      toPlayer(full.White),
		Black:      toPlayer(full.Black),
		Clock:      clockOf(full.State),
		Status:     full.State.Status,
		MyColor:    mine,
	}, nil
}

func clockOf(s lichess.GameState) game.ClockMillis {
	return game.ClockMillis{WTime: s.WTime, BTime: s.BTime, WInc: s.WInc, BInc: s.BInc}
}

func toIncremental(s *lichess.GameState) game.Incremental {
	return game.Incremental{Clock: clockOf(*s), Status: s.Status, Winner: wireColor(s.Winner)}
}

func toChat(c *lichess.ChatLine) game.Chat {
	return game.Chat{Line: game.ChatLine{Room: c.Room, Username: c.Username, Text: c.Text}}
}

func toGone(g *lichess.OpponentGone) game.OpponentGone {
	return game.OpponentGone{Gone: g.Gone, ClaimWinInSeconds: g.ClaimWinInSeconds}
}

// challengeColor maps the local color choice to the AI-challenge parameter.
func challengeColor(c domain.ColorChoice) string {
	switch c {
	case domain.ChooseWhite:
		return "white"
	case domain.ChooseBlack:
		return "black"
	default:
		return "random"
	}
}
