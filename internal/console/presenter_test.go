package console

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/park285/termchess/internal/board"
	"github.com/park285/termchess/internal/domain"
	"github.com/park285/termchess/internal/game"
	"github.com/park285/termchess/internal/msgcat"
	"github.com/park285/termchess/internal/offline"
)

func newPresenter(t *testing.T) (*Presenter, *bytes.Buffer) {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	var buf bytes.Buffer
	return NewPresenter(&buf, cat), &buf
}

func TestDiagramOrientation(t *testing.T) {
	b := board.New()
	white := strings.Split(Diagram(b.Position(), domain.White), "\n")
	if white[0] != "8 r n b q k b n r" {
		t.Fatalf("top row for white = %q", white[0])
	}
	if white[len(white)-1] != "  a b c d e f g h" {
		t.Fatalf("file row for white = %q", white[len(white)-1])
	}

	black := strings.Split(Diagram(b.Position(), domain.Black), "\n")
	if black[0] != "1 R N B K Q B N R" {
		t.Fatalf("top row for black = %q", black[0])
	}
	if black[len(black)-1] != "  h g f e d c b a" {
		t.Fatalf("file row for black = %q", black[len(black)-1])
	}
}

func TestMoveListAndClock(t *testing.T) {
	if got := MoveList([]string{"e4", "e5", "Nf3"}); got != "1. e4 e5 2. Nf3" {
		t.Fatalf("MoveList = %q", got)
	}
	if MoveList(nil) != "" {
		t.Fatalf("empty list should render empty")
	}
	cases := map[time.Duration]string{
		-time.Second:                           "0:00",
		65 * time.Second:                       "1:05",
		time.Hour + 2*time.Second:              "1:00:02",
		299*time.Second + 900*time.Millisecond: "4:59",
	}
	for in, want := range cases {
		if got := FormatClock(in); got != want {
			t.Fatalf("FormatClock(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordShowsPlayersClockAndMoves(t *testing.T) {
	p, buf := newPresenter(t)
	b := board.New()
	if err := b.ApplyMoves([]string{"e2e4", "e7e5"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	m := game.New()
	m.Speed = domain.Blitz
	m.Rated = true
	m.Status = "started"
	m.Players = game.Sides[game.Player]{
		White: game.Player{Name: "alice", Rating: 1500, Provisional: true},
		Black: game.Player{AILevel: 3},
	}
	m.Clock.White.Time = 3 * time.Minute
	m.Clock.Black.Time = 2*time.Minute + 30*time.Second

	p.Record(m, b)
	out := buf.String()
	for _, want := range []string{
		"alice (1500?) vs Stockfish level 3  [standard blitz rated]",
		"Clock  white 3:00  black 2:30",
		"Status started",
		"Moves  1. e4 e5",
		"8 r n b q k b n r",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestBoardShowsResultWhenOver(t *testing.T) {
	p, buf := newPresenter(t)
	b := board.New()
	if err := b.ApplyMoves([]string{"f2f3", "e7e5", "g2g4", "d8h4"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	p.Board(b)
	if !strings.Contains(buf.String(), "Game over: 0-1 by Checkmate.") {
		t.Fatalf("missing result:\n%s", buf.String())
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{offline.ErrInputLocked, "Wait for the engine"},
		{fmt.Errorf("submit: %w", offline.ErrNotYourTurn), "not your turn"},
		{offline.ErrGameOver, "The game is over."},
		{fmt.Errorf("%w: e2e5", board.ErrIllegalMove), "Illegal move: e2e5"},
		{fmt.Errorf("move 2: %w: Ke9: bad", board.ErrIllegalMove), "Illegal move: Ke9"},
		{fmt.Errorf("%w: snapshot for other game", game.ErrData), "Server error:"},
		{fmt.Errorf("engine timeout"), "Engine failed: engine timeout."},
	}
	for _, tc := range cases {
		p, buf := newPresenter(t)
		p.Error(tc.err)
		if !strings.Contains(buf.String(), tc.want) {
			t.Fatalf("Error(%v) = %q, want %q", tc.err, buf.String(), tc.want)
		}
	}
}

func TestMoveChatAndOpponentMessages(t *testing.T) {
	p, buf := newPresenter(t)
	p.Move(offline.MoveEvent{Side: domain.Black, Move: "e7e5", ByEngine: true, Elapsed: 1234567 * time.Microsecond})
	p.Move(offline.MoveEvent{Side: domain.White, Move: "g1f3"})
	p.RemoteMove(domain.Black, "b8c6")
	p.Chat(game.ChatLine{Room: "player", Username: "bob", Text: "hi"})
	p.OpponentGone(true, 10*time.Second)
	p.OpponentGone(false, 0)
	p.Finish(&game.Finish{GameID: "g1", Status: "mate", Winner: domain.White})
	p.Finish(nil)

	want := []string{
		"Stockfish played e7e5 (1.235s).",
		"You played g1f3.",
		"black played b8c6.",
		"[player] bob: hi",
		"Opponent left the game. You can claim the win in 10s.",
		"Opponent is back.",
		"Game over: mate, white wins.",
	}
	got := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(got), len(want), buf.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}
