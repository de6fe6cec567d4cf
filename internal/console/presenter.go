// Package console writes game output to a terminal through the message catalog.
package console

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/termchess/internal/board"
	"github.com/park285/termchess/internal/domain"
	"github.com/park285/termchess/internal/game"
	"github.com/park285/termchess/internal/msgcat"
	"github.com/park285/termchess/internal/offline"
)

// BoardView is the read side of the board the presenter needs.
type BoardView interface {
	Position() *nchess.Position
	Orientation() domain.Color
	SANMoves() []string
	Over() bool
	Outcome() string
	Method() string
}

// Presenter serialises writes so stream callbacks and the input loop do not interleave lines.
type Presenter struct {
	mu  sync.Mutex
	out io.Writer
	cat *msgcat.Catalog
}

func NewPresenter(out io.Writer, cat *msgcat.Catalog) *Presenter {
	return &Presenter{out: out, cat: cat}
}

// Say renders key and prints it on its own line.
func (p *Presenter) Say(key string, data any) {
	p.write(p.cat.Text(key, data))
}

// Prompt prints the input prompt without a newline.
func (p *Presenter) Prompt(side domain.Color) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, p.cat.Text("prompt", map[string]any{"Side": side}))
}

func (p *Presenter) write(lines ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		fmt.Fprintln(p.out, l)
	}
}

// Board prints the diagram and, when the game ended on the board, the result.
func (p *Presenter) Board(b BoardView) {
	lines := []string{Diagram(b.Position(), b.Orientation())}
	if b.Over() {
		lines = append(lines, p.cat.Text("finish.board", map[string]any{
			"Outcome": b.Outcome(),
			"Method":  b.Method(),
		}))
	}
	p.write(lines...)
}

// Record prints the reconciled header, clocks, status and move list, then the board.
func (p *Presenter) Record(m game.Metadata, b BoardView) {
	p.write(p.recordLines(m, b)...)
	p.Board(b)
}

func (p *Presenter) recordLines(m game.Metadata, b BoardView) []string {
	lines := []string{
		p.cat.Text("record.header", map[string]any{
			"White":   p.playerName(m.Players.White),
			"Black":   p.playerName(m.Players.Black),
			"Variant": m.Variant,
			"Speed":   m.Speed,
			"Rated":   m.Rated,
		}),
		p.cat.Text("record.clock", map[string]any{
			"White": FormatClock(m.Clock.White.Time),
			"Black": FormatClock(m.Clock.Black.Time),
		}),
	}
	if m.Status != "" {
		lines = append(lines, p.cat.Text("record.status", map[string]any{"Status": m.Status}))
	}
	if moves := MoveList(b.SANMoves()); moves != "" {
		lines = append(lines, p.cat.Text("record.moves", map[string]any{"Moves": moves}))
	}
	return lines
}

func (p *Presenter) playerName(pl game.Player) string {
	if pl.IsEngine() {
		return game.EngineName(pl.AILevel)
	}
	if pl.Name == "" {
		return "?"
	}
	return p.cat.Text("player.human", pl)
}

// Move prints one offline move.
func (p *Presenter) Move(ev offline.MoveEvent) {
	if ev.ByEngine {
		p.Say("move.engine", map[string]any{"Move": ev.Move, "Elapsed": ev.Elapsed.Round(time.Millisecond)})
		return
	}
	p.Say("move.human", map[string]any{"Move": ev.Move})
}

// RemoteMove prints a move that arrived from the server.
func (p *Presenter) RemoteMove(side domain.Color, move string) {
	p.Say("move.remote", map[string]any{"Side": side, "Move": move})
}

func (p *Presenter) Chat(line game.ChatLine) {
	p.Say("chat.line", line)
}

// OpponentGone prints the gone notice; claim is zero when no claim timer is known.
func (p *Presenter) OpponentGone(gone bool, claim time.Duration) {
	if !gone {
		p.Say("opponent.back", nil)
		return
	}
	data := map[string]any{"ClaimWin": ""}
	if claim > 0 {
		data["ClaimWin"] = claim.Round(time.Second).String()
	}
	p.Say("opponent.gone", data)
}

func (p *Presenter) Finish(f *game.Finish) {
	if f == nil {
		return
	}
	p.Say("finish.pending", f)
}

// Error maps known failures to catalog messages.
func (p *Presenter) Error(err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, offline.ErrInputLocked), errors.Is(err, offline.ErrEngineBusy):
		p.Say("error.locked", nil)
	case errors.Is(err, offline.ErrNotYourTurn):
		p.Say("error.not_your_turn", nil)
	case errors.Is(err, offline.ErrGameOver):
		p.Say("error.game_over", nil)
	case errors.Is(err, board.ErrIllegalMove):
		p.Say("error.illegal", map[string]any{"Move": illegalMoveText(err)})
	case errors.Is(err, game.ErrData):
		p.Say("error.online", map[string]any{"Error": err})
	default:
		p.Say("error.engine", map[string]any{"Error": err})
	}
}

func illegalMoveText(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, board.ErrIllegalMove.Error()+": "); i >= 0 {
		msg = msg[i+len(board.ErrIllegalMove.Error())+2:]
	}
	if i := strings.Index(msg, ":"); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimSpace(msg)
}
