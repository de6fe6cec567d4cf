// Package board owns the position and move history of one game.
package board

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/termchess/internal/domain"
)

var (
	ErrIllegalMove        = errors.New("illegal move")
	ErrUnsupportedVariant = errors.New("unsupported variant")
	ErrInvalidPosition    = errors.New("invalid starting position")
)

// Board is safe for concurrent use; every mutation holds the write lock.
type Board struct {
	mu          sync.RWMutex
	game        *nchess.Game
	orientation domain.Color
	startFEN    string
}

// New returns a standard board at the starting position, oriented for white.
func New() *Board {
	return &Board{game: nchess.NewGame(), orientation: domain.White}
}

// Reinitialize replaces the game. An empty fen or "startpos" is the standard start position.
func (b *Board) Reinitialize(variant domain.Variant, orientation domain.Color, fen string) error {
	if variant == "" {
		variant = domain.Standard
	}
	if variant != domain.Standard && variant != domain.FromPosition {
		return fmt.Errorf("%w: %s", ErrUnsupportedVariant, variant)
	}
	if !orientation.Valid() {
		orientation = domain.White
	}
	fen = strings.TrimSpace(fen)
	if fen == "startpos" {
		fen = ""
	}

	g := nchess.NewGame()
	if fen != "" {
		opt, err := nchess.FEN(fen)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPosition, err)
		}
		g = nchess.NewGame(opt)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.game = g
	b.orientation = orientation
	b.startFEN = fen
	return nil
}

// ApplyMoves applies the list in order. Either every move is applied or none.
func (b *Board) ApplyMoves(moves []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	scratch := b.game.Clone()
	for i, mv := range moves {
		if err := applyTo(scratch, mv); err != nil {
			return fmt.Errorf("move %d: %w", i+1, err)
		}
	}
	b.game = scratch
	return nil
}

// ApplyMove accepts UCI ("e2e4") or SAN ("Nf3").
func (b *Board) ApplyMove(move string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return applyTo(b.game, move)
}

func applyTo(g *nchess.Game, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty move", ErrIllegalMove)
	}
	if g.Outcome() != nchess.NoOutcome {
		return fmt.Errorf("%w: game is over", ErrIllegalMove)
	}
	mv, err := decodeMove(g.Position(), text)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}
	if err := g.Move(mv, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIllegalMove, text, err)
	}
	return nil
}

func decodeMove(pos *nchess.Position, text string) (*nchess.Move, error) {
	if mv, err := (nchess.UCINotation{}).Decode(pos, strings.ToLower(text)); err == nil {
		return mv, nil
	}
	return nchess.AlgebraicNotation{}.Decode(pos, text)
}

// Turn returns the side to move.
func (b *Board) Turn() domain.Color {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.game.Position().Turn() == nchess.Black {
		return domain.Black
	}
	return domain.White
}

func (b *Board) Orientation() domain.Color {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.orientation
}

// StartFEN is the position passed to the last Reinitialize; empty means standard.
func (b *Board) StartFEN() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.startFEN
}

func (b *Board) FEN() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.game.FEN()
}

func (b *Board) MoveCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.game.Moves())
}

// Moves returns the history in UCI notation.
func (b *Board) Moves() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	moves := b.game.Moves()
	out := make([]string, len(moves))
	for i, mv := range moves {
		out[i] = mv.String()
	}
	return out
}

// SANMoves returns the history in standard algebraic notation.
func (b *Board) SANMoves() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	positions := b.game.Positions()
	moves := b.game.Moves()
	out := make([]string, len(moves))
	notation := nchess.AlgebraicNotation{}
	for i, mv := range moves {
		if i < len(positions) {
			out[i] = notation.Encode(positions[i], mv)
		}
	}
	return out
}

// LastMove returns nil before the first move.
func (b *Board) LastMove() *nchess.Move {
	b.mu.RLock()
	defer b.mu.RUnlock()
	moves := b.game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

// Position returns the current position; callers must not mutate it.
func (b *Board) Position() *nchess.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.game.Position()
}

// Outcome is "*" while the game is running.
func (b *Board) Outcome() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return string(b.game.Outcome())
}

func (b *Board) Method() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.game.Method().String()
}

func (b *Board) Over() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.game.Outcome() != nchess.NoOutcome
}

// Clone returns an independent copy.
func (b *Board) Clone() *Board {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return &Board{
		game:        b.game.Clone(),
		orientation: b.orientation,
		startFEN:    b.startFEN,
	}
}
