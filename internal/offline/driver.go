// Package offline alternates human and engine moves on one board.
package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/termchess/internal/domain"
	"github.com/park285/termchess/internal/engine"
	"github.com/park285/termchess/internal/event"
	"github.com/park285/termchess/internal/obslog"
)

var (
	ErrInputLocked   = errors.New("input locked while the engine is thinking")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrNotEngineTurn = errors.New("not the engine's turn")
	ErrEngineBusy    = errors.New("engine computation already in flight")
	ErrGameOver      = errors.New("game is over")
	ErrClosed        = errors.New("session closed")
)

type Board interface {
	Turn() domain.Color
	Over() bool
	StartFEN() string
	Moves() []string
	ApplyMove(move string) error
}

type Engine interface {
	BestMove(ctx context.Context, pos engine.Position) (engine.Result, error)
}

// MoveEvent is published after a move is applied to the board.
type MoveEvent struct {
	Side     domain.Color
	Move     string
	ByEngine bool
	Elapsed  time.Duration
	Over     bool
}

type Option func(*Driver)

func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// Driver owns the turn order of a local game. At most one engine computation runs at a time.
type Driver struct {
	mu     sync.Mutex
	board  Board
	engine Engine
	human  domain.Color
	id     string
	ctx    context.Context
	logger *zap.Logger

	locked bool
	busy   bool
	closed bool
	wg     sync.WaitGroup

	errs  event.Feed[error]
	moves event.Feed[MoveEvent]
}

// NewDriver schedules the first engine move right away when the engine is to move.
// Background computations run under ctx.
func NewDriver(ctx context.Context, b Board, eng Engine, human domain.Color, opts ...Option) (*Driver, error) {
	if !human.Valid() {
		return nil, fmt.Errorf("invalid human color %q", human)
	}
	if b == nil || eng == nil {
		return nil, errors.New("offline: board and engine are required")
	}
	d := &Driver{
		board:  b,
		engine: eng,
		human:  human,
		id:     "local-" + uuid.NewString(),
		ctx:    ctx,
		logger: obslog.L(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("game_id", d.id))
	if b.Turn() != human && !b.Over() {
		d.schedule()
	}
	return d, nil
}

func (d *Driver) ID() string { return d.id }

func (d *Driver) Human() domain.Color { return d.human }

// Errors carries failures of background engine computations.
func (d *Driver) Errors() *event.Feed[error] { return &d.errs }

// Moves carries every applied move, human or engine.
func (d *Driver) Moves() *event.Feed[MoveEvent] { return &d.moves }

func (d *Driver) InputLocked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

// SubmitHumanMove applies a UCI or SAN move and then starts the engine's reply.
// Board rejections are returned as they are.
func (d *Driver) SubmitHumanMove(move string) error {
	d.mu.Lock()
	switch {
	case d.closed:
		d.mu.Unlock()
		return ErrClosed
	case d.locked:
		d.mu.Unlock()
		return ErrInputLocked
	case d.board.Over():
		d.mu.Unlock()
		return ErrGameOver
	case d.board.Turn() != d.human:
		d.mu.Unlock()
		return ErrNotYourTurn
	}
	if err := d.board.ApplyMove(move); err != nil {
		d.mu.Unlock()
		return err
	}
	ev := MoveEvent{Side: d.human, Move: lastMove(d.board), Over: d.board.Over()}
	d.mu.Unlock()

	_ = d.moves.Publish(ev)
	if !ev.Over {
		d.schedule()
	}
	return nil
}

// ComputeEngineMove asks the engine for a move and applies it, blocking until done.
// Input stays locked if the engine's move is rejected by the board; see Retry.
func (d *Driver) ComputeEngineMove(ctx context.Context) error {
	d.mu.Lock()
	err := d.begin()
	d.mu.Unlock()
	if err != nil {
		return err
	}
	return d.run(ctx)
}

// begin claims the engine turn. Callers hold mu.
func (d *Driver) begin() error {
	switch {
	case d.closed:
		return ErrClosed
	case d.busy:
		return ErrEngineBusy
	case d.board.Over():
		return ErrGameOver
	case d.board.Turn() == d.human:
		return ErrNotEngineTurn
	}
	d.busy = true
	d.locked = true
	return nil
}

func (d *Driver) run(ctx context.Context) error {
	pos := engine.Position{FEN: d.board.StartFEN(), Moves: d.board.Moves()}
	res, err := d.engine.BestMove(ctx, pos)

	d.mu.Lock()
	d.busy = false
	if d.closed {
		d.mu.Unlock()
		d.logger.Debug("offline_engine_result_discarded", zap.String("move", res.Move))
		return ErrClosed
	}
	if err != nil {
		d.locked = false
		d.mu.Unlock()
		return fmt.Errorf("engine move: %w", err)
	}
	side := d.board.Turn()
	if err := d.board.ApplyMove(res.Move); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("engine move %q: %w", res.Move, err)
	}
	d.locked = false
	ev := MoveEvent{Side: side, Move: lastMove(d.board), ByEngine: true, Elapsed: res.Elapsed, Over: d.board.Over()}
	d.mu.Unlock()

	d.logger.Debug("offline_engine_move",
		zap.String("move", ev.Move),
		zap.Duration("elapsed", res.Elapsed),
		zap.Int("level", res.Level),
	)
	_ = d.moves.Publish(ev)
	return nil
}

// schedule starts an engine computation in the background if it is the engine's turn.
func (d *Driver) schedule() {
	d.mu.Lock()
	if err := d.begin(); err != nil {
		d.mu.Unlock()
		d.logger.Debug("offline_engine_not_scheduled", zap.Error(err))
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		err := d.run(d.ctx)
		if err == nil || errors.Is(err, ErrClosed) {
			return
		}
		d.logger.Warn("offline_engine_move_failed", zap.Error(err))
		_ = d.errs.Publish(err)
	}()
}

// Retry unlocks input after a rejected engine move and asks the engine again.
func (d *Driver) Retry() {
	d.mu.Lock()
	if d.closed || d.busy {
		d.mu.Unlock()
		return
	}
	d.locked = false
	d.mu.Unlock()
	d.schedule()
}

// Wait blocks until background computations have returned.
func (d *Driver) Wait() { d.wg.Wait() }

// Close stops scheduling. A computation in flight finishes but its move is not applied.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func lastMove(b Board) string {
	moves := b.Moves()
	if len(moves) == 0 {
		return ""
	}
	return moves[len(moves)-1]
}
