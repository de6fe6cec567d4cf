// Package online folds the lifecycle feed and one game's event stream into a single
// game record and board.
package online

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/termchess/internal/domain"
	"github.com/park285/termchess/internal/event"
	"github.com/park285/termchess/internal/game"
	"github.com/park285/termchess/internal/lichess"
	"github.com/park285/termchess/internal/obslog"
)

var (
	ErrAlreadyAttached = fmt.Errorf("lifecycle source already attached: %w", game.ErrData)
	ErrOutOfSequence   = fmt.Errorf("event out of sequence: %w", game.ErrData)
	ErrOtherGameBound  = fmt.Errorf("another game is already bound: %w", game.ErrData)
	ErrClosed          = errors.New("reconciler closed")
)

// Board is the position the reconciler drives.
type Board interface {
	Reinitialize(variant domain.Variant, orientation domain.Color, fen string) error
	ApplyMoves(moves []string) error
}

type LifecycleSource interface {
	Subscribe(h func(lichess.LifecycleEvent) error) int
	Unsubscribe(id int)
}

// GameStream is a per-game event stream. Start must follow Subscribe.
type GameStream interface {
	Subscribe(h func(lichess.GameEvent) error) int
	Unsubscribe(id int)
	Start(ctx context.Context) error
	Close() error
}

// StreamOpener creates the event stream of one game without starting it.
type StreamOpener func(gameID string) GameStream

type ChallengeCreator interface {
	CreateAIChallenge(ctx context.Context, ch lichess.AIChallenge) (*lichess.ChallengeGame, error)
}

type Option func(*Reconciler)

func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithAccountID sets the account used to find this client's side in a snapshot.
func WithAccountID(id string) Option {
	return func(r *Reconciler) { r.accountID = id }
}

// baseline is the position a snapshot reinitialized the board to.
type baseline struct {
	variant     domain.Variant
	orientation domain.Color
	fen         string
}

// Reconciler owns one game's record. The record and board change together under mu;
// observers run after mu is released.
type Reconciler struct {
	mu        sync.Mutex
	record    game.Metadata
	board     Board
	opener    StreamOpener
	logger    *zap.Logger
	accountID string

	expected   string
	startColor domain.Color
	awaiting   bool
	held       []lichess.GameInfo

	lifecycle    LifecycleSource
	lifecycleSub int
	ctx          context.Context

	stream    GameStream
	streamSub int

	base    *baseline
	applied []string

	observers event.Feed[game.Metadata]
	closed    bool
}

// New starts a record from the local selection.
func New(sel game.Selection, b Board, opener StreamOpener, opts ...Option) (*Reconciler, error) {
	if b == nil || opener == nil {
		return nil, errors.New("online: board and stream opener are required")
	}
	rec, err := game.New().Merge(sel)
	if err != nil {
		return nil, fmt.Errorf("apply selection: %w", err)
	}
	r := &Reconciler{record: rec, board: b, opener: opener, logger: obslog.L()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Attach listens to the lifecycle feed. Streams opened for accepted games run under ctx.
func (r *Reconciler) Attach(ctx context.Context, src LifecycleSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.lifecycle != nil {
		r.logger.Warn("online_attach_twice", zap.String("game_id", r.record.GameID), zap.Error(ErrAlreadyAttached))
		return ErrAlreadyAttached
	}
	r.ctx = ctx
	r.lifecycle = src
	r.lifecycleSub = src.Subscribe(func(ev lichess.LifecycleEvent) error {
		return r.OnLifecycleEvent(r.streamContext(), ev)
	})
	return nil
}

func (r *Reconciler) streamContext() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// AwaitChallenge holds every game start back until ExpectGame names the game to bind.
// Call it before the lifecycle source starts reading.
func (r *Reconciler) AwaitChallenge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.expected == "" && r.record.GameID == "" {
		r.awaiting = true
	}
}

// ExpectGame restricts the session to one game id. A held start for id is replayed;
// the other held starts are dropped.
func (r *Reconciler) ExpectGame(id string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if bound := r.record.GameID; bound != "" && bound != id {
		r.mu.Unlock()
		err := fmt.Errorf("%w: %s, expected %s", ErrOtherGameBound, bound, id)
		r.logger.Warn("online_expect_game_failed", zap.String("game_id", id), zap.Error(err))
		return err
	}
	r.expected = id
	r.awaiting = false
	held := r.held
	r.held = nil
	r.mu.Unlock()

	i := slices.IndexFunc(held, func(g lichess.GameInfo) bool { return g.GameID == id })
	if i < 0 {
		return nil
	}
	return r.onGameStart(r.streamContext(), held[i])
}

// Subscribe registers an observer. It receives a copy of the whole record after each change.
func (r *Reconciler) Subscribe(fn func(game.Metadata)) int {
	return r.observers.Subscribe(event.Notify(fn))
}

func (r *Reconciler) Unsubscribe(id int) { r.observers.Unsubscribe(id) }

// Record returns a copy of the current record.
func (r *Reconciler) Record() game.Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record.Clone()
}

// PendingFinish returns the game-finish notice held back from observers, if any.
func (r *Reconciler) PendingFinish() *game.Finish {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.record.Finished == nil {
		return nil
	}
	f := *r.record.Finished
	return &f
}

// Applied returns the moves applied since the last snapshot reinitialized the board.
func (r *Reconciler) Applied() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.applied)
}

// StartAIChallenge asks the server for a game against its engine using the current selection.
func (r *Reconciler) StartAIChallenge(ctx context.Context, c ChallengeCreator) (string, error) {
	rec := r.Record()
	level := rec.AILevel
	if level < 1 {
		level = 1
	}
	clk := rec.Clock.White
	g, err := c.CreateAIChallenge(ctx, lichess.AIChallenge{
		Level:          level,
		ClockLimit:     clk.Time,
		ClockIncrement: clk.Increment,
		Color:          challengeColor(rec.ColorChoice),
		Variant:        string(rec.Variant),
	})
	if err != nil {
		r.logger.Warn("online_ai_challenge_failed", zap.Int("level", level), zap.Error(err))
		return "", err
	}
	if err := r.ExpectGame(g.ID); err != nil {
		return "", err
	}
	return g.ID, nil
}

// OnLifecycleEvent handles one lifecycle notice. Notices for other games are ignored.
func (r *Reconciler) OnLifecycleEvent(ctx context.Context, ev lichess.LifecycleEvent) error {
	switch ev := ev.(type) {
	case *lichess.GameStart:
		return r.onGameStart(ctx, ev.Game)
	case *lichess.GameFinish:
		return r.onGameFinish(ev.Game)
	default:
		err := fmt.Errorf("%w: unknown lifecycle event %T", game.ErrData, ev)
		r.logger.Warn("online_lifecycle_event_failed", zap.Error(err))
		return err
	}
}

func (r *Reconciler) onGameStart(ctx context.Context, g lichess.GameInfo) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.awaiting {
		if !slices.ContainsFunc(r.held, func(h lichess.GameInfo) bool { return h.GameID == g.GameID }) {
			r.held = append(r.held, g)
		}
		r.mu.Unlock()
		r.logger.Debug("online_game_start_held", zap.String("game_id", g.GameID))
		return nil
	}
	if reason := r.rejectStart(g); reason != "" {
		r.mu.Unlock()
		r.logger.Debug("online_game_start_ignored", zap.String("game_id", g.GameID), zap.String("reason", reason))
		return nil
	}

	start, err := toLifecycleStart(g)
	var next game.Metadata
	if err == nil {
		next, err = r.record.Merge(start)
	}
	if err != nil {
		r.mu.Unlock()
		r.logFailure("gameStart", g.GameID, err)
		return err
	}

	s := r.opener(start.GameID)
	sub := s.Subscribe(func(ev lichess.GameEvent) error { return r.OnStreamEvent(ev) })
	if err := s.Start(ctx); err != nil {
		s.Unsubscribe(sub)
		_ = s.Close()
		r.mu.Unlock()
		err = fmt.Errorf("start game stream %s: %w", start.GameID, err)
		r.logFailure("gameStart", g.GameID, err)
		return err
	}
	r.record = next
	r.startColor = start.Color
	r.stream, r.streamSub = s, sub
	snapshot := r.record.Clone()
	r.mu.Unlock()

	r.logger.Info("online_game_started", zap.String("game_id", start.GameID), zap.String("color", string(start.Color)))
	r.notify(snapshot)
	return nil
}

// rejectStart returns why a game start is not for this session, or "" to accept it.
func (r *Reconciler) rejectStart(g lichess.GameInfo) string {
	switch {
	case g.HasMoved:
		return "already moved"
	case !g.Compat.Board:
		return "not board compatible"
	case r.stream != nil:
		return "stream already open"
	case r.record.GameID != "" && r.record.GameID != g.GameID:
		return "other game"
	case r.expected != "" && r.expected != g.GameID:
		return "not the expected game"
	}
	return ""
}

func (r *Reconciler) onGameFinish(g lichess.GameInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.record.GameID == "" || r.record.GameID != g.GameID {
		r.logger.Debug("online_game_finish_ignored", zap.String("game_id", g.GameID))
		return nil
	}
	next, err := r.record.Merge(toFinished(g))
	if err != nil {
		r.logFailure("gameFinish", g.GameID, err)
		return err
	}
	r.record = next
	// observers are not told; the finish is read through PendingFinish
	r.logger.Info("online_game_finished",
		zap.String("game_id", g.GameID),
		zap.String("status", g.Status.Name),
		zap.String("winner", g.Winner),
	)
	return nil
}

// OnStreamEvent applies one per-game event to the record and board.
func (r *Reconciler) OnStreamEvent(ev lichess.GameEvent) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	var err error
	switch ev := ev.(type) {
	case *lichess.GameFull:
		err = r.applySnapshot(ev)
	case *lichess.GameState:
		err = r.applyIncremental(ev)
	case *lichess.ChatLine:
		err = r.mergeOnly(toChat(ev))
	case *lichess.OpponentGone:
		err = r.mergeOnly(toGone(ev))
	default:
		err = fmt.Errorf("%w: unknown game event %T", game.ErrData, ev)
	}
	gameID := r.record.GameID
	snapshot := r.record.Clone()
	r.mu.Unlock()

	if err != nil {
		r.logFailure(eventType(ev), gameID, err)
		return err
	}
	r.notify(snapshot)
	return nil
}

func eventType(ev lichess.GameEvent) string {
	if ev == nil {
		return "nil"
	}
	return ev.EventType()
}

func (r *Reconciler) mergeOnly(u game.Update) error {
	next, err := r.record.Merge(u)
	if err != nil {
		return err
	}
	r.record = next
	return nil
}

// applySnapshot reinitializes the board. A second snapshot replaces the first.
func (r *Reconciler) applySnapshot(full *lichess.GameFull) error {
	mine := authoritativeColor(full, r.accountID, r.startColor)
	snap, err := toSnapshot(full, mine)
	if err != nil {
		return err
	}
	next, err := r.record.Merge(snap)
	if err != nil {
		return err
	}
	base := &baseline{variant: next.Variant, orientation: next.MyColor, fen: next.InitialFEN}
	moves := full.State.MoveList()
	if err := r.rebuild(base, moves); err != nil {
		return err
	}
	r.record = next
	r.base = base
	r.applied = moves
	return nil
}

// applyIncremental replays only the moves not yet on the board. A shorter or
// diverging list rebuilds from the snapshot position.
func (r *Reconciler) applyIncremental(st *lichess.GameState) error {
	if r.base == nil {
		return fmt.Errorf("%w: game state before full snapshot", ErrOutOfSequence)
	}
	next, err := r.record.Merge(toIncremental(st))
	if err != nil {
		return err
	}
	if st.MovesSet {
		moves := st.MoveList()
		switch {
		case slices.Equal(moves, r.applied):
		case len(moves) > len(r.applied) && slices.Equal(moves[:len(r.applied)], r.applied):
			if err := r.board.ApplyMoves(moves[len(r.applied):]); err != nil {
				return fmt.Errorf("%w: %w", game.ErrData, err)
			}
			r.applied = moves
		default:
			if err := r.rebuild(r.base, moves); err != nil {
				return err
			}
			r.logger.Info("online_board_rebuilt", zap.String("game_id", r.record.GameID),
				zap.Int("from_plies", len(r.applied)), zap.Int("to_plies", len(moves)))
			r.applied = moves
		}
	}
	r.record = next
	return nil
}

// rebuild sets the board to base plus moves. On failure the previous position is restored.
func (r *Reconciler) rebuild(base *baseline, moves []string) error {
	err := r.board.Reinitialize(base.variant, base.orientation, base.fen)
	if err == nil {
		err = r.board.ApplyMoves(moves)
	}
	if err == nil {
		return nil
	}
	if r.base != nil {
		if rerr := r.board.Reinitialize(r.base.variant, r.base.orientation, r.base.fen); rerr == nil {
			rerr = r.board.ApplyMoves(r.applied)
			if rerr != nil {
				r.logger.Error("online_board_restore_failed", zap.Error(rerr))
			}
		}
	} else {
		_ = r.board.Reinitialize(domain.Standard, r.record.MyColor, "")
	}
	return fmt.Errorf("%w: %w", game.ErrData, err)
}

func (r *Reconciler) notify(m game.Metadata) {
	_ = r.observers.Publish(m)
}

func (r *Reconciler) logFailure(eventType, gameID string, err error) {
	if errors.Is(err, ErrClosed) {
		return
	}
	r.logger.Warn("online_event_failed",
		zap.String("game_id", gameID),
		zap.String("event_type", eventType),
		zap.Error(err),
	)
}

// Close detaches from both sources and closes the game stream. Later events return ErrClosed.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	lc, lcSub := r.lifecycle, r.lifecycleSub
	s, sSub := r.stream, r.streamSub
	r.mu.Unlock()

	if lc != nil {
		lc.Unsubscribe(lcSub)
	}
	if s != nil {
		s.Unsubscribe(sSub)
		return s.Close()
	}
	return nil
}
