// Package engine computes engine moves for offline play.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/termchess/internal/engine/uci"
	"github.com/park285/termchess/internal/obslog"
	"go.uber.org/zap"
)

var (
	ErrEngineUnavailable = errors.New("chess engine unavailable")
	ErrEngineTimeout     = errors.New("chess engine timeout")
	ErrNoLegalMove       = errors.New("engine found no legal move")
	ErrInvalidLevel      = errors.New("invalid ai level")
)

// Position is what the engine searches: a start FEN (empty for standard) plus UCI moves.
type Position struct {
	FEN   string
	Moves []string
}

type Result struct {
	Move       string
	Ponder     string
	Candidates []uci.Candidate
	Elapsed    time.Duration
	Level      int
}

type Config struct {
	BinaryPath string
	Threads    int
	HashMB     int
	Level      int
}

type searcher interface {
	Search(ctx context.Context, req uci.SearchRequest) (uci.SearchResponse, error)
	NewGame(ctx context.Context) error
	SetSkill(level int) error
	Close() error
}

type Engine struct {
	mu      sync.Mutex
	session searcher
	level   Level
	fresh   bool
	logger  *zap.Logger
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New starts the engine process and applies the level's skill setting.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	if strings.TrimSpace(cfg.BinaryPath) == "" {
		return nil, fmt.Errorf("%w: engine path is empty", ErrEngineUnavailable)
	}
	lvl, err := GetLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	e := &Engine{level: lvl, fresh: true, logger: obslog.L()}
	for _, opt := range opts {
		opt(e)
	}
	s, err := uci.NewSession(ctx, cfg.BinaryPath, uci.Options{
		Threads:    cfg.Threads,
		HashMB:     cfg.HashMB,
		SkillLevel: lvl.SkillLevel,
	}, e.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	e.session = s
	return e, nil
}

func newWithSession(s searcher, lvl Level, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{session: s, level: lvl, fresh: true, logger: logger}
}

func (e *Engine) Level() Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

func (e *Engine) SetLevel(n int) error {
	lvl, err := GetLevel(n)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ErrEngineUnavailable
	}
	if err := e.session.SetSkill(lvl.SkillLevel); err != nil {
		return mapEngineError(err)
	}
	e.level = lvl
	return nil
}

// BestMove blocks until the engine answers or ctx ends.
func (e *Engine) BestMove(ctx context.Context, pos Position) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Result{}, ErrEngineUnavailable
	}

	if e.fresh {
		if err := e.session.NewGame(ctx); err != nil {
			return Result{}, mapEngineError(err)
		}
		e.fresh = false
	}

	start := time.Now()
	resp, err := e.session.Search(ctx, uci.SearchRequest{
		FEN:    pos.FEN,
		Moves:  pos.Moves,
		Limits: e.level.limits(),
	})
	elapsed := time.Since(start)
	if err != nil {
		e.logger.Warn("engine_search_failed",
			zap.Int("level", e.level.Level),
			zap.Int("ply", len(pos.Moves)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return Result{}, mapEngineError(err)
	}

	mv := strings.ToLower(strings.TrimSpace(resp.BestMove))
	if mv == "" || mv == "(none)" || mv == "0000" {
		return Result{}, ErrNoLegalMove
	}
	e.logger.Debug("engine_best_move",
		zap.String("move", mv),
		zap.Int("level", e.level.Level),
		zap.Duration("elapsed", elapsed),
	)
	return Result{
		Move:       mv,
		Ponder:     resp.Ponder,
		Candidates: resp.Candidates,
		Elapsed:    elapsed,
		Level:      e.level.Level,
	}, nil
}

// NewGame makes the next BestMove reset engine state first.
func (e *Engine) NewGame() {
	e.mu.Lock()
	e.fresh = true
	e.mu.Unlock()
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Close()
	e.session = nil
	return err
}

func mapEngineError(err error) error {
	if err == nil {
		return ErrEngineUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || engineTimeoutMessage(err) {
		return fmt.Errorf("%w: %w", ErrEngineTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
}

func engineTimeoutMessage(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
