package recordcache

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/termchess/internal/game"
	"github.com/park285/termchess/internal/obslog"
)

// BoardView supplies the position stored next to each record.
type BoardView interface {
	FEN() string
	Moves() []string
}

// Writer is a record observer that saves in the background. Only the newest record
// per game is kept while a save is pending.
type Writer struct {
	store  *Store
	board  BoardView
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]Entry
	order   []string
	wake    chan struct{}
}

func NewWriter(store *Store, board BoardView, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = obslog.L()
	}
	return &Writer{
		store:   store,
		board:   board,
		logger:  logger,
		pending: make(map[string]Entry),
		wake:    make(chan struct{}, 1),
	}
}

// Observe queues m. It never blocks on Redis.
func (w *Writer) Observe(m game.Metadata) {
	if m.GameID == "" {
		return
	}
	e := Entry{Record: m.Clone(), UpdatedAt: time.Now()}
	if w.board != nil {
		e.FEN = w.board.FEN()
		e.Moves = w.board.Moves()
	}
	w.mu.Lock()
	if _, ok := w.pending[m.GameID]; !ok {
		w.order = append(w.order, m.GameID)
	}
	w.pending[m.GameID] = e
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run saves queued records until ctx ends, then flushes what is left.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			w.flush(flushCtx)
			cancel()
			return nil
		case <-w.wake:
			if ctx.Err() != nil {
				continue
			}
			w.flush(ctx)
		}
	}
}

func (w *Writer) flush(ctx context.Context) {
	w.mu.Lock()
	order := slices.Clone(w.order)
	batch := w.pending
	w.pending = make(map[string]Entry)
	w.order = w.order[:0]
	w.mu.Unlock()

	for _, id := range order {
		if err := w.store.Save(ctx, batch[id]); err != nil {
			w.logger.Warn("record_cache_save_failed", zap.String("game_id", id), zap.Error(err))
		}
	}
}
