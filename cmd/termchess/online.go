package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/termchess/internal/board"
	"github.com/park285/termchess/internal/console"
	"github.com/park285/termchess/internal/domain"
	"github.com/park285/termchess/internal/game"
	"github.com/park285/termchess/internal/lichess"
	"github.com/park285/termchess/internal/online"
	"github.com/park285/termchess/internal/recordcache"
	"github.com/park285/termchess/internal/sessionbuilder"
)

func runOnline(ctx context.Context, deps *sessionbuilder.Deps, sel game.Selection, logger *zap.Logger) error {
	remote, err := deps.Online()
	if err != nil {
		return err
	}
	pres := console.NewPresenter(os.Stdout, deps.Catalog)

	acc, err := remote.Client.Account(ctx)
	if err != nil {
		return err
	}
	pres.Say("banner.online", map[string]any{"Account": acc.Username})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := board.New()
	r, err := online.New(sel, b, remote.Opener,
		online.WithLogger(logger.Named("online")),
		online.WithAccountID(acc.ID),
	)
	if err != nil {
		return err
	}
	defer r.Close()

	view := &onlineView{pres: pres, board: b}
	r.Subscribe(view.observe)

	g, gctx := errgroup.WithContext(ctx)
	if deps.Cache != nil {
		w := recordcache.NewWriter(deps.Cache, b, logger.Named("recordcache"))
		r.Subscribe(w.Observe)
		g.Go(func() error { return w.Run(gctx) })
	}

	// starts replayed on connect belong to other games until the challenge id is known
	r.AwaitChallenge()
	if err := r.Attach(gctx, remote.Lifecycle); err != nil {
		return err
	}
	// runs after the reconciler's own handler, so the finish is already recorded
	remote.Lifecycle.Subscribe(func(ev lichess.LifecycleEvent) error {
		if _, ok := ev.(*lichess.GameFinish); ok {
			if f := r.PendingFinish(); f != nil {
				pres.Finish(f)
			}
		}
		return nil
	})
	g.Go(func() error {
		err := remote.Lifecycle.Run(gctx)
		if err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})

	gameID, err := r.StartAIChallenge(gctx, remote.Client)
	if err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	rec := r.Record()
	pres.Say("banner.challenge", map[string]any{
		"Level":  rec.AILevel,
		"Clock":  clockLabel(rec.Clock.White),
		"GameID": gameID,
	})

	lines := readLines(gctx, os.Stdin)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					cancel()
					return nil
				}
				err := onlineLine(gctx, line, gameID, r, b, remote.Client, deps, pres)
				if errors.Is(err, errQuit) {
					cancel()
					return nil
				}
				if err != nil {
					return err
				}
			}
		}
	})
	return g.Wait()
}

func onlineLine(ctx context.Context, line, gameID string, r *online.Reconciler, b *board.Board, client *lichess.Client, deps *sessionbuilder.Deps, pres *console.Presenter) error {
	if line == "" {
		return nil
	}
	cmd, ok := parseCommand(line)
	if !ok {
		return submitRemoteMove(ctx, line, gameID, r, b, client, pres)
	}
	switch cmd.name {
	case "help":
		pres.Say("help", nil)
	case "board":
		pres.Record(r.Record(), b)
		if f := r.PendingFinish(); f != nil {
			pres.Finish(f)
		}
	case "export":
		path, err := exportBoard(ctx, deps, b, r.Record().MyColor, gameID)
		if err != nil {
			pres.Error(err)
			return nil
		}
		pres.Say("export.done", map[string]any{"Path": path})
	case "resign":
		if err := client.Resign(ctx, gameID); err != nil {
			pres.Say("error.online", map[string]any{"Error": err})
		}
	case "retry":
		pres.Say("error.unknown_command", map[string]any{"Command": "/retry"})
	case "quit":
		return errQuit
	default:
		pres.Say("error.unknown_command", map[string]any{"Command": "/" + cmd.name})
	}
	return nil
}

// submitRemoteMove checks the move on a scratch board and sends it as UCI.
// The real board changes only when the server echoes the move back.
func submitRemoteMove(ctx context.Context, text, gameID string, r *online.Reconciler, b *board.Board, client *lichess.Client, pres *console.Presenter) error {
	if r.PendingFinish() != nil || b.Over() {
		pres.Say("error.game_over", nil)
		return nil
	}
	if b.Turn() != r.Record().MyColor {
		pres.Say("error.not_your_turn", nil)
		return nil
	}
	scratch := b.Clone()
	if err := scratch.ApplyMove(text); err != nil {
		pres.Error(err)
		return nil
	}
	uci := scratch.LastMove().String()
	if err := client.MakeMove(ctx, gameID, uci); err != nil {
		pres.Say("error.online", map[string]any{"Error": err})
	}
	return nil
}

func clockLabel(c game.Clock) string {
	if c.Time <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%s+%d", console.FormatClock(c.Time), int(c.Increment/time.Second))
}

// onlineView prints what changed between two records.
type onlineView struct {
	pres  *console.Presenter
	board *board.Board

	mu      sync.Mutex
	started bool
	moves   int
	chat    int
	gone    bool
}

func (v *onlineView) observe(m game.Metadata) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.started && m.SnapshotSeen {
		v.started = true
		v.pres.Record(m, v.board)
		v.moves = v.board.MoveCount()
		v.chat = len(m.Chat)
		v.prompt(m)
		return
	}

	if n := v.board.MoveCount(); n != v.moves {
		if n > v.moves {
			uci := v.board.Moves()
			for i := v.moves; i < n; i++ {
				v.pres.RemoteMove(sideOf(i, v.board.StartFEN()), uci[i])
			}
		}
		v.moves = n
		v.pres.Board(v.board)
		v.prompt(m)
	}
	for _, line := range m.Chat[min(v.chat, len(m.Chat)):] {
		v.pres.Chat(line)
	}
	v.chat = len(m.Chat)
	if m.OpponentGone != v.gone {
		v.gone = m.OpponentGone
		v.pres.OpponentGone(m.OpponentGone, m.ClaimWinIn)
	}
}

func (v *onlineView) prompt(m game.Metadata) {
	if !v.board.Over() && v.board.Turn() == m.MyColor {
		v.pres.Prompt(m.MyColor)
	}
}

// sideOf returns who played ply i, counting from the start position's side to move.
func sideOf(i int, startFEN string) domain.Color {
	first := domain.White
	if f := strings.Fields(startFEN); len(f) > 1 && f[1] == "b" {
		first = domain.Black
	}
	if i%2 == 0 {
		return first
	}
	return first.Opposite()
}
