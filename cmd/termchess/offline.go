package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/termchess/internal/board"
	"github.com/park285/termchess/internal/console"
	"github.com/park285/termchess/internal/domain"
	"github.com/park285/termchess/internal/event"
	"github.com/park285/termchess/internal/game"
	"github.com/park285/termchess/internal/offline"
	"github.com/park285/termchess/internal/sessionbuilder"
	"github.com/park285/termchess/internal/snapshot"
)

var errQuit = errors.New("quit")

func randomColor() domain.Color {
	if rand.IntN(2) == 0 {
		return domain.White
	}
	return domain.Black
}

// stopSession closes the engine only after an in-flight computation has returned.
func stopSession(d *offline.Driver, eng io.Closer) {
	_ = d.Close()
	d.Wait()
	_ = eng.Close()
}

func runOffline(ctx context.Context, deps *sessionbuilder.Deps, sel game.Selection, logger *zap.Logger) error {
	rec, err := game.New().Merge(sel)
	if err != nil {
		return err
	}
	human := rec.ColorChoice.Provisional()
	if rec.ColorChoice == domain.ChooseRandom {
		human = randomColor()
	}

	b := board.New()
	if err := b.Reinitialize(domain.Standard, human, ""); err != nil {
		return err
	}
	eng, err := deps.Engine(ctx, rec.AILevel)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pres := console.NewPresenter(os.Stdout, deps.Catalog)
	pres.Say("banner.offline", map[string]any{"Human": human, "Level": rec.AILevel})
	pres.Board(b)

	d, err := offline.NewDriver(ctx, b, eng, human, offline.WithLogger(logger.Named("offline")))
	if err != nil {
		_ = eng.Close()
		return err
	}
	defer stopSession(d, eng)

	d.Moves().Subscribe(event.Notify(func(ev offline.MoveEvent) {
		pres.Move(ev)
		if ev.ByEngine || ev.Over {
			pres.Board(b)
		}
		if !ev.Over && b.Turn() == human {
			pres.Prompt(human)
		}
	}))
	d.Errors().Subscribe(event.Notify(pres.Error))

	if b.Turn() == human {
		pres.Prompt(human)
	}

	g, gctx := errgroup.WithContext(ctx)
	lines := readLines(gctx, os.Stdin)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if err := offlineLine(gctx, line, d, b, deps, pres); err != nil {
					if errors.Is(err, errQuit) {
						cancel()
						return nil
					}
					return err
				}
			}
		}
	})
	return g.Wait()
}

func offlineLine(ctx context.Context, line string, d *offline.Driver, b *board.Board, deps *sessionbuilder.Deps, pres *console.Presenter) error {
	if line == "" {
		return nil
	}
	cmd, ok := parseCommand(line)
	if !ok {
		if err := d.SubmitHumanMove(line); err != nil {
			pres.Error(err)
			if !d.InputLocked() && b.Turn() == d.Human() {
				pres.Prompt(d.Human())
			}
		}
		return nil
	}
	switch cmd.name {
	case "help":
		pres.Say("help", nil)
	case "board":
		pres.Board(b)
	case "retry":
		d.Retry()
	case "export":
		path, err := exportBoard(ctx, deps, b, d.Human(), d.ID())
		if err != nil {
			pres.Error(err)
			return nil
		}
		pres.Say("export.done", map[string]any{"Path": path})
	case "quit", "resign":
		return errQuit
	default:
		pres.Say("error.unknown_command", map[string]any{"Command": "/" + cmd.name})
	}
	return nil
}

// exportBoard renders the current position with the last move highlighted.
func exportBoard(ctx context.Context, deps *sessionbuilder.Deps, b *board.Board, orientation domain.Color, gameID string) (string, error) {
	png, err := deps.Renderer.RenderPNG(ctx, b.Position(), snapshot.Options{
		Orientation: orientation,
		Highlight:   snapshot.HighlightMove(b.LastMove()),
		Arrow:       true,
		Header:      gameID,
	})
	if err != nil {
		return "", err
	}
	return snapshot.Save(deps.Config.SnapshotDir, fmt.Sprintf("%s-%d", gameID, b.MoveCount()), png)
}
