package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/park285/termchess/internal/board"
	"github.com/park285/termchess/internal/console"
	"github.com/park285/termchess/internal/recordcache"
	"github.com/park285/termchess/internal/sessionbuilder"
)

var errNoCache = errors.New("record cache disabled: set REDIS_URL")

const recentLimit = 10

func runStatus(ctx context.Context, deps *sessionbuilder.Deps, args []string) error {
	if deps.Cache == nil {
		return errNoCache
	}
	pres := console.NewPresenter(os.Stdout, deps.Catalog)
	if len(args) == 0 {
		ids, err := deps.Cache.Recent(ctx, recentLimit)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			pres.Say("status.none", nil)
			return nil
		}
		pres.Say("status.recent", map[string]any{"IDs": strings.Join(ids, ", ")})
		return nil
	}

	entry, b, err := loadCached(ctx, deps.Cache, args[0])
	if err != nil {
		return err
	}
	if entry == nil {
		pres.Say("status.missing", map[string]any{"GameID": args[0]})
		return nil
	}
	pres.Say("status.entry", map[string]any{"GameID": entry.Record.GameID, "Updated": entry.UpdatedAt.Format(time.RFC3339)})
	pres.Record(entry.Record, b)
	if f := entry.Record.Finished; f != nil {
		pres.Finish(f)
	}
	return nil
}

func runExport(ctx context.Context, deps *sessionbuilder.Deps, args []string) error {
	if len(args) == 0 {
		return errors.New("export needs a game id")
	}
	if deps.Cache == nil {
		return errNoCache
	}
	pres := console.NewPresenter(os.Stdout, deps.Catalog)
	entry, b, err := loadCached(ctx, deps.Cache, args[0])
	if err != nil {
		return err
	}
	if entry == nil {
		pres.Say("status.missing", map[string]any{"GameID": args[0]})
		return nil
	}
	path, err := exportBoard(ctx, deps, b, entry.Record.MyColor, entry.Record.GameID)
	if err != nil {
		return err
	}
	pres.Say("export.done", map[string]any{"Path": path})
	return nil
}

// loadCached rebuilds the board of a cached record from its initial position and moves.
func loadCached(ctx context.Context, store *recordcache.Store, gameID string) (*recordcache.Entry, *board.Board, error) {
	entry, err := store.Load(ctx, gameID)
	if err != nil || entry == nil {
		return nil, nil, err
	}
	rec := entry.Record
	b := board.New()
	if err := b.Reinitialize(rec.Variant, rec.MyColor, rec.InitialFEN); err != nil {
		return nil, nil, err
	}
	if err := b.ApplyMoves(entry.Moves); err != nil {
		return nil, nil, err
	}
	return entry, b, nil
}
