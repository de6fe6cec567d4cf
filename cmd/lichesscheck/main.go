package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/park285/termchess/internal/config"
	"github.com/park285/termchess/internal/lichess"
	"github.com/park285/termchess/internal/obslog"
	"github.com/park285/termchess/internal/sessionbuilder"
)

const watchWindow = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	deps, err := sessionbuilder.New(context.Background(), cfg, obslog.L())
	if err != nil {
		log.Fatalf("init error: %v", err)
	}
	defer deps.Close()

	remote, err := deps.Online()
	if err != nil {
		log.Fatalf("online config error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	acc, err := remote.Client.Account(ctx)
	cancel()
	if err != nil {
		log.Printf("/api/account error: %v", err)
		return
	}
	log.Printf("/api/account ok: id=%s username=%s", acc.ID, acc.Username)

	remote.Lifecycle.Subscribe(func(ev lichess.LifecycleEvent) error {
		switch ev := ev.(type) {
		case *lichess.GameStart:
			fmt.Printf("gameStart id=%s color=%s board=%v\n", ev.Game.GameID, ev.Game.Color, ev.Game.Compat.Board)
		case *lichess.GameFinish:
			fmt.Printf("gameFinish id=%s status=%s winner=%s\n", ev.Game.GameID, ev.Game.Status.Name, ev.Game.Winner)
		}
		return nil
	})

	// Observe for a short window
	wctx, wcancel := context.WithTimeout(context.Background(), watchWindow)
	defer wcancel()
	log.Printf("watching %s lifecycle stream for %s", cfg.EventTransport, watchWindow)
	if err := remote.Lifecycle.Run(wctx); err != nil {
		log.Printf("lifecycle stream error: %v", err)
	}
}
