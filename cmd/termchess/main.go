package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/termchess/internal/config"
	"github.com/park285/termchess/internal/domain"
	"github.com/park285/termchess/internal/game"
	"github.com/park285/termchess/internal/obslog"
	"github.com/park285/termchess/internal/sessionbuilder"
)

const usage = `usage: termchess [flags] <mode> [args]

modes:
  offline           play the local engine
  online            challenge the server AI and play it
  status [gameID]   show a cached record, or the recently cached game ids
  export <gameID>   write a PNG of a cached game's position

flags:
`

func main() {
	fs := flag.NewFlagSet("termchess", flag.ExitOnError)
	level := fs.Int("level", 1, "engine level 1-8")
	color := fs.String("color", "random", "white, black or random")
	minutes := fs.Int("minutes", 10, "online clock minutes (0 for unlimited)")
	increment := fs.Int("increment", 0, "online clock increment seconds")
	variant := fs.String("variant", "standard", "variant key")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L().With(zap.String("session_id", uuid.NewString()))
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := sessionbuilder.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("init error: %v", err)
	}
	defer deps.Close()

	v, err := domain.ParseVariant(*variant)
	if err != nil {
		log.Fatalf("%v", err)
	}
	sel := game.Selection{
		Variant:          v,
		Color:            domain.ParseColorChoice(*color),
		AILevel:          *level,
		Minutes:          *minutes,
		IncrementSeconds: *increment,
	}

	mode, args := fs.Arg(0), fs.Args()[1:]
	logger.Info("termchess_start", zap.String("mode", mode))
	switch mode {
	case "offline":
		err = runOffline(ctx, deps, sel, logger)
	case "online":
		err = runOnline(ctx, deps, sel, logger)
	case "status":
		err = runStatus(ctx, deps, args)
	case "export":
		err = runExport(ctx, deps, args)
	default:
		fs.Usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("termchess_failed", zap.String("mode", mode), zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
