// Package sessionbuilder turns configuration into the collaborators a game session needs.
package sessionbuilder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/termchess/internal/config"
	"github.com/park285/termchess/internal/engine"
	"github.com/park285/termchess/internal/lichess"
	"github.com/park285/termchess/internal/msgcat"
	"github.com/park285/termchess/internal/online"
	"github.com/park285/termchess/internal/recordcache"
	"github.com/park285/termchess/internal/snapshot"
)

type Deps struct {
	Config   *config.AppConfig
	Catalog  *msgcat.Catalog
	Renderer *snapshot.Renderer
	// Cache is nil when REDIS_URL is unset.
	Cache *recordcache.Store

	logger *zap.Logger
}

// New builds what every mode shares. The record cache is optional.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	d := &Deps{Config: cfg, Catalog: cat, Renderer: snapshot.NewRenderer(), logger: logger}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		store, err := recordcache.Open(pctx, cfg.RedisURL, cfg.RecordTTL)
		if err != nil {
			return nil, fmt.Errorf("init record cache: %w", err)
		}
		d.Cache = store
	} else {
		logger.Info("record_cache_disabled", zap.String("reason", "REDIS_URL not set"))
	}
	return d, nil
}

// Engine starts the engine process at the given AI level.
func (d *Deps) Engine(ctx context.Context, level int) (*engine.Engine, error) {
	eng, err := engine.New(ctx, engine.Config{
		BinaryPath: d.Config.StockfishPath,
		Threads:    d.Config.EngineThreads,
		HashMB:     d.Config.EngineHashMB,
		Level:      level,
	}, engine.WithLogger(d.logger.Named("engine")))
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	return eng, nil
}

// Online is the remote side of an online session.
type Online struct {
	Client    *lichess.Client
	Lifecycle *lichess.LifecycleStream
	Opener    online.StreamOpener
}

// Online builds the REST client and both event feeds on the configured transport.
func (d *Deps) Online() (*Online, error) {
	if err := d.Config.ValidateOnline(); err != nil {
		return nil, err
	}
	logger := d.logger.Named("lichess")
	client := lichess.NewClient(d.Config.LichessBaseURL, d.Config.LichessToken,
		lichess.WithTimeout(d.Config.HTTPTimeout),
		lichess.WithLogger(logger),
	)

	o := &Online{Client: client}
	switch d.Config.EventTransport {
	case config.TransportWebSocket:
		base := d.Config.EventWSURL
		o.Lifecycle = client.NewLifecycleWebSocketStream(base)
		o.Opener = func(gameID string) online.GameStream {
			return client.NewGameWebSocketStream(base, gameID)
		}
	default:
		o.Lifecycle = client.NewLifecycleStream()
		o.Opener = func(gameID string) online.GameStream {
			return client.NewGameStream(gameID)
		}
	}
	logger.Info("online_transport", zap.String("transport", d.Config.EventTransport), zap.String("base_url", d.Config.LichessBaseURL))
	return o, nil
}

func (d *Deps) Close() error {
	if d == nil || d.Cache == nil {
		return nil
	}
	return d.Cache.Close()
}
