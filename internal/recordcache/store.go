// Package recordcache keeps the last known record of each game in Redis.
package recordcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/termchess/internal/game"
)

const (
	DefaultTTL = 24 * time.Hour
	keyPrefix  = "termchess:record:"
	keyRecent  = "termchess:recent"
)

var ErrNoGameID = errors.New("record has no game id")

// Entry is one cached record together with the board it described.
type Entry struct {
	Record    game.Metadata `json:"record"`
	FEN       string        `json:"fen,omitempty"`
	Moves     []string      `json:"moves,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Open connects to REDIS_URL and checks the connection.
func Open(ctx context.Context, redisURL string, ttl time.Duration) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for record cache")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, ttl), nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) key(gameID string) string { return keyPrefix + strings.TrimSpace(gameID) }

func (s *Store) Save(ctx context.Context, e Entry) error {
	id := strings.TrimSpace(e.Record.GameID)
	if id == "" {
		return ErrNoGameID
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", id, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.key(id), raw, s.ttl)
	pipe.ZAdd(ctx, keyRecent, redis.Z{Score: float64(e.UpdatedAt.UnixMilli()), Member: id})
	pipe.Expire(ctx, keyRecent, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save record %s: %w", id, err)
	}
	return nil
}

// Load returns nil without error when the game is not cached.
func (s *Store) Load(ctx context.Context, gameID string) (*Entry, error) {
	raw, err := s.rdb.Get(ctx, s.key(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", gameID, err)
	}
	return &e, nil
}

// Recent lists cached game ids, newest first. Expired records are pruned from the index.
func (s *Store) Recent(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	ids, err := s.rdb.ZRevRange(ctx, keyRecent, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		n, err := s.rdb.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			_ = s.rdb.ZRem(ctx, keyRecent, id).Err()
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
