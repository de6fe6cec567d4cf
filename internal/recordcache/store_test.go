package recordcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/termchess/internal/domain"
	"github.com/park285/termchess/internal/game"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	s, err := Open(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()), time.Hour)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func record(id string) game.Metadata {
	m := game.New()
	m.GameID = id
	m.MyColor = domain.Black
	m.Status = "started"
	m.Clock.White.Time = 595 * time.Second
	m.Chat = []game.ChatLine{{Room: "player", Username: "lichess", Text: "Good luck"}}
	return m
}

func TestSaveLoad(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	e := Entry{Record: record("g1"), FEN: "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1", Moves: []string{"e2e4"}}
	if err := s.Save(ctx, e); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL("termchess:record:g1"); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
	got, err := s.Load(ctx, "g1")
	if err != nil || got == nil {
		t.Fatalf("Load: %v %v", got, err)
	}
	if got.Record.MyColor != domain.Black || got.Record.Clock.White.Time != 595*time.Second || len(got.Record.Chat) != 1 {
		t.Fatalf("record = %+v", got.Record)
	}
	if len(got.Moves) != 1 || got.FEN != e.FEN || got.UpdatedAt.IsZero() {
		t.Fatalf("entry = %+v", got)
	}
}

func TestLoadMissing(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.Load(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestSaveWithoutGameID(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Save(context.Background(), Entry{Record: game.New()}); err != ErrNoGameID {
		t.Fatalf("err = %v", err)
	}
}

func TestRecentNewestFirstAndPruned(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, Entry{Record: record(id), UpdatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	mr.Del("termchess:record:b")
	ids, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if fmt.Sprint(ids) != "[c a]" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestOpenRejectsScheme(t *testing.T) {
	if _, err := Open(context.Background(), "http://localhost:6379", 0); err == nil {
		t.Fatalf("expected scheme error")
	}
}

type staticBoard struct{}

func (staticBoard) FEN() string     { return "fen" }
func (staticBoard) Moves() []string { return []string{"e2e4"} }

func TestWriterKeepsNewestAndFlushesOnStop(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	s := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	w := NewWriter(s, staticBoard{}, zap.NewNop())

	first := record("g1")
	second := record("g1")
	second.Status = "mate"
	w.Observe(game.New())
	w.Observe(first)
	w.Observe(second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := s.Load(context.Background(), "g1")
	if err != nil || got == nil {
		t.Fatalf("Load: %v %v", got, err)
	}
	if got.Record.Status != "mate" || got.FEN != "fen" {
		t.Fatalf("entry = %+v", got)
	}
}
