package lichess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type scriptedConn struct {
	frames [][]byte
	// hold keeps the connection open after the frames until Close.
	hold bool
}

type fakeTransport struct {
	mu    sync.Mutex
	conns []scriptedConn
	calls int
}

func (f *fakeTransport) Connect(ctx context.Context) (FrameReader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.conns) == 0 {
		return nil, errors.New("no more connections")
	}
	c := f.conns[0]
	f.conns = f.conns[1:]
	return &fakeFrames{frames: c.frames, hold: c.hold, closed: make(chan struct{})}, nil
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFrames struct {
	frames [][]byte
	hold   bool
	once   sync.Once
	closed chan struct{}
}

func (f *fakeFrames) ReadFrame(ctx context.Context) ([]byte, error) {
	if len(f.frames) > 0 {
		fr := f.frames[0]
		f.frames = f.frames[1:]
		return fr, nil
	}
	if !f.hold {
		return nil, io.EOF
	}
	<-f.closed
	return nil, errors.New("use of closed connection")
}

func (f *fakeFrames) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func frames(lines ...string) [][]byte {
	out := make([][]byte, len(lines))
	for i, l := range lines {
		out[i] = []byte(l)
	}
	return out
}

func TestStreamDeliversInOrderAndSkipsBadFrames(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tr := &fakeTransport{conns: []scriptedConn{{frames: frames(
		`{"type":"gameState","moves":"e2e4","wtime":1,"btime":1,"status":"started"}`,
		`{"type":"somethingNew"}`,
		`{broken`,
		`{"type":"chatLine","username":"bob","text":"hi","room":"player"}`,
		`{"type":"gameState","moves":"e2e4 e7e5","wtime":1,"btime":1,"status":"started"}`,
	)}}}
	s := NewStream[GameEvent]("game:x", tr, DecodeGameEvent, ReconnectPolicy{}, WithStreamLogger(zap.New(core)))

	var got []string
	s.Subscribe(func(ev GameEvent) error {
		got = append(got, ev.EventType())
		return nil
	})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"gameState", "chatLine", "gameState"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if logs.FilterMessage("stream_event_skipped").Len() != 1 {
		t.Fatalf("unknown event should be logged once")
	}
	if logs.FilterMessage("stream_event_malformed").Len() != 1 {
		t.Fatalf("malformed event should be logged once")
	}
}

func TestStreamHandlerErrorDoesNotStopReading(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tr := &fakeTransport{conns: []scriptedConn{{frames: frames(
		`{"type":"opponentGone","gone":true,"claimWinInSeconds":30}`,
		`{"type":"opponentGone","gone":false}`,
	)}}}
	s := NewStream[GameEvent]("game:x", tr, DecodeGameEvent, ReconnectPolicy{}, WithStreamLogger(zap.New(core)))

	calls := 0
	s.Subscribe(func(GameEvent) error {
		calls++
		return errors.New("boom")
	})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
	if logs.FilterMessage("stream_handler_failed").Len() != 2 {
		t.Fatalf("handler failures should be logged")
	}
}

func TestStreamIsNotRestartable(t *testing.T) {
	tr := &fakeTransport{conns: []scriptedConn{{hold: true}}}
	s := NewStream[GameEvent]("game:x", tr, DecodeGameEvent, ReconnectPolicy{}, WithStreamLogger(zap.NewNop()))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not stop after Close")
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("Start after Close = %v, want ErrStreamClosed", err)
	}
}

func TestLifecycleStreamReconnectsAfterEOF(t *testing.T) {
	tr := &fakeTransport{conns: []scriptedConn{
		{frames: frames(`{"type":"gameStart","game":{"gameId":"g1","compat":{"board":true}}}`)},
		{frames: frames(`{"type":"gameFinish","game":{"gameId":"g1"}}`), hold: true},
	}}
	s := NewStream[LifecycleEvent]("lifecycle", tr, DecodeLifecycleEvent,
		ReconnectPolicy{OnEOF: true, MaxAttempts: 3}, WithStreamLogger(zap.NewNop()))

	got := make(chan string, 4)
	s.Subscribe(func(ev LifecycleEvent) error {
		got <- ev.EventType()
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, want := range []string{"gameStart", "gameFinish"} {
		select {
		case ev := <-got:
			if ev != want {
				t.Fatalf("got %s, want %s", ev, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
	if tr.Calls() != 2 {
		t.Fatalf("connect calls = %d, want 2", tr.Calls())
	}
	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not stop on cancel")
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err after cancel = %v", err)
	}
}

func TestStreamGivesUpAfterConnectFailures(t *testing.T) {
	tr := &fakeTransport{}
	s := NewStream[LifecycleEvent]("lifecycle", tr, DecodeLifecycleEvent, ReconnectPolicy{}, WithStreamLogger(zap.NewNop()))
	if err := s.Run(context.Background()); err == nil {
		t.Fatalf("expected connect error")
	}
}

func TestNDJSONGameStreamOverHTTP(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/x-ndjson")
		fl, _ := w.(http.Flusher)
		for _, line := range []string{
			`{"type":"gameFull","id":"g1","variant":{"key":"standard"},"white":{"id":"me"},"black":{"aiLevel":2},"initialFen":"startpos","state":{"type":"gameState","moves":"","wtime":600000,"btime":600000,"status":"started"}}`,
			``,
			`{"type":"gameState","moves":"e2e4","wtime":599000,"btime":600000,"status":"started"}`,
		} {
			_, _ = w.Write([]byte(line + "\n"))
			if fl != nil {
				fl.Flush()
			}
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", WithLogger(zap.NewNop()))
	s := c.NewGameStream("g1")
	var got []string
	s.Subscribe(func(ev GameEvent) error {
		got = append(got, ev.EventType())
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fmt.Sprint(got) != "[gameFull gameState]" {
		t.Fatalf("got %v", got)
	}
	if gotPath != "/api/board/game/stream/g1" || gotAuth != "Bearer tok" {
		t.Fatalf("path=%q auth=%q", gotPath, gotAuth)
	}
}
