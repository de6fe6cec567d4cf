package lichess

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// WebSocket relays the same JSON events as the NDJSON feeds, one object per message.
type WebSocket struct {
	URL     string
	Headers HeaderProvider

	DialTimeout  time.Duration
	PingInterval time.Duration
}

func NewWebSocket(url string, headers HeaderProvider) *WebSocket {
	return &WebSocket{
		URL:          url,
		Headers:      headers,
		DialTimeout:  10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

func (w *WebSocket) Connect(ctx context.Context) (FrameReader, error) {
	dialCtx, cancel := context.WithTimeout(ctx, w.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, w.URL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      w.buildHeaders(),
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(4 * 1024 * 1024)

	r := &wsReader{conn: conn, stop: make(chan struct{})}
	if w.PingInterval > 0 {
		r.wg.Add(1)
		go r.pingLoop(w.PingInterval)
	}
	return r, nil
}

func (w *WebSocket) buildHeaders() http.Header {
	h := http.Header{}
	if w.Headers == nil {
		return h
	}
	for k, v := range w.Headers() {
		if k == "" || v == "" {
			continue
		}
		h.Set(k, v)
	}
	return h
}

type wsReader struct {
	conn     *websocket.Conn
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func (r *wsReader) ReadFrame(ctx context.Context) ([]byte, error) {
	var msg json.RawMessage
	if err := wsjson.Read(ctx, r.conn, &msg); err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil, io.EOF
		}
		return nil, err
	}
	return msg, nil
}

func (r *wsReader) pingLoop(every time.Duration) {
	defer r.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-r.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := r.conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				_ = r.conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// Close errors are not reported: the peer may already have closed or the reader may have failed.
func (r *wsReader) Close() error {
	r.stopOnce.Do(func() {
		close(r.stop)
		_ = r.conn.Close(websocket.StatusNormalClosure, "")
	})
	r.wg.Wait()
	return nil
}

// NewLifecycleWebSocketStream reads lifecycle events from {base}/event.
func (c *Client) NewLifecycleWebSocketStream(base string, opts ...StreamOption) *LifecycleStream {
	t := NewWebSocket(strings.TrimRight(base, "/")+"/event", c.AuthHeader)
	return NewStream[LifecycleEvent]("lifecycle", t, DecodeLifecycleEvent,
		ReconnectPolicy{OnEOF: true, MaxAttempts: 10},
		append([]StreamOption{WithStreamLogger(c.logger)}, opts...)...)
}

// NewGameWebSocketStream reads one game's events from {base}/game/{id}.
func (c *Client) NewGameWebSocketStream(base, gameID string, opts ...StreamOption) *GameStream {
	t := NewWebSocket(strings.TrimRight(base, "/")+"/game/"+gameID, c.AuthHeader)
	return NewStream[GameEvent]("game:"+gameID, t, DecodeGameEvent,
		ReconnectPolicy{MaxAttempts: 3},
		append([]StreamOption{WithStreamLogger(c.logger)}, opts...)...)
}
