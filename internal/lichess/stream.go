package lichess

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/termchess/internal/event"
	"github.com/park285/termchess/internal/obslog"
)

var (
	ErrAlreadyStarted = errors.New("stream already started")
	ErrStreamClosed   = errors.New("stream closed")
)

// FrameReader yields one encoded event per call.
type FrameReader interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// Transport opens a connection that delivers frames.
type Transport interface {
	Connect(ctx context.Context) (FrameReader, error)
}

// Decoder turns one frame into a typed event.
type Decoder[T any] func([]byte) (T, error)

// ReconnectPolicy controls what happens after a connection ends.
type ReconnectPolicy struct {
	// OnEOF reconnects after a clean end of stream as well as after errors.
	OnEOF bool
	// MaxAttempts bounds consecutive failed connects; 0 means no reconnects.
	MaxAttempts int
}

// Stream reads typed events from a transport and hands them to subscribers in arrival order.
// Handlers run on the reading goroutine; a handler error is logged and reading continues.
type Stream[T any] struct {
	name      string
	transport Transport
	decode    Decoder[T]
	policy    ReconnectPolicy
	logger    *zap.Logger

	feed event.Feed[T]

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

type StreamOption func(*streamOptions)

type streamOptions struct {
	logger *zap.Logger
	policy *ReconnectPolicy
}

func WithStreamLogger(l *zap.Logger) StreamOption {
	return func(o *streamOptions) { o.logger = l }
}

func WithReconnect(p ReconnectPolicy) StreamOption {
	return func(o *streamOptions) { o.policy = &p }
}

func NewStream[T any](name string, t Transport, decode Decoder[T], policy ReconnectPolicy, opts ...StreamOption) *Stream[T] {
	o := streamOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.policy != nil {
		policy = *o.policy
	}
	logger := o.logger
	if logger == nil {
		logger = obslog.L()
	}
	return &Stream[T]{
		name:      name,
		transport: t,
		decode:    decode,
		policy:    policy,
		logger:    logger.With(zap.String("stream", name)),
		done:      make(chan struct{}),
	}
}

func (s *Stream[T]) Subscribe(h func(T) error) int { return s.feed.Subscribe(h) }

func (s *Stream[T]) Unsubscribe(id int) { s.feed.Unsubscribe(id) }

// Start runs the stream in the background. It can be called once.
func (s *Stream[T]) Start(ctx context.Context) error {
	runCtx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	go s.run(runCtx)
	return nil
}

// Run is Start without the goroutine; it returns when the stream ends.
func (s *Stream[T]) Run(ctx context.Context) error {
	runCtx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	s.run(runCtx)
	return s.Err()
}

func (s *Stream[T]) begin(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.started {
		return nil, ErrAlreadyStarted
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return runCtx, nil
}

// Done is closed when the stream has stopped reading.
func (s *Stream[T]) Done() <-chan struct{} { return s.done }

// Err is the terminal error after Done; nil for a clean end or Close.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops reading and waits for the reader to return. Events not yet delivered are dropped.
func (s *Stream[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	if started {
		<-s.done
	}
	return nil
}

func (s *Stream[T]) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream[T]) run(ctx context.Context) {
	defer close(s.done)
	err := s.loop(ctx)
	if ctx.Err() != nil || s.isClosed() {
		err = nil
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("stream_stopped", zap.Error(err))
	} else {
		s.logger.Debug("stream_stopped")
	}
}

func (s *Stream[T]) loop(ctx context.Context) error {
	failures := 0
	for {
		fr, err := s.transport.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if failures > s.policy.MaxAttempts {
				return fmt.Errorf("connect %s: %w", s.name, err)
			}
			s.logger.Warn("stream_connect_failed", zap.Int("attempt", failures), zap.Error(err))
			if sleepWithContext(ctx, reconnectDelay(failures)) != nil {
				return nil
			}
			continue
		}
		failures = 0
		s.logger.Debug("stream_connected")

		err = s.pump(ctx, fr)
		_ = fr.Close()
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			if !s.policy.OnEOF {
				return nil
			}
		} else if s.policy.MaxAttempts == 0 {
			return err
		}
		s.logger.Info("stream_reconnecting", zap.Error(err))
		if sleepWithContext(ctx, reconnectDelay(1)) != nil {
			return nil
		}
	}
}

func (s *Stream[T]) pump(ctx context.Context, fr FrameReader) error {
	stop := context.AfterFunc(ctx, func() { _ = fr.Close() })
	defer stop()
	for {
		frame, err := fr.ReadFrame(ctx)
		if err != nil {
			return err
		}
		ev, err := s.decode(frame)
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				s.logger.Debug("stream_event_skipped", zap.Error(err))
			} else {
				s.logger.Warn("stream_event_malformed", zap.Error(err), zap.ByteString("frame", truncateBytes(frame, 256)))
			}
			continue
		}
		if err := s.feed.Publish(ev); err != nil {
			s.logger.Warn("stream_handler_failed", zap.Error(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func reconnectDelay(attempt int) time.Duration {
	d := backoffDuration(attempt) * 5
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// NDJSON reads newline-delimited JSON from a body opened per connection.
type NDJSON struct {
	Open func(ctx context.Context) (io.ReadCloser, error)
}

func (n NDJSON) Connect(ctx context.Context) (FrameReader, error) {
	body, err := n.Open(ctx)
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &ndjsonReader{body: body, sc: sc}, nil
}

type ndjsonReader struct {
	body io.ReadCloser
	sc   *bufio.Scanner
}

// ReadFrame skips the blank keep-alive lines the server sends between events.
func (r *ndjsonReader) ReadFrame(ctx context.Context) ([]byte, error) {
	for r.sc.Scan() {
		line := r.sc.Bytes()
		if len(trimSpace(line)) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := r.sc.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return nil, io.EOF
}

func (r *ndjsonReader) Close() error { return r.body.Close() }

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && (b[start] == ' ' || b[start] == '\t' || b[start] == '\r') {
		start++
	}
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t' || b[end-1] == '\r') {
		end--
	}
	return b[start:end]
}

// LifecycleStream is the account-wide game start/finish feed.
type LifecycleStream = Stream[LifecycleEvent]

// GameStream is the per-game board feed.
type GameStream = Stream[GameEvent]

// NewLifecycleStream reads /api/stream/event and reconnects until ctx ends.
func (c *Client) NewLifecycleStream(opts ...StreamOption) *LifecycleStream {
	t := NDJSON{Open: func(ctx context.Context) (io.ReadCloser, error) { return c.OpenStream(ctx, EventStreamPath) }}
	return NewStream[LifecycleEvent]("lifecycle", t, DecodeLifecycleEvent,
		ReconnectPolicy{OnEOF: true, MaxAttempts: 10},
		append([]StreamOption{WithStreamLogger(c.logger)}, opts...)...)
}

// NewGameStream reads the board feed of one game. It ends when the server closes it after the game.
func (c *Client) NewGameStream(gameID string, opts ...StreamOption) *GameStream {
	t := NDJSON{Open: func(ctx context.Context) (io.ReadCloser, error) { return c.OpenStream(ctx, GameStreamPath(gameID)) }}
	return NewStream[GameEvent]("game:"+gameID, t, DecodeGameEvent,
		ReconnectPolicy{MaxAttempts: 3},
		append([]StreamOption{WithStreamLogger(c.logger)}, opts...)...)
}
