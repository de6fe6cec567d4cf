package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/termchess/internal/obslog"
)

const (
	handshakeTimeout = 4 * time.Second
	readyAttempts    = 3
	readyRetryDelay  = 150 * time.Millisecond
)

// ErrClosed is returned once the engine process has exited or Close was called.
var ErrClosed = errors.New("uci session closed")

type Options struct {
	Threads    int
	SkillLevel int
	HashMB     int
	MultiPV    int
	// Elo enables UCI_LimitStrength when > 0.
	Elo int
}

// normalize validates o and fills the defaults for zero values.
func (o *Options) normalize() error {
	switch {
	case o.SkillLevel < 0 || o.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", o.SkillLevel)
	case o.HashMB < 0:
		return fmt.Errorf("hash size must be >= 0: %d", o.HashMB)
	case o.MultiPV < 0:
		return fmt.Errorf("multipv must be >= 0: %d", o.MultiPV)
	case o.Elo < 0:
		return fmt.Errorf("elo must be >= 0: %d", o.Elo)
	}
	if o.Threads <= 0 {
		o.Threads = 1
	}
	if o.HashMB == 0 {
		o.HashMB = 16
	}
	if o.MultiPV == 0 {
		o.MultiPV = 1
	}
	return nil
}

// settings lists the setoption pairs in the order they are sent.
func (o Options) settings() [][2]string {
	out := [][2]string{
		{"Threads", strconv.Itoa(o.Threads)},
		{"Hash", strconv.Itoa(o.HashMB)},
		{"Skill Level", strconv.Itoa(o.SkillLevel)},
		{"MultiPV", strconv.Itoa(o.MultiPV)},
		{"Move Overhead", "100"},
	}
	if o.Elo > 0 {
		out = append(out, [2]string{"UCI_LimitStrength", "true"}, [2]string{"UCI_Elo", strconv.Itoa(o.Elo)})
	}
	return out
}

type line struct {
	text string
	err  error
}

// Session drives one engine process over stdin/stdout. Searches are serialized.
type Session struct {
	proc   *exec.Cmd
	stdin  io.WriteCloser
	lines  chan line
	done   chan struct{}
	logger *zap.Logger

	writeMu  sync.Mutex
	searchMu sync.Mutex
	closed   bool
}

// NewSession starts binaryPath and completes the uci/isready handshake.
func NewSession(ctx context.Context, binaryPath string, opt Options, logger *zap.Logger) (*Session, error) {
	if err := opt.normalize(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = obslog.L()
	}

	proc := exec.CommandContext(ctx, binaryPath)
	stdin, err := proc.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := proc.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := proc.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		proc:   proc,
		stdin:  stdin,
		lines:  make(chan line, 64),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("engine", binaryPath)),
	}
	go s.pump(bufio.NewReader(stdout))

	if err := s.handshake(ctx, opt); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// pump is the only reader of stdout, so a timed-out wait never loses a line.
func (s *Session) pump(r *bufio.Reader) {
	defer close(s.lines)
	for {
		text, err := r.ReadString('\n')
		if text != "" && !s.deliver(line{text: strings.TrimSpace(text)}) {
			return
		}
		if err != nil {
			s.deliver(line{err: err})
			return
		}
	}
}

func (s *Session) deliver(l line) bool {
	select {
	case s.lines <- l:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) handshake(ctx context.Context, opt Options) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	if err := s.exchange(ctx, "uci", "uciok"); err != nil {
		return err
	}
	for _, kv := range opt.settings() {
		if err := s.setOption(kv[0], kv[1]); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return s.exchange(ctx, "isready", "readyok")
}

func (s *Session) setOption(name, value string) error {
	return s.send("setoption name " + name + " value " + value)
}

// SetSkill changes the skill level between searches.
func (s *Session) SetSkill(level int) error {
	if level < 0 || level > 20 {
		return fmt.Errorf("skill level %d out of range 0-20", level)
	}
	return s.setOption("Skill Level", strconv.Itoa(level))
}

type SearchRequest struct {
	FEN    string
	Moves  []string
	Limits Limits
}

type SearchResponse struct {
	Candidates []Candidate
	BestMove   string
	Ponder     string
}

// Search sets the position and waits for bestmove. On timeout or cancellation the
// search is stopped and its late reply drained.
func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	goCmd, err := req.Limits.goCommand()
	if err != nil {
		return SearchResponse{}, err
	}
	position := positionCommand(req.FEN, req.Moves)
	if err := s.send(position); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}
	if err := s.send(goCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, req.Limits.timeout())
	defer cancel()

	byRank := make(map[int]Candidate)
	for {
		text, err := s.next(ctx)
		if err != nil {
			s.logger.Warn("uci_search_read_error",
				zap.String("position", position),
				zap.String("go", goCmd),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				s.stopSearch()
			}
			return SearchResponse{}, fmt.Errorf("read line: %w", err)
		}
		if strings.HasPrefix(text, "bestmove") {
			best, ponder := parseBestMove(text)
			return SearchResponse{Candidates: ranked(byRank), BestMove: best, Ponder: ponder}, nil
		}
		if in, ok := parseInfo(text); ok {
			byRank[in.rank] = in.cand
		}
	}
}

func (s *Session) stopSearch() {
	if err := s.send("stop"); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.waitFor(ctx, "bestmove"); err != nil {
		s.logger.Debug("uci_stop_unacknowledged", zap.Error(err))
	}
}

// NewGame sends ucinewgame and waits for the engine to settle, retrying isready.
func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	var err error
	for attempt := 1; attempt <= readyAttempts; attempt++ {
		if err = s.ready(ctx); err == nil {
			return nil
		}
		s.logger.Debug("uci_ready_retry", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == readyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyRetryDelay):
		}
	}
	return err
}

func (s *Session) ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	return s.exchange(ctx, "isready", "readyok")
}

// exchange sends cmd and waits for a line containing reply.
func (s *Session) exchange(ctx context.Context, cmd, reply string) error {
	if err := s.send(cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	if err := s.waitFor(ctx, reply); err != nil {
		return fmt.Errorf("wait %s: %w", reply, err)
	}
	return nil
}

// Close asks the engine to quit, kills it and reaps the process.
func (s *Session) Close() error {
	s.writeMu.Lock()
	if s.closed {
		s.writeMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	_, _ = io.WriteString(s.stdin, "quit\n")
	_ = s.stdin.Close()
	if s.proc.Process != nil {
		_ = s.proc.Process.Kill()
	}
	s.writeMu.Unlock()

	err := s.proc.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func (s *Session) send(cmd string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := io.WriteString(s.stdin, cmd+"\n")
	return err
}

func (s *Session) waitFor(ctx context.Context, token string) error {
	for {
		text, err := s.next(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(text, token) {
			return nil
		}
	}
}

func (s *Session) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-s.lines:
		switch {
		case !ok:
			return "", ErrClosed
		case errors.Is(l.err, io.EOF):
			return "", fmt.Errorf("%w: engine exited", ErrClosed)
		case l.err != nil:
			return "", l.err
		}
		return l.text, nil
	}
}
