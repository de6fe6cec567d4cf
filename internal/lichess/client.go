// Package lichess talks to the remote game server: REST calls and the two event feeds.
package lichess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/termchess/internal/obslog"
)

const DefaultBaseURL = "https://lichess.org"

// HeaderProvider allows injecting per-request headers.
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	token   string
	http    *fasthttp.Client
	stream  *fasthttp.Client
	headers HeaderProvider
	logger  *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          strings.TrimSpace(token),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		stream:         &fasthttp.Client{WriteTimeout: 10 * time.Second, StreamResponseBody: true, MaxConnsPerHost: 8},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
		logger:         obslog.L(),
	}
	for _, opt := range opts {
		opt(c)
	}
	obslog.RedactSecret(c.token)
	return c
}

func (c *Client) Account(ctx context.Context) (*Account, error) {
	var acc Account
	if err := c.do(ctx, fasthttp.MethodGet, "/api/account", nil, &acc, true); err != nil {
		return nil, err
	}
	return &acc, nil
}

// AIChallenge parameters. A zero ClockLimit creates an unlimited game.
type AIChallenge struct {
	Level          int
	ClockLimit     time.Duration
	ClockIncrement time.Duration
	// Color is "white", "black" or "random".
	Color   string
	Variant string
	FEN     string
}

// ChallengeGame is the game created by an AI challenge.
type ChallengeGame struct {
	ID      string  `json:"id"`
	Rated   bool    `json:"rated"`
	Variant Variant `json:"variant"`
	Speed   string  `json:"speed"`
}

func (c *Client) CreateAIChallenge(ctx context.Context, ch AIChallenge) (*ChallengeGame, error) {
	if ch.Level < 1 || ch.Level > 8 {
		return nil, fmt.Errorf("ai level %d out of range 1-8", ch.Level)
	}
	form := url.Values{}
	form.Set("level", strconv.Itoa(ch.Level))
	if ch.ClockLimit > 0 {
		form.Set("clock.limit", strconv.Itoa(int(ch.ClockLimit/time.Second)))
		form.Set("clock.increment", strconv.Itoa(int(ch.ClockIncrement/time.Second)))
	}
	if ch.Color != "" {
		form.Set("color", ch.Color)
	}
	if ch.Variant != "" {
		form.Set("variant", ch.Variant)
	}
	if ch.FEN != "" {
		form.Set("fen", ch.FEN)
	}
	var out ChallengeGame
	if err := c.do(ctx, fasthttp.MethodPost, "/api/challenge/ai", form, &out, false); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("challenge response without game id")
	}
	c.logger.Info("lichess_ai_challenge_created",
		zap.String("game_id", out.ID),
		zap.Int("level", ch.Level),
		zap.String("color", ch.Color),
	)
	return &out, nil
}

func (c *Client) MakeMove(ctx context.Context, gameID, move string) error {
	path := fmt.Sprintf("/api/board/game/%s/move/%s", url.PathEscape(gameID), url.PathEscape(move))
	return c.do(ctx, fasthttp.MethodPost, path, nil, nil, false)
}

func (c *Client) Resign(ctx context.Context, gameID string) error {
	return c.do(ctx, fasthttp.MethodPost, "/api/board/game/"+url.PathEscape(gameID)+"/resign", nil, nil, false)
}

func (c *Client) Abort(ctx context.Context, gameID string) error {
	return c.do(ctx, fasthttp.MethodPost, "/api/board/game/"+url.PathEscape(gameID)+"/abort", nil, nil, false)
}

func (c *Client) WriteChat(ctx context.Context, gameID, room, text string) error {
	form := url.Values{}
	form.Set("room", room)
	form.Set("text", text)
	return c.do(ctx, fasthttp.MethodPost, "/api/board/game/"+url.PathEscape(gameID)+"/chat", form, nil, false)
}

func (c *Client) applyHeaders(req *fasthttp.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
}

// AuthHeader returns the headers a websocket relay handshake needs.
func (c *Client) AuthHeader() map[string]string {
	if c.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.token}
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/json")
	c.applyHeaders(req)
	if form != nil {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBodyString(form.Encode())
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request %s %s failed: %w", method, path, err)
			}
			lastErr = err
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			apiErr := &APIError{Status: status, Message: errorMessage(resp.Body())}
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return apiErr
			}
			lastErr = apiErr
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

// OpenStream issues a long-lived GET and returns its body. Closing the body ends the request.
func (c *Client) OpenStream(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	// the response is not pooled: a reader may still hold its body stream after Close
	resp := &fasthttp.Response{}
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/x-ndjson")
	c.applyHeaders(req)

	// no deadline: it would also bound reads of the open-ended body
	if err := c.stream.Do(req, resp); err != nil {
		return nil, fmt.Errorf("open stream %s: %w", path, err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		body, _ := io.ReadAll(io.LimitReader(bodyReader(resp), 4096))
		_ = resp.CloseBodyStream()
		return nil, &APIError{Status: status, Message: errorMessage(body)}
	}
	return &streamBody{resp: resp, r: bodyReader(resp)}, nil
}

type streamBody struct {
	resp   *fasthttp.Response
	r      io.Reader
	closed atomic.Bool
}

func (b *streamBody) Read(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	return b.r.Read(p)
}

// Close may be called while a Read is blocked; closing the connection unblocks it.
func (b *streamBody) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.resp.CloseBodyStream()
}

// bodyReader falls back to the buffered body when fasthttp did not stream it.
func bodyReader(resp *fasthttp.Response) io.Reader {
	if r := resp.BodyStream(); r != nil {
		return r
	}
	return bytes.NewReader(resp.Body())
}

// EventStreamPath is the account-wide lifecycle feed.
const EventStreamPath = "/api/stream/event"

// GameStreamPath is the per-game board feed.
func GameStreamPath(gameID string) string {
	return "/api/board/game/stream/" + url.PathEscape(gameID)
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return truncate(strings.TrimSpace(string(body)), 512)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
