package lichess

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCreateAIChallengeSendsForm(t *testing.T) {
	var gotAuth, gotPath string
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"aiGame01","rated":false,"variant":{"key":"standard","name":"Standard"},"speed":"blitz"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "lip_secret_token")
	g, err := c.CreateAIChallenge(context.Background(), AIChallenge{
		Level:          4,
		ClockLimit:     5 * time.Minute,
		ClockIncrement: 3 * time.Second,
		Color:          "random",
		Variant:        "standard",
	})
	if err != nil {
		t.Fatalf("CreateAIChallenge: %v", err)
	}
	if g.ID != "aiGame01" || g.Speed != "blitz" {
		t.Fatalf("unexpected game %+v", g)
	}
	if gotPath != "/api/challenge/ai" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer lip_secret_token" {
		t.Fatalf("auth = %q", gotAuth)
	}
	want := map[string]string{"level": "4", "clock.limit": "300", "clock.increment": "3", "color": "random", "variant": "standard"}
	for k, v := range want {
		if gotForm[k] != v {
			t.Errorf("form[%s] = %q, want %q", k, gotForm[k], v)
		}
	}
	if _, ok := gotForm["fen"]; ok {
		t.Errorf("fen should be omitted when empty")
	}
}

func TestCreateAIChallengeRejectsLevel(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "")
	if _, err := c.CreateAIChallenge(context.Background(), AIChallenge{Level: 9}); err == nil {
		t.Fatalf("expected level error")
	}
}

func TestMakeMoveReturnsAPIError(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Not your turn, or game already over"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	err := c.MakeMove(context.Background(), "abc123", "e2e4")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "Not your turn, or game already over" {
		t.Fatalf("unexpected %+v", apiErr)
	}
	if path != "/api/board/game/abc123/move/e2e4" {
		t.Fatalf("path = %q", path)
	}
}

func TestAccountRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"alice","username":"Alice"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", WithRetry(3))
	acc, err := c.Account(context.Background())
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if acc.ID != "alice" || calls.Load() != 2 {
		t.Fatalf("acc=%+v calls=%d", acc, calls.Load())
	}
}

func TestOpenStreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"No such token"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad")
	_, err := c.OpenStream(context.Background(), EventStreamPath)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestGameStreamPath(t *testing.T) {
	if got := GameStreamPath("q7ZvsdUF"); got != "/api/board/game/stream/q7ZvsdUF" {
		t.Fatalf("got %q", got)
	}
}
