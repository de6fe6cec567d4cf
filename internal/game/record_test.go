package game

import (
	"errors"
	"testing"
	"time"

	"github.com/park285/termchess/internal/domain"
)

type bogusUpdate struct{}

func (bogusUpdate) updateSource() string { return "bogus" }

func startedRecord(t *testing.T) Metadata {
	t.Helper()
	m, err := New().Merge(Selection{Variant: domain.Standard, Color: domain.ChooseBlack, AILevel: 3, Minutes: 10, IncrementSeconds: 5})
	if err != nil {
		t.Fatalf("selection: %v", err)
	}
	m, err = m.Merge(LifecycleStart{GameID: "abcd1234", Color: domain.Black, Rated: false, Variant: domain.Standard, Speed: domain.Rapid})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return m
}

func TestSelectionNormalizesClockUnits(t *testing.T) {
	m, err := New().Merge(Selection{Color: domain.ChooseRandom, Minutes: 3, IncrementSeconds: 2})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if m.Clock.White.Time != 3*time.Minute || m.Clock.Black.Increment != 2*time.Second {
		t.Fatalf("unexpected clock %+v", m.Clock)
	}
	if m.MyColor != domain.White || m.ColorChoice != domain.ChooseRandom {
		t.Fatalf("random choice should be provisional white, got %q/%q", m.MyColor, m.ColorChoice)
	}
	if m.Speed != domain.Blitz {
		t.Fatalf("expected blitz, got %q", m.Speed)
	}
}

func TestSnapshotMergesPlayersAndMillisecondClock(t *testing.T) {
	m := startedRecord(t)
	m, err := m.Merge(Snapshot{
		GameID:  "abcd1234",
		Variant: domain.Standard,
		White:   Player{AILevel: 3, Name: "ignored", Rating: 1500},
		Black:   Player{ID: "me", Name: "me", Rating: 1712, Provisional: true},
		Clock:   ClockMillis{WTime: 600000, BTime: 600000, WInc: 5000, BInc: 5000},
		Status:  "started",
		MyColor: domain.Black,
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if m.Players.White.Name != "Stockfish level 3" || m.Players.White.Rating != 0 || m.Players.White.Title != "" || m.Players.White.Provisional {
		t.Fatalf("engine player not synthesized: %+v", m.Players.White)
	}
	if m.Opponent().Name != "Stockfish level 3" {
		t.Fatalf("Opponent = %+v", m.Opponent())
	}
	if m.Clock.White.Time != 10*time.Minute || m.Clock.Black.Increment != 5*time.Second {
		t.Fatalf("unexpected clock %+v", m.Clock)
	}
	if !m.SnapshotSeen || m.Status != "started" {
		t.Fatalf("snapshot flags not set: %+v", m)
	}
}

func TestIncrementalOverwritesClockAndStatus(t *testing.T) {
	m := startedRecord(t)
	m, _ = m.Merge(Snapshot{GameID: "abcd1234", Variant: domain.Standard, Clock: ClockMillis{WTime: 600000, BTime: 600000}})
	for _, wt := range []int64{599000, 597500, 595000} {
		var err error
		m, err = m.Merge(Incremental{Clock: ClockMillis{WTime: wt, BTime: 600000}, Status: "started"})
		if err != nil {
			t.Fatalf("incremental: %v", err)
		}
	}
	if m.Clock.White.Time != 595*time.Second || m.Status != "started" {
		t.Fatalf("last incremental not applied: %+v status=%q", m.Clock, m.Status)
	}
}

func TestRejectedUpdatesLeaveRecordUnchanged(t *testing.T) {
	base := startedRecord(t)
	base, _ = base.Merge(Snapshot{GameID: "abcd1234", Variant: domain.Standard, Status: "started"})
	base, _ = base.Merge(Chat{Line: ChatLine{Room: "player", Username: "x", Text: "hi"}})

	cases := map[string]Update{
		"unknown source":   bogusUpdate{},
		"nil":              nil,
		"other game":       Snapshot{GameID: "zzzz9999", Variant: domain.Standard},
		"variant change":   Snapshot{GameID: "abcd1234", Variant: domain.Atomic},
		"start variant":    LifecycleStart{GameID: "abcd1234", Variant: domain.Horde},
		"negative clock":   Incremental{Clock: ClockMillis{WTime: -1}},
		"bad winner":       Incremental{Winner: domain.Color("purple")},
		"empty chat":       Chat{},
		"negative claim":   OpponentGone{Gone: true, ClaimWinInSeconds: -3},
		"finish elsewhere": Finished{GameID: "other"},
	}
	for name, u := range cases {
		got, err := base.Merge(u)
		if !errors.Is(err, ErrData) {
			t.Fatalf("%s: expected ErrData, got %v", name, err)
		}
		if got.GameID != base.GameID || got.Variant != base.Variant || got.Status != base.Status || len(got.Chat) != 1 || got.Clock != base.Clock {
			t.Fatalf("%s: record changed: %+v", name, got)
		}
	}
}

func TestMergeDoesNotAliasChat(t *testing.T) {
	m := startedRecord(t)
	m, _ = m.Merge(Chat{Line: ChatLine{Username: "a", Text: "1"}})
	next, _ := m.Merge(Chat{Line: ChatLine{Username: "b", Text: "2"}})
	next.Chat[0].Text = "mutated"
	if m.Chat[0].Text != "1" || len(m.Chat) != 1 {
		t.Fatalf("earlier record was mutated: %+v", m.Chat)
	}
}

func TestOpponentGoneAndFinish(t *testing.T) {
	m := startedRecord(t)
	m, err := m.Merge(OpponentGone{Gone: true, ClaimWinInSeconds: 30})
	if err != nil || !m.OpponentGone || m.ClaimWinIn != 30*time.Second {
		t.Fatalf("gone: %+v %v", m, err)
	}
	m, _ = m.Merge(OpponentGone{Gone: false})
	if m.OpponentGone || m.ClaimWinIn != 0 {
		t.Fatalf("gone not cleared: %+v", m)
	}
	m, err = m.Merge(Finished{GameID: "abcd1234", Status: "mate", Winner: domain.White})
	if err != nil || m.Finished == nil || m.Finished.Status != "mate" {
		t.Fatalf("finish: %+v %v", m.Finished, err)
	}
	c := m.Clone()
	c.Finished.Status = "changed"
	if m.Finished.Status != "mate" {
		t.Fatalf("Clone shares Finished")
	}
}

func TestSnapshotStartposIsEmptyFEN(t *testing.T) {
	m, err := New().Merge(Snapshot{GameID: "g1", InitialFEN: "startpos"})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if m.InitialFEN != "" || m.Variant != domain.Standard {
		t.Fatalf("unexpected %+v", m)
	}
	if SourceName(Snapshot{}) != "snapshot" || SourceName(nil) != "nil" {
		t.Fatalf("SourceName mismatch")
	}
}
