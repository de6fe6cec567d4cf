package event

import (
	"errors"
	"testing"
)

func TestPublishInRegistrationOrder(t *testing.T) {
	var f Feed[int]
	var got []string
	f.Subscribe(func(v int) error { got = append(got, "a"); return nil })
	f.Subscribe(func(v int) error { got = append(got, "b"); return nil })
	f.Subscribe(Notify(func(v int) { got = append(got, "c") }))

	if err := f.Publish(1); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	var f Feed[string]
	calls := 0
	id := f.Subscribe(func(string) error { calls++; return nil })
	_ = f.Publish("x")
	f.Unsubscribe(id)
	f.Unsubscribe(id)
	_ = f.Publish("y")
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if f.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", f.Len())
	}
}

func TestPublishJoinsErrorsAndContinues(t *testing.T) {
	var f Feed[int]
	errA := errors.New("a")
	errB := errors.New("b")
	reached := false
	f.Subscribe(func(int) error { return errA })
	f.Subscribe(func(int) error { return errB })
	f.Subscribe(func(int) error { reached = true; return nil })

	err := f.Publish(0)
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected joined errors, got %v", err)
	}
	if !reached {
		t.Fatalf("later handler not called after failure")
	}
}

func TestSubscribeDuringPublishAppliesNextTime(t *testing.T) {
	var f Feed[int]
	late := 0
	f.Subscribe(func(int) error {
		f.Subscribe(func(int) error { late++; return nil })
		return nil
	})
	_ = f.Publish(1)
	if late != 0 {
		t.Fatalf("handler added during publish must not run in the same publish")
	}
	_ = f.Publish(2)
	if late != 1 {
		t.Fatalf("expected late handler once, got %d", late)
	}
}
