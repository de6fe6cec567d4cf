// Package event provides an ordered, synchronous publish/subscribe list.
package event

import (
	"errors"
	"sync"
)

// Handler receives one published value. A returned error is collected by Publish.
type Handler[T any] func(T) error

type entry[T any] struct {
	id int
	fn Handler[T]
}

// Feed keeps handlers in registration order and calls them on the publisher's goroutine.
// The zero value is ready to use.
type Feed[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   []entry[T]
}

// Subscribe registers fn and returns an id for Unsubscribe. Ids are never reused.
func (f *Feed[T]) Subscribe(fn Handler[T]) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.subs = append(f.subs, entry[T]{id: f.nextID, fn: fn})
	return f.nextID
}

// Unsubscribe removes the handler; unknown ids are ignored.
func (f *Feed[T]) Unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.subs {
		if e.id == id {
			f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
			return
		}
	}
}

// Len reports the number of registered handlers.
func (f *Feed[T]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Publish calls every handler in order, even after one fails, and joins their errors.
// Handlers may subscribe or unsubscribe while being called; the change applies to the next Publish.
func (f *Feed[T]) Publish(v T) error {
	f.mu.RLock()
	subs := make([]entry[T], len(f.subs))
	copy(subs, f.subs)
	f.mu.RUnlock()

	var errs []error
	for _, e := range subs {
		if e.fn == nil {
			continue
		}
		if err := e.fn(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notify adapts a func without an error result to a Handler.
func Notify[T any](fn func(T)) Handler[T] {
	return func(v T) error {
		fn(v)
		return nil
	}
}
