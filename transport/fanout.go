package transport

import (
	"slices"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Fanout delivers published values to every current subscriber. Subscribers
// may be added or removed at any time, including from inside a handler.
type Fanout[T any] struct {
	subs *xsync.MapOf[uint64, func(T)]
	next atomic.Uint64
}

// NewFanout creates an empty Fanout.
func NewFanout[T any]() *Fanout[T] {
	return &Fanout[T]{subs: xsync.NewMapOf[uint64, func(T)]()}
}

// Subscribe registers fn and returns a function that removes it. The
// returned function is idempotent.
func (f *Fanout[T]) Subscribe(fn func(T)) func() {
	id := f.next.Add(1)
	f.subs.Store(id, fn)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			f.subs.Delete(id)
		}
	}
}

// Publish calls every subscriber with v on the caller's goroutine, in
// subscription order.
func (f *Fanout[T]) Publish(v T) {
	// Map iteration order is unspecified; sort by subscription id so older
	// subscribers always see a value first.
	var ids []uint64
	f.subs.Range(func(id uint64, _ func(T)) bool {
		ids = append(ids, id)
		return true
	})
	slices.Sort(ids)
	for _, id := range ids {
		if fn, ok := f.subs.Load(id); ok {
			fn(v)
		}
	}
}

// Len returns the number of subscribers.
func (f *Fanout[T]) Len() int {
	return f.subs.Size()
}
