// Package correlation pairs asynchronously submitted source images with the
// detection results that arrive for them later, keyed by timestamp.
package correlation

import (
	"context"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/xsync"
)

// Table retains timestamp -> value until the matching result is taken.
//
// Submission timestamps are expected to be monotonically non-decreasing.
// Every Submit purges all entries strictly older than the submitted
// timestamp, so memory is bounded to the entries not yet superseded. A
// result that arrives after a newer frame was submitted can therefore no
// longer be paired; Take reports false for it and the caller drops it.
type Table[V any] struct {
	locker  xsync.Mutex
	entries map[int64]V
	release func(V)
}

// New returns an empty Table. If release is not nil it is called for every
// value the table drops without handing it out through Take.
func New[V any](release func(V)) *Table[V] {
	return &Table[V]{
		entries: make(map[int64]V),
		release: release,
	}
}

// Submit stores v under ts, replacing (and releasing) any value already
// stored under the same timestamp, and purges every older entry.
func (t *Table[V]) Submit(ctx context.Context, ts int64, v V) {
	var dropped []V
	t.locker.Do(ctx, func() {
		for k, old := range t.entries {
			if k < ts {
				dropped = append(dropped, old)
				delete(t.entries, k)
			}
		}
		if old, ok := t.entries[ts]; ok {
			dropped = append(dropped, old)
		}
		t.entries[ts] = v
	})
	if len(dropped) > 0 {
		logger.Tracef(ctx, "correlation: dropped %d stale entries before %d", len(dropped), ts)
	}
	t.releaseAll(dropped)
}

// Take removes and returns the value stored under ts.
func (t *Table[V]) Take(ctx context.Context, ts int64) (V, bool) {
	return xsync.DoR2(ctx, &t.locker, func() (V, bool) {
		v, ok := t.entries[ts]
		if ok {
			delete(t.entries, ts)
		}
		return v, ok
	})
}

// Len returns the number of retained entries.
func (t *Table[V]) Len(ctx context.Context) int {
	return xsync.DoR1(ctx, &t.locker, func() int {
		return len(t.entries)
	})
}

// Clear releases and removes every entry.
func (t *Table[V]) Clear(ctx context.Context) {
	var dropped []V
	t.locker.Do(ctx, func() {
		for k, v := range t.entries {
			dropped = append(dropped, v)
			delete(t.entries, k)
		}
	})
	t.releaseAll(dropped)
}

func (t *Table[V]) releaseAll(values []V) {
	if t.release == nil {
		return
	}
	for _, v := range values {
		t.release(v)
	}
}
