// Package window implements the bounded temporal buffer of landmark frames
// with pluggable trigger and fill strategies.
package window

import (
	"context"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/xsync"

	"github.com/ayusman/mudra/internal/callback"
)

// Window is an ordered buffer of elements of type T.
//
// AddElement evaluates the trigger, runs the fill and takes the snapshot
// under a single lock, so concurrent readers never observe a half-applied
// insertion. Every consumer receives its own copy of the contents, never
// the live buffer or another consumer's copy.
type Window[T any] struct {
	locker  xsync.Mutex
	frames  []T
	trigger Trigger[T]
	fill    Fill[T]
	clone   func(T) T
	ready   callback.Registry[[]T]
}

// New returns an empty Window. clone is used to deep-copy elements for
// snapshots; nil means elements are copied by value.
func New[T any](trigger Trigger[T], fill Fill[T], clone func(T) T) *Window[T] {
	if trigger == nil {
		trigger = NoTrigger[T]{}
	}
	if fill == nil {
		fill = CapacityFill[T]{}
	}
	return &Window[T]{
		trigger: trigger,
		fill:    fill,
		clone:   clone,
	}
}

// NewCapacity returns a Window using CapacityFullTrigger and CapacityFill,
// the classic sliding window that notifies once per element after it first
// fills up.
func NewCapacity[T any](capacity int, clone func(T) T) *Window[T] {
	return New[T](CapacityFullTrigger[T]{Capacity: capacity}, CapacityFill[T]{}, clone)
}

// OnReady registers fn to receive a snapshot every time an insertion
// triggers. fn owns the snapshot and may modify it.
func (w *Window[T]) OnReady(fn func([]T)) callback.Handle {
	if fn == nil {
		return callback.Handle{}
	}
	return w.ready.Add(func(frames []T) {
		fn(w.cloneAll(frames))
	})
}

// RemoveCallback unregisters a handler added with OnReady.
func (w *Window[T]) RemoveCallback(h callback.Handle) bool {
	return w.ready.Remove(h)
}

// AddElement inserts elem and reports whether the insertion triggered.
// When it did, every OnReady handler is called with a snapshot of the
// contents after the fill.
func (w *Window[T]) AddElement(ctx context.Context, elem T) bool {
	var (
		triggered bool
		snapshot  []T
	)
	w.locker.Do(ctx, func() {
		triggered = w.trigger.Ready(w.frames)
		w.frames = w.fill.Fill(w.frames, elem, triggered)
		if triggered {
			// Elements are never modified in place once buffered, so a
			// shallow copy is enough until each handler clones it.
			snapshot = append([]T(nil), w.frames...)
		}
	})
	if !triggered {
		return false
	}

	logger.Tracef(ctx, "window: triggered with %d elements", len(snapshot))
	w.ready.Dispatch(snapshot)
	return true
}

// Clear empties the window.
func (w *Window[T]) Clear(ctx context.Context) {
	w.locker.Do(ctx, func() {
		clear(w.frames)
		w.frames = w.frames[:0]
	})
	logger.Debugf(ctx, "window: cleared")
}

// Len returns the current number of elements.
func (w *Window[T]) Len(ctx context.Context) int {
	return xsync.DoR1(ctx, &w.locker, func() int {
		return len(w.frames)
	})
}

// Snapshot returns a copy of the current contents.
func (w *Window[T]) Snapshot(ctx context.Context) []T {
	return xsync.DoR1(ctx, &w.locker, w.snapshotLocked)
}

func (w *Window[T]) snapshotLocked() []T {
	return w.cloneAll(w.frames)
}

func (w *Window[T]) cloneAll(frames []T) []T {
	out := make([]T, len(frames))
	if w.clone == nil {
		copy(out, frames)
		return out
	}
	for i, f := range frames {
		out[i] = w.clone(f)
	}
	return out
}
