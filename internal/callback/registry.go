// Package callback provides handle-keyed handler registries used to connect
// pipeline stages to their consumers.
package callback

import (
	"github.com/google/uuid"
	"github.com/xaionaro-go/xsync"
)

// Handle identifies a registered handler. It is returned by Add and is the
// only way to remove that handler again.
type Handle struct {
	id uuid.UUID
}

// IsZero reports whether the handle was never issued by a Registry.
func (h Handle) IsZero() bool {
	return h.id == uuid.Nil
}

// String returns the textual form of the handle, useful for logging.
func (h Handle) String() string {
	return h.id.String()
}

// Registry holds handlers of values of type T.
//
// Handlers may be added and removed while a Dispatch is in progress; the
// in-flight Dispatch is never corrupted, it just may or may not see the
// change. The zero value is ready to use.
type Registry[T any] struct {
	handlers xsync.Map[Handle, func(T)]
}

// Add registers fn and returns the handle to remove it with.
// A nil fn is ignored and the zero Handle is returned.
func (r *Registry[T]) Add(fn func(T)) Handle {
	if fn == nil {
		return Handle{}
	}
	h := Handle{id: uuid.New()}
	r.handlers.Store(h, fn)
	return h
}

// Remove unregisters the handler identified by h. Removing an unknown or
// already removed handle is a no-op and returns false.
func (r *Registry[T]) Remove(h Handle) bool {
	_, ok := r.handlers.LoadAndDelete(h)
	return ok
}

// Dispatch calls every registered handler with v. Handlers run on the
// caller's goroutine in no particular order.
func (r *Registry[T]) Dispatch(v T) {
	r.handlers.Range(func(_ Handle, fn func(T)) bool {
		fn(v)
		return true
	})
}

// Len returns the number of registered handlers.
func (r *Registry[T]) Len() int {
	n := 0
	r.handlers.Range(func(Handle, func(T)) bool {
		n++
		return true
	})
	return n
}

// Clear removes every handler.
func (r *Registry[T]) Clear() {
	r.handlers.Range(func(h Handle, _ func(T)) bool {
		r.handlers.Delete(h)
		return true
	})
}
