package window

// Trigger decides, from the window contents before an insertion, whether
// that insertion makes the window ready for its consumers.
type Trigger[T any] interface {
	Ready(frames []T) bool
}

// Fill inserts elem into frames (possibly evicting older elements) and
// returns the resulting contents. triggered is the Trigger's verdict for
// this insertion.
type Fill[T any] interface {
	Fill(frames []T, elem T, triggered bool) []T
}

// CapacityFullTrigger fires when the window holds exactly Capacity
// elements. Paired with CapacityFill the size stays pinned at Capacity once
// reached, so every later insertion fires again.
//
// The check is an exact equality on purpose: a window grown past Capacity
// by some other fill never fires.
type CapacityFullTrigger[T any] struct {
	Capacity int
}

var _ Trigger[int] = CapacityFullTrigger[int]{}

// Ready implements Trigger.
func (t CapacityFullTrigger[T]) Ready(frames []T) bool {
	return len(frames) == t.Capacity
}

// NoTrigger never fires.
type NoTrigger[T any] struct{}

var _ Trigger[int] = NoTrigger[int]{}

// Ready implements Trigger.
func (NoTrigger[T]) Ready([]T) bool {
	return false
}

// CapacityFill appends and, when the insertion triggered, drops the oldest
// element.
type CapacityFill[T any] struct{}

var _ Fill[int] = CapacityFill[int]{}

// Fill implements Fill.
func (CapacityFill[T]) Fill(frames []T, elem T, triggered bool) []T {
	frames = append(frames, elem)
	if triggered {
		frames = dropFront(frames, 1)
	}
	return frames
}

// SlidingWindowFill appends and then evicts from the front until at most
// MaxSize elements remain, regardless of the trigger.
type SlidingWindowFill[T any] struct {
	MaxSize int
}

var _ Fill[int] = SlidingWindowFill[int]{}

// Fill implements Fill.
func (f SlidingWindowFill[T]) Fill(frames []T, elem T, _ bool) []T {
	frames = append(frames, elem)
	if excess := len(frames) - f.MaxSize; excess > 0 {
		frames = dropFront(frames, excess)
	}
	return frames
}

// dropFront removes the first n elements in place, keeping the backing
// array so a pinned-size window does not reallocate on every insertion.
func dropFront[T any](frames []T, n int) []T {
	if n >= len(frames) {
		clear(frames)
		return frames[:0]
	}
	copy(frames, frames[n:])
	var zero T
	for i := len(frames) - n; i < len(frames); i++ {
		frames[i] = zero
	}
	return frames[:len(frames)-n]
}
