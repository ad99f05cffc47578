package capture

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrEndOfFrames is returned by a non-looping MockCamera once every frame
// has been played.
var ErrEndOfFrames = errors.New("no more frames")

// MockCamera replays a fixed set of frames. Timestamps start at zero and
// advance by one frame interval at the configured FPS.
type MockCamera struct {
	mu     sync.Mutex
	frames []*gocv.Mat
	loop   bool
	mirror bool
	fps    int
	open   bool
	pos    int
	ts     int64
}

var _ Camera = (*MockCamera)(nil)

// NewMockCamera returns a camera replaying frames, optionally in a loop.
// The frames stay owned by the caller; each read hands out a clone.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{frames: frames, loop: loop, fps: DefaultFPS}
}

// SetMirror enables horizontal flipping of played back frames.
func (c *MockCamera) SetMirror(mirror bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mirror = mirror
}

// Open rewinds playback.
func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.pos, c.ts = 0, 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

func (c *MockCamera) ReadFrame() (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.open:
		return Frame{}, ErrCameraNotOpen
	case len(c.frames) == 0:
		return Frame{}, ErrNoFrame
	case c.pos == len(c.frames) && !c.loop:
		return Frame{}, ErrEndOfFrames
	}
	c.pos %= len(c.frames)

	mat := c.frames[c.pos].Clone()
	c.pos++
	if c.mirror {
		flipHorizontal(&mat)
	}

	frame := Frame{Mat: mat, TimestampMs: c.ts}
	c.ts += max(int64(1000/c.fps), 1)
	return frame, nil
}

func (c *MockCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps = fps
}

func (c *MockCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}
