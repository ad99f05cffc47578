// Package capture reads timestamped frames from a camera using GoCV.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned by ReadFrame before Open or after Close.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrNoFrame is returned when the device delivers nothing usable.
	ErrNoFrame = errors.New("camera returned no frame")
)

// Frame is a captured image with its capture timestamp. TimestampMs is
// measured from when the camera was opened and strictly increases between
// reads. The caller owns Mat and must Close it.
type Frame struct {
	Mat         gocv.Mat
	TimestampMs int64
}

// Close releases the frame image.
func (f *Frame) Close() error {
	return f.Mat.Close()
}

// Camera is a source of frames.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (Frame, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Options configures a device camera. Zero fields take the defaults.
type Options struct {
	DeviceID int
	// Mirror flips every frame horizontally, as expected for front cameras.
	Mirror bool
	Width  int
	Height int
	FPS    int
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	return o
}

// clock hands out strictly increasing millisecond timestamps.
type clock struct {
	start time.Time
	last  int64
}

func (c *clock) reset() {
	c.start = time.Now()
	c.last = -1
}

func (c *clock) next() int64 {
	ts := time.Since(c.start).Milliseconds()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}

// Webcam captures from a local video device.
type Webcam struct {
	mu      sync.Mutex
	opts    Options
	capture *gocv.VideoCapture
	clock   clock
}

var _ Camera = (*Webcam)(nil)

// NewCamera returns a closed Webcam for opts.
func NewCamera(opts Options) *Webcam {
	return &Webcam{opts: opts.withDefaults()}
}

// Open starts capturing. Opening an open camera is a no-op.
func (c *Webcam) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(c.opts.DeviceID)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.opts.DeviceID, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.opts.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.opts.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(c.opts.FPS))

	c.capture = vc
	c.clock.reset()
	return nil
}

// Close stops capturing. Closing a closed camera returns nil.
func (c *Webcam) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

// ReadFrame grabs the next frame from the device.
func (c *Webcam) ReadFrame() (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return Frame{}, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if !c.capture.Read(&mat) || mat.Empty() {
		mat.Close()
		return Frame{}, ErrNoFrame
	}
	if c.opts.Mirror {
		flipHorizontal(&mat)
	}
	return Frame{Mat: mat, TimestampMs: c.clock.next()}, nil
}

// SetFPS changes the requested capture rate. Non-positive values are ignored.
func (c *Webcam) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.FPS = fps
	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *Webcam) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.FPS
}

func (c *Webcam) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil
}

func flipHorizontal(m *gocv.Mat) {
	gocv.Flip(*m, m, 1)
}
