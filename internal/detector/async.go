package detector

import (
	"context"
	"errors"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"gocv.io/x/gocv"
)

// ErrClosed is returned when submitting to a closed Async detector.
var ErrClosed = errors.New("detector is closed")

// ErrQueueFull is returned when the detector is still busy with earlier
// frames and the submitted one was dropped.
var ErrQueueFull = errors.New("detector queue is full")

// Result is the outcome of one submitted frame. Generation echoes the tag
// the frame was submitted with.
type Result struct {
	Frame      LandmarkFrame
	Generation uint64
	Err        error
}

type request struct {
	frame       *gocv.Mat
	timestampMs int64
	generation  uint64
}

// Async runs a synchronous Detector on a single dedicated goroutine, so at
// most one frame is being detected at any time. Frames are submitted with
// their timestamp and results are delivered, in submission order, on the
// Results channel keyed by that timestamp.
type Async struct {
	detector  Detector
	requests  chan request
	results   chan Result
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// mu orders Submit against Close so no request is queued after the
	// worker has drained.
	mu     sync.Mutex
	closed bool
}

// NewAsync starts the worker goroutine. queueSize bounds the number of
// frames waiting for detection; it is at least 1.
func NewAsync(ctx context.Context, d Detector, queueSize int) *Async {
	if queueSize < 1 {
		queueSize = 1
	}
	a := &Async{
		detector: d,
		requests: make(chan request, queueSize),
		results:  make(chan Result, queueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go a.serve(ctx)
	return a
}

// Submit hands frame over for detection. Ownership of frame passes to the
// detector, which closes it when done, also when Submit fails. generation
// is returned unchanged on the frame's Result.
func (a *Async) Submit(ctx context.Context, frame *gocv.Mat, timestampMs int64, generation uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		closeMat(frame)
		return ErrClosed
	}

	select {
	case a.requests <- request{frame: frame, timestampMs: timestampMs, generation: generation}:
		return nil
	default:
		logger.Debugf(ctx, "detector: dropping frame %d, queue full", timestampMs)
		closeMat(frame)
		return ErrQueueFull
	}
}

// Results returns the channel results are delivered on. It is closed after
// Close.
func (a *Async) Results() <-chan Result {
	return a.results
}

// Close stops the worker, closes the underlying detector and the Results
// channel.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()

		close(a.done)
		<-a.stopped
		a.drain()
		err = a.detector.Close()
	})
	return err
}

func (a *Async) serve(ctx context.Context) {
	defer close(a.stopped)
	defer close(a.results)
	defer a.drain()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case req := <-a.requests:
			hands, err := a.detector.Detect(req.frame)
			closeMat(req.frame)

			res := Result{
				Frame:      LandmarkFrame{TimestampMs: req.timestampMs, Hands: hands},
				Generation: req.generation,
				Err:        err,
			}
			select {
			case a.results <- res:
			case <-ctx.Done():
				return
			case <-a.done:
				return
			}
		}
	}
}

func (a *Async) drain() {
	for {
		select {
		case req := <-a.requests:
			closeMat(req.frame)
		default:
			return
		}
	}
}

func closeMat(m *gocv.Mat) {
	if m != nil {
		m.Close()
	}
}
