// Package engine drives the recognition pipeline: frames go to the hand
// detector, detections are paired with their source images, buffered in a
// temporal window, and every ready window is classified into a sign.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/callback"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/correlation"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/filter"
	"github.com/ayusman/mudra/internal/tensor"
	"github.com/ayusman/mudra/internal/window"
)

// ErrPaused is returned by SubmitFrame while the engine is not polling.
var ErrPaused = errors.New("engine is paused")

const (
	defaultDetectorQueue   = 1
	defaultClassifierQueue = 1
)

// Options tunes an Engine.
type Options struct {
	RequiredFrames int
	PointsPerHand  int
	WindowCapacity int
	Interpolate    bool

	// DetectorQueue bounds the frames waiting for detection.
	DetectorQueue int

	// ClassifierQueue bounds the tensors waiting for classification.
	ClassifierQueue int
}

// OptionsFrom derives engine options from the application config.
func OptionsFrom(cfg config.Config) Options {
	return Options{
		RequiredFrames:  cfg.FramesPerPrediction,
		PointsPerHand:   cfg.PointsPerHand,
		WindowCapacity:  cfg.WindowCapacity,
		Interpolate:     cfg.Interpolate,
		DetectorQueue:   defaultDetectorQueue,
		ClassifierQueue: defaultClassifierQueue,
	}
}

// Sign is a recognized sign.
type Sign struct {
	filter.Decision

	// TimestampMs is the timestamp of the newest frame that was classified.
	TimestampMs int64 `json:"timestamp"`
}

// Paired is a detection result together with the image it was computed
// from. Image is only valid during the callback; Clone it to keep it.
type Paired struct {
	Frame detector.LandmarkFrame
	Image gocv.Mat
}

type job struct {
	generation  uint64
	tensor      []float32
	timestampMs int64
}

// Engine is the recognition pipeline.
type Engine struct {
	options    Options
	detector   *detector.Async
	recognizer *classifier.Recognizer
	images     *correlation.Table[gocv.Mat]
	window     *window.Window[detector.LandmarkFrame]

	// submitLocker orders image retention before the matching Take.
	submitLocker xsync.Mutex

	// stateLocker makes the polling check plus window insertion atomic
	// with respect to Pause.
	stateLocker xsync.Mutex
	polling     atomic.Bool
	generation  atomic.Uint64
	interpolate atomic.Bool

	jobs   chan job
	signs  callback.Registry[Sign]
	frames callback.Registry[Paired]
	errs   callback.Registry[error]
}

// New creates an Engine. The engine owns d and r and closes them on Close.
// It starts paused; call Poll to begin accepting frames and Run to process
// them.
func New(ctx context.Context, opts Options, d detector.Detector, r *classifier.Recognizer) (*Engine, error) {
	if opts.RequiredFrames < 1 || opts.PointsPerHand < 1 || opts.WindowCapacity < 1 {
		return nil, fmt.Errorf("invalid engine options: %+v", opts)
	}
	if d == nil || r == nil {
		return nil, fmt.Errorf("detector and recognizer are required")
	}
	if opts.DetectorQueue < 1 {
		opts.DetectorQueue = defaultDetectorQueue
	}
	if opts.ClassifierQueue < 1 {
		opts.ClassifierQueue = defaultClassifierQueue
	}

	e := &Engine{
		options:    opts,
		detector:   detector.NewAsync(ctx, d, opts.DetectorQueue),
		recognizer: r,
		images:     correlation.New(func(m gocv.Mat) { m.Close() }),
		window:     window.NewCapacity(opts.WindowCapacity, detector.LandmarkFrame.Clone),
		jobs:       make(chan job, opts.ClassifierQueue),
	}
	e.interpolate.Store(opts.Interpolate)
	e.window.OnReady(func(frames []detector.LandmarkFrame) {
		e.onWindowReady(ctx, frames)
	})
	return e, nil
}

// Poll starts accepting frames with an empty window.
func (e *Engine) Poll(ctx context.Context) {
	e.stateLocker.Do(ctx, func() {
		e.window.Clear(ctx)
		e.polling.Store(true)
	})
	logger.Debugf(ctx, "engine: polling")
}

// Pause stops accepting frames and drops all buffered state. Classifications
// already in flight are discarded when they complete.
func (e *Engine) Pause(ctx context.Context) {
	e.stateLocker.Do(ctx, func() {
		e.polling.Store(false)
		e.generation.Inc()
		e.window.Clear(ctx)
		e.images.Clear(ctx)
	})
	logger.Debugf(ctx, "engine: paused")
}

// IsPolling reports whether frames are being accepted.
func (e *Engine) IsPolling() bool {
	return e.polling.Load()
}

// Generation returns the current pause generation.
func (e *Engine) Generation() uint64 {
	return e.generation.Load()
}

// SetInterpolating toggles padded assembly of short windows.
func (e *Engine) SetInterpolating(v bool) {
	e.interpolate.Store(v)
}

// IsInterpolating reports whether padded assembly is enabled.
func (e *Engine) IsInterpolating() bool {
	return e.interpolate.Load()
}

// SetFilters replaces the classifier output filter chain.
func (e *Engine) SetFilters(ctx context.Context, chain filter.Chain) {
	e.recognizer.SetFilters(ctx, chain)
}

// Vocabulary returns the labels the engine can recognize.
func (e *Engine) Vocabulary() classifier.Vocabulary {
	return e.recognizer.Vocabulary()
}

// Buffered returns the number of frames in the temporal window.
func (e *Engine) Buffered(ctx context.Context) int {
	return e.window.Len(ctx)
}

// OnSign registers fn to receive recognized signs.
func (e *Engine) OnSign(fn func(Sign)) callback.Handle {
	return e.signs.Add(fn)
}

// OnFrame registers fn to receive every detection paired with its image.
func (e *Engine) OnFrame(fn func(Paired)) callback.Handle {
	return e.frames.Add(fn)
}

// OnError registers fn to receive detector and classifier failures.
func (e *Engine) OnError(fn func(error)) callback.Handle {
	return e.errs.Add(fn)
}

// RemoveCallback unregisters a handle returned by OnSign, OnFrame or OnError.
func (e *Engine) RemoveCallback(h callback.Handle) bool {
	return e.signs.Remove(h) || e.frames.Remove(h) || e.errs.Remove(h)
}

// SubmitFrame queues a copy of frame for detection. The caller keeps
// ownership of frame. Frames the detector has no room for are rejected
// before their image is retained. The detection is discarded if the engine
// is paused before it completes.
func (e *Engine) SubmitFrame(ctx context.Context, frame gocv.Mat, timestampMs int64) error {
	// Load before the polling check: a Pause in between bumps the
	// generation and the detection is dropped.
	gen := e.generation.Load()
	if !e.polling.Load() {
		return ErrPaused
	}

	return xsync.DoR1(ctx, &e.submitLocker, func() error {
		clone := frame.Clone()
		if err := e.detector.Submit(ctx, &clone, timestampMs, gen); err != nil {
			return fmt.Errorf("submit frame %d: %w", timestampMs, err)
		}
		e.images.Submit(ctx, timestampMs, frame.Clone())
		return nil
	})
}

// Run processes detection results and classifications until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.serveDetections(ctx)
	})
	g.Go(func() error {
		return e.serveClassifications(ctx)
	})
	return g.Wait()
}

// Close stops the detector and releases the classifier and retained images.
func (e *Engine) Close(ctx context.Context) error {
	e.Pause(ctx)
	return errors.Join(
		e.detector.Close(),
		e.recognizer.Close(ctx),
	)
}

func (e *Engine) serveDetections(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-e.detector.Results():
			if !ok {
				return nil
			}
			e.handleDetection(ctx, res)
		}
	}
}

func (e *Engine) handleDetection(ctx context.Context, res detector.Result) {
	ts := res.Frame.TimestampMs
	image, paired := xsync.DoR2(ctx, &e.submitLocker, func() (gocv.Mat, bool) {
		return e.images.Take(ctx, ts)
	})
	if paired {
		defer image.Close()
	} else {
		logger.Tracef(ctx, "engine: no image retained for frame %d", ts)
	}

	if res.Err != nil {
		logger.Warnf(ctx, "engine: detection of frame %d failed: %v", ts, res.Err)
		e.errs.Dispatch(fmt.Errorf("detect frame %d: %w", ts, res.Err))
		return
	}

	if !e.polling.Load() || res.Generation != e.generation.Load() {
		logger.Tracef(ctx, "engine: dropping frame %d from generation %d", ts, res.Generation)
		return
	}
	if paired {
		e.frames.Dispatch(Paired{Frame: res.Frame, Image: image})
	}
	if !res.Frame.HasHands() {
		return
	}

	e.stateLocker.Do(ctx, func() {
		if e.polling.Load() && res.Generation == e.generation.Load() {
			e.window.AddElement(ctx, res.Frame)
		}
	})
}

func (e *Engine) onWindowReady(ctx context.Context, frames []detector.LandmarkFrame) {
	assembler := tensor.New(e.options.RequiredFrames, e.options.PointsPerHand, e.interpolate.Load())
	t, ok := assembler.Assemble(frames)
	if !ok {
		logger.Tracef(ctx, "engine: window of %d frames not classifiable", len(frames))
		return
	}

	j := job{
		generation:  e.generation.Load(),
		tensor:      t,
		timestampMs: frames[len(frames)-1].TimestampMs,
	}
	select {
	case e.jobs <- j:
	default:
		logger.Debugf(ctx, "engine: classifier busy, skipping window ending at %d", j.timestampMs)
	}
}

func (e *Engine) serveClassifications(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-e.jobs:
			e.classify(ctx, j)
		}
	}
}

func (e *Engine) classify(ctx context.Context, j job) {
	decision, ok, err := e.recognizer.Recognize(ctx, j.tensor)
	if gen := e.generation.Load(); gen != j.generation {
		logger.Debugf(ctx, "engine: dropping result of generation %d (now %d)", j.generation, gen)
		return
	}
	if err != nil {
		logger.Errorf(ctx, "engine: classification failed: %v", err)
		e.errs.Dispatch(err)
		return
	}
	if !ok {
		return
	}

	logger.Debugf(ctx, "engine: sign %q (%.3f)", decision.Label, decision.Probability)
	e.signs.Dispatch(Sign{Decision: decision, TimestampMs: j.timestampMs})
}
