// Package app wires camera capture, the recognition engine, persistence and
// plugins into the running application.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/callback"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/engine"
	"github.com/ayusman/mudra/internal/filter"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/store"
)

// PluginTimeoutMs bounds a single plugin execution.
const PluginTimeoutMs = 5000

// SettingEnabled is the settings key remembering whether recognition was
// left enabled.
const SettingEnabled = "recognition.enabled"

// Deps are the collaborators of an App. Store may be nil, in which case
// nothing is recorded and no bindings are run.
type Deps struct {
	Config     config.Config
	Store      *store.Store
	Camera     capture.Camera
	Detector   detector.Detector
	Classifier classifier.Classifier
	Vocabulary classifier.Vocabulary
}

// App is the main application that turns camera frames into recognized
// signs and runs the actions bound to them.
type App struct {
	config     config.Config
	store      *store.Store
	camera     capture.Camera
	engine     *engine.Engine
	pluginMgr  *plugin.Manager
	pluginExec *plugin.Executor

	mu        sync.RWMutex
	enabled   bool
	sessionID string
	lastSign  *engine.Sign
	preview   []byte

	signs   callback.Registry[engine.Sign]
	actions sync.WaitGroup
}

// Build creates an App backed by the real camera, the MediaPipe hand
// landmarker and the OpenCV classifier described by cfg. A missing
// classifier model or vocabulary is fatal; a missing landmarker falls back
// to a detector that never finds hands.
func Build(ctx context.Context, cfg config.Config, st *store.Store) (*App, error) {
	vocabulary, err := classifier.LoadVocabularyFile(cfg.VocabularyPath)
	if err != nil {
		return nil, err
	}

	cls, err := classifier.NewDNN(cfg.ClassifierModel, 1, cfg.FramesPerPrediction, cfg.PointsPerHand*2, 1)
	if err != nil {
		return nil, err
	}
	logger.Debugf(ctx, "classifier %s loaded with %d labels (%d threads requested)",
		cfg.ClassifierModel, len(vocabulary), cfg.ClassifierThreads)

	var det detector.Detector
	if mp, err := detector.NewMediaPipeDetector(cfg.Detector()); err == nil {
		det = mp
		logger.Infof(ctx, "using MediaPipe hand detection")
	} else {
		logger.Warnf(ctx, "MediaPipe not available (%v), using mock detector", err)
		det = detector.NewMockDetector()
	}

	return New(ctx, Deps{
		Config:     cfg,
		Store:      st,
		Camera:     capture.NewCamera(capture.Options{DeviceID: cfg.CameraID, Mirror: cfg.MirrorInput, FPS: cfg.FPS}),
		Detector:   det,
		Classifier: cls,
		Vocabulary: vocabulary,
	})
}

// New creates an App from explicit collaborators. Detection starts
// disabled.
func New(ctx context.Context, deps Deps) (*App, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}

	rec := classifier.NewRecognizer(deps.Classifier, deps.Vocabulary)
	rec.SetFilters(ctx, Filters(deps.Config))

	eng, err := engine.New(ctx, engine.OptionsFrom(deps.Config), deps.Detector, rec)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	a := &App{
		config:     deps.Config,
		store:      deps.Store,
		camera:     deps.Camera,
		engine:     eng,
		pluginMgr:  plugin.NewManager(deps.Config.PluginDir),
		pluginExec: plugin.NewExecutor(PluginTimeoutMs),
	}
	a.camera.SetFPS(deps.Config.FPS)

	eng.OnSign(func(s engine.Sign) { a.onSign(ctx, s) })
	eng.OnFrame(func(p engine.Paired) { a.onFrame(ctx, p) })
	eng.OnError(func(err error) {
		logger.Warnf(ctx, "recognition error: %v", err)
	})
	return a, nil
}

// Filters builds the classifier output filter chain configured in cfg.
func Filters(cfg config.Config) filter.Chain {
	var chain filter.Chain
	if len(cfg.FocusLabels) > 0 {
		chain = append(chain, filter.NewFocusSublist(cfg.FocusLabels...))
	}
	if cfg.Threshold > 0 {
		chain = append(chain, filter.Threshold{Min: cfg.Threshold})
	}
	return append(chain, filter.BestOf{})
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins(ctx context.Context) error {
	return a.pluginMgr.Discover(ctx)
}

// SetEnabled starts or stops recognition and remembers the choice.
// Enabling opens the camera and begins a new session.
func (a *App) SetEnabled(ctx context.Context, enabled bool) error {
	if err := a.setEnabled(ctx, enabled); err != nil {
		return err
	}
	if a.store != nil {
		if err := a.store.Settings().Set(SettingEnabled, strconv.FormatBool(enabled)); err != nil {
			logger.Warnf(ctx, "remember enabled state: %v", err)
		}
	}
	return nil
}

// RestoreEnabled re-enables recognition if it was enabled when the
// application last stopped.
func (a *App) RestoreEnabled(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	value, err := a.store.Settings().GetOr(SettingEnabled, "false")
	if err != nil {
		return fmt.Errorf("read %s: %w", SettingEnabled, err)
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		logger.Warnf(ctx, "ignoring %s=%q: %v", SettingEnabled, value, err)
		return nil
	}
	return a.setEnabled(ctx, enabled)
}

func (a *App) setEnabled(ctx context.Context, enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if enabled == a.enabled {
		return nil
	}

	if enabled {
		if err := a.camera.Open(); err != nil {
			return fmt.Errorf("open camera: %w", err)
		}
		a.sessionID = uuid.NewString()
		a.engine.Poll(ctx)
		logger.Infof(ctx, "recognition enabled, session %s", a.sessionID)
	} else {
		a.engine.Pause(ctx)
		if err := a.camera.Close(); err != nil {
			logger.Warnf(ctx, "close camera: %v", err)
		}
		logger.Infof(ctx, "recognition disabled")
	}
	a.enabled = enabled
	return nil
}

// IsEnabled returns whether recognition is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SessionID identifies the current enabled period.
func (a *App) SessionID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionID
}

// LastSign returns the most recently recognized sign.
func (a *App) LastSign() (engine.Sign, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastSign == nil {
		return engine.Sign{}, false
	}
	return *a.lastSign, true
}

// Preview returns the JPEG encoding of the latest processed camera frame.
func (a *App) Preview() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.preview
}

// Vocabulary returns the recognizable labels.
func (a *App) Vocabulary() classifier.Vocabulary {
	return a.engine.Vocabulary()
}

// Engine returns the recognition engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Store returns the application store, which may be nil.
func (a *App) Store() *store.Store {
	return a.store
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// OnSign registers fn to receive signs after they have been recorded.
func (a *App) OnSign(fn func(engine.Sign)) callback.Handle {
	return a.signs.Add(fn)
}

// RemoveCallback unregisters a handle returned by OnSign.
func (a *App) RemoveCallback(h callback.Handle) bool {
	return a.signs.Remove(h)
}

// Run captures frames and drives recognition until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.engine.Run(ctx)
	})
	g.Go(func() error {
		return a.captureLoop(ctx)
	})
	return g.Wait()
}

// Close stops recognition and releases the camera, detector and classifier.
func (a *App) Close(ctx context.Context) error {
	err := a.setEnabled(ctx, false)
	a.actions.Wait()
	return errors.Join(err, a.engine.Close(ctx))
}

func (a *App) captureLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(a.config.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}
			a.captureFrame(ctx)
		}
	}
}

func (a *App) captureFrame(ctx context.Context) {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		logger.Debugf(ctx, "read frame: %v", err)
		return
	}
	defer frame.Close()

	switch err := a.engine.SubmitFrame(ctx, frame.Mat, frame.TimestampMs); {
	case err == nil:
	case errors.Is(err, engine.ErrPaused), errors.Is(err, detector.ErrQueueFull):
		logger.Tracef(ctx, "frame %d skipped: %v", frame.TimestampMs, err)
	default:
		logger.Warnf(ctx, "submit frame: %v", err)
	}
}

func (a *App) onFrame(ctx context.Context, p engine.Paired) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, p.Image)
	if err != nil {
		logger.Debugf(ctx, "encode preview: %v", err)
		return
	}
	defer buf.Close()
	jpeg := append([]byte(nil), buf.GetBytes()...)

	a.mu.Lock()
	a.preview = jpeg
	a.mu.Unlock()
}

func (a *App) onSign(ctx context.Context, s engine.Sign) {
	a.mu.Lock()
	a.lastSign = &s
	session := a.sessionID
	a.mu.Unlock()

	logger.Infof(ctx, "recognized %q (%.2f)", s.Label, s.Probability)

	if a.store != nil {
		rec := &store.Recognition{
			SessionID:   session,
			Label:       s.Label,
			Probability: s.Probability,
			TimestampMs: s.TimestampMs,
		}
		if err := a.store.Recognitions().Create(rec); err != nil {
			logger.Errorf(ctx, "record recognition: %v", err)
		}
		a.runBinding(ctx, s)
	}

	a.signs.Dispatch(s)
}

// runBinding executes the plugin action bound to the sign, if any, in the
// background.
func (a *App) runBinding(ctx context.Context, s engine.Sign) {
	b, err := a.store.Bindings().GetBySign(s.Label)
	if err != nil {
		logger.Errorf(ctx, "look up binding for %q: %v", s.Label, err)
		return
	}
	if b == nil || !b.Enabled {
		return
	}

	plug, err := a.pluginMgr.Lookup(b.PluginName, b.ActionName)
	if err != nil {
		logger.Warnf(ctx, "binding %s: %v", b.ID, err)
		return
	}

	req := &plugin.Request{
		Action:      b.ActionName,
		Sign:        s.Label,
		Probability: s.Probability,
		Config:      b.Config,
	}

	a.actions.Add(1)
	go func() {
		defer a.actions.Done()
		resp, err := a.pluginExec.Execute(ctx, plug, req)
		switch {
		case err != nil:
			logger.Errorf(ctx, "plugin %s/%s: %v", b.PluginName, b.ActionName, err)
		case !resp.Success:
			logger.Warnf(ctx, "plugin %s/%s failed: %s", b.PluginName, b.ActionName, resp.Error)
		default:
			logger.Debugf(ctx, "plugin %s/%s done", b.PluginName, b.ActionName)
		}
	}()
}
