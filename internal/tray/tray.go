// Package tray provides a system tray interface for switching sign
// recognition on and off.
package tray

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/getlantern/systray"

	"github.com/ayusman/mudra/internal/callback"
	"github.com/ayusman/mudra/internal/engine"
)

// Controller is the part of the application the tray drives.
type Controller interface {
	SetEnabled(ctx context.Context, enabled bool) error
	IsEnabled() bool
	OnSign(fn func(engine.Sign)) callback.Handle
	RemoveCallback(h callback.Handle) bool
}

// Tray represents the system tray application.
type Tray struct {
	ctrl       Controller
	onSettings func()
	onQuit     func()
	mu         sync.RWMutex

	menuToggle   *systray.MenuItem
	menuLastSign *systray.MenuItem
}

// New creates a Tray driving ctrl.
func New(ctrl Controller) *Tray {
	return &Tray{ctrl: ctrl}
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application. It blocks until Quit is
// clicked or ctx is done. systray requires it to run on the main thread.
func (t *Tray) Run(ctx context.Context) {
	handle := t.ctrl.OnSign(t.setLastSign)
	defer t.ctrl.RemoveCallback(handle)

	stop := context.AfterFunc(ctx, systray.Quit)
	defer stop()

	systray.Run(func() { t.onReady(ctx) }, func() {})
}

func (t *Tray) onReady(ctx context.Context) {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra Sign Recognition")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.ctrl.IsEnabled()), "Toggle sign recognition")
	systray.AddSeparator()
	t.menuLastSign = systray.AddMenuItem(lastSignTitle(engine.Sign{}, false), "Last recognized sign")
	t.menuLastSign.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle(ctx)
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (t *Tray) handleToggle(ctx context.Context) {
	enabled := !t.ctrl.IsEnabled()
	if err := t.ctrl.SetEnabled(ctx, enabled); err != nil {
		logger.Errorf(ctx, "toggle recognition: %v", err)
		return
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	t.menuToggle.SetTitle(toggleTitle(enabled))
}

func (t *Tray) handleSettings() {
	t.mu.RLock()
	fn := t.onSettings
	t.mu.RUnlock()

	if fn != nil {
		fn()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	fn := t.onQuit
	t.mu.RUnlock()

	if fn != nil {
		fn()
	}

	systray.Quit()
}

func (t *Tray) setLastSign(s engine.Sign) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLastSign != nil {
		t.menuLastSign.SetTitle(lastSignTitle(s, true))
	}
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func lastSignTitle(s engine.Sign, ok bool) string {
	if !ok {
		return "Last: none"
	}
	return fmt.Sprintf("Last: %s (%.0f%%)", s.Label, s.Probability*100)
}
