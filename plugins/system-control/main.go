// Command system-control is a plugin that adjusts volume, brightness and
// media playback on macOS when a bound sign is recognized.
package main

import (
	"strconv"

	"github.com/ayusman/mudra/internal/plugin"
)

// scripts maps each action to the AppleScript performing it.
var scripts = map[string]string{
	"volume-up":       `set volume output volume ((output volume of (get volume settings)) + 10)`,
	"volume-down":     `set volume output volume ((output volume of (get volume settings)) - 10)`,
	"volume-mute":     `set volume output muted (not (output muted of (get volume settings)))`,
	"brightness-up":   keyCode(144),
	"brightness-down": keyCode(145),
	// Media keys F8, F9 and F7.
	"media-play-pause": keyCode(100),
	"media-next":       keyCode(101),
	"media-prev":       keyCode(98),
}

func keyCode(code int) string {
	return `tell application "System Events" to key code ` + strconv.Itoa(code)
}

func handlers() map[string]plugin.Handler {
	hs := make(map[string]plugin.Handler, len(scripts))
	for action, script := range scripts {
		hs[action] = func(*plugin.Request) error {
			return plugin.RunAppleScript(script)
		}
	}
	return hs
}

func main() {
	plugin.Main(handlers())
}
