// Command keyboard is a plugin that types recognized signs and sends
// keyboard shortcuts on macOS.
package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ayusman/mudra/internal/plugin"
)

// keystrokeConfig is the binding configuration of keystroke and shortcut
// actions.
type keystrokeConfig struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

// typeSignConfig is the binding configuration of the type-sign action.
type typeSignConfig struct {
	Suffix *string `json:"suffix"`
}

var modifierMap = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

func main() {
	plugin.Main(map[string]plugin.Handler{
		"keystroke": keystroke,
		"shortcut":  keystroke,
		"type-sign": typeSign,
	})
}

func keystroke(req *plugin.Request) error {
	var cfg keystrokeConfig
	if err := req.DecodeConfig(&cfg); err != nil {
		return err
	}
	if cfg.Key == "" {
		return errors.New("key is required")
	}
	return plugin.RunAppleScript(keystrokeScript(cfg.Key, cfg.Modifiers))
}

// typeSign types the recognized label followed by a suffix, a space
// unless configured otherwise.
func typeSign(req *plugin.Request) error {
	if req.Sign == "" {
		return errors.New("no sign in request")
	}
	cfg := typeSignConfig{}
	if err := req.DecodeConfig(&cfg); err != nil {
		return err
	}
	suffix := " "
	if cfg.Suffix != nil {
		suffix = *cfg.Suffix
	}
	return plugin.RunAppleScript(keystrokeScript(req.Sign+suffix, nil))
}

func keystrokeScript(text string, modifiers []string) string {
	script := `tell application "System Events" to keystroke ` + plugin.QuoteAppleScript(text)

	var using []string
	for _, mod := range modifiers {
		if m, ok := modifierMap[strings.ToLower(mod)]; ok {
			using = append(using, m)
		}
	}
	if len(using) == 0 {
		return script
	}
	return fmt.Sprintf("%s using {%s}", script, strings.Join(using, ", "))
}
