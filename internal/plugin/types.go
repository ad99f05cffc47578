// Package plugin discovers and runs the external programs bound to
// recognized signs.
//
// A plugin is a directory holding a plugin.json manifest and an
// executable. For every triggered binding the executable is started in
// its directory, receives one Request as JSON on stdin and answers with
// one Response as JSON on stdout.
package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
)

// ManifestFile is the name of the manifest inside a plugin directory.
const ManifestFile = "plugin.json"

// ErrInvalidManifest is returned for manifests that cannot describe a
// runnable plugin.
var ErrInvalidManifest = errors.New("invalid plugin manifest")

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Validate checks that the manifest names the plugin, a relative
// executable inside the plugin directory and at least one action.
func (m Manifest) Validate() error {
	switch {
	case m.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidManifest)
	case m.Executable == "":
		return fmt.Errorf("%w: %s: missing executable", ErrInvalidManifest, m.Name)
	case filepath.IsAbs(m.Executable) || !filepath.IsLocal(m.Executable):
		return fmt.Errorf("%w: %s: executable %q escapes the plugin directory", ErrInvalidManifest, m.Name, m.Executable)
	case len(m.Actions) == 0:
		return fmt.Errorf("%w: %s: no actions", ErrInvalidManifest, m.Name)
	}
	return nil
}

// Request is sent to a plugin when a bound sign is recognized. Config is
// the binding's configuration.
type Request struct {
	Action      string          `json:"action"`
	Sign        string          `json:"sign"`
	Probability float64         `json:"probability,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// DecodeConfig unmarshals the binding configuration into v. An empty
// configuration leaves v untouched.
func (r *Request) DecodeConfig(v any) error {
	if len(r.Config) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Config, v); err != nil {
		return fmt.Errorf("decode %s config: %w", r.Action, err)
	}
	return nil
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// HasAction reports whether the plugin declares action in its manifest.
func (p *Plugin) HasAction(action string) bool {
	return slices.Contains(p.Manifest.Actions, action)
}
