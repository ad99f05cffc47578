package plugin

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
)

var (
	// ErrPluginNotFound is returned when a requested plugin cannot be found.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrActionNotFound is returned when a plugin does not offer an action.
	ErrActionNotFound = errors.New("action not found")
)

// Manager keeps the plugins discovered in one directory.
type Manager struct {
	pluginDir string

	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// NewManager creates a Manager for pluginDir. Nothing is loaded until
// Discover is called.
func NewManager(pluginDir string) *Manager {
	return &Manager{
		pluginDir: pluginDir,
		plugins:   make(map[string]*Plugin),
	}
}

// Discover replaces the known plugins with the ones currently installed.
// Each subdirectory holding a valid manifest and executable is a plugin;
// anything else is skipped with a warning. A missing plugin directory
// yields no plugins.
func (m *Manager) Discover(ctx context.Context) error {
	entries, err := os.ReadDir(m.pluginDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		entries = nil
	case err != nil:
		return fmt.Errorf("read plugin directory: %w", err)
	}

	found := make(map[string]*Plugin, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.pluginDir, entry.Name())
		p, err := load(dir)
		switch {
		case errors.Is(err, os.ErrNotExist) && p == nil:
			continue
		case err != nil:
			logger.Warnf(ctx, "skipping plugin in %s: %v", dir, err)
			continue
		}
		if prev, ok := found[p.Manifest.Name]; ok {
			logger.Warnf(ctx, "plugin %q in %s shadows %s", p.Manifest.Name, dir, prev.Path)
		}
		found[p.Manifest.Name] = p
		logger.Debugf(ctx, "plugin %s %s: %v", p.Manifest.Name, p.Manifest.Version, p.Manifest.Actions)
	}

	m.mu.Lock()
	m.plugins = found
	m.mu.Unlock()
	return nil
}

// load reads the plugin in dir. A directory without a manifest returns
// (nil, os.ErrNotExist).
func load(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return &Plugin{Path: dir}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := manifest.Validate(); err != nil {
		return &Plugin{Path: dir}, err
	}

	executable := filepath.Join(dir, manifest.Executable)
	info, err := os.Stat(executable)
	if err != nil {
		return &Plugin{Path: dir}, fmt.Errorf("executable: %w", err)
	}
	if info.IsDir() {
		return &Plugin{Path: dir}, fmt.Errorf("executable %s is a directory", executable)
	}

	return &Plugin{
		Manifest:   manifest,
		Path:       dir,
		Executable: executable,
	}, nil
}

// Get returns a plugin by name.
// Returns ErrPluginNotFound if the plugin does not exist.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return p, nil
}

// Lookup returns the plugin name if it offers action.
func (m *Manager) Lookup(name, action string) (*Plugin, error) {
	p, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	if !p.HasAction(action) {
		return nil, fmt.Errorf("%w: %s/%s", ErrActionNotFound, name, action)
	}
	return p, nil
}

// List returns the discovered plugins ordered by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		plugins = append(plugins, p)
	}
	m.mu.RUnlock()

	slices.SortFunc(plugins, func(a, b *Plugin) int {
		return cmp.Compare(a.Manifest.Name, b.Manifest.Name)
	})
	return plugins
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}
