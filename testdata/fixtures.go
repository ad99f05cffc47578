// Package testdata provides fixtures shared by integration tests.
package testdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// Vocabulary is the label set written by WriteVocabulary.
var Vocabulary = []string{"hello", "thanks", "please"}

// Frames returns n synthetic BGR frames of the given size, each a flat
// gray level. The caller closes them, e.g. with CloseAll.
func Frames(n, width, height int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		level := float64((i * 37) % 256)
		mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(level, level, level, 0), height, width, gocv.MatTypeCV8UC3)
		frames[i] = &mat
	}
	return frames
}

// CloseAll releases frames.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

// WriteVocabulary writes Vocabulary to dir/signs.txt and returns its path.
func WriteVocabulary(dir string) (string, error) {
	path := filepath.Join(dir, "signs.txt")
	content := strings.Join(Vocabulary, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write vocabulary: %w", err)
	}
	return path, nil
}

// WriteRecordingPlugin installs a shell plugin named name under pluginDir.
// Every request it receives is appended to the file returned as second
// value, one JSON object per line.
func WriteRecordingPlugin(pluginDir, name string, actions ...string) (string, string, error) {
	dir := filepath.Join(pluginDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}

	manifest, err := json.Marshal(map[string]any{
		"name":       name,
		"version":    "1.0.0",
		"executable": "run.sh",
		"actions":    actions,
	})
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), manifest, 0o644); err != nil {
		return "", "", err
	}

	script := "#!/bin/sh\ncat >> requests.jsonl\necho >> requests.jsonl\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0o755); err != nil {
		return "", "", err
	}
	return dir, filepath.Join(dir, "requests.jsonl"), nil
}
