// Package config holds the runtime configuration of the recognizer.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ayusman/mudra/internal/detector"
)

// ErrInvalid is returned by Validate for out-of-range values.
var ErrInvalid = errors.New("invalid configuration")

// maxFileSize bounds configuration files read by Load.
const maxFileSize = 1 * 1024 * 1024

// Config is built once at startup and never mutated afterwards.
type Config struct {
	// Hand landmark detection.
	ModelAsset              string  `json:"model_asset"`
	HandDetectionConfidence float64 `json:"hand_detection_confidence"`
	HandTrackingConfidence  float64 `json:"hand_tracking_confidence"`
	HandPresenceConfidence  float64 `json:"hand_presence_confidence"`
	MaxHands                int     `json:"max_hands"`
	DetectorThreads         int     `json:"detector_threads"`

	// Sign classification.
	ClassifierModel     string   `json:"classifier_model"`
	VocabularyPath      string   `json:"vocabulary_path"`
	FramesPerPrediction int      `json:"frames_per_prediction"`
	PointsPerHand       int      `json:"points_per_hand"`
	WindowCapacity      int      `json:"window_capacity"`
	Interpolate         bool     `json:"interpolate"`
	ClassifierThreads   int      `json:"classifier_threads"`
	Threshold           float64  `json:"threshold"`
	FocusLabels         []string `json:"focus_labels,omitempty"`

	// Capture.
	CameraID    int  `json:"camera_id"`
	MirrorInput bool `json:"mirror_input"`
	FPS         int  `json:"fps"`

	// Application.
	DatabasePath string `json:"database_path"`
	PluginDir    string `json:"plugin_dir"`
	ListenAddr   string `json:"listen_addr"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		ModelAsset:              "hand_landmarker.task",
		HandDetectionConfidence: 0.5,
		HandTrackingConfidence:  0.5,
		HandPresenceConfidence:  0.5,
		MaxHands:                1,
		DetectorThreads:         1,

		ClassifierModel:     "model.onnx",
		VocabularyPath:      "signs.txt",
		FramesPerPrediction: 60,
		PointsPerHand:       detector.NumLandmarks,
		WindowCapacity:      60,
		ClassifierThreads:   4,

		MirrorInput: true,
		FPS:         30,

		DatabasePath: "mudra.db",
		PluginDir:    "plugins",
		ListenAddr:   ":8080",
	}
}

// Load reads a JSON configuration file. Fields omitted from the file keep
// their default values.
func Load(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"hand_detection_confidence": c.HandDetectionConfidence,
		"hand_tracking_confidence":  c.HandTrackingConfidence,
		"hand_presence_confidence":  c.HandPresenceConfidence,
		"threshold":                 c.Threshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be between 0 and 1, got %v", ErrInvalid, name, v)
		}
	}

	for name, v := range map[string]int{
		"max_hands":             c.MaxHands,
		"detector_threads":      c.DetectorThreads,
		"classifier_threads":    c.ClassifierThreads,
		"frames_per_prediction": c.FramesPerPrediction,
		"points_per_hand":       c.PointsPerHand,
		"window_capacity":       c.WindowCapacity,
		"fps":                   c.FPS,
	} {
		if v < 1 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, name, v)
		}
	}

	if c.CameraID < 0 {
		return fmt.Errorf("%w: camera_id must not be negative, got %d", ErrInvalid, c.CameraID)
	}
	if c.ClassifierModel == "" {
		return fmt.Errorf("%w: classifier_model is required", ErrInvalid)
	}
	if c.VocabularyPath == "" {
		return fmt.Errorf("%w: vocabulary_path is required", ErrInvalid)
	}
	return nil
}

// Detector returns the hand detector settings.
func (c Config) Detector() detector.Config {
	return detector.Config{
		ModelAsset:       c.ModelAsset,
		MaxHands:         c.MaxHands,
		MinDetectionConf: c.HandDetectionConfidence,
		MinTrackingConf:  c.HandTrackingConfidence,
		MinPresenceConf:  c.HandPresenceConfidence,
		Threads:          c.DetectorThreads,
	}
}
