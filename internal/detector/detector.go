package detector

import "gocv.io/x/gocv"

// Detector returns the hands visible in a frame. No hands is an empty
// result, not an error.
type Detector interface {
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)
	Close() error
}

// Config is handed to the landmarker service. Confidence values are in
// [0, 1].
type Config struct {
	ModelAsset       string
	MaxHands         int
	MinDetectionConf float64
	MinTrackingConf  float64
	MinPresenceConf  float64
	Threads          int
}

// DefaultConfig tracks a single hand.
func DefaultConfig() Config {
	return Config{
		ModelAsset:       "hand_landmarker.task",
		MaxHands:         1,
		MinDetectionConf: 0.5,
		MinTrackingConf:  0.5,
		MinPresenceConf:  0.5,
		Threads:          1,
	}
}
