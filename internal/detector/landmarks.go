// Package detector provides hand landmark types and the detectors that
// produce them.
package detector

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D is a landmark position. X and Y are normalized to [0,1] image
// coordinates; Z is relative depth and is not used for classification.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks is one detected hand.
type HandLandmarks struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"` // "Left" or "Right"
	Score      float64   `json:"score"`
}

// Clone returns a deep copy of h.
func (h HandLandmarks) Clone() HandLandmarks {
	h.Points = append([]Point3D(nil), h.Points...)
	return h
}

// LandmarkFrame is the detector output for one source image. Hands is
// empty when nothing was found.
type LandmarkFrame struct {
	TimestampMs int64           `json:"timestamp"`
	Hands       []HandLandmarks `json:"hands"`
}

// Clone returns a deep copy of f.
func (f LandmarkFrame) Clone() LandmarkFrame {
	if f.Hands == nil {
		return f
	}
	hands := make([]HandLandmarks, len(f.Hands))
	for i, h := range f.Hands {
		hands[i] = h.Clone()
	}
	f.Hands = hands
	return f
}

// HasHands reports whether at least one hand was detected.
func (f LandmarkFrame) HasHands() bool {
	return len(f.Hands) > 0
}

// PrimaryHand returns the first detected hand if it has exactly
// pointsPerHand points.
func (f LandmarkFrame) PrimaryHand(pointsPerHand int) (HandLandmarks, bool) {
	if len(f.Hands) == 0 || len(f.Hands[0].Points) != pointsPerHand {
		return HandLandmarks{}, false
	}
	return f.Hands[0], true
}
