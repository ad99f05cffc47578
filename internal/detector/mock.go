package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	hands  []HandLandmarks
	err    error
	calls  int
	closed bool
	gate   chan struct{}
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Hold makes Detect block after counting the call until release is
// called.
func (m *MockDetector) Hold() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.gate = nil
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	hands := make([]HandLandmarks, len(m.hands))
	for i, h := range m.hands {
		hands[i] = h.Clone()
	}
	return hands, nil
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// UniformHand returns a hand whose NumLandmarks points all sit at (x, y).
func UniformHand(x, y float64) HandLandmarks {
	points := make([]Point3D, NumLandmarks)
	for i := range points {
		points[i] = Point3D{X: x, Y: y}
	}
	return HandLandmarks{Points: points, Handedness: "Right", Score: 0.95}
}

// ThumbsUpLandmarks returns a preset hand with the thumb extended upward
// and the other fingers curled.
func ThumbsUpLandmarks() HandLandmarks {
	return presetHand([NumLandmarks]Point3D{
		Wrist: {X: 0.5, Y: 0.8},

		ThumbCMC: {X: 0.55, Y: 0.75},
		ThumbMCP: {X: 0.58, Y: 0.65},
		ThumbIP:  {X: 0.58, Y: 0.50},
		ThumbTip: {X: 0.58, Y: 0.35},

		IndexMCP: {X: 0.55, Y: 0.70, Z: -0.02},
		IndexPIP: {X: 0.55, Y: 0.68, Z: -0.05},
		IndexDIP: {X: 0.52, Y: 0.70, Z: -0.04},
		IndexTip: {X: 0.50, Y: 0.72, Z: -0.02},

		MiddleMCP: {X: 0.50, Y: 0.68, Z: -0.02},
		MiddlePIP: {X: 0.50, Y: 0.66, Z: -0.05},
		MiddleDIP: {X: 0.47, Y: 0.68, Z: -0.04},
		MiddleTip: {X: 0.45, Y: 0.70, Z: -0.02},

		RingMCP: {X: 0.45, Y: 0.70, Z: -0.02},
		RingPIP: {X: 0.45, Y: 0.68, Z: -0.05},
		RingDIP: {X: 0.42, Y: 0.70, Z: -0.04},
		RingTip: {X: 0.40, Y: 0.72, Z: -0.02},

		PinkyMCP: {X: 0.40, Y: 0.72, Z: -0.02},
		PinkyPIP: {X: 0.40, Y: 0.70, Z: -0.05},
		PinkyDIP: {X: 0.37, Y: 0.72, Z: -0.04},
		PinkyTip: {X: 0.35, Y: 0.74, Z: -0.02},
	})
}

// OpenPalmLandmarks returns a preset hand with all fingers extended.
func OpenPalmLandmarks() HandLandmarks {
	return presetHand([NumLandmarks]Point3D{
		Wrist: {X: 0.5, Y: 0.8},

		ThumbCMC: {X: 0.55, Y: 0.75, Z: 0.02},
		ThumbMCP: {X: 0.62, Y: 0.70, Z: 0.03},
		ThumbIP:  {X: 0.68, Y: 0.65, Z: 0.03},
		ThumbTip: {X: 0.73, Y: 0.60, Z: 0.03},

		IndexMCP: {X: 0.55, Y: 0.68},
		IndexPIP: {X: 0.57, Y: 0.55},
		IndexDIP: {X: 0.58, Y: 0.45},
		IndexTip: {X: 0.58, Y: 0.35},

		MiddleMCP: {X: 0.50, Y: 0.66},
		MiddlePIP: {X: 0.50, Y: 0.52},
		MiddleDIP: {X: 0.50, Y: 0.40},
		MiddleTip: {X: 0.50, Y: 0.28},

		RingMCP: {X: 0.45, Y: 0.68},
		RingPIP: {X: 0.43, Y: 0.55},
		RingDIP: {X: 0.42, Y: 0.45},
		RingTip: {X: 0.42, Y: 0.35},

		PinkyMCP: {X: 0.40, Y: 0.70},
		PinkyPIP: {X: 0.37, Y: 0.60},
		PinkyDIP: {X: 0.35, Y: 0.50},
		PinkyTip: {X: 0.34, Y: 0.42},
	})
}

func presetHand(points [NumLandmarks]Point3D) HandLandmarks {
	return HandLandmarks{
		Points:     points[:],
		Handedness: "Right",
		Score:      0.95,
	}
}
