// Package tensor flattens a window of landmark frames into the fixed-shape
// input expected by the sign classifier.
package tensor

import (
	"github.com/ayusman/mudra/internal/detector"
)

// Assembler converts landmark frames into a tensor of shape
// (RequiredFrames, PointsPerHand, 2), flattened row-major.
type Assembler struct {
	// RequiredFrames is the number of frames the classifier consumes.
	RequiredFrames int

	// PointsPerHand is the exact landmark count every used hand must have.
	PointsPerHand int

	// Interpolate enables padding of short windows with the middle frame.
	Interpolate bool
}

// New returns an Assembler for the given shape.
func New(requiredFrames, pointsPerHand int, interpolate bool) *Assembler {
	return &Assembler{
		RequiredFrames: requiredFrames,
		PointsPerHand:  pointsPerHand,
		Interpolate:    interpolate,
	}
}

// Size is the length of every tensor the Assembler produces.
func (a *Assembler) Size() int {
	return a.RequiredFrames * a.blockSize()
}

func (a *Assembler) blockSize() int {
	return a.PointsPerHand * 2
}

// Assemble picks the padded or complete path depending on the number of
// frames. It returns false when no tensor can be produced this cycle:
// too few frames, or a frame without a usable hand.
func (a *Assembler) Assemble(frames []detector.LandmarkFrame) ([]float32, bool) {
	k := len(frames)
	switch {
	case k >= a.RequiredFrames && k > 0:
		return a.Complete(frames)
	case a.Interpolate && k > 0:
		return a.Padded(frames)
	default:
		return nil, false
	}
}

// Padded emits every frame and then repeats the middle frame (index
// len/2) until RequiredFrames blocks are written. It requires
// 0 < len(frames) < RequiredFrames.
func (a *Assembler) Padded(frames []detector.LandmarkFrame) ([]float32, bool) {
	k := len(frames)
	if k == 0 || k >= a.RequiredFrames {
		return nil, false
	}

	middle, ok := frames[k/2].PrimaryHand(a.PointsPerHand)
	if !ok {
		return nil, false
	}

	out := make([]float32, 0, a.Size())
	out, ok = a.appendFrames(out, frames)
	if !ok {
		return nil, false
	}

	block := a.appendHand(make([]float32, 0, a.blockSize()), middle)
	for i := k; i < a.RequiredFrames; i++ {
		out = append(out, block...)
	}
	return out, true
}

// Complete emits the last RequiredFrames frames, dropping older ones.
func (a *Assembler) Complete(frames []detector.LandmarkFrame) ([]float32, bool) {
	if a.RequiredFrames <= 0 || len(frames) < a.RequiredFrames {
		return nil, false
	}

	out := make([]float32, 0, a.Size())
	out, ok := a.appendFrames(out, frames[len(frames)-a.RequiredFrames:])
	if !ok {
		return nil, false
	}
	return out, true
}

func (a *Assembler) appendFrames(out []float32, frames []detector.LandmarkFrame) ([]float32, bool) {
	for _, f := range frames {
		hand, ok := f.PrimaryHand(a.PointsPerHand)
		if !ok {
			return nil, false
		}
		out = a.appendHand(out, hand)
	}
	return out, true
}

func (a *Assembler) appendHand(out []float32, hand detector.HandLandmarks) []float32 {
	for _, p := range hand.Points {
		out = append(out, float32(p.X), float32(p.Y))
	}
	return out
}
