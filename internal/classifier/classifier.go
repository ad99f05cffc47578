// Package classifier runs the sign classification network and turns its
// output into a filtered decision.
package classifier

import "errors"

// ErrModelNotLoaded is returned when the classification network is
// missing, unreadable or already closed.
var ErrModelNotLoaded = errors.New("classifier model not loaded")

// Classifier maps an input tensor to one probability per vocabulary label.
// Implementations are not required to be safe for concurrent use.
type Classifier interface {
	// Classify runs the network on tensor.
	Classify(tensor []float32) ([]float32, error)

	// Close releases the network.
	Close() error
}
