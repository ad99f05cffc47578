package classifier

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/xsync"

	"github.com/ayusman/mudra/internal/filter"
)

// Recognizer classifies tensors and reduces the output to a decision.
// Calls are serialized so a single network is never run concurrently.
type Recognizer struct {
	locker     xsync.Mutex
	classifier Classifier
	vocabulary Vocabulary
	chain      filter.Chain
}

// NewRecognizer creates a Recognizer with the default filter chain.
func NewRecognizer(c Classifier, vocabulary Vocabulary) *Recognizer {
	return &Recognizer{
		classifier: c,
		vocabulary: vocabulary,
		chain:      filter.DefaultChain(),
	}
}

// Vocabulary returns the labels the recognizer can report.
func (r *Recognizer) Vocabulary() Vocabulary {
	return r.vocabulary
}

// SetFilters replaces the filter chain used for subsequent calls.
func (r *Recognizer) SetFilters(ctx context.Context, chain filter.Chain) {
	r.locker.Do(ctx, func() {
		r.chain = append(filter.Chain(nil), chain...)
	})
}

// Filters returns a copy of the current filter chain.
func (r *Recognizer) Filters(ctx context.Context) filter.Chain {
	return xsync.DoR1(ctx, &r.locker, func() filter.Chain {
		return append(filter.Chain(nil), r.chain...)
	})
}

// Recognize classifies tensor. The boolean result is false when the
// filter chain left no candidate.
func (r *Recognizer) Recognize(ctx context.Context, tensor []float32) (filter.Decision, bool, error) {
	var (
		decision filter.Decision
		ok       bool
		err      error
	)
	r.locker.Do(ctx, func() {
		decision, ok, err = r.recognize(ctx, tensor)
	})
	return decision, ok, err
}

func (r *Recognizer) recognize(ctx context.Context, tensor []float32) (filter.Decision, bool, error) {
	probs, err := r.classifier.Classify(tensor)
	if err != nil {
		return filter.Decision{}, false, fmt.Errorf("classify: %w", err)
	}

	unit := filter.Unit{
		Labels:        r.vocabulary,
		Probabilities: make([]float64, len(probs)),
	}
	for i, p := range probs {
		unit.Probabilities[i] = float64(p)
	}

	unit, err = r.chain.Apply(unit)
	if err != nil {
		return filter.Decision{}, false, err
	}

	decision, ok := filter.Decide(unit)
	if ok {
		logger.Tracef(ctx, "recognized %q (%.3f)", decision.Label, decision.Probability)
	}
	return decision, ok, nil
}

// Close releases the underlying classifier.
func (r *Recognizer) Close(ctx context.Context) error {
	return xsync.DoR1(ctx, &r.locker, func() error {
		return r.classifier.Close()
	})
}
