// Package filter narrows classifier output to a final sign decision.
package filter

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidArgument is returned when a Unit's labels and probabilities
// have different lengths.
var ErrInvalidArgument = errors.New("invalid argument")

// Unit is a set of candidate labels with their parallel probabilities.
type Unit struct {
	Labels        []string  `json:"labels"`
	Probabilities []float64 `json:"probabilities"`
}

// Len returns the number of candidates.
func (u Unit) Len() int {
	return len(u.Labels)
}

// Validate checks the labels/probabilities length invariant.
func (u Unit) Validate() error {
	if len(u.Labels) != len(u.Probabilities) {
		return fmt.Errorf("%w: %d labels, %d probabilities",
			ErrInvalidArgument, len(u.Labels), len(u.Probabilities))
	}
	return nil
}

// Filter transforms a Unit. Implementations must return a valid Unit for
// valid input and fail with ErrInvalidArgument otherwise.
type Filter interface {
	Apply(Unit) (Unit, error)
}

// BestOf keeps the single most probable candidate. Ties go to the first.
type BestOf struct{}

var _ Filter = BestOf{}

// Apply implements Filter.
func (BestOf) Apply(u Unit) (Unit, error) {
	if err := u.Validate(); err != nil {
		return Unit{}, err
	}
	if u.Len() == 0 {
		return u, nil
	}
	i := floats.MaxIdx(u.Probabilities)
	return Unit{
		Labels:        []string{u.Labels[i]},
		Probabilities: []float64{u.Probabilities[i]},
	}, nil
}

// Threshold keeps candidates whose probability is strictly greater than
// Min, in their original order.
type Threshold struct {
	Min float64
}

var _ Filter = Threshold{}

// Apply implements Filter.
func (f Threshold) Apply(u Unit) (Unit, error) {
	return keep(u, func(_ string, p float64) bool { return p > f.Min })
}

// FocusSublist keeps only candidates whose label is in the focus set, in
// their original order.
type FocusSublist struct {
	labels map[string]struct{}
}

var _ Filter = (*FocusSublist)(nil)

// NewFocusSublist builds a FocusSublist for the given labels.
func NewFocusSublist(labels ...string) *FocusSublist {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return &FocusSublist{labels: set}
}

// Apply implements Filter.
func (f *FocusSublist) Apply(u Unit) (Unit, error) {
	return keep(u, func(label string, _ float64) bool {
		_, ok := f.labels[label]
		return ok
	})
}

func keep(u Unit, pred func(string, float64) bool) (Unit, error) {
	if err := u.Validate(); err != nil {
		return Unit{}, err
	}
	if u.Len() == 0 {
		return u, nil
	}
	out := Unit{
		Labels:        make([]string, 0, u.Len()),
		Probabilities: make([]float64, 0, u.Len()),
	}
	for i, label := range u.Labels {
		if pred(label, u.Probabilities[i]) {
			out.Labels = append(out.Labels, label)
			out.Probabilities = append(out.Probabilities, u.Probabilities[i])
		}
	}
	return out, nil
}
