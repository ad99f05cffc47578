package filter

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Chain applies filters in order, each feeding the next.
type Chain []Filter

// DefaultChain reduces classifier output to its best candidate.
func DefaultChain() Chain {
	return Chain{BestOf{}}
}

// Apply runs every filter of the chain over u.
func (c Chain) Apply(u Unit) (Unit, error) {
	for i, f := range c {
		var err error
		u, err = f.Apply(u)
		if err != nil {
			return Unit{}, fmt.Errorf("filter %d (%T): %w", i, f, err)
		}
	}
	return u, nil
}

// Decision is the final recognized sign.
type Decision struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Decide picks the sign to report from the chain output: the only entry,
// or the first most probable one when several remain. It returns false
// when nothing remains or the unit is malformed.
func Decide(u Unit) (Decision, bool) {
	if u.Validate() != nil || u.Len() == 0 {
		return Decision{}, false
	}
	i := 0
	if u.Len() > 1 {
		i = floats.MaxIdx(u.Probabilities)
	}
	return Decision{Label: u.Labels[i], Probability: u.Probabilities[i]}, true
}
