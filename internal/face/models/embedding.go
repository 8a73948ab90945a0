package models

import (
	"fmt"
	"math"
)

const (
	// Dimension is the fixed embedding length produced by the descriptor
	// capability. Anything else is rejected at the store boundary.
	Dimension = 128

	// NormEpsilon bounds the allowed deviation from unit L2 norm after
	// normalization.
	NormEpsilon = 1e-4
)

// Embedding is the canonical representation of a face descriptor: a
// fixed-length numeric vector. JSON strings or other encodings are rejected
// before they reach a store.
type Embedding []float64

// Validate rejects degenerate vectors: wrong dimension, NaN/Inf components,
// or the zero vector. It wraps ErrInvalidEmbedding in every failure case.
func (e Embedding) Validate() error {
	if len(e) != Dimension {
		return fmt.Errorf("%w: dimension %d, want %d", ErrInvalidEmbedding, len(e), Dimension)
	}
	allZero := true
	for i, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite component at index %d", ErrInvalidEmbedding, i)
		}
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		return fmt.Errorf("%w: zero vector", ErrInvalidEmbedding)
	}
	return nil
}

// Norm returns the L2 norm of the vector.
func (e Embedding) Norm() float64 {
	var sum float64
	for _, v := range e {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Normalized returns a unit-L2-norm copy of the embedding. The input must
// pass Validate first; a degenerate vector yields ErrInvalidEmbedding here
// too rather than a division by zero.
func (e Embedding) Normalized() (Embedding, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	norm := e.Norm()
	out := make(Embedding, len(e))
	for i, v := range e {
		out[i] = v / norm
	}
	return out, nil
}

// IsUnit reports whether the vector already has unit L2 norm within
// NormEpsilon.
func (e Embedding) IsUnit() bool {
	return math.Abs(e.Norm()-1) <= NormEpsilon
}

// Clone returns an independent copy so stores never alias caller memory.
func (e Embedding) Clone() Embedding {
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}
