package models

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validVector() Embedding {
	vec := make(Embedding, Dimension)
	for i := range vec {
		vec[i] = float64(i) - 42.5
	}
	return vec
}

func TestEmbeddingValidate(t *testing.T) {
	t.Run("valid vector passes", func(t *testing.T) {
		assert.NoError(t, validVector().Validate())
	})

	t.Run("wrong dimension rejected", func(t *testing.T) {
		err := Embedding{1, 2, 3}.Validate()
		assert.ErrorIs(t, err, ErrInvalidEmbedding)
	})

	t.Run("NaN component rejected", func(t *testing.T) {
		vec := validVector()
		vec[7] = math.NaN()
		assert.ErrorIs(t, vec.Validate(), ErrInvalidEmbedding)
	})

	t.Run("infinite component rejected", func(t *testing.T) {
		vec := validVector()
		vec[0] = math.Inf(-1)
		assert.ErrorIs(t, vec.Validate(), ErrInvalidEmbedding)
	})

	t.Run("zero vector rejected", func(t *testing.T) {
		assert.ErrorIs(t, make(Embedding, Dimension).Validate(), ErrInvalidEmbedding)
	})
}

func TestEmbeddingNormalized(t *testing.T) {
	t.Run("any nonzero finite vector normalizes to unit norm", func(t *testing.T) {
		rng := rand.New(rand.NewSource(3))
		for i := 0; i < 25; i++ {
			vec := make(Embedding, Dimension)
			for j := range vec {
				vec[j] = rng.NormFloat64() * 100
			}
			out, err := vec.Normalized()
			require.NoError(t, err)
			assert.InDelta(t, 1.0, out.Norm(), NormEpsilon)
			assert.True(t, out.IsUnit())
		}
	})

	t.Run("normalization does not mutate the input", func(t *testing.T) {
		vec := validVector()
		before := vec.Clone()
		_, err := vec.Normalized()
		require.NoError(t, err)
		assert.Equal(t, before, vec)
	})

	t.Run("degenerate input is rejected before division", func(t *testing.T) {
		_, err := make(Embedding, Dimension).Normalized()
		assert.ErrorIs(t, err, ErrInvalidEmbedding)
	})
}
