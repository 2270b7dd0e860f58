package trainer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogisticFitterSeparableData(t *testing.T) {
	// Column 0 rises with the label, column 1 falls with it: the fitted
	// signs must reflect that.
	features := [][]float64{
		{1, 9}, {2, 8}, {1.5, 9.5}, {2.5, 8.5},
		{8, 2}, {9, 1}, {8.5, 1.5}, {9.5, 2.5},
	}
	labels := []int{0, 0, 0, 0, 1, 1, 1, 1}

	coeffs, err := NewLogisticFitter().Fit(features, labels)
	require.NoError(t, err)
	require.Len(t, coeffs, 2)
	assert.Positive(t, coeffs[0])
	assert.Negative(t, coeffs[1])
}

func TestLogisticFitterDeterministic(t *testing.T) {
	features := [][]float64{
		{0, 1}, {1, 0}, {2, 3}, {3, 2}, {4, 5}, {5, 4},
	}
	labels := []int{0, 0, 0, 1, 1, 1}

	first, err := NewLogisticFitter().Fit(features, labels)
	require.NoError(t, err)
	second, err := NewLogisticFitter().Fit(features, labels)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLogisticFitterConstantColumn(t *testing.T) {
	// A constant column must not blow up standardization; it just fits a
	// near-zero coefficient.
	features := [][]float64{
		{1, 7}, {2, 7}, {8, 7}, {9, 7},
	}
	labels := []int{0, 0, 1, 1}

	coeffs, err := NewLogisticFitter().Fit(features, labels)
	require.NoError(t, err)
	require.Len(t, coeffs, 2)
	assert.Positive(t, coeffs[0])
	assert.InDelta(t, 0, coeffs[1], 1e-9)
}

func TestLogisticFitterL2ShrinksCoefficients(t *testing.T) {
	features := [][]float64{
		{1, 9}, {2, 8}, {1.5, 9.5}, {2.5, 8.5},
		{8, 2}, {9, 1}, {8.5, 1.5}, {9.5, 2.5},
	}
	labels := []int{0, 0, 0, 0, 1, 1, 1, 1}

	plain := &LogisticFitter{Iterations: 2000, LearningRate: 0.1, L2: 0}
	unpenalized, err := plain.Fit(features, labels)
	require.NoError(t, err)

	ridge := &LogisticFitter{Iterations: 2000, LearningRate: 0.1, L2: 0.5}
	penalized, err := ridge.Fit(features, labels)
	require.NoError(t, err)

	// The penalty pulls coefficients toward zero without flipping signs.
	for j := range unpenalized {
		assert.Less(t, math.Abs(penalized[j]), math.Abs(unpenalized[j]))
		assert.Equal(t, math.Signbit(unpenalized[j]), math.Signbit(penalized[j]))
	}
}

func TestLogisticFitterInputValidation(t *testing.T) {
	f := NewLogisticFitter()

	_, err := f.Fit(nil, nil)
	assert.Error(t, err)

	_, err = f.Fit([][]float64{{1, 2}}, []int{0, 1})
	assert.Error(t, err)

	_, err = f.Fit([][]float64{{1, 2}, {1}}, []int{0, 1})
	assert.Error(t, err)

	_, err = f.Fit([][]float64{{}}, []int{0})
	assert.Error(t, err)
}
