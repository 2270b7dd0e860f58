package trainer

import (
	"math"

	"github.com/rotisserie/eris"
)

// Fitter is a pluggable coefficient-fitting strategy. Implementations must
// be deterministic: the same inputs always produce the same coefficients.
type Fitter interface {
	Fit(features [][]float64, labels []int) ([]float64, error)
}

// LogisticFitter fits a logistic regression by full-batch gradient descent
// on standardized features. No randomness: weights start at zero and the
// iteration count and learning rate are fixed, so retraining on identical
// data reproduces identical coefficients. L2 penalizes coefficient magnitude
// (the intercept is exempt); zero disables regularization.
type LogisticFitter struct {
	Iterations   int
	LearningRate float64
	L2           float64
}

// NewLogisticFitter returns a fitter with the standard training schedule.
func NewLogisticFitter() *LogisticFitter {
	return &LogisticFitter{Iterations: 2000, LearningRate: 0.1, L2: 0.001}
}

// Fit returns one coefficient per feature column, rescaled back into raw
// feature units so they apply directly to unstandardized vectors. The
// intercept is fitted but dropped; scoring is relative, so a constant shift
// common to every cell carries no information.
func (f *LogisticFitter) Fit(features [][]float64, labels []int) ([]float64, error) {
	n := len(features)
	if n == 0 {
		return nil, eris.New("trainer: no training rows")
	}
	if len(labels) != n {
		return nil, eris.Errorf("trainer: %d rows but %d labels", n, len(labels))
	}
	d := len(features[0])
	if d == 0 {
		return nil, eris.New("trainer: no feature columns")
	}
	for i, row := range features {
		if len(row) != d {
			return nil, eris.Errorf("trainer: row %d has %d columns, want %d", i, len(row), d)
		}
	}

	iters := f.Iterations
	if iters <= 0 {
		iters = 2000
	}
	rate := f.LearningRate
	if rate <= 0 {
		rate = 0.1
	}
	l2 := f.L2
	if l2 < 0 {
		l2 = 0
	}

	mean, std := columnStats(features, d)
	x := standardize(features, mean, std)

	// Gradient descent on the mean cross-entropy. w[0] is the intercept.
	w := make([]float64, d+1)
	for it := 0; it < iters; it++ {
		grad := make([]float64, d+1)
		for i, row := range x {
			z := w[0]
			for j, v := range row {
				z += w[j+1] * v
			}
			diff := sigmoid(z) - float64(labels[i])
			grad[0] += diff
			for j, v := range row {
				grad[j+1] += diff * v
			}
		}
		grad[0] /= float64(n)
		for j := 1; j < len(grad); j++ {
			grad[j] = grad[j]/float64(n) + l2*w[j]
		}
		for j := range w {
			w[j] -= rate * grad[j]
		}
	}

	// Undo the standardization so coefficients apply to raw units.
	out := make([]float64, d)
	for j := 0; j < d; j++ {
		out[j] = w[j+1] / std[j]
	}
	return out, nil
}

func columnStats(features [][]float64, d int) (mean, std []float64) {
	n := float64(len(features))
	mean = make([]float64, d)
	std = make([]float64, d)

	for _, row := range features {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	for _, row := range features {
		for j, v := range row {
			diff := v - mean[j]
			std[j] += diff * diff
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
		if std[j] == 0 {
			std[j] = 1 // constant column carries no signal; avoid dividing by zero
		}
	}
	return mean, std
}

func standardize(features [][]float64, mean, std []float64) [][]float64 {
	out := make([][]float64, len(features))
	for i, row := range features {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = (v - mean[j]) / std[j]
		}
	}
	return out
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
