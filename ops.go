package mstgrn

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// softmaxInPlace turns logits into probabilities, max-shifted for stability.
func softmaxInPlace(row []float64) {
	maxVal := floats.Max(row)
	for i, v := range row {
		row[i] = math.Exp(v - maxVal)
	}
	floats.Scale(1/floats.Sum(row), row)
}

// softmaxRows applies softmax to every row of m.
func softmaxRows(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		softmaxInPlace(m.RawRowView(i))
	}
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// topK returns the indices of the k largest scores, descending. Ties keep
// the lower index first.
func topK(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if k < len(idx) {
		idx = idx[:k]
	}
	return idx
}
