package mstgrn

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Masked errors skip every position whose label equals nullValue (missing
// sensor readings are stored as 0).

// MaskedMAE is the mean absolute error over non-null labels.
func MaskedMAE(pred, label *Tensor, nullValue float64) float64 {
	return maskedMean(pred, label, nullValue, func(p, l float64) float64 { return math.Abs(p - l) })
}

// MaskedRMSE is the root mean squared error over non-null labels.
func MaskedRMSE(pred, label *Tensor, nullValue float64) float64 {
	return math.Sqrt(maskedMean(pred, label, nullValue, func(p, l float64) float64 { return (p - l) * (p - l) }))
}

// MaskedMAPE is the mean absolute percentage error over non-null labels.
func MaskedMAPE(pred, label *Tensor, nullValue float64) float64 {
	return maskedMean(pred, label, nullValue, func(p, l float64) float64 { return math.Abs((p - l) / l) })
}

func maskedMean(pred, label *Tensor, nullValue float64, f func(p, l float64) float64) float64 {
	sum, n := 0.0, 0
	for i, l := range label.Data {
		if l == nullValue || math.IsNaN(l) {
			continue
		}
		sum += f(pred.Data[i], l)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Evaluate computes all three masked metrics.
func Evaluate(pred, label *Tensor, nullValue float64) Metrics {
	return Metrics{
		MAE:  MaskedMAE(pred, label, nullValue),
		RMSE: MaskedRMSE(pred, label, nullValue),
		MAPE: MaskedMAPE(pred, label, nullValue),
	}
}

// ContrastiveLoss returns the triplet separation loss (margin, Euclidean,
// averaged over both negatives) and the compactness loss (mean squared
// distance from query to positive) of a forward output.
func ContrastiveLoss(out *Output, margin float64) (separate, compact float64) {
	width := out.Query.Last()
	rows := out.Query.Size() / width
	for r := 0; r < rows; r++ {
		q := out.Query.Data[r*width : (r+1)*width]
		p := out.Positive.Data[r*width : (r+1)*width]
		n1 := out.Neg1.Data[r*width : (r+1)*width]
		n2 := out.Neg2.Data[r*width : (r+1)*width]
		dp := floats.Distance(q, p, 2)
		separate += 0.5 * (math.Max(dp-floats.Distance(q, n1, 2)+margin, 0) + math.Max(dp-floats.Distance(q, n2, 2)+margin, 0))
		compact += dp * dp
	}
	return separate / float64(rows), compact / float64(out.Query.Size())
}
