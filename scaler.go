package mstgrn

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler z-normalizes sensor values.
type StandardScaler struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// FitScaler estimates mean and standard deviation of data.
func FitScaler(data []float64) StandardScaler {
	mean, std := stat.MeanStdDev(data, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	return StandardScaler{Mean: mean, Std: std}
}

// Transform returns (t - mean) / std.
func (s StandardScaler) Transform(t *Tensor) *Tensor {
	return t.Map(func(v float64) float64 { return (v - s.Mean) / s.Std })
}

// InverseTransform returns t·std + mean.
func (s StandardScaler) InverseTransform(t *Tensor) *Tensor {
	return t.Map(func(v float64) float64 { return v*s.Std + s.Mean })
}
