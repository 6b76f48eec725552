package mstgrn

import "math"

// Sampler is the uniform [0, 1) source used for teacher-forcing coin flips.
// *rand.Rand satisfies it.
type Sampler interface {
	Float64() float64
}

// SamplingThreshold is the probability of feeding ground truth back into the
// decoder after batchesSeen training batches:
//
//	decay / (decay + exp(batchesSeen / decay))
//
// It starts just below 1 and decays monotonically towards 0.
func SamplingThreshold(batchesSeen, decaySteps float64) float64 {
	return decaySteps / (decaySteps + math.Exp(batchesSeen/decaySteps))
}
