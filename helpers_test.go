package mstgrn

import (
	"io"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// smallConfig is the tiny network used across the tests:
// 4 nodes, horizon 2, scalar in/out, rnn 8 = 2 × mem_dim 4.
func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.NumNodes = 4
	cfg.InputDim = 1
	cfg.OutputDim = 1
	cfg.Horizon = 2
	cfg.RNNUnits = 8
	cfg.MemNum = 5
	cfg.MemDim = 4
	return cfg
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// randomInput fills x, labels and covariates for cfg with valid values.
func randomInput(cfg Config, batch int, seed int64) *Input {
	rng := rand.New(rand.NewSource(seed))
	in := &Input{
		X:      NewTensor(batch, cfg.Horizon, cfg.NumNodes, cfg.InputDim),
		XCov:   NewTensor(batch, cfg.Horizon, cfg.NumNodes, 2),
		YCov:   NewTensor(batch, cfg.Horizon, cfg.NumNodes, cfg.YCovDim),
		Labels: NewTensor(batch, cfg.Horizon, cfg.NumNodes, cfg.OutputDim),
	}
	for i := range in.X.Data {
		in.X.Data[i] = rng.NormFloat64()
	}
	for i := range in.Labels.Data {
		in.Labels.Data[i] = rng.NormFloat64()
	}
	for _, cov := range []*Tensor{in.XCov, in.YCov} {
		w := cov.Last()
		for r := 0; r < cov.Size()/w; r++ {
			cov.Data[r*w] = float64(rng.Intn(cfg.StepsPerDay)) / float64(cfg.StepsPerDay)
			if w > 1 {
				cov.Data[r*w+1] = float64(rng.Intn(cfg.DaysPerWeek))
			}
		}
	}
	return in
}

// countingSampler returns a fixed draw and counts calls.
type countingSampler struct {
	draw  float64
	calls int
}

func (s *countingSampler) Float64() float64 {
	s.calls++
	return s.draw
}
