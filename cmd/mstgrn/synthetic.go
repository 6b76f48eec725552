package main

import (
	"math"
	"math/rand"

	mstgrn "github.com/xiaozhangyongqin/MSTGRN"
)

// minutesPerStep is the sampling interval of the synthetic sensors.
const minutesPerStep = 5

// sensorBatch is one synthetic window: a history of horizon steps followed
// by horizon future steps, for every node.
type sensorBatch struct {
	X      *mstgrn.Tensor // history values (B, H, N, input_dim)
	XCov   *mstgrn.Tensor // history time-of-day / day-of-week
	YCov   *mstgrn.Tensor // future covariates (B, H, N, ycov_dim)
	Labels *mstgrn.Tensor // future values (B, H, N, output_dim)
}

// synthesize draws daily-periodic traffic-like readings: a per-node base
// level, a morning and an evening peak, weekend damping and noise.
func synthesize(cfg mstgrn.Config, batch int, rng *rand.Rand) *sensorBatch {
	h, n := cfg.Horizon, cfg.NumNodes
	sb := &sensorBatch{
		X:      mstgrn.NewTensor(batch, h, n, cfg.InputDim),
		XCov:   mstgrn.NewTensor(batch, h, n, 2),
		YCov:   mstgrn.NewTensor(batch, h, n, cfg.YCovDim),
		Labels: mstgrn.NewTensor(batch, h, n, cfg.OutputDim),
	}
	base := make([]float64, n)
	for i := range base {
		base[i] = 40 + 30*rng.Float64()
	}
	stepsPerDay := 1440 / minutesPerStep
	for b := 0; b < batch; b++ {
		start := rng.Intn(7 * stepsPerDay)
		for t := 0; t < 2*h; t++ {
			abs := start + t
			tod := float64(abs%stepsPerDay) / float64(stepsPerDay)
			dow := float64((abs / stepsPerDay) % 7)
			for node := 0; node < n; node++ {
				v := reading(base[node], tod, dow, rng)
				if t < h {
					for c := 0; c < cfg.InputDim; c++ {
						sb.X.Set(v, b, t, node, c)
					}
					sb.XCov.Set(tod, b, t, node, 0)
					sb.XCov.Set(dow, b, t, node, 1)
					continue
				}
				ft := t - h
				for c := 0; c < cfg.OutputDim; c++ {
					sb.Labels.Set(v, b, ft, node, c)
				}
				sb.YCov.Set(tod, b, ft, node, 0)
				if cfg.YCovDim > 1 {
					sb.YCov.Set(dow, b, ft, node, 1)
				}
			}
		}
	}
	return sb
}

func reading(base, tod, dow float64, rng *rand.Rand) float64 {
	peak := math.Exp(-math.Pow((tod-0.33)/0.05, 2)) + 0.8*math.Exp(-math.Pow((tod-0.73)/0.06, 2))
	if dow >= 5 {
		peak *= 0.5
	}
	return base*(1+peak) + rng.NormFloat64()*2
}
