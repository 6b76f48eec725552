package mstgrn

import (
	"fmt"
	"math"
	"math/rand"
)

// ============================================================
// EMBEDDING & FUSION
// ============================================================

// Embedding turns raw history and its covariates into the fused per-node,
// per-step representation of width embed_dim + adaptive_embedding_dim.
type Embedding struct {
	NumNodes    int
	Horizon     int
	EmbedDim    int
	AdaptiveDim int
	StepsPerDay int
	DaysPerWeek int

	Value     *Linear // input_dim -> embed_dim
	Position  *PositionalEncoding
	TimeOfDay *Param // (steps_per_day × embed_dim)
	DayOfWeek *Param // (days_per_week × embed_dim)
	Adaptive  *Param // (horizon × nodes·adaptive_dim)
}

func newEmbedding(cfg Config, rng *rand.Rand) *Embedding {
	cfg = cfg.withDerived()
	return &Embedding{
		NumNodes:    cfg.NumNodes,
		Horizon:     cfg.Horizon,
		EmbedDim:    cfg.EmbedDim,
		AdaptiveDim: cfg.AdaptiveEmbedDim,
		StepsPerDay: cfg.StepsPerDay,
		DaysPerWeek: cfg.DaysPerWeek,
		Value:       newLinear("embed.value", cfg.InputDim, cfg.EmbedDim, rng),
		Position:    NewPositionalEncoding(cfg.EmbedDim, cfg.MaxSeqLen),
		TimeOfDay:   normalParam("embed.time_of_day", cfg.StepsPerDay, cfg.EmbedDim, 1, rng),
		DayOfWeek:   normalParam("embed.day_of_week", cfg.DaysPerWeek, cfg.EmbedDim, 1, rng),
		Adaptive:    xavierNormal("embed.adaptive", cfg.Horizon, cfg.NumNodes*cfg.AdaptiveEmbedDim, rng),
	}
}

// Forward fuses x (B × T × N × input_dim) with covariates xCov
// (B × T × N × ≥2; channel 0 time-of-day fraction, channel 1 day-of-week).
// Time-of-day indices are round(fraction · steps_per_day).
func (e *Embedding) Forward(x, xCov *Tensor) (*Tensor, error) {
	if err := x.expect("embed.x", -1, e.Horizon, e.NumNodes, -1); err != nil {
		return nil, err
	}
	batch, steps := x.Shape[0], x.Shape[1]
	if err := xCov.expect("embed.x_cov", batch, steps, e.NumNodes, -1); err != nil {
		return nil, err
	}
	if xCov.Last() < 2 {
		return nil, &ShapeMismatchError{Op: "embed.x_cov", Want: []int{batch, steps, e.NumNodes, 2}, Got: xCov.Shape}
	}
	h, err := e.Value.Apply(x)
	if err != nil {
		return nil, err
	}
	pe, err := e.Position.Broadcast(batch, steps, e.NumNodes)
	if err != nil {
		return nil, err
	}
	if h, err = h.Add(pe); err != nil {
		return nil, err
	}

	covW := xCov.Last()
	for r := 0; r < batch*steps*e.NumNodes; r++ {
		tod := int(math.Round(xCov.Data[r*covW] * float64(e.StepsPerDay)))
		dow := int(xCov.Data[r*covW+1])
		if tod < 0 || tod >= e.StepsPerDay {
			return nil, &ShapeMismatchError{Op: "embed.time_of_day",
				Detail: fmt.Sprintf("index %d outside [0, %d)", tod, e.StepsPerDay)}
		}
		if dow < 0 || dow >= e.DaysPerWeek {
			return nil, &ShapeMismatchError{Op: "embed.day_of_week",
				Detail: fmt.Sprintf("index %d outside [0, %d)", dow, e.DaysPerWeek)}
		}
		row := h.Data[r*e.EmbedDim : (r+1)*e.EmbedDim]
		todRow := e.TimeOfDay.Value.RawRowView(tod)
		dowRow := e.DayOfWeek.Value.RawRowView(dow)
		for j := range row {
			row[j] += todRow[j] + dowRow[j]
		}
	}

	adaptive := NewTensor(batch, steps, e.NumNodes, e.AdaptiveDim)
	block := e.NumNodes * e.AdaptiveDim
	for b := 0; b < batch; b++ {
		for t := 0; t < steps; t++ {
			dst := (b*steps + t) * block
			copy(adaptive.Data[dst:dst+block], e.Adaptive.Value.RawRowView(t))
		}
	}
	return Concat(h, adaptive)
}

func (e *Embedding) params() []*Param {
	return append(e.Value.params(), e.TimeOfDay, e.DayOfWeek, e.Adaptive)
}
