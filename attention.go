package mstgrn

import (
	"context"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// ============================================================
// SELF-ATTENTION
// ============================================================

// Attention maps (queries, keys, values), each (batch × tokens × dim), to
// attended values of the same shape. Projections and head splitting are
// internal to the implementation.
type Attention interface {
	Attend(queries, keys, values *Tensor) (*Tensor, error)
}

// MultiHeadAttention is scaled dot-product attention with Heads heads of
// HeadDim channels each.
type MultiHeadAttention struct {
	Dim     int
	Heads   int
	HeadDim int
	Query   *Linear // dim -> heads·head_dim
	Key     *Linear
	Value   *Linear
	Out     *Linear // heads·head_dim -> dim
}

// NewMultiHeadAttention builds an attention block whose per-head width is headDim.
func NewMultiHeadAttention(name string, dim, heads, headDim int, rng *rand.Rand) *MultiHeadAttention {
	inner := heads * headDim
	return &MultiHeadAttention{
		Dim:     dim,
		Heads:   heads,
		HeadDim: headDim,
		Query:   newLinear(name+".query", dim, inner, rng),
		Key:     newLinear(name+".key", dim, inner, rng),
		Value:   newLinear(name+".value", dim, inner, rng),
		Out:     newLinear(name+".out", inner, dim, rng),
	}
}

// Attend implements Attention.
func (a *MultiHeadAttention) Attend(queries, keys, values *Tensor) (*Tensor, error) {
	if err := queries.expect(a.Query.Weight.Name, -1, -1, a.Dim); err != nil {
		return nil, err
	}
	batch, nq := queries.Shape[0], queries.Shape[1]
	if err := keys.expect(a.Key.Weight.Name, batch, -1, a.Dim); err != nil {
		return nil, err
	}
	nk := keys.Shape[1]
	if err := values.expect(a.Value.Weight.Name, batch, nk, a.Dim); err != nil {
		return nil, err
	}
	q, err := a.Query.Apply(queries)
	if err != nil {
		return nil, err
	}
	k, err := a.Key.Apply(keys)
	if err != nil {
		return nil, err
	}
	v, err := a.Value.Apply(values)
	if err != nil {
		return nil, err
	}

	inner := a.Heads * a.HeadDim
	merged := NewTensor(batch, nq, inner)
	invSqrt := 1.0 / math.Sqrt(float64(a.HeadDim))
	scores := mat.NewDense(nq, nk, nil)
	for b := 0; b < batch; b++ {
		qb, kb, vb, cb := q.batchMatrix(b), k.batchMatrix(b), v.batchMatrix(b), merged.batchMatrix(b)
		for h := 0; h < a.Heads; h++ {
			lo, hi := h*a.HeadDim, (h+1)*a.HeadDim
			qh := qb.Slice(0, nq, lo, hi)
			kh := kb.Slice(0, nk, lo, hi)
			vh := vb.Slice(0, nk, lo, hi)
			scores.Mul(qh, kh.T())
			scores.Scale(invSqrt, scores)
			softmaxRows(scores)
			cb.Slice(0, nq, lo, hi).(*mat.Dense).Mul(scores, vh)
		}
	}
	return a.Out.Apply(merged)
}

func (a *MultiHeadAttention) params() []*Param {
	var ps []*Param
	for _, l := range []*Linear{a.Query, a.Key, a.Value, a.Out} {
		ps = append(ps, l.params()...)
	}
	return ps
}

// ============================================================
// DUAL (SPATIAL + TEMPORAL) ATTENTION
// ============================================================

// DualAttention attends over nodes (time as batch) and, independently, over
// time (nodes as batch), then fuses both views as [s*t ++ s+t].
type DualAttention struct {
	Spatial  Attention
	Temporal Attention
	Observer Observer
	Logger   *logrus.Logger
}

// Forward maps h (B × T × N × F) to (B × T × N × 2F).
func (d *DualAttention) Forward(ctx context.Context, h *Tensor) (*Tensor, error) {
	if err := h.expect("dual_attention", -1, -1, -1, -1); err != nil {
		return nil, err
	}
	b, steps, nodes, f := h.Shape[0], h.Shape[1], h.Shape[2], h.Shape[3]

	sIn, err := h.Reshape(b*steps, nodes, f)
	if err != nil {
		return nil, err
	}
	sOut, err := d.Spatial.Attend(sIn, sIn, sIn)
	if err != nil {
		return nil, err
	}
	spatial, err := sOut.Reshape(b, steps, nodes, f)
	if err != nil {
		return nil, err
	}

	tIn, err := h.SwapAxes12().Reshape(b*nodes, steps, f)
	if err != nil {
		return nil, err
	}
	tOut, err := d.Temporal.Attend(tIn, tIn, tIn)
	if err != nil {
		return nil, err
	}
	tView, err := tOut.Reshape(b, nodes, steps, f)
	if err != nil {
		return nil, err
	}
	temporal := tView.SwapAxes12()

	d.observe(ctx, "attention.spatial", spatial)
	d.observe(ctx, "attention.temporal", temporal)

	mutX, err := spatial.Mul(temporal)
	if err != nil {
		return nil, err
	}
	sumX, err := spatial.Add(temporal)
	if err != nil {
		return nil, err
	}
	return Concat(mutX, sumX)
}

func (d *DualAttention) observe(ctx context.Context, name string, t *Tensor) {
	if d.Observer == nil {
		return
	}
	if err := d.Observer.Observe(ctx, name, t); err != nil && d.Logger != nil {
		d.Logger.WithError(err).WithField("tensor", name).Warn("attention observer failed")
	}
}

func attentionParams(a Attention) []*Param {
	if p, ok := a.(interface{ params() []*Param }); ok {
		return p.params()
	}
	return nil
}
