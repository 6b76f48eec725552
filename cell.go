package mstgrn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// AGCRNCell is a gated recurrent unit whose dense transforms are graph
// convolutions.
type AGCRNCell struct {
	NumNodes  int
	HiddenDim int
	Gate      *AGCN // (dim_in + hidden) -> 2·hidden
	Update    *AGCN // (dim_in + hidden) -> hidden
}

// NewAGCRNCell builds both graph convolutions of one recurrent cell.
func NewAGCRNCell(name string, numNodes, dimIn, hiddenDim, chebK, numSupports int, rng *rand.Rand) *AGCRNCell {
	return &AGCRNCell{
		NumNodes:  numNodes,
		HiddenDim: hiddenDim,
		Gate:      NewAGCN(name+".gate", dimIn+hiddenDim, 2*hiddenDim, chebK, numSupports, rng),
		Update:    NewAGCN(name+".update", dimIn+hiddenDim, hiddenDim, chebK, numSupports, rng),
	}
}

// InitHidden returns the zero state for a batch.
func (c *AGCRNCell) InitHidden(batch int) *Tensor {
	return NewTensor(batch, c.NumNodes, c.HiddenDim)
}

// Forward computes the next state (B × N × hidden) from x and state.
func (c *AGCRNCell) Forward(x, state *Tensor, supports []*mat.Dense) (*Tensor, error) {
	h, _, _, err := c.step(x, state, supports)
	return h, err
}

// step also returns the update (z) and reset (r) gates.
func (c *AGCRNCell) step(x, state *Tensor, supports []*mat.Dense) (h, z, r *Tensor, err error) {
	if err := state.expect(c.Gate.Weights.Name, -1, c.NumNodes, c.HiddenDim); err != nil {
		return nil, nil, nil, err
	}
	inState, err := Concat(x, state)
	if err != nil {
		return nil, nil, nil, err
	}
	zr, _, err := c.Gate.Forward(inState, supports)
	if err != nil {
		return nil, nil, nil, err
	}
	zr = zr.Map(sigmoid)
	z, r = zr.Split(c.HiddenDim)

	zs, err := z.Mul(state)
	if err != nil {
		return nil, nil, nil, err
	}
	candIn, err := Concat(x, zs)
	if err != nil {
		return nil, nil, nil, err
	}
	hc, _, err := c.Update.Forward(candIn, supports)
	if err != nil {
		return nil, nil, nil, err
	}
	hc = hc.Map(math.Tanh)

	h = NewTensor(state.Shape...)
	for i := range h.Data {
		h.Data[i] = r.Data[i]*state.Data[i] + (1-r.Data[i])*hc.Data[i]
	}
	return h, z, r, nil
}

func (c *AGCRNCell) params() []*Param {
	return append(c.Gate.params(), c.Update.params()...)
}
