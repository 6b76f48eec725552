package mstgrn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Decoder is an ordered stack of recurrent cells. Layer 0 takes the true
// input width, later layers take the hidden width.
type Decoder struct {
	Cells []*AGCRNCell
}

// NewDecoder stacks numLayers cells; fewer than one layer is a configuration error.
func NewDecoder(numNodes, dimIn, hiddenDim, chebK, numSupports, numLayers int, rng *rand.Rand) (*Decoder, error) {
	if numLayers < 1 {
		return nil, configErrorf("num_layers", "decoder needs at least one layer, got %d", numLayers)
	}
	d := &Decoder{Cells: make([]*AGCRNCell, numLayers)}
	for i := range d.Cells {
		in := hiddenDim
		if i == 0 {
			in = dimIn
		}
		d.Cells[i] = NewAGCRNCell(fmt.Sprintf("decoder.%d", i), numNodes, in, hiddenDim, chebK, numSupports, rng)
	}
	return d, nil
}

// Forward runs every layer once, feeding each layer's new state to the next.
// It returns the top layer's output and all new states.
func (d *Decoder) Forward(x *Tensor, states []*Tensor, supports []*mat.Dense) (*Tensor, []*Tensor, error) {
	if len(states) != len(d.Cells) {
		return nil, nil, &ShapeMismatchError{
			Op:     "decoder",
			Detail: fmt.Sprintf("got %d initial states for %d layers", len(states), len(d.Cells)),
		}
	}
	cur := x
	hidden := make([]*Tensor, len(d.Cells))
	for i, cell := range d.Cells {
		h, err := cell.Forward(cur, states[i], supports)
		if err != nil {
			return nil, nil, fmt.Errorf("decoder layer %d: %w", i, err)
		}
		hidden[i] = h
		cur = h
	}
	return cur, hidden, nil
}

func (d *Decoder) params() []*Param {
	var ps []*Param
	for _, c := range d.Cells {
		ps = append(ps, c.params()...)
	}
	return ps
}
