package mstgrn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ============================================================
// MEMORY QUERY
// ============================================================

// Retrieval is the result of querying the memory bank at one time step.
// Every tensor is (B × N × memory width).
type Retrieval struct {
	Value    *Tensor // similarity-weighted sum of prototypes
	Query    *Tensor // the query itself
	Positive *Tensor // best-matching prototype
	Neg1     *Tensor // second-best prototype
	Neg2     *Tensor // second-best prototype again
}

// QueryMemory scores every node's query against every prototype with a
// scaled dot product and softmax, returns the weighted prototype sum and
// the top-2 prototypes. Both negatives are the second-ranked prototype.
func QueryMemory(memory *mat.Dense, query *Tensor) (*Retrieval, error) {
	m, width := memory.Dims()
	if err := query.expect("memory.query", -1, -1, width); err != nil {
		return nil, err
	}
	batch, nodes := query.Shape[0], query.Shape[1]
	res := &Retrieval{
		Value:    NewTensor(batch, nodes, width),
		Query:    query.Clone(),
		Positive: NewTensor(batch, nodes, width),
		Neg1:     NewTensor(batch, nodes, width),
		Neg2:     NewTensor(batch, nodes, width),
	}
	scale := 1.0 / math.Sqrt(float64(width))
	scores := mat.NewDense(nodes, m, nil)
	for b := 0; b < batch; b++ {
		scores.Mul(query.batchMatrix(b), memory.T())
		scores.Scale(scale, scores)
		softmaxRows(scores)
		res.Value.batchMatrix(b).Mul(scores, memory)

		for n := 0; n < nodes; n++ {
			best := topK(scores.RawRowView(n), 2)
			off := (b*nodes + n) * width
			mat.Row(res.Positive.Data[off:off+width], best[0], memory)
			mat.Row(res.Neg1.Data[off:off+width], best[1], memory)
			mat.Row(res.Neg2.Data[off:off+width], best[1], memory)
		}
	}
	return res, nil
}

// ============================================================
// CHANNEL REDUCTION (1x1 conv over the time axis)
// ============================================================

// ChannelReduce collapses a (B × T × N × D) stack to (B × 1 × N × D) with a
// learned weight per time step plus a bias, treating time as channels.
type ChannelReduce struct {
	Weight *Param // (1 × T)
	Bias   *Param // (1 × 1)
}

func newChannelReduce(name string, steps int, rng *rand.Rand) *ChannelReduce {
	return &ChannelReduce{
		Weight: fanInUniform(name+".weight", 1, steps, steps, rng),
		Bias:   fanInUniform(name+".bias", 1, 1, steps, rng),
	}
}

// Reduce applies the reduction.
func (c *ChannelReduce) Reduce(stack *Tensor) (*Tensor, error) {
	_, steps := c.Weight.Shape()
	if err := stack.expect(c.Weight.Name, -1, steps, -1, -1); err != nil {
		return nil, err
	}
	batch, nodes, width := stack.Shape[0], stack.Shape[2], stack.Shape[3]
	w := c.Weight.Value.RawRowView(0)
	bias := c.Bias.Value.At(0, 0)
	out := NewTensor(batch, 1, nodes, width)
	block := nodes * width
	for b := 0; b < batch; b++ {
		dst := out.Data[b*block : (b+1)*block]
		for i := range dst {
			dst[i] = bias
		}
		for t := 0; t < steps; t++ {
			src := stack.Data[(b*steps+t)*block : (b*steps+t+1)*block]
			for i, v := range src {
				dst[i] += w[t] * v
			}
		}
	}
	return out, nil
}

func (c *ChannelReduce) params() []*Param { return []*Param{c.Weight, c.Bias} }
