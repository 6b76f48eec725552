package mstgrn

import "math"

// PositionalEncoding is a fixed sinusoidal table: even channels carry
// sin(pos·f_i), odd channels cos(pos·f_i), f_i = exp(-2i·ln(10000)/dim).
// It has no parameters.
type PositionalEncoding struct {
	Dim   int
	Table [][]float64 // (max_len × dim)
}

// NewPositionalEncoding precomputes positions [0, maxLen).
func NewPositionalEncoding(dim, maxLen int) *PositionalEncoding {
	table := make([][]float64, maxLen)
	for pos := 0; pos < maxLen; pos++ {
		row := make([]float64, dim)
		for i := 0; 2*i < dim; i++ {
			freq := math.Exp(-float64(2*i) * math.Log(10000.0) / float64(dim))
			row[2*i] = math.Sin(float64(pos) * freq)
			if 2*i+1 < dim {
				row[2*i+1] = math.Cos(float64(pos) * freq)
			}
		}
		table[pos] = row
	}
	return &PositionalEncoding{Dim: dim, Table: table}
}

// Broadcast returns the first steps positions as (batch × steps × nodes × dim).
func (pe *PositionalEncoding) Broadcast(batch, steps, nodes int) (*Tensor, error) {
	if steps > len(pe.Table) {
		return nil, &ShapeMismatchError{Op: "positional_encoding", Want: []int{len(pe.Table)}, Got: []int{steps},
			Detail: "sequence longer than the precomputed table"}
	}
	out := NewTensor(batch, steps, nodes, pe.Dim)
	i := 0
	for b := 0; b < batch; b++ {
		for t := 0; t < steps; t++ {
			for n := 0; n < nodes; n++ {
				copy(out.Data[i:i+pe.Dim], pe.Table[t])
				i += pe.Dim
			}
		}
	}
	return out, nil
}
