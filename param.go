package mstgrn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ============================================================
// PARAMETERS
// ============================================================

// Param is a learned matrix. Gradients live with the external optimizer;
// RequiresGrad only tells it whether to update the matrix.
type Param struct {
	Name         string
	Value        *mat.Dense
	RequiresGrad bool
}

func newParam(name string, rows, cols int, fill func(int, int) float64) *Param {
	d := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d[i*cols+j] = fill(i, j)
		}
	}
	return &Param{Name: name, Value: mat.NewDense(rows, cols, d), RequiresGrad: true}
}

// xavierNormal draws from N(0, 2/(fan_in+fan_out)).
func xavierNormal(name string, rows, cols int, rng *rand.Rand) *Param {
	std := math.Sqrt(2.0 / float64(rows+cols))
	return newParam(name, rows, cols, func(int, int) float64 { return rng.NormFloat64() * std })
}

// fanInUniform draws from U(-1/sqrt(fanIn), 1/sqrt(fanIn)), the usual
// dense / 1x1 conv initialization.
func fanInUniform(name string, rows, cols, fanIn int, rng *rand.Rand) *Param {
	bound := 1.0 / math.Sqrt(float64(fanIn))
	return newParam(name, rows, cols, func(int, int) float64 { return (rng.Float64()*2 - 1) * bound })
}

// normalParam draws from N(0, std²).
func normalParam(name string, rows, cols int, std float64, rng *rand.Rand) *Param {
	return newParam(name, rows, cols, func(int, int) float64 { return rng.NormFloat64() * std })
}

func zeroParam(name string, rows, cols int) *Param {
	return newParam(name, rows, cols, func(int, int) float64 { return 0 })
}

// Shape returns (rows, cols).
func (p *Param) Shape() (int, int) { return p.Value.Dims() }

// Rows serializes the matrix row by row.
func (p *Param) Rows() [][]float64 {
	r, _ := p.Value.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		rows[i] = mat.Row(nil, i, p.Value)
	}
	return rows
}

// SetRows overwrites the matrix from serialized rows. The shape must match.
func (p *Param) SetRows(rows [][]float64) error {
	r, c := p.Value.Dims()
	if len(rows) != r {
		return configErrorf(p.Name, "checkpoint has %d rows, model expects %d", len(rows), r)
	}
	for i, row := range rows {
		if len(row) != c {
			return configErrorf(p.Name, "checkpoint row %d has %d cols, model expects %d", i, len(row), c)
		}
		p.Value.SetRow(i, row)
	}
	return nil
}

// Linear is a dense projection over the last axis: y = x·W + b.
type Linear struct {
	Weight *Param // (in × out)
	Bias   *Param // (1 × out)
}

func newLinear(name string, in, out int, rng *rand.Rand) *Linear {
	return &Linear{
		Weight: fanInUniform(name+".weight", in, out, in, rng),
		Bias:   fanInUniform(name+".bias", 1, out, in, rng),
	}
}

// Apply projects the trailing axis of x from in to out features.
func (l *Linear) Apply(x *Tensor) (*Tensor, error) {
	in, out := l.Weight.Shape()
	if x.Last() != in {
		want := append(append([]int(nil), x.Shape[:x.Dims()-1]...), in)
		return nil, &ShapeMismatchError{Op: l.Weight.Name, Want: want, Got: x.Shape}
	}
	shape := append(append([]int(nil), x.Shape[:x.Dims()-1]...), out)
	y := NewTensor(shape...)
	ym := y.matrix()
	ym.Mul(x.matrix(), l.Weight.Value)
	addRowBias(ym, l.Bias.Value.RawRowView(0))
	return y, nil
}

func (l *Linear) params() []*Param { return []*Param{l.Weight, l.Bias} }

func addRowBias(m *mat.Dense, bias []float64) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}
}
