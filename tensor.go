package mstgrn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ============================================================
// TENSOR
// ============================================================

// Tensor is a dense row-major array. The model works on 3-D
// (batch × nodes × features) and 4-D (batch × time × nodes × features) tensors.
type Tensor struct {
	Shape []int
	Data  []float64
}

// NewTensor returns a zero tensor of the given shape.
func NewTensor(shape ...int) *Tensor {
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float64, shapeSize(shape))}
}

// FromSlice wraps data (without copying) in a tensor of the given shape.
func FromSlice(data []float64, shape ...int) (*Tensor, error) {
	if len(data) != shapeSize(shape) {
		return nil, &ShapeMismatchError{Op: "tensor.from_slice", Want: []int{shapeSize(shape)}, Got: []int{len(data)}}
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

func shapeSize(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func (t *Tensor) Size() int { return len(t.Data) }
func (t *Tensor) Dims() int { return len(t.Shape) }

// Last returns the size of the trailing (feature) axis.
func (t *Tensor) Last() int { return t.Shape[len(t.Shape)-1] }

func (t *Tensor) offset(idx []int) int {
	off := 0
	for i, v := range idx {
		off = off*t.Shape[i] + v
	}
	return off
}

// At returns the element at idx (one index per axis).
func (t *Tensor) At(idx ...int) float64 { return t.Data[t.offset(idx)] }

// Set writes v at idx.
func (t *Tensor) Set(v float64, idx ...int) { t.Data[t.offset(idx)] = v }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	d := make([]float64, len(t.Data))
	copy(d, t.Data)
	return &Tensor{Shape: append([]int(nil), t.Shape...), Data: d}
}

// Reshape returns a tensor sharing t's data with a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if shapeSize(shape) != len(t.Data) {
		return nil, &ShapeMismatchError{Op: "tensor.reshape", Want: shape, Got: t.Shape}
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: t.Data}, nil
}

// expect checks t against want; -1 entries match any size.
func (t *Tensor) expect(op string, want ...int) error {
	if t == nil {
		return &ShapeMismatchError{Op: op, Want: want, Detail: "tensor is nil"}
	}
	if len(t.Shape) != len(want) {
		return &ShapeMismatchError{Op: op, Want: want, Got: t.Shape}
	}
	for i, w := range want {
		if w >= 0 && t.Shape[i] != w {
			return &ShapeMismatchError{Op: op, Want: want, Got: t.Shape}
		}
	}
	return nil
}

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// Step copies time slice i out of a (B, T, N, D) tensor into (B, N, D).
func (t *Tensor) Step(i int) *Tensor {
	b, steps, n, d := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	out := NewTensor(b, n, d)
	block := n * d
	for bi := 0; bi < b; bi++ {
		src := (bi*steps + i) * block
		copy(out.Data[bi*block:(bi+1)*block], t.Data[src:src+block])
	}
	return out
}

// Stack joins (B, N, D) slices along a new time axis into (B, T, N, D).
func Stack(steps []*Tensor) *Tensor {
	b, n, d := steps[0].Shape[0], steps[0].Shape[1], steps[0].Shape[2]
	tlen := len(steps)
	out := NewTensor(b, tlen, n, d)
	block := n * d
	for ti, s := range steps {
		for bi := 0; bi < b; bi++ {
			dst := (bi*tlen + ti) * block
			copy(out.Data[dst:dst+block], s.Data[bi*block:(bi+1)*block])
		}
	}
	return out
}

// Concat joins tensors along the last axis. All leading axes must agree.
func Concat(ts ...*Tensor) (*Tensor, error) {
	lead := ts[0].Shape[:len(ts[0].Shape)-1]
	width := 0
	for _, t := range ts {
		want := append(append([]int(nil), lead...), -1)
		if err := t.expect("tensor.concat", want...); err != nil {
			return nil, err
		}
		width += t.Last()
	}
	shape := append(append([]int(nil), lead...), width)
	out := NewTensor(shape...)
	rows := shapeSize(lead)
	off := 0
	for _, t := range ts {
		w := t.Last()
		for r := 0; r < rows; r++ {
			copy(out.Data[r*width+off:r*width+off+w], t.Data[r*w:(r+1)*w])
		}
		off += w
	}
	return out, nil
}

// Split cuts t along the last axis at column at.
func (t *Tensor) Split(at int) (*Tensor, *Tensor) {
	lead := t.Shape[:len(t.Shape)-1]
	w := t.Last()
	left := NewTensor(append(append([]int(nil), lead...), at)...)
	right := NewTensor(append(append([]int(nil), lead...), w-at)...)
	rows := shapeSize(lead)
	for r := 0; r < rows; r++ {
		copy(left.Data[r*at:(r+1)*at], t.Data[r*w:r*w+at])
		copy(right.Data[r*(w-at):(r+1)*(w-at)], t.Data[r*w+at:(r+1)*w])
	}
	return left, right
}

// SwapAxes12 turns (B, T, N, D) into (B, N, T, D) and back.
func (t *Tensor) SwapAxes12() *Tensor {
	b, a1, a2, d := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	out := NewTensor(b, a2, a1, d)
	for bi := 0; bi < b; bi++ {
		for i := 0; i < a1; i++ {
			for j := 0; j < a2; j++ {
				src := ((bi*a1+i)*a2 + j) * d
				dst := ((bi*a2+j)*a1 + i) * d
				copy(out.Data[dst:dst+d], t.Data[src:src+d])
			}
		}
	}
	return out
}

// Map applies f element-wise into a new tensor.
func (t *Tensor) Map(f func(float64) float64) *Tensor {
	out := NewTensor(t.Shape...)
	for i, v := range t.Data {
		out.Data[i] = f(v)
	}
	return out
}

// Add returns t + o element-wise.
func (t *Tensor) Add(o *Tensor) (*Tensor, error) {
	if !t.SameShape(o) {
		return nil, &ShapeMismatchError{Op: "tensor.add", Want: t.Shape, Got: o.Shape}
	}
	out := t.Clone()
	floats.Add(out.Data, o.Data)
	return out, nil
}

// Mul returns t * o element-wise.
func (t *Tensor) Mul(o *Tensor) (*Tensor, error) {
	if !t.SameShape(o) {
		return nil, &ShapeMismatchError{Op: "tensor.mul", Want: t.Shape, Got: o.Shape}
	}
	out := t.Clone()
	floats.Mul(out.Data, o.Data)
	return out, nil
}

// AllClose reports whether t and o have the same shape and every element
// differs by at most tol.
func (t *Tensor) AllClose(o *Tensor, tol float64) bool {
	if !t.SameShape(o) {
		return false
	}
	for i := range t.Data {
		if math.Abs(t.Data[i]-o.Data[i]) > tol || math.IsNaN(t.Data[i]) != math.IsNaN(o.Data[i]) {
			return false
		}
	}
	return true
}

// matrix views t as (rows × last axis), sharing data.
func (t *Tensor) matrix() *mat.Dense {
	w := t.Last()
	return mat.NewDense(len(t.Data)/w, w, t.Data)
}

// batchMatrix views batch b of a 3-D tensor as (N × D), sharing data.
func (t *Tensor) batchMatrix(b int) *mat.Dense {
	n, d := t.Shape[1], t.Shape[2]
	return mat.NewDense(n, d, t.Data[b*n*d:(b+1)*n*d])
}
