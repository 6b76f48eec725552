package mstgrn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ============================================================
// CHEBYSHEV GRAPH CONVOLUTION
// ============================================================

// ChebyshevBasis expands a support into T_0 = I, T_1 = S and
// T_k = 2·S·T_{k-1} - T_{k-2} for k in [2, chebK).
func ChebyshevBasis(support *mat.Dense, chebK int) []*mat.Dense {
	n, _ := support.Dims()
	eye := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		eye.Set(i, i, 1)
	}
	basis := []*mat.Dense{eye, mat.DenseCopyOf(support)}
	for k := 2; k < chebK; k++ {
		next := mat.NewDense(n, n, nil)
		next.Mul(support, basis[k-1])
		next.Scale(2, next)
		next.Sub(next, basis[k-2])
		basis = append(basis, next)
	}
	return basis
}

// AGCN filters node features with every Chebyshev basis of every support,
// concatenates the results along the feature axis and applies one shared
// projection.
type AGCN struct {
	ChebK       int
	NumSupports int
	DimIn       int
	DimOut      int
	Weights     *Param // (supports·cheb_k·dim_in × dim_out)
	Bias        *Param // (1 × dim_out)
}

// NewAGCN builds a graph convolution with Xavier-normal weights and zero bias.
func NewAGCN(name string, dimIn, dimOut, chebK, numSupports int, rng *rand.Rand) *AGCN {
	return &AGCN{
		ChebK:       chebK,
		NumSupports: numSupports,
		DimIn:       dimIn,
		DimOut:      dimOut,
		Weights:     xavierNormal(name+".weights", numSupports*chebK*dimIn, dimOut, rng),
		Bias:        zeroParam(name+".bias", 1, dimOut),
	}
}

// checkWeights verifies the weight matrix against the declared support and
// order counts.
func (g *AGCN) checkWeights() error {
	r, c := g.Weights.Shape()
	if r != g.NumSupports*g.ChebK*g.DimIn || c != g.DimOut {
		return configErrorf(g.Weights.Name, "weights are %dx%d, want %dx%d (supports %d × cheb_k %d × dim_in %d, dim_out)",
			r, c, g.NumSupports*g.ChebK*g.DimIn, g.DimOut, g.NumSupports, g.ChebK, g.DimIn)
	}
	if br, bc := g.Bias.Shape(); br != 1 || bc != g.DimOut {
		return configErrorf(g.Bias.Name, "bias is %dx%d, want 1x%d", br, bc, g.DimOut)
	}
	return nil
}

// Forward maps x (B × N × dim_in) to (B × N × dim_out). The second result is
// the last Chebyshev basis computed, kept for diagnostics.
func (g *AGCN) Forward(x *Tensor, supports []*mat.Dense) (*Tensor, *mat.Dense, error) {
	if err := g.checkWeights(); err != nil {
		return nil, nil, err
	}
	if len(supports) != g.NumSupports {
		return nil, nil, configErrorf(g.Weights.Name, "got %d supports, weights were built for %d", len(supports), g.NumSupports)
	}
	n, _ := supports[0].Dims()
	if err := x.expect(g.Weights.Name, -1, n, g.DimIn); err != nil {
		return nil, nil, err
	}

	var set []*mat.Dense
	for _, s := range supports {
		set = append(set, ChebyshevBasis(s, g.ChebK)...)
	}
	last := set[len(set)-1]

	batch := x.Shape[0]
	out := NewTensor(batch, n, g.DimOut)
	bias := g.Bias.Value.RawRowView(0)
	xg := mat.NewDense(n, len(set)*g.DimIn, nil)
	for b := 0; b < batch; b++ {
		xb := x.batchMatrix(b)
		for i, basis := range set {
			blk := xg.Slice(0, n, i*g.DimIn, (i+1)*g.DimIn).(*mat.Dense)
			blk.Mul(basis, xb)
		}
		ob := out.batchMatrix(b)
		ob.Mul(xg, g.Weights.Value)
		addRowBias(ob, bias)
	}
	return out, last, nil
}

func (g *AGCN) params() []*Param { return []*Param{g.Weights, g.Bias} }
