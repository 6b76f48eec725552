package mstgrn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ============================================================
// MEMORY BANK & ADAPTIVE GRAPH
// ============================================================

// MemoryBank holds the learned prototypes and the two node projection tables
// the adaptive graphs are derived from. It is created once and never resized.
type MemoryBank struct {
	Memory *Param // (mem_num × 2·mem_dim)
	We1    *Param // (num_nodes × mem_num)
	We2    *Param // (num_nodes × mem_num)
}

// NewMemoryBank initializes all three tables Xavier-normal.
func NewMemoryBank(numNodes, memNum, width int, rng *rand.Rand) *MemoryBank {
	return &MemoryBank{
		Memory: xavierNormal("memory.Memory", memNum, width, rng),
		We1:    xavierNormal("memory.We1", numNodes, memNum, rng),
		We2:    xavierNormal("memory.We2", numNodes, memNum, rng),
	}
}

func (mb *MemoryBank) params() []*Param { return []*Param{mb.Memory, mb.We1, mb.We2} }

// AdaptiveGraphs derives the two directed supports
//
//	g1 = softmax(relu(E1·E2ᵀ)), g2 = softmax(relu(E2·E1ᵀ))
//
// with E1 = We1·Memory and E2 = We2·Memory. Rows of both are stochastic.
func (mb *MemoryBank) AdaptiveGraphs() (*mat.Dense, *mat.Dense) {
	var e1, e2 mat.Dense
	e1.Mul(mb.We1.Value, mb.Memory.Value)
	e2.Mul(mb.We2.Value, mb.Memory.Value)
	return adaptiveSupport(&e1, &e2), adaptiveSupport(&e2, &e1)
}

func adaptiveSupport(a, b *mat.Dense) *mat.Dense {
	var g mat.Dense
	g.Mul(a, b.T())
	g.Apply(func(_, _ int, v float64) float64 { return relu(v) }, &g)
	softmaxRows(&g)
	return &g
}
