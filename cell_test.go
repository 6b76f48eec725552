package mstgrn

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestAGCRNCellStep(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	mb := NewMemoryBank(4, 3, 6, rng)
	g1, g2 := mb.AdaptiveGraphs()
	supports := []*mat.Dense{g1, g2}

	cell := NewAGCRNCell("cell", 4, 5, 6, 3, 2, rng)
	x := NewTensor(2, 4, 5)
	for i := range x.Data {
		x.Data[i] = rng.NormFloat64()
	}
	state := cell.InitHidden(2)
	h, z, r, err := cell.step(x, state, supports)
	if err != nil {
		t.Fatal(err)
	}
	if h.Shape[0] != 2 || h.Shape[1] != 4 || h.Shape[2] != 6 {
		t.Fatalf("expected (2, 4, 6), got %v", h.Shape)
	}
	for i := range z.Data {
		if z.Data[i] < 0 || z.Data[i] > 1 || r.Data[i] < 0 || r.Data[i] > 1 {
			t.Fatalf("gates must lie in [0, 1], got z=%v r=%v", z.Data[i], r.Data[i])
		}
	}
	// zero state: h = (1-r)·tanh(.) so |h| < 1
	for _, v := range h.Data {
		if math.Abs(v) >= 1 {
			t.Fatalf("expected |h| < 1 from a zero state, got %v", v)
		}
	}

	h2, err := cell.Forward(x, h, supports)
	if err != nil {
		t.Fatal(err)
	}
	if h2.AllClose(h, 0) {
		t.Error("second step should move the state")
	}
}

func TestAGCRNCellStateShape(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cell := NewAGCRNCell("cell", 3, 2, 4, 2, 1, rng)
	_, err := cell.Forward(NewTensor(1, 3, 2), NewTensor(1, 3, 5), []*mat.Dense{eye(3)})
	var sm *ShapeMismatchError
	if !errors.As(err, &sm) {
		t.Fatalf("expected ShapeMismatchError, got %v", err)
	}
}
