package mstgrn

import (
	"errors"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNewDecoderNeedsLayers(t *testing.T) {
	_, err := NewDecoder(3, 2, 4, 2, 2, 0, rand.New(rand.NewSource(1)))
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if ce.Field != "num_layers" {
		t.Errorf("expected field num_layers, got %s", ce.Field)
	}
}

func TestDecoderForward(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	dec, err := NewDecoder(3, 2, 4, 2, 2, 3, rng)
	if err != nil {
		t.Fatal(err)
	}
	if len(dec.Cells) != 3 {
		t.Fatalf("expected 3 cells, got %d", len(dec.Cells))
	}
	if dec.Cells[0].Gate.DimIn != 2+4 || dec.Cells[1].Gate.DimIn != 4+4 {
		t.Errorf("layer input widths wrong: %d, %d", dec.Cells[0].Gate.DimIn, dec.Cells[1].Gate.DimIn)
	}
	supports := []*mat.Dense{eye(3), eye(3)}
	states := []*Tensor{dec.Cells[0].InitHidden(2), dec.Cells[1].InitHidden(2), dec.Cells[2].InitHidden(2)}
	x := NewTensor(2, 3, 2)
	x.Data[0] = 1
	top, next, err := dec.Forward(x, states, supports)
	if err != nil {
		t.Fatal(err)
	}
	if len(next) != 3 {
		t.Fatalf("expected 3 states, got %d", len(next))
	}
	if top != next[2] {
		t.Error("top output should be the last layer's state")
	}
	for i, s := range next {
		if s.Shape[0] != 2 || s.Shape[1] != 3 || s.Shape[2] != 4 {
			t.Errorf("state %d: expected (2, 3, 4), got %v", i, s.Shape)
		}
	}
}

func TestDecoderStateCount(t *testing.T) {
	dec, _ := NewDecoder(3, 2, 4, 2, 1, 2, rand.New(rand.NewSource(1)))
	_, _, err := dec.Forward(NewTensor(1, 3, 2), []*Tensor{NewTensor(1, 3, 4)}, []*mat.Dense{eye(3)})
	var sm *ShapeMismatchError
	if !errors.As(err, &sm) {
		t.Fatalf("expected ShapeMismatchError, got %v", err)
	}
}
