package mstgrn

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func newTestModel(t *testing.T, cfg Config, opts ...Option) *Model {
	t.Helper()
	m, err := New(cfg, append([]Option{WithLogger(quietLogger())}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestModelForwardShapes(t *testing.T) {
	cfg := smallConfig()
	m := newTestModel(t, cfg)
	out, err := m.Forward(context.Background(), randomInput(cfg, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, 2, 4, 1}
	for i := range want {
		if out.Forecast.Shape[i] != want[i] {
			t.Fatalf("expected forecast %v, got %v", want, out.Forecast.Shape)
		}
	}
	if out.Memory.Shape[1] != cfg.Horizon || out.Memory.Last() != 2*cfg.MemDim {
		t.Errorf("expected memory (1, 2, 4, 8), got %v", out.Memory.Shape)
	}
	for name, x := range map[string]*Tensor{"query": out.Query, "pos": out.Positive, "neg1": out.Neg1, "neg2": out.Neg2} {
		if x.Shape[0] != 1 || x.Shape[1] != 1 || x.Shape[2] != 4 || x.Shape[3] != 8 {
			t.Errorf("%s: expected (1, 1, 4, 8), got %v", name, x.Shape)
		}
	}
}

func TestModelEvalDeterministic(t *testing.T) {
	cfg := smallConfig()
	m := newTestModel(t, cfg)
	in := randomInput(cfg, 3, 2)
	a, err := m.Forward(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Forward(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Forecast.AllClose(b.Forecast, 0) {
		t.Error("evaluation forward passes should be identical")
	}
}

func TestModelSameSeedSameParams(t *testing.T) {
	cfg := smallConfig()
	in := randomInput(cfg, 1, 5)
	a, _ := newTestModel(t, cfg).Forward(context.Background(), in)
	b, _ := newTestModel(t, cfg).Forward(context.Background(), in)
	if !a.Forecast.AllClose(b.Forecast, 0) {
		t.Error("models built from the same seed should agree")
	}
}

func TestModelMissingInputs(t *testing.T) {
	cfg := smallConfig()
	m := newTestModel(t, cfg)
	m.SetTraining(true)

	in := randomInput(cfg, 1, 1)
	in.Labels = nil
	seen := 10
	in.BatchesSeen = &seen
	_, err := m.Forward(context.Background(), in)
	var mi *MissingInputError
	if !errors.As(err, &mi) || mi.Name != "labels" {
		t.Fatalf("expected missing labels, got %v", err)
	}

	in = randomInput(cfg, 1, 1)
	_, err = m.Forward(context.Background(), in)
	if !errors.As(err, &mi) || mi.Name != "batches_seen" {
		t.Fatalf("expected missing batches_seen, got %v", err)
	}

	// evaluation needs neither
	m.SetTraining(false)
	in.Labels = nil
	if _, err := m.Forward(context.Background(), in); err != nil {
		t.Errorf("evaluation should not need labels: %v", err)
	}
}

func TestModelCurriculumOffNeedsNoLabels(t *testing.T) {
	cfg := smallConfig()
	cfg.UseCurriculumLearning = false
	s := &countingSampler{draw: 0}
	m := newTestModel(t, cfg, WithSampler(s))
	m.SetTraining(true)
	in := randomInput(cfg, 1, 1)
	in.Labels = nil
	if _, err := m.Forward(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if s.calls != 0 {
		t.Errorf("expected no coin flips without curriculum, got %d", s.calls)
	}
}

func TestModelSamplerCalledOncePerStep(t *testing.T) {
	cfg := smallConfig()
	cfg.Horizon = 3
	s := &countingSampler{draw: 0.5}
	m := newTestModel(t, cfg, WithSampler(s))
	m.SetTraining(true)
	in := randomInput(cfg, 2, 1)
	seen := 0
	in.BatchesSeen = &seen
	if _, err := m.Forward(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if s.calls != cfg.Horizon {
		t.Errorf("expected %d coin flips, got %d", cfg.Horizon, s.calls)
	}

	m.SetTraining(false)
	if _, err := m.Forward(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if s.calls != cfg.Horizon {
		t.Errorf("evaluation should not flip coins, got %d calls", s.calls)
	}
}

func TestModelTeacherForcing(t *testing.T) {
	cfg := smallConfig()
	cfg.Horizon = 3
	in := randomInput(cfg, 1, 9)
	for i := range in.Labels.Data {
		in.Labels.Data[i] = 5
	}

	eval := newTestModel(t, cfg)
	base, err := eval.Forward(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	// late in training the threshold is ~0: a 0.5 draw never forces
	late := newTestModel(t, cfg, WithSampler(&countingSampler{draw: 0.5}))
	late.SetTraining(true)
	seen := 1000000
	in.BatchesSeen = &seen
	free, err := late.Forward(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if !free.Forecast.AllClose(base.Forecast, 0) {
		t.Error("without forcing training and evaluation should agree")
	}

	// a 0 draw always forces: step 0 is unchanged, later steps see labels
	early := newTestModel(t, cfg, WithSampler(&countingSampler{draw: 0}))
	early.SetTraining(true)
	seen = 0
	forced, err := early.Forward(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if !forced.Forecast.Step(0).AllClose(base.Forecast.Step(0), 0) {
		t.Error("forcing must not change the first step")
	}
	if forced.Forecast.Step(1).AllClose(base.Forecast.Step(1), 1e-12) {
		t.Error("forcing should change later steps")
	}
}

func TestModelShapeMismatch(t *testing.T) {
	cfg := smallConfig()
	m := newTestModel(t, cfg)
	in := randomInput(cfg, 1, 1)
	in.X = NewTensor(1, cfg.Horizon, cfg.NumNodes+1, cfg.InputDim)
	_, err := m.Forward(context.Background(), in)
	var sm *ShapeMismatchError
	if !errors.As(err, &sm) {
		t.Fatalf("expected ShapeMismatchError, got %v", err)
	}
	if _, err := m.Forward(context.Background(), nil); err == nil {
		t.Error("expected error for nil input")
	}
}

func TestModelObserverAndParams(t *testing.T) {
	cfg := smallConfig()
	var mu sync.Mutex
	counts := map[string]int{}
	obs := ObserverFunc(func(_ context.Context, name string, _ *Tensor) error {
		mu.Lock()
		counts[name]++
		mu.Unlock()
		return nil
	})
	m := newTestModel(t, cfg, WithObserver(obs))
	if _, err := m.Forward(context.Background(), randomInput(cfg, 1, 1)); err != nil {
		t.Fatal(err)
	}
	if counts["attention.spatial"] != 1 || counts["attention.temporal"] != 1 {
		t.Errorf("expected one observation each, got %v", counts)
	}

	names := map[string]bool{}
	for _, p := range m.Params() {
		if names[p.Name] {
			t.Errorf("duplicate parameter name %s", p.Name)
		}
		names[p.Name] = true
	}
	for _, want := range []string{"memory.Memory", "memory.We1", "memory.We2", "decoder.0.gate.weights", "projection.weight"} {
		if !names[want] {
			t.Errorf("missing parameter %s", want)
		}
	}
	if m.NumParams() <= 0 {
		t.Error("expected a positive parameter count")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.RNNUnits = 7
	_, err := New(cfg)
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
