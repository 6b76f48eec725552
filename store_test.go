package mstgrn

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "runs.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	first, err := s.CreateRun(ctx, smallConfig(), "first")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.CreateRun(ctx, smallConfig(), "second")
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("run IDs must be unique")
	}
	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second || runs[0].Note != "second" {
		t.Errorf("expected newest run first, got %+v", runs[0])
	}
	if runs[1].Config.NumNodes != 4 {
		t.Errorf("expected stored config, got %+v", runs[1].Config)
	}
}

func TestStoreTensors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run, err := s.CreateRun(ctx, smallConfig(), "")
	if err != nil {
		t.Fatal(err)
	}
	a, _ := FromSlice([]float64{1.5, -2, math.Pi, 0, 1e-9, 42}, 1, 2, 3)
	b := NewTensor(2, 2)
	for _, x := range []*Tensor{a, b} {
		if err := s.SaveTensor(ctx, run, "attention.spatial", x); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.LoadTensors(ctx, run, "attention.spatial")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tensors, got %d", len(got))
	}
	if !got[0].AllClose(a, 0) || !got[1].AllClose(b, 0) {
		t.Errorf("stored tensors changed: %v %v", got[0], got[1])
	}
	if other, _ := s.LoadTensors(ctx, run, "attention.temporal"); len(other) != 0 {
		t.Errorf("expected no temporal tensors, got %d", len(other))
	}
}

func TestStoreMetrics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run, _ := s.CreateRun(ctx, smallConfig(), "")
	if err := s.RecordMetrics(ctx, run, Metrics{MAE: 1, RMSE: 2, MAPE: 0.1}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordMetrics(ctx, run, Metrics{MAE: 3, RMSE: 4, MAPE: 0.2}); err != nil {
		t.Fatal(err)
	}
	m, err := s.RunMetrics(ctx, run)
	if err != nil {
		t.Fatal(err)
	}
	if m.MAE != 3 || m.RMSE != 4 || m.MAPE != 0.2 {
		t.Errorf("expected the latest metrics, got %+v", m)
	}
}

func TestStoreObserverForward(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	cfg := smallConfig()
	run, _ := s.CreateRun(ctx, cfg, "observed")
	m := newTestModel(t, cfg, WithObserver(&StoreObserver{Store: s, RunID: run}))
	if _, err := m.Forward(ctx, randomInput(cfg, 2, 1)); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"attention.spatial", "attention.temporal"} {
		ts, err := s.LoadTensors(ctx, run, name)
		if err != nil {
			t.Fatal(err)
		}
		if len(ts) != 1 || ts[0].Shape[0] != 2 || ts[0].Shape[2] != cfg.NumNodes {
			t.Errorf("%s: unexpected stored tensors %v", name, ts)
		}
	}
}
