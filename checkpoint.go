package mstgrn

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ============================================================
// CHECKPOINTING
// ============================================================

// Checkpoint is the on-disk form of a model: its configuration and every
// parameter as rows, keyed by parameter name.
type Checkpoint struct {
	Cfg         Config                 `json:"cfg"`
	Params      map[string][][]float64 `json:"params"`
	BatchesSeen int                    `json:"batches_seen"`
}

// SaveCheckpoint writes m to path atomically (temp file + rename). Paths
// ending in ".zst" are zstd-compressed.
func SaveCheckpoint(m *Model, batchesSeen int, path string) error {
	ckpt := Checkpoint{Cfg: m.cfg, Params: make(map[string][][]float64), BatchesSeen: batchesSeen}
	for _, p := range m.Params() {
		ckpt.Params[p.Name] = p.Rows()
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	var w io.Writer = f
	var zw *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		if zw, err = zstd.NewWriter(f); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return err
		}
		w = zw
	}
	err = json.NewEncoder(w).Encode(ckpt)
	if zw != nil {
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// LoadCheckpoint rebuilds a model from path. A stored parameter whose shape
// disagrees with the configured model is a *ConfigurationError.
func LoadCheckpoint(path string, opts ...Option) (*Model, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, 0, err
		}
		defer zr.Close()
		r = zr
	}
	var ckpt Checkpoint
	if err := json.NewDecoder(r).Decode(&ckpt); err != nil {
		return nil, 0, fmt.Errorf("read checkpoint: %w", err)
	}

	m, err := New(ckpt.Cfg, opts...)
	if err != nil {
		return nil, 0, err
	}
	for _, p := range m.Params() {
		rows, ok := ckpt.Params[p.Name]
		if !ok {
			return nil, 0, configErrorf(p.Name, "missing from checkpoint")
		}
		if err := p.SetRows(rows); err != nil {
			return nil, 0, err
		}
	}
	return m, ckpt.BatchesSeen, nil
}
