package mstgrn

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// ============================================================
// SQLITE STORE: runs, diagnostic tensors, metrics
// ============================================================

// Store persists forecast runs, the tensors observed during them and their
// evaluation metrics in a SQLite database.
type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Run is one stored forecast run.
type Run struct {
	ID        string
	CreatedAt time.Time
	Config    Config
	Note      string
}

// Metrics are the masked errors of one run.
type Metrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"`
}

// OpenStore opens (or creates) the database at path and applies the schema.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS runs(
			id TEXT PRIMARY KEY,
			ts REAL NOT NULL,
			config TEXT NOT NULL,
			note TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tensors(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			ts REAL NOT NULL,
			name TEXT NOT NULL,
			shape TEXT NOT NULL,
			data BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS tensors_run_name ON tensors(run_id, name)`,
		`CREATE TABLE IF NOT EXISTS metrics(
			run_id TEXT PRIMARY KEY REFERENCES runs(id),
			ts REAL NOT NULL,
			mae REAL,
			rmse REAL,
			mape REAL
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init store schema: %w", err)
		}
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

// Close releases the database and codecs.
func (s *Store) Close() error {
	s.dec.Close()
	if err := s.enc.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

func nowSeconds() float64 { return float64(time.Now().UnixMilli()) / 1000.0 }

// CreateRun records a new run and returns its ID.
func (s *Store) CreateRun(ctx context.Context, cfg Config, note string) (string, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, "INSERT INTO runs(id, ts, config, note) VALUES(?,?,?,?)",
		id, nowSeconds(), string(cfgJSON), note); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, ts, config, note FROM runs ORDER BY ts DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		var (
			r       Run
			ts      float64
			cfgJSON string
			note    sql.NullString
		)
		if err := rows.Scan(&r.ID, &ts, &cfgJSON, &note); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cfgJSON), &r.Config); err != nil {
			return nil, fmt.Errorf("run %s config: %w", r.ID, err)
		}
		r.CreatedAt = time.UnixMilli(int64(ts * 1000))
		r.Note = note.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveTensor stores t under name for a run, zstd-compressed.
func (s *Store) SaveTensor(ctx context.Context, runID, name string, t *Tensor) error {
	shape, err := json.Marshal(t.Shape)
	if err != nil {
		return err
	}
	raw := make([]byte, 8*len(t.Data))
	for i, v := range t.Data {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	blob := s.enc.EncodeAll(raw, nil)
	_, err = s.db.ExecContext(ctx, "INSERT INTO tensors(run_id, ts, name, shape, data) VALUES(?,?,?,?,?)",
		runID, nowSeconds(), name, string(shape), blob)
	if err != nil {
		return fmt.Errorf("save tensor %s: %w", name, err)
	}
	return nil
}

// LoadTensors returns every tensor stored under name for a run, oldest first.
func (s *Store) LoadTensors(ctx context.Context, runID, name string) ([]*Tensor, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT shape, data FROM tensors WHERE run_id = ? AND name = ? ORDER BY id", runID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Tensor
	for rows.Next() {
		var (
			shapeJSON string
			blob      []byte
			shape     []int
		)
		if err := rows.Scan(&shapeJSON, &blob); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(shapeJSON), &shape); err != nil {
			return nil, err
		}
		raw, err := s.dec.DecodeAll(blob, nil)
		if err != nil {
			return nil, fmt.Errorf("decode tensor %s: %w", name, err)
		}
		data := make([]float64, len(raw)/8)
		for i := range data {
			data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
		}
		t, err := FromSlice(data, shape...)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordMetrics stores (or replaces) the metrics of a run.
func (s *Store) RecordMetrics(ctx context.Context, runID string, m Metrics) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO metrics(run_id, ts, mae, rmse, mape) VALUES(?,?,?,?,?)",
		runID, nowSeconds(), m.MAE, m.RMSE, m.MAPE)
	return err
}

// RunMetrics reads back the metrics of a run.
func (s *Store) RunMetrics(ctx context.Context, runID string) (Metrics, error) {
	var m Metrics
	err := s.db.QueryRowContext(ctx, "SELECT mae, rmse, mape FROM metrics WHERE run_id = ?", runID).
		Scan(&m.MAE, &m.RMSE, &m.MAPE)
	return m, err
}

// StoreObserver writes every observed tensor into a store under one run.
type StoreObserver struct {
	Store *Store
	RunID string
}

func (o *StoreObserver) Observe(ctx context.Context, name string, t *Tensor) error {
	return o.Store.SaveTensor(ctx, o.RunID, name, t)
}
