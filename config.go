package mstgrn

import (
	"encoding/json"
	"fmt"
	"os"
)

// ============================================================
// CONFIG
// ============================================================

// Config holds every constructor option of the forecasting model.
// The zero values of the required fields (nodes, dims, horizon, rnn units)
// are rejected by Validate.
type Config struct {
	// graph / io
	NumNodes  int `json:"num_nodes"`
	InputDim  int `json:"input_dim"`
	OutputDim int `json:"output_dim"`
	Horizon   int `json:"horizon"`
	YCovDim   int `json:"ycov_dim"`

	// recurrent decoder
	RNNUnits  int `json:"rnn_units"`
	NumLayers int `json:"num_layers"`
	ChebK     int `json:"cheb_k"`

	// memory bank
	MemNum int `json:"mem_num"`
	MemDim int `json:"mem_dim"`

	// curriculum
	CLDecaySteps          float64 `json:"cl_decay_steps"`
	UseCurriculumLearning bool    `json:"use_curriculum_learning"`

	// embedding / attention
	EmbedDim         int `json:"embed_dim"`
	AdaptiveEmbedDim int `json:"adaptive_embedding_dim"`
	AttentionHeads   int `json:"attention_heads"`
	StepsPerDay      int `json:"steps_per_day"`
	DaysPerWeek      int `json:"days_per_week"`
	MaxSeqLen        int `json:"max_seq_len"`

	Seed int64 `json:"seed"`
}

// DefaultConfig returns the optional settings at their defaults. The caller
// still has to fill in nodes, dims, horizon and rnn units.
func DefaultConfig() Config {
	return Config{
		YCovDim:               2,
		NumLayers:             1,
		ChebK:                 3,
		MemNum:                20,
		MemDim:                72,
		CLDecaySteps:          2000,
		UseCurriculumLearning: true,
		AttentionHeads:        4,
		StepsPerDay:           1440,
		DaysPerWeek:           7,
		MaxSeqLen:             288,
		Seed:                  42,
	}
}

// LoadConfig reads a JSON file and overlays it on DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// withDerived fills the embedding split so that the fused width
// embed_dim + adaptive_embedding_dim equals mem_dim.
func (c Config) withDerived() Config {
	switch {
	case c.EmbedDim == 0 && c.AdaptiveEmbedDim == 0:
		c.AdaptiveEmbedDim = c.MemDim / 3
		if c.AdaptiveEmbedDim < 1 {
			c.AdaptiveEmbedDim = 1
		}
		c.EmbedDim = c.MemDim - c.AdaptiveEmbedDim
	case c.EmbedDim == 0:
		c.EmbedDim = c.MemDim - c.AdaptiveEmbedDim
	case c.AdaptiveEmbedDim == 0:
		c.AdaptiveEmbedDim = c.MemDim - c.EmbedDim
	}
	return c
}

// Validate reports the first invalid setting as a *ConfigurationError.
func (c Config) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"num_nodes", c.NumNodes},
		{"input_dim", c.InputDim},
		{"output_dim", c.OutputDim},
		{"horizon", c.Horizon},
		{"rnn_units", c.RNNUnits},
		{"ycov_dim", c.YCovDim},
		{"mem_dim", c.MemDim},
		{"attention_heads", c.AttentionHeads},
		{"steps_per_day", c.StepsPerDay},
		{"days_per_week", c.DaysPerWeek},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return configErrorf(p.name, "must be positive, got %d", p.v)
		}
	}
	if c.NumLayers < 1 {
		return configErrorf("num_layers", "decoder needs at least one layer, got %d", c.NumLayers)
	}
	if c.ChebK < 2 {
		return configErrorf("cheb_k", "must be at least 2, got %d", c.ChebK)
	}
	if c.MemNum < 2 {
		return configErrorf("mem_num", "top-2 retrieval needs at least 2 prototypes, got %d", c.MemNum)
	}
	if c.CLDecaySteps <= 0 {
		return configErrorf("cl_decay_steps", "must be positive, got %g", c.CLDecaySteps)
	}
	if c.MaxSeqLen < c.Horizon {
		return configErrorf("max_seq_len", "%d is shorter than horizon %d", c.MaxSeqLen, c.Horizon)
	}
	d := c.withDerived()
	if d.EmbedDim < 1 || d.AdaptiveEmbedDim < 1 {
		return configErrorf("embed_dim", "embed %d and adaptive %d must both be positive", d.EmbedDim, d.AdaptiveEmbedDim)
	}
	if d.EmbedDim+d.AdaptiveEmbedDim != d.MemDim {
		return configErrorf("embed_dim", "embed %d + adaptive %d must equal mem_dim %d", d.EmbedDim, d.AdaptiveEmbedDim, d.MemDim)
	}
	if c.RNNUnits != 2*c.MemDim {
		return configErrorf("rnn_units", "must equal 2*mem_dim (%d) to seed the decoder from memory, got %d", 2*c.MemDim, c.RNNUnits)
	}
	return nil
}

// memoryWidth is the feature width of a memory prototype.
func (c Config) memoryWidth() int { return 2 * c.MemDim }

// fusedWidth is the per-node width after embedding and fusion.
func (c Config) fusedWidth() int {
	d := c.withDerived()
	return d.EmbedDim + d.AdaptiveEmbedDim
}

// decoderInputDim is go ++ future covariates ++ retrieved memory.
func (c Config) decoderInputDim() int {
	return c.OutputDim + c.YCovDim + c.memoryWidth()
}
