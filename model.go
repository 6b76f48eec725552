package mstgrn

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// ============================================================
// MODEL
// ============================================================

// Model is the spatiotemporal forecaster. It owns the memory bank, the
// embedding stage, both attention operators, the channel reductions, the
// decoder (which owns its cells) and the output projection.
type Model struct {
	cfg Config

	Memory      *MemoryBank
	Embedding   *Embedding
	Attention   *DualAttention
	ReduceQuery *ChannelReduce // query / positive / negatives
	ReduceValue *ChannelReduce // retrieved values -> initial decoder state
	Decoder     *Decoder
	Projection  *Linear // rnn_units -> output_dim

	training bool
	sampler  Sampler
	observer Observer
	logger   *logrus.Logger
	rng      *rand.Rand

	spatial, temporal Attention
}

// Option customizes a Model at construction.
type Option func(*Model)

// WithRand sets the source used for parameter initialization.
func WithRand(r *rand.Rand) Option { return func(m *Model) { m.rng = r } }

// WithSampler sets the teacher-forcing coin source.
func WithSampler(s Sampler) Option { return func(m *Model) { m.sampler = s } }

// WithObserver receives the spatial and temporal attention outputs of every
// forward pass.
func WithObserver(o Observer) Option { return func(m *Model) { m.observer = o } }

// WithLogger sets the logger; the default is logrus.New().
func WithLogger(l *logrus.Logger) Option { return func(m *Model) { m.logger = l } }

// WithAttention replaces the built-in spatial and temporal attention operators.
func WithAttention(spatial, temporal Attention) Option {
	return func(m *Model) { m.spatial, m.temporal = spatial, temporal }
}

// New validates cfg and builds a model with freshly initialized parameters.
func New(cfg Config, opts ...Option) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDerived()
	m := &Model{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(cfg.Seed))
	}
	if m.sampler == nil {
		m.sampler = rand.New(rand.NewSource(cfg.Seed + 1))
	}
	if m.logger == nil {
		m.logger = logrus.New()
	}
	if m.observer == nil {
		m.observer = NopObserver{}
	}

	rng := m.rng
	fused := cfg.fusedWidth()
	m.Memory = NewMemoryBank(cfg.NumNodes, cfg.MemNum, cfg.memoryWidth(), rng)
	m.Embedding = newEmbedding(cfg, rng)
	if m.spatial == nil {
		m.spatial = NewMultiHeadAttention("attention.spatial", fused, cfg.AttentionHeads, fused, rng)
	}
	if m.temporal == nil {
		m.temporal = NewMultiHeadAttention("attention.temporal", fused, cfg.AttentionHeads, fused, rng)
	}
	m.Attention = &DualAttention{Spatial: m.spatial, Temporal: m.temporal, Observer: m.observer, Logger: m.logger}
	m.ReduceQuery = newChannelReduce("reduce.query", cfg.Horizon, rng)
	m.ReduceValue = newChannelReduce("reduce.value", cfg.Horizon, rng)

	dec, err := NewDecoder(cfg.NumNodes, cfg.decoderInputDim(), cfg.RNNUnits, cfg.ChebK, 2, cfg.NumLayers, rng)
	if err != nil {
		return nil, err
	}
	m.Decoder = dec
	m.Projection = newLinear("projection", cfg.RNNUnits, cfg.OutputDim, rng)
	return m, nil
}

// Config returns the (derived) configuration the model was built with.
func (m *Model) Config() Config { return m.cfg }

// SetTraining switches between training (curriculum active) and evaluation.
func (m *Model) SetTraining(training bool) { m.training = training }

// Training reports the current mode.
func (m *Model) Training() bool { return m.training }

// Params returns every learned parameter in a stable order.
func (m *Model) Params() []*Param {
	ps := m.Memory.params()
	ps = append(ps, m.Embedding.params()...)
	ps = append(ps, attentionParams(m.spatial)...)
	ps = append(ps, attentionParams(m.temporal)...)
	ps = append(ps, m.ReduceQuery.params()...)
	ps = append(ps, m.ReduceValue.params()...)
	ps = append(ps, m.Decoder.params()...)
	ps = append(ps, m.Projection.params()...)
	return ps
}

// NumParams counts scalar parameters.
func (m *Model) NumParams() int {
	n := 0
	for _, p := range m.Params() {
		r, c := p.Shape()
		n += r * c
	}
	return n
}

// Input is one forward call's data. Labels and BatchesSeen are only needed
// while training with curriculum learning.
type Input struct {
	X           *Tensor // (B × H × N × input_dim)
	XCov        *Tensor // (B × H × N × ≥2)
	YCov        *Tensor // (B × H × N × ycov_dim)
	Labels      *Tensor // (B × H × N × output_dim), optional
	BatchesSeen *int    // optional
}

// Output carries the forecast and the tensors the contrastive loss needs.
type Output struct {
	Forecast *Tensor // (B × H × N × output_dim)
	Memory   *Tensor // raw per-step retrieved values (B × H × N × 2·mem_dim)
	Query    *Tensor // (B × 1 × N × 2·mem_dim)
	Positive *Tensor
	Neg1     *Tensor
	Neg2     *Tensor
}

func (m *Model) checkInput(in *Input) error {
	cfg := m.cfg
	if in == nil {
		return &MissingInputError{Name: "input"}
	}
	if err := in.X.expect("input.x", -1, cfg.Horizon, cfg.NumNodes, cfg.InputDim); err != nil {
		return err
	}
	batch := in.X.Shape[0]
	if batch < 1 {
		return &ShapeMismatchError{Op: "input.x", Want: []int{1, cfg.Horizon, cfg.NumNodes, cfg.InputDim}, Got: in.X.Shape,
			Detail: "batch must be at least 1"}
	}
	if err := in.XCov.expect("input.x_cov", batch, cfg.Horizon, cfg.NumNodes, -1); err != nil {
		return err
	}
	if err := in.YCov.expect("input.y_cov", batch, cfg.Horizon, cfg.NumNodes, cfg.YCovDim); err != nil {
		return err
	}
	if m.training && cfg.UseCurriculumLearning {
		if in.Labels == nil {
			return &MissingInputError{Name: "labels"}
		}
		if in.BatchesSeen == nil {
			return &MissingInputError{Name: "batches_seen"}
		}
	}
	if in.Labels != nil {
		if err := in.Labels.expect("input.labels", batch, cfg.Horizon, cfg.NumNodes, cfg.OutputDim); err != nil {
			return err
		}
	}
	return nil
}

// Forward runs one full forward pass. It either returns a complete Output
// or an error and no output.
func (m *Model) Forward(ctx context.Context, in *Input) (*Output, error) {
	if err := m.checkInput(in); err != nil {
		return nil, err
	}
	cfg := m.cfg
	batch := in.X.Shape[0]

	g1, g2 := m.Memory.AdaptiveGraphs()
	supports := []*mat.Dense{g1, g2}

	h, err := m.Embedding.Forward(in.X, in.XCov)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	fused, err := m.Attention.Forward(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("dual attention: %w", err)
	}

	var values, queries, positives, neg1s, neg2s []*Tensor
	for t := 0; t < cfg.Horizon; t++ {
		r, err := QueryMemory(m.Memory.Memory.Value, fused.Step(t))
		if err != nil {
			return nil, fmt.Errorf("memory query step %d: %w", t, err)
		}
		values = append(values, r.Value)
		queries = append(queries, r.Query)
		positives = append(positives, r.Positive)
		neg1s = append(neg1s, r.Neg1)
		neg2s = append(neg2s, r.Neg2)
	}
	out := &Output{Memory: Stack(values)}
	for _, red := range []struct {
		dst   **Tensor
		stack []*Tensor
	}{
		{&out.Query, queries},
		{&out.Positive, positives},
		{&out.Neg1, neg1s},
		{&out.Neg2, neg2s},
	} {
		if *red.dst, err = m.ReduceQuery.Reduce(Stack(red.stack)); err != nil {
			return nil, err
		}
	}
	seed, err := m.ReduceValue.Reduce(out.Memory)
	if err != nil {
		return nil, err
	}
	h0 := seed.Step(0)

	states := make([]*Tensor, len(m.Decoder.Cells))
	for i := range states {
		states[i] = h0.Clone()
	}

	forcing := m.training && cfg.UseCurriculumLearning
	threshold := 0.0
	if forcing {
		threshold = SamplingThreshold(float64(*in.BatchesSeen), cfg.CLDecaySteps)
	}
	log := m.logger.WithFields(logrus.Fields{"batch": batch, "horizon": cfg.Horizon, "threshold": threshold})
	log.Debug("decoding")

	goIn := NewTensor(batch, cfg.NumNodes, cfg.OutputDim)
	steps := make([]*Tensor, 0, cfg.Horizon)
	for t := 0; t < cfg.Horizon; t++ {
		decIn, err := Concat(goIn, in.YCov.Step(t), out.Memory.Step(t))
		if err != nil {
			return nil, fmt.Errorf("decoder input step %d: %w", t, err)
		}
		top, next, err := m.Decoder.Forward(decIn, states, supports)
		if err != nil {
			return nil, fmt.Errorf("decoder step %d: %w", t, err)
		}
		states = next
		goIn, err = m.Projection.Apply(top)
		if err != nil {
			return nil, err
		}
		steps = append(steps, goIn)
		if forcing && m.sampler.Float64() < threshold {
			goIn = in.Labels.Step(t)
			log.WithField("step", t).Debug("teacher forcing")
		}
	}
	out.Forecast = Stack(steps)
	return out, nil
}
