package eigen

import (
	"fmt"
	"math/rand/v2"

	"github.com/conneroisu/eigen/pkg/torch"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// MaxLayers bounds the number of transformer blocks a model may hold.
	MaxLayers = 8
	// MaxDim bounds vocab_size, d_model, d_ff and max_seq_len.
	MaxDim = 1 << 16
	// MaxParams bounds the number of values in the parameter slab and in a
	// full-context training cache.
	MaxParams = 1 << 28

	// trainingEps and inferenceEps are the layer norm variance floors of the
	// cached and plain forward modes.
	trainingEps  = 1e-5
	inferenceEps = 1e-6

	initStdDev = 0.02
)

// Config is a configuration struct for the model.
type Config struct {
	// VocabSize is the size of the vocabulary.
	VocabSize int `json:"vocab_size"`
	// DModel is the width of the residual stream.
	DModel int `json:"d_model"`
	// NHeads is the number of attention heads. It is stored and persisted but
	// attention runs as a single head over the full DModel width.
	NHeads int `json:"n_heads"`
	// NLayers is the number of transformer blocks.
	NLayers int `json:"n_layers"`
	// DFF is the hidden width of the feed-forward blocks.
	DFF int `json:"d_ff"`
	// MaxSeqLen is the context window in tokens.
	MaxSeqLen int `json:"max_seq_len"`
}

// Validate checks that every dimension is usable.
func (cfg Config) Validate() error {
	switch {
	case cfg.VocabSize <= 0:
		return fmt.Errorf("vocab_size must be positive, got %d", cfg.VocabSize)
	case cfg.DModel <= 0:
		return fmt.Errorf("d_model must be positive, got %d", cfg.DModel)
	case cfg.DFF <= 0:
		return fmt.Errorf("d_ff must be positive, got %d", cfg.DFF)
	case cfg.MaxSeqLen <= 0:
		return fmt.Errorf("max_seq_len must be positive, got %d", cfg.MaxSeqLen)
	case cfg.NLayers < 0:
		return fmt.Errorf("n_layers must not be negative, got %d", cfg.NLayers)
	case cfg.VocabSize > MaxDim, cfg.DModel > MaxDim, cfg.DFF > MaxDim, cfg.MaxSeqLen > MaxDim:
		return fmt.Errorf("dimensions of %+v exceed %d", cfg, MaxDim)
	}
	if n := cfg.paramCount(); n > MaxParams {
		return fmt.Errorf("%d parameters exceed %d", n, MaxParams)
	}
	if n := cfg.cacheCount(); n > MaxParams {
		return fmt.Errorf("training cache of %d values exceeds %d", n, MaxParams)
	}
	return nil
}

// paramCount is the size of the parameter slab. Dimensions must already be
// bounded by MaxDim so the products fit in an int64.
func (cfg Config) paramCount() int64 {
	V, C, F := int64(cfg.VocabSize), int64(cfg.DModel), int64(cfg.DFF)
	L := int64(min(cfg.NLayers, MaxLayers))
	return 2*V*C + L*(4*C*C+2*C*F+4*C)
}

// cacheCount is the size of a training cache at the full context length.
func (cfg Config) cacheCount() int64 {
	C, F, T := int64(cfg.DModel), int64(cfg.DFF), int64(cfg.MaxSeqLen)
	L := int64(min(cfg.NLayers, MaxLayers))
	return L*T*C*6 + L*T*T + L*T*F + L*T*2 + T*C
}

// Model is a decoder-only transformer over byte tokens.
type Model struct {
	// Config is the configuration of the model.
	Config Config
	// Params is the parameters of the model.
	Params ParameterTensors
	// Loaded is set once the weights have been populated.
	Loaded bool
}

// NewModel allocates an unloaded model with zeroed weights.
// NLayers above MaxLayers is truncated.
func NewModel(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.NLayers = min(cfg.NLayers, MaxLayers)
	model := &Model{Config: cfg}
	model.Params.Init(cfg)
	return model, nil
}

// NewRandomModel creates a loaded model with normally distributed weights,
// unit layer norm scales and zero shifts.
func NewRandomModel(cfg Config, seed uint64) (*Model, error) {
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	dist := distuv.Normal{
		Mu:    0,
		Sigma: initStdDev,
		Src:   rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
	}
	for i := range model.Params.Memory {
		model.Params.Memory[i] = dist.Rand()
	}
	for _, layer := range model.Params.Layers {
		for i := range layer.LN1Gamma.data {
			layer.LN1Gamma.data[i] = 1
			layer.LN1Beta.data[i] = 0
			layer.LN2Gamma.data[i] = 1
			layer.LN2Beta.data[i] = 0
		}
	}
	model.Loaded = true
	return model, nil
}

// Forward runs the plain (inference) pass and returns the logits of the last
// position. An empty sequence yields all-zero logits.
func (model *Model) Forward(tokens []int) []float64 {
	logits := make([]float64, model.Config.VocabSize)
	model.forward(tokens, logits, nil)
	return logits
}

// forward is the pipeline shared by both modes. With a nil cache the
// intermediates are discarded; otherwise cache is resized to len(tokens) and
// receives every activation the backward pass reads.
func (model *Model) forward(tokens []int, logits []float64, cache *TrainingCache) {
	cfg := model.Config
	T, C, F, V := len(tokens), cfg.DModel, cfg.DFF, cfg.VocabSize
	if T == 0 {
		clear(logits)
		return
	}
	L := len(model.Params.Layers)
	eps := inferenceEps
	if cache != nil {
		eps = trainingEps
		cache.Resize(L, T, C, F)
	}

	x := make([]float64, T*C)
	torch.EncoderForward(x, tokens, model.Params.TokenEmbed.data, V, C)

	var norm1, norm2, probs, preAct, xnorm1, std1, xnorm2, std2 []float64
	if cache == nil {
		norm1 = make([]float64, T*C)
		norm2 = make([]float64, T*C)
		probs = make([]float64, T*T)
		preAct = make([]float64, T*F)
	}
	attnOut := make([]float64, T*C)
	ffnOut := make([]float64, T*C)
	for l, layer := range model.Params.Layers {
		if cache != nil {
			copy(cache.LayerInputs.at(l), x)
			norm1, norm2 = cache.Norm1Outputs.at(l), cache.Norm2Outputs.at(l)
			probs, preAct = cache.AttnProbs.at(l), cache.FFNPreAct.at(l)
			xnorm1, std1 = cache.LN1XNorm.at(l), cache.LN1Std.at(l)
			xnorm2, std2 = cache.LN2XNorm.at(l), cache.LN2Std.at(l)
		}
		torch.LayernormForward(norm1, xnorm1, std1, x, layer.LN1Gamma.data, layer.LN1Beta.data, T, C, eps)
		torch.AttentionForward(
			attnOut,
			probs,
			norm1,
			layer.Wq.data,
			layer.Wk.data,
			layer.Wv.data,
			layer.Wo.data,
			T,
			C,
		)
		torch.ResidualForward(x, attnOut)
		if cache != nil {
			copy(cache.PostAttn.at(l), x)
		}
		torch.LayernormForward(norm2, xnorm2, std2, x, layer.LN2Gamma.data, layer.LN2Beta.data, T, C, eps)
		torch.FeedForwardForward(ffnOut, preAct, norm2, layer.FF1.data, layer.FF2.data, T, C, F)
		torch.ResidualForward(x, ffnOut)
	}
	if cache != nil {
		copy(cache.FinalX.data, x)
	}
	// only the last position is ever sampled or trained on
	torch.Matmul(logits, x[(T-1)*C:], model.Params.OutputProj.data, 1, C, V)
}
