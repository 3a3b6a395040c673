package eigen

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/charmbracelet/log"
)

var (
	// ErrNotLoaded is returned when an operation needs weights but none are loaded.
	ErrNotLoaded = errors.New("model not loaded")
	// ErrDegenerateInput is returned when a training pair encodes to fewer than two tokens.
	ErrDegenerateInput = errors.New("training sequence shorter than two tokens")
	// ErrNonFinite is returned when a training step produced a NaN or Inf loss or gradient.
	ErrNonFinite = errors.New("non-finite loss or gradient")
	// ErrCorruptWeights is returned when weights holding NaN or Inf would be saved.
	ErrCorruptWeights = errors.New("weights contain NaN or Inf")
)

// Engine owns a model together with its training counters.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	// Model is the current model; nil until one is loaded or set.
	Model *Model
	// Age is the cumulative number of trained token positions.
	Age int
	// Samples is the number of completed training steps.
	Samples int
	// Logger receives guard trips and progress messages.
	Logger *log.Logger

	rng       *rand.Rand
	tokenizer Tokenizer
}

// NewEngine returns an engine without a model whose sampler is seeded by seed.
func NewEngine(seed uint64) *Engine {
	return &Engine{
		Logger: log.Default(),
		rng:    rand.New(rand.NewPCG(seed, seed+1)),
	}
}

// SetModel replaces the engine's model. The counters are left untouched.
func (e *Engine) SetModel(model *Model) error {
	tokenizer, err := NewByteTokenizer(model.Config.VocabSize)
	if err != nil {
		return err
	}
	e.Model = model
	e.tokenizer = tokenizer
	return nil
}

// Loaded reports whether the engine holds loaded weights.
func (e *Engine) Loaded() bool {
	return e.Model != nil && e.Model.Loaded
}

// Load reads the weights at path, preferring its live sibling when that file
// exists, and returns the loaded configuration.
func (e *Engine) Load(path string) (Config, error) {
	src := path
	if live := LivePath(path); live != path {
		if _, err := os.Stat(live); err == nil {
			src = live
		}
	}
	model, err := LoadModel(src)
	if err != nil {
		return Config{}, err
	}
	if err := e.SetModel(model); err != nil {
		return Config{}, err
	}
	e.Logger.Info("loaded model",
		"path", src,
		"vocab", model.Config.VocabSize,
		"d_model", model.Config.DModel,
		"layers", model.Config.NLayers,
		"params", model.Params.Len(),
	)
	return model.Config, nil
}

// Save writes the weights to path.
func (e *Engine) Save(path string) error {
	if !e.Loaded() {
		return ErrNotLoaded
	}
	if err := SaveModel(e.Model, path); err != nil {
		if errors.Is(err, ErrCorruptWeights) {
			e.Logger.WithPrefix("save-guard").Error("refusing to save", "path", path, "err", err)
		}
		return fmt.Errorf("failed to save model: %w", err)
	}
	return nil
}
