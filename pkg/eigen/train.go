package eigen

import (
	"math"

	"github.com/conneroisu/eigen/pkg/data"
	"github.com/conneroisu/eigen/pkg/text"
	"github.com/conneroisu/eigen/pkg/torch"
	"gonum.org/v1/gonum/floats"
)

// bodyLRScale is the fraction of the effective learning rate applied to the
// transformer layers; the embedding and output projection use the full rate.
const bodyLRScale = 0.1

// TrainResult reports the outcome of a successful training step.
type TrainResult struct {
	// Loss is the mean cross-entropy over the predicted positions.
	Loss float64
	// TokensTrained is the number of predicted positions.
	TokensTrained int
	// Age is the engine age after the step.
	Age int
	// Samples is the number of completed steps after this one.
	Samples int
	// EffectiveLR is the learning rate applied to the embedding and projection.
	EffectiveLR float64
}

// TrainStep performs one teacher-forced SGD step on prompt followed by
// completion.
//
// Every position t predicts token t+1 from the trailing MaxSeqLen tokens up
// to t; gradients of all positions are summed before a single update. When the
// mean loss or any gradient is not finite the weights are left untouched and
// ErrNonFinite is returned.
func (e *Engine) TrainStep(prompt, completion string, lr float64) (TrainResult, error) {
	if !e.Loaded() {
		return TrainResult{}, ErrNotLoaded
	}
	model := e.Model
	cfg := model.Config
	V := cfg.VocabSize

	input, err := e.tokenizer.Encode(text.SanitizeTraining(prompt))
	if err != nil {
		return TrainResult{}, err
	}
	output, err := e.tokenizer.Encode(text.SanitizeTraining(completion))
	if err != nil {
		return TrainResult{}, err
	}
	seq := append(input, output...)
	if len(seq) < 2 {
		return TrainResult{}, ErrDegenerateInput
	}

	effLR := lr / math.Log(float64(e.Age)+math.E)
	var grads ParameterTensors
	grads.Init(cfg)
	var cache TrainingCache
	logits := make([]float64, V)
	probs := make([]float64, V)
	dlogits := make([]float64, V)

	positions := len(seq) - 1
	losses := make([]float64, positions)
	for t := 0; t < positions; t++ {
		window := seq[max(0, t+1-cfg.MaxSeqLen) : t+1]
		target := torch.ClampToken(seq[t+1], V)
		model.forward(window, logits, &cache)
		losses[t] = torch.CrossEntropyForward(probs, logits, target)
		torch.CrossentropySoftmaxBackward(dlogits, probs, target)
		model.backward(window, dlogits, &cache, &grads)
	}
	loss := floats.Sum(losses) / float64(positions)

	if !torch.IsFinite(loss) || !torch.AllFinite(grads.Memory) {
		e.Logger.WithPrefix("train-guard").Warn("discarding update",
			"loss", loss,
			"positions", positions,
			"age", e.Age,
		)
		return TrainResult{}, ErrNonFinite
	}

	floats.AddScaled(model.Params.Head(), -effLR, grads.Head())
	floats.AddScaled(model.Params.Body(), -bodyLRScale*effLR, grads.Body())
	e.Age += positions
	e.Samples++
	e.Logger.Debug("train step",
		"loss", loss,
		"tokens", positions,
		"lr", effLR,
		"age", e.Age,
		"samples", e.Samples,
	)
	return TrainResult{
		Loss:          loss,
		TokensTrained: positions,
		Age:           e.Age,
		Samples:       e.Samples,
		EffectiveLR:   effLR,
	}, nil
}

// backward accumulates into grads the gradient of the loss at the last
// position of tokens, given the cache filled by the matching cached forward.
func (model *Model) backward(tokens []int, dlogits []float64, cache *TrainingCache, grads *ParameterTensors) {
	cfg := model.Config
	T, C, F, V := len(tokens), cfg.DModel, cfg.DFF, cfg.VocabSize

	// output projection: logits = last · OutputProj
	last := cache.FinalX.data[(T-1)*C : T*C]
	dx := make([]float64, T*C)
	dlast := dx[(T-1)*C:]
	for c := 0; c < C; c++ {
		row := model.Params.OutputProj.data[c*V : (c+1)*V]
		floats.AddScaled(grads.OutputProj.data[c*V:(c+1)*V], last[c], dlogits)
		dlast[c] = floats.Dot(row, dlogits)
	}

	dnorm := make([]float64, T*C)
	for l := len(model.Params.Layers) - 1; l >= 0; l-- {
		layer, g := model.Params.Layers[l], grads.Layers[l]

		clear(dnorm)
		torch.FeedForwardBackward(
			dnorm,
			g.FF1.data,
			g.FF2.data,
			dx,
			cache.Norm2Outputs.at(l),
			layer.FF1.data,
			layer.FF2.data,
			cache.FFNPreAct.at(l),
			T, C, F,
		)
		torch.LayernormBackward(
			dx,
			g.LN2Gamma.data,
			g.LN2Beta.data,
			dnorm,
			cache.LN2XNorm.at(l),
			layer.LN2Gamma.data,
			cache.LN2Std.at(l),
			T, C,
		)

		clear(dnorm)
		torch.AttentionBackward(
			dnorm,
			g.Wq.data, g.Wk.data, g.Wv.data, g.Wo.data,
			dx,
			cache.Norm1Outputs.at(l),
			layer.Wq.data, layer.Wk.data, layer.Wv.data, layer.Wo.data,
			cache.AttnProbs.at(l),
			T, C,
		)
		torch.LayernormBackward(
			dx,
			g.LN1Gamma.data,
			g.LN1Beta.data,
			dnorm,
			cache.LN1XNorm.at(l),
			layer.LN1Gamma.data,
			cache.LN1Std.at(l),
			T, C,
		)
	}
	torch.EncoderBackward(grads.TokenEmbed.data, dx, tokens, V, C)
}

// BatchResult summarises a pass over a batch of training pairs.
type BatchResult struct {
	// Trained is the number of pairs whose step succeeded.
	Trained int
	// Failed is the number of pairs rejected by a guard or as degenerate.
	Failed int
	// Tokens is the number of positions trained across successful steps.
	Tokens int
	// Loss is the token-weighted mean loss of the successful steps.
	Loss float64
	// Age is the engine age after the batch.
	Age int
}

// TrainBatch runs one TrainStep per pair. Failed pairs are logged and skipped
// without affecting the others.
func (e *Engine) TrainBatch(pairs []data.Pair, lr float64) (BatchResult, error) {
	if !e.Loaded() {
		return BatchResult{}, ErrNotLoaded
	}
	var res BatchResult
	var weighted float64
	for _, pair := range pairs {
		step, err := e.TrainStep(pair.Prompt, pair.Completion, lr)
		if err != nil {
			res.Failed++
			e.Logger.Debug("skipping pair", "prompt", pair.Prompt, "err", err)
			continue
		}
		res.Trained++
		res.Tokens += step.TokensTrained
		weighted += step.Loss * float64(step.TokensTrained)
	}
	if res.Tokens > 0 {
		res.Loss = weighted / float64(res.Tokens)
	}
	res.Age = e.Age
	return res, nil
}
