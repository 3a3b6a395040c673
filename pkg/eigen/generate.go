package eigen

import (
	"bytes"
	"math"
	"strings"

	"github.com/conneroisu/eigen/pkg/text"
	"github.com/conneroisu/eigen/pkg/torch"
)

const (
	// minTemperature is the floor applied to non-positive temperatures.
	minTemperature = 1e-3

	// commonPenalty and rarePenalty are subtracted from a logit per prior
	// emission of the token; whitespace is never penalised.
	commonPenalty = 0.5
	rarePenalty   = 2.0

	// a run-on check happens once the current sentence is at least this long
	runOnSegment = 20
	// and stops when the next space is less likely than this
	runOnSpaceProb = 0.3
	maxSentences   = 3
)

const (
	whitespaceTokens = " \t\n\r"
	commonTokens     = "aeiouthnsr.,!?':"
	terminators      = ".!?"
)

// sampleMult samples an index from probabilities by inverse CDF given a
// uniform coin in [0, 1).
func sampleMult(probabilities []float64, coin float64) int {
	var cdf float64
	for i, prob := range probabilities {
		cdf += prob
		if coin < cdf {
			return i
		}
	}
	return len(probabilities) - 1
}

// repetitionPenalty is the amount subtracted from the logit of token after it
// has been emitted count times.
func repetitionPenalty(token, count int) float64 {
	switch {
	case count == 0:
		return 0
	case token < 128 && strings.IndexByte(whitespaceTokens, byte(token)) >= 0:
		return 0
	case token < 128 && strings.IndexByte(commonTokens, byte(token)) >= 0:
		return commonPenalty * float64(count)
	}
	return rarePenalty * float64(count)
}

// Generate samples up to maxTokens tokens after prompt and returns the
// produced text trimmed to a sentence boundary.
//
// Decoding stops early on a newline or the null token, after the third
// sentence terminator, or after a terminator closing a long sentence when the
// model does not expect a space to follow. An unloaded engine or a
// non-positive maxTokens yields "".
func (e *Engine) Generate(prompt string, temperature float64, maxTokens int) string {
	if !e.Loaded() || maxTokens <= 0 {
		return ""
	}
	if temperature <= 0 {
		temperature = minTemperature
	}
	model := e.Model
	cfg := model.Config
	ctxLen := cfg.MaxSeqLen

	promptTokens, err := e.tokenizer.Encode(prompt)
	if err != nil {
		return ""
	}
	tokens := make([]int, 0, 4*ctxLen)
	tokens = append(tokens, promptTokens[max(0, len(promptTokens)-ctxLen):]...)

	counts := make([]int, cfg.VocabSize)
	out := make([]byte, 0, maxTokens)
	for step := 0; step < maxTokens; step++ {
		logits := model.Forward(tokens[max(0, len(tokens)-ctxLen):])
		for i := range logits {
			logits[i] = logits[i]/temperature - repetitionPenalty(i, counts[i])
		}
		torch.SoftmaxRows(logits, 1, len(logits))
		next := sampleMult(logits, e.rng.Float64())

		counts[next]++
		if len(tokens) < cap(tokens) {
			tokens = append(tokens, next)
		}
		decoded, err := e.tokenizer.Decode([]int{next})
		if err == nil {
			out = append(out, decoded...)
		}

		if stopAfter(out, next, func() float64 { return e.spaceProbability(tokens) }) {
			break
		}
	}
	return text.TrimToSentence(string(out))
}

// stopAfter reports whether decoding ends after next was sampled and out holds
// the text decoded so far. The rules are evaluated on every step, including
// steps whose token decodes to nothing; lookahead is only consulted for the
// run-on rule.
func stopAfter(out []byte, next int, lookahead func() float64) bool {
	if next == '\n' || next == 0 {
		return true
	}
	if len(out) <= 3 || strings.IndexByte(terminators, out[len(out)-1]) < 0 {
		return false
	}
	if countTerminators(out) >= maxSentences {
		return true
	}
	segment := len(out) - 1 - bytes.LastIndexAny(out[:len(out)-1], terminators)
	return segment >= runOnSegment && lookahead() < runOnSpaceProb
}

// spaceProbability is the plain-forward probability that a space follows tokens.
func (e *Engine) spaceProbability(tokens []int) float64 {
	if ' ' >= e.Model.Config.VocabSize {
		return 0
	}
	logits := e.Model.Forward(tokens[max(0, len(tokens)-e.Model.Config.MaxSeqLen):])
	torch.SoftmaxRows(logits, 1, len(logits))
	if math.IsNaN(logits[' ']) {
		return 0
	}
	return logits[' ']
}

func countTerminators(out []byte) int {
	var n int
	for _, b := range out {
		if strings.IndexByte(terminators, b) >= 0 {
			n++
		}
	}
	return n
}
