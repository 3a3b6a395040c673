package torch

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// AttentionForward performs the fused causal self-attention forward pass.
//
// Attention is single-headed over the full model width C: queries, keys and
// values are C wide and the scores are scaled by 1/sqrt(C).
//
// Parameters:
//   - out: output matrix (T, C), overwritten
//   - probs: post-softmax attention probabilities (T, T), overwritten
//   - inp: block input (T, C)
//   - wq, wk, wv, wo: projection weights (C, C)
//   - T: sequence length
//   - C: model width
func AttentionForward(out, probs, inp, wq, wk, wv, wo []float64, T, C int) {
	q := make([]float64, T*C)
	k := make([]float64, T*C)
	v := make([]float64, T*C)
	Matmul(q, inp, wq, T, C, C)
	Matmul(k, inp, wk, T, C, C)
	Matmul(v, inp, wv, T, C, C)

	// preatt[t][t2] is the similarity between the query at t and the key at t2
	MatmulBT(probs, q, k, T, C, T)
	scale := 1.0 / math.Sqrt(float64(C))
	negInf := math.Inf(-1)
	for t := 0; t < T; t++ {
		for t2 := 0; t2 < T; t2++ {
			if t2 > t {
				probs[t*T+t2] = negInf
			} else {
				probs[t*T+t2] *= scale
			}
		}
	}
	SoftmaxRows(probs, T, T)

	context := make([]float64, T*C)
	Matmul(context, probs, v, T, T, C)
	Matmul(out, context, wo, T, C, C)
}

// AttentionBackward performs the backward pass of AttentionForward.
//
// Queries, keys, values and the context are recomputed from inp; probs must be
// the unmodified probabilities exported by the forward pass.
//
// Parameters:
//   - dinp: gradient of the block input (T, C), accumulated
//   - dwq, dwk, dwv, dwo: gradients of the projections (C, C), accumulated
//   - dout: gradient of the block output (T, C)
//   - inp: block input (T, C)
//   - wq, wk, wv, wo: projection weights (C, C)
//   - probs: cached attention probabilities (T, T)
func AttentionBackward(dinp, dwq, dwk, dwv, dwo, dout, inp, wq, wk, wv, wo, probs []float64, T, C int) {
	q := make([]float64, T*C)
	k := make([]float64, T*C)
	v := make([]float64, T*C)
	context := make([]float64, T*C)
	Matmul(q, inp, wq, T, C, C)
	Matmul(k, inp, wk, T, C, C)
	Matmul(v, inp, wv, T, C, C)
	Matmul(context, probs, v, T, T, C)

	dw := make([]float64, C*C)
	tmp := make([]float64, T*C)

	// output projection
	dcontext := make([]float64, T*C)
	MatmulBT(dcontext, dout, wo, T, C, C)
	MatmulAT(dw, context, dout, T, C, C)
	floats.Add(dwo, dw)

	// context = probs·V
	dv := make([]float64, T*C)
	MatmulAT(dv, probs, dcontext, T, T, C)
	dprobs := make([]float64, T*T)
	MatmulBT(dprobs, dcontext, v, T, C, T)
	MatmulAT(dw, inp, dv, T, C, C)
	floats.Add(dwv, dw)

	// softmax jacobian, row by row
	scale := 1.0 / math.Sqrt(float64(C))
	dscores := make([]float64, T*T)
	for t := 0; t < T; t++ {
		p := probs[t*T : t*T+T]
		dp := dprobs[t*T : t*T+T]
		s := floats.Dot(p, dp)
		for t2 := 0; t2 < T; t2++ {
			dscores[t*T+t2] = p[t2] * (dp[t2] - s) * scale
		}
	}

	// scores = Q·Kᵀ
	dq := make([]float64, T*C)
	Matmul(dq, dscores, k, T, T, C)
	dk := make([]float64, T*C)
	MatmulAT(dk, dscores, q, T, T, C)
	MatmulAT(dw, inp, dq, T, C, C)
	floats.Add(dwq, dw)
	MatmulAT(dw, inp, dk, T, C, C)
	floats.Add(dwk, dw)

	// the input feeds all three projections
	MatmulBT(tmp, dq, wq, T, C, C)
	floats.Add(dinp, tmp)
	MatmulBT(tmp, dk, wk, T, C, C)
	floats.Add(dinp, tmp)
	MatmulBT(tmp, dv, wv, T, C, C)
	floats.Add(dinp, tmp)
}

// FeedForwardForward performs the fused two-layer GELU feed-forward pass.
//
// Parameters:
//   - out: output matrix (T, C), overwritten
//   - preAct: hidden pre-activation (T, F), overwritten
//   - inp: block input (T, C)
//   - w1: first layer weights (C, F)
//   - w2: second layer weights (F, C)
func FeedForwardForward(out, preAct, inp, w1, w2 []float64, T, C, F int) {
	Matmul(preAct, inp, w1, T, C, F)
	hidden := make([]float64, T*F)
	GeluForward(hidden, preAct)
	Matmul(out, hidden, w2, T, F, C)
}

// FeedForwardBackward performs the backward pass of FeedForwardForward.
//
// The GELU derivative is evaluated at the cached pre-activation.
//
// Parameters:
//   - dinp: gradient of the block input (T, C), accumulated
//   - dw1: gradient of w1 (C, F), accumulated
//   - dw2: gradient of w2 (F, C), accumulated
//   - dout: gradient of the block output (T, C)
//   - inp: block input (T, C)
//   - w1, w2: weights
//   - preAct: cached pre-activation (T, F)
func FeedForwardBackward(dinp, dw1, dw2, dout, inp, w1, w2, preAct []float64, T, C, F int) {
	hidden := make([]float64, T*F)
	GeluForward(hidden, preAct)

	dw := make([]float64, F*C)
	MatmulAT(dw, hidden, dout, T, F, C)
	floats.Add(dw2, dw)

	dhidden := make([]float64, T*F)
	MatmulBT(dhidden, dout, w2, T, C, F)
	for i, h := range preAct {
		dhidden[i] *= GeluGrad(h)
	}

	MatmulAT(dw, inp, dhidden, T, C, F)
	floats.Add(dw1, dw)

	tmp := make([]float64, T*C)
	MatmulBT(tmp, dhidden, w1, T, F, C)
	floats.Add(dinp, tmp)
}
