package torch

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// finiteDiffCheck perturbs param[i] by ±eps and compares the central
// difference of forward with the analytic gradient grad[i].
func finiteDiffCheck(t *testing.T, name string, param, grad []float64, forward func() float64, i int) {
	t.Helper()
	const eps = 1e-5
	w0 := param[i]

	param[i] = w0 + eps
	lp := forward()
	param[i] = w0 - eps
	lm := forward()
	param[i] = w0

	num := (lp - lm) / (2 * eps)
	assert.InDelta(t, num, grad[i], 1e-6, "%s[%d] grad mismatch: num=%.8g ana=%.8g", name, i, num, grad[i])
}

func TestMatmulGradCheck(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	m, k, n := 3, 5, 4
	a := randSlice(rng, m*k, 1)
	b := randSlice(rng, k*n, 1)
	r := randSlice(rng, m*n, 1)
	out := make([]float64, m*n)
	forward := func() float64 {
		Matmul(out, a, b, m, k, n)
		return floats.Dot(out, r)
	}

	da := make([]float64, m*k)
	db := make([]float64, k*n)
	MatmulBT(da, r, b, m, n, k)
	MatmulAT(db, a, r, m, k, n)
	for i := range a {
		finiteDiffCheck(t, "a", a, da, forward, i)
	}
	for i := range b {
		finiteDiffCheck(t, "b", b, db, forward, i)
	}
}

func TestAttentionCausalMask(t *testing.T) {
	rng := rand.New(rand.NewPCG(13, 14))
	T, C := 6, 4
	inp := randSlice(rng, T*C, 1)
	wq, wk, wv, wo := randSlice(rng, C*C, 1), randSlice(rng, C*C, 1), randSlice(rng, C*C, 1), randSlice(rng, C*C, 1)
	out := make([]float64, T*C)
	probs := make([]float64, T*T)
	AttentionForward(out, probs, inp, wq, wk, wv, wo, T, C)

	for i := 0; i < T; i++ {
		for j := i + 1; j < T; j++ {
			assert.Equal(t, 0.0, probs[i*T+j], "probs[%d][%d]", i, j)
		}
		assert.InDelta(t, 1.0, floats.Sum(probs[i*T:i*T+T]), 1e-12)
	}
	// the first position can only attend to itself
	assert.Equal(t, 1.0, probs[0])
}

func TestAttentionFirstRowIsUnaffectedByLaterTokens(t *testing.T) {
	rng := rand.New(rand.NewPCG(15, 16))
	T, C := 4, 4
	inp := randSlice(rng, T*C, 1)
	wq, wk, wv, wo := randSlice(rng, C*C, 1), randSlice(rng, C*C, 1), randSlice(rng, C*C, 1), randSlice(rng, C*C, 1)
	out1 := make([]float64, T*C)
	AttentionForward(out1, make([]float64, T*T), inp, wq, wk, wv, wo, T, C)

	for i := C; i < T*C; i++ {
		inp[i] += 10
	}
	out2 := make([]float64, T*C)
	AttentionForward(out2, make([]float64, T*T), inp, wq, wk, wv, wo, T, C)
	assert.Equal(t, out1[:C], out2[:C])
}

func TestAttentionGradCheck(t *testing.T) {
	rng := rand.New(rand.NewPCG(17, 18))
	T, C := 4, 3
	inp := randSlice(rng, T*C, 1)
	wq, wk, wv, wo := randSlice(rng, C*C, 0.8), randSlice(rng, C*C, 0.8), randSlice(rng, C*C, 0.8), randSlice(rng, C*C, 0.8)
	r := randSlice(rng, T*C, 1)
	out := make([]float64, T*C)
	probs := make([]float64, T*T)
	forward := func() float64 {
		AttentionForward(out, probs, inp, wq, wk, wv, wo, T, C)
		return floats.Dot(out, r)
	}
	forward()

	dinp := make([]float64, T*C)
	dwq, dwk, dwv, dwo := make([]float64, C*C), make([]float64, C*C), make([]float64, C*C), make([]float64, C*C)
	AttentionBackward(dinp, dwq, dwk, dwv, dwo, r, inp, wq, wk, wv, wo, probs, T, C)

	params := []struct {
		name       string
		param, grd []float64
	}{
		{"wq", wq, dwq},
		{"wk", wk, dwk},
		{"wv", wv, dwv},
		{"wo", wo, dwo},
		{"inp", inp, dinp},
	}
	for _, p := range params {
		t.Run(p.name, func(t *testing.T) {
			for i := range p.param {
				finiteDiffCheck(t, p.name, p.param, p.grd, forward, i)
			}
		})
	}
}

func TestAttentionBackwardAccumulates(t *testing.T) {
	rng := rand.New(rand.NewPCG(19, 20))
	T, C := 3, 2
	inp := randSlice(rng, T*C, 1)
	wq, wk, wv, wo := randSlice(rng, C*C, 1), randSlice(rng, C*C, 1), randSlice(rng, C*C, 1), randSlice(rng, C*C, 1)
	dout := randSlice(rng, T*C, 1)
	probs := make([]float64, T*T)
	AttentionForward(make([]float64, T*C), probs, inp, wq, wk, wv, wo, T, C)

	once := make([]float64, C*C)
	AttentionBackward(make([]float64, T*C), make([]float64, C*C), make([]float64, C*C), make([]float64, C*C), once, dout, inp, wq, wk, wv, wo, probs, T, C)
	twice := make([]float64, C*C)
	for range 2 {
		AttentionBackward(make([]float64, T*C), make([]float64, C*C), make([]float64, C*C), make([]float64, C*C), twice, dout, inp, wq, wk, wv, wo, probs, T, C)
	}
	floats.Scale(2, once)
	assert.True(t, floats.EqualApprox(once, twice, 1e-12))
}

func TestFeedForwardGradCheck(t *testing.T) {
	rng := rand.New(rand.NewPCG(21, 22))
	T, C, F := 3, 4, 6
	inp := randSlice(rng, T*C, 1)
	w1 := randSlice(rng, C*F, 0.8)
	w2 := randSlice(rng, F*C, 0.8)
	r := randSlice(rng, T*C, 1)
	out := make([]float64, T*C)
	preAct := make([]float64, T*F)
	forward := func() float64 {
		FeedForwardForward(out, preAct, inp, w1, w2, T, C, F)
		return floats.Dot(out, r)
	}
	forward()

	want := make([]float64, T*F)
	Matmul(want, inp, w1, T, C, F)
	require.Equal(t, want, preAct, "pre-activation must be cached before GELU")

	dinp := make([]float64, T*C)
	dw1 := make([]float64, C*F)
	dw2 := make([]float64, F*C)
	FeedForwardBackward(dinp, dw1, dw2, r, inp, w1, w2, preAct, T, C, F)

	for i := range w1 {
		finiteDiffCheck(t, "w1", w1, dw1, forward, i)
	}
	for i := range w2 {
		finiteDiffCheck(t, "w2", w2, dw2, forward, i)
	}
	for i := range inp {
		finiteDiffCheck(t, "inp", inp, dinp, forward, i)
	}
}

func TestLayernormGradCheck(t *testing.T) {
	rng := rand.New(rand.NewPCG(23, 24))
	T, C := 3, 5
	const eps = 1e-5
	inp := randSlice(rng, T*C, 2)
	gamma := randSlice(rng, C, 1)
	beta := randSlice(rng, C, 1)
	r := randSlice(rng, T*C, 1)
	out := make([]float64, T*C)
	xnorm := make([]float64, T*C)
	std := make([]float64, T)
	forward := func() float64 {
		LayernormForward(out, xnorm, std, inp, gamma, beta, T, C, eps)
		return floats.Dot(out, r)
	}
	forward()

	dinp := make([]float64, T*C)
	dgamma := make([]float64, C)
	dbeta := make([]float64, C)
	LayernormBackward(dinp, dgamma, dbeta, r, xnorm, gamma, std, T, C)

	for i := range inp {
		finiteDiffCheck(t, "inp", inp, dinp, forward, i)
	}
	for i := range gamma {
		finiteDiffCheck(t, "gamma", gamma, dgamma, forward, i)
	}
	for i := range beta {
		finiteDiffCheck(t, "beta", beta, dbeta, forward, i)
	}
}
