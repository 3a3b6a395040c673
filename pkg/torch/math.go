package torch

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// TileSize is the edge of the square tiles the matmul kernels walk.
	TileSize = 32

	// geluCubic is the cubic coefficient of the tanh GELU approximation.
	geluCubic = 0.044715
)

var (
	GELUSCALEFACTOR = math.Sqrt(2.0 / math.Pi)
)

// IsFinite reports whether f is neither NaN nor an infinity.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// AllFinite reports whether every value of xs is finite.
func AllFinite(xs []float64) bool {
	for _, x := range xs {
		if !IsFinite(x) {
			return false
		}
	}
	return true
}

// Matmul computes out = a·b.
//
// Parameters:
//   - out: output matrix (m, n), overwritten
//   - a: left matrix (m, k)
//   - b: right matrix (k, n)
func Matmul(out, a, b []float64, m, k, n int) {
	clear(out[:m*n])
	for i0 := 0; i0 < m; i0 += TileSize {
		iEnd := min(i0+TileSize, m)
		for j0 := 0; j0 < n; j0 += TileSize {
			jEnd := min(j0+TileSize, n)
			for k0 := 0; k0 < k; k0 += TileSize {
				kEnd := min(k0+TileSize, k)
				for i := i0; i < iEnd; i++ {
					outRow := out[i*n : i*n+n]
					for kk := k0; kk < kEnd; kk++ {
						aik := a[i*k+kk]
						bRow := b[kk*n : kk*n+n]
						for j := j0; j < jEnd; j++ {
							outRow[j] += aik * bRow[j]
						}
					}
				}
			}
		}
	}
}

// MatmulAT computes out = aᵀ·b without materialising the transpose.
//
// Parameters:
//   - out: output matrix (k, n), overwritten
//   - a: matrix (m, k)
//   - b: matrix (m, n)
func MatmulAT(out, a, b []float64, m, k, n int) {
	clear(out[:k*n])
	for i0 := 0; i0 < k; i0 += TileSize {
		iEnd := min(i0+TileSize, k)
		for j0 := 0; j0 < n; j0 += TileSize {
			jEnd := min(j0+TileSize, n)
			for r0 := 0; r0 < m; r0 += TileSize {
				rEnd := min(r0+TileSize, m)
				for i := i0; i < iEnd; i++ {
					outRow := out[i*n : i*n+n]
					for r := r0; r < rEnd; r++ {
						ari := a[r*k+i]
						bRow := b[r*n : r*n+n]
						for j := j0; j < jEnd; j++ {
							outRow[j] += ari * bRow[j]
						}
					}
				}
			}
		}
	}
}

// MatmulBT computes out = a·bᵀ without materialising the transpose.
//
// Parameters:
//   - out: output matrix (m, n), overwritten
//   - a: matrix (m, k)
//   - b: matrix (n, k)
func MatmulBT(out, a, b []float64, m, k, n int) {
	clear(out[:m*n])
	for i0 := 0; i0 < m; i0 += TileSize {
		iEnd := min(i0+TileSize, m)
		for j0 := 0; j0 < n; j0 += TileSize {
			jEnd := min(j0+TileSize, n)
			for k0 := 0; k0 < k; k0 += TileSize {
				kEnd := min(k0+TileSize, k)
				for i := i0; i < iEnd; i++ {
					aRow := a[i*k : i*k+k]
					for j := j0; j < jEnd; j++ {
						bRow := b[j*k : j*k+k]
						var sum float64
						for kk := k0; kk < kEnd; kk++ {
							sum += aRow[kk] * bRow[kk]
						}
						out[i*n+j] += sum
					}
				}
			}
		}
	}
}

// SoftmaxRows normalises every row of x (rows, cols) in place.
//
// The row maximum is subtracted before exponentiating, so rows holding -Inf
// entries (masked positions) come out as exact zeros there.
func SoftmaxRows(x []float64, rows, cols int) {
	for r := 0; r < rows; r++ {
		row := x[r*cols : r*cols+cols]
		maxval := floats.Max(row)
		var sum float64
		for i := range row {
			row[i] = math.Exp(row[i] - maxval)
			sum += row[i]
		}
		floats.Scale(1/sum, row)
	}
}

// Gelu is the tanh approximation of the Gaussian Error Linear Unit.
//
// Paper: https://arxiv.org/abs/1606.08415v5
func Gelu(x float64) float64 {
	return 0.5 * x * (1.0 + math.Tanh(GELUSCALEFACTOR*(x+geluCubic*x*x*x)))
}

// GeluGrad is the derivative of Gelu, i.e. of the same tanh approximation.
// It splits into cdf + x*pdf where both terms come from the approximation.
func GeluGrad(x float64) float64 {
	u := GELUSCALEFACTOR * (x + geluCubic*x*x*x)
	th := math.Tanh(u)
	cdf := 0.5 * (1.0 + th)
	pdf := 0.5 * (1.0 - th*th) * GELUSCALEFACTOR * (1.0 + 3.0*geluCubic*x*x)
	return cdf + x*pdf
}

// GeluForward applies Gelu elementwise from inp into out.
func GeluForward(out, inp []float64) {
	for i, x := range inp {
		out[i] = Gelu(x)
	}
}

// LayernormForward normalises each row of inp and applies the affine transform.
//
// Parameters:
//   - out: output activations (T, C)
//   - xnorm: normalised rows before the affine step (T, C); nil to discard
//   - std: per-row standard deviation (T); nil to discard
//   - inp: input activations (T, C)
//   - gamma: learnable scale (C)
//   - beta: learnable shift (C)
//   - eps: variance floor
func LayernormForward(out, xnorm, std, inp, gamma, beta []float64, T, C int, eps float64) {
	for t := 0; t < T; t++ {
		x := inp[t*C : t*C+C]
		m := floats.Sum(x) / float64(C)
		var v float64
		for _, xi := range x {
			d := xi - m
			v += d * d
		}
		v /= float64(C)
		s := math.Sqrt(v + eps)
		outT := out[t*C : t*C+C]
		for i, xi := range x {
			n := (xi - m) / s
			if xnorm != nil {
				xnorm[t*C+i] = n
			}
			outT[i] = gamma[i]*n + beta[i]
		}
		if std != nil {
			std[t] = s
		}
	}
}

// LayernormBackward accumulates the gradients of the layer norm.
//
// Parameters:
//   - dinp: gradient of the input (T, C), accumulated
//   - dgamma: gradient of the scale (C), accumulated
//   - dbeta: gradient of the shift (C), accumulated
//   - dout: upstream gradient (T, C)
//   - xnorm: cached normalised rows (T, C)
//   - gamma: scale (C)
//   - std: cached per-row standard deviation (T)
func LayernormBackward(dinp, dgamma, dbeta, dout, xnorm, gamma, std []float64, T, C int) {
	dnorm := make([]float64, C)
	for t := 0; t < T; t++ {
		doutT := dout[t*C : t*C+C]
		xnT := xnorm[t*C : t*C+C]
		var dnormMean, dnormNormMean float64
		for i := 0; i < C; i++ {
			dgamma[i] += doutT[i] * xnT[i]
			dbeta[i] += doutT[i]
			dnorm[i] = doutT[i] * gamma[i]
			dnormMean += dnorm[i]
			dnormNormMean += dnorm[i] * xnT[i]
		}
		dnormMean /= float64(C)
		dnormNormMean /= float64(C)
		dinpT := dinp[t*C : t*C+C]
		for i := 0; i < C; i++ {
			dinpT[i] += (dnorm[i] - dnormMean - xnT[i]*dnormNormMean) / std[t]
		}
	}
}

// ResidualForward adds inp into out elementwise.
func ResidualForward(out, inp []float64) {
	floats.Add(out, inp)
}

// CrossEntropyForward turns logits into probabilities and returns the negative
// log probability of target. The target probability is floored at 1e-10 so a
// confident miss costs at most ~23 nats, while NaN still propagates.
func CrossEntropyForward(probs, logits []float64, target int) float64 {
	copy(probs, logits)
	SoftmaxRows(probs, 1, len(probs))
	p := probs[target]
	if p < 1e-10 {
		p = 1e-10
	}
	return -math.Log(p)
}

// CrossentropySoftmaxBackward writes the gradient of the loss w.r.t. the logits.
func CrossentropySoftmaxBackward(dlogits, probs []float64, target int) {
	copy(dlogits, probs)
	dlogits[target] -= 1.0
}

// PositionalEncoding writes the sinusoidal position table (T, C) into pe.
// Even channels hold sin(pos·div), odd channels cos(pos·div) of the same div.
func PositionalEncoding(pe []float64, T, C int) {
	for pos := 0; pos < T; pos++ {
		for i := 0; i < C; i += 2 {
			div := math.Exp(float64(i) * -(math.Log(10000.0) / float64(C)))
			pe[pos*C+i] = math.Sin(float64(pos) * div)
			if i+1 < C {
				pe[pos*C+i+1] = math.Cos(float64(pos) * div)
			}
		}
	}
}

// ClampToken maps an arbitrary id into [0, V).
func ClampToken(id, V int) int {
	if id < 0 {
		return 0
	}
	if id >= V {
		return V - 1
	}
	return id
}

// EncoderForward looks up the token embeddings of inp and adds the positional
// encoding so every row carries both the token and its position.
//
// Parameters:
//   - out: output activations (T, C), overwritten
//   - inp: token ids (T); out-of-range ids are clamped
//   - wte: token embedding table (V, C)
func EncoderForward(out []float64, inp []int, wte []float64, V, C int) {
	T := len(inp)
	PositionalEncoding(out, T, C)
	for t, id := range inp {
		ix := ClampToken(id, V)
		floats.Add(out[t*C:t*C+C], wte[ix*C:ix*C+C])
	}
}

// EncoderBackward accumulates dout into the embedding rows of the tokens in inp.
func EncoderBackward(dwte, dout []float64, inp []int, V, C int) {
	for t, id := range inp {
		ix := ClampToken(id, V)
		floats.Add(dwte[ix*C:ix*C+C], dout[t*C:t*C+C])
	}
}
