package eigen

// tensor is a wrapper around a slice of float64 values and a list of dimensions
type tensor struct {
	data []float64
	dims []int
}

// newTensor creates a new tensor with the given data and dimensions.
func newTensor(data []float64, dims ...int) (tensor, int) {
	s := 1
	for _, d := range dims {
		s *= d
	}
	if s > len(data) {
		panic("dimensions larger than supplied data")
	}
	return tensor{
		data: data[:s:s],
		dims: dims,
	}, s
}

// at returns the i-th block along the leading dimension.
func (t tensor) at(i int) []float64 {
	stride := 1
	for _, d := range t.dims[1:] {
		stride *= d
	}
	return t.data[i*stride : (i+1)*stride : (i+1)*stride]
}

// LayerTensors are the ten weight tensors of one transformer block.
type LayerTensors struct {
	Wq       tensor // (C, C) - Query projection.
	Wk       tensor // (C, C) - Key projection.
	Wv       tensor // (C, C) - Value projection.
	Wo       tensor // (C, C) - Attention output projection.
	FF1      tensor // (C, F) - Feed-forward expansion.
	FF2      tensor // (F, C) - Feed-forward contraction.
	LN1Gamma tensor // (C) - Scale of the pre-attention layer norm.
	LN1Beta  tensor // (C) - Shift of the pre-attention layer norm.
	LN2Gamma tensor // (C) - Scale of the pre-feed-forward layer norm.
	LN2Beta  tensor // (C) - Shift of the pre-feed-forward layer norm.
}

// ParameterTensors are the parameters of the model.
//
// Everything lives in Memory: the embedding and output projection first
// (the head), followed by the layers (the body). The same type is used for
// gradient accumulators so an update is a pair of slab-wide operations.
type ParameterTensors struct {
	Memory     []float64
	TokenEmbed tensor // (V, C) - Token embedding table.
	OutputProj tensor // (C, V) - Projection from the last hidden row to vocabulary logits.
	Layers     []LayerTensors
	headLen    int
}

// Init allocates zeroed parameters sized for cfg.
func (params *ParameterTensors) Init(cfg Config) {
	V, C, F, L := cfg.VocabSize, cfg.DModel, cfg.DFF, cfg.NLayers
	perLayer := 4*C*C + 2*C*F + 4*C
	params.Memory = make([]float64, 2*V*C+L*perLayer)
	params.headLen = 2 * V * C
	var ptr int
	memPtr := params.Memory
	params.TokenEmbed, ptr = newTensor(memPtr, V, C)
	memPtr = memPtr[ptr:]
	params.OutputProj, ptr = newTensor(memPtr, C, V)
	memPtr = memPtr[ptr:]
	params.Layers = make([]LayerTensors, L)
	for l := range params.Layers {
		layer := &params.Layers[l]
		for _, slot := range []struct {
			t    *tensor
			dims []int
		}{
			{&layer.Wq, []int{C, C}},
			{&layer.Wk, []int{C, C}},
			{&layer.Wv, []int{C, C}},
			{&layer.Wo, []int{C, C}},
			{&layer.FF1, []int{C, F}},
			{&layer.FF2, []int{F, C}},
			{&layer.LN1Gamma, []int{C}},
			{&layer.LN1Beta, []int{C}},
			{&layer.LN2Gamma, []int{C}},
			{&layer.LN2Beta, []int{C}},
		} {
			*slot.t, ptr = newTensor(memPtr, slot.dims...)
			memPtr = memPtr[ptr:]
		}
	}
	if len(memPtr) != 0 {
		panic("something went real bad here")
	}
}

// Head returns the embedding and output projection parameters.
func (params *ParameterTensors) Head() []float64 {
	return params.Memory[:params.headLen]
}

// Body returns the parameters of every layer.
func (params *ParameterTensors) Body() []float64 {
	return params.Memory[params.headLen:]
}

// Len returns the length of the memory slice.
func (params *ParameterTensors) Len() int {
	return len(params.Memory)
}

// TrainingCache keeps every intermediate activation of a cached forward pass
// that the backward pass needs.
//
// The cache is resized to the current context length and zeroed before each
// forward call; its slab is reused while the capacity suffices.
type TrainingCache struct {
	Memory       []float64
	SeqLen       int
	LayerInputs  tensor // (L, T, C) - Input of every layer.
	Norm1Outputs tensor // (L, T, C) - Output of the pre-attention layer norm.
	Norm2Outputs tensor // (L, T, C) - Output of the pre-feed-forward layer norm.
	AttnProbs    tensor // (L, T, T) - Post-softmax attention probabilities.
	FFNPreAct    tensor // (L, T, F) - Feed-forward pre-activation.
	PostAttn     tensor // (L, T, C) - Residual stream after attention.
	LN1XNorm     tensor // (L, T, C) - Normalised rows of layer norm 1.
	LN1Std       tensor // (L, T) - Per-row standard deviation of layer norm 1.
	LN2XNorm     tensor // (L, T, C) - Normalised rows of layer norm 2.
	LN2Std       tensor // (L, T) - Per-row standard deviation of layer norm 2.
	FinalX       tensor // (T, C) - Residual stream after the last layer.
}

// Resize carves the cache for L layers, T positions, width C and hidden F,
// zeroing all of it.
func (tensor *TrainingCache) Resize(L, T, C, F int) {
	size := L*T*C*6 + L*T*T + L*T*F + L*T*2 + T*C
	if cap(tensor.Memory) < size {
		tensor.Memory = make([]float64, size)
	} else {
		tensor.Memory = tensor.Memory[:size]
		clear(tensor.Memory)
	}
	tensor.SeqLen = T
	var ptr int
	memPtr := tensor.Memory
	tensor.LayerInputs, ptr = newTensor(memPtr, L, T, C)
	memPtr = memPtr[ptr:]
	tensor.Norm1Outputs, ptr = newTensor(memPtr, L, T, C)
	memPtr = memPtr[ptr:]
	tensor.Norm2Outputs, ptr = newTensor(memPtr, L, T, C)
	memPtr = memPtr[ptr:]
	tensor.AttnProbs, ptr = newTensor(memPtr, L, T, T)
	memPtr = memPtr[ptr:]
	tensor.FFNPreAct, ptr = newTensor(memPtr, L, T, F)
	memPtr = memPtr[ptr:]
	tensor.PostAttn, ptr = newTensor(memPtr, L, T, C)
	memPtr = memPtr[ptr:]
	tensor.LN1XNorm, ptr = newTensor(memPtr, L, T, C)
	memPtr = memPtr[ptr:]
	tensor.LN1Std, ptr = newTensor(memPtr, L, T)
	memPtr = memPtr[ptr:]
	tensor.LN2XNorm, ptr = newTensor(memPtr, L, T, C)
	memPtr = memPtr[ptr:]
	tensor.LN2Std, ptr = newTensor(memPtr, L, T)
	memPtr = memPtr[ptr:]
	tensor.FinalX, ptr = newTensor(memPtr, T, C)
	memPtr = memPtr[ptr:]
	if len(memPtr) != 0 {
		panic("something went real bad here")
	}
}
