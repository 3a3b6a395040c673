package eigen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteTokenizer(t *testing.T) {
	tok, err := NewByteTokenizer(100)
	require.NoError(t, err)

	tokens, err := tok.Encode("Hi\xff")
	require.NoError(t, err)
	assert.Equal(t, []int{72 % 100, 105 % 100, 255 % 100}, tokens)

	text, err := tok.Decode([]int{72, 0, 10, 99})
	require.NoError(t, err)
	assert.Equal(t, "H\nc", text)

	_, err = tok.Decode([]int{100})
	assert.Error(t, err)
	_, err = tok.Decode([]int{-1})
	assert.Error(t, err)

	_, err = NewByteTokenizer(0)
	assert.Error(t, err)
}

func TestByteTokenizerDropsHighBytes(t *testing.T) {
	tok, err := NewByteTokenizer(256)
	require.NoError(t, err)
	text, err := tok.Decode([]int{200, 'o', 'k', 128})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestSetModelBuildsTokenizer(t *testing.T) {
	e := newTestEngine(t, nil)
	require.Error(t, e.SetModel(&Model{}))
	assert.Nil(t, e.Model)

	require.NoError(t, e.SetModel(newRandomTestModel(t, scenarioConfig, 3)))
	assert.Equal(t, ByteTokenizer{VocabSize: scenarioConfig.VocabSize}, e.tokenizer)
}
