package data

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const corpus = `# greetings
Hello	 Hi!

What are you?	 I am an AI.
Two lines\nhere	 Yes\tindeed.
`

func TestReadPairs(t *testing.T) {
	pairs, err := ReadPairs(strings.NewReader(corpus))
	require.NoError(t, err)
	assert.Equal(t, []Pair{
		{"Hello", " Hi!"},
		{"What are you?", " I am an AI."},
		{"Two lines\nhere", " Yes\tindeed."},
	}, pairs)
}

func TestReadPairsMissingTab(t *testing.T) {
	_, err := ReadPairs(strings.NewReader("ok\tfine\nbroken line\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestPairLoaderBatches(t *testing.T) {
	pairs := []Pair{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"}, {"e", "5"}}
	loader, err := NewPairLoaderFromPairs(pairs, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, loader.NumBatches)

	assert.Equal(t, pairs[0:2], loader.NextBatch())
	assert.Equal(t, pairs[2:4], loader.NextBatch())
	assert.Equal(t, pairs[4:5], loader.NextBatch())
	// wraps around
	assert.Equal(t, pairs[0:2], loader.NextBatch())

	loader.Reset()
	assert.Equal(t, pairs[0:2], loader.NextBatch())
}

func TestPairLoaderRejectsEmptyCorpus(t *testing.T) {
	_, err := NewPairLoaderFromPairs(nil, 4)
	require.Error(t, err)
	_, err = NewPairLoaderFromPairs([]Pair{{"a", "b"}}, 0)
	require.Error(t, err)
}

func TestPairLoaderShuffleKeepsPairs(t *testing.T) {
	pairs := []Pair{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"}}
	loader, err := NewPairLoaderFromPairs(append([]Pair(nil), pairs...), 4)
	require.NoError(t, err)
	loader.Shuffle(rand.New(rand.NewPCG(1, 2)))
	assert.ElementsMatch(t, pairs, loader.NextBatch())
}

func TestNewPairLoaderFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.tsv")
	require.NoError(t, os.WriteFile(path, []byte(corpus), 0o644))
	loader, err := NewPairLoader(path, 20)
	require.NoError(t, err)
	assert.Equal(t, 3, loader.Len())
	assert.Equal(t, 1, loader.NumBatches)
	assert.Len(t, loader.NextBatch(), 3)
}
