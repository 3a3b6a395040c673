package data

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
)

// Pair is one training example: the model learns to continue Prompt with
// Completion.
type Pair struct {
	Prompt     string
	Completion string
}

// Loader is an interface for data loaders.
type Loader interface {
	NextBatch() []Pair
	Reset()
}

// PairLoader serves batches of training pairs read from a corpus file.
type PairLoader struct {
	batchSize  int
	curPos     int
	NumBatches int
	pairs      []Pair
}

// NewPairLoader returns a new PairLoader over the corpus at filename.
//
// The corpus holds one pair per line as prompt TAB completion; blank lines
// and lines starting with '#' are skipped and the escape \n inside a field
// stands for a newline.
func NewPairLoader(filename string, batchSize int) (*PairLoader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	pairs, err := ReadPairs(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return NewPairLoaderFromPairs(pairs, batchSize)
}

// NewPairLoaderFromPairs returns a new PairLoader over pairs.
func NewPairLoaderFromPairs(pairs []Pair, batchSize int) (*PairLoader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("corpus holds no training pairs")
	}
	batchSize = min(batchSize, len(pairs))
	return &PairLoader{
		batchSize:  batchSize,
		NumBatches: (len(pairs) + batchSize - 1) / batchSize,
		pairs:      pairs,
	}, nil
}

// ReadPairs parses a tab-separated corpus.
func ReadPairs(r io.Reader) ([]Pair, error) {
	var pairs []Pair
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var line int
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		prompt, completion, ok := strings.Cut(text, "\t")
		if !ok {
			return nil, fmt.Errorf("line %d: missing tab between prompt and completion", line)
		}
		pairs = append(pairs, Pair{
			Prompt:     unescape(prompt),
			Completion: unescape(completion),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// Len returns the number of pairs in the corpus.
func (loader *PairLoader) Len() int {
	return len(loader.pairs)
}

// Shuffle permutes the corpus and rewinds the loader.
func (loader *PairLoader) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(loader.pairs), func(i, j int) {
		loader.pairs[i], loader.pairs[j] = loader.pairs[j], loader.pairs[i]
	})
	loader.Reset()
}

// Reset resets the data loader to the start of the corpus.
func (loader *PairLoader) Reset() {
	loader.curPos = 0
}

// NextBatch returns the next batch of pairs; the last batch of a pass may be
// short, after which the loader wraps around.
func (loader *PairLoader) NextBatch() []Pair {
	if loader.curPos >= len(loader.pairs) {
		loader.Reset()
	}
	nextPos := min(loader.curPos+loader.batchSize, len(loader.pairs))
	batch := loader.pairs[loader.curPos:nextPos]
	loader.curPos = nextPos
	return batch
}

var unescaper = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\\`, `\`)

func unescape(s string) string {
	return unescaper.Replace(s)
}
