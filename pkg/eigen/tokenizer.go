package eigen

import "fmt"

// Tokenizer is an interface for tokenizing text.
type Tokenizer interface {
	Decode(tokens []int) (string, error)
	Encode(text string) ([]int, error)
}

// ByteTokenizer maps every byte of the text to its value modulo VocabSize.
type ByteTokenizer struct {
	VocabSize int
}

// NewByteTokenizer returns a new ByteTokenizer instance.
func NewByteTokenizer(vocabSize int) (ByteTokenizer, error) {
	if vocabSize <= 0 {
		return ByteTokenizer{}, fmt.Errorf("vocab size must be positive, got %d", vocabSize)
	}
	return ByteTokenizer{VocabSize: vocabSize}, nil
}

// Encode encodes a string into a sequence of tokens.
func (t ByteTokenizer) Encode(text string) ([]int, error) {
	tokens := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		tokens[i] = int(text[i]) % t.VocabSize
	}
	return tokens, nil
}

// Decode decodes a sequence of tokens into a string.
// Only tokens in the printable-or-whitespace ASCII range (0, 128) produce a
// byte; the null token and high tokens are dropped.
func (t ByteTokenizer) Decode(tokens []int) (string, error) {
	buf := make([]byte, 0, len(tokens))
	for _, token := range tokens {
		if token < 0 || token >= t.VocabSize {
			return "", fmt.Errorf("not valid token: %d", token)
		}
		if token > 0 && token < 128 {
			buf = append(buf, byte(token))
		}
	}
	return string(buf), nil
}
