// Package text holds the text heuristics around the engine: the garble gate
// deciding whether generated text can be trusted, sentence trimming and the
// sanitisers applied before training and chatting.
package text

import (
	"strings"

	"github.com/dlclark/regexp2"
)

const maxKnownWordLen = 64

var (
	wordPattern = regexp2.MustCompile(`[^ \t\n]+`, regexp2.None)
	knownWords  = newTrie(commonWords)
)

// IsGarbled reports whether text looks like noise rather than language.
//
// Text is rejected when it is shorter than two bytes, holds control
// characters, is less than 40% letters or more than 40% adjacent repeats, or
// when too few of its words belong to the known vocabulary. A single known
// word is accepted.
func IsGarbled(text string) bool {
	n := len(text)
	if n < 2 {
		return true
	}

	var alpha, repeated int
	for i := 0; i < n; i++ {
		c := text[i]
		if c < 0x20 && c != '\t' && c != '\n' {
			return true
		}
		if isLetter(c) {
			alpha++
		}
		if i > 0 && c == text[i-1] && c != ' ' {
			repeated++
		}
	}
	if alpha*100/n < 40 {
		return true
	}
	if n > 4 && repeated*100/n > 40 {
		return true
	}

	var words, known, known3, unknown int
	m, _ := wordPattern.FindStringMatch(text)
	for m != nil {
		word := m.String()
		words++
		if isKnownWord(word) {
			known++
			if stemLen(word) >= 3 {
				known3++
			}
		} else {
			unknown++
		}
		m, _ = wordPattern.FindNextMatch(m)
	}

	switch {
	case words == 0:
		return true
	case words == 1:
		return known == 0
	case words <= 4 && known3 == 0 && unknown > 0:
		return true
	case unknown > 0 && known3 < 2:
		return true
	}
	return known*100/words < 60
}

// isKnownWord lower-cases word, cuts it at the first punctuation mark and
// looks the rest up in the vocabulary. Pure punctuation counts as known.
func isKnownWord(word string) bool {
	if len(word) >= maxKnownWordLen {
		return false
	}
	if i := strings.IndexAny(word, `.,!?'"`); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return true
	}
	return knownWords.Contains([]byte(strings.ToLower(word)))
}

// stemLen is the length of word up to its first sentence punctuation.
func stemLen(word string) int {
	if i := strings.IndexAny(word, ".,!?"); i >= 0 {
		return i
	}
	return len(word)
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
