package text

import "strings"

const (
	terminators = ".!?"

	minTrimmedLen   = 20
	minSegmentLen   = 10
	minMeanWordLen  = 3.0
	minTerminatorAt = 6
)

// TrimToSentence cuts text after its last well-formed sentence.
//
// Scanning backward from the end, the first terminator that either closes the
// first sentence or closes a segment of at least ten characters whose words
// average three or more letters is the cut point. The cut is only made when
// it leaves at least twenty characters and actually removes something.
func TrimToSentence(text string) string {
	cut := -1
	for i := len(text) - 1; i >= minTerminatorAt; i-- {
		if !isTerminator(text[i]) {
			continue
		}
		prev := strings.LastIndexAny(text[:i], terminators)
		if prev < 0 {
			cut = i
			break
		}
		if i-prev >= minSegmentLen && meanWordLen(text[prev+1:i+1]) >= minMeanWordLen {
			cut = i
			break
		}
	}
	if cut < 0 || cut >= len(text)-1 || cut+1 < minTrimmedLen {
		return text
	}
	return text[:cut+1]
}

// meanWordLen is the average length of the words of segment, where spaces and
// terminators separate words.
func meanWordLen(segment string) float64 {
	words := strings.FieldsFunc(segment, func(r rune) bool {
		return r == ' ' || strings.ContainsRune(terminators, r)
	})
	if len(words) == 0 {
		return 0
	}
	var total int
	for _, w := range words {
		total += len(w)
	}
	return float64(total) / float64(len(words))
}

func isTerminator(c byte) bool {
	return strings.IndexByte(terminators, c) >= 0
}
