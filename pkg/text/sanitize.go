package text

import "strings"

// SanitizeTraining prepares text for training: control characters other
// than newline and tab are dropped along with DEL, while quotes, backticks,
// backslashes and non-ASCII bytes become spaces.
func SanitizeTraining(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c < 0x20 && c != '\n' && c != '\t', c == 0x7f:
		case c == '\'', c == '`', c == '"', c == '\\', c >= 0x80:
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// SanitizeInput keeps only printable ASCII and trims surrounding spaces.
func SanitizeInput(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		if c := text[i]; c >= 0x20 && c <= 0x7e {
			b.WriteByte(c)
		}
	}
	return strings.Trim(b.String(), " ")
}
