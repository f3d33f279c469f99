// Package tokens estimates token counts without a provider tokenizer. The
// estimates are deliberately rough and biased upward for code and JSON.
package tokens

import (
	"unicode"
	"unicode/utf8"
)

// DefaultMaxOutput is assumed when a request sets no output limit.
const DefaultMaxOutput = 256

// EstimateText counts ASCII words at four characters per token, other
// alphabetic scripts at two, and each CJK character or symbol as one token.
// Whitespace is free.
func EstimateText(text string) int {
	n, run := 0, 0
	flush := func() {
		n += (run + 3) / 4
		run = 0
	}
	for _, r := range text {
		switch {
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			run++
		case unicode.IsSpace(r):
			flush()
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
			flush()
			n++
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			run += 2
		default:
			flush()
			n++
		}
	}
	flush()
	return n
}

// EstimateBytes sizes an inline binary payload at one token per KiB.
func EstimateBytes(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + 1023) / 1024)
}
