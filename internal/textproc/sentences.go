package textproc

import (
	"strings"
	"unicode"
)

// TruncateAtSentence returns the longest prefix of text, at most max runes,
// that ends on a sentence boundary. Without a boundary it falls back to the
// last word break, then to a hard cut. The result is right-trimmed.
func TruncateAtSentence(text string, max int) string {
	runes := []rune(text)
	if max <= 0 {
		return ""
	}
	if len(runes) <= max {
		return strings.TrimRightFunc(text, unicode.IsSpace)
	}

	window := runes[:max]
	for i := len(window) - 1; i >= 0; i-- {
		if !isSentenceEnd(window[i]) {
			continue
		}
		// punctuation must be followed by a space or the end of the text
		if window[i] != '\n' && i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		return strings.TrimRightFunc(string(window[:i+1]), unicode.IsSpace)
	}

	for i := len(window) - 1; i > 0; i-- {
		if unicode.IsSpace(window[i]) {
			return strings.TrimRightFunc(string(window[:i]), unicode.IsSpace)
		}
	}

	return string(window)
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '\n'
}
