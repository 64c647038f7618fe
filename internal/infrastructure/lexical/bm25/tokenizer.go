package bm25

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Tokenize splits text into lowercase NFKC word tokens. Letters, digits and
// combining marks form words; everything else separates them. Vietnamese
// compounds such as "ngải cứu" come out as one token per syllable.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	text = norm.NFKC.String(text)
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

func TokenizeAll(texts []string) [][]string {
	out := make([][]string, len(texts))
	for i, text := range texts {
		out[i] = Tokenize(text)
	}
	return out
}
