package agent

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxSentence caps a streamed piece when no boundary is found.
const DefaultMaxSentence = 400

// sentenceBuffer accumulates streamed text and cuts it into sentences.
type sentenceBuffer struct {
	buf strings.Builder
	max int
}

// add appends text and returns every sentence completed by it.
func (b *sentenceBuffer) add(text string) []string {
	b.buf.WriteString(text)
	var out []string
	for {
		s := b.buf.String()
		cut := firstSentenceBoundary(s)
		if cut < 0 && len(s) > b.max {
			cut = lastSpaceBefore(s, b.max)
		}
		if cut < 0 {
			return out
		}
		if sentence := strings.TrimSpace(s[:cut+1]); sentence != "" {
			out = append(out, sentence)
		}
		b.buf.Reset()
		b.buf.WriteString(s[cut+1:])
	}
}

// flush returns whatever is left.
func (b *sentenceBuffer) flush() string {
	s := strings.TrimSpace(b.buf.String())
	b.buf.Reset()
	return s
}

// firstSentenceBoundary returns the index of the first sentence-ending
// punctuation followed by whitespace, or of the first newline, or -1.
func firstSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			return i
		case '.', '!', '?':
			if i+1 < len(s) {
				switch s[i+1] {
				case ' ', '\n', '\r', '\t':
					return i
				}
			}
		}
	}
	return -1
}

// lastSpaceBefore returns the index of the last space before limit, or the
// last byte of the final whole rune before limit when there is none.
func lastSpaceBefore(s string, limit int) int {
	if i := strings.LastIndexByte(s[:limit], ' '); i > 0 {
		return i
	}
	cut := limit - 1
	for cut > 0 && !utf8.RuneStart(s[cut+1]) {
		cut--
	}
	return cut
}
