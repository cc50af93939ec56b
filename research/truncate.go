package research

import (
	"bytes"
	"strings"

	"github.com/clipperhouse/uax29/sentences"
)

// capText truncates text to at most maxChars, cutting at a sentence
// boundary when one exists before the limit.
func capText(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	var b strings.Builder
	seg := sentences.NewSegmenter([]byte(text))
	for seg.Next() {
		sentence := seg.Bytes()
		// segments carry their trailing whitespace, which the final
		// TrimSpace removes, so budget against the trimmed length
		kept := bytes.TrimRight(sentence, " \t\r\n")
		if b.Len()+len(kept) > maxChars {
			break
		}
		b.Write(sentence)
	}
	// a single sentence longer than the cap gets a hard cut
	if b.Len() == 0 {
		return strings.TrimSpace(text[:maxChars])
	}
	return strings.TrimSpace(b.String())
}
