package translate

import "strings"

// sentenceEnders mark positions where a chunk may be cut.
var sentenceEnders = []string{". ", "! ", "? ", ".\n", "\n\n"}

// SplitChunks splits text into pieces no longer than maxLen, cutting at
// sentence boundaries where possible. A single sentence longer than
// maxLen is hard-split. Order is preserved and the concatenation of the
// chunks round-trips the input.
func SplitChunks(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > maxLen {
		cut := lastBoundary(remaining[:maxLen])
		if cut <= 0 {
			cut = maxLen
		}
		chunks = append(chunks, remaining[:cut])
		remaining = remaining[cut:]
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// lastBoundary returns the index just past the last sentence boundary
// in s, or 0 when none exists.
func lastBoundary(s string) int {
	best := 0
	for _, end := range sentenceEnders {
		if i := strings.LastIndex(s, end); i >= 0 && i+len(end) > best {
			best = i + len(end)
		}
	}
	return best
}
