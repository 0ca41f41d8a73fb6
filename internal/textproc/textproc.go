// Package textproc provides the swappable trim/summarize text processors
// behind the narrow interfaces spec.md §4.2 describes. Implementations must
// never raise: an external-model failure degrades to truncation, never
// surfaces to the caller.
package textproc

import "strings"

// Trimmer cuts text down to at most max_chars. Implementations must never
// raise, and must return the input unchanged when max_chars <= 0 or the
// input already fits.
type Trimmer interface {
	Trim(text string, maxChars int) string
}

// Summarizer condenses text toward target_chars. Output length is not
// contractually bounded by target_chars, but implementations should honor
// it approximately. Implementations must never raise; an external call
// failure falls back to truncation.
type Summarizer interface {
	Summarize(text string, targetChars int) string
}

// Noop is the identity Trimmer/Summarizer. It is the default for both
// processors, preserving data until a policy explicitly configures
// otherwise.
type Noop struct{}

func (Noop) Trim(text string, _ int) string      { return text }
func (Noop) Summarize(text string, _ int) string { return text }

// Truncating cuts text at max_chars, appending a trailing ellipsis when the
// input was actually cut.
type Truncating struct{}

func (Truncating) Trim(text string, maxChars int) string {
	return truncate(text, maxChars)
}

func (Truncating) Summarize(text string, targetChars int) string {
	return truncate(text, targetChars)
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	const ellipsis = "..."
	cut := limit - len(ellipsis)
	if cut < 0 {
		cut = 0
	}
	return strings.TrimRight(string(runes[:cut]), " \t\n") + ellipsis
}
