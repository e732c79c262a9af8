package extractor

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// rawSentence is a segmented, not-yet-tokenized unit of input text, carrying
// its position in the source so chunk indices remain stable end to end.
type rawSentence struct {
	Index int
	Text  string
}

var (
	sentenceEndRe   = regexp.MustCompile(`(?:[.!?]|[。！？]|다\.|요\.|까\?|네\.)\s+`)
	enumerationRe   = regexp.MustCompile(`^\s*(?:\d+[.)]|[a-zA-Z][.)])\s+`)
	headingMaxChars = 25
)

// segmentSentences implements the line/punctuation/enumeration splitting
// rules: a newline only breaks a sentence when the accumulated line so far
// reads like a heading (<=25 visible characters); otherwise it behaves as
// plain whitespace and sentences are split on terminal punctuation and
// enumeration markers instead.
func segmentSentences(text string) []rawSentence {
	var mergedLines []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			mergedLines = append(mergedLines, current.String())
			current.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if current.Len() == 0 {
			current.WriteString(trimmed)
			continue
		}
		if utf8.RuneCountInString(current.String()) <= headingMaxChars {
			flush()
			current.WriteString(trimmed)
			continue
		}
		current.WriteString(" ")
		current.WriteString(trimmed)
	}
	flush()

	var fragments []string
	for _, line := range mergedLines {
		parts := splitOnTerminalPunctuation(line)
		for _, p := range parts {
			fragments = append(fragments, splitOnEnumeration(p)...)
		}
	}

	out := make([]rawSentence, 0, len(fragments))
	idx := 0
	for _, f := range fragments {
		f = strings.TrimSpace(f)
		if !isMeaningfulFragment(f) {
			continue
		}
		out = append(out, rawSentence{Index: idx, Text: f})
		idx++
	}
	return out
}

func splitOnTerminalPunctuation(line string) []string {
	matches := sentenceEndRe.FindAllStringIndex(line, -1)
	if len(matches) == 0 {
		return []string{line}
	}
	var parts []string
	start := 0
	for _, m := range matches {
		parts = append(parts, line[start:m[1]])
		start = m[1]
	}
	if start < len(line) {
		parts = append(parts, line[start:])
	}
	return parts
}

func splitOnEnumeration(fragment string) []string {
	loc := enumerationRe.FindStringIndex(fragment)
	if loc == nil {
		return []string{fragment}
	}
	return []string{fragment[loc[1]:]}
}

// isMeaningfulFragment drops fragments too short to carry any topical
// content: length<=1, or fewer than 2 alphanumeric/Hangul characters.
func isMeaningfulFragment(f string) bool {
	if utf8.RuneCountInString(f) <= 1 {
		return false
	}
	count := 0
	for _, r := range f {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			count++
			if count > 1 {
				return true
			}
		}
	}
	return false
}
