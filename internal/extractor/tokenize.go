package extractor

import (
	"strings"
	"unicode"

	prose "github.com/tsawler/prose/v3"

	"github.com/graphbrain/kgqa/internal/embedder"
)

// koreanStopwords is loaded once from the embedded lexicon (or an operator
// override via EXTRACTOR_LEXICON_YAML), falling back to a small built-in
// list if the lexicon can't be read or parsed.
func koreanStopwords() map[string]struct{} {
	return loadLexicon()
}

// tokenizeSentence detects the sentence's language and extracts candidate
// noun phrases: Hangul noun runs for Korean, tagged noun chunks for English,
// and the whole sentence as one token otherwise.
func tokenizeSentence(text string) []string {
	switch embedder.DetectLanguage(text) {
	case embedder.LanguageKorean:
		return tokenizeKorean(text)
	case embedder.LanguageEnglish:
		return tokenizeEnglish(text)
	default:
		return []string{strings.TrimSpace(text)}
	}
}

func tokenizeKorean(text string) []string {
	var tokens []string
	var run []rune
	var phrase []string

	flushRun := func() {
		if len(run) == 0 {
			return
		}
		word := string(run)
		run = nil
		if len([]rune(word)) <= 1 {
			return
		}
		if _, stop := koreanStopwords()[word]; stop {
			return
		}
		phrase = append(phrase, word)
	}
	flushPhrase := func() {
		flushRun()
		if len(phrase) > 0 {
			tokens = append(tokens, strings.Join(phrase, ""))
			phrase = nil
		}
	}

	for _, r := range text {
		if isHangul(r) {
			run = append(run, r)
			continue
		}
		if r == ' ' || r == '\t' {
			flushRun()
			continue
		}
		flushPhrase()
	}
	flushPhrase()
	return tokens
}

func isHangul(r rune) bool {
	return unicode.In(r, unicode.Hangul)
}

func tokenizeEnglish(text string) []string {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return fallbackEnglishTokens(text)
	}

	var tokens []string
	var phrase []string
	flush := func() {
		if len(phrase) > 0 {
			tokens = append(tokens, strings.Join(phrase, " "))
			phrase = nil
		}
	}
	for _, tok := range doc.Tokens() {
		if strings.HasPrefix(tok.Tag, "NN") {
			phrase = append(phrase, strings.ToLower(tok.Text))
			continue
		}
		flush()
	}
	flush()
	if len(tokens) == 0 {
		return fallbackEnglishTokens(text)
	}
	return tokens
}

func fallbackEnglishTokens(text string) []string {
	var tokens []string
	var run []rune
	flush := func() {
		if len(run) > 1 {
			tokens = append(tokens, strings.ToLower(string(run)))
		}
		run = nil
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			run = append(run, r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}
