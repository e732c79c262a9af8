package extractor

import "testing"

func TestLoadLexiconParsesEmbeddedStopwords(t *testing.T) {
	set := loadLexicon()
	if len(set) == 0 {
		t.Fatalf("expected a non-empty stopword set")
	}
	for _, want := range []string{"하다", "그리고", "때문에"} {
		if _, ok := set[want]; !ok {
			t.Fatalf("expected stopword set to contain %q", want)
		}
	}
}

func TestKoreanStopwordsFiltersPhraseTokens(t *testing.T) {
	tokens := tokenizeKorean("그리고 서울에서 회의를 하다")
	for _, tok := range tokens {
		if _, stop := koreanStopwords()[tok]; stop {
			t.Fatalf("tokenizeKorean leaked stopword token %q", tok)
		}
	}
}

func TestFallbackKoreanStopwordsNonEmpty(t *testing.T) {
	set := fallbackKoreanStopwords()
	if len(set) == 0 {
		t.Fatalf("expected fallback stopword set to be non-empty")
	}
}
