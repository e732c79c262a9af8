package extractor

import (
	"embed"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// lexiconPathEnv lets an operator point at an external stopword list
// without a rebuild, the same override idiom the teacher uses for its
// embedded pipeline spec (LEARNING_BUILD_PIPELINE_YAML in
// internal/jobs/pipeline/learning_build/spec.go).
const lexiconPathEnv = "EXTRACTOR_LEXICON_YAML"

//go:embed lexicon.yaml
var lexiconFS embed.FS

type lexiconSpec struct {
	KoreanStopwords []string `yaml:"korean_stopwords"`
}

var (
	lexiconOnce   sync.Once
	koreanStopSet map[string]struct{}
)

func loadLexicon() map[string]struct{} {
	lexiconOnce.Do(func() {
		data, err := readLexicon()
		if err != nil {
			koreanStopSet = fallbackKoreanStopwords()
			return
		}
		var spec lexiconSpec
		if err := yaml.Unmarshal(data, &spec); err != nil || len(spec.KoreanStopwords) == 0 {
			koreanStopSet = fallbackKoreanStopwords()
			return
		}
		set := make(map[string]struct{}, len(spec.KoreanStopwords))
		for _, w := range spec.KoreanStopwords {
			w = strings.TrimSpace(w)
			if w == "" {
				continue
			}
			set[w] = struct{}{}
		}
		koreanStopSet = set
	})
	return koreanStopSet
}

func readLexicon() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(lexiconPathEnv)); path != "" {
		return os.ReadFile(path)
	}
	return lexiconFS.ReadFile("lexicon.yaml")
}

func fallbackKoreanStopwords() map[string]struct{} {
	return map[string]struct{}{
		"하다": {}, "되다": {}, "이다": {}, "있다": {}, "같다": {},
		"그리고": {}, "그런데": {}, "하지만": {}, "또한": {}, "매우": {},
		"것": {}, "수": {}, "때문에": {}, "그러나": {},
	}
}
