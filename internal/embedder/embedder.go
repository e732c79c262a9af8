// Package embedder implements C1: deterministic fixed-dimension text
// embeddings with language-routed model selection. The corpus this service
// draws on calls out to a neural encoder for this step (bbiangul-go-reason's
// retrieval.Engine takes an llm.Provider for embeddings), but shipping
// pretrained model weights is out of scope here (non-goal: training or
// fine-tuning embedding models), so each routed "model" is instead a
// deterministic feature-hashing encoder tuned by tokenizer: Korean text is
// split on Hangul-aware boundaries, English on word boundaries, and the
// resulting tokens are hashed into a fixed-width vector and L2-normalized
// with gonum/floats. This keeps the contract (deterministic, order
// preserving, language-routed, never errors on empty input) without
// depending on an ML runtime absent from the example corpus.
package embedder

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/platform/logger"
)

// batchConcurrency bounds how many texts EncodeBatch hashes at once,
// mirroring the teacher's errgroup.SetLimit fan-out idiom
// (internal/modules/learning/steps/concept_graph_semantic_match.go) for
// independent per-item work.
const batchConcurrency = 8

// Language is the detected routing language for a piece of text.
type Language string

const (
	LanguageKorean  Language = "ko"
	LanguageEnglish Language = "en"
	LanguageOther   Language = "other"
)

// Model names the routed encoder. Korean and fallback-to-Korean share the
// same tokenizer; English gets its own.
type Model string

const (
	ModelKoreanTuned  Model = "koe5-tuned"
	ModelEnglishTuned Model = "en-tuned"
)

const DefaultDim = 768

// Embedder is the C1 contract.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string, lang Language) ([][]float32, error)
	Dim() int
}

type embedder struct {
	log *logger.Logger
	dim int
}

func New(log *logger.Logger, dim int) Embedder {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &embedder{log: log.With("service", "Embedder"), dim: dim}
}

func (e *embedder) Dim() int { return e.dim }

// DetectLanguage routes Korean vs English vs other by which scripts occur;
// any input with at least one Hangul codepoint is treated as Korean since
// mixed Korean/English sentences should use the Korean-tuned encoder.
func DetectLanguage(text string) Language {
	hasHangul := false
	hasLatin := false
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hangul, r):
			hasHangul = true
		case unicode.IsLetter(r) && r < unicode.MaxASCII:
			hasLatin = true
		}
	}
	switch {
	case hasHangul:
		return LanguageKorean
	case hasLatin:
		return LanguageEnglish
	default:
		return LanguageOther
	}
}

func modelFor(lang Language) Model {
	if lang == LanguageEnglish {
		return ModelEnglishTuned
	}
	// Korean and "other" both route to the Korean-tuned encoder, per the
	// fallback rule: other-language fallback to Korean.
	return ModelKoreanTuned
}

// Encode maps text to a dense vector, returning the reserved null embedding
// (the zero vector) for empty input without ever erroring.
func (e *embedder) Encode(ctx context.Context, text string) ([]float32, error) {
	if ctx == nil {
		return nil, domainerr.InputValidation("context required")
	}
	if strings.TrimSpace(text) == "" {
		return NullEmbedding(e.dim), nil
	}
	lang := DetectLanguage(text)
	return e.encodeWithModel(text, modelFor(lang)), nil
}

// EncodeBatch encodes texts in order under a single forced language route
// (used when the caller already knows the source document's language),
// falling back to per-text detection when lang is empty.
func (e *embedder) EncodeBatch(ctx context.Context, texts []string, lang Language) ([][]float32, error) {
	if ctx == nil {
		return nil, domainerr.InputValidation("context required")
	}
	out := make([][]float32, len(texts))
	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(batchConcurrency)
	for i, text := range texts {
		i, text := i, text
		eg.Go(func() error {
			if strings.TrimSpace(text) == "" {
				out[i] = NullEmbedding(e.dim)
				return nil
			}
			l := lang
			if l == "" {
				l = DetectLanguage(text)
			}
			out[i] = e.encodeWithModel(text, modelFor(l))
			return nil
		})
	}
	_ = eg.Wait()
	return out, nil
}

// NullEmbedding is the reserved constant returned for empty input.
func NullEmbedding(dim int) []float32 {
	return make([]float32, dim)
}

func (e *embedder) encodeWithModel(text string, model Model) []float32 {
	tokens := tokenize(text, model)
	vec := make([]float64, e.dim)
	for _, tok := range tokens {
		idx, sign := hashToken(string(model), tok, e.dim)
		vec[idx] += sign
	}
	norm := floats.Norm(vec, 2)
	out := make([]float32, e.dim)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// tokenize splits text by model: the Korean-tuned route keeps individual
// Hangul syllables plus Latin/number runs as tokens (Korean has no
// whitespace-delimited morphemes), the English-tuned route lowercases and
// splits on non-letter boundaries.
func tokenize(text string, model Model) []string {
	if model == ModelEnglishTuned {
		return splitWords(strings.ToLower(text))
	}
	var tokens []string
	var run []rune
	flush := func() {
		if len(run) > 0 {
			tokens = append(tokens, string(run))
			run = nil
		}
	}
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hangul, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			run = append(run, unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func splitWords(text string) []string {
	var tokens []string
	var run []rune
	flush := func() {
		if len(run) > 0 {
			tokens = append(tokens, string(run))
			run = nil
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			run = append(run, r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// hashToken derives a bucket index and sign for a token, salted by model so
// the two routed encoders never collide on the same geometry.
func hashToken(salt, token string, dim int) (int, float64) {
	h := fnv.New64a()
	h.Write([]byte(salt))
	h.Write([]byte{0})
	h.Write([]byte(token))
	sum := h.Sum64()
	idx := int(sum % uint64(dim))
	if sum&(1<<63) != 0 {
		return idx, -1
	}
	return idx, 1
}
