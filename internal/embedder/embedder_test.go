package embedder

import (
	"context"
	"testing"

	"github.com/graphbrain/kgqa/internal/platform/logger"
)

func testEmbedder(t *testing.T) Embedder {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return New(log, 64)
}

func TestEncodeEmptyReturnsNullEmbedding(t *testing.T) {
	e := testEmbedder(t)
	vec, err := e.Encode(context.Background(), "")
	if err != nil {
		t.Fatalf("Encode empty: %v", err)
	}
	if len(vec) != e.Dim() {
		t.Fatalf("expected dim %d, got %d", e.Dim(), len(vec))
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatalf("expected null embedding, got non-zero component: %v", vec)
		}
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	e := testEmbedder(t)
	ctx := context.Background()
	a, err := e.Encode(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := e.Encode(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected deterministic encoding, differed at index %d: %v vs %v", i, a, b)
		}
	}
}

func TestEncodeRoutesKoreanAndEnglishDifferently(t *testing.T) {
	e := testEmbedder(t)
	ctx := context.Background()
	ko, err := e.Encode(ctx, "안녕하세요")
	if err != nil {
		t.Fatalf("Encode korean: %v", err)
	}
	en, err := e.Encode(ctx, "hello there")
	if err != nil {
		t.Fatalf("Encode english: %v", err)
	}
	same := true
	for i := range ko {
		if ko[i] != en[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected different routed encoders to diverge")
	}
}

func TestEncodeBatchPreservesOrder(t *testing.T) {
	e := testEmbedder(t)
	texts := []string{"first sentence", "", "third sentence"}
	out, err := e.EncodeBatch(context.Background(), texts, LanguageEnglish)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	if len(out) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(out))
	}
	for _, v := range out[1] {
		if v != 0 {
			t.Fatalf("expected null embedding for empty text at index 1, got %v", out[1])
		}
	}
	single, err := e.Encode(context.Background(), "first sentence")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := range single {
		if single[i] != out[0][i] {
			t.Fatalf("batch and single encode diverged at index %d", i)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := map[string]Language{
		"hello world":  LanguageEnglish,
		"안녕하세요":        LanguageKorean,
		"12345":        LanguageOther,
		"hello 안녕":     LanguageKorean,
	}
	for text, want := range cases {
		if got := DetectLanguage(text); got != want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", text, got, want)
		}
	}
}
