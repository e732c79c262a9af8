package extractor

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

const (
	baseThreshold    = 0.6
	thresholdGrowth  = 1.1
	maxLeafDepth     = 5
	maxLeafTokens    = 700
	tfidfTopN        = 7
	directLeafTokens = 30
)

type tokenizedSentence struct {
	Index  int
	Tokens []string
}

// edgeDraft records a parent/child keyword pair discovered during chunking;
// its relation text is resolved afterwards against the full sentence set.
type edgeDraft struct {
	Source string
	Target string
}

type chunkBuilder struct {
	keywords []string
	seen     map[string]struct{}
	edges    []edgeDraft
	// directAttachments holds sentence indices for groups too small to earn
	// their own keyword node (spec.md: "mark the group as a direct leaf
	// description attached to the parent"), keyed by the parent keyword
	// they attach to.
	directAttachments map[string][]int
}

func newChunkBuilder() *chunkBuilder {
	return &chunkBuilder{seen: make(map[string]struct{}), directAttachments: make(map[string][]int)}
}

func (b *chunkBuilder) attachDirect(keyword string, group []tokenizedSentence) {
	for _, s := range group {
		b.directAttachments[keyword] = append(b.directAttachments[keyword], s.Index)
	}
}

func (b *chunkBuilder) addKeyword(keyword string) bool {
	if keyword == "" {
		return false
	}
	if _, ok := b.seen[keyword]; ok {
		return false
	}
	b.seen[keyword] = struct{}{}
	b.keywords = append(b.keywords, keyword)
	return true
}

// chunkRecursive implements spec.md's recursive topical chunking: it finds
// the keyword set and parent/child relations, without assigning sentence
// text to nodes (stage 4 resolves descriptions separately by keyword match).
func chunkRecursive(b *chunkBuilder, group []tokenizedSentence, depth int, keyword string, threshold float64) {
	if depth > 0 && isLeaf(group, depth) {
		return
	}

	vocab := buildVocabulary(group)
	vectors := make([][]float64, len(group))
	for i, s := range group {
		vectors[i] = termVector(s.Tokens, vocab)
	}

	if depth == 0 {
		var allTokens []string
		for _, s := range group {
			allTokens = append(allTokens, s.Tokens...)
		}
		keyword = topTermByFrequency(allTokens)
	}
	b.addKeyword(keyword)

	groups := groupGreedy(vectors, threshold)
	if len(groups) <= 1 && depth > 0 {
		// similarity collapsed everything into one bucket; stop to avoid
		// recursing forever on an unsplittable group.
		return
	}

	tokenGroups := make([][]string, len(groups))
	sentenceGroups := make([][]tokenizedSentence, len(groups))
	for gi, idxs := range groups {
		var toks []string
		var sents []tokenizedSentence
		for _, idx := range idxs {
			sents = append(sents, group[idx])
			toks = append(toks, group[idx].Tokens...)
		}
		tokenGroups[gi] = toks
		sentenceGroups[gi] = sents
	}

	keywordPerGroup := tfidfKeywords(tokenGroups, tfidfTopN, b.seen)

	for gi, childKeyword := range keywordPerGroup {
		tokenCount := len(tokenGroups[gi])
		if childKeyword == "" {
			if tokenCount < directLeafTokens {
				// too small and no fresh keyword -> attach directly to the
				// parent as a leaf description instead of becoming its own
				// node, same as the Python ground truth's small-group case.
				b.attachDirect(keyword, sentenceGroups[gi])
				continue
			}
			// no fresh keyword but still substantial: keep splitting under
			// the parent's own keyword so every sentence still reaches a
			// leaf instead of being dropped.
			chunkRecursive(b, sentenceGroups[gi], depth+1, keyword, threshold*thresholdGrowth)
			continue
		}
		b.addKeyword(childKeyword)
		b.edges = append(b.edges, edgeDraft{Source: keyword, Target: childKeyword})
		chunkRecursive(b, sentenceGroups[gi], depth+1, childKeyword, threshold*thresholdGrowth)
	}
}

func isLeaf(group []tokenizedSentence, depth int) bool {
	if len(group) == 1 {
		return true
	}
	if depth <= maxLeafDepth {
		return false
	}
	total := 0
	for _, s := range group {
		total += len(s.Tokens)
	}
	return total < maxLeafTokens
}

func buildVocabulary(group []tokenizedSentence) map[string]int {
	vocab := make(map[string]int)
	for _, s := range group {
		for _, t := range s.Tokens {
			if _, ok := vocab[t]; !ok {
				vocab[t] = len(vocab)
			}
		}
	}
	return vocab
}

// termVector is a plain term-frequency vector over the group's local
// vocabulary. The corpus carries no LDA/topic-modeling library, so this
// stands in for the topic-distribution vector spec.md describes: it is
// deterministic and, like a topic vector, lets cosine similarity compare
// sentences by overlapping subject matter.
func termVector(tokens []string, vocab map[string]int) []float64 {
	vec := make([]float64, len(vocab))
	for _, t := range tokens {
		if idx, ok := vocab[t]; ok {
			vec[idx]++
		}
	}
	if n := floats.Norm(vec, 2); n > 0 {
		floats.Scale(1/n, vec)
	}
	return vec
}

func cosineSim(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return floats.Dot(a, b)
}

// groupGreedy implements the left-to-right greedy grouping: a sentence joins
// the current group iff it is similar enough to at least one current member.
func groupGreedy(vectors [][]float64, threshold float64) [][]int {
	visited := make([]bool, len(vectors))
	var groups [][]int
	for i := range vectors {
		if visited[i] {
			continue
		}
		group := []int{i}
		visited[i] = true
		for j := i + 1; j < len(vectors); j++ {
			if visited[j] {
				continue
			}
			joins := false
			for _, m := range group {
				if cosineSim(vectors[m], vectors[j]) >= threshold {
					joins = true
					break
				}
			}
			if !joins {
				break
			}
			group = append(group, j)
			visited[j] = true
		}
		groups = append(groups, group)
	}
	return groups
}

// tfidfKeywords ranks each group's tokens by tf-idf across all groups at
// this recursion level and returns the first term not already used as a
// node elsewhere in the extraction, or "" if every candidate is taken.
func tfidfKeywords(tokenGroups [][]string, topN int, used map[string]struct{}) []string {
	df := make(map[string]int)
	for _, toks := range tokenGroups {
		seen := make(map[string]struct{})
		for _, t := range toks {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}

	out := make([]string, len(tokenGroups))
	for gi, toks := range tokenGroups {
		tf := make(map[string]int)
		for _, t := range toks {
			tf[t]++
		}
		type scored struct {
			term  string
			score float64
		}
		var candidates []scored
		for term, count := range tf {
			idf := 1.0
			if d := df[term]; d > 0 {
				idf = 1.0 + 1.0/float64(d)
			}
			candidates = append(candidates, scored{term: term, score: float64(count) * idf})
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].score != candidates[j].score {
				return candidates[i].score > candidates[j].score
			}
			return candidates[i].term < candidates[j].term
		})
		if len(candidates) > topN {
			candidates = candidates[:topN]
		}
		for _, c := range candidates {
			if _, taken := used[c.term]; taken {
				continue
			}
			out[gi] = c.term
			break
		}
	}
	return out
}

// topTermByFrequency picks the root representative keyword at depth 0: the
// most frequent token overall (spec.md's "top topic term"), ties broken
// alphabetically for determinism.
func topTermByFrequency(tokens []string) string {
	freq := make(map[string]int)
	for _, t := range tokens {
		freq[t]++
	}
	if len(freq) == 0 {
		return ""
	}
	best := ""
	bestCount := -1
	for t, c := range freq {
		if c > bestCount || (c == bestCount && t < best) {
			best, bestCount = t, c
		}
	}
	return best
}

func resolveRelation(source, target string, sentences []rawSentence) string {
	for _, s := range sentences {
		if strings.Contains(s.Text, source) && strings.Contains(s.Text, target) {
			return s.Text
		}
	}
	return "관련"
}
