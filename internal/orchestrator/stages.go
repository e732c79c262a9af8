package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/pkg/dbctx"
	"github.com/graphbrain/kgqa/internal/recovery"
)

// embedAndSearch is stage 1: embed the question and search the per-brain
// vector index, returning candidates and the retrieval-quality scalar Q.
func (o *orchestrator) embedAndSearch(ctx context.Context, req Request, stageCtx recovery.StageContext) ([]domain.SearchHit, float64, error) {
	type out struct {
		hits []domain.SearchHit
		q    float64
	}
	outcome, err := o.recovery.Run(ctx, "embed_and_search", stageCtx, nil, func(ctx context.Context, params recovery.Params) (any, error) {
		vec, err := o.embedder.Encode(ctx, req.Question)
		if err != nil {
			return nil, err
		}
		hits, q, err := o.vectors.Search(ctx, req.BrainID, vec, searchTopK)
		if err != nil {
			return nil, err
		}
		return out{hits: hits, q: q}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	if outcome.Skipped || outcome.Fallback {
		return nil, 0, nil
	}
	r := outcome.Result.(out)
	return r.hits, r.q, nil
}

type nodeQualityDecision struct {
	FilteredNodeNames []string `json:"filtered_node_names"`
	NeedsMoreSearch   bool     `json:"needs_more_search"`
	Reason            string   `json:"reason"`
}

// filterNodeQuality is stage 2: ask the model which candidates are
// actually relevant to the question.
func (o *orchestrator) filterNodeQuality(ctx context.Context, req Request, candidates []domain.SearchHit, stageCtx recovery.StageContext) ([]domain.SearchHit, error) {
	outcome, err := o.recovery.Run(ctx, "node_quality_filter", stageCtx, nil, func(ctx context.Context, params recovery.Params) (any, error) {
		var b strings.Builder
		b.WriteString("Question: " + req.Question + "\n")
		b.WriteString("Candidate nodes (name, score):\n")
		for _, c := range candidates {
			fmt.Fprintf(&b, "- %s, %.4f\n", c.Name, c.Score)
		}
		b.WriteString(`Respond with exactly one JSON object: {"filtered_node_names": [string], "needs_more_search": bool, "reason": string}`)

		resp, err := o.llm.Chat(ctx, b.String())
		if err != nil {
			return nil, err
		}
		var decision nodeQualityDecision
		if jerr := json.Unmarshal([]byte(strings.TrimSpace(resp)), &decision); jerr != nil {
			return []domain.SearchHit{}, nil
		}
		return filterHitsByName(candidates, decision.FilteredNodeNames), nil
	})
	if err != nil {
		return nil, err
	}
	if outcome.Skipped || outcome.Fallback {
		return nil, nil
	}
	return outcome.Result.([]domain.SearchHit), nil
}

func filterHitsByName(hits []domain.SearchHit, keep []string) []domain.SearchHit {
	if len(keep) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(keep))
	for _, n := range keep {
		allowed[n] = struct{}{}
	}
	var out []domain.SearchHit
	for _, h := range hits {
		if _, ok := allowed[h.Name]; ok {
			out = append(out, h)
		}
	}
	return out
}

// fetchSchema is stage 3.
func (o *orchestrator) fetchSchema(ctx context.Context, req Request, names []string, deep bool, stageCtx recovery.StageContext) (domain.SchemaResult, bool, error) {
	outcome, err := o.recovery.Run(ctx, "schema_fetch", stageCtx, recovery.Params{"deep": deep}, func(ctx context.Context, params recovery.Params) (any, error) {
		useDeep, _ := params["deep"].(bool)
		return o.graph.QuerySchemaByNames(ctx, req.BrainID, names, useDeep)
	})
	if err != nil {
		return domain.SchemaResult{}, deep, err
	}
	if outcome.Skipped || outcome.Fallback {
		return domain.SchemaResult{}, deep, nil
	}
	return outcome.Result.(domain.SchemaResult), deep, nil
}

type sufficiencyDecision struct {
	IsSufficient    bool   `json:"is_sufficient"`
	NeedsDeepSearch bool   `json:"needs_deep_search"`
	Reason          string `json:"reason"`
}

// judgeSufficiency is stage 4: ask whether the fetched schema is enough to
// answer, and if the model says it is not and asks for a deep search while
// the request wasn't already deep, refetch with deep=true.
func (o *orchestrator) judgeSufficiency(ctx context.Context, req Request, schema domain.SchemaResult, deepUsed bool, names []string, stageCtx recovery.StageContext) (domain.SchemaResult, error) {
	outcome, err := o.recovery.Run(ctx, "schema_sufficiency", stageCtx, nil, func(ctx context.Context, params recovery.Params) (any, error) {
		summary := fmt.Sprintf("nodes=%d, related=%d, rels=%d", len(schema.StartNodes), len(schema.RelatedNodes), len(schema.Relationships))
		prompt := "Question: " + req.Question + "\nSchema summary: " + summary +
			"\nRespond with exactly one JSON object: " +
			`{"is_sufficient": bool, "needs_deep_search": bool, "reason": string}`

		resp, err := o.llm.Chat(ctx, prompt)
		if err != nil {
			return nil, err
		}
		var decision sufficiencyDecision
		if jerr := json.Unmarshal([]byte(strings.TrimSpace(resp)), &decision); jerr != nil {
			return schema, nil
		}
		if !decision.IsSufficient && decision.NeedsDeepSearch && !deepUsed {
			deeper, derr := o.graph.QuerySchemaByNames(ctx, req.BrainID, names, true)
			if derr != nil {
				return nil, derr
			}
			return deeper, nil
		}
		return schema, nil
	})
	if err != nil {
		return domain.SchemaResult{}, err
	}
	if outcome.Skipped || outcome.Fallback {
		return schema, nil
	}
	return outcome.Result.(domain.SchemaResult), nil
}

// optimizeSchemaText is stage 6: ask the model to drop lines unrelated to
// the question, keeping the original when the result looks degenerate.
func (o *orchestrator) optimizeSchemaText(ctx context.Context, req Request, schemaText string, stageCtx recovery.StageContext) (string, error) {
	outcome, err := o.recovery.Run(ctx, "schema_optimize", stageCtx, nil, func(ctx context.Context, params recovery.Params) (any, error) {
		prompt := "Question: " + req.Question + "\nSchema text:\n" + schemaText +
			"\n\nRemove any relation or node line unrelated to the question. Keep the exact two-part format (relation lines, blank line, node lines). Output only the resulting text."
		resp, err := o.llm.Chat(ctx, prompt)
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(resp)
		if len(trimmed) < optimizedSchemaMinChars {
			return schemaText, nil
		}
		return trimmed, nil
	})
	if err != nil {
		return schemaText, err
	}
	if outcome.Skipped || outcome.Fallback {
		return schemaText, nil
	}
	return outcome.Result.(string), nil
}

// generateAnswer is stage 7.
func (o *orchestrator) generateAnswer(ctx context.Context, schemaText, question string, stageCtx recovery.StageContext) (string, error) {
	outcome, err := o.recovery.Run(ctx, "generate_answer", stageCtx, nil, func(ctx context.Context, params recovery.Params) (any, error) {
		return o.llm.GenerateAnswer(ctx, schemaText, question)
	})
	if err != nil {
		return "", err
	}
	if outcome.Skipped || outcome.Fallback {
		return "", nil
	}
	return outcome.Result.(string), nil
}

// expandCitations is stage 9: map each referenced node to its source ids,
// resolve titles via the metadata store, then fetch the original sentences
// backing each (node, source) pair from the graph store.
func (o *orchestrator) expandCitations(ctx context.Context, brainID string, referencedNames []string) ([]domain.ReferencedNode, error) {
	if len(referencedNames) == 0 {
		return nil, nil
	}
	bulk, err := o.graph.GetDescriptionsBulk(ctx, brainID, referencedNames)
	if err != nil {
		return nil, err
	}

	idSet := make(map[int64]struct{})
	for _, ids := range bulk {
		for _, id := range ids {
			var n int64
			if _, serr := fmt.Sscanf(id, "%d", &n); serr == nil {
				idSet[n] = struct{}{}
			}
		}
	}
	allIDs := make([]int64, 0, len(idSet))
	for id := range idSet {
		allIDs = append(allIDs, id)
	}
	titles, err := o.sources.TitlesByIDs(dbctx.Context{Ctx: ctx}, allIDs)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ReferencedNode, 0, len(referencedNames))
	for _, name := range referencedNames {
		ids, ok := bulk[name]
		if !ok {
			out = append(out, domain.ReferencedNode{Name: name})
			continue
		}
		sourceRefs := make([]domain.ReferencedSource, 0, len(ids))
		for _, idStr := range ids {
			sentences, serr := o.graph.GetOriginalSentences(ctx, brainID, name, idStr)
			if serr != nil {
				return nil, serr
			}
			title := ""
			var idNum int64
			if _, scanErr := fmt.Sscanf(idStr, "%d", &idNum); scanErr == nil {
				title = titles[idNum]
			}
			sourceRefs = append(sourceRefs, domain.ReferencedSource{ID: idStr, Title: title, OriginalSentences: sentences})
		}
		out = append(out, domain.ReferencedNode{Name: name, SourceIDs: sourceRefs})
	}
	return out, nil
}
