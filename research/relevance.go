package research

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// RelevanceFilter ranks evidence by embedding similarity to the topic so
// synthesis prompts spend their token budget on the most relevant sources.
type RelevanceFilter struct {
	db        *chromem.DB
	embedding chromem.EmbeddingFunc
	topK      int
}

// NewRelevanceFilter builds an in-process filter over the given embedding
// function.
func NewRelevanceFilter(embedding chromem.EmbeddingFunc, topK int) *RelevanceFilter {
	return &RelevanceFilter{
		db:        chromem.NewDB(),
		embedding: embedding,
		topK:      topK,
	}
}

// Rank returns the topK items most similar to the topic. Items without
// usable text are dropped; when topK meets or exceeds the usable item
// count every usable item is returned unranked.
func (f *RelevanceFilter) Rank(ctx context.Context, topic string, items []EvidenceItem) ([]EvidenceItem, error) {
	byID := make(map[string]EvidenceItem, len(items))
	col, err := f.db.GetOrCreateCollection(fmt.Sprintf("evidence-%s", normalizeQuery(topic)), nil, f.embedding)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		content := item.FullText
		if content == "" {
			content = item.Snippet
		}
		if content == "" {
			continue
		}
		byID[item.SourceID] = item
		doc := chromem.Document{
			ID:      item.SourceID,
			Content: capText(content, 2000),
			Metadata: map[string]string{
				"url":   item.URL,
				"title": item.Title,
			},
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return nil, err
		}
	}
	if f.topK <= 0 || len(byID) <= f.topK {
		kept := make([]EvidenceItem, 0, len(byID))
		for _, item := range items {
			if _, ok := byID[item.SourceID]; ok {
				kept = append(kept, item)
			}
		}
		return kept, nil
	}
	results, err := col.Query(ctx, topic, f.topK, nil, nil)
	if err != nil {
		return nil, err
	}
	kept := make([]EvidenceItem, 0, len(results))
	for _, res := range results {
		if item, ok := byID[res.ID]; ok {
			kept = append(kept, item)
		}
	}
	return kept, nil
}
