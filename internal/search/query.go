package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Params configures a comment search. RoomID is required.
type Params struct {
	RoomID string
	Query  string
	Tag    string
	Limit  int
	Offset int
}

// Result is one page of hits plus tag facets over all matches.
type Result struct {
	Query  string       `json:"query"`
	Total  uint64       `json:"total"`
	TookMs int64        `json:"took_ms"`
	Hits   []Hit        `json:"hits"`
	Tags   []FacetCount `json:"tags,omitempty"`
}

// Hit is a matching comment.
type Hit struct {
	ID         string            `json:"id"`
	Score      float64           `json:"score"`
	Text       string            `json:"text"`
	Tags       []string          `json:"tags"`
	Timestamp  int64             `json:"timestamp"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// FacetCount is a tag and the number of matching comments carrying it.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search runs a query scoped to one room.
func (s *Index) Search(ctx context.Context, params Params) (*Result, error) {
	if params.Limit <= 0 {
		params.Limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildQuery(params), params.Limit, params.Offset, false)
	req.SortBy([]string{"-_score", "-timestamp"})
	req.AddFacet("tags", bleve.NewFacetRequest("tags", 50))
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("text")
	req.Fields = []string{"text", "tags", "timestamp"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	out := &Result{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score, Tags: stringsField(h.Fields["tags"])}
		if text, ok := h.Fields["text"].(string); ok {
			hit.Text = text
		}
		if ts, ok := h.Fields["timestamp"].(float64); ok {
			hit.Timestamp = int64(ts)
		}
		for field, fragments := range h.Fragments {
			if len(fragments) > 0 {
				if hit.Highlights == nil {
					hit.Highlights = make(map[string]string)
				}
				hit.Highlights[field] = fragments[0]
			}
		}
		out.Hits = append(out.Hits, hit)
	}

	if facet, ok := res.Facets["tags"]; ok && facet.Terms != nil {
		for _, term := range facet.Terms.Terms() {
			out.Tags = append(out.Tags, FacetCount{Value: term.Term, Count: term.Count})
		}
	}
	return out, nil
}

func buildQuery(params Params) query.Query {
	room := bleve.NewTermQuery(params.RoomID)
	room.SetField("room_id")
	queries := []query.Query{room}

	if q := strings.TrimSpace(params.Query); q != "" {
		match := bleve.NewMatchQuery(q)
		match.SetField("text")
		match.SetBoost(2.0)

		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(q))
		fuzzy.SetField("text")
		fuzzy.SetFuzziness(1)
		fuzzy.SetBoost(0.8)

		textQueries := []query.Query{match, fuzzy}
		if len(q) >= 2 {
			prefix := bleve.NewPrefixQuery(strings.ToLower(q))
			prefix.SetField("text")
			prefix.SetBoost(0.5)
			textQueries = append(textQueries, prefix)
		}
		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	if params.Tag != "" {
		tag := bleve.NewTermQuery(params.Tag)
		tag.SetField("tags")
		queries = append(queries, tag)
	}

	return bleve.NewConjunctionQuery(queries...)
}

// stringsField reads a stored field that holds one string or many.
func stringsField(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}
