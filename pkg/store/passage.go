package store

import "sort"

// Passage is a retrieved chunk of the corpus, scoped to a single request.
type Passage struct {
	SourceID string  `json:"source_id"`
	Text     string  `json:"text"`
	Score    float32 `json:"score"`
	Header   string  `json:"header,omitempty"`
	URL      string  `json:"url,omitempty"`
}

// SortByScore orders passages by descending score, keeping input order on ties.
func SortByScore(passages []Passage) {
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
}
