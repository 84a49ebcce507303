// Package retrieval scores and ranks processed documents against a query and
// extracts a highlighted excerpt for search previews.
//
// Ranking is term-match counting over document content. Embeddings are stored
// at ingestion time but not yet consumed here; Cosine is the seam for the
// similarity-based replacement.
package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/vivi-ai/backend/internal/storage/models"
)

const (
	DefaultExcerptLength = 200

	// excerptLead is how far before the first match the excerpt window starts.
	excerptLead = 50
)

type Result struct {
	Document models.Document
	Score    float64
	Excerpt  string
}

type Retriever struct {
	excerptLength int
}

func New(excerptLength int) *Retriever {
	if excerptLength <= 0 {
		excerptLength = DefaultExcerptLength
	}
	return &Retriever{excerptLength: excerptLength}
}

// Search scores every candidate document against the query and returns up to
// limit results ordered by descending score. Candidates keep their input
// order on ties, so a recency-ordered corpus stays recency-ordered.
func (r *Retriever) Search(docs []models.Document, query string, limit int) []Result {
	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		results = append(results, Result{
			Document: doc,
			Score:    Relevance(doc.Content, query),
			Excerpt:  r.Excerpt(doc.Content, query),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results
}

// Relevance is the normalized term-match count: the query is split on
// whitespace into lowercase terms, each term's occurrences in the lowercase
// content are summed, and the total is divided by the term count, capped at 1.
// Documents without content score 0.
func Relevance(content, query string) float64 {
	if content == "" {
		return 0
	}

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}

	contentLower := strings.ToLower(content)

	matches := 0
	for _, term := range terms {
		matches += strings.Count(contentLower, term)
	}

	return math.Min(float64(matches)/float64(len(terms)), 1.0)
}

// Excerpt returns a window of content around the earliest query-term match.
// Without a match it falls back to the head of the content followed by an
// ellipsis; with one, the window starts 50 characters before the match and is
// wrapped in ellipses.
func (r *Retriever) Excerpt(content, query string) string {
	if content == "" {
		return ""
	}

	terms := strings.Fields(strings.ToLower(query))
	contentLower := strings.ToLower(content)

	firstIndex := len(content)
	for _, term := range terms {
		if idx := strings.Index(contentLower, term); idx != -1 && idx < firstIndex {
			firstIndex = idx
		}
	}

	if firstIndex == len(content) {
		end := r.excerptLength
		if end > len(content) {
			end = len(content)
		}
		return content[:clampRuneStart(content, end)] + "..."
	}

	start := firstIndex - excerptLead
	if start < 0 {
		start = 0
	}
	end := start + r.excerptLength
	if end > len(content) {
		end = len(content)
	}

	start = clampRuneStart(content, start)
	end = clampRuneStart(content, end)

	return "..." + content[start:end] + "..."
}

// clampRuneStart moves a byte index back to the nearest rune boundary so
// window slicing never splits a multibyte character.
func clampRuneStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// Cosine is the similarity measure for the future embedding-space ranking
// path. It returns 0 for mismatched or empty vectors.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
