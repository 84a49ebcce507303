package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivi-ai/backend/internal/storage/models"
)

func TestRelevance_AllTermsMatch(t *testing.T) {
	content := "The quarterly report shows strong growth"
	assert.Equal(t, 1.0, Relevance(content, "quarterly growth"))
}

func TestRelevance_PartialMatch(t *testing.T) {
	content := "The quarterly report shows strong growth"
	assert.Equal(t, 0.5, Relevance(content, "quarterly missing"))
}

func TestRelevance_CaseInsensitive(t *testing.T) {
	content := "The Quarterly Report"
	assert.Equal(t, 1.0, Relevance(content, "QUARTERLY report"))
}

func TestRelevance_CappedAtOne(t *testing.T) {
	content := "go go go go"
	assert.Equal(t, 1.0, Relevance(content, "go"))
}

func TestRelevance_EmptyQuery(t *testing.T) {
	assert.Equal(t, 0.0, Relevance("some content", ""))
	assert.Equal(t, 0.0, Relevance("some content", "   "))
}

func TestRelevance_EmptyContent(t *testing.T) {
	assert.Equal(t, 0.0, Relevance("", "query"))
}

func TestExcerpt_WindowAroundMatch(t *testing.T) {
	content := strings.Repeat("x", 300) + "needle" + strings.Repeat("y", 300)

	r := New(200)
	excerpt := r.Excerpt(content, "needle")

	assert.True(t, strings.HasPrefix(excerpt, "..."))
	assert.True(t, strings.HasSuffix(excerpt, "..."))
	assert.Contains(t, excerpt, "needle")
	// 200-char window plus the surrounding ellipses.
	assert.Len(t, excerpt, 206)
	// Window starts 50 characters before the match.
	assert.Equal(t, "...", excerpt[:3])
	assert.Equal(t, strings.Repeat("x", 50), excerpt[3:53])
}

func TestExcerpt_MatchNearStart(t *testing.T) {
	content := "The quarterly report shows strong growth."

	r := New(200)
	excerpt := r.Excerpt(content, "quarterly")

	assert.Equal(t, "..."+content+"...", excerpt)
}

func TestExcerpt_NoMatchFallsBackToHead(t *testing.T) {
	content := strings.Repeat("a", 300)

	r := New(200)
	excerpt := r.Excerpt(content, "zzz")

	assert.Equal(t, content[:200]+"...", excerpt)
}

func TestExcerpt_EmptyQueryFallsBackToHead(t *testing.T) {
	content := strings.Repeat("b", 300)

	r := New(200)
	excerpt := r.Excerpt(content, "")

	assert.Equal(t, content[:200]+"...", excerpt)
}

func TestExcerpt_MultibyteContentStaysValid(t *testing.T) {
	r := New(200)

	// Window edges land mid-rune without boundary clamping.
	content := strings.Repeat("€", 100) + "needle" + strings.Repeat("€", 100)
	excerpt := r.Excerpt(content, "needle")

	assert.True(t, utf8.ValidString(excerpt))
	assert.Contains(t, excerpt, "needle")

	// Head fallback with no match.
	content = strings.Repeat("€", 150)
	excerpt = r.Excerpt(content, "zzz")

	assert.True(t, utf8.ValidString(excerpt))
	assert.True(t, strings.HasSuffix(excerpt, "..."))
}

func TestExcerpt_EmptyContent(t *testing.T) {
	r := New(200)
	assert.Equal(t, "", r.Excerpt("", "query"))
}

func TestSearch_OrdersByScoreDescending(t *testing.T) {
	docs := []models.Document{
		{ID: "low", Content: "nothing relevant here"},
		{ID: "high", Content: "budget filler budget filler"},
		{ID: "mid", Content: "one budget mention only"},
	}

	r := New(200)
	results := r.Search(docs, "budget filler", 10)

	require.Len(t, results, 3)
	assert.Equal(t, "high", results[0].Document.ID)
	assert.Equal(t, "mid", results[1].Document.ID)
	assert.Equal(t, "low", results[2].Document.ID)
}

func TestSearch_TiesKeepInputOrder(t *testing.T) {
	docs := []models.Document{
		{ID: "first", Content: "budget report"},
		{ID: "second", Content: "budget summary"},
	}

	r := New(200)
	results := r.Search(docs, "budget", 10)

	require.Len(t, results, 2)
	assert.Equal(t, results[0].Score, results[1].Score)
	assert.Equal(t, "first", results[0].Document.ID)
	assert.Equal(t, "second", results[1].Document.ID)
}

func TestSearch_AppliesLimit(t *testing.T) {
	docs := []models.Document{
		{ID: "a", Content: "budget"},
		{ID: "b", Content: "budget"},
		{ID: "c", Content: "budget"},
	}

	r := New(200)
	results := r.Search(docs, "budget", 2)

	assert.Len(t, results, 2)
}

func TestCosine(t *testing.T) {
	a := []float32{1, 2, 3}

	assert.InDelta(t, 1.0, Cosine(a, a), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine(a, []float32{1, 2}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}
