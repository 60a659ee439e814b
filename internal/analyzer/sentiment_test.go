package analyzer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/adapters/news"
)

// filler produces n tokens that carry no sentiment
func filler(n int) string {
	return strings.TrimSpace(strings.Repeat("alpha ", n))
}

func TestScoreText_Bounds(t *testing.T) {
	assert.Equal(t, 0.0, ScoreText(""))
	assert.Equal(t, 0.0, ScoreText("alpha beta gamma"))

	// Single strong words saturate the clamp
	assert.Equal(t, 1.0, ScoreText("surge"))
	assert.Equal(t, -1.0, ScoreText("crash"))
}

func TestScoreText_Direction(t *testing.T) {
	pos := ScoreText("shares rally on strong earnings growth " + filler(10))
	neg := ScoreText("shares plummet amid fraud concern " + filler(10))

	assert.Greater(t, pos, 0.0)
	assert.Less(t, neg, 0.0)
}

func TestScoreText_IgnoresCaseAndPunctuation(t *testing.T) {
	a := ScoreText("SURGE! rally... " + filler(10))
	b := ScoreText("surge rally " + filler(10))
	assert.InDelta(t, a, b, 0.0001)
}

func TestScoreItems_AveragesAcrossArticles(t *testing.T) {
	now := time.Now()
	items := []news.Item{
		// 25 tokens, one strong word: 2/25*10 = 0.8
		{Headline: "surge", Summary: filler(24), PublishedAt: now},
		// 50 tokens, one strong and one moderate: 3/50*10 = 0.6
		{Headline: "surge gain", Summary: filler(48), PublishedAt: now.Add(-time.Hour)},
	}

	score := ScoreItems(items, 10)
	require.NotNil(t, score)

	assert.InDelta(t, 0.7, score.Value, 0.0001)
	assert.InDelta(t, 0.7, score.Magnitude, 0.0001)
	assert.Equal(t, "positive", score.Label)
	assert.Equal(t, 2, score.Articles)
	assert.Contains(t, score.Keywords, "surge")
}

func TestScoreItems_EmptyBatch(t *testing.T) {
	assert.Nil(t, ScoreItems(nil, 10))
	assert.Nil(t, ScoreItems([]news.Item{}, 10))
}

func TestScoreItems_TopNKeepsFreshest(t *testing.T) {
	now := time.Now()
	items := []news.Item{
		{Headline: "crash", Summary: filler(24), PublishedAt: now.Add(-48 * time.Hour)},
		{Headline: "surge", Summary: filler(24), PublishedAt: now},
	}

	score := ScoreItems(items, 1)
	require.NotNil(t, score)
	assert.Equal(t, 1, score.Articles)
	assert.Greater(t, score.Value, 0.0, "stale article should not participate")
}

func TestScoreItems_NeutralLabel(t *testing.T) {
	items := []news.Item{
		{Headline: filler(10), Summary: filler(20), PublishedAt: time.Now()},
	}

	score := ScoreItems(items, 10)
	require.NotNil(t, score)
	assert.Equal(t, "neutral", score.Label)
	assert.Equal(t, 0.0, score.Value)
	assert.Empty(t, score.Keywords)
}
