package analyzer

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"sentinel/internal/adapters/news"
	"sentinel/internal/events"
)

// Financial vocabulary with per-word weights. Strong signals score 2,
// moderate signals score 1.
var wordScores = map[string]int{
	// strong positive
	"bullish": 2, "surge": 2, "soar": 2, "rally": 2, "boom": 2,
	"breakthrough": 2, "record": 2,

	// moderate positive
	"gain": 1, "rise": 1, "up": 1, "positive": 1, "growth": 1,
	"increase": 1, "buy": 1, "upgrade": 1, "outperform": 1, "strong": 1,
	"solid": 1, "good": 1, "better": 1, "improved": 1, "optimistic": 1,
	"confident": 1, "recover": 1, "rebound": 1, "momentum": 1,
	"expansion": 1,

	// strong negative
	"bearish": -2, "crash": -2, "plummet": -2, "collapse": -2,
	"bankruptcy": -2, "scandal": -2, "fraud": -2,

	// moderate negative
	"loss": -1, "fall": -1, "down": -1, "negative": -1, "decline": -1,
	"decrease": -1, "sell": -1, "downgrade": -1, "underperform": -1,
	"weak": -1, "poor": -1, "bad": -1, "worse": -1, "concern": -1,
	"worry": -1, "risk": -1, "volatile": -1, "uncertainty": -1,
	"challenge": -1, "struggle": -1, "disappointing": -1, "worst": -1,
	"crisis": -1, "recession": -1,
}

// scoreGranularity scales the length-normalized raw score so short
// headlines with one strong word still register.
const scoreGranularity = 10

// labelThreshold separates positive and negative aggregates from noise
const labelThreshold = 0.2

// ScoreText computes a sentiment score in [-1, 1] for one piece of
// text. Zero means neutral or no scored vocabulary.
func ScoreText(text string) float64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}

	score := 0
	for _, token := range tokens {
		score += wordScores[token]
	}

	normalized := float64(score) / float64(len(tokens)) * scoreGranularity
	return clamp(normalized, -1, 1)
}

// ScoreItems aggregates per-article sentiment across a batch of news
// items into one score. Only the topN most recent items participate so
// a noisy backlog cannot drown out fresh coverage. Returns nil when the
// batch is empty.
func ScoreItems(items []news.Item, topN int) *events.SentimentScore {
	if len(items) == 0 {
		return nil
	}

	sorted := make([]news.Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})
	if topN > 0 && len(sorted) > topN {
		sorted = sorted[:topN]
	}

	var total, magnitude float64
	hits := make(map[string]int)
	for _, item := range sorted {
		text := item.Headline + " " + item.Summary
		s := ScoreText(text)
		total += s
		magnitude += math.Abs(s)

		for _, token := range tokenize(text) {
			if _, scored := wordScores[token]; scored {
				hits[token]++
			}
		}
	}

	n := float64(len(sorted))
	value := total / n

	return &events.SentimentScore{
		Value:     round3(value),
		Magnitude: round3(magnitude / n),
		Label:     label(value),
		Articles:  len(sorted),
		Keywords:  topKeywords(hits, maxKeywords),
	}
}

// maxKeywords bounds how many scored words the aggregate reports
const maxKeywords = 5

// topKeywords returns the most frequent scored words, ties broken
// alphabetically so the result is stable.
func topKeywords(hits map[string]int, limit int) []string {
	words := make([]string, 0, len(hits))
	for w := range hits {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if hits[words[i]] != hits[words[j]] {
			return hits[words[i]] > hits[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > limit {
		words = words[:limit]
	}
	return words
}

func label(value float64) string {
	switch {
	case value > labelThreshold:
		return "positive"
	case value < -labelThreshold:
		return "negative"
	default:
		return "neutral"
	}
}

// tokenize lowercases and splits on anything that is not a letter
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
