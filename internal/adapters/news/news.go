// Package news provides the news source consumed by the analyzer.
package news

import (
	"context"
	"time"
)

// Item is one news article for a symbol. Items are transient: they
// live only within one analyzer processing cycle and are never
// persisted or published directly.
type Item struct {
	Headline    string
	Source      string
	Summary     string
	PublishedAt time.Time
}

// Source retrieves recent news for a symbol since a cutoff time
type Source interface {
	GetNews(ctx context.Context, symbol string, since time.Time) ([]Item, error)
}
