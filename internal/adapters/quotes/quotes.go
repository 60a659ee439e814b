// Package quotes provides the market quote source consumed by the
// scanner. The provider is abstracted behind Source so the scan loop
// never depends on a concrete vendor API.
package quotes

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the current state of one instrument
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	Volume    int64
	Timestamp time.Time
}

// Source pulls current quotes for a watch-list. Implementations must
// isolate per-symbol failures: an error for one symbol omits that
// symbol from the result instead of failing the batch. A batch-level
// error (transport down, rate limit) is returned only when nothing
// could be fetched.
type Source interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}
