package notifier

import (
	"context"
	"time"

	"sentinel/internal/adapters/config"
	"sentinel/internal/workers"
)

// Janitor evicts dispatch records older than the retention window so
// the ledger stays bounded.
type Janitor struct {
	*workers.BaseWorker

	store Store
	ttl   time.Duration
}

// NewJanitor creates the eviction worker
func NewJanitor(cfg config.NotifierConfig, store Store) *Janitor {
	return &Janitor{
		BaseWorker: workers.NewBaseWorker("dispatch_janitor", cfg.EvictionInterval, true),
		store:      store,
		ttl:        cfg.RecordTTL,
	}
}

// Run evicts expired dispatch records
func (j *Janitor) Run(ctx context.Context) error {
	removed, err := j.store.Evict(ctx, time.Now().Add(-j.ttl))
	if err != nil {
		j.Log().Errorf("Dispatch record eviction failed: %v", err)
		j.RecordError(err)
		return err
	}

	if removed > 0 {
		j.Log().Info("Evicted dispatch records", "removed", removed)
	}
	j.RecordRun()
	return nil
}

var _ workers.Worker = (*Janitor)(nil)
