package notifier

import (
	"context"
	"sync"
	"time"
)

// Dispatch statuses
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// DispatchRecord tracks delivery of one alert on one channel. The
// (alert_id, channel) pair is the idempotency key: redelivered alerts
// find an existing sent record and are skipped.
type DispatchRecord struct {
	AlertID   string    `db:"alert_id"`
	Channel   string    `db:"channel"`
	Status    string    `db:"status"`
	Attempts  int       `db:"attempts"`
	AttemptID string    `db:"attempt_id"`
	LastError string    `db:"last_error"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store persists dispatch records across restarts
type Store interface {
	// BeginDispatch claims the (alertID, channel) pair for the given
	// attempt. Returns false when the alert was already delivered on
	// this channel.
	BeginDispatch(ctx context.Context, alertID, channel, attemptID string) (bool, error)

	// Complete marks the dispatch as sent
	Complete(ctx context.Context, alertID, channel string, attempts int) error

	// Fail records a dispatch that exhausted its attempts
	Fail(ctx context.Context, alertID, channel string, attempts int, cause string) error

	// Get returns the record for an (alertID, channel) pair
	Get(ctx context.Context, alertID, channel string) (*DispatchRecord, error)

	// Evict removes records last touched before the cutoff and returns
	// how many were removed
	Evict(ctx context.Context, before time.Time) (int64, error)
}

// MemoryStore is an in-process Store. It serves single-instance
// deployments without a database; records do not survive restarts.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*DispatchRecord
}

// NewMemoryStore creates an empty in-memory dispatch store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*DispatchRecord)}
}

func recordKey(alertID, channel string) string {
	return alertID + "|" + channel
}

// BeginDispatch claims the pair unless it was already sent
func (s *MemoryStore) BeginDispatch(ctx context.Context, alertID, channel, attemptID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(alertID, channel)
	if rec, ok := s.records[key]; ok {
		if rec.Status == StatusSent {
			return false, nil
		}
		rec.AttemptID = attemptID
		rec.Status = StatusPending
		rec.UpdatedAt = time.Now()
		return true, nil
	}

	s.records[key] = &DispatchRecord{
		AlertID:   alertID,
		Channel:   channel,
		Status:    StatusPending,
		AttemptID: attemptID,
		UpdatedAt: time.Now(),
	}
	return true, nil
}

// Complete marks the pair as sent
func (s *MemoryStore) Complete(ctx context.Context, alertID, channel string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[recordKey(alertID, channel)]; ok {
		rec.Status = StatusSent
		rec.Attempts = attempts
		rec.LastError = ""
		rec.UpdatedAt = time.Now()
	}
	return nil
}

// Fail records a failed dispatch
func (s *MemoryStore) Fail(ctx context.Context, alertID, channel string, attempts int, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[recordKey(alertID, channel)]; ok {
		rec.Status = StatusFailed
		rec.Attempts = attempts
		rec.LastError = cause
		rec.UpdatedAt = time.Now()
	}
	return nil
}

// Get returns a copy of the record, or nil when absent
func (s *MemoryStore) Get(ctx context.Context, alertID, channel string) (*DispatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recordKey(alertID, channel)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// Evict drops records last touched before the cutoff
func (s *MemoryStore) Evict(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, rec := range s.records {
		if rec.UpdatedAt.Before(before) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

var _ Store = (*MemoryStore)(nil)
