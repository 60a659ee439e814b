// Package noop provides an error tracker that discards everything.
// Used when error tracking is disabled or for testing.
package noop

import (
	"context"

	"sentinel/pkg/errors"
)

// Tracker is a no-op implementation of the error tracker
type Tracker struct{}

// New creates a new no-op tracker
func New() *Tracker {
	return &Tracker{}
}

// CaptureError does nothing
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	return nil
}

// CaptureMessage does nothing
func (t *Tracker) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	return nil
}

// Flush does nothing
func (t *Tracker) Flush(ctx context.Context) error {
	return nil
}

var _ errors.Tracker = (*Tracker)(nil)
