// Package quota bounds a user's total non-sample dataset storage against
// their tier limit.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AhsanAkhlaq/skewplay/internal/model"
	"github.com/AhsanAkhlaq/skewplay/internal/store"
)

// ErrQuotaExceeded is returned when an upload would push a user past their
// tier's storage limit.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Ledger enforces per-tier storage quotas. Reserve is a pre-flight check
// against a locally cached profile; the authoritative counter lives in the
// store and moves only through Commit and Release. Concurrent sessions of the
// same user can race the pre-flight check; that window is accepted, not
// locked away.
type Ledger struct {
	store  store.Store
	logger *slog.Logger
}

// NewLedger creates a quota ledger over the given store.
func NewLedger(s store.Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: s, logger: logger}
}

// Reserve checks whether the cached profile's usage plus sizeBytes fits the
// tier limit. It performs no writes and takes no lock.
func (l *Ledger) Reserve(profile *model.UserProfile, sizeBytes int64) error {
	limit := model.StorageLimit(profile.Tier)
	if profile.UsageStats.StorageUsedBytes+sizeBytes > limit {
		return fmt.Errorf("%w: %d + %d bytes over %d byte limit (%s tier)",
			ErrQuotaExceeded, profile.UsageStats.StorageUsedBytes, sizeBytes, limit, profile.Tier)
	}
	return nil
}

// Commit records sizeBytes of consumed storage after the dataset write
// succeeded. A failure here leaves usage under-counted; it is logged and not
// retried.
func (l *Ledger) Commit(ctx context.Context, userID string, sizeBytes int64) {
	if err := l.store.AddStorageUsed(ctx, userID, sizeBytes); err != nil {
		l.logger.Error("quota commit failed, usage under-counted",
			"user_id", userID, "size_bytes", sizeBytes, "error", err)
	}
}

// Release returns sizeBytes of storage after a dataset delete. Symmetric
// drift risk to Commit: logged, not retried.
func (l *Ledger) Release(ctx context.Context, userID string, sizeBytes int64) {
	if err := l.store.AddStorageUsed(ctx, userID, -sizeBytes); err != nil {
		l.logger.Error("quota release failed, usage over-counted",
			"user_id", userID, "size_bytes", sizeBytes, "error", err)
	}
}
