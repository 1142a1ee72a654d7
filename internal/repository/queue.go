// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/metrostaff/timeclock/internal/model"
)

// PurgedRecord describes one record removed by a retention sweep. Purges of
// non-synced records are data loss and must be logged as such by the caller.
type PurgedRecord struct {
	ID        uuid.UUID
	Status    model.PunchStatus
	PunchTime time.Time
}

// PunchQueue is the durable, ordered store of pending punches. All mutating
// operations run in a single transaction each, so a live enqueue and a
// background drain never interleave on the same record.
type PunchQueue interface {
	// Enqueue persists the record and its photo atomically; both succeed or
	// both fail. A duplicate id yields errs.ErrAlreadyExists; an unavailable
	// durable medium yields errs.ErrStorage.
	Enqueue(ctx context.Context, rec *model.PunchRecord) error

	// PeekOldestUnsynced returns up to limit non-rejected records ordered by
	// (punch_ts, id), photos included. Read-only.
	PeekOldestUnsynced(ctx context.Context, limit int) ([]model.PunchRecord, error)

	// MarkSyncing flags the record as in-flight so a crash mid-sync leaves it
	// queryable and resumable.
	MarkSyncing(ctx context.Context, id uuid.UUID) error

	// MarkSynced removes the record and releases its photo after a confirmed
	// remote acknowledgement.
	MarkSynced(ctx context.Context, id uuid.UUID) error

	// MarkFailed records a transient failure: bumps sync_attempts, stores the
	// cause and schedules the next retry with exponential backoff. Once the
	// attempt budget is exhausted the record flips to Rejected; the returned
	// bool reports that transition.
	MarkFailed(ctx context.Context, id uuid.UUID, cause string) (rejected bool, err error)

	// MarkRejected terminally rejects the record (business rejection). The
	// record is retained for manual inspection.
	MarkRejected(ctx context.Context, id uuid.UUID, cause string) error

	// MarkPunchSubmitted records that the swipe reached the remote service,
	// so a later drain only re-uploads the photo.
	MarkPunchSubmitted(ctx context.Context, id uuid.UUID) error

	// PurgeExpired removes records older than maxAge regardless of status and
	// reports what was removed.
	PurgeExpired(ctx context.Context, maxAge time.Duration) ([]PurgedRecord, error)

	// ListRejected returns terminally rejected records, newest first.
	ListRejected(ctx context.Context, limit int) ([]model.PunchRecord, error)

	// Stats summarizes queue state for the admin surface.
	Stats(ctx context.Context) (model.QueueStats, error)
}
