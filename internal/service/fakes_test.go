package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/metrostaff/timeclock/internal/gateway"
	"github.com/metrostaff/timeclock/internal/model"
	"github.com/metrostaff/timeclock/internal/repository"
)

type submitCall struct {
	raw  string
	ts   time.Time
	dept *int
}

type uploadCall struct {
	imageID string
	photo   []byte
	ts      time.Time
}

type fakeGateway struct {
	submitRes   model.PunchResult
	submitErr   error
	submitFn    func(raw string) (model.PunchResult, error)
	submitCalls []submitCall

	uploadErr   error
	uploadFn    func(imageID string) error
	uploadCalls []uploadCall
}

var _ gateway.Gateway = (*fakeGateway)(nil)

func (f *fakeGateway) SubmitPunch(_ context.Context, raw string, ts time.Time, dept *int) (model.PunchResult, error) {
	f.submitCalls = append(f.submitCalls, submitCall{raw: raw, ts: ts, dept: dept})
	if f.submitFn != nil {
		return f.submitFn(raw)
	}
	return f.submitRes, f.submitErr
}

func (f *fakeGateway) UploadPhoto(_ context.Context, imageID string, photo []byte, ts time.Time) error {
	f.uploadCalls = append(f.uploadCalls, uploadCall{imageID: imageID, photo: photo, ts: ts})
	if f.uploadFn != nil {
		return f.uploadFn(imageID)
	}
	return f.uploadErr
}

type fakeQueue struct {
	enqueued   []*model.PunchRecord
	enqueueErr error

	peekRecs []model.PunchRecord
	peekErr  error

	syncing   []uuid.UUID
	synced    []uuid.UUID
	submitted []uuid.UUID

	failed       []uuid.UUID
	failCauses   []string
	failRejected bool

	rejected      []uuid.UUID
	rejectedCause []string

	purged   []repository.PurgedRecord
	purgeAge time.Duration

	stats model.QueueStats
}

var _ repository.PunchQueue = (*fakeQueue)(nil)

func (f *fakeQueue) Enqueue(_ context.Context, rec *model.PunchRecord) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, rec)
	return nil
}

func (f *fakeQueue) PeekOldestUnsynced(_ context.Context, _ int) ([]model.PunchRecord, error) {
	return append([]model.PunchRecord(nil), f.peekRecs...), f.peekErr
}

func (f *fakeQueue) MarkSyncing(_ context.Context, id uuid.UUID) error {
	f.syncing = append(f.syncing, id)
	return nil
}

func (f *fakeQueue) MarkSynced(_ context.Context, id uuid.UUID) error {
	f.synced = append(f.synced, id)
	return nil
}

func (f *fakeQueue) MarkFailed(_ context.Context, id uuid.UUID, cause string) (bool, error) {
	f.failed = append(f.failed, id)
	f.failCauses = append(f.failCauses, cause)
	return f.failRejected, nil
}

func (f *fakeQueue) MarkRejected(_ context.Context, id uuid.UUID, cause string) error {
	f.rejected = append(f.rejected, id)
	f.rejectedCause = append(f.rejectedCause, cause)
	return nil
}

func (f *fakeQueue) MarkPunchSubmitted(_ context.Context, id uuid.UUID) error {
	f.submitted = append(f.submitted, id)
	return nil
}

func (f *fakeQueue) PurgeExpired(_ context.Context, maxAge time.Duration) ([]repository.PurgedRecord, error) {
	f.purgeAge = maxAge
	return f.purged, nil
}

func (f *fakeQueue) ListRejected(_ context.Context, _ int) ([]model.PunchRecord, error) {
	return nil, nil
}

func (f *fakeQueue) Stats(_ context.Context) (model.QueueStats, error) {
	return f.stats, nil
}

type fakeCamera struct {
	photo []byte
	err   error
	calls []string // image ids requested
}

func (f *fakeCamera) CapturePhoto(_ context.Context, imageID string, _ time.Time) ([]byte, error) {
	f.calls = append(f.calls, imageID)
	return f.photo, f.err
}
