package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/metrostaff/timeclock/internal/errs"
	"github.com/metrostaff/timeclock/internal/model"
)

var fixedNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) (*PunchRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	r := NewPunchRepo(&DB{Pool: mock}, 5, 5*time.Second, 5*time.Minute)
	r.now = func() time.Time { return fixedNow }
	return r, mock
}

func sampleRecord(t *testing.T, photo []byte) *model.PunchRecord {
	t.Helper()
	return &model.PunchRecord{
		ID:            uuid.Must(uuid.NewV4()),
		RawEmployeeID: "TE00700",
		ImageEmployee: "00700",
		PunchTime:     fixedNow.Add(-time.Minute),
		Photo:         photo,
		Status:        model.StatusOfflineQueued,
	}
}

func TestPunchRepo_Enqueue_WithPhoto(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()
	rec := sampleRecord(t, []byte{0xff, 0xd8})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO punch_queue`).
		WithArgs(rec.ID, rec.RawEmployeeID, rec.ImageEmployee, rec.PunchTime, rec.DeptOverride,
			"offline_queued", false, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO punch_photos`).
		WithArgs(rec.ID, rec.Photo).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, r.Enqueue(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPunchRepo_Enqueue_NoPhoto(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()
	rec := sampleRecord(t, nil)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO punch_queue`).
		WithArgs(rec.ID, rec.RawEmployeeID, rec.ImageEmployee, rec.PunchTime, rec.DeptOverride,
			"offline_queued", false, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, r.Enqueue(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPunchRepo_Enqueue_Duplicate(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()
	rec := sampleRecord(t, nil)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO punch_queue`).
		WithArgs(rec.ID, rec.RawEmployeeID, rec.ImageEmployee, rec.PunchTime, rec.DeptOverride,
			"offline_queued", false, fixedNow).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := r.Enqueue(context.Background(), rec)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestPunchRepo_Enqueue_StorageDown(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()
	rec := sampleRecord(t, nil)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO punch_queue`).
		WithArgs(rec.ID, rec.RawEmployeeID, rec.ImageEmployee, rec.PunchTime, rec.DeptOverride,
			"offline_queued", false, fixedNow).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	err := r.Enqueue(context.Background(), rec)
	require.ErrorIs(t, err, errs.ErrStorage)
}

func TestPunchRepo_PeekOldestUnsynced(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	id1 := uuid.Must(uuid.NewV4())
	id2 := uuid.Must(uuid.NewV4())
	t1 := fixedNow.Add(-2 * time.Hour)
	t2 := fixedNow.Add(-time.Hour)

	cols := []string{"id", "raw_employee_id", "image_employee", "punch_ts", "dept_override",
		"status", "punch_submitted", "sync_attempts", "last_error", "next_retry_at", "created_at", "photo"}
	mock.ExpectQuery(`SELECT q\.id, q\.raw_employee_id`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(id1, "TE00700", "00700", t1, nil, "offline_queued", false, 1, "network unavailable", fixedNow, t1, []byte{1}).
			AddRow(id2, "12345", "12345", t2, nil, "syncing", false, 0, "", time.Time{}, t2, nil))

	recs, err := r.PeekOldestUnsynced(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, id1, recs[0].ID)
	require.Equal(t, model.StatusOfflineQueued, recs[0].Status)
	require.Equal(t, []byte{1}, recs[0].Photo)
	require.Equal(t, 1, recs[0].SyncAttempts)
	require.Equal(t, id2, recs[1].ID)
	require.Equal(t, model.StatusSyncing, recs[1].Status)
	require.Nil(t, recs[1].Photo)
}

func TestPunchRepo_MarkSynced(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`DELETE FROM punch_queue WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.MarkSynced(context.Background(), id))

	mock.ExpectExec(`DELETE FROM punch_queue WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.MarkSynced(context.Background(), id), errs.ErrNotFound)
}

func TestPunchRepo_MarkFailed_Backoff(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()
	id := uuid.Must(uuid.NewV4())

	// first failure: 5s backoff
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT sync_attempts FROM punch_queue WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"sync_attempts"}).AddRow(0))
	mock.ExpectExec(`UPDATE punch_queue SET status='offline_queued'`).
		WithArgs(id, 1, "dial tcp: refused", fixedNow.Add(5*time.Second)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	rejected, err := r.MarkFailed(context.Background(), id, "dial tcp: refused")
	require.NoError(t, err)
	require.False(t, rejected)

	// third failure: 5s * 2^2 = 20s
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT sync_attempts`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"sync_attempts"}).AddRow(2))
	mock.ExpectExec(`UPDATE punch_queue SET status='offline_queued'`).
		WithArgs(id, 3, "timeout", fixedNow.Add(20*time.Second)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	rejected, err = r.MarkFailed(context.Background(), id, "timeout")
	require.NoError(t, err)
	require.False(t, rejected)
}

func TestPunchRepo_MarkFailed_CapsBackoff(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()
	r.maxAttempts = 100
	id := uuid.Must(uuid.NewV4())

	// 5s * 2^9 would be 2560s; capped at 5m
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT sync_attempts`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"sync_attempts"}).AddRow(9))
	mock.ExpectExec(`UPDATE punch_queue SET status='offline_queued'`).
		WithArgs(id, 10, "timeout", fixedNow.Add(5*time.Minute)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	_, err := r.MarkFailed(context.Background(), id, "timeout")
	require.NoError(t, err)
}

func TestPunchRepo_MarkFailed_ExhaustedBudget(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT sync_attempts`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"sync_attempts"}).AddRow(4))
	mock.ExpectExec(`UPDATE punch_queue SET status='rejected'`).
		WithArgs(id, 5, "timeout").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	rejected, err := r.MarkFailed(context.Background(), id, "timeout")
	require.NoError(t, err)
	require.True(t, rejected)
}

func TestPunchRepo_MarkRejected(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE punch_queue SET status='rejected', last_error=\$2 WHERE id=\$1`).
		WithArgs(id, "Not Authorized. No punch recorded.").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.MarkRejected(context.Background(), id, "Not Authorized. No punch recorded."))
}

func TestPunchRepo_MarkPunchSubmitted(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE punch_queue SET punch_submitted=TRUE WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.MarkPunchSubmitted(context.Background(), id))
}

func TestPunchRepo_PurgeExpired(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	lostID := uuid.Must(uuid.NewV4())
	cutoff := fixedNow.Add(-30 * 24 * time.Hour)
	mock.ExpectQuery(`DELETE FROM punch_queue WHERE created_at < \$1 RETURNING id, status, punch_ts`).
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "punch_ts"}).
			AddRow(lostID, "offline_queued", cutoff.Add(-time.Hour)))

	purged, err := r.PurgeExpired(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, purged, 1)
	require.Equal(t, lostID, purged[0].ID)
	require.Equal(t, model.StatusOfflineQueued, purged[0].Status)
}

func TestPunchRepo_Stats(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	oldest := fixedNow.Add(-time.Hour)
	mock.ExpectQuery(`SELECT count\(\*\) FILTER`).
		WillReturnRows(pgxmock.NewRows([]string{"pending", "rejected", "oldest"}).
			AddRow(3, 1, &oldest))

	st, err := r.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, st.Pending)
	require.Equal(t, 1, st.Rejected)
	require.True(t, st.HasPending)
	require.Equal(t, oldest, st.OldestPending)
}

func TestPunchRepo_ListRejected(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	id := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`WHERE status = 'rejected'`).
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "raw_employee_id", "image_employee", "punch_ts",
			"dept_override", "punch_submitted", "sync_attempts", "last_error", "next_retry_at", "created_at"}).
			AddRow(id, "99999", "99999", fixedNow.Add(-time.Hour), nil, false, 5, "timeout", fixedNow, fixedNow.Add(-time.Hour)))

	recs, err := r.ListRejected(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, model.StatusRejected, recs[0].Status)
	require.Equal(t, "timeout", recs[0].LastError)
}
