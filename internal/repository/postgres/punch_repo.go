package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/metrostaff/timeclock/internal/errs"
	"github.com/metrostaff/timeclock/internal/model"
	"github.com/metrostaff/timeclock/internal/repository"
)

// isUniqueViolation reports whether the error is a duplicate punch id.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}

// PunchRepo implements repository.PunchQueue on PostgreSQL.
type PunchRepo struct {
	db          *DB
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	now         func() time.Time
}

// NewPunchRepo constructs the queue repository with the retry/backoff policy.
func NewPunchRepo(db *DB, maxAttempts int, backoffBase, backoffCap time.Duration) *PunchRepo {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &PunchRepo{
		db:          db,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		now:         time.Now,
	}
}

var _ repository.PunchQueue = (*PunchRepo)(nil)

// Enqueue persists the record and its photo in one transaction.
func (r *PunchRepo) Enqueue(ctx context.Context, rec *model.PunchRecord) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("enqueue: begin: %v: %w", err, errs.ErrStorage)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("enqueue: commit: %v: %w", e, errs.ErrStorage)
		}
	}()

	const ins = `
INSERT INTO punch_queue (id, raw_employee_id, image_employee, punch_ts, dept_override, status, punch_submitted, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err = tx.Exec(ctx, ins,
		rec.ID, rec.RawEmployeeID, rec.ImageEmployee, rec.PunchTime, rec.DeptOverride,
		string(model.StatusOfflineQueued), rec.PunchSubmitted, r.now(),
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("enqueue %s: %w", rec.ID, errs.ErrAlreadyExists)
		}
		return fmt.Errorf("enqueue: %v: %w", err, errs.ErrStorage)
	}

	if len(rec.Photo) > 0 {
		const insPhoto = `INSERT INTO punch_photos (punch_id, photo) VALUES ($1,$2)`
		if _, err = tx.Exec(ctx, insPhoto, rec.ID, rec.Photo); err != nil {
			return fmt.Errorf("enqueue photo: %v: %w", err, errs.ErrStorage)
		}
	}
	return nil
}

// PeekOldestUnsynced returns pending records in drain order with photos.
func (r *PunchRepo) PeekOldestUnsynced(ctx context.Context, limit int) ([]model.PunchRecord, error) {
	const q = `
SELECT q.id, q.raw_employee_id, q.image_employee, q.punch_ts, q.dept_override,
       q.status, q.punch_submitted, q.sync_attempts, q.last_error, q.next_retry_at,
       q.created_at, p.photo
FROM punch_queue q
LEFT JOIN punch_photos p ON p.punch_id = q.id
WHERE q.status <> 'rejected'
ORDER BY q.punch_ts, q.id
LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("peek: %v: %w", err, errs.ErrStorage)
	}
	defer rows.Close()

	var out []model.PunchRecord
	for rows.Next() {
		var rec model.PunchRecord
		var status string
		if err := rows.Scan(
			&rec.ID, &rec.RawEmployeeID, &rec.ImageEmployee, &rec.PunchTime, &rec.DeptOverride,
			&status, &rec.PunchSubmitted, &rec.SyncAttempts, &rec.LastError, &rec.NextRetryAt,
			&rec.CreatedAt, &rec.Photo,
		); err != nil {
			return nil, fmt.Errorf("peek scan: %v: %w", err, errs.ErrStorage)
		}
		rec.Status = model.PunchStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkSyncing flags the record as in-flight.
func (r *PunchRepo) MarkSyncing(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE punch_queue SET status='syncing' WHERE id=$1 AND status <> 'rejected'`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("mark syncing: %v: %w", err, errs.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// MarkSynced removes the record; the photo row goes with it.
func (r *PunchRepo) MarkSynced(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM punch_queue WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("mark synced: %v: %w", err, errs.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// MarkFailed schedules the next retry or, past the attempt budget, rejects.
func (r *PunchRepo) MarkFailed(ctx context.Context, id uuid.UUID, cause string) (rejected bool, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("mark failed: begin: %v: %w", err, errs.ErrStorage)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("mark failed: commit: %v: %w", e, errs.ErrStorage)
		}
	}()

	const sel = `SELECT sync_attempts FROM punch_queue WHERE id=$1 FOR UPDATE`
	var attempts int
	if err = tx.QueryRow(ctx, sel, id).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, errs.ErrNotFound
		}
		return false, fmt.Errorf("mark failed: %v: %w", err, errs.ErrStorage)
	}

	attempts++
	if attempts >= r.maxAttempts {
		const rej = `UPDATE punch_queue SET status='rejected', sync_attempts=$2, last_error=$3 WHERE id=$1`
		if _, err = tx.Exec(ctx, rej, id, attempts, cause); err != nil {
			return false, fmt.Errorf("mark failed: %v: %w", err, errs.ErrStorage)
		}
		return true, nil
	}

	const upd = `
UPDATE punch_queue SET status='offline_queued', sync_attempts=$2, last_error=$3, next_retry_at=$4
WHERE id=$1`
	if _, err = tx.Exec(ctx, upd, id, attempts, cause, r.now().Add(r.backoff(attempts))); err != nil {
		return false, fmt.Errorf("mark failed: %v: %w", err, errs.ErrStorage)
	}
	return false, nil
}

// backoff doubles from the base per attempt, capped.
func (r *PunchRepo) backoff(attempts int) time.Duration {
	d := r.backoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= r.backoffCap {
			return r.backoffCap
		}
	}
	if d > r.backoffCap {
		return r.backoffCap
	}
	return d
}

// MarkRejected terminally rejects the record.
func (r *PunchRepo) MarkRejected(ctx context.Context, id uuid.UUID, cause string) error {
	const q = `UPDATE punch_queue SET status='rejected', last_error=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, cause)
	if err != nil {
		return fmt.Errorf("mark rejected: %v: %w", err, errs.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// MarkPunchSubmitted records that the swipe was accepted remotely.
func (r *PunchRepo) MarkPunchSubmitted(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE punch_queue SET punch_submitted=TRUE WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("mark submitted: %v: %w", err, errs.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// PurgeExpired removes records older than maxAge regardless of status.
func (r *PunchRepo) PurgeExpired(ctx context.Context, maxAge time.Duration) ([]repository.PurgedRecord, error) {
	const q = `DELETE FROM punch_queue WHERE created_at < $1 RETURNING id, status, punch_ts`
	rows, err := r.db.Pool.Query(ctx, q, r.now().Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("purge: %v: %w", err, errs.ErrStorage)
	}
	defer rows.Close()

	var purged []repository.PurgedRecord
	for rows.Next() {
		var p repository.PurgedRecord
		var status string
		if err := rows.Scan(&p.ID, &status, &p.PunchTime); err != nil {
			return nil, fmt.Errorf("purge scan: %v: %w", err, errs.ErrStorage)
		}
		p.Status = model.PunchStatus(status)
		purged = append(purged, p)
	}
	return purged, rows.Err()
}

// ListRejected returns rejected records, newest first, without photo bytes.
func (r *PunchRepo) ListRejected(ctx context.Context, limit int) ([]model.PunchRecord, error) {
	const q = `
SELECT id, raw_employee_id, image_employee, punch_ts, dept_override,
       punch_submitted, sync_attempts, last_error, next_retry_at, created_at
FROM punch_queue
WHERE status = 'rejected'
ORDER BY punch_ts DESC
LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list rejected: %v: %w", err, errs.ErrStorage)
	}
	defer rows.Close()

	var out []model.PunchRecord
	for rows.Next() {
		rec := model.PunchRecord{Status: model.StatusRejected}
		if err := rows.Scan(
			&rec.ID, &rec.RawEmployeeID, &rec.ImageEmployee, &rec.PunchTime, &rec.DeptOverride,
			&rec.PunchSubmitted, &rec.SyncAttempts, &rec.LastError, &rec.NextRetryAt, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("list rejected scan: %v: %w", err, errs.ErrStorage)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats summarizes queue contents.
func (r *PunchRepo) Stats(ctx context.Context) (model.QueueStats, error) {
	const q = `
SELECT count(*) FILTER (WHERE status <> 'rejected'),
       count(*) FILTER (WHERE status = 'rejected'),
       min(punch_ts) FILTER (WHERE status <> 'rejected')
FROM punch_queue`
	var st model.QueueStats
	var oldest *time.Time
	if err := r.db.Pool.QueryRow(ctx, q).Scan(&st.Pending, &st.Rejected, &oldest); err != nil {
		return model.QueueStats{}, fmt.Errorf("stats: %v: %w", err, errs.ErrStorage)
	}
	if oldest != nil {
		st.OldestPending = *oldest
		st.HasPending = true
	}
	return st, nil
}
