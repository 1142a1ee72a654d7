package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/metrostaff/timeclock/internal/errs"
	"github.com/metrostaff/timeclock/internal/gateway"
	"github.com/metrostaff/timeclock/internal/model"
	"github.com/metrostaff/timeclock/internal/repository"
)

// drainBatchSize bounds how many queued punches one activation reads.
const drainBatchSize = 50

// SyncStatus is a snapshot of the syncer for the admin surface.
type SyncStatus struct {
	LastDrain   time.Time
	LastError   string
	TotalSynced int
}

// Syncer drains the offline queue in the background. Two triggers: a fixed
// polling interval and Kick (connectivity restored or admin request).
// Records go out strictly oldest-first, one at a time, because the remote
// weekly-hours computation is sequential per employee.
type Syncer struct {
	queue     repository.PunchQueue
	gw        gateway.Gateway
	log       *zap.Logger
	interval  time.Duration
	sweepTick time.Duration
	retention time.Duration
	kick      chan struct{}
	now       func() time.Time

	mu     sync.Mutex
	status SyncStatus
}

// NewSyncer constructs the background syncer.
func NewSyncer(queue repository.PunchQueue, gw gateway.Gateway, interval, sweepTick, retention time.Duration, log *zap.Logger) *Syncer {
	return &Syncer{
		queue:     queue,
		gw:        gw,
		log:       log,
		interval:  interval,
		sweepTick: sweepTick,
		retention: retention,
		kick:      make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Kick requests an immediate drain. Non-blocking; coalesces with a pending
// request.
func (s *Syncer) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Status returns the current snapshot.
func (s *Syncer) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run drives the drain and retention loops until ctx is cancelled. It drains
// once immediately so punches queued before a restart go out without waiting
// a full interval.
func (s *Syncer) Run(ctx context.Context) {
	s.drainOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	sweep := time.NewTicker(s.sweepTick)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("syncer stopped")
			return
		case <-ticker.C:
			s.drainOnce(ctx)
		case <-s.kick:
			s.drainOnce(ctx)
		case <-sweep.C:
			s.sweepOnce(ctx)
		}
	}
}

// drainOnce processes due records in (punch_ts, id) order. Any transient
// failure stops the batch: skipping past a failed older punch would reorder
// submissions, and on a dead network the remaining calls are doomed anyway.
func (s *Syncer) drainOnce(ctx context.Context) {
	recs, err := s.queue.PeekOldestUnsynced(ctx, drainBatchSize)
	if err != nil {
		s.log.Error("queue peek failed", zap.Error(err))
		s.setStatus(func(st *SyncStatus) { st.LastError = err.Error() })
		return
	}
	s.setStatus(func(st *SyncStatus) { st.LastDrain = s.now(); st.LastError = "" })
	if len(recs) == 0 {
		return
	}

	s.log.Info("draining offline queue", zap.Int("count", len(recs)))
	for i := range recs {
		if !s.syncOne(ctx, &recs[i]) {
			return
		}
	}
}

// syncOne pushes a single record through submit, photo upload and removal.
// It reports whether the drain should continue with the next record.
func (s *Syncer) syncOne(ctx context.Context, rec *model.PunchRecord) bool {
	if rec.NextRetryAt.After(s.now()) {
		// not due yet; later records must wait to preserve order
		return false
	}
	if err := s.queue.MarkSyncing(ctx, rec.ID); err != nil {
		s.log.Error("mark syncing failed", zap.Stringer("id", rec.ID), zap.Error(err))
		return false
	}

	if !rec.PunchSubmitted {
		res, err := s.gw.SubmitPunch(ctx, rec.RawEmployeeID, rec.PunchTime, rec.DeptOverride)
		switch {
		case err == nil:
			if err := s.queue.MarkPunchSubmitted(ctx, rec.ID); err != nil {
				s.log.Error("mark submitted failed", zap.Stringer("id", rec.ID), zap.Error(err))
				return false
			}
			rec.PunchSubmitted = true

		case errors.Is(err, errs.ErrServiceFault):
			msg := model.MessageForException(res.ExceptionCode)
			s.log.Warn("queued punch rejected by remote",
				zap.Stringer("id", rec.ID),
				zap.String("employee", rec.RawEmployeeID),
				zap.Int("exception", res.ExceptionCode),
			)
			if err := s.queue.MarkRejected(ctx, rec.ID, msg.EN); err != nil {
				s.log.Error("mark rejected failed", zap.Stringer("id", rec.ID), zap.Error(err))
				return false
			}
			return true // terminal for this record, the next one may proceed

		default:
			return s.failed(ctx, rec, err)
		}
	}

	if len(rec.Photo) > 0 {
		if err := s.gw.UploadPhoto(ctx, rec.ImageEmployee, rec.Photo, rec.PunchTime); err != nil {
			if errors.Is(err, errs.ErrServiceFault) {
				// remote refused the image; retrying repeats the refusal
				s.log.Error("photo refused by remote, dropping after punch sync",
					zap.Stringer("id", rec.ID), zap.Error(err))
			} else {
				return s.failed(ctx, rec, err)
			}
		}
	}

	if err := s.queue.MarkSynced(ctx, rec.ID); err != nil {
		s.log.Error("mark synced failed", zap.Stringer("id", rec.ID), zap.Error(err))
		return false
	}
	s.setStatus(func(st *SyncStatus) { st.TotalSynced++ })
	s.log.Info("punch synced",
		zap.Stringer("id", rec.ID),
		zap.String("employee", rec.RawEmployeeID),
		zap.Time("punchTime", rec.PunchTime),
	)
	return true
}

// failed records a transient failure and always stops the batch.
func (s *Syncer) failed(ctx context.Context, rec *model.PunchRecord, cause error) bool {
	s.setStatus(func(st *SyncStatus) { st.LastError = cause.Error() })
	rejected, err := s.queue.MarkFailed(ctx, rec.ID, cause.Error())
	if err != nil {
		s.log.Error("mark failed failed", zap.Stringer("id", rec.ID), zap.Error(err))
		return false
	}
	if rejected {
		s.log.Error("retry budget exhausted, punch rejected",
			zap.Stringer("id", rec.ID),
			zap.String("employee", rec.RawEmployeeID),
			zap.Int("attempts", rec.SyncAttempts+1),
		)
	} else {
		s.log.Warn("sync attempt failed, backing off",
			zap.Stringer("id", rec.ID),
			zap.String("employee", rec.RawEmployeeID),
			zap.Error(cause),
		)
	}
	return false
}

// sweepOnce applies the retention policy. Anything purged that never synced
// is data loss and is logged at the highest severity.
func (s *Syncer) sweepOnce(ctx context.Context) {
	purged, err := s.queue.PurgeExpired(ctx, s.retention)
	if err != nil {
		s.log.Error("retention sweep failed", zap.Error(err))
		return
	}
	for _, p := range purged {
		if p.Status == model.StatusRejected {
			s.log.Warn("purged rejected punch after retention window",
				zap.Stringer("id", p.ID), zap.Time("punchTime", p.PunchTime))
			continue
		}
		s.log.Error("DATA LOSS: purged punch that never synced",
			zap.Stringer("id", p.ID),
			zap.String("status", string(p.Status)),
			zap.Time("punchTime", p.PunchTime),
		)
	}
}

func (s *Syncer) setStatus(fn func(*SyncStatus)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}
