// Package service contains the punch coordinator and the background syncer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/metrostaff/timeclock/internal/camera"
	"github.com/metrostaff/timeclock/internal/errs"
	"github.com/metrostaff/timeclock/internal/gateway"
	"github.com/metrostaff/timeclock/internal/ident"
	"github.com/metrostaff/timeclock/internal/model"
	"github.com/metrostaff/timeclock/internal/repository"
)

// Coordinator orchestrates one punch end-to-end, online or offline.
type Coordinator interface {
	// ProcessPunch handles a single scanned or typed id. It returns a
	// displayable outcome for every case except a validation failure or a
	// local storage failure, which are the only errors the kiosk surfaces
	// as errors.
	ProcessPunch(ctx context.Context, rawEmployeeID string, deptOverride *int) (model.Outcome, error)
}

// throttleWindow suppresses rapid re-scans after a not-authorized rejection,
// which badge readers produce when the employee keeps swiping.
const throttleWindow = 5 * time.Second

// notAuthorizedException is the remote code throttling applies to.
const notAuthorizedException = 2

type throttleEntry struct {
	at   time.Time
	code int
}

// CoordinatorImpl is the production Coordinator.
type CoordinatorImpl struct {
	gw    gateway.Gateway
	queue repository.PunchQueue
	cam   camera.Camera
	log   *zap.Logger

	maxOffline int
	now        func() time.Time

	mu       sync.Mutex
	throttle map[string]throttleEntry
}

// NewCoordinator constructs the coordinator.
func NewCoordinator(gw gateway.Gateway, queue repository.PunchQueue, cam camera.Camera, maxOffline int, log *zap.Logger) *CoordinatorImpl {
	return &CoordinatorImpl{
		gw:         gw,
		queue:      queue,
		cam:        cam,
		log:        log,
		maxOffline: maxOffline,
		now:        time.Now,
		throttle:   make(map[string]throttleEntry),
	}
}

var _ Coordinator = (*CoordinatorImpl)(nil)

// ProcessPunch captures the punch instant once, tries exactly one immediate
// submission and hands off to the queue on transient failure. It never
// retries internally.
func (c *CoordinatorImpl) ProcessPunch(ctx context.Context, rawEmployeeID string, deptOverride *int) (model.Outcome, error) {
	raw := strings.TrimSpace(rawEmployeeID)
	if err := validateID(raw); err != nil {
		return model.Outcome{}, err
	}

	// captured once; the swipe and its photo correlate through this instant
	punchTime := c.now().UTC()
	imageID := ident.ImageID(raw)

	if out, throttled := c.checkThrottle(raw, punchTime); throttled {
		c.log.Warn("punch throttled", zap.String("employee", raw))
		return out, nil
	}

	photo, err := c.cam.CapturePhoto(ctx, imageID, punchTime)
	if err != nil {
		c.log.Warn("photo capture failed", zap.String("employee", raw), zap.Error(err))
		photo = nil
	}

	res, err := c.gw.SubmitPunch(ctx, raw, punchTime, deptOverride)
	switch {
	case err == nil:
		return c.finishOnline(ctx, raw, imageID, punchTime, deptOverride, photo, res), nil

	case errors.Is(err, errs.ErrServiceFault):
		// business rejection: terminal, surfaced, never queued
		c.recordThrottle(raw, punchTime, res.ExceptionCode)
		msg := model.MessageForException(res.ExceptionCode)
		return model.Outcome{
			Status:    model.OutcomeRejected,
			Message:   msg.EN,
			MessageES: msg.ES,
		}, nil

	default:
		return c.queueOffline(ctx, raw, imageID, punchTime, deptOverride, photo, false, err)
	}
}

// finishOnline uploads the photo best-effort and builds the success outcome.
// A transiently failed upload queues a photo-only record so the photo is not
// lost; a remote refusal is logged and abandoned.
func (c *CoordinatorImpl) finishOnline(ctx context.Context, raw, imageID string, punchTime time.Time, deptOverride *int, photo []byte, res model.PunchResult) model.Outcome {
	c.clearThrottle(raw)

	if len(photo) > 0 {
		if err := c.gw.UploadPhoto(ctx, imageID, photo, punchTime); err != nil {
			if errs.Transient(err) {
				// punch accepted remotely; queue only the photo for the drain
				if _, qerr := c.queueOffline(ctx, raw, imageID, punchTime, deptOverride, photo, true, err); qerr != nil {
					c.log.Error("pending photo could not be queued",
						zap.String("employee", raw), zap.Error(qerr))
				}
			} else {
				c.log.Error("photo refused by remote, not retrying",
					zap.String("employee", raw), zap.Error(err))
			}
		}
	}

	out := model.Outcome{
		Status:      model.OutcomeOnline,
		FirstName:   res.FirstName,
		LastName:    res.LastName,
		PunchType:   res.PunchType,
		WeeklyHours: res.WeeklyHours,
		HasWeekly:   res.HasWeekly,
	}
	if res.PunchType == model.PunchCheckOut {
		out.Message = fmt.Sprintf("Goodbye %s!", res.FirstName)
		out.MessageES = fmt.Sprintf("¡Adiós %s!", res.FirstName)
	} else {
		out.Message = fmt.Sprintf("Welcome %s!", res.FirstName)
		out.MessageES = fmt.Sprintf("¡Bienvenido %s!", res.FirstName)
	}
	return out
}

// queueOffline persists the punch for the background drain. The employee is
// acknowledged immediately; only a storage failure escalates.
func (c *CoordinatorImpl) queueOffline(ctx context.Context, raw, imageID string, punchTime time.Time, deptOverride *int, photo []byte, punchSubmitted bool, cause error) (model.Outcome, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return model.Outcome{}, fmt.Errorf("punch id: %w", err)
	}
	rec := &model.PunchRecord{
		ID:             id,
		RawEmployeeID:  raw,
		ImageEmployee:  imageID,
		PunchTime:      punchTime,
		DeptOverride:   deptOverride,
		Photo:          photo,
		Status:         model.StatusOfflineQueued,
		PunchSubmitted: punchSubmitted,
	}
	if err := c.queue.Enqueue(ctx, rec); err != nil {
		// cannot persist the punch: the one failure that must escalate
		c.log.Error("punch could not be stored",
			zap.String("employee", raw),
			zap.Time("punchTime", punchTime),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return model.Outcome{}, err
	}

	c.log.Info("punch queued offline",
		zap.Stringer("id", id),
		zap.String("employee", raw),
		zap.Bool("punchSubmitted", punchSubmitted),
		zap.NamedError("cause", cause),
	)
	c.warnIfBacklogged(ctx)

	return model.Outcome{
		Status:    model.OutcomeOffline,
		Message:   "Punch saved offline",
		MessageES: "Datos guardados sin conexión",
	}, nil
}

func (c *CoordinatorImpl) warnIfBacklogged(ctx context.Context) {
	if c.maxOffline <= 0 {
		return
	}
	st, err := c.queue.Stats(ctx)
	if err == nil && st.Pending > c.maxOffline {
		c.log.Warn("offline queue above configured limit",
			zap.Int("pending", st.Pending),
			zap.Int("limit", c.maxOffline),
		)
	}
}

func (c *CoordinatorImpl) checkThrottle(raw string, now time.Time) (model.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.throttle[raw]
	if !ok || e.code != notAuthorizedException || now.Sub(e.at) >= throttleWindow {
		return model.Outcome{}, false
	}
	msg := model.MessageForException(e.code)
	return model.Outcome{
		Status:    model.OutcomeRejected,
		Message:   msg.EN + " (Throttled)",
		MessageES: msg.ES,
	}, true
}

func (c *CoordinatorImpl) recordThrottle(raw string, at time.Time, code int) {
	c.mu.Lock()
	c.throttle[raw] = throttleEntry{at: at, code: code}
	c.mu.Unlock()
}

func (c *CoordinatorImpl) clearThrottle(raw string) {
	c.mu.Lock()
	delete(c.throttle, raw)
	c.mu.Unlock()
}

// validateID rejects ids that are empty or would corrupt the packed swipe
// input.
func validateID(raw string) error {
	if raw == "" {
		return fmt.Errorf("empty employee id: %w", errs.ErrValidation)
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < 0x20 || raw[i] > 0x7e || raw[i] == '|' {
			return fmt.Errorf("employee id contains invalid character: %w", errs.ErrValidation)
		}
	}
	return nil
}
