// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// PunchStatus tracks a punch along its state machine. Transitions are
// monotonic: Received -> Submitting -> {Synced, Rejected, OfflineQueued},
// OfflineQueued -> Syncing -> {Synced, Rejected}.
type PunchStatus string

// Punch lifecycle states.
const (
	StatusReceived      PunchStatus = "received"
	StatusSubmitting    PunchStatus = "submitting"
	StatusOfflineQueued PunchStatus = "offline_queued"
	StatusSyncing       PunchStatus = "syncing"
	StatusSynced        PunchStatus = "synced"
	StatusRejected      PunchStatus = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s PunchStatus) Terminal() bool {
	return s == StatusSynced || s == StatusRejected
}

// PunchType is the direction the remote service resolved for a punch.
type PunchType string

// Punch directions as returned by the attendance service.
const (
	PunchCheckIn  PunchType = "checkin"
	PunchCheckOut PunchType = "checkout"
)

// PunchRecord is the unit of work: one physical punch event. ID and
// PunchTime are assigned once at creation and never regenerated, so a punch
// and its photo stay correlated no matter how late the record syncs.
type PunchRecord struct {
	ID             uuid.UUID   // idempotency key, client-generated
	RawEmployeeID  string      // as scanned or typed, immutable
	ImageEmployee  string      // derived once via ident.ImageID
	PunchTime      time.Time   // UTC instant captured at punch time
	DeptOverride   *int        // optional department override
	Photo          []byte      // owned by the record while queued; nil if none
	Status         PunchStatus
	PunchSubmitted bool      // swipe already accepted remotely; only the photo is pending
	SyncAttempts   int
	LastError      string
	NextRetryAt    time.Time
	CreatedAt      time.Time
}

// PunchResult is the decoded remote response for one swipe submission.
type PunchResult struct {
	Success       bool
	PunchType     PunchType
	FirstName     string
	LastName      string
	ExceptionCode int
	WeeklyHours   decimal.Decimal
	HasWeekly     bool
}

// OutcomeStatus classifies what the kiosk should display for a punch.
type OutcomeStatus string

// Outcome classes surfaced to the UI collaborator.
const (
	OutcomeOnline   OutcomeStatus = "ok"      // accepted by the remote service
	OutcomeOffline  OutcomeStatus = "offline" // stored locally, acknowledged
	OutcomeRejected OutcomeStatus = "rejected"
)

// Outcome is what the coordinator reports back for one punch attempt.
// Offline and online successes are distinct but both are successes.
type Outcome struct {
	Status      OutcomeStatus
	Message     string
	MessageES   string
	FirstName   string
	LastName    string
	PunchType   PunchType
	WeeklyHours decimal.Decimal
	HasWeekly   bool
}

// QueueStats summarizes queue state for the admin surface.
type QueueStats struct {
	Pending       int
	Rejected      int
	OldestPending time.Time
	HasPending    bool
}
