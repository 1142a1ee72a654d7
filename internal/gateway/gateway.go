// Package gateway wraps the remote attendance service: one swipe
// submission, one photo upload. Retry policy lives with the callers.
package gateway

import (
	"context"
	"time"

	"github.com/metrostaff/timeclock/internal/model"
)

// Gateway is the single remote-call boundary. Implementations classify
// failures into the errs sentinels: connectivity problems are transient
// (ErrNetwork/ErrTimeout), business rejections are terminal
// (ErrServiceFault).
type Gateway interface {
	// SubmitPunch sends one swipe. On a business rejection the returned
	// result still carries the exception code for display; err wraps
	// errs.ErrServiceFault.
	SubmitPunch(ctx context.Context, rawEmployeeID string, punchTime time.Time, deptOverride *int) (model.PunchResult, error)

	// UploadPhoto sends the punch photo. Only called after the swipe for
	// the same punch has been accepted.
	UploadPhoto(ctx context.Context, imageEmployeeID string, photo []byte, punchTime time.Time) error
}
