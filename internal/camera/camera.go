// Package camera is the boundary to the kiosk camera collaborator. The core
// only stores and forwards photo bytes; capture itself lives in a separate
// process.
package camera

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/metrostaff/timeclock/internal/model"
)

// Camera supplies photo bytes for a given image id and punch timestamp.
// A nil slice with nil error means no photo is available, which is not a
// failure.
type Camera interface {
	CapturePhoto(ctx context.Context, imageEmployeeID string, punchTime time.Time) ([]byte, error)
}

// Disabled is the no-photo camera used when the kiosk has no camera service.
type Disabled struct{}

// CapturePhoto always reports that no photo is available.
func (Disabled) CapturePhoto(context.Context, string, time.Time) ([]byte, error) {
	return nil, nil
}

// SpoolDir picks up the JPEG the camera service drops into a shared
// directory, named by the same convention used for the remote upload. The
// file is consumed: once read, it is removed so the directory does not grow.
type SpoolDir struct {
	Dir string
}

// CapturePhoto reads and removes the spooled photo for this punch.
func (s SpoolDir) CapturePhoto(_ context.Context, imageEmployeeID string, punchTime time.Time) ([]byte, error) {
	path := filepath.Join(s.Dir, model.PhotoFilename(imageEmployeeID, punchTime))
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	return data, nil
}
