package camera

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSpoolDir_ReadsAndConsumes(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2026, 8, 24, 14, 30, 5, 0, time.UTC)
	path := filepath.Join(dir, "00700_20260824_143005.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xd8}, 0o600))

	cam := SpoolDir{Dir: dir}
	data, err := cam.CapturePhoto(context.Background(), "00700", ts)
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0xd8}, data)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestSpoolDir_MissingPhotoIsNotAnError(t *testing.T) {
	cam := SpoolDir{Dir: t.TempDir()}
	data, err := cam.CapturePhoto(context.Background(), "00700", time.Now())
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestDisabled(t *testing.T) {
	data, err := Disabled{}.CapturePhoto(context.Background(), "x", time.Now())
	require.NoError(t, err)
	require.Nil(t, data)
}
