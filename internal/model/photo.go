package model

import "time"

// photoStampLayout matches the remote side's filename convention.
const photoStampLayout = "20060102_150405"

// PhotoFilename builds the remote filename for a punch photo. The timestamp
// is the punch instant, never recomputed, so the photo and the swipe stay
// correlated however late the upload happens.
func PhotoFilename(imageEmployeeID string, punchTime time.Time) string {
	return imageEmployeeID + "_" + punchTime.UTC().Format(photoStampLayout) + ".jpg"
}
