// Package ident derives the image-correlation id from a raw scanned id.
package ident

// ImageID returns the employee id used for photo filenames. Badge scanners
// prepend a 2-character alphabetic device/location prefix that must not
// appear in the photo filename; the swipe submission itself keeps the full
// scanned string.
func ImageID(raw string) string {
	if len(raw) >= 2 && isAlpha(raw[0]) && isAlpha(raw[1]) {
		return raw[2:]
	}
	return raw
}

func isAlpha(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
