// Package timecode reads the fixed-width HH:MM:SS.mmm clock values used by
// caption tracks and storyboard labels.
package timecode

import (
	"fmt"
	"strings"
	"time"
)

// Width is the length of a clock value, e.g. "01:02:03.456".
const Width = 12

// Scan reads a clock value at the start of s. The fractional separator may be
// '.' (WebVTT) or ',' (SRT-style labels).
func Scan(s string) (time.Duration, bool) {
	if len(s) < Width {
		return 0, false
	}
	if s[2] != ':' || s[5] != ':' || (s[8] != '.' && s[8] != ',') {
		return 0, false
	}
	hours, ok := digits(s[0:2])
	if !ok {
		return 0, false
	}
	minutes, ok := digits(s[3:5])
	if !ok {
		return 0, false
	}
	seconds, ok := digits(s[6:8])
	if !ok {
		return 0, false
	}
	millis, ok := digits(s[9:12])
	if !ok {
		return 0, false
	}
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond, true
}

// Parse requires s to be exactly one clock value, ignoring surrounding space.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) != Width {
		return 0, fmt.Errorf("invalid timecode %q: expected HH:MM:SS.mmm", s)
	}
	d, ok := Scan(s)
	if !ok {
		return 0, fmt.Errorf("invalid timecode %q: expected HH:MM:SS.mmm", s)
	}
	return d, nil
}

// Format renders d as HH:MM:SS.mmm.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3_600_000, (ms/60_000)%60, (ms/1000)%60, ms%1000)
}

func digits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
