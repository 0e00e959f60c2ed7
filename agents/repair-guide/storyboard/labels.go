package storyboard

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"repair-stack/shared/timecode"

	"github.com/PuerkitoBio/goquery"
)

// Interval is the slice of the video covered by one sprite sheet.
type Interval struct {
	Start time.Duration
	End   time.Duration
}

// ParseIntervals reads one interval per <figcaption> of the archive's HTML
// part, in document order. Labels look like
// "Slide #3: 00:01:40,000 – 00:02:30,000 (duration 50s)".
func ParseIntervals(html []byte) ([]Interval, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html part: %v", ErrMalformedArchive, err)
	}

	var (
		intervals []Interval
		parseErr  error
	)
	doc.Find("figcaption").EachWithBreak(func(i int, s *goquery.Selection) bool {
		label := s.Text()
		iv, ok := parseLabel(label)
		if !ok {
			parseErr = fmt.Errorf("%w: caption %d %q", ErrMalformedLabel, i, truncate(strings.TrimSpace(label), 80))
			return false
		}
		intervals = append(intervals, iv)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return intervals, nil
}

func parseLabel(label string) (Interval, bool) {
	_, rest, found := strings.Cut(label, ": ")
	if !found {
		return Interval{}, false
	}
	rest = strings.TrimLeft(rest, " \t")
	start, ok := timecode.Scan(rest)
	if !ok {
		return Interval{}, false
	}
	rest = strings.TrimLeft(rest[timecode.Width:], " \t ")
	switch {
	case strings.HasPrefix(rest, "–"):
		rest = rest[len("–"):]
	case strings.HasPrefix(rest, "-"):
		rest = rest[1:]
	default:
		return Interval{}, false
	}
	rest = strings.TrimLeft(rest, " \t ")
	end, ok := timecode.Scan(rest)
	if !ok || end < start {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}
