// Package captions turns a downloaded WebVTT caption track into timestamped
// text cues.
//
// Automatic captions on the catalog roll: each cue repeats the previous line
// before adding a new one, and carry inline timing tags such as
// <00:00:01.520><c> word</c>. Normalize keeps one copy of each line, stamped
// with the start of the cue it first appeared in.
package captions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"repair-stack/internal/models"
	"repair-stack/shared/timecode"
)

// ErrMalformedTrack is returned for caption files that are missing, not UTF-8
// or lack the WebVTT header.
var ErrMalformedTrack = errors.New("malformed caption track")

// HeaderLines is the fixed header written by the downloader:
// "WEBVTT", "Kind: captions", "Language: xx".
const HeaderLines = 3

const timingArrow = " --> "

// ReadFile loads a caption track and returns its lines after the header.
func ReadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrMalformedTrack, filepath.Base(path))
		}
		return nil, fmt.Errorf("read caption track: %w", err)
	}
	return SplitTrack(data)
}

// SplitTrack validates the header of a raw track and returns the remaining lines.
func SplitTrack(data []byte) ([]string, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrMalformedTrack)
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) < HeaderLines {
		return nil, fmt.Errorf("%w: %d lines, header needs %d", ErrMalformedTrack, len(lines), HeaderLines)
	}
	first := strings.TrimPrefix(strings.TrimRight(lines[0], "\r"), "\ufeff")
	if !strings.HasPrefix(first, "WEBVTT") {
		return nil, fmt.Errorf("%w: missing WEBVTT header", ErrMalformedTrack)
	}
	return lines[HeaderLines:], nil
}

// Normalize converts caption lines (header already removed) into cues.
// Blank lines are dropped, inline tags stripped, timing lines move the
// current cue time, and a text line equal to the previous kept line is
// skipped. Lines before the first timing line get a nil Start.
func Normalize(lines []string) []models.SubtitleCue {
	var (
		cues    []models.SubtitleCue
		current *time.Duration
		prev    string
	)
	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		line = StripTags(line)

		if start, _, ok := ParseTiming(line); ok {
			current = &start
			continue
		}

		text := strings.TrimSpace(line)
		if text == "" || text == prev {
			continue
		}
		cue := models.SubtitleCue{Text: text}
		if current != nil {
			start := *current
			cue.Start = &start
		}
		cues = append(cues, cue)
		prev = text
	}
	return cues
}

// StripTags removes every <...> span. An unterminated '<' is kept as text.
func StripTags(line string) string {
	if strings.IndexByte(line, '<') < 0 {
		return line
	}
	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); {
		if line[i] == '<' {
			if end := strings.IndexByte(line[i+1:], '>'); end >= 0 {
				i += end + 2
				continue
			}
		}
		b.WriteByte(line[i])
		i++
	}
	return b.String()
}

// ParseTiming recognises "HH:MM:SS.mmm --> HH:MM:SS.mmm" at the start of a
// line, optionally followed by whitespace and cue settings.
func ParseTiming(line string) (start, end time.Duration, ok bool) {
	start, ok = timecode.Scan(line)
	if !ok {
		return 0, 0, false
	}
	rest := line[timecode.Width:]
	if !strings.HasPrefix(rest, timingArrow) {
		return 0, 0, false
	}
	rest = rest[len(timingArrow):]
	end, ok = timecode.Scan(rest)
	if !ok {
		return 0, 0, false
	}
	rest = rest[timecode.Width:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, 0, false
	}
	return start, end, true
}
