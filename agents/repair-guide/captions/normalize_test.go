package captions

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStripTags(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no tags unchanged", "remove the bottom cover", "remove the bottom cover"},
		{"timing tags", "next<00:00:01.520><c> unscrew</c><00:00:02.040><c> the</c>", "next unscrew the"},
		{"unterminated kept", "a < b", "a < b"},
		{"nested open", "x <b <c> y", "x  y"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripTags(tt.input); got != tt.want {
				t.Errorf("StripTags(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTiming(t *testing.T) {
	tests := []struct {
		line   string
		start  time.Duration
		wantOK bool
	}{
		{"00:00:01.000 --> 00:00:03.500", time.Second, true},
		{"00:01:00.250 --> 00:01:02.000 align:start position:0%", time.Minute + 250*time.Millisecond, true},
		{"00:00:01.000 -> 00:00:03.500", 0, false},
		{"00:00:01.000 --> 00:00:03.500x", 0, false},
		{"hello world", 0, false},
		{"00:00:01.000", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			start, _, ok := ParseTiming(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ParseTiming ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && start != tt.start {
				t.Errorf("ParseTiming start = %v, want %v", start, tt.start)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	lines := []string{
		"",
		"intro before timing\n",
		"00:00:01.000 --> 00:00:03.000 align:start position:0%\n",
		"first we remove<00:00:01.500><c> the</c><00:00:02.000><c> screws</c>\n",
		"   \n",
		"00:00:03.000 --> 00:00:03.010 align:start position:0%\n",
		"first we remove the screws\n",
		"00:00:03.010 --> 00:00:06.000 align:start position:0%\n",
		"first we remove the screws\n",
		"then lift the cover\r\n",
	}

	cues := Normalize(lines)
	if len(cues) != 3 {
		t.Fatalf("Normalize() returned %d cues, want 3: %+v", len(cues), cues)
	}

	if cues[0].Text != "intro before timing" || cues[0].Start != nil {
		t.Errorf("cue 0 = %q start=%v, want unset start", cues[0].Text, cues[0].Start)
	}
	if cues[1].Text != "first we remove the screws" {
		t.Errorf("cue 1 text = %q", cues[1].Text)
	}
	if cues[1].Start == nil || *cues[1].Start != time.Second {
		t.Errorf("cue 1 start = %v, want 1s", cues[1].Start)
	}
	if cues[2].Text != "then lift the cover" {
		t.Errorf("cue 2 text = %q", cues[2].Text)
	}
	if cues[2].Start == nil || *cues[2].Start != 3010*time.Millisecond {
		t.Errorf("cue 2 start = %v, want 3.01s", cues[2].Start)
	}
}

func TestNormalizeCollapsesRepeats(t *testing.T) {
	lines := []string{"00:00:01.000 --> 00:00:02.000", "same", "same", "same"}
	cues := Normalize(lines)
	if len(cues) != 1 {
		t.Fatalf("three identical lines produced %d cues, want 1", len(cues))
	}
}

func TestNormalizeKeepsNonAdjacentRepeats(t *testing.T) {
	lines := []string{"a", "b", "a"}
	if cues := Normalize(lines); len(cues) != 3 {
		t.Errorf("got %d cues, want 3", len(cues))
	}
}

func TestNormalizeCuesHaveIndependentTimes(t *testing.T) {
	lines := []string{
		"00:00:01.000 --> 00:00:02.000", "one",
		"00:00:05.000 --> 00:00:06.000", "two",
	}
	cues := Normalize(lines)
	if len(cues) != 2 {
		t.Fatalf("got %d cues", len(cues))
	}
	if *cues[0].Start != time.Second || *cues[1].Start != 5*time.Second {
		t.Errorf("starts = %v, %v", *cues[0].Start, *cues[1].Start)
	}
}

func TestSplitTrack(t *testing.T) {
	track := "WEBVTT\nKind: captions\nLanguage: en\n\n00:00:01.000 --> 00:00:02.000\nhello\n"
	lines, err := SplitTrack([]byte(track))
	if err != nil {
		t.Fatalf("SplitTrack() error = %v", err)
	}
	if strings.Join(lines, "|") != "|00:00:01.000 --> 00:00:02.000|hello|" {
		t.Errorf("unexpected lines %q", lines)
	}

	malformed := []struct {
		name string
		data []byte
	}{
		{"no header", []byte("hello\nworld\nagain\n")},
		{"too short", []byte("WEBVTT")},
		{"invalid utf8", []byte("WEBVTT\n\xff\xfe\n\n")},
	}
	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SplitTrack(tt.data); !errors.Is(err, ErrMalformedTrack) {
				t.Errorf("SplitTrack() error = %v, want ErrMalformedTrack", err)
			}
		})
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "abc.en.vtt"))
	if !errors.Is(err, ErrMalformedTrack) {
		t.Errorf("ReadFile() error = %v, want ErrMalformedTrack", err)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc.en.vtt")
	track := "WEBVTT\r\nKind: captions\r\nLanguage: en\r\n\r\n00:00:00.500 --> 00:00:02.000\r\nhi\r\n"
	if err := os.WriteFile(path, []byte(track), 0o644); err != nil {
		t.Fatal(err)
	}
	lines, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	cues := Normalize(lines)
	if len(cues) != 1 || cues[0].Text != "hi" || *cues[0].Start != 500*time.Millisecond {
		t.Errorf("unexpected cues %+v", cues)
	}
}
