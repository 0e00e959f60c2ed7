package repairguide

import (
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	"repair-stack/internal/models"
)

func cueAt(sec float64, text string) models.SubtitleCue {
	d := time.Duration(sec * float64(time.Second))
	return models.SubtitleCue{Start: &d, Text: text}
}

func frameAt(sec float64, index int) models.StoryboardFrame {
	d := time.Duration(sec * float64(time.Second))
	return models.StoryboardFrame{Start: d, End: d + time.Second, Index: index}
}

func TestMergeTimeline(t *testing.T) {
	cues := []models.SubtitleCue{
		{Text: "intro"},
		cueAt(0.5, "a"),
		cueAt(2, "b"),
		cueAt(2, "c"),
		cueAt(9, "d"),
	}
	frames := []models.StoryboardFrame{frameAt(0, 0), frameAt(1, 1), frameAt(2, 2), frameAt(3, 3)}

	got := MergeTimeline(cues, frames)
	if len(got) != len(cues)+len(frames) {
		t.Fatalf("MergeTimeline() returned %d events, want %d", len(got), len(cues)+len(frames))
	}

	var order []string
	for _, ev := range got {
		if ev.Kind == models.EventText {
			order = append(order, ev.Cue.Text)
		} else {
			order = append(order, string(rune('0'+ev.Frame.Index)))
		}
	}
	want := []string{"intro", "0", "a", "1", "2", "b", "c", "3", "d"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	last := time.Duration(-1)
	for i, ev := range got {
		ts, ok := ev.Time()
		if !ok {
			continue
		}
		if ts < last {
			t.Errorf("event %d at %v precedes previous %v", i, ts, last)
		}
		last = ts
	}
}

func TestMergeTimelineFramesWinTies(t *testing.T) {
	got := MergeTimeline([]models.SubtitleCue{cueAt(4, "same time")}, []models.StoryboardFrame{frameAt(4, 7)})
	if got[0].Kind != models.EventImage || got[1].Kind != models.EventText {
		t.Errorf("tie order = %s, %s; want image, text", got[0].Kind, got[1].Kind)
	}
}

func TestMergeTimelineEmptyInputs(t *testing.T) {
	if got := MergeTimeline(nil, nil); len(got) != 0 {
		t.Errorf("MergeTimeline(nil, nil) = %v", got)
	}
	if got := MergeTimeline([]models.SubtitleCue{cueAt(1, "x")}, nil); len(got) != 1 || got[0].Kind != models.EventText {
		t.Errorf("cues only = %+v", got)
	}
	if got := MergeTimeline(nil, []models.StoryboardFrame{frameAt(1, 0), frameAt(2, 1)}); len(got) != 2 || got[1].Frame.Index != 1 {
		t.Errorf("frames only = %+v", got)
	}
}

func TestMergeTimelineStable(t *testing.T) {
	cues := []models.SubtitleCue{cueAt(1, "first"), cueAt(1, "second"), cueAt(1, "third")}
	frames := []models.StoryboardFrame{frameAt(5, 0), frameAt(5, 1)}
	got := MergeTimeline(cues, frames)

	var texts []string
	var idx []int
	for _, ev := range got {
		if ev.Kind == models.EventText {
			texts = append(texts, ev.Cue.Text)
		} else {
			idx = append(idx, ev.Frame.Index)
		}
	}
	if len(texts) != 3 || texts[0] != "first" || texts[1] != "second" || texts[2] != "third" {
		t.Errorf("cue order = %v", texts)
	}
	if len(idx) != 2 || idx[0] != 0 || idx[1] != 1 {
		t.Errorf("frame order = %v", idx)
	}
}

func TestMergeTimelineRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 200; round++ {
		m, n := rng.IntN(12), rng.IntN(12)
		untimed := 0
		if m > 0 {
			untimed = rng.IntN(2)
		}

		cueTimes := make([]int, m-untimed)
		for i := range cueTimes {
			cueTimes[i] = rng.IntN(8)
		}
		sort.Ints(cueTimes)
		frameTimes := make([]int, n)
		for i := range frameTimes {
			frameTimes[i] = rng.IntN(8)
		}
		sort.Ints(frameTimes)

		var cues []models.SubtitleCue
		for i := 0; i < untimed; i++ {
			cues = append(cues, models.SubtitleCue{Text: "untimed"})
		}
		for _, sec := range cueTimes {
			cues = append(cues, cueAt(float64(sec), "cue"))
		}
		frames := make([]models.StoryboardFrame, n)
		for i, sec := range frameTimes {
			frames[i] = frameAt(float64(sec), i)
		}
		// Sequence numbers let per-source order be checked after the merge.
		for i := range cues {
			cues[i].Text += string(rune('a' + i))
		}

		got := MergeTimeline(cues, frames)
		if len(got) != m+n {
			t.Fatalf("round %d: %d events, want %d", round, len(got), m+n)
		}

		nextCue, nextFrame := 0, 0
		var prev time.Duration
		prevTimed, prevText := false, false
		for i, ev := range got {
			ts, timed := ev.Time()
			if prevTimed && timed && ts < prev {
				t.Fatalf("round %d: event %d at %v after %v", round, i, ts, prev)
			}
			if prevTimed && !timed {
				t.Fatalf("round %d: untimed event %d after a timed one", round, i)
			}
			switch ev.Kind {
			case models.EventText:
				if ev.Cue.Text != cues[nextCue].Text {
					t.Fatalf("round %d: cue %q out of order, want %q", round, ev.Cue.Text, cues[nextCue].Text)
				}
				nextCue++
			case models.EventImage:
				if ev.Frame.Index != nextFrame {
					t.Fatalf("round %d: frame %d out of order, want %d", round, ev.Frame.Index, nextFrame)
				}
				if prevText && prevTimed && ts == prev {
					t.Fatalf("round %d: text before image at identical time %v", round, ts)
				}
				nextFrame++
			}
			if timed {
				prev, prevTimed = ts, true
			}
			prevText = ev.Kind == models.EventText
		}
	}
}
