package models

import "time"

// SubtitleCue is a single caption line. Start is nil when the line came
// before any cue-timing line in the track.
type SubtitleCue struct {
	Start *time.Duration
	Text  string
}

type StoryboardFrame struct {
	Start  time.Duration
	End    time.Duration
	Sprite int
	Index  int
	Image  []byte // PNG
}

type EventKind string

const (
	EventText  EventKind = "text"
	EventImage EventKind = "image"
)

// TimelineEvent holds exactly one of Cue or Frame, selected by Kind.
type TimelineEvent struct {
	Kind  EventKind
	Cue   *SubtitleCue
	Frame *StoryboardFrame
}

func TextEvent(cue SubtitleCue) TimelineEvent {
	return TimelineEvent{Kind: EventText, Cue: &cue}
}

func ImageEvent(frame StoryboardFrame) TimelineEvent {
	return TimelineEvent{Kind: EventImage, Frame: &frame}
}

// Time returns the position of the event on the shared axis. The boolean is
// false for text cues without a timestamp.
func (e TimelineEvent) Time() (time.Duration, bool) {
	switch e.Kind {
	case EventText:
		if e.Cue == nil || e.Cue.Start == nil {
			return 0, false
		}
		return *e.Cue.Start, true
	case EventImage:
		if e.Frame == nil {
			return 0, false
		}
		return e.Frame.Start, true
	}
	return 0, false
}
