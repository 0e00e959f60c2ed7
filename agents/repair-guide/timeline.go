package repairguide

import "repair-stack/internal/models"

// MergeTimeline interleaves time-ordered cues and frames into one sequence.
// A cue goes first only when it is strictly earlier than the next frame, so
// frames win exact ties. Cues without a timestamp sort before every frame.
func MergeTimeline(cues []models.SubtitleCue, frames []models.StoryboardFrame) []models.TimelineEvent {
	out := make([]models.TimelineEvent, 0, len(cues)+len(frames))
	i, j := 0, 0
	for i < len(cues) || j < len(frames) {
		if i < len(cues) && (j == len(frames) || cueBefore(cues[i], frames[j])) {
			out = append(out, models.TextEvent(cues[i]))
			i++
			continue
		}
		out = append(out, models.ImageEvent(frames[j]))
		j++
	}
	return out
}

func cueBefore(cue models.SubtitleCue, frame models.StoryboardFrame) bool {
	if cue.Start == nil {
		return true
	}
	return *cue.Start < frame.Start
}
