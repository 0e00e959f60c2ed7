package models

import (
	"fmt"
	"time"
)

// StoryboardFormat describes the sprite-sheet format offered by the catalog for a video.
type StoryboardFormat struct {
	FormatID string `json:"format_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type CandidateVideo struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Channel      string           `json:"channel"`
	Duration     time.Duration    `json:"duration"`
	ViewCount    int64            `json:"views"`
	LikeCount    int64            `json:"like_count"`
	DislikeCount int64            `json:"dislike_count"`
	URL          string           `json:"url"`
	Storyboard   StoryboardFormat `json:"storyboard"`
}

// AdmissionThresholds gate candidate videos before any LLM or download work.
type AdmissionThresholds struct {
	MinViews     int64
	MinDuration  time.Duration
	MaxDuration  time.Duration
	MinLikeRatio float64
}

// VideoArtifacts points at the per-video files fetched into a request workspace.
type VideoArtifacts struct {
	CaptionPath    string
	StoryboardPath string
	Storyboard     StoryboardFormat
}

type VideoRecord struct {
	Video      CandidateVideo
	Timeline   []TimelineEvent
	Provenance string
}

// NewVideoRecord attaches a timeline to a video together with its attribution note.
func NewVideoRecord(video CandidateVideo, timeline []TimelineEvent) *VideoRecord {
	return &VideoRecord{
		Video:      video,
		Timeline:   timeline,
		Provenance: ProvenanceNote(video),
	}
}

func ProvenanceNote(video CandidateVideo) string {
	return fmt.Sprintf("'%s' by %s on YouTube.", video.Title, video.Channel)
}

// SearchResultSet is the artifact persisted once per request.
type SearchResultSet struct {
	RequestID     string
	Query         string
	DeviceContext string
	CreatedAt     time.Time
	Videos        []*VideoRecord
}
