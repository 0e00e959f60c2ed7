// Package storage persists search result sets and indexes them by query.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"repair-stack/internal/models"
)

// Artifact is the on-disk form of a search result set.
type Artifact struct {
	RequestID     string          `json:"request_id"`
	Query         string          `json:"query"`
	DeviceContext string          `json:"device_context"`
	CreatedAt     time.Time       `json:"created_at"`
	Videos        []VideoArtifact `json:"videos"`
}

type VideoArtifact struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Channel     string          `json:"channel"`
	Duration    int64           `json:"duration"`
	Views       int64           `json:"views"`
	URL         string          `json:"url"`
	Timeline    []TimelineEntry `json:"timeline"`
	Provenance  string          `json:"provenance"`
}

// TimelineEntry holds caption text or, for images, the frame path relative to
// the results directory. Time is in seconds and absent for untimed text.
type TimelineEntry struct {
	Type string   `json:"type"`
	Data string   `json:"data"`
	Time *float64 `json:"time,omitempty"`
}

// ArtifactStore writes one JSON artifact per request under
// {dir}/subtitles and the referenced frames under {dir}/frames.
type ArtifactStore struct {
	dir   string
	index *ArtifactIndex
}

func NewArtifactStore(dir string, index *ArtifactIndex) *ArtifactStore {
	return &ArtifactStore{dir: dir, index: index}
}

// Save writes frames and the artifact, then records it in the index. It
// returns the artifact path. If the artifact cannot be written, the frames
// of the request are removed again.
func (s *ArtifactStore) Save(set *models.SearchResultSet) (path string, err error) {
	defer func() {
		if err != nil && path == "" {
			os.RemoveAll(filepath.Join(s.dir, "frames", set.RequestID))
		}
	}()

	artifact := Artifact{
		RequestID:     set.RequestID,
		Query:         set.Query,
		DeviceContext: set.DeviceContext,
		CreatedAt:     set.CreatedAt,
		Videos:        make([]VideoArtifact, 0, len(set.Videos)),
	}

	for _, rec := range set.Videos {
		va, err := s.writeVideo(set.RequestID, rec)
		if err != nil {
			return "", err
		}
		artifact.Videos = append(artifact.Videos, va)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode artifact: %w", err)
	}

	subtitles := filepath.Join(s.dir, "subtitles")
	if err := os.MkdirAll(subtitles, 0755); err != nil {
		return "", fmt.Errorf("failed to create subtitles directory: %w", err)
	}
	target := filepath.Join(subtitles, fmt.Sprintf("%s_%s.json", Slug(set.Query), set.RequestID))
	if err := writeFileAtomic(target, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	if s.index != nil {
		err := s.index.Record(IndexEntry{
			Query:     set.Query,
			RequestID: set.RequestID,
			Path:      target,
			Videos:    len(set.Videos),
			CreatedAt: set.CreatedAt,
		})
		if err != nil {
			return target, fmt.Errorf("failed to index artifact: %w", err)
		}
	}
	return target, nil
}

func (s *ArtifactStore) writeVideo(requestID string, rec *models.VideoRecord) (VideoArtifact, error) {
	v := rec.Video
	va := VideoArtifact{
		ID:          v.ID,
		Title:       v.Title,
		Description: v.Description,
		Channel:     v.Channel,
		Duration:    int64(v.Duration / time.Second),
		Views:       v.ViewCount,
		URL:         v.URL,
		Timeline:    make([]TimelineEntry, 0, len(rec.Timeline)),
		Provenance:  rec.Provenance,
	}

	frameDir := filepath.Join("frames", requestID, v.ID)
	frameNo := 0
	for _, ev := range rec.Timeline {
		entry := TimelineEntry{Type: string(ev.Kind)}
		if t, ok := ev.Time(); ok {
			secs := t.Seconds()
			entry.Time = &secs
		}

		switch ev.Kind {
		case models.EventText:
			entry.Data = ev.Cue.Text
		case models.EventImage:
			if frameNo == 0 {
				if err := os.MkdirAll(filepath.Join(s.dir, frameDir), 0755); err != nil {
					return VideoArtifact{}, fmt.Errorf("failed to create frame directory: %w", err)
				}
			}
			rel := filepath.Join(frameDir, fmt.Sprintf("%03d.png", frameNo))
			if err := os.WriteFile(filepath.Join(s.dir, rel), ev.Frame.Image, 0644); err != nil {
				return VideoArtifact{}, fmt.Errorf("failed to write frame %s: %w", rel, err)
			}
			entry.Data = filepath.ToSlash(rel)
			frameNo++
		default:
			continue
		}
		va.Timeline = append(va.Timeline, entry)
	}
	return va, nil
}

// Slug turns a query into a file name fragment: lower-case letters and
// digits with runs of anything else collapsed to "_".
func Slug(query string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(query) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	s := b.String()
	if r := []rune(s); len(r) > 80 {
		s = strings.TrimRight(string(r[:80]), "_")
	}
	if s == "" {
		return "query"
	}
	return s
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
