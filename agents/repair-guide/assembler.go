package repairguide

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"repair-stack/agents/repair-guide/captions"
	"repair-stack/agents/repair-guide/storyboard"
	"repair-stack/internal/models"
)

// processVideo downloads one video's artifacts into its own directory under
// workspace and merges captions and storyboard into a record.
func (a *Agent) processVideo(ctx context.Context, video models.CandidateVideo, workspace string, logger *slog.Logger) (*models.VideoRecord, error) {
	dir := filepath.Join(workspace, video.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create video directory: %w", err)
	}

	dctx, cancel := context.WithTimeout(ctx, a.config.Download.Timeout())
	defer cancel()
	artifacts, err := a.downloader.Download(dctx, video, dir)
	if err != nil {
		return nil, &ExternalServiceError{Service: "downloader", Err: err}
	}

	lines, err := captions.ReadFile(artifacts.CaptionPath)
	if err != nil {
		return nil, &FormatError{VideoID: video.ID, Err: err}
	}
	cues := captions.Normalize(lines)

	format := artifacts.Storyboard
	if format.Width == 0 || format.Height == 0 {
		format = video.Storyboard
	}
	frames, err := storyboard.DecodeFile(artifacts.StoryboardPath, format.Width, format.Height)
	if err != nil {
		if storyboard.IsFormatError(err) {
			return nil, &FormatError{VideoID: video.ID, Err: err}
		}
		return nil, err
	}

	timeline := MergeTimeline(cues, frames)
	logger.Info("video merged", "cues", len(cues), "frames", len(frames), "events", len(timeline))
	return models.NewVideoRecord(video, timeline), nil
}

func assemble(requestID, query, deviceContext string, records []*models.VideoRecord, now time.Time) *models.SearchResultSet {
	return &models.SearchResultSet{
		RequestID:     requestID,
		Query:         query,
		DeviceContext: deviceContext,
		CreatedAt:     now.UTC(),
		Videos:        records,
	}
}
