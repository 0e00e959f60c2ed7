// Package youtube provides the video catalog and artifact downloader backed
// by yt-dlp and the YouTube Data API.
package youtube

import (
	"context"
	"fmt"
	"log/slog"

	"repair-stack/internal/models"
	"repair-stack/shared/config"
)

// Catalog is implemented by YtDLPCatalog and DataAPICatalog.
type Catalog interface {
	Search(ctx context.Context, query string, n int) ([]models.CandidateVideo, error)
}

// NewCatalog builds the configured catalog backend. The Data API backend never
// starts the interactive device flow here.
func NewCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Catalog, error) {
	switch cfg.Catalog.Backend {
	case config.CatalogYtDLP:
		return NewYtDLPCatalog(cfg.Catalog.YtDLPPath, cfg.Download.StoryboardFormat, logger), nil
	case config.CatalogYouTube:
		return NewDataAPICatalog(ctx, cfg.Catalog.YouTube, cfg.Download.StoryboardFormat, false, logger)
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}
}
