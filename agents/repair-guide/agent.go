// Package repairguide turns a device-repair query into time-ordered records
// of subtitle text and storyboard frames for the most relevant videos.
package repairguide

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"repair-stack/agents/repair-guide/youtube"
	"repair-stack/internal/models"
	"repair-stack/shared/ai"
	"repair-stack/shared/config"
	"repair-stack/shared/devices"
	"repair-stack/shared/email"
	"repair-stack/shared/logging"
	"repair-stack/shared/storage"

	"github.com/google/uuid"
)

type Catalog interface {
	Search(ctx context.Context, query string, count int) ([]models.CandidateVideo, error)
}

// Downloader fetches the caption track and storyboard archive of one video
// into dir.
type Downloader interface {
	Download(ctx context.Context, video models.CandidateVideo, dir string) (models.VideoArtifacts, error)
}

type Ranker interface {
	Rank(ctx context.Context, candidates []models.CandidateVideo, deviceContext string, k int) ([]string, error)
}

// DeviceLookup resolves a free-text query to a canonical device name. An
// empty result means no match.
type DeviceLookup interface {
	Lookup(ctx context.Context, query string) (string, error)
}

// ResultStore persists a finished result set and returns where it went.
type ResultStore interface {
	Save(set *models.SearchResultSet) (string, error)
}

type Freshness interface {
	IsFresh(query string) bool
}

// Notifier delivers the digest of a watch pass.
type Notifier interface {
	SendDigest(d *email.Digest) error
}

// Agent runs the repair-guide pipeline. It implements scheduler.Agent.
type Agent struct {
	config     *config.Config
	logger     *slog.Logger
	catalog    Catalog
	downloader Downloader
	ranker     Ranker
	devices    DeviceLookup
	store      ResultStore
	index      Freshness
	notifier   Notifier

	closers []func() error
}

func NewAgent(cfg *config.Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Agent{config: cfg, logger: logger.With("component", "repair-guide")}
}

func (a *Agent) Name() string {
	return "Repair Guide"
}

// Initialize builds every collaborator that has not been set yet.
func (a *Agent) Initialize() error {
	a.logger.Info("initializing", "agent", a.Name())
	cfg := a.config

	if a.catalog == nil {
		catalog, err := youtube.NewCatalog(context.Background(), cfg, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create catalog: %w", err)
		}
		a.catalog = catalog
		a.logger.Info("catalog initialized", "backend", cfg.Catalog.Backend)
	}

	if a.downloader == nil {
		a.downloader = youtube.NewDownloader(cfg.Catalog.YtDLPPath, cfg.Download, a.logger)
	}

	if a.ranker == nil {
		reasoner, err := ai.New(context.Background(), cfg.Reasoner, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create reasoner: %w", err)
		}
		template, err := LoadPromptTemplate(cfg.Reasoner.PromptTemplate)
		if err != nil {
			return &config.ConfigurationError{Field: "reasoner.prompt_template", Reason: "cannot be read", Err: err}
		}
		a.ranker = NewReranker(reasoner, template, cfg.Reasoner.Timeout(), a.logger)
		a.logger.Info("re-ranker initialized", "backend", cfg.Reasoner.Backend, "model", cfg.Reasoner.Model)
	}

	if a.devices == nil && cfg.Devices.DatabasePath != "" {
		db, err := devices.Open(cfg.Devices.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open device database: %w", err)
		}
		a.devices = db
		a.closers = append(a.closers, db.Close)
		a.logger.Info("device lookup initialized", "path", cfg.Devices.DatabasePath)
	}

	if a.store == nil || a.index == nil {
		index, err := storage.NewArtifactIndex(cfg.Output.ResultsDir, cfg.Watch.RefreshAfter())
		if err != nil {
			return fmt.Errorf("failed to open artifact index: %w", err)
		}
		if a.index == nil {
			a.index = index
		}
		if a.store == nil {
			a.store = storage.NewArtifactStore(cfg.Output.ResultsDir, index)
		}
		a.logger.Info("artifact store initialized", "dir", cfg.Output.ResultsDir, "indexed", index.Count())
	}

	if a.notifier == nil && cfg.Watch.Email.Enabled() {
		a.notifier = email.NewSender(cfg.Watch.Email)
		a.logger.Info("watch digest enabled", "to", cfg.Watch.Email.ToEmail)
	}

	return nil
}

// Close releases resources opened by Initialize.
func (a *Agent) Close() error {
	var errs []error
	for _, closeFn := range a.closers {
		errs = append(errs, closeFn())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// GetSubtitles runs one search and reports only the boundary status and the
// assembled records.
func (a *Agent) GetSubtitles(ctx context.Context, query string) (Status, []*models.VideoRecord) {
	set, err := a.Search(ctx, query)
	if err != nil {
		a.logger.Error("search failed", "query", query, "reason", Describe(err), "error", err)
		return StatusFor(err), nil
	}
	return StatusOK, set.Videos
}

// Search runs the full pipeline for one query and persists the result set.
func (a *Agent) Search(ctx context.Context, query string) (*models.SearchResultSet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &EmptyResultError{Reason: "empty query"}
	}

	requestID := uuid.NewString()
	logger := a.logger.With("request_id", requestID)
	start := time.Now()

	logger.Info("search started", "query", query)

	candidates, err := a.searchCatalog(ctx, query)
	if err != nil {
		return nil, err
	}

	admitted := FilterAdmitted(candidates, a.config.Thresholds())
	logger.Info("admission finished", "candidates", len(candidates), "admitted", len(admitted))
	if len(admitted) == 0 {
		return nil, &EmptyResultError{Reason: "no candidate passed admission"}
	}
	for _, v := range admitted {
		if !HasRepairKeyword(v.Title) {
			logger.Debug("admitted title has no repair keyword", "video_id", v.ID, "title", v.Title)
		}
	}

	deviceContext := a.deviceContext(ctx, query, logger)
	logger.Info("ranking candidates", "device", deviceContext)
	chosen, err := a.ranker.Rank(ctx, admitted, deviceContext, a.config.Selection.MaxVideos)
	if err != nil {
		return nil, err
	}
	if len(chosen) == 0 {
		return nil, &EmptyResultError{Reason: "re-ranker selected no videos"}
	}

	records, err := a.collect(ctx, admitted, chosen, requestID, logger)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &EmptyResultError{Reason: "no selected video had usable captions and storyboard"}
	}

	set := assemble(requestID, query, deviceContext, records, time.Now())
	path, err := a.store.Save(set)
	if err != nil {
		return nil, fmt.Errorf("failed to persist results: %w", err)
	}

	logger.Info("search finished",
		"videos", len(records),
		"artifact", path,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return set, nil
}

func (a *Agent) deviceContext(ctx context.Context, query string, logger *slog.Logger) string {
	if a.devices == nil {
		return query
	}
	name, err := a.devices.Lookup(ctx, query)
	if err != nil {
		logger.Warn("device lookup failed, using raw query", "error", err)
		return query
	}
	if name == "" {
		return query
	}
	return name
}

func (a *Agent) searchCatalog(ctx context.Context, query string) ([]models.CandidateVideo, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.Catalog.Timeout())
	defer cancel()

	videos, err := a.catalog.Search(ctx, query, a.config.Catalog.SearchResults)
	if err != nil {
		return nil, &ExternalServiceError{Service: "catalog", Err: err}
	}
	return videos, nil
}

// collect downloads and decodes the chosen videos in ranking order inside a
// workspace that is removed before returning.
func (a *Agent) collect(ctx context.Context, admitted []models.CandidateVideo, chosen []string, requestID string, logger *slog.Logger) ([]*models.VideoRecord, error) {
	workspace, err := os.MkdirTemp("", "repair-guide-"+requestID+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			logger.Warn("failed to remove workspace", "dir", workspace, "error", err)
		}
	}()

	byID := make(map[string]models.CandidateVideo, len(admitted))
	for _, v := range admitted {
		byID[v.ID] = v
	}

	var records []*models.VideoRecord
	for i, id := range chosen {
		video := byID[id]
		vlog := logger.With("video_id", id)
		vlog.Info("processing video", "position", i+1, "of", len(chosen), "title", video.Title)

		record, err := a.processVideo(ctx, video, workspace, vlog)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("search interrupted: %w", ctx.Err())
			}
			vlog.Warn("dropping video", "error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
