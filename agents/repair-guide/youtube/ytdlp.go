package youtube

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"repair-stack/internal/models"
	"repair-stack/shared/config"
)

// Runner executes an external command and returns its standard output. On a
// non-zero exit the output written so far is returned along with the error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s interrupted: %w", name, ctxErr)
		}
		return out, fmt.Errorf("%s failed: %w: %s", name, err, lastLine(stderr.String()))
	}
	return out, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// entry is the subset of a yt-dlp info document used here.
type entry struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Uploader     string   `json:"uploader"`
	Channel      string   `json:"channel"`
	Duration     float64  `json:"duration"`
	ViewCount    *int64   `json:"view_count"`
	LikeCount    *int64   `json:"like_count"`
	DislikeCount *int64   `json:"dislike_count"`
	WebpageURL   string   `json:"webpage_url"`
	Formats      []format `json:"formats"`
}

type format struct {
	FormatID string `json:"format_id"`
	Width    *int   `json:"width"`
	Height   *int   `json:"height"`
}

// candidate converts an entry, applying defaults for missing fields.
func (e entry) candidate(storyboardFormat string) models.CandidateVideo {
	channel := e.Uploader
	if channel == "" {
		channel = e.Channel
	}
	if channel == "" {
		channel = "Unknown"
	}
	url := e.WebpageURL
	if url == "" {
		url = WatchURL(e.ID)
	}
	return models.CandidateVideo{
		ID:           e.ID,
		Title:        e.Title,
		Description:  e.Description,
		Channel:      channel,
		Duration:     time.Duration(math.Round(e.Duration)) * time.Second,
		ViewCount:    count(e.ViewCount),
		LikeCount:    count(e.LikeCount),
		DislikeCount: count(e.DislikeCount),
		URL:          url,
		Storyboard:   e.storyboard(storyboardFormat),
	}
}

func (e entry) storyboard(formatID string) models.StoryboardFormat {
	sb := models.StoryboardFormat{FormatID: formatID}
	for _, f := range e.Formats {
		if f.FormatID != formatID {
			continue
		}
		if f.Width != nil {
			sb.Width = *f.Width
		}
		if f.Height != nil {
			sb.Height = *f.Height
		}
	}
	return sb
}

func count(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// YtDLPCatalog searches YouTube through yt-dlp's ytsearch extractor.
type YtDLPCatalog struct {
	path             string
	storyboardFormat string
	runner           Runner
	logger           *slog.Logger
}

func NewYtDLPCatalog(path, storyboardFormat string, logger *slog.Logger) *YtDLPCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &YtDLPCatalog{path: path, storyboardFormat: storyboardFormat, runner: execRunner{}, logger: logger}
}

func (c *YtDLPCatalog) Search(ctx context.Context, query string, n int) ([]models.CandidateVideo, error) {
	if n <= 0 {
		n = 10
	}
	out, err := c.runner.Run(ctx, c.path,
		"--dump-json",
		"--skip-download",
		"--no-warnings",
		"--ignore-errors",
		fmt.Sprintf("ytsearch%d:%s", n, query))
	// yt-dlp exits non-zero when any single hit fails, even with --ignore-errors.
	runErr := err

	var videos []models.CandidateVideo
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 1<<20), 64<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			c.logger.Warn("skipping unreadable catalog entry", "error", err)
			continue
		}
		if e.ID == "" {
			continue
		}
		videos = append(videos, e.candidate(c.storyboardFormat))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read yt-dlp output: %w", err)
	}
	if runErr != nil {
		if len(videos) == 0 {
			return nil, runErr
		}
		c.logger.Warn("yt-dlp reported errors, keeping parsed results", "query", query, "results", len(videos), "error", runErr)
	}

	c.logger.Info("catalog search finished", "backend", "ytdlp", "query", query, "results", len(videos))
	return videos, nil
}

// Downloader fetches captions and the storyboard archive with yt-dlp.
type Downloader struct {
	path     string
	format   string
	language string
	runner   Runner
	logger   *slog.Logger
}

func NewDownloader(path string, cfg config.DownloadConfig, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		path:     path,
		format:   cfg.StoryboardFormat,
		language: cfg.SubtitleLanguage,
		runner:   execRunner{},
		logger:   logger,
	}
}

// Download writes {id}.{lang}.vtt, {id}.mhtml and {id}.info.json into dir.
func (d *Downloader) Download(ctx context.Context, video models.CandidateVideo, dir string) (models.VideoArtifacts, error) {
	base := filepath.Join(dir, video.ID)
	url := video.URL
	if url == "" {
		url = WatchURL(video.ID)
	}

	_, err := d.runner.Run(ctx, d.path,
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"-f", d.format,
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", d.language,
		"--sub-format", "vtt",
		"--write-info-json",
		"-o", "subtitle:"+base,
		"-o", "infojson:"+base,
		"-o", base+".mhtml",
		url)
	if err != nil {
		return models.VideoArtifacts{}, err
	}

	artifacts := models.VideoArtifacts{
		CaptionPath:    base + "." + d.language + ".vtt",
		StoryboardPath: base + ".mhtml",
		Storyboard:     video.Storyboard,
	}
	if artifacts.Storyboard.Width == 0 || artifacts.Storyboard.Height == 0 {
		sb, err := readStoryboardFormat(base+".info.json", d.format)
		if err != nil {
			d.logger.Warn("storyboard size unavailable", "video_id", video.ID, "error", err)
		} else {
			artifacts.Storyboard = sb
		}
	}
	return artifacts, nil
}

func readStoryboardFormat(path, formatID string) (models.StoryboardFormat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.StoryboardFormat{}, err
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return models.StoryboardFormat{}, fmt.Errorf("failed to decode info json: %w", err)
	}
	sb := e.storyboard(formatID)
	if sb.Width == 0 || sb.Height == 0 {
		return sb, errors.New("format " + strconv.Quote(formatID) + " has no frame size")
	}
	return sb, nil
}
