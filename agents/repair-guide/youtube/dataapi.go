package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"repair-stack/internal/models"
	"repair-stack/shared/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// DataAPICatalog searches through the YouTube Data API v3. Storyboard sizes
// are not part of the API and are resolved by the downloader.
type DataAPICatalog struct {
	service          *youtube.Service
	storyboardFormat string
	logger           *slog.Logger
}

// NewDataAPICatalog authenticates with the API key when one is configured and
// otherwise with the cached OAuth token. interactive allows the device flow.
func NewDataAPICatalog(ctx context.Context, cfg config.YouTubeConfig, storyboardFormat string, interactive bool, logger *slog.Logger, opts ...option.ClientOption) (*DataAPICatalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// An API key is enough for public search; OAuth is only needed without one
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		// Create OAuth2 config for the device authorization flow
		oauthConfig := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{youtube.YoutubeReadonlyScope},
			Endpoint:     google.Endpoint,
		}
		// Get OAuth2 token
		token, err := getToken(ctx, oauthConfig, cfg.TokenFile, interactive, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to get OAuth token: %w", err)
		}
		// Create token source that auto-refreshes and saves token
		ts := &tokenSaver{config: oauthConfig, token: token, tokenFile: cfg.TokenFile, logger: logger}
		opts = append(opts, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
	}

	// Create YouTube service
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return &DataAPICatalog{service: service, storyboardFormat: storyboardFormat, logger: logger}, nil
}

func (c *DataAPICatalog) Search(ctx context.Context, query string, n int) ([]models.CandidateVideo, error) {
	if n <= 0 {
		n = 10
	}
	if n > 50 {
		n = 50
	}

	// Step 1: Search for matching video ids
	searchResponse, err := c.service.Search.List([]string{"id"}).
		Q(query).
		Type("video").
		MaxResults(int64(n)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search failed: %w", err)
	}

	var ids []string
	for _, item := range searchResponse.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// Step 2: Get duration and statistics, which search.list does not return
	videosResponse, err := c.service.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
		Id(strings.Join(ids, ",")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube video details failed: %w", err)
	}

	byID := make(map[string]*youtube.Video, len(videosResponse.Items))
	for _, item := range videosResponse.Items {
		byID[item.Id] = item
	}

	// Keep search relevance order.
	videos := make([]models.CandidateVideo, 0, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			continue
		}
		videos = append(videos, c.candidate(item))
	}

	c.logger.Info("catalog search finished", "backend", "youtube", "query", query, "results", len(videos))
	return videos, nil
}

func (c *DataAPICatalog) candidate(item *youtube.Video) models.CandidateVideo {
	v := models.CandidateVideo{
		ID:         item.Id,
		Channel:    "Unknown",
		URL:        WatchURL(item.Id),
		Storyboard: models.StoryboardFormat{FormatID: c.storyboardFormat},
	}
	if s := item.Snippet; s != nil {
		v.Title = s.Title
		v.Description = s.Description
		if s.ChannelTitle != "" {
			v.Channel = s.ChannelTitle
		}
	}
	if cd := item.ContentDetails; cd != nil {
		v.Duration = parseDuration(cd.Duration)
	}
	if st := item.Statistics; st != nil {
		v.ViewCount = clampUint(st.ViewCount)
		v.LikeCount = clampUint(st.LikeCount)
		v.DislikeCount = clampUint(st.DislikeCount)
	}
	return v
}

func clampUint(v uint64) int64 {
	if v > 1<<62 {
		return 1 << 62
	}
	return int64(v)
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseDuration reads ISO 8601 durations such as "PT1M30S" or "P1DT2H".
// Unreadable values are zero.
func parseDuration(duration string) time.Duration {
	matches := isoDuration.FindStringSubmatch(duration)
	if matches == nil {
		return 0
	}

	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, unit := range units {
		if matches[i+1] == "" {
			continue
		}
		if n, err := strconv.Atoi(matches[i+1]); err == nil {
			total += time.Duration(n) * unit
		}
	}
	return total
}
