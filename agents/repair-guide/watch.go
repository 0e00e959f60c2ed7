package repairguide

import (
	"context"
	"fmt"
	"time"

	"repair-stack/internal/models"
	"repair-stack/shared/email"
	"repair-stack/shared/scheduler"
)

// WatchMetrics summarises one scheduled pass over the configured queries.
type WatchMetrics struct {
	Queries   int
	Fresh     int
	Refreshed int
	Failed    int
	Videos    int
}

func (m WatchMetrics) GetSummary() string {
	return fmt.Sprintf("processed %d queries, refreshed %d (%d videos), %d still fresh, %d failed",
		m.Queries, m.Refreshed, m.Videos, m.Fresh, m.Failed)
}

// RunOnce refreshes every configured watch query whose last artifact is older
// than the refresh window.
func (a *Agent) RunOnce(ctx context.Context, events *scheduler.AgentEvents) error {
	start := time.Now()
	queries := a.config.Watch.Queries
	metrics := WatchMetrics{Queries: len(queries)}
	digest := &email.Digest{Date: start}

	var lastErr error
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if a.index != nil && a.index.IsFresh(q) {
			metrics.Fresh++
			a.logger.Debug("query still fresh, skipping", "query", q)
			continue
		}

		set, err := a.Search(ctx, q)
		if err != nil {
			metrics.Failed++
			lastErr = err
			a.logger.Warn("watch query failed", "query", q, "reason", Describe(err), "error", err)
			continue
		}
		metrics.Refreshed++
		metrics.Videos += len(set.Videos)
		digest.Entries = append(digest.Entries, digestEntry(set))
	}

	digest.Fresh, digest.Failed = metrics.Fresh, metrics.Failed
	if a.notifier != nil && len(digest.Entries) > 0 {
		if err := a.notifier.SendDigest(digest); err != nil {
			a.logger.Warn("failed to send watch digest", "error", err)
		}
	}

	duration := time.Since(start)
	attempted := metrics.Refreshed + metrics.Failed
	if attempted > 0 && metrics.Failed == attempted {
		return fmt.Errorf("all %d watch queries failed: %w", metrics.Failed, lastErr)
	}
	if metrics.Failed > 0 && events != nil && events.OnPartialFailure != nil {
		events.OnPartialFailure(fmt.Errorf("%d of %d watch queries failed: %w", metrics.Failed, attempted, lastErr), duration)
	}
	if events != nil && events.OnSuccess != nil {
		events.OnSuccess(metrics, duration)
	}
	return nil
}

func digestEntry(set *models.SearchResultSet) email.DigestEntry {
	entry := email.DigestEntry{Query: set.Query, RequestID: set.RequestID}
	if set.DeviceContext != set.Query {
		entry.Device = set.DeviceContext
	}
	for _, rec := range set.Videos {
		entry.Videos = append(entry.Videos, email.DigestVideo{
			Title:   rec.Video.Title,
			Channel: rec.Video.Channel,
			URL:     rec.Video.URL,
			Events:  len(rec.Timeline),
		})
	}
	return entry
}
