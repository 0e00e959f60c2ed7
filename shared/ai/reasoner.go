// Package ai wraps the text-generation backends used for relevance ranking.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"repair-stack/shared/config"
)

// Reasoner is a single-shot, synchronous text completion service.
type Reasoner interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Request struct {
	Prompt  string
	Options DecodingOptions
	Stop    []string
	// JSON asks the backend to constrain output to a JSON document when it
	// supports doing so.
	JSON bool
}

// DecodingOptions are sampling parameters. Backends ignore the ones they do
// not understand.
type DecodingOptions struct {
	Temperature   float64
	Seed          int
	TopK          int
	TopP          float64
	MinP          float64
	RepeatPenalty float64
	Mirostat      int
}

// DefaultDecoding is the deterministic profile used for ranking.
func DefaultDecoding() DecodingOptions {
	return DecodingOptions{
		Temperature:   0,
		Seed:          1,
		TopK:          10,
		TopP:          0.1,
		MinP:          0,
		RepeatPenalty: 1.15,
		Mirostat:      0,
	}
}

// DefaultStop ends generation at a closing code fence or a run of blank lines.
func DefaultStop() []string {
	return []string{"```", "\n```", "\n\n\n"}
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.ReasonerConfig, logger *slog.Logger) (Reasoner, error) {
	timeout := cfg.Timeout()
	switch cfg.Backend {
	case config.ReasonerOllama:
		return NewOllama(cfg.URL, cfg.Model, timeout, logger), nil
	case config.ReasonerGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model, logger)
	case config.ReasonerOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.URL, cfg.Model, logger), nil
	default:
		return nil, fmt.Errorf("unknown reasoner backend %q", cfg.Backend)
	}
}

func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	for maxLength > 0 && !utf8.RuneStart(s[maxLength]) {
		maxLength--
	}
	return s[:maxLength] + "..."
}

func elapsed(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}
