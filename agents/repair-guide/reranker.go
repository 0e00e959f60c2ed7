package repairguide

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"repair-stack/internal/models"
	"repair-stack/shared/ai"
)

//go:embed prompts/rerank.txt
var defaultPrompt string

const (
	placeholderDevice = "CONTEXT_MODELS_PLACEHOLDER"
	placeholderCount  = "NUMBER_TO_CHOOSE"
	placeholderVideos = "VIDEO_LIST_PLACEHOLDER"
)

// LoadPromptTemplate returns the template stored at path, or the built-in one
// when path is empty.
func LoadPromptTemplate(path string) (string, error) {
	if path == "" {
		return defaultPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt template %s: %w", path, err)
	}
	return string(data), nil
}

// BuildPrompt fills the template with the device context, the count and one
// "id; title" line per candidate.
func BuildPrompt(template string, candidates []models.CandidateVideo, deviceContext string, k int) string {
	lines := make([]string, 0, len(candidates))
	for _, c := range candidates {
		title := strings.Join(strings.Fields(c.Title), " ")
		lines = append(lines, c.ID+"; "+title)
	}
	return strings.NewReplacer(
		placeholderDevice, deviceContext,
		placeholderCount, strconv.Itoa(k),
		placeholderVideos, strings.Join(lines, "\n"),
	).Replace(template)
}

// Reranker asks the reasoning service which candidates match the device.
type Reranker struct {
	reasoner ai.Reasoner
	template string
	timeout  time.Duration
	logger   *slog.Logger
}

func NewReranker(reasoner ai.Reasoner, template string, timeout time.Duration, logger *slog.Logger) *Reranker {
	if template == "" {
		template = defaultPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{reasoner: reasoner, template: template, timeout: timeout, logger: logger}
}

// Rank returns the chosen candidate ids in the order the model listed them.
// Ids not present in candidates and repeats are dropped. An unreadable
// response yields an empty selection and a nil error; only a failed call to
// the service is an error.
func (r *Reranker) Rank(ctx context.Context, candidates []models.CandidateVideo, deviceContext string, k int) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	prompt := BuildPrompt(r.template, candidates, deviceContext, k)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := r.reasoner.Generate(ctx, ai.Request{
		Prompt:  prompt,
		Options: ai.DefaultDecoding(),
		Stop:    ai.DefaultStop(),
		JSON:    true,
	})
	if err != nil {
		return nil, &ExternalServiceError{Service: "reasoner", Err: err}
	}

	chosen, ok := parseSelection(text, candidates)
	if !ok {
		r.logger.Warn("unreadable re-ranker response, selecting nothing", "response", truncate(text, 200))
	}
	r.logger.Info("re-ranker finished",
		"candidates", len(candidates),
		"requested", k,
		"chosen", len(chosen),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return chosen, nil
}

// parseSelection reads the "chosen" array from the first JSON object in text.
// Entries may be strings or bare numbers. The boolean is false when no usable
// array was found.
func parseSelection(text string, candidates []models.CandidateVideo) ([]string, bool) {
	obj, err := ai.ExtractJSONObject(text)
	if err != nil {
		return nil, false
	}

	var payload struct {
		Chosen []json.RawMessage `json:"chosen"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil || payload.Chosen == nil {
		return nil, false
	}

	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.ID] = true
	}

	var chosen []string
	seen := make(map[string]bool)
	for _, raw := range payload.Chosen {
		id, ok := selectionID(raw)
		if !ok || !known[id] || seen[id] {
			continue
		}
		seen[id] = true
		chosen = append(chosen, id)
	}
	return chosen, true
}

func selectionID(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
