package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const generatePath = "/api/generate"

// Ollama talks to a local Ollama server through /api/generate.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewOllama accepts either the server root or the full generate endpoint
// (OLLAMA_URL=http://host:11434/api/generate).
func NewOllama(baseURL, model string, timeout time.Duration, logger *slog.Logger) *Ollama {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, generatePath)
	return &Ollama{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type ollamaOptions struct {
	Temperature   float64  `json:"temperature"`
	Seed          int      `json:"seed"`
	TopK          int      `json:"top_k"`
	TopP          float64  `json:"top_p"`
	MinP          float64  `json:"min_p"`
	RepeatPenalty float64  `json:"repeat_penalty"`
	Mirostat      int      `json:"mirostat"`
	Stop          []string `json:"stop,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (o *Ollama) Generate(ctx context.Context, req Request) (string, error) {
	body := ollamaRequest{
		Model:  o.model,
		Prompt: req.Prompt,
		Options: ollamaOptions{
			Temperature:   req.Options.Temperature,
			Seed:          req.Options.Seed,
			TopK:          req.Options.TopK,
			TopP:          req.Options.TopP,
			MinP:          req.Options.MinP,
			RepeatPenalty: req.Options.RepeatPenalty,
			Mirostat:      req.Options.Mirostat,
			Stop:          req.Stop,
		},
	}
	if req.JSON {
		body.Format = "json"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+generatePath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read ollama response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		o.logger.Debug("ollama error body", "status", resp.StatusCode, "body", truncateString(string(raw), 300))
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var out ollamaResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode ollama envelope: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", truncateString(out.Error, 200))
	}

	o.logger.Debug("ollama generate finished", "model", o.model, "elapsed", elapsed(start), "chars", len(out.Response))
	return out.Response, nil
}
