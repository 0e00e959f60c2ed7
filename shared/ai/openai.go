package ai

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI generates through any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI builds a client against baseURL, or the public API when empty.
func NewOpenAI(apiKey, baseURL, model string, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, logger: logger}
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	seed := req.Options.Seed
	// A zero temperature is dropped by omitempty and the service default applies.
	temperature := float32(req.Options.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	chat := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: temperature,
		TopP:        float32(req.Options.TopP),
		Seed:        &seed,
	}
	if len(req.Stop) > 0 {
		// The chat API accepts at most four stop sequences.
		stop := req.Stop
		if len(stop) > 4 {
			stop = stop[:4]
		}
		chat.Stop = stop
	}
	if req.Options.RepeatPenalty > 1 {
		chat.FrequencyPenalty = float32(req.Options.RepeatPenalty - 1)
	}
	if req.JSON {
		chat.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		o.logger.Warn("openai returned no choices", "model", o.model)
		return "", nil
	}

	text := resp.Choices[0].Message.Content
	o.logger.Debug("openai generate finished", "model", o.model, "elapsed", elapsed(start), "chars", len(text))
	return text, nil
}
