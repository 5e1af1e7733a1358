// Package agent wraps the chat-completion model used for summaries and
// translations.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/tubetext/tubetext-server/internal/logging"
)

var ErrEmptyResponse = errors.New("model returned no choices")

// Completer is the part of the OpenAI client the agents use.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewClient builds an OpenAI client. baseURL may point at any compatible
// endpoint; empty uses the public API.
func NewClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

// Agent sends one user message under a fixed system prompt.
type Agent struct {
	client       Completer
	model        string
	systemPrompt string
	logger       *slog.Logger
}

func New(client Completer, model, systemPrompt string, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Agent{
		client:       client,
		model:        model,
		systemPrompt: systemPrompt,
		logger:       logging.WithComponent(logger, "agent"),
	}
}

// Invoke returns the content of the model's last choice verbatim.
func (a *Agent) Invoke(ctx context.Context, message string) (string, error) {
	a.logger.Debug("invoking model", "model", a.model, "input_chars", len(message))
	return complete(ctx, a.client, a.model, a.systemPrompt, message)
}

// Translator translates text into a requested language.
type Translator struct {
	client  Completer
	model   string
	prompts Prompts
}

func NewTranslator(client Completer, model string, prompts Prompts) *Translator {
	return &Translator{client: client, model: model, prompts: prompts}
}

func (t *Translator) Translate(ctx context.Context, text, language string) (string, error) {
	return complete(ctx, t.client, t.model, t.prompts.TranslateFor(language), text)
}

func complete(ctx context.Context, client Completer, model, system, user string) (string, error) {
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: user,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[len(resp.Choices)-1].Message.Content, nil
}
