// Package openai streams chat completions from OpenAI-compatible APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"edugen/internal/domain"
	"edugen/internal/generation"
	"edugen/internal/infra"
)

const defaultModel = "gpt-4o-mini"

// Options controls how the OpenAI client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a generation.Backend backed by the chat completions API.
type Client struct {
	api    *goopenai.Client
	model  string
	logger *infra.Logger
}

// NewClient constructs a streaming client. An API key is required.
func NewClient(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("openai: api key is required")
	}
	cfg := goopenai.DefaultConfig(key)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Client{api: goopenai.NewClientWithConfig(cfg), model: model, logger: logger}, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Model() string { return c.model }

// Stream sends p as a JSON-mode chat completion and emits content deltas.
func (c *Client) Stream(ctx context.Context, p generation.Prompt, emit func(string) error) error {
	model := p.Model
	if model == "" {
		model = c.model
	}
	var messages []goopenai.ChatCompletionMessage
	if p.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: p.System})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: p.User})

	stream, err := c.api.CreateChatCompletionStream(ctx, goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("openai: create stream: %w: %w", domain.ErrProviderFailure, err)
	}
	defer stream.Close()

	var deltas int
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("openai: receive: %w: %w", domain.ErrProviderFailure, err)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			deltas++
			if err := emit(choice.Delta.Content); err != nil {
				return err
			}
		}
	}

	c.logger.Debug().
		Str("model", model).
		Int("deltas", deltas).
		Msg("openai: stream finished")
	return nil
}

var _ generation.Backend = (*Client)(nil)
