// Package genai streams artifact text from Gemini's streamGenerateContent
// endpoint.
package genai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"edugen/internal/domain"
	"edugen/internal/generation"
	"edugen/internal/infra"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash"

	// maxChunkBytes bounds one SSE data line.
	maxChunkBytes = 1 << 20
)

type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client streams text from Gemini. Without an API key it produces a
// deterministic synthetic artifact so the pipeline runs in local and CI
// environments.
type Client struct {
	apiKey   string
	endpoint string
	model    string
	http     *http.Client
	logger   *infra.Logger
}

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	CandidateCount   int    `json:"candidateCount"`
	ResponseMimeType string `json:"responseMimeType"`
}

// streamChunk is one SSE data payload.
type streamChunk struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

func (c streamChunk) text() []string {
	var out []string
	for _, cand := range c.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				out = append(out, p.Text)
			}
		}
	}
	return out
}

// NewClient applies defaults. The default HTTP client has no overall
// timeout since a stream stays open for the whole generation.
func NewClient(opts Options) (*Client, error) {
	c := &Client{
		apiKey:   strings.TrimSpace(opts.APIKey),
		endpoint: strings.TrimRight(opts.BaseURL, "/"),
		model:    opts.Model,
		http:     opts.HTTPClient,
		logger:   opts.Logger,
	}
	if c.endpoint == "" {
		c.endpoint = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.http == nil {
		c.http = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: time.Minute,
			IdleConnTimeout:       90 * time.Second,
		}}
	}
	if c.logger == nil {
		l := infra.Logger(zerolog.Nop())
		c.logger = &l
	}
	return c, nil
}

// Name identifies the backend in artifact metadata.
func (c *Client) Name() string {
	if c.apiKey == "" {
		return "gemini-synthetic"
	}
	return "gemini"
}

func (c *Client) Model() string { return c.model }

// Stream generates text for p, calling emit with each delta.
func (c *Client) Stream(ctx context.Context, p generation.Prompt, emit func(string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.apiKey == "" {
		return c.syntheticStream(ctx, p, emit)
	}
	model := p.Model
	if model == "" {
		model = c.model
	}
	log := c.logger.With().Str("model", model).Str("kind", string(p.Kind)).Logger()

	resp, err := c.open(ctx, model, newRequest(p))
	if err != nil {
		log.Warn().Err(err).Msg("genai: request failed")
		return err
	}
	defer resp.Body.Close()

	deltas := 0
	err = readChunks(ctx, resp.Body, func(chunk streamChunk) error {
		for _, text := range chunk.text() {
			deltas++
			if err := emit(text); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Int("deltas", deltas).Msg("genai: stream failed")
		return err
	}
	log.Debug().Int("deltas", deltas).Msg("genai: stream finished")
	return nil
}

func newRequest(p generation.Prompt) generateRequest {
	req := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: p.User}}}},
		GenerationConfig: generationConfig{CandidateCount: 1, ResponseMimeType: "application/json"},
	}
	if p.System != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: p.System}}}
	}
	return req
}

// open posts the request and returns the response once Gemini has accepted
// it. Non-2xx answers become provider failures carrying the API message.
func (c *Client) open(ctx context.Context, model string, payload generateRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("genai: marshal request: %w", err)
	}
	u := fmt.Sprintf("%s/models/%s:streamGenerateContent?%s", c.endpoint, url.PathEscape(model),
		url.Values{"alt": {"sse"}, "key": {c.apiKey}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("genai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("genai: sending request: %w: %w", domain.ErrProviderFailure, err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

// readChunks decodes "data:" lines until the body ends.
func readChunks(ctx context.Context, body io.Reader, fn func(streamChunk) error) error {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), maxChunkBytes)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("genai: decode chunk: %w: %w", domain.ErrProviderFailure, err)
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("genai: chunk exceeds %d bytes: %w", maxChunkBytes, domain.ErrProviderFailure)
		}
		return fmt.Errorf("genai: reading stream: %w: %w", domain.ErrProviderFailure, err)
	}
	return ctx.Err()
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	if msg == "" {
		return fmt.Errorf("genai: status %d: %w", resp.StatusCode, domain.ErrProviderFailure)
	}
	return fmt.Errorf("genai: status %d: %w: %s", resp.StatusCode, domain.ErrProviderFailure, msg)
}

var _ generation.Backend = (*Client)(nil)
