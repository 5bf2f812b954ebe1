// Package openai provides a client for the OpenAI chat completions API and
// any endpoint that speaks the same protocol.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	internalhttp "github.com/desenyon/infiniteidea-sub000/internal/http"
	"github.com/desenyon/infiniteidea-sub000/pkg/providers/common"
	"github.com/desenyon/infiniteidea-sub000/pkg/ratelimit"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

const (
	// DefaultBaseURL is the public OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is used when neither the config nor the request names one.
	DefaultModel = "gpt-4o-mini"
)

// Config configures a Client.
type Config struct {
	// Name registers the client under a different provider id, for
	// OpenAI-compatible gateways. Defaults to "openai".
	Name              string
	APIKey            string
	BaseURL           string
	DefaultModel      string
	RequestsPerMinute int
	HTTP              internalhttp.ClientConfig
}

// Client calls /chat/completions. It implements types.ProviderClient and
// types.StreamingClient.
type Client struct {
	name         string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	limiter      *rate.Limiter
	now          func() time.Time
}

// Request/response wire types

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u chatUsage) toUsage() types.Usage {
	return types.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

// New creates a client. The API key is sent as a bearer token.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}

	base := internalhttp.NewClient(cfg.HTTP)
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(ctx, source)
	httpClient.Timeout = base.Timeout

	return &Client{
		name:         cfg.Name,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		defaultModel: cfg.DefaultModel,
		httpClient:   httpClient,
		limiter:      common.NewClientLimiter(cfg.RequestsPerMinute),
		now:          time.Now,
	}, nil
}

// Name returns the provider id.
func (c *Client) Name() string { return c.name }

// DefaultModel returns the model used when a request names none.
func (c *Client) DefaultModel() string { return c.defaultModel }

// Generate performs a non-streaming chat completion.
func (c *Client) Generate(ctx context.Context, req types.GenerationRequest) (*types.ProviderResult, error) {
	body := c.buildRequest(req, false)

	resp, err := c.do(ctx, req, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	hint := ratelimit.ParseOpenAIHeaders(resp.Header, c.now())
	if resp.StatusCode != http.StatusOK {
		return nil, common.ResponseError(c.name, resp, hint, c.now())
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.NewServerError(c.name, resp.StatusCode, "failed to decode response").WithCause(err)
	}
	if len(parsed.Choices) == 0 {
		return nil, types.NewServerError(c.name, resp.StatusCode, "no choices in response")
	}

	requestID := hint.RequestID
	if requestID == "" {
		requestID = parsed.ID
	}
	model := parsed.Model
	if model == "" {
		model = body.Model
	}

	return &types.ProviderResult{
		Text:      parsed.Choices[0].Message.Content,
		Model:     model,
		RequestID: requestID,
		Usage:     parsed.Usage.toUsage(),
	}, nil
}

// GenerateStream performs a streaming chat completion. The final chunk
// carries usage because the request asks for include_usage.
func (c *Client) GenerateStream(ctx context.Context, req types.GenerationRequest) (types.ChunkStream, error) {
	body := c.buildRequest(req, true)

	resp, err := c.do(ctx, req, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		hint := ratelimit.ParseOpenAIHeaders(resp.Header, c.now())
		return nil, common.ResponseError(c.name, resp, hint, c.now())
	}

	return common.NewSSEStream(ctx, resp, c.parseChunk(body.Model)), nil
}

func (c *Client) buildRequest(req types.GenerationRequest, stream bool) chatRequest {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	out := chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if stream {
		out.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return out
}

func (c *Client) do(ctx context.Context, req types.GenerationRequest, body chatRequest) (*http.Response, error) {
	if err := common.WaitForSlot(ctx, c.name, c.limiter); err != nil {
		return nil, err
	}

	httpReq, err := internalhttp.NewJSONRequest(ctx, http.MethodPost, c.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, types.NewInvalidRequestError(c.name, err.Error()).WithCause(err)
	}
	httpReq.Header.Set("X-Client-Request-Id", clientRequestID(req))
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, common.TransportError(c.name, err)
	}
	return resp, nil
}

func (c *Client) parseChunk(model string) common.ParseFunc {
	return func(data string) (types.Chunk, bool, bool, error) {
		var sc streamChunk
		if err := json.Unmarshal([]byte(data), &sc); err != nil {
			return types.Chunk{}, false, false, types.NewServerError(c.name, 0, "malformed stream event").WithCause(err)
		}
		if sc.Model != "" {
			model = sc.Model
		}

		chunk := types.Chunk{Provider: c.name, Model: model}
		if sc.Usage != nil {
			usage := sc.Usage.toUsage()
			chunk.Usage = &usage
			if len(sc.Choices) > 0 {
				chunk.Content = sc.Choices[0].Delta.Content
			}
			return chunk, true, false, nil
		}
		if len(sc.Choices) == 0 || sc.Choices[0].Delta.Content == "" {
			return chunk, false, true, nil
		}
		chunk.Content = sc.Choices[0].Delta.Content
		return chunk, false, false, nil
	}
}

// clientRequestID reuses the dispatcher's request id when present.
func clientRequestID(req types.GenerationRequest) string {
	if id := req.Metadata[types.MetadataRequestID]; id != "" {
		return id
	}
	return uuid.NewString()
}
