// Package anthropic provides a client for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	internalhttp "github.com/desenyon/infiniteidea-sub000/internal/http"
	"github.com/desenyon/infiniteidea-sub000/pkg/providers/common"
	"github.com/desenyon/infiniteidea-sub000/pkg/ratelimit"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-3-5-sonnet-20241022"
	APIVersion     = "2023-06-01"

	// defaultMaxTokens is sent when the request sets none; the API requires it.
	defaultMaxTokens = 4096

	oauthBeta = "oauth-2025-04-20"
)

// Config configures a Client. Exactly one of APIKey or OAuthToken is needed.
type Config struct {
	APIKey            string
	OAuthToken        string
	BaseURL           string
	DefaultModel      string
	RequestsPerMinute int
	HTTP              internalhttp.ClientConfig
}

// Client calls /v1/messages. It implements types.ProviderClient and
// types.StreamingClient.
type Client struct {
	apiKey       string
	oauth        bool
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

// streamEvent covers the event payloads the client reads:
// message_start, content_block_delta, message_delta, message_stop, error.
type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Model string `json:"model"`
		Usage usage  `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *usage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" && cfg.OAuthToken == "" {
		return nil, fmt.Errorf("anthropic: API key or OAuth token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}

	httpClient := internalhttp.NewClient(cfg.HTTP)
	oauth := cfg.APIKey == ""
	if oauth {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		timeout := httpClient.Timeout
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.OAuthToken, TokenType: "Bearer"}))
		httpClient.Timeout = timeout
	}

	return &Client{
		apiKey:       cfg.APIKey,
		oauth:        oauth,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		defaultModel: cfg.DefaultModel,
		httpClient:   httpClient,
		limiter:      common.NewClientLimiter(cfg.RequestsPerMinute),
	}, nil
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) DefaultModel() string { return c.defaultModel }

// Generate sends a single user turn and returns the concatenated text blocks.
func (c *Client) Generate(ctx context.Context, req types.GenerationRequest) (*types.ProviderResult, error) {
	body := c.buildRequest(req, false)

	resp, err := c.do(ctx, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	hint := ratelimit.ParseAnthropicHeaders(resp.Header)
	if resp.StatusCode != http.StatusOK {
		return nil, common.ResponseError(c.Name(), resp, hint, time.Now())
	}

	var parsed messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.NewServerError(c.Name(), resp.StatusCode, "failed to decode response").WithCause(err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, types.NewServerError(c.Name(), resp.StatusCode, "no text content in response")
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
		Text:      text.String(),
		Model:     model,
		RequestID: requestID,
		Usage: types.Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}, nil
}

// GenerateStream streams text deltas. Input tokens arrive on message_start
// and output tokens on message_delta; both are reported on the final chunk.
func (c *Client) GenerateStream(ctx context.Context, req types.GenerationRequest) (types.ChunkStream, error) {
	body := c.buildRequest(req, true)

	resp, err := c.do(ctx, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, common.ResponseError(c.Name(), resp, ratelimit.ParseAnthropicHeaders(resp.Header), time.Now())
	}

	return common.NewSSEStream(ctx, resp, c.parseEvents(body.Model)), nil
}

func (c *Client) buildRequest(req types.GenerationRequest, stream bool) messagesRequest {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}
	return messagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

func (c *Client) do(ctx context.Context, body messagesRequest) (*http.Response, error) {
	if err := common.WaitForSlot(ctx, c.Name(), c.limiter); err != nil {
		return nil, err
	}

	httpReq, err := internalhttp.NewJSONRequest(ctx, http.MethodPost, c.baseURL+"/v1/messages", body)
	if err != nil {
		return nil, types.NewInvalidRequestError(c.Name(), err.Error()).WithCause(err)
	}
	httpReq.Header.Set("anthropic-version", APIVersion)
	if c.oauth {
		httpReq.Header.Set("anthropic-beta", oauthBeta)
	} else {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, common.TransportError(c.Name(), err)
	}
	return resp, nil
}

func (c *Client) parseEvents(model string) common.ParseFunc {
	var inputTokens, outputTokens int

	return func(data string) (types.Chunk, bool, bool, error) {
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return types.Chunk{}, false, false, types.NewServerError(c.Name(), 0, "malformed stream event").WithCause(err)
		}

		chunk := types.Chunk{Provider: c.Name(), Model: model}
		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				inputTokens = ev.Message.Usage.InputTokens
				if ev.Message.Model != "" {
					model = ev.Message.Model
				}
			}
			return chunk, false, true, nil
		case "content_block_delta":
			if ev.Delta == nil || ev.Delta.Text == "" {
				return chunk, false, true, nil
			}
			chunk.Content = ev.Delta.Text
			return chunk, false, false, nil
		case "message_delta":
			if ev.Usage != nil {
				outputTokens = ev.Usage.OutputTokens
			}
			return chunk, false, true, nil
		case "message_stop":
			chunk.Usage = &types.Usage{
				PromptTokens:     inputTokens,
				CompletionTokens: outputTokens,
				TotalTokens:      inputTokens + outputTokens,
			}
			return chunk, true, false, nil
		case "error":
			msg := "stream error"
			if ev.Error != nil {
				msg = common.MaskString(ev.Error.Type + ": " + ev.Error.Message)
			}
			if ev.Error != nil && ev.Error.Type == "overloaded_error" {
				return types.Chunk{}, false, false, types.NewServerError(c.Name(), 529, msg)
			}
			return types.Chunk{}, false, false, types.NewServerError(c.Name(), 0, msg)
		default:
			return chunk, false, true, nil
		}
	}
}
