package types

import (
	"context"
	"time"
)

// GenerationRequest is one prompt sent to one provider/model.
// Requests are passed by value and never mutated after dispatch.
type GenerationRequest struct {
	Provider     string            `json:"provider"`
	Model        string            `json:"model"`
	Prompt       string            `json:"prompt"`
	SystemPrompt string            `json:"systemPrompt,omitempty"`
	Temperature  *float64          `json:"temperature,omitempty"`
	MaxTokens    *int              `json:"maxTokens,omitempty"`
	Stream       bool              `json:"stream,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// MetadataRequestID is the request metadata key a caller may set to
// correlate its own id with the provider's logs.
const MetadataRequestID = "request_id"

// WithProvider returns a copy of the request addressed to another provider/model
func (r GenerationRequest) WithProvider(provider, model string) GenerationRequest {
	r.Provider = provider
	r.Model = model
	return r
}

// Usage reports token consumption and the cost derived from it
type Usage struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	TotalTokens      int     `json:"totalTokens"`
	Cost             float64 `json:"cost"`
}

// Add accumulates another usage record into u
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.Cost += other.Cost
}

// ResponseMetadata describes how a response was produced
type ResponseMetadata struct {
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	LatencyMs    int64     `json:"latencyMs"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"requestId"`
	FallbackFrom string    `json:"fallbackFrom,omitempty"`
	Queued       bool      `json:"queued,omitempty"`
}

// GenerationResponse is the uniform result envelope of a dispatch.
// Data is the raw text produced by the provider.
type GenerationResponse struct {
	Success  bool             `json:"success"`
	Data     string           `json:"data,omitempty"`
	Error    *GenerationError `json:"error,omitempty"`
	Usage    Usage            `json:"usage"`
	Metadata ResponseMetadata `json:"metadata"`
}

// ProviderResult is what a provider client returns for a successful call.
// Cost is filled in by the dispatcher.
type ProviderResult struct {
	Text      string
	Model     string
	RequestID string
	Usage     Usage
}

// ProviderClient is the capability every provider adapter implements
type ProviderClient interface {
	// Name returns the provider name used in requests and configuration
	Name() string

	// DefaultModel is used when this provider serves as a fallback
	DefaultModel() string

	// Generate performs a single non-streaming completion
	Generate(ctx context.Context, req GenerationRequest) (*ProviderResult, error)
}

// StreamingClient is implemented by providers that can stream completions
type StreamingClient interface {
	GenerateStream(ctx context.Context, req GenerationRequest) (ChunkStream, error)
}

// Chunk is one increment of a streamed completion
type Chunk struct {
	Content  string `json:"content"`
	Done     bool   `json:"done"`
	Usage    *Usage `json:"usage,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// ChunkStream yields chunks until Next returns io.EOF.
// A stream is finite and cannot be restarted.
type ChunkStream interface {
	Next() (Chunk, error)
	Close() error
}
