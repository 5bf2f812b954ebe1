// Package testutil provides shared testing utilities, mocks, and fixtures.
package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// GenerateFunc computes a mock provider's reply.
type GenerateFunc func(ctx context.Context, req types.GenerationRequest) (*types.ProviderResult, error)

// MockClient is a types.ProviderClient with configurable behavior and call
// tracking. Behaviour is resolved in order: a queued scripted reply, the
// handler, the configured error, then the default text.
type MockClient struct {
	mu sync.Mutex

	name         string
	defaultModel string

	text    string
	usage   types.Usage
	err     error
	handler GenerateFunc
	script  []scripted

	chunks    []types.Chunk
	streamErr error

	calls    []types.GenerationRequest
	streamed int
}

type scripted struct {
	result *types.ProviderResult
	err    error
}

// NewMockClient creates a mock that answers "ok" with a small usage record.
func NewMockClient(name string) *MockClient {
	return &MockClient{
		name:         name,
		defaultModel: name + "-default",
		text:         "ok",
		usage:        types.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

// Name implements types.ProviderClient
func (m *MockClient) Name() string { return m.name }

// DefaultModel implements types.ProviderClient
func (m *MockClient) DefaultModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultModel
}

// SetDefaultModel changes the model reported as default
func (m *MockClient) SetDefaultModel(model string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultModel = model
	return m
}

// SetText configures the default reply text
func (m *MockClient) SetText(text string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	return m
}

// SetUsage configures the usage reported on every reply
func (m *MockClient) SetUsage(u types.Usage) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = u
	return m
}

// SetError makes every call fail with err (nil clears it)
func (m *MockClient) SetError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// SetHandler installs a function computing replies
func (m *MockClient) SetHandler(fn GenerateFunc) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
	return m
}

// QueueText scripts the next reply
func (m *MockClient) QueueText(text string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{result: &types.ProviderResult{Text: text, Usage: m.usage}})
	return m
}

// QueueError scripts the next failure
func (m *MockClient) QueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{err: err})
	return m
}

// SetStream configures the chunks returned by GenerateStream. When err is
// set, the stream fails with it after the chunks.
func (m *MockClient) SetStream(chunks []types.Chunk, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = chunks
	m.streamErr = err
	return m
}

// Generate implements types.ProviderClient
func (m *MockClient) Generate(ctx context.Context, req types.GenerationRequest) (*types.ProviderResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		m.mu.Unlock()
		if next.err != nil {
			return nil, next.err
		}
		r := *next.result
		if r.Model == "" {
			r.Model = req.Model
		}
		return &r, nil
	}
	handler, err, text, usage := m.handler, m.err, m.text, m.usage
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return &types.ProviderResult{Text: text, Model: req.Model, Usage: usage}, nil
}

// CallCount returns the number of Generate calls
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of every request received
func (m *MockClient) Calls() []types.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.GenerationRequest(nil), m.calls...)
}

// StreamCount returns the number of GenerateStream calls
func (m *MockClient) StreamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamed
}

// MockStreamingClient adds streaming support to MockClient.
type MockStreamingClient struct {
	*MockClient
}

// NewMockStreamingClient creates a mock implementing types.StreamingClient.
func NewMockStreamingClient(name string) *MockStreamingClient {
	return &MockStreamingClient{MockClient: NewMockClient(name)}
}

// GenerateStream implements types.StreamingClient
func (m *MockStreamingClient) GenerateStream(ctx context.Context, req types.GenerationRequest) (types.ChunkStream, error) {
	m.mu.Lock()
	m.streamed++
	err, chunks, streamErr := m.err, m.chunks, m.streamErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return NewChunkStream(chunks, streamErr), nil
}

// ChunkStream replays a fixed list of chunks.
type ChunkStream struct {
	mu     sync.Mutex
	chunks []types.Chunk
	err    error
	index  int
	closed bool
}

// NewChunkStream creates a stream yielding chunks, then err or io.EOF.
func NewChunkStream(chunks []types.Chunk, err error) *ChunkStream {
	return &ChunkStream{chunks: chunks, err: err}
}

// Next implements types.ChunkStream
func (s *ChunkStream) Next() (types.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.Chunk{}, io.EOF
	}
	if s.index < len(s.chunks) {
		c := s.chunks[s.index]
		s.index++
		return c, nil
	}
	if s.err != nil {
		return types.Chunk{}, s.err
	}
	return types.Chunk{}, io.EOF
}

// Close implements types.ChunkStream
func (s *ChunkStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called
func (s *ChunkStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
