package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

func newTestClient(t *testing.T, cfg Config, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.BaseURL = server.URL
	client, err := New(cfg)
	require.NoError(t, err)
	return client
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	client, err := New(Config{APIKey: "sk-ant-test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", client.Name())
	assert.Equal(t, DefaultModel, client.DefaultModel())
	assert.False(t, client.oauth)

	client, err = New(Config{OAuthToken: "oauth-token"})
	require.NoError(t, err)
	assert.True(t, client.oauth)
}

func TestGenerate(t *testing.T) {
	var captured messagesRequest
	var headers http.Header

	client := newTestClient(t, Config{APIKey: "sk-ant-test"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("request-id", "req_01")
		_, _ = io.WriteString(w, `{
			"id": "msg_01",
			"model": "claude-3-5-sonnet-20241022",
			"content": [{"type": "text", "text": "part one "}, {"type": "text", "text": "part two"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 8}
		}`)
	})

	result, err := client.Generate(context.Background(), types.GenerationRequest{
		Prompt:       "plan it",
		SystemPrompt: "you are a planner",
	})
	require.NoError(t, err)

	assert.Equal(t, "part one part two", result.Text)
	assert.Equal(t, "req_01", result.RequestID)
	assert.Equal(t, types.Usage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28}, result.Usage)

	assert.Equal(t, "sk-ant-test", headers.Get("x-api-key"))
	assert.Equal(t, APIVersion, headers.Get("anthropic-version"))
	assert.Empty(t, headers.Get("Authorization"))
	assert.Equal(t, defaultMaxTokens, captured.MaxTokens)
	assert.Equal(t, "you are a planner", captured.System)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestGenerate_OAuth(t *testing.T) {
	var headers http.Header
	client := newTestClient(t, Config{OAuthToken: "oauth-abc"}, func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		_, _ = io.WriteString(w, `{"id":"m","content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`)
	})

	maxTokens := 256
	_, err := client.Generate(context.Background(), types.GenerationRequest{Prompt: "hi", MaxTokens: &maxTokens})
	require.NoError(t, err)

	assert.Equal(t, "Bearer oauth-abc", headers.Get("Authorization"))
	assert.Equal(t, oauthBeta, headers.Get("anthropic-beta"))
	assert.Empty(t, headers.Get("x-api-key"))
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		headers  map[string]string
		wantType types.ErrorType
		after    int
	}{
		{"RateLimited", http.StatusTooManyRequests, map[string]string{"retry-after": "12"}, types.ErrTypeRateLimit, 12},
		{"Forbidden", http.StatusForbidden, nil, types.ErrTypeAuthentication, 0},
		{"Overloaded", 529, nil, types.ErrTypeServerError, 0},
		{"GatewayTimeout", http.StatusGatewayTimeout, nil, types.ErrTypeTimeout, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, Config{APIKey: "k"}, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"type":"error","error":{"type":"some_error","message":"nope"}}`)
			})

			_, err := client.Generate(context.Background(), types.GenerationRequest{Prompt: "hi"})
			var gerr *types.GenerationError
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, tt.wantType, gerr.Type)
			assert.Equal(t, tt.after, gerr.RetryAfter)
			assert.Contains(t, gerr.Message, "nope")
		})
	}
}

func TestGenerate_EmptyContent(t *testing.T) {
	client := newTestClient(t, Config{APIKey: "k"}, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"m","content":[],"usage":{}}`)
	})

	_, err := client.Generate(context.Background(), types.GenerationRequest{Prompt: "hi"})
	var gerr *types.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, types.ErrTypeServerError, gerr.Type)
}

func writeEvent(w io.Writer, event, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func TestGenerateStream(t *testing.T) {
	client := newTestClient(t, Config{APIKey: "k"}, func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "message_start", `{"type":"message_start","message":{"model":"claude-3-5-haiku","usage":{"input_tokens":9,"output_tokens":1}}}`)
		writeEvent(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		writeEvent(w, "ping", `{"type":"ping"}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi "}}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"there"}}`)
		writeEvent(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		writeEvent(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":4}}`)
		writeEvent(w, "message_stop", `{"type":"message_stop"}`)
	})

	stream, err := client.GenerateStream(context.Background(), types.GenerationRequest{Prompt: "hi"})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	var text string
	var final types.Chunk
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		text += chunk.Content
		final = chunk
	}

	assert.Equal(t, "Hi there", text)
	assert.True(t, final.Done)
	assert.Equal(t, "claude-3-5-haiku", final.Model)
	require.NotNil(t, final.Usage)
	assert.Equal(t, types.Usage{PromptTokens: 9, CompletionTokens: 4, TotalTokens: 13}, *final.Usage)
}

func TestGenerateStream_ErrorEvent(t *testing.T) {
	client := newTestClient(t, Config{APIKey: "k"}, func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, "message_start", `{"type":"message_start","message":{"usage":{"input_tokens":3}}}`)
		writeEvent(w, "error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	})

	stream, err := client.GenerateStream(context.Background(), types.GenerationRequest{Prompt: "hi"})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	_, err = stream.Next()
	var gerr *types.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.True(t, gerr.Retryable)
	assert.Contains(t, gerr.Message, "Overloaded")
}
