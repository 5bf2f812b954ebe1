package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desenyon/infiniteidea-sub000/internal/logging"
	"github.com/desenyon/infiniteidea-sub000/internal/testutil"
	"github.com/desenyon/infiniteidea-sub000/pkg/backend/middleware"
	"github.com/desenyon/infiniteidea-sub000/pkg/backendtypes"
	"github.com/desenyon/infiniteidea-sub000/pkg/blueprint"
	"github.com/desenyon/infiniteidea-sub000/pkg/orchestrator"
	"github.com/desenyon/infiniteidea-sub000/pkg/resilience"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

type fakeDispatcher struct {
	resp      *types.GenerationResponse
	err       error
	stream    types.ChunkStream
	streamErr error
	states    []resilience.ProviderState
	queued    int

	lastReq types.GenerationRequest
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req types.GenerationRequest) (*types.GenerationResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

func (f *fakeDispatcher) DispatchStream(_ context.Context, req types.GenerationRequest) (types.ChunkStream, error) {
	f.lastReq = req
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.stream, nil
}

func (f *fakeDispatcher) Snapshot() []resilience.ProviderState { return f.states }
func (f *fakeDispatcher) QueueLen() int                        { return f.queued }

type fakeService struct {
	generated *orchestrator.BlueprintGenerationResponse
	section   *orchestrator.SectionResponse
	optimized *orchestrator.OptimizationResult
	err       error

	lastRequest  orchestrator.BlueprintGenerationRequest
	lastSection  blueprint.SectionName
	lastFeedback string
}

func (f *fakeService) GenerateBlueprint(_ context.Context, req orchestrator.BlueprintGenerationRequest) (*orchestrator.BlueprintGenerationResponse, error) {
	f.lastRequest = req
	return f.generated, f.err
}

func (f *fakeService) RegenerateSection(_ context.Context, _ *blueprint.Blueprint, section blueprint.SectionName, feedback string) (*orchestrator.SectionResponse, error) {
	f.lastSection = section
	f.lastFeedback = feedback
	return f.section, f.err
}

func (f *fakeService) OptimizeBlueprint(context.Context, *blueprint.Blueprint, blueprint.OptimizationCriteria) (*orchestrator.OptimizationResult, error) {
	return f.optimized, f.err
}

func (f *fakeService) ValidateBlueprint(bp *blueprint.Blueprint) blueprint.ValidationResult {
	return blueprint.Validate(bp)
}

func serve(h http.HandlerFunc, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(middleware.RequestIDHeader, "req-test")
	w := httptest.NewRecorder()
	middleware.RequestID(h).ServeHTTP(w, req)
	return w
}

func decodeAPIResponse(t *testing.T, w *httptest.ResponseRecorder) backendtypes.APIResponse {
	t.Helper()
	var resp backendtypes.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-test", resp.RequestID)
	return resp
}

func TestGenerate(t *testing.T) {
	d := &fakeDispatcher{resp: &types.GenerationResponse{
		Success:  true,
		Data:     "hello",
		Usage:    types.Usage{TotalTokens: 3},
		Metadata: types.ResponseMetadata{Provider: "openai", Model: "gpt-4o-mini"},
	}}
	h := NewGenerateHandler(d, "openai", logging.NewTestLogger(t))

	w := serve(h.Generate, http.MethodPost, "/api/generate", `{"prompt": "Say hello", "metadata": {"tenant": "acme"}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeAPIResponse(t, w)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "hello", data["data"])

	assert.Equal(t, "openai", d.lastReq.Provider)
	assert.False(t, d.lastReq.Stream)
	assert.Equal(t, "req-test", d.lastReq.Metadata[types.MetadataRequestID])
	assert.Equal(t, "acme", d.lastReq.Metadata["tenant"])
}

func TestGenerate_KeepsCallerProviderAndRequestID(t *testing.T) {
	d := &fakeDispatcher{resp: &types.GenerationResponse{Success: true}}
	h := NewGenerateHandler(d, "openai", nil)

	serve(h.Generate, http.MethodPost, "/api/generate",
		`{"provider": "anthropic", "prompt": "x", "metadata": {"request_id": "mine"}}`)

	assert.Equal(t, "anthropic", d.lastReq.Provider)
	assert.Equal(t, "mine", d.lastReq.Metadata[types.MetadataRequestID])
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		err        error
		wantStatus int
		wantCode   string
		retryAfter string
	}{
		{"wrong method", http.MethodGet, "", nil, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", ""},
		{"bad json", http.MethodPost, "{", nil, http.StatusBadRequest, types.CodeInvalidRequest, ""},
		{"empty prompt", http.MethodPost, `{"prompt": "  "}`, nil, http.StatusBadRequest, types.CodeInvalidRequest, ""},
		{"rate limited", http.MethodPost, `{"prompt": "x"}`, types.NewRateLimitError("openai", 12), http.StatusTooManyRequests, types.CodeRateLimited, "12"},
		{"circuit open", http.MethodPost, `{"prompt": "x"}`, types.NewCircuitOpenError("openai", 60), http.StatusServiceUnavailable, types.CodeCircuitBreakerOpen, "60"},
		{"auth", http.MethodPost, `{"prompt": "x"}`, types.NewAuthError("openai", "bad key"), http.StatusUnauthorized, types.CodeAuthenticationFailed, ""},
		{"unknown provider", http.MethodPost, `{"prompt": "x"}`, types.NewUnknownProviderError("mystery"), http.StatusNotFound, types.CodeUnknownProvider, ""},
		{"timeout", http.MethodPost, `{"prompt": "x"}`, types.NewTimeoutError("openai", "slow"), http.StatusGatewayTimeout, types.CodeTimeout, ""},
		{"server error", http.MethodPost, `{"prompt": "x"}`, types.NewServerError("openai", 500, "down"), http.StatusBadGateway, types.CodeProviderError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{err: tt.err}
			if tt.err != nil {
				d.resp = &types.GenerationResponse{}
			}
			h := NewGenerateHandler(d, "openai", nil)

			w := serve(h.Generate, tt.method, "/api/generate", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
			resp := decodeAPIResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestStream(t *testing.T) {
	stream := testutil.NewChunkStream([]types.Chunk{
		{Content: "Hel", Provider: "openai"},
		{Content: "lo", Provider: "openai"},
		{Done: true, Usage: &types.Usage{TotalTokens: 4}},
	}, nil)
	d := &fakeDispatcher{stream: stream}
	h := NewGenerateHandler(d, "openai", logging.NewTestLogger(t))

	w := serve(h.Stream, http.MethodPost, "/api/generate/stream", `{"prompt": "hi"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.True(t, d.lastReq.Stream)

	body := w.Body.String()
	assert.Contains(t, body, `data: {"content":"Hel","done":false,"provider":"openai"}`)
	assert.Contains(t, body, `"totalTokens":4`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
	assert.True(t, stream.Closed())
}

func TestStream_FailsMidway(t *testing.T) {
	stream := testutil.NewChunkStream([]types.Chunk{{Content: "partial"}},
		types.NewServerError("openai", 502, "connection reset"))
	h := NewGenerateHandler(&fakeDispatcher{stream: stream}, "openai", logging.NewTestLogger(t))

	w := serve(h.Stream, http.MethodPost, "/api/generate/stream", `{"prompt": "hi"}`)

	body := w.Body.String()
	assert.Contains(t, body, "partial")
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, types.CodeProviderError)
	assert.NotContains(t, body, "[DONE]")
}

func TestStream_RateLimitedBeforeFirstChunk(t *testing.T) {
	d := &fakeDispatcher{streamErr: types.NewRateLimitError("openai", 20)}
	h := NewGenerateHandler(d, "openai", nil)

	w := serve(h.Stream, http.MethodPost, "/api/generate/stream", `{"prompt": "hi"}`)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "20", w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		states []resilience.ProviderState
		want   string
	}{
		{"healthy", []resilience.ProviderState{{Provider: "openai"}, {Provider: "anthropic"}}, "healthy"},
		{"degraded", []resilience.ProviderState{{Provider: "openai", IsOpen: true, ConsecutiveFailures: 5}, {Provider: "anthropic"}}, "degraded"},
		{"unhealthy", []resilience.ProviderState{{Provider: "openai", IsOpen: true}}, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(&fakeDispatcher{states: tt.states}, "1.2.3")
			w := serve(h.Health, http.MethodGet, "/health", "")

			require.Equal(t, http.StatusOK, w.Code)
			var resp struct {
				Data backendtypes.HealthResponse `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Data.Status)
			assert.Equal(t, "1.2.3", resp.Data.Version)
			assert.Len(t, resp.Data.Providers, len(tt.states))
		})
	}
}

func TestStatusAndVersion(t *testing.T) {
	h := NewHealthHandler(&fakeDispatcher{}, "1.2.3")

	w := serve(h.Status, http.MethodGet, "/status", "")
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = serve(h.Version, http.MethodGet, "/version", "")
	assert.Contains(t, w.Body.String(), `"version":"1.2.3"`)
}

func TestListProviders(t *testing.T) {
	reset := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	d := &fakeDispatcher{
		states: []resilience.ProviderState{
			{Provider: "anthropic", RequestCountInWindow: 2, RequestsPerMinute: 50, WindowResetAt: reset},
			{Provider: "openai", IsOpen: true, ConsecutiveFailures: 5},
		},
		queued: 3,
	}
	h := NewProviderHandler(d)

	w := serve(h.ListProviders, http.MethodGet, "/api/providers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data backendtypes.ProvidersResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Data.QueueDepth)
	require.Len(t, resp.Data.Providers, 2)
	assert.Equal(t, 2, resp.Data.Providers[0].RequestCountInWindow)
	assert.True(t, resp.Data.Providers[1].IsOpen)

	w = serve(h.ListProviders, http.MethodPost, "/api/providers", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func blueprintBody(t *testing.T, extra string) string {
	t.Helper()
	return `{"blueprint": ` + testutil.BlueprintJSON() + extra + `}`
}

func TestBlueprintGenerate(t *testing.T) {
	svc := &fakeService{generated: &orchestrator.BlueprintGenerationResponse{Confidence: 97}}
	h := NewBlueprintHandler(svc)

	w := serve(h.Generate, http.MethodPost, "/api/blueprints",
		`{"idea": {"originalText": "Plan dinners", "title": "MealMind"}, "preferences": {"priority": "speed"}}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"confidence":97`)
	assert.Equal(t, "MealMind", svc.lastRequest.Idea.Title)
	assert.Equal(t, blueprint.PrioritySpeed, svc.lastRequest.Preferences.Priority)
}

func TestBlueprintGenerate_StepFailure(t *testing.T) {
	svc := &fakeService{err: &orchestrator.StepError{
		Step: blueprint.SectionFinancialModel,
		Err:  types.NewServerError("openai", 500, "upstream exploded"),
	}}
	h := NewBlueprintHandler(svc)

	w := serve(h.Generate, http.MethodPost, "/api/blueprints", `{"idea": {"title": "x", "originalText": "y"}}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeAPIResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "financialModel", resp.Error.Step)
	assert.Equal(t, types.CodeProviderError, resp.Error.Code)
	assert.Equal(t, "openai", resp.Error.Provider)
	assert.Nil(t, resp.Data)
}

func TestBlueprintGenerate_ParseFailureIsBadGateway(t *testing.T) {
	svc := &fakeService{err: &orchestrator.StepError{
		Step: blueprint.SectionTechStack,
		Err:  types.NewParseError("no JSON object found", nil),
	}}
	w := serve(NewBlueprintHandler(svc).Generate, http.MethodPost, "/api/blueprints", `{}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestBlueprintRegenerate(t *testing.T) {
	svc := &fakeService{section: &orchestrator.SectionResponse{
		Section: blueprint.SectionRoadmap,
		Data:    json.RawMessage(testutil.SectionFixtures["roadmap"]),
	}}
	h := NewBlueprintHandler(svc)

	w := serve(h.Regenerate, http.MethodPost, "/api/blueprints/regenerate",
		blueprintBody(t, `, "section": "roadmap", "feedback": "shorter"`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, blueprint.SectionRoadmap, svc.lastSection)
	assert.Equal(t, "shorter", svc.lastFeedback)
	assert.Contains(t, w.Body.String(), `"totalDurationWeeks":12`)
}

func TestBlueprintRegenerate_BadInput(t *testing.T) {
	h := NewBlueprintHandler(&fakeService{})

	w := serve(h.Regenerate, http.MethodPost, "/api/blueprints/regenerate", blueprintBody(t, `, "section": "marketing"`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown blueprint section")

	w = serve(h.Regenerate, http.MethodPost, "/api/blueprints/regenerate", `{"section": "roadmap"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "'blueprint' must be provided")
}

func TestBlueprintOptimize(t *testing.T) {
	svc := &fakeService{optimized: &orchestrator.OptimizationResult{Blueprint: &blueprint.Blueprint{}}}
	h := NewBlueprintHandler(svc)

	w := serve(h.Optimize, http.MethodPost, "/api/blueprints/optimize", blueprintBody(t, `, "criteria": {"focus": "cost"}`))
	assert.Equal(t, http.StatusOK, w.Code)

	svc.err = types.NewRateLimitError("anthropic", 5)
	w = serve(h.Optimize, http.MethodPost, "/api/blueprints/optimize", blueprintBody(t, ""))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestBlueprintValidate(t *testing.T) {
	h := NewBlueprintHandler(&fakeService{})

	w := serve(h.Validate, http.MethodPost, "/api/blueprints/validate", blueprintBody(t, ""))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data blueprint.ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.IsValid)
	assert.Equal(t, 100, resp.Data.Score)
}

func TestSendGenerationError_ForeignError(t *testing.T) {
	w := httptest.NewRecorder()
	SendGenerationError(w, httptest.NewRequest(http.MethodGet, "/", nil), assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
