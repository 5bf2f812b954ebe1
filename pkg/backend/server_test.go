package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desenyon/infiniteidea-sub000/internal/logging"
	"github.com/desenyon/infiniteidea-sub000/internal/testutil"
	"github.com/desenyon/infiniteidea-sub000/pkg/backend/middleware"
	"github.com/desenyon/infiniteidea-sub000/pkg/backendtypes"
	"github.com/desenyon/infiniteidea-sub000/pkg/dispatch"
	"github.com/desenyon/infiniteidea-sub000/pkg/metrics"
	"github.com/desenyon/infiniteidea-sub000/pkg/orchestrator"
	"github.com/desenyon/infiniteidea-sub000/pkg/prompts"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

func sectionHandler(ctx context.Context, req types.GenerationRequest) (*types.ProviderResult, error) {
	if fixture, ok := testutil.SectionFixtures[req.Metadata["step"]]; ok {
		return &types.ProviderResult{Text: fixture, Usage: types.Usage{PromptTokens: 100, CompletionTokens: 50}}, nil
	}
	return &types.ProviderResult{Text: "echo: " + req.Prompt}, nil
}

func newTestServer(t *testing.T, config backendtypes.ServerConfig) (*httptest.Server, *testutil.MockClient) {
	t.Helper()

	client := testutil.NewMockClient("primary").SetHandler(sectionHandler)
	registry, err := dispatch.NewRegistry(client)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	logger := logging.NewTestLogger(t)

	d, err := dispatch.New(registry, dispatch.Config{}, dispatch.WithCollector(collector), dispatch.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(d.Close)

	catalogue, err := prompts.Default()
	require.NoError(t, err)
	orch, err := orchestrator.New(d, catalogue, orchestrator.NewTableSelector(orchestrator.Selection{Provider: "primary"}),
		orchestrator.WithCollector(collector), orchestrator.WithLogger(logger))
	require.NoError(t, err)

	s, err := NewServer(config, Deps{
		Dispatcher:      d,
		Blueprints:      orch,
		DefaultProvider: "primary",
		Gatherer:        reg,
		Logger:          logger,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, client
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer(backendtypes.ServerConfig{}, Deps{})
	assert.Error(t, err)
}

func TestServer_Generate(t *testing.T) {
	ts, client := newTestServer(t, backendtypes.ServerConfig{Version: "test"})

	resp := post(t, ts.URL+"/api/generate", `{"prompt": "ping"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))

	var body struct {
		Data types.GenerationResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "echo: ping", body.Data.Data)
	assert.Equal(t, "primary", body.Data.Metadata.Provider)
	assert.Equal(t, 1, client.CallCount())
}

func TestServer_GenerateStream(t *testing.T) {
	ts, _ := newTestServer(t, backendtypes.ServerConfig{})

	resp := post(t, ts.URL+"/api/generate/stream", `{"prompt": "ping"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "echo: ping")
	assert.Contains(t, string(raw), "data: [DONE]")
}

func TestServer_UnknownProvider(t *testing.T) {
	ts, _ := newTestServer(t, backendtypes.ServerConfig{})

	resp := post(t, ts.URL+"/api/generate", `{"provider": "mystery", "prompt": "ping"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_BlueprintLifecycle(t *testing.T) {
	ts, client := newTestServer(t, backendtypes.ServerConfig{})

	resp := post(t, ts.URL+"/api/blueprints",
		`{"idea": {"originalText": "Plan dinners from the fridge", "title": "MealMind"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var generated struct {
		Data orchestrator.BlueprintGenerationResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&generated))
	require.NotNil(t, generated.Data.Blueprint)
	assert.Equal(t, 100, generated.Data.Confidence)
	assert.Equal(t, 5, generated.Data.Metadata.StepsCompleted)
	assert.Equal(t, 5, client.CallCount())

	bp, err := json.Marshal(generated.Data.Blueprint)
	require.NoError(t, err)

	resp = post(t, ts.URL+"/api/blueprints/validate", `{"blueprint": `+string(bp)+`}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var validated struct {
		Data struct {
			IsValid bool `json:"isValid"`
			Score   int  `json:"score"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&validated))
	assert.True(t, validated.Data.IsValid)
	assert.Equal(t, 100, validated.Data.Score)
	assert.Equal(t, 5, client.CallCount(), "validation makes no provider calls")
}

func TestServer_Providers(t *testing.T) {
	ts, _ := newTestServer(t, backendtypes.ServerConfig{})
	post(t, ts.URL+"/api/generate", `{"prompt": "ping"}`)

	resp, err := http.Get(ts.URL + "/api/providers")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Data backendtypes.ProvidersResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data.Providers, 1)
	assert.Equal(t, "primary", body.Data.Providers[0].Provider)
	assert.Equal(t, 1, body.Data.Providers[0].RequestCountInWindow)
}

func TestServer_Metrics(t *testing.T) {
	ts, _ := newTestServer(t, backendtypes.ServerConfig{})
	post(t, ts.URL+"/api/generate", `{"prompt": "ping"}`)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "dispatch_requests_total")
}

func TestServer_CORS(t *testing.T) {
	ts, _ := newTestServer(t, backendtypes.ServerConfig{
		CORS: backendtypes.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://app.example.com"}},
	})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/blueprints", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_Addr(t *testing.T) {
	s, err := NewServer(backendtypes.ServerConfig{Host: "127.0.0.1", Port: 9999}, Deps{
		Dispatcher: &dispatch.Dispatcher{},
		Blueprints: &orchestrator.Orchestrator{},
	})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", s.Addr())
}
