package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/desenyon/infiniteidea-sub000/internal/logging"
	"github.com/desenyon/infiniteidea-sub000/pkg/backend/middleware"
	"github.com/desenyon/infiniteidea-sub000/pkg/backendtypes"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// Dispatcher sends raw generation requests. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req types.GenerationRequest) (*types.GenerationResponse, error)
	DispatchStream(ctx context.Context, req types.GenerationRequest) (types.ChunkStream, error)
}

// GenerateHandler handles raw generation requests
type GenerateHandler struct {
	dispatcher      Dispatcher
	defaultProvider string
	logger          logging.Logger
}

func NewGenerateHandler(d Dispatcher, defaultProvider string, logger logging.Logger) *GenerateHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GenerateHandler{dispatcher: d, defaultProvider: defaultProvider, logger: logger}
}

// Generate handles POST /api/generate
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parse(w, r, false)
	if !ok {
		return
	}

	resp, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		SendGenerationError(w, r, err)
		return
	}
	SendSuccess(w, r, resp)
}

// Stream handles POST /api/generate/stream. Failures before the first
// chunk are plain JSON errors; later ones arrive as an SSE error event.
func (h *GenerateHandler) Stream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parse(w, r, true)
	if !ok {
		return
	}

	stream, err := h.dispatcher.DispatchStream(r.Context(), req)
	if err != nil {
		SendGenerationError(w, r, err)
		return
	}
	defer stream.Close()

	sse, err := NewSSEWriter(w)
	if err != nil {
		SendError(w, r, "STREAMING_UNSUPPORTED", err.Error(), http.StatusInternalServerError)
		return
	}

	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			sse.WriteDone()
			return
		}
		if err != nil {
			h.logger.WithError(err).Warn("stream failed", logging.Fields{
				"request_id": middleware.GetRequestID(r.Context()),
				"provider":   req.Provider,
			})
			sse.WriteError(types.AsGenerationError(err, req.Provider))
			return
		}
		if err := sse.WriteChunk(chunk); err != nil {
			// client went away
			return
		}
	}
}

func (h *GenerateHandler) parse(w http.ResponseWriter, r *http.Request, stream bool) (types.GenerationRequest, bool) {
	if !requireMethod(w, r, http.MethodPost) {
		return types.GenerationRequest{}, false
	}

	var body backendtypes.GenerateRequest
	if err := ParseJSON(r, &body); err != nil {
		SendError(w, r, types.CodeInvalidRequest, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return types.GenerationRequest{}, false
	}
	if strings.TrimSpace(body.Prompt) == "" {
		SendError(w, r, types.CodeInvalidRequest, "'prompt' must be provided", http.StatusBadRequest)
		return types.GenerationRequest{}, false
	}
	if body.Provider == "" {
		body.Provider = h.defaultProvider
	}

	req := body.GenerationRequest(stream)
	if id := middleware.GetRequestID(r.Context()); id != "" {
		meta := make(map[string]string, len(req.Metadata)+1)
		for k, v := range req.Metadata {
			meta[k] = v
		}
		if _, set := meta[types.MetadataRequestID]; !set {
			meta[types.MetadataRequestID] = id
		}
		req.Metadata = meta
	}
	return req, true
}
