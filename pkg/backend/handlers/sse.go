package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// SSEWriter handles Server-Sent Events (SSE) writing for streaming responses
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSEWriter and sets up SSE headers
// Returns an error if the http.ResponseWriter does not support flushing
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported: ResponseWriter does not implement http.Flusher")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteChunk writes one stream chunk as an SSE data event
func (s *SSEWriter) WriteChunk(chunk types.Chunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to serialize chunk: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteDone sends the SSE completion event
func (s *SSEWriter) WriteDone() {
	_, _ = fmt.Fprintf(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}

// WriteError sends a generation failure as an SSE error event
func (s *SSEWriter) WriteError(gerr *types.GenerationError) {
	data, _ := json.Marshal(map[string]interface{}{"error": gerr})
	_, _ = fmt.Fprintf(s.w, "event: error\ndata: %s\n\n", data)
	s.flusher.Flush()
}
