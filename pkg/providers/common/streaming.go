package common

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// ParseFunc turns one SSE data payload into a chunk. done reports that the
// payload ends the stream; skip reports a payload carrying nothing useful.
type ParseFunc func(data string) (chunk types.Chunk, done bool, skip bool, err error)

// SSEStream reads Server-Sent Events from a response body and yields chunks.
// Both "data: x" and "data:x" forms are accepted; the OpenAI "[DONE]"
// sentinel ends the stream.
type SSEStream struct {
	ctx      context.Context
	response *http.Response
	reader   *bufio.Reader
	parse    ParseFunc
	done     bool
	mutex    sync.Mutex
}

// NewSSEStream creates a stream over response using parse for payloads.
func NewSSEStream(ctx context.Context, response *http.Response, parse ParseFunc) *SSEStream {
	return &SSEStream{
		ctx:      ctx,
		response: response,
		reader:   bufio.NewReader(response.Body),
		parse:    parse,
	}
}

// Next implements types.ChunkStream
func (s *SSEStream) Next() (types.Chunk, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.done {
		return types.Chunk{}, io.EOF
	}

	for {
		if err := s.ctx.Err(); err != nil {
			s.done = true
			return types.Chunk{}, err
		}

		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.done = true
			if err == io.EOF {
				return types.Chunk{}, io.EOF
			}
			return types.Chunk{}, err
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			if err == io.EOF {
				s.done = true
				return types.Chunk{}, io.EOF
			}
			continue // event names, comments, blank separators
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return types.Chunk{}, io.EOF
		}

		chunk, finished, skip, perr := s.parse(data)
		if perr != nil {
			s.done = true
			return types.Chunk{}, perr
		}
		if finished {
			chunk.Done = true
			s.done = true
			return chunk, nil
		}
		if skip {
			continue
		}
		return chunk, nil
	}
}

// Close closes the stream and cleans up resources
func (s *SSEStream) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.done = true
	if s.response != nil && s.response.Body != nil {
		return s.response.Body.Close()
	}
	return nil
}
