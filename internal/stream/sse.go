package stream

import (
	"fmt"
	"io"
	"net/http"
)

// SSEWriter serializes events onto an HTTP response in
// text/event-stream framing, flushing after every event.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter prepares resp for streaming and returns a writer bound to it.
func NewSSEWriter(resp http.ResponseWriter) *SSEWriter {
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache, no-transform")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	flusher, _ := resp.(http.Flusher)
	return &SSEWriter{w: resp, flusher: flusher}
}

// Send writes one event frame. Write errors usually mean the client
// disconnected; callers should stop streaming when Send fails.
func (s *SSEWriter) Send(ev Event) error {
	payload, err := ev.MarshalData()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
