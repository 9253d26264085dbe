package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/odtboun/River/internal/http/dto"
)

const (
	eventPing   = "ping"
	eventStep   = "step"
	eventClosed = "closed"
)

// stepStream writes the session event stream. Every event is flushed
// immediately; a write error means the client is gone.
type stepStream struct {
	w       io.Writer
	flusher http.Flusher
}

func newStepStream(w http.ResponseWriter) (*stepStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &stepStream{w: w, flusher: flusher}, true
}

func (s *stepStream) ping(data string) error {
	return s.send(eventPing, data)
}

func (s *stepStream) step(ev dto.StepEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding step event: %w", err)
	}
	return s.send(eventStep, string(data))
}

func (s *stepStream) closed() error {
	return s.send(eventClosed, "session closed")
}

// send writes one event. data must not contain newlines.
func (s *stepStream) send(event, data string) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
