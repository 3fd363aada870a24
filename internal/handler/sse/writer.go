// Package sse writes the streamed chat response protocol: newline-delimited
// "data: <json>" frames flushed per event.
package sse

import (
	"fmt"
	"net/http"

	"parley/internal/domain/models"
)

// FrameWriter streams StreamEvents over an HTTP response. Each frame is
// flushed immediately so clients observe deltas in real time.
type FrameWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewFrameWriter prepares the response for streaming and returns the
// writer. The caller must have verified the ResponseWriter supports
// flushing.
func NewFrameWriter(w http.ResponseWriter, flusher http.Flusher) *FrameWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	return &FrameWriter{w: w, flusher: flusher}
}

// Send writes one framed event and flushes.
func (fw *FrameWriter) Send(ev models.StreamEvent) error {
	frame, err := models.FormatFrame(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(fw.w, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	fw.flusher.Flush()
	return nil
}

// Close writes the stream terminator.
func (fw *FrameWriter) Close() {
	fmt.Fprint(fw.w, models.StreamTerminator)
	fw.flusher.Flush()
}
