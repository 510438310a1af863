// Package sse provides Server-Sent Events utilities for streaming responses.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// doneSentinel terminates a successful stream.
const doneSentinel = "[DONE]"

// Writer wraps an http.ResponseWriter for SSE streaming.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter creates a new SSE writer and sets appropriate headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flusher interface")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteChunk sends one text chunk as an unnamed data frame.
func (w *Writer) WriteChunk(text string) error {
	return w.writeData(text)
}

// WriteDone sends the terminal sentinel frame of a successful stream.
func (w *Writer) WriteDone() error {
	return w.writeData(doneSentinel)
}

// WriteError sends a typed terminal error event. The payload carries only an
// error kind and a short message, never upstream response bodies.
func (w *Writer) WriteError(code, message string) error {
	payload := map[string]string{"code": code, "message": message}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	if _, err := fmt.Fprintf(w.w, "event: error\ndata: %s\n\n", data); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// writeData writes an unnamed event, handling multi-line content. The SSE
// format requires each line of data to carry its own "data: " prefix.
func (w *Writer) writeData(content string) error {
	for line := range strings.SplitSeq(content, "\n") {
		if _, err := fmt.Fprintf(w.w, "data: %s\n", line); err != nil {
			return fmt.Errorf("write data line: %w", err)
		}
	}

	// Empty line terminates the event
	if _, err := w.w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write terminator: %w", err)
	}

	w.flusher.Flush()
	return nil
}
