package server

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

// DefaultStreamInterval paces the preview stream at roughly 15 FPS.
const DefaultStreamInterval = 66 * time.Millisecond

// PreviewSource provides the JPEG encoding of the latest processed frame,
// or nil when there is none yet.
type PreviewSource interface {
	Preview() []byte
}

// StreamHandler serves the preview frames as MJPEG.
type StreamHandler struct {
	source   PreviewSource
	interval time.Duration
}

// NewStreamHandler creates a StreamHandler polling source every interval.
func NewStreamHandler(source PreviewSource, interval time.Duration) *StreamHandler {
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	return &StreamHandler{source: source, interval: interval}
}

// ServeHTTP streams MJPEG frames until the client goes away. A frame is
// only written when the preview changed.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []byte
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		jpeg := h.source.Preview()
		if len(jpeg) == 0 || bytes.Equal(jpeg, last) {
			continue
		}
		last = jpeg

		if err := writePart(w, jpeg); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\r\n")
	return err
}
