package handler

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/hemantsingh443/allchat-sub000/internal/frame"
	"github.com/hemantsingh443/allchat-sub000/internal/handler/sse"
)

// StreamIDHeader carries the id used to interrupt a streamed response.
const StreamIDHeader = "X-Stream-ID"

// streamWriter is the frame.Sink for one streamed response. Headers are
// committed on the first frame, so errors raised before that can still be
// answered with a problem response.
type streamWriter struct {
	w      http.ResponseWriter
	config *sse.Config
	logger *slog.Logger

	mu        sync.Mutex
	fw        *frame.Writer
	keepAlive *sse.KeepAlive
}

func newStreamWriter(w http.ResponseWriter, config *sse.Config, logger *slog.Logger) *streamWriter {
	return &streamWriter{w: w, config: config, logger: logger}
}

// Send implements frame.Sink.
func (s *streamWriter) Send(ev frame.Event) error {
	return s.writer().Send(ev)
}

func (s *streamWriter) writer() *frame.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fw == nil {
		h := s.w.Header()
		h.Set("Content-Type", frame.ContentType)
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
		s.w.WriteHeader(http.StatusOK)

		s.fw = frame.NewWriter(s.w)
		s.keepAlive = sse.StartKeepAlive(s.fw, s.config.KeepAliveInterval, s.logger)
	}
	return s.fw
}

// started reports whether any frame has been written.
func (s *streamWriter) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fw != nil
}

func (s *streamWriter) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keepAlive != nil {
		s.keepAlive.Stop()
	}
}

// serveStream runs fn against a streamWriter. Errors returned before the
// first frame become a regular error response.
func serveStream(w http.ResponseWriter, streamID string, config *sse.Config, logger *slog.Logger, fn func(sink frame.Sink) error) {
	w.Header().Set(StreamIDHeader, streamID)

	sw := newStreamWriter(w, config, logger.With("stream_id", streamID))
	defer sw.close()

	if err := fn(sw); err != nil {
		if sw.started() {
			logger.Error("stream ended with error after start", "stream_id", streamID, "error", err)
			return
		}
		handleError(w, err)
	}
}
