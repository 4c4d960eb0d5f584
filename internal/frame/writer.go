package frame

import (
	"fmt"
	"io"
	"net/http"
	"sync"
)

const dataPrefix = "data: "

// ContentType is the media type of a framed response body.
const ContentType = "text/event-stream"

// Sink receives events in emission order.
type Sink interface {
	Send(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event) error

// Send calls f(ev).
func (f SinkFunc) Send(ev Event) error { return f(ev) }

// Writer encodes events onto w, one line per event, flushing after every
// write when w supports it. Safe for concurrent use so keep-alive pings can
// share the connection with the generation goroutine.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	closed  bool
}

// NewWriter creates a Writer. If w implements http.Flusher each frame is
// flushed immediately.
func NewWriter(w io.Writer) *Writer {
	fw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

// Send writes ev as a single frame. After a terminal event the writer
// refuses further frames.
func (fw *Writer) Send(ev Event) error {
	payload, err := Marshal(ev)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return fmt.Errorf("write %s after terminal frame", ev.Type())
	}
	line := make([]byte, 0, len(dataPrefix)+len(payload)+1)
	line = append(line, dataPrefix...)
	line = append(line, payload...)
	line = append(line, '\n')
	if _, err := fw.w.Write(line); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	fw.flush()
	if IsTerminal(ev) {
		fw.closed = true
	}
	return nil
}

// WriteKeepAlive writes a comment line that decoders ignore.
func (fw *Writer) WriteKeepAlive() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return nil
	}
	if _, err := io.WriteString(fw.w, ": keepalive\n"); err != nil {
		return fmt.Errorf("write keepalive failed: %w", err)
	}
	fw.flush()
	return nil
}

// Terminated reports whether a terminal frame was written.
func (fw *Writer) Terminated() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.closed
}

func (fw *Writer) flush() {
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
}
