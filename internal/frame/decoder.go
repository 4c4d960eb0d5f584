package frame

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
)

// ErrTruncatedFrame is reported when input ends in the middle of a line.
var ErrTruncatedFrame = errors.New("stream ended mid-frame")

// Decoder turns arbitrary chunks of a frame stream into events. Bytes are
// buffered until a full line is available, so chunk boundaries may fall
// anywhere, including inside a multi-byte character.
type Decoder struct {
	buf    []byte
	logger *slog.Logger
}

// NewDecoder creates a Decoder. Malformed frames are logged to logger and
// skipped; a nil logger uses slog.Default().
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Feed appends p and returns every event completed by it, in order.
func (d *Decoder) Feed(p []byte) []Event {
	d.buf = append(d.buf, p...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		if ev, ok := d.decodeLine(line); ok {
			events = append(events, ev)
		}
		d.buf = d.buf[i+1:]
	}

	// Drop the consumed prefix so the backing array does not grow unbounded.
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 4*len(d.buf)+4096 {
		d.buf = append([]byte(nil), d.buf...)
	}
	return events
}

// Close reports ErrTruncatedFrame if a partial line is still buffered.
func (d *Decoder) Close() error {
	rest := bytes.TrimSpace(d.buf)
	d.buf = nil
	if len(rest) > 0 {
		return ErrTruncatedFrame
	}
	return nil
}

func (d *Decoder) decodeLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false
	}
	payload := bytes.TrimSpace(line[len("data:"):])
	if len(payload) == 0 {
		return nil, false
	}
	ev, err := Unmarshal(payload)
	if err != nil {
		d.logger.Warn("skipping malformed frame", "error", err, "bytes", len(payload))
		return nil, false
	}
	return ev, true
}

// Scanner reads events from an io.Reader.
type Scanner struct {
	r       io.Reader
	dec     *Decoder
	pending []Event
	chunk   []byte
	err     error
}

// NewScanner creates a Scanner reading r in chunks of up to 4 KiB.
func NewScanner(r io.Reader, logger *slog.Logger) *Scanner {
	return &Scanner{
		r:     r,
		dec:   NewDecoder(logger),
		chunk: make([]byte, 4096),
	}
}

// Next returns the next event. It returns io.EOF when the input ends on a
// frame boundary and ErrTruncatedFrame when it ends mid-line. Every event
// already buffered is returned before more input is read.
func (s *Scanner) Next() (Event, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		n, err := s.r.Read(s.chunk)
		if n > 0 {
			s.pending = append(s.pending, s.dec.Feed(s.chunk[:n])...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if cerr := s.dec.Close(); cerr != nil {
					err = cerr
				}
			}
			s.err = err
		}
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}
