package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mstream "github.com/haowjy/meridian-stream-go"

	"github.com/hemantsingh443/allchat-sub000/internal/domain"
	"github.com/hemantsingh443/allchat-sub000/internal/frame"
)

// output fans each frame out to the HTTP sink and the stream's event buffer.
type output struct {
	sink   frame.Sink
	send   func(mstream.Event)
	stream *mstream.Stream
	logger *slog.Logger

	once sync.Once
}

// emit writes ev. A failing sink means the client is gone; the generation
// keeps running until its context is cancelled.
func (o *output) emit(ev frame.Event) {
	data, err := frame.Marshal(ev)
	if err != nil {
		o.logger.Error("failed to marshal frame", "error", err, "type", ev.Type())
		return
	}
	o.send(mstream.NewEvent(data).WithType(string(ev.Type())))

	if err := o.sink.Send(ev); err != nil {
		o.once.Do(func() {
			o.logger.Warn("frame write failed, client disconnected", "error", err, "type", ev.Type())
		})
	}
}

// persist runs fn and drops the buffered events once it succeeds.
func (o *output) persist(fn func() error) error {
	return o.stream.PersistAndClear(func(events []mstream.Event) error {
		return fn()
	})
}

// streams tracks running generations and who started them.
type streams struct {
	registry *mstream.Registry
	debug    bool

	mu     sync.Mutex
	owners map[string]string
}

func newStreams(registry *mstream.Registry, debug bool) *streams {
	return &streams{
		registry: registry,
		debug:    debug,
		owners:   make(map[string]string),
	}
}

// streamStartError is returned by run when work never started, so no
// frame has been written.
type streamStartError struct {
	streamID string
	err      error
}

func (e *streamStartError) Error() string {
	return fmt.Sprintf("start stream %s: %v", e.streamID, e.err)
}

func (e *streamStartError) Unwrap() []error {
	return []error{domain.ErrConflict, e.err}
}

// run executes work as a registered stream and blocks until it returns.
// Cancelling ctx cancels the stream.
func (s *streams) run(ctx context.Context, streamID, ownerID string, sink frame.Sink, logger *slog.Logger, work func(ctx context.Context, out *output) error) error {
	s.mu.Lock()
	if _, exists := s.owners[streamID]; exists {
		s.mu.Unlock()
		return &streamStartError{streamID: streamID, err: errors.New("already running")}
	}
	s.owners[streamID] = ownerID
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.owners, streamID)
		s.mu.Unlock()
	}()

	done := make(chan struct{})
	var workErr error
	out := &output{sink: sink, logger: logger}

	stream := mstream.NewStream(
		streamID,
		func(streamCtx context.Context, send func(mstream.Event)) error {
			defer close(done)
			out.send = send
			workErr = work(streamCtx, out)
			return workErr
		},
		mstream.WithEventIDs(s.debug),
	)
	out.stream = stream

	// Finished streams stay registered until the registry's retention
	// cleanup, so a reused id is rejected here rather than shadowed.
	if err := s.registry.Register(stream); err != nil {
		return &streamStartError{streamID: streamID, err: err}
	}
	stream.Start()

	select {
	case <-done:
	case <-ctx.Done():
		stream.Cancel()
		<-done
	}
	return workErr
}

// cancel stops a running stream owned by ownerID.
func (s *streams) cancel(streamID, ownerID string) (found, allowed bool) {
	s.mu.Lock()
	owner, ok := s.owners[streamID]
	s.mu.Unlock()
	if !ok {
		return false, false
	}
	if owner != ownerID {
		return true, false
	}
	stream := s.registry.Get(streamID)
	if stream == nil {
		return false, false
	}
	stream.Cancel()
	return true, true
}
