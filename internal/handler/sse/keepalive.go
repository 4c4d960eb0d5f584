package sse

import (
	"log/slog"
	"sync"
	"time"
)

// Pinger writes a keep-alive comment line. frame.Writer implements it.
type Pinger interface {
	WriteKeepAlive() error
}

// KeepAlive pings a stream on a fixed interval until stopped or until a
// write fails (the client went away).
type KeepAlive struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartKeepAlive begins pinging p every interval.
func StartKeepAlive(p Pinger, interval time.Duration, logger *slog.Logger) *KeepAlive {
	k := &KeepAlive{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(k.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := p.WriteKeepAlive(); err != nil {
					logger.Debug("keep-alive stopped", "error", err)
					return
				}
			case <-k.stop:
				return
			}
		}
	}()

	return k
}

// Done closes when the ping loop has exited.
func (k *KeepAlive) Done() <-chan struct{} {
	return k.done
}

// Stop ends the ping loop and waits for it, so no ping is written after
// Stop returns. Safe to call more than once.
func (k *KeepAlive) Stop() {
	k.stopOnce.Do(func() { close(k.stop) })
	<-k.done
}
