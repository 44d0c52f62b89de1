// Package notify delivers call events to a UI consumer.
package notify

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/rs/zerolog/log"
)

const DefaultBuffer = 64

// Stream is a core.Notifier backed by a bounded channel. Notify never
// blocks: when the consumer lags the event is dropped and counted.
type Stream struct {
	mu      sync.RWMutex
	ch      chan core.Event
	closed  bool
	dropped atomic.Uint64
}

func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{ch: make(chan core.Event, buffer)}
}

func (s *Stream) Notify(e core.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		n := s.dropped.Add(1)
		log.Warn().Str("module", "notify").Str("kind", string(e.Kind)).Uint64("dropped", n).Msg("event dropped")
	}
}

func (s *Stream) Events() <-chan core.Event { return s.ch }

func (s *Stream) Dropped() uint64 { return s.dropped.Load() }

// Close ends the stream. Later events are discarded.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Format renders e as a single human readable line.
func Format(e core.Event) string {
	var b strings.Builder
	b.WriteString(e.At.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(string(e.Kind))
	switch e.Kind {
	case core.EventStatus:
		fmt.Fprintf(&b, " state=%s", e.State)
		if e.Peer != "" {
			fmt.Fprintf(&b, " peer=%s", e.Peer)
		}
		if e.Session != nil {
			fmt.Fprintf(&b, " session=%s type=%s", e.Session.ID, e.Session.Type)
		}
	case core.EventError:
		fmt.Fprintf(&b, " state=%s err=%v", e.State, e.Err)
	case core.EventRemoteStream:
		if e.Stream != nil {
			fmt.Fprintf(&b, " kind=%s codec=%s clock=%d track=%s", e.Stream.Kind, e.Stream.Codec, e.Stream.ClockRate, e.Stream.TrackID)
		}
	case core.EventSignaling:
		fmt.Fprintf(&b, " signaling=%s", e.Signaling)
	}
	return b.String()
}
