// Package ice batches locally gathered ICE candidates before they are
// signaled to the peer.
package ice

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/callbroker/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	DefaultFlushDelay = 100 * time.Millisecond
	DefaultBatchSize  = 10

	sendTimeout = 5 * time.Second
)

// SendFunc delivers one batch to peer.
type SendFunc func(ctx context.Context, peer domain.PeerID, batch []domain.IceCandidate) error

// Buffer debounces candidates and flushes them in FIFO chunks. It has its own
// lock, independent of the call gate; enqueue and flush never interleave.
type Buffer struct {
	mu      sync.Mutex
	delay   time.Duration
	size    int
	send    SendFunc
	peer    domain.PeerID
	pending []domain.IceCandidate
	timer   *time.Timer
	epoch   uint64
}

func NewBuffer(delay time.Duration, size int, send SendFunc) *Buffer {
	if delay <= 0 {
		delay = DefaultFlushDelay
	}
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Buffer{delay: delay, size: size, send: send}
}

// Epoch names the current generation of the buffer. Clear retires it.
func (b *Buffer) Epoch() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epoch
}

// Enqueue appends c for peer and arms the flush timer if it is idle. It
// reports false and drops c when epoch was retired by Clear. Candidates
// still pending for a different peer are stale and dropped.
func (b *Buffer) Enqueue(epoch uint64, peer domain.PeerID, c domain.IceCandidate) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if epoch != b.epoch {
		log.Debug().Str("module", "ice").Str("peer", string(peer)).Uint64("epoch", epoch).Msg("dropping candidate of cleared buffer")
		return false
	}
	if b.peer != peer {
		if len(b.pending) > 0 {
			log.Warn().Str("module", "ice").Str("peer", string(b.peer)).Int("dropped", len(b.pending)).Msg("dropping candidates of previous peer")
		}
		b.pending = nil
		b.peer = peer
	}
	b.pending = append(b.pending, c)
	if b.timer == nil {
		b.arm()
	}
	return true
}

func (b *Buffer) arm() {
	epoch := b.epoch
	b.timer = time.AfterFunc(b.delay, func() { b.flushEpoch(epoch) })
}

// Flush sends one chunk now instead of waiting for the timer.
func (b *Buffer) Flush() {
	b.mu.Lock()
	epoch := b.epoch
	b.mu.Unlock()
	b.flushEpoch(epoch)
}

func (b *Buffer) flushEpoch(epoch uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if epoch != b.epoch {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.pending) == 0 {
		return
	}
	n := min(b.size, len(b.pending))
	batch := make([]domain.IceCandidate, n)
	copy(batch, b.pending[:n])
	b.pending = b.pending[n:]

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	err := b.send(ctx, b.peer, batch)
	cancel()
	if err != nil {
		log.Error().Err(err).Str("module", "ice").Str("peer", string(b.peer)).Int("batch", n).Msg("candidate batch send failed")
	} else {
		log.Debug().Str("module", "ice").Str("peer", string(b.peer)).Int("batch", n).Int("remaining", len(b.pending)).Msg("candidate batch sent")
	}
	if len(b.pending) > 0 {
		b.arm()
	}
}

// Clear discards unflushed candidates. A timer that already fired for the
// previous contents becomes a no-op.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.epoch++
	b.pending = nil
	b.peer = ""
}

func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
