package ice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/callbroker/internal/domain"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]domain.IceCandidate
	peers   []domain.PeerID
	err     error
}

func (r *recorder) send(_ context.Context, peer domain.PeerID, batch []domain.IceCandidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	r.peers = append(r.peers, peer)
	return r.err
}

func (r *recorder) sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.batches))
	for i, b := range r.batches {
		out[i] = len(b)
	}
	return out
}

func (r *recorder) flat() []domain.IceCandidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.IceCandidate
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func candidates(n int) []domain.IceCandidate {
	out := make([]domain.IceCandidate, n)
	for i := range out {
		out[i] = domain.IceCandidate{Candidate: fmt.Sprintf("candidate:%d 1 udp 2122260223 10.0.0.1 %d typ host", i, 50000+i), SDPMid: "0"}
	}
	return out
}

func TestFifteenCandidatesFlushAsTenThenFive(t *testing.T) {
	rec := &recorder{}
	b := NewBuffer(50*time.Millisecond, 0, rec.send)

	in := candidates(15)
	for _, c := range in {
		b.Enqueue(b.Epoch(), "P1", c)
	}

	require.Eventually(t, func() bool { return len(rec.sizes()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{10, 5}, rec.sizes())
	assert.Equal(t, in, rec.flat())
	assert.Equal(t, []domain.PeerID{"P1", "P1"}, rec.peers)
	assert.Zero(t, b.Pending())
}

func TestConcurrentEnqueueKeepsOrderAndChunkBound(t *testing.T) {
	rec := &recorder{}
	b := NewBuffer(2*time.Millisecond, 10, rec.send)

	in := candidates(137)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i, c := range in {
			b.Enqueue(b.Epoch(), "P1", c)
			if i%7 == 0 {
				time.Sleep(time.Millisecond)
			}
		}
	}()
	wg.Wait()

	require.Eventually(t, func() bool { return len(rec.flat()) == len(in) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, in, rec.flat())
	for _, n := range rec.sizes() {
		assert.LessOrEqual(t, n, 10)
	}
}

func TestClearDiscardsPending(t *testing.T) {
	rec := &recorder{}
	b := NewBuffer(20*time.Millisecond, 10, rec.send)

	for _, c := range candidates(4) {
		b.Enqueue(b.Epoch(), "P1", c)
	}
	b.Clear()
	assert.Zero(t, b.Pending())

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.sizes())
}

func TestRetiredEpochIsRejected(t *testing.T) {
	rec := &recorder{}
	b := NewBuffer(5*time.Millisecond, 10, rec.send)

	epoch := b.Epoch()
	require.True(t, b.Enqueue(epoch, "P1", candidates(1)[0]))
	b.Clear()
	assert.NotEqual(t, epoch, b.Epoch())

	assert.False(t, b.Enqueue(epoch, "P1", candidates(2)[1]))
	assert.Zero(t, b.Pending())
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.sizes())

	assert.True(t, b.Enqueue(b.Epoch(), "P2", candidates(1)[0]))
	require.Eventually(t, func() bool { return len(rec.sizes()) == 1 }, time.Second, 2*time.Millisecond)
}

func TestFlushSendsImmediately(t *testing.T) {
	rec := &recorder{}
	b := NewBuffer(time.Hour, 10, rec.send)

	for _, c := range candidates(3) {
		b.Enqueue(b.Epoch(), "P1", c)
	}
	b.Flush()
	assert.Equal(t, []int{3}, rec.sizes())
	b.Clear()
}

func TestPeerChangeDropsStaleCandidates(t *testing.T) {
	rec := &recorder{}
	b := NewBuffer(time.Hour, 10, rec.send)

	old := candidates(2)
	b.Enqueue(b.Epoch(), "P1", old[0])
	b.Enqueue(b.Epoch(), "P2", old[1])
	b.Flush()

	require.Len(t, rec.batches, 1)
	assert.Equal(t, []domain.IceCandidate{old[1]}, rec.batches[0])
	assert.Equal(t, domain.PeerID("P2"), rec.peers[0])
	b.Clear()
}

func TestSendErrorDoesNotStopDraining(t *testing.T) {
	rec := &recorder{err: errors.New("relay down")}
	b := NewBuffer(2*time.Millisecond, 10, rec.send)

	for _, c := range candidates(12) {
		b.Enqueue(b.Epoch(), "P1", c)
	}
	require.Eventually(t, func() bool { return len(rec.sizes()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, b.Pending())
}
