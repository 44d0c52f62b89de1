package core

import (
	"context"

	"github.com/dkeye/callbroker/internal/domain"
)

// Frame is a raw text payload on a relay socket.
type Frame []byte

// SignalConnection abstracts a relay-side client socket.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Signaler carries signaling messages from the call core to the peer.
type Signaler interface {
	Send(ctx context.Context, to domain.PeerID, msg domain.Message) error
	// EndCall drops whatever is still queued for the finished call, except bye.
	EndCall(peer domain.PeerID)
}
