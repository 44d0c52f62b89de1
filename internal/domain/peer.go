// Package domain contains call and signaling entities without transport logic.
package domain

import (
	"errors"
	"strings"
)

const (
	MaxPeerIDLen = 64
	MaxRoomIDLen = 64
)

var (
	ErrPeerIDEmpty   = errors.New("peer id empty")
	ErrPeerIDTooLong = errors.New("peer id too long")
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

// PeerID names the remote endpoint of a call. On the relay it is the
// client id the peer registered with.
type PeerID string

func NewPeerID(raw string) (PeerID, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ErrPeerIDEmpty
	}
	if len(raw) > MaxPeerIDLen {
		return "", ErrPeerIDTooLong
	}
	return PeerID(raw), nil
}

func (p PeerID) String() string { return string(p) }

type ClientID string

func (c ClientID) String() string { return string(c) }
