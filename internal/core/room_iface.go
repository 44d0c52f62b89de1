package core

import (
	"errors"

	"github.com/dkeye/callbroker/internal/domain"
)

var ErrRoomFull = errors.New("room full")

// PublishResult reports delivery stats/backpressure to the relay.
type PublishResult struct {
	SentTo  int
	Dropped []MemberSession
}

// RoomService is the core-facing API of a relay room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []domain.Member

	AddMember(sid SessionID, ms MemberSession) error
	RemoveMember(sid SessionID)
	HasClient(client domain.ClientID) bool
	// Forward delivers data to `to`, or to every member but `from` when `to`
	// is empty.
	Forward(from, to domain.ClientID, data Frame) PublishResult
	Member(client domain.ClientID) (SessionID, MemberSession, bool)
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	GetRoom(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID)
}
