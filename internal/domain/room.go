package domain

import "strings"

type RoomID string

// MaxRoomMembers is the capacity of a relay room: one caller, one callee.
const MaxRoomMembers = 2

func NewRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ErrRoomIDEmpty
	}
	if len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	return RoomID(raw), nil
}

type Room struct {
	ID RoomID
}

// Member is a client registered in a relay room.
type Member struct {
	Client ClientID `json:"client"`
	Room   RoomID   `json:"room"`
}

func NewMember(room RoomID, client ClientID) *Member {
	return &Member{Client: client, Room: room}
}
