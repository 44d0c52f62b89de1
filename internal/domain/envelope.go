package domain

import "encoding/json"

// Command is the verb of a client-to-relay envelope.
type Command string

const (
	CmdRegister Command = "register"
	CmdSend     Command = "send"
)

// ClientEnvelope is written by endpoints to the relay socket. A register
// envelope needs both RoomID and ClientID. A send envelope without To goes
// to every other member of the room.
type ClientEnvelope struct {
	Cmd      Command         `json:"cmd"`
	RoomID   RoomID          `json:"roomid,omitempty"`
	ClientID ClientID        `json:"clientid,omitempty"`
	To       ClientID        `json:"to,omitempty"`
	Msg      json.RawMessage `json:"msg,omitempty"`
}

// RelayEnvelope is written by the relay to endpoints.
type RelayEnvelope struct {
	Msg   json.RawMessage `json:"msg,omitempty"`
	From  ClientID        `json:"from,omitempty"`
	Error string          `json:"error,omitempty"`
}

const (
	RelayErrRoomFull       = "room_full"
	RelayErrNotRegistered  = "not_registered"
	RelayErrBadPayload     = "bad_payload"
	RelayErrNoPeer         = "no_peer"
	RelayErrPeerBusy       = "peer_busy"
	RelayErrRateLimited    = "rate_limited"
	RelayErrBadCredentials = "bad_credentials"
)
