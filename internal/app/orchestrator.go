package app

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotRegistered     = errors.New("not registered")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrNoPeer            = errors.New("no peer in room")
	ErrPeerBusy          = errors.New("peer is not reading")
)

// Orchestrator is the relay: it binds sockets to rooms and forwards
// signaling envelopes between the members of a room.
type Orchestrator struct {
	Registry *Registry
	Rooms    core.RoomManager
	Policy   Policy
}

// Register binds sid to (room, client). Registering the same pair twice
// returns ErrAlreadyRegistered and changes nothing; a different pair moves
// the socket.
func (o *Orchestrator) Register(sid core.SessionID, room domain.RoomID, client domain.ClientID) error {
	conn, ok := o.Registry.Conn(sid)
	if !ok {
		return ErrNotRegistered
	}
	if cur, sess, ok := o.Registry.RoomOf(sid); ok {
		if cur == room && sess.Meta().Client == client {
			return ErrAlreadyRegistered
		}
		o.leaveRoom(sid)
	}

	sess := core.NewMemberSession(domain.NewMember(room, client), conn)
	r := o.Rooms.GetOrCreate(room)
	if prev, _, ok := r.Member(client); ok && prev != sid {
		log.Info().Str("module", "app.relay").Str("room", string(room)).Str("client", string(client)).Str("old_sid", string(prev)).Msg("client re-registered, replacing socket")
		o.Registry.RemoveRoom(prev)
	}
	if err := r.AddMember(sid, sess); err != nil {
		if r.MemberCount() == 0 {
			o.Rooms.StopRoom(room)
		}
		return err
	}
	o.Registry.UpdateRoom(sid, room, sess)
	log.Info().Str("module", "app.relay").Str("sid", string(sid)).Str("room", string(room)).Str("client", string(client)).Msg("registered")
	return nil
}

// OnFrame forwards a payload sent over the socket of sid.
func (o *Orchestrator) OnFrame(sid core.SessionID, to domain.ClientID, payload json.RawMessage) error {
	roomID, sess, ok := o.Registry.RoomOf(sid)
	if !ok {
		return ErrNotRegistered
	}
	return o.Deliver(roomID, sess.Meta().Client, to, payload)
}

// Deliver forwards payload from client to its room mates. It also serves
// the HTTP fallback, where the sender may have no live socket.
func (o *Orchestrator) Deliver(roomID domain.RoomID, from, to domain.ClientID, payload json.RawMessage) error {
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		return ErrNoPeer
	}
	frame, err := json.Marshal(domain.RelayEnvelope{Msg: payload, From: from})
	if err != nil {
		return err
	}
	res := room.Forward(from, to, frame)
	o.applyPolicy(room, res.Dropped)
	switch {
	case res.SentTo > 0:
		return nil
	case len(res.Dropped) > 0:
		return ErrPeerBusy
	}
	return ErrNoPeer
}

func (o *Orchestrator) applyPolicy(room core.RoomService, dropped []core.MemberSession) {
	if o.Policy == nil {
		return
	}
	for _, slow := range dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case KickMember:
			if sid, _, ok := room.Member(slow.Meta().Client); ok {
				log.Warn().Str("module", "app.relay").Str("room", string(room.Room().ID)).Str("client", string(slow.Meta().Client)).Msg("kicking slow member")
				o.KickBySID(sid)
			}
		case DropFrame:
			log.Debug().Str("module", "app.relay").Str("room", string(room.Room().ID)).Str("client", string(slow.Meta().Client)).Msg("frame dropped for slow member")
		case NoAction:
		}
	}
}

// Leave drops the registration of a socket that went away.
func (o *Orchestrator) Leave(sid core.SessionID) {
	o.leaveRoom(sid)
	o.Registry.Unbind(sid)
}

func (o *Orchestrator) leaveRoom(sid core.SessionID) {
	roomID, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	if room, ok := o.Rooms.GetRoom(roomID); ok {
		room.RemoveMember(sid)
		if room.MemberCount() == 0 {
			o.Rooms.StopRoom(roomID)
		}
	}
	o.Registry.RemoveRoom(sid)
}

func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.leaveRoom(sid)
	o.Registry.Cancel(sid)
}

func (o *Orchestrator) EvictRoom(id domain.RoomID) {
	for _, snap := range o.Registry.MembersOfRoom(id) {
		o.KickBySID(snap.SID)
	}
	o.Rooms.StopRoom(id)
}
