package core

import (
	"sync"

	"github.com/dkeye/callbroker/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory relay room of at most two members.
// It never closes adapter-owned resources.
type roomImpl struct {
	room     *domain.Room
	capacity int
	mu       sync.RWMutex
	bySID    map[SessionID]MemberSession
	byClient map[domain.ClientID]SessionID
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:     room,
		capacity: domain.MaxRoomMembers,
		bySID:    make(map[SessionID]MemberSession),
		byClient: make(map[domain.ClientID]SessionID),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

// AddMember admits ms unless the room is full. A client id that is already
// present replaces its previous session.
func (r *roomImpl) AddMember(sid SessionID, ms MemberSession) error {
	c := ms.Meta().Client
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byClient[c]; ok {
		delete(r.bySID, old)
	} else if len(r.bySID) >= r.capacity {
		log.Warn().Str("module", "core.room").Str("room", string(r.room.ID)).Str("client", string(c)).Msg("room full")
		return ErrRoomFull
	}
	r.bySID[sid] = ms
	r.byClient[c] = sid
	log.Info().Str("module", "core.room").Str("sid", string(sid)).Str("client", string(c)).Msg("member added")
	return nil
}

func (r *roomImpl) RemoveMember(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ms, ok := r.bySID[sid]; ok {
		c := ms.Meta().Client
		if r.byClient[c] == sid {
			delete(r.byClient, c)
		}
	}
	delete(r.bySID, sid)
	log.Info().Str("module", "core.room").Str("sid", string(sid)).Msg("member removed")
}

func (r *roomImpl) HasClient(client domain.ClientID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byClient[client]
	return ok
}

func (r *roomImpl) Member(client domain.ClientID) (SessionID, MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byClient[client]
	if !ok {
		return "", nil, false
	}
	return sid, r.bySID[sid], true
}

func (r *roomImpl) Forward(from, to domain.ClientID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, m := range r.bySID {
		c := m.Meta().Client
		if c == from || (to != "" && c != to) {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Str("to", string(to)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("forward result")
	return res
}

func (r *roomImpl) MembersSnapshot() []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Member, 0, len(r.bySID))
	for _, ms := range r.bySID {
		out = append(out, *ms.Meta())
	}
	return out
}
