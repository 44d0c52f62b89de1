package app

import (
	"sort"
	"sync"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomTable holds the live relay rooms. A room exists from the first
// registration until its last member leaves.
type RoomTable struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]core.RoomService
}

func NewRoomManager() core.RoomManager {
	return &RoomTable{rooms: make(map[domain.RoomID]core.RoomService)}
}

func (t *RoomTable) GetOrCreate(id domain.RoomID) core.RoomService {
	t.mu.Lock()
	defer t.mu.Unlock()
	if room, ok := t.rooms[id]; ok {
		return room
	}
	room := core.NewRoomService(&domain.Room{ID: id})
	t.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Int("rooms", len(t.rooms)).Msg("room opened")
	return room
}

func (t *RoomTable) GetRoom(id domain.RoomID) (core.RoomService, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.rooms[id]
	return room, ok
}

// List reports every room ordered by id.
func (t *RoomTable) List() []core.RoomInfo {
	t.mu.Lock()
	rooms := make([]core.RoomService, 0, len(t.rooms))
	for _, r := range t.rooms {
		rooms = append(rooms, r)
	}
	t.mu.Unlock()

	out := make([]core.RoomInfo, len(rooms))
	for i, r := range rooms {
		out[i] = core.RoomInfo{ID: r.Room().ID, MemberCount: r.MemberCount()}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *RoomTable) StopRoom(id domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rooms[id]; !ok {
		return
	}
	delete(t.rooms, id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Int("rooms", len(t.rooms)).Msg("room closed")
}
