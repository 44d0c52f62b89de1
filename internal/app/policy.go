package app

import (
	"sync"
	"time"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose socket buffer was full when
// a frame was forwarded to it.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

type memberKey struct {
	room   domain.RoomID
	client domain.ClientID
}

type strikes struct {
	count int
	first time.Time
}

// SlowMemberPolicy drops frames for a member until it has stalled
// maxStrikes times within window, then kicks it. A kicked endpoint
// reconnects and registers again with an empty buffer.
type SlowMemberPolicy struct {
	maxStrikes int
	window     time.Duration
	now        func() time.Time

	mu      sync.Mutex
	members map[memberKey]*strikes
}

func NewSlowMemberPolicy(maxStrikes int, window time.Duration) *SlowMemberPolicy {
	if maxStrikes <= 0 {
		maxStrikes = 1
	}
	return &SlowMemberPolicy{
		maxStrikes: maxStrikes,
		window:     window,
		now:        time.Now,
		members:    make(map[memberKey]*strikes),
	}
}

func (p *SlowMemberPolicy) OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction {
	k := memberKey{room: room.Room().ID, client: member.Meta().Client}
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.members[k]
	if !ok || (p.window > 0 && now.Sub(s.first) > p.window) {
		s = &strikes{first: now}
		p.members[k] = s
	}
	s.count++
	if s.count < p.maxStrikes {
		return DropFrame
	}
	delete(p.members, k)
	return KickMember
}
