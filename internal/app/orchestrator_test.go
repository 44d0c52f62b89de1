package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) envelopes(t *testing.T) []domain.RelayEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.RelayEnvelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env domain.RelayEnvelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

func newRelay() *Orchestrator {
	return &Orchestrator{Registry: NewRegistry(), Rooms: NewRoomManager(), Policy: NewSlowMemberPolicy(2, time.Minute)}
}

func bind(o *Orchestrator, sid core.SessionID) *fakeConn {
	c := &fakeConn{}
	o.Registry.BindSignal(sid, c, func() {})
	return c
}

func TestRegister(t *testing.T) {
	o := newRelay()
	assert.ErrorIs(t, o.Register("nobody", "r1", "alice"), ErrNotRegistered)

	bind(o, "s1")
	bind(o, "s2")
	bind(o, "s3")
	require.NoError(t, o.Register("s1", "r1", "alice"))
	assert.ErrorIs(t, o.Register("s1", "r1", "alice"), ErrAlreadyRegistered)
	require.NoError(t, o.Register("s2", "r1", "bob"))
	assert.ErrorIs(t, o.Register("s3", "r1", "carol"), core.ErrRoomFull)

	assert.Equal(t, []core.RoomInfo{{ID: "r1", MemberCount: 2}}, o.Rooms.List())
}

func TestRegisterMovesRoom(t *testing.T) {
	o := newRelay()
	bind(o, "s1")
	require.NoError(t, o.Register("s1", "r1", "alice"))
	require.NoError(t, o.Register("s1", "r2", "alice"))

	_, ok := o.Rooms.GetRoom("r1")
	assert.False(t, ok, "empty room is stopped")
	room, _, ok := o.Registry.RoomOf("s1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r2"), room)
}

func TestReRegisterReplacesSocket(t *testing.T) {
	o := newRelay()
	bind(o, "old")
	bind(o, "bob")
	fresh := bind(o, "new")
	require.NoError(t, o.Register("old", "r1", "alice"))
	require.NoError(t, o.Register("bob", "r1", "bob"))
	require.NoError(t, o.Register("new", "r1", "alice"))

	_, _, ok := o.Registry.RoomOf("old")
	assert.False(t, ok)

	require.NoError(t, o.OnFrame("bob", "alice", json.RawMessage(`{"type":"bye"}`)))
	envs := fresh.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, domain.ClientID("bob"), envs[0].From)
}

func TestOnFrameForwards(t *testing.T) {
	o := newRelay()
	a := bind(o, "s1")
	b := bind(o, "s2")
	require.NoError(t, o.Register("s1", "r1", "alice"))

	assert.ErrorIs(t, o.OnFrame("s1", "", json.RawMessage(`{"type":"bye"}`)), ErrNoPeer)

	require.NoError(t, o.Register("s2", "r1", "bob"))
	require.NoError(t, o.OnFrame("s1", "bob", json.RawMessage(`{"type":"bye","reason":"x"}`)))

	envs := b.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, domain.ClientID("alice"), envs[0].From)
	assert.JSONEq(t, `{"type":"bye","reason":"x"}`, string(envs[0].Msg))
	assert.Empty(t, a.envelopes(t))

	bind(o, "s9")
	assert.ErrorIs(t, o.OnFrame("s9", "bob", json.RawMessage(`{}`)), ErrNotRegistered)
}

func TestDeliverWithoutSocket(t *testing.T) {
	o := newRelay()
	assert.ErrorIs(t, o.Deliver("r1", "alice", "bob", json.RawMessage(`{}`)), ErrNoPeer)

	b := bind(o, "s2")
	require.NoError(t, o.Register("s2", "r1", "bob"))
	require.NoError(t, o.Deliver("r1", "alice", "bob", json.RawMessage(`{"type":"bye"}`)))
	assert.Len(t, b.envelopes(t), 1)
}

func TestSlowMemberIsKicked(t *testing.T) {
	o := newRelay()
	bind(o, "s1")
	b := bind(o, "s2")
	require.NoError(t, o.Register("s1", "r1", "alice"))
	require.NoError(t, o.Register("s2", "r1", "bob"))

	b.full = true
	assert.ErrorIs(t, o.OnFrame("s1", "bob", json.RawMessage(`{}`)), ErrPeerBusy)
	assert.False(t, b.closed, "first stall only drops the frame")

	assert.ErrorIs(t, o.OnFrame("s1", "bob", json.RawMessage(`{}`)), ErrPeerBusy)
	assert.True(t, b.closed)
	_, _, ok := o.Registry.RoomOf("s2")
	assert.False(t, ok)
	room, ok := o.Rooms.GetRoom("r1")
	require.True(t, ok)
	assert.False(t, room.HasClient("bob"))
}

func TestLeaveAndEvict(t *testing.T) {
	o := newRelay()
	bind(o, "s1")
	a := bind(o, "s2")
	require.NoError(t, o.Register("s1", "r1", "alice"))
	require.NoError(t, o.Register("s2", "r1", "bob"))

	o.Leave("s1")
	assert.Equal(t, 1, o.Registry.Count())

	o.EvictRoom("r1")
	assert.True(t, a.closed)
	assert.Empty(t, o.Rooms.List())
}

func TestSlowMemberPolicyWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewSlowMemberPolicy(2, time.Second)
	p.now = func() time.Time { return now }

	room := core.NewRoomService(&domain.Room{ID: "r1"})
	bob := core.NewMemberSession(domain.NewMember("r1", "bob"), &fakeConn{})

	assert.Equal(t, DropFrame, p.OnBackPressure(room, bob))
	now = now.Add(2 * time.Second)
	assert.Equal(t, DropFrame, p.OnBackPressure(room, bob), "strikes outside the window start over")
	assert.Equal(t, KickMember, p.OnBackPressure(room, bob))
	assert.Equal(t, DropFrame, p.OnBackPressure(room, bob), "a kick clears the record")
}
