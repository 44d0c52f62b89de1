package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/callbroker/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func member(room domain.RoomID, client domain.ClientID) (MemberSession, *fakeConn) {
	conn := &fakeConn{}
	return NewMemberSession(domain.NewMember(room, client), conn), conn
}

func TestRoomCapacity(t *testing.T) {
	r := NewRoomService(&domain.Room{ID: "r1"})
	a, _ := member("r1", "alice")
	b, _ := member("r1", "bob")
	c, _ := member("r1", "carol")

	require.NoError(t, r.AddMember("s1", a))
	require.NoError(t, r.AddMember("s2", b))
	assert.ErrorIs(t, r.AddMember("s3", c), ErrRoomFull)
	assert.Equal(t, 2, r.MemberCount())
	assert.False(t, r.HasClient("carol"))
}

func TestRoomReplacesSameClient(t *testing.T) {
	r := NewRoomService(&domain.Room{ID: "r1"})
	a1, _ := member("r1", "alice")
	a2, _ := member("r1", "alice")
	b, _ := member("r1", "bob")

	require.NoError(t, r.AddMember("s1", a1))
	require.NoError(t, r.AddMember("s2", b))
	require.NoError(t, r.AddMember("s3", a2))
	assert.Equal(t, 2, r.MemberCount())

	sid, ms, ok := r.Member("alice")
	require.True(t, ok)
	assert.Equal(t, SessionID("s3"), sid)
	assert.Same(t, a2, ms)

	// removing the replaced session leaves the new one in place
	r.RemoveMember("s1")
	assert.True(t, r.HasClient("alice"))
	r.RemoveMember("s3")
	assert.False(t, r.HasClient("alice"))
	assert.Len(t, r.MembersSnapshot(), 1)
}

func TestRoomForward(t *testing.T) {
	r := NewRoomService(&domain.Room{ID: "r1"})
	a, ac := member("r1", "alice")
	b, bc := member("r1", "bob")
	require.NoError(t, r.AddMember("s1", a))
	require.NoError(t, r.AddMember("s2", b))

	res := r.Forward("alice", "", Frame("x"))
	assert.Equal(t, 1, res.SentTo)
	assert.Equal(t, 0, ac.count())
	assert.Equal(t, 1, bc.count())

	res = r.Forward("alice", "carol", Frame("x"))
	assert.Equal(t, 0, res.SentTo)

	bc.full = true
	res = r.Forward("alice", "bob", Frame("x"))
	assert.Equal(t, 0, res.SentTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, domain.ClientID("bob"), res.Dropped[0].Meta().Client)
}
