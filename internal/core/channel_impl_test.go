package core

import (
	"errors"
	"testing"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConn struct {
	frames []Frame
	full   bool
}

func (s *stubConn) TrySend(f Frame) error {
	if s.full {
		return errors.New("full")
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *stubConn) Close() {}

func TestChannelSessionBroadcastIncludesSender(t *testing.T) {
	ch := NewChannelSession(domain.GlobalVoiceChannelID)
	a, b := &stubConn{}, &stubConn{full: true}
	require.True(t, ch.AddMember("a", NewMemberSession(domain.Player{ID: "a", Name: "A"}, a)))
	require.False(t, ch.AddMember("a", NewMemberSession(domain.Player{ID: "a", Name: "A"}, a)))
	require.True(t, ch.AddMember("b", NewMemberSession(domain.Player{ID: "b", Name: "B"}, b)))

	res := ch.Broadcast(Frame("hi"))
	assert.Equal(t, 1, res.SendTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, domain.PlayerID("b"), res.Dropped[0].Player().ID)
	assert.Len(t, a.frames, 1)

	assert.Equal(t, []domain.Participant{{ID: "a", DisplayName: "A"}, {ID: "b", DisplayName: "B"}}, ch.Participants())

	_, ok := ch.RemoveMember("b")
	assert.True(t, ok)
	assert.False(t, ch.Has("b"))
	assert.Equal(t, 1, ch.MemberCount())
}
