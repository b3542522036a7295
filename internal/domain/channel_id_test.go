package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrivateChannelIDSymmetric(t *testing.T) {
	pairs := [][2]PlayerID{
		{"alice", "bob"},
		{"b", "a"},
		{"9f2c", "0a11"},
		{"voice", "text"},
	}
	for _, p := range pairs {
		t.Run(string(p[0])+"-"+string(p[1]), func(t *testing.T) {
			ab := PrivateChannelID(p[0], p[1])
			ba := PrivateChannelID(p[1], p[0])
			assert.Equal(t, ab, ba)
			assert.True(t, ab.IsPrivate())
			assert.Equal(t, Text, ab.MediaType())
		})
	}
	assert.Equal(t, ChannelID("private_text_alice_bob"), PrivateChannelID("bob", "alice"))
}

func TestTextVoiceRoundTrip(t *testing.T) {
	ids := []ChannelID{
		GlobalTextChannelID,
		GlobalVoiceChannelID,
		PrivateChannelID("a", "b"),
		PrivateChannelID("a", "b").VoiceID(),
		GroupChannelID([]PlayerID{"c", "a", "b"}),
		PrivateChannelID("voicey", "textual"),
	}
	for _, x := range ids {
		t.Run(string(x), func(t *testing.T) {
			assert.Equal(t, x.VoiceID(), x.TextID().VoiceID())
			assert.Equal(t, x.TextID(), x.VoiceID().TextID())
			assert.Equal(t, x.Suffix(), x.VoiceID().Suffix())
			assert.Equal(t, x.CommunicationType(), x.VoiceID().CommunicationType())
		})
	}
	assert.Equal(t, GlobalVoiceChannelID, GlobalTextChannelID.VoiceID())
	// Only the media token changes.
	assert.Equal(t, ChannelID("private_voice_textual_voicey"), PrivateChannelID("voicey", "textual").VoiceID())
}

func TestParseChannelID(t *testing.T) {
	for _, bad := range []string{"", "global", "global_text_", "team_text_x", "group_video_x"} {
		_, err := ParseChannelID(bad)
		require.ErrorIs(t, err, ErrInvalidChannelID, bad)
	}
	id, err := ParseChannelID("group_voice_a_b_c")
	require.NoError(t, err)
	assert.Equal(t, Group, id.CommunicationType())
	assert.Equal(t, Voice, id.MediaType())
	assert.Equal(t, []PlayerID{"a", "b", "c"}, id.Members())
}

func TestGroupChannelIDSortsMembers(t *testing.T) {
	assert.Equal(t, GroupChannelID([]PlayerID{"c", "a", "b", "a"}), GroupChannelID([]PlayerID{"b", "c", "a"}))
	assert.Equal(t, ChannelID("group_text_a_b_c"), GroupChannelID([]PlayerID{"b", "c", "a"}))
}

func TestOtherMember(t *testing.T) {
	id := PrivateChannelID("me", "you")
	other, ok := id.OtherMember("me")
	require.True(t, ok)
	assert.Equal(t, PlayerID("you"), other)

	_, ok = GlobalTextChannelID.OtherMember("me")
	assert.False(t, ok)
}

func TestPlayerIDValid(t *testing.T) {
	p, err := NewPlayer("alice", false)
	require.NoError(t, err)
	assert.True(t, p.ID.Valid())
	assert.False(t, PlayerID("a_b").Valid())
	assert.False(t, PlayerID("").Valid())

	_, err = NewPlayer("", false)
	assert.ErrorIs(t, err, ErrPlayerNameEmpty)
}
