package domain

import (
	"fmt"
	"slices"
	"strings"
)

const idSeparator = "_"

type CommunicationType int

const (
	Global CommunicationType = iota
	Group
	Private
)

func (c CommunicationType) String() string {
	switch c {
	case Global:
		return "global"
	case Group:
		return "group"
	case Private:
		return "private"
	}
	return fmt.Sprintf("communication(%d)", int(c))
}

type MediaType int

const (
	Text MediaType = iota
	Voice
)

func (m MediaType) String() string {
	if m == Voice {
		return "voice"
	}
	return "text"
}

// ChannelID has the form <communication>_<media>_<suffix>. For private and group
// channels the suffix is the sorted member ids joined by "_".
type ChannelID string

const (
	GlobalTextChannelID  ChannelID = "global_text_GlobalChannel"
	GlobalVoiceChannelID ChannelID = "global_voice_GlobalChannel"
)

// PrivateChannelID is symmetric: both peers derive the same id.
func PrivateChannelID(a, b PlayerID) ChannelID {
	if b < a {
		a, b = b, a
	}
	return ChannelID("private_text_" + string(a) + idSeparator + string(b))
}

func GroupChannelID(members []PlayerID) ChannelID {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, string(m))
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
	return ChannelID("group_text_" + strings.Join(ids, idSeparator))
}

func NewChannelID(comm CommunicationType, media MediaType, suffix string) ChannelID {
	return ChannelID(comm.String() + idSeparator + media.String() + idSeparator + suffix)
}

func ParseChannelID(s string) (ChannelID, error) {
	id := ChannelID(s)
	if _, _, _, ok := id.split(); !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannelID, s)
	}
	return id, nil
}

func (id ChannelID) split() (CommunicationType, MediaType, string, bool) {
	parts := strings.SplitN(string(id), idSeparator, 3)
	if len(parts) != 3 || parts[2] == "" {
		return 0, 0, "", false
	}
	var comm CommunicationType
	switch parts[0] {
	case "global":
		comm = Global
	case "group":
		comm = Group
	case "private":
		comm = Private
	default:
		return 0, 0, "", false
	}
	var media MediaType
	switch parts[1] {
	case "text":
		media = Text
	case "voice":
		media = Voice
	default:
		return 0, 0, "", false
	}
	return comm, media, parts[2], true
}

func (id ChannelID) Valid() bool {
	_, _, _, ok := id.split()
	return ok
}

func (id ChannelID) CommunicationType() CommunicationType {
	comm, _, _, _ := id.split()
	return comm
}

func (id ChannelID) MediaType() MediaType {
	_, media, _, _ := id.split()
	return media
}

func (id ChannelID) Suffix() string {
	_, _, suffix, _ := id.split()
	return suffix
}

func (id ChannelID) IsGlobal() bool  { return id.CommunicationType() == Global }
func (id ChannelID) IsPrivate() bool { return id.CommunicationType() == Private }
func (id ChannelID) IsVoice() bool   { return id.MediaType() == Voice }

// TextID names the text sibling. Only the media token is replaced, so player ids
// containing "voice" survive the substitution.
func (id ChannelID) TextID() ChannelID { return id.withMedia(Text) }

// VoiceID names the voice sibling.
func (id ChannelID) VoiceID() ChannelID { return id.withMedia(Voice) }

func (id ChannelID) withMedia(m MediaType) ChannelID {
	comm, _, suffix, ok := id.split()
	if !ok {
		return id
	}
	return NewChannelID(comm, m, suffix)
}

// Members returns the player ids encoded in a private or group id.
func (id ChannelID) Members() []PlayerID {
	comm, _, suffix, ok := id.split()
	if !ok || comm == Global {
		return nil
	}
	parts := strings.Split(suffix, idSeparator)
	out := make([]PlayerID, 0, len(parts))
	for _, p := range parts {
		out = append(out, PlayerID(p))
	}
	return out
}

// OtherMember returns the peer of self in a private channel.
func (id ChannelID) OtherMember(self PlayerID) (PlayerID, bool) {
	if !id.IsPrivate() {
		return "", false
	}
	for _, m := range id.Members() {
		if m != self {
			return m, true
		}
	}
	return "", false
}

func (id ChannelID) String() string { return string(id) }
