package domain

import "slices"

// VoiceCall is one call record. Values are never mutated in place: every
// change builds a new value that replaces the old one wholesale.
type VoiceCall struct {
	ID                  ChannelID  `json:"id"`
	Members             []PlayerID `json:"members"`
	Participants        []PlayerID `json:"participants"`
	LastModifiedID      PlayerID   `json:"last_modified_id,omitempty"`
	LastOperationWasAdd bool       `json:"last_operation_was_add"`
}

func NewVoiceCall(id ChannelID, members []PlayerID) VoiceCall {
	ms := make([]PlayerID, 0, len(members))
	for _, m := range members {
		if !slices.Contains(ms, m) {
			ms = append(ms, m)
		}
	}
	return VoiceCall{ID: id, Members: ms, Participants: []PlayerID{}}
}

func (c VoiceCall) IsMember(id PlayerID) bool       { return slices.Contains(c.Members, id) }
func (c VoiceCall) HasParticipant(id PlayerID) bool { return slices.Contains(c.Participants, id) }
func (c VoiceCall) Empty() bool                     { return len(c.Participants) == 0 }

// WithParticipant returns a copy with id joined.
func (c VoiceCall) WithParticipant(id PlayerID) VoiceCall {
	next := c.clone()
	if !next.HasParticipant(id) {
		next.Participants = append(next.Participants, id)
	}
	next.LastModifiedID = id
	next.LastOperationWasAdd = true
	return next
}

// WithoutParticipant returns a copy with id removed.
func (c VoiceCall) WithoutParticipant(id PlayerID) VoiceCall {
	next := c.clone()
	next.Participants = slices.DeleteFunc(next.Participants, func(p PlayerID) bool { return p == id })
	next.LastModifiedID = id
	next.LastOperationWasAdd = false
	return next
}

func (c VoiceCall) clone() VoiceCall {
	c.Members = slices.Clone(c.Members)
	c.Participants = slices.Clone(c.Participants)
	if c.Participants == nil {
		c.Participants = []PlayerID{}
	}
	return c
}

// CallRef names the call a player is in. GlobalCall stands for the implicit
// global call, which never has a registry entry.
type CallRef struct {
	Global bool      `json:"global"`
	ID     ChannelID `json:"id,omitempty"`
}

var GlobalCall = CallRef{Global: true}

func InCall(id ChannelID) CallRef { return CallRef{ID: id} }

func (r CallRef) IsGlobal() bool { return r.Global }

func (r CallRef) String() string {
	if r.Global {
		return "global"
	}
	return string(r.ID)
}

type TransportKind int

const (
	NonPositional TransportKind = iota
	Positional
)

// ConnectFlags select what a channel connection carries.
type ConnectFlags struct {
	Audio              bool `json:"audio"`
	Text               bool `json:"text"`
	SwitchTransmission bool `json:"switch_transmission"`
}

// CallInfo describes the call being negotiated.
type CallInfo struct {
	CallerID      PlayerID      `json:"caller_id"`
	Members       []PlayerID    `json:"members"`
	ChannelName   string        `json:"channel_name"`
	ChannelID     ChannelID     `json:"channel_id"`
	ChannelType   TransportKind `json:"channel_type"`
	TextChannelID ChannelID     `json:"text_channel_id"`
}

// IsPrivate reports a 1:1 call.
func (i CallInfo) IsPrivate() bool { return i.TextChannelID.IsPrivate() }

type LoginState int

const (
	LoggedOut LoginState = iota
	LoggingIn
	LoggedIn
	LoggingOut
)

func (s LoginState) String() string {
	switch s {
	case LoggingIn:
		return "logging_in"
	case LoggedIn:
		return "logged_in"
	case LoggingOut:
		return "logging_out"
	}
	return "logged_out"
}
