package events

import (
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/replica"
)

type CallState int

const (
	Idle CallState = iota
	Calling
	Ringing
	InCall
)

func (s CallState) String() string {
	switch s {
	case Calling:
		return "calling"
	case Ringing:
		return "ringing"
	case InCall:
		return "in_call"
	}
	return "idle"
}

type CallStateChanged struct {
	From, To CallState
	Channel  domain.ChannelID
}

type IncomingCall struct {
	Info domain.CallInfo
}

type IncomingCallEnded struct {
	Info domain.CallInfo
}

// Affordance is the state of the call button for a text channel.
type Affordance int

const (
	AffordanceDefault Affordance = iota
	AffordanceCalling
	AffordanceInCall
)

type CallAffordance struct {
	TextChannelID domain.ChannelID
	State         Affordance
}

type ChannelJoined struct{ Channel domain.ChannelID }

type ChannelLeft struct{ Channel domain.ChannelID }

type CurrentChannelChanged struct{ Channel domain.ChannelID }

type MessageReceived struct{ Message domain.ChatMessage }

type ParticipantAdded struct {
	Channel     domain.ChannelID
	Participant domain.Participant
}

type ParticipantRemoved struct {
	Channel     domain.ChannelID
	Participant domain.Participant
}

type PlayerConnected struct {
	ID   domain.PlayerID
	Info domain.PlayerInfo
}

// PlayerUpdated reports a changed entry for a player already connected.
type PlayerUpdated struct {
	ID   domain.PlayerID
	Info domain.PlayerInfo
}

type PlayerDisconnected struct {
	ID   domain.PlayerID
	Info domain.PlayerInfo
}

// VoiceCallChanged is a deduplicated call map notification.
type VoiceCallChanged struct {
	Op   replica.Op
	ID   domain.ChannelID
	Call domain.VoiceCall
}
