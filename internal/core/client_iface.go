package core

import (
	"context"

	"github.com/dkeye/voicesync/internal/domain"
)

// CallRegistry is the client's handle on the server-owned call map.
// Every call is a request; the resulting change arrives through the mirror.
type CallRegistry interface {
	CreateCall(ctx context.Context, id domain.ChannelID, members []domain.PlayerID) error
	RemoveCall(ctx context.Context, id domain.ChannelID) error
	AddParticipant(ctx context.Context, id domain.ChannelID, pid domain.PlayerID) error
	RemoveParticipant(ctx context.Context, id domain.ChannelID, pid domain.PlayerID) error
}

// CallLookup reads the local mirror of the call map.
type CallLookup interface {
	Call(id domain.ChannelID) (domain.VoiceCall, bool)
}

// Signaler delivers point-to-point call signals through the server.
type Signaler interface {
	SendCallStarted(ctx context.Context, targets []domain.PlayerID, info domain.CallInfo) error
	SendCallCanceled(ctx context.Context, targets []domain.PlayerID, info domain.CallInfo) error
	SendCallAccepted(ctx context.Context, caller domain.PlayerID, info domain.CallInfo) error
	SendCallDeclined(ctx context.Context, caller domain.PlayerID, info domain.CallInfo) error
}

// ChannelHandler receives the event stream of one joined channel.
type ChannelHandler interface {
	ParticipantJoined(ch domain.ChannelID, p domain.Participant)
	ParticipantLeft(ch domain.ChannelID, p domain.Participant)
	MessageReceived(m domain.ChatMessage)
}

// VoiceTransport is the voice/text provider. Audio itself is opaque.
type VoiceTransport interface {
	Connect(ctx context.Context, ch domain.ChannelID, kind domain.TransportKind, flags domain.ConnectFlags) error
	Disconnect(ctx context.Context, ch domain.ChannelID) error
	Mute(ch domain.ChannelID, muted bool)
	SendText(ctx context.Context, ch domain.ChannelID, body string) error
	SendDirect(ctx context.Context, to domain.PlayerID, body string) error
	Subscribe(ch domain.ChannelID, h ChannelHandler) (cancel func())
	SubscribeDirect(fn func(domain.ChatMessage)) (cancel func())
}

// Session answers who the local player is and whether it is logged in.
type Session interface {
	LoginState() domain.LoginState
	LocalPlayer() domain.Player
}
