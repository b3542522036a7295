package app

import (
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/replica"
	"github.com/rs/zerolog/log"
)

// NotificationSink delivers a chat notification to one player.
type NotificationSink interface {
	Notify(to domain.PlayerID, msg domain.ChatMessage)
}

// CallNotifier turns call map changes into chat notifications for every
// member of the call, on the call's text channel.
type CallNotifier struct {
	Names interface{ Name(domain.PlayerID) string }
	Sink  NotificationSink
}

// Attach subscribes to calls. Attach before the first call is created;
// entries replayed by the initial sync are announced like new ones.
func (n *CallNotifier) Attach(calls *replica.Map[domain.ChannelID, domain.VoiceCall]) (cancel func()) {
	return calls.Subscribe(n.handle)
}

func (n *CallNotifier) handle(op replica.Op, id domain.ChannelID, call domain.VoiceCall) {
	var body string
	switch op {
	case replica.OpAdd:
		body = "Call started."
	case replica.OpRemove:
		body = "Call ended."
	case replica.OpSet:
		name := n.Names.Name(call.LastModifiedID)
		if call.LastOperationWasAdd {
			body = name + " has joined the call."
		} else {
			body = name + " has left the call."
		}
	}
	msg := domain.NewNotification(id.TextID(), body)
	for _, m := range call.Members {
		n.Sink.Notify(m, msg)
	}
	log.Debug().Str("module", "app.notifier").Str("call", string(id)).Str("op", op.String()).Msg(body)
}
