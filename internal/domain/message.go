package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type MessageKind int

const (
	KindMessage MessageKind = iota
	KindNotification
)

// NotificationPrefix marks a channel message that should render as a notification.
const NotificationPrefix = "$"

type ChatMessage struct {
	ID         string      `json:"id"`
	ChannelID  ChannelID   `json:"channel_id"`
	SenderID   PlayerID    `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	Body       string      `json:"body"`
	FromSelf   bool        `json:"from_self"`
	Kind       MessageKind `json:"kind"`
	SentAt     time.Time   `json:"sent_at"`
}

func NewChatMessage(ch ChannelID, sender PlayerID, senderName, body string) ChatMessage {
	m := ChatMessage{
		ID:         uuid.NewString(),
		ChannelID:  ch,
		SenderID:   sender,
		SenderName: senderName,
		Body:       body,
		SentAt:     time.Now(),
	}
	if rest, ok := strings.CutPrefix(body, NotificationPrefix); ok {
		m.Body = rest
		m.Kind = KindNotification
	}
	return m
}

func NewNotification(ch ChannelID, body string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		ChannelID: ch,
		Body:      body,
		Kind:      KindNotification,
		SentAt:    time.Now(),
	}
}
