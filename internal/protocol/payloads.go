package protocol

import (
	"github.com/dkeye/voicesync/internal/domain"
	jsoniter "github.com/json-iterator/go"
)

type CallCreate struct {
	ID      domain.ChannelID  `json:"id" validate:"required"`
	Members []domain.PlayerID `json:"members" validate:"required,min=1,dive,required"`
}

type CallID struct {
	ID domain.ChannelID `json:"id" validate:"required"`
}

type CallParticipant struct {
	ID     domain.ChannelID `json:"id" validate:"required"`
	Player domain.PlayerID  `json:"player" validate:"required"`
}

// Signal carries a call signal. The server stamps the sender into the
// envelope's From and delivers to every online target except the sender.
type Signal struct {
	Targets []domain.PlayerID `json:"targets" validate:"required,min=1,dive,required"`
	Info    domain.CallInfo   `json:"info"`
}

type VoiceConnect struct {
	Channel domain.ChannelID     `json:"channel" validate:"required"`
	Kind    domain.TransportKind `json:"kind"`
	Flags   domain.ConnectFlags  `json:"flags"`
}

type VoiceChannel struct {
	Channel domain.ChannelID `json:"channel" validate:"required"`
}

type TextSend struct {
	Channel domain.ChannelID `json:"channel" validate:"required"`
	Body    string           `json:"body" validate:"required,max=2000"`
}

type TextDirect struct {
	To   domain.PlayerID `json:"to" validate:"required"`
	Body string          `json:"body" validate:"required,max=2000"`
}

// MapUpdate is one replicated map notification. Value is the JSON of the
// map's value type.
type MapUpdate struct {
	Op    string              `json:"op" validate:"oneof=add remove set"`
	Key   string              `json:"key" validate:"required"`
	Value jsoniter.RawMessage `json:"value,omitempty"`
}

type ParticipantEvent struct {
	Channel     domain.ChannelID   `json:"channel"`
	Participant domain.Participant `json:"participant"`
}

type TextMessage struct {
	Message domain.ChatMessage `json:"message"`
}

type Welcome struct {
	Player domain.Player `json:"player"`
}

// NewMapUpdate marshals value into a MapUpdate.
func NewMapUpdate(op, key string, value any) (MapUpdate, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return MapUpdate{}, err
	}
	return MapUpdate{Op: op, Key: key, Value: raw}, nil
}

// Decode unmarshals the update's value into v.
func (u MapUpdate) Decode(v any) error {
	if len(u.Value) == 0 {
		return nil
	}
	return json.Unmarshal(u.Value, v)
}
