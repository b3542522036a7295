// Package protocol defines the signaling envelope exchanged over the websocket
// and the payload of every message type.
package protocol

import (
	"errors"
	"fmt"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var validate = validator.New()

var ErrBadPayload = errors.New("bad payload")

// Client requests.
const (
	TypeCallCreate            = "call.create"
	TypeCallRemove            = "call.remove"
	TypeCallAddParticipant    = "call.add_participant"
	TypeCallRemoveParticipant = "call.remove_participant"

	TypeCallStarted  = "signal.call_started"
	TypeCallCanceled = "signal.call_canceled"
	TypeCallAccepted = "signal.call_accepted"
	TypeCallDeclined = "signal.call_declined"

	TypeVoiceConnect    = "voice.connect"
	TypeVoiceDisconnect = "voice.disconnect"
	TypeTextSend        = "text.send"
	TypeTextDirect      = "text.direct"
	TypePing            = "ping"
)

// Server pushes.
const (
	TypeReply             = "reply"
	TypeWelcome           = "welcome"
	TypeMapCalls          = "map.calls"
	TypeMapPlayerCalls    = "map.player_calls"
	TypeMapPlayers        = "map.players"
	TypeParticipantJoined = "voice.participant_joined"
	TypeParticipantLeft   = "voice.participant_left"
	TypeTextMessage       = "text.message"
	TypeCallNotification  = "call.notification"
	TypePong              = "pong"
)

// Envelope is the frame on the wire. Requests carry ID; the matching reply
// carries it back in ReplyTo together with Error/Code on failure.
type Envelope struct {
	Type    string              `json:"type"`
	ID      string              `json:"id,omitempty"`
	ReplyTo string              `json:"reply_to,omitempty"`
	From    domain.PlayerID     `json:"from,omitempty"`
	Data    jsoniter.RawMessage `json:"data,omitempty"`
	Error   string              `json:"error,omitempty"`
	Code    string              `json:"code,omitempty"`
}

// NewRequest builds an envelope with a fresh request id.
func NewRequest(typ string, data any) (Envelope, error) {
	env, err := NewEvent(typ, data)
	if err != nil {
		return env, err
	}
	env.ID = uuid.NewString()
	return env, nil
}

// NewEvent builds a push envelope that expects no reply.
func NewEvent(typ string, data any) (Envelope, error) {
	env := Envelope{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return env, fmt.Errorf("marshal %s: %w", typ, err)
		}
		env.Data = raw
	}
	return env, nil
}

// NewReply answers request id. A non-nil err is carried as Error and Code.
func NewReply(id string, data any, err error) (Envelope, error) {
	env, mErr := NewEvent(TypeReply, data)
	if mErr != nil {
		return env, mErr
	}
	env.ReplyTo = id
	if err != nil {
		env.Error = err.Error()
		env.Code = CodeOf(err)
	}
	return env, nil
}

func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// EncodeEvent is NewEvent followed by Encode.
func EncodeEvent(typ string, data any) ([]byte, error) {
	env, err := NewEvent(typ, data)
	if err != nil {
		return nil, err
	}
	return Encode(env)
}

func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("%w: missing type", ErrBadPayload)
	}
	return env, nil
}

// Bind decodes env.Data into v and validates it.
func Bind(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrBadPayload, env.Type)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Type, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Type, err)
	}
	return nil
}
