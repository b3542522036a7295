// Package domain contains the values shared by the server registry and the clients.
package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxPlayerIDLen   = 36
	MaxPlayerNameLen = 36
)

var (
	ErrPlayerNameTooLong = errors.New("player name too long")
	ErrPlayerNameEmpty   = errors.New("player name empty")
)

type PlayerID string

// Valid reports whether id can be embedded in a channel id.
func (id PlayerID) Valid() bool {
	return id != "" && len(id) <= MaxPlayerIDLen && !strings.Contains(string(id), idSeparator)
}

func ParsePlayerID(s string) (PlayerID, error) {
	id := PlayerID(s)
	if !id.Valid() {
		return "", fmt.Errorf("%w: bad player id %q", ErrPrecondition, s)
	}
	return id, nil
}

type Player struct {
	ID    PlayerID `json:"id"`
	Name  string   `json:"name"`
	IsBot bool     `json:"is_bot"`
}

// NewPlayer validates the name and assigns a fresh id.
func NewPlayer(name string, isBot bool) (*Player, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &Player{ID: PlayerID(uuid.NewString()), Name: name, IsBot: isBot}, nil
}

func (p *Player) Info() PlayerInfo {
	return PlayerInfo{Name: p.Name, IsBot: p.IsBot}
}

func validateName(name string) error {
	if len(name) == 0 {
		return ErrPlayerNameEmpty
	}
	if len(name) > MaxPlayerNameLen {
		return ErrPlayerNameTooLong
	}
	return nil
}

// PlayerInfo is the value replicated by the presence map.
type PlayerInfo struct {
	Name  string `json:"name"`
	IsBot bool   `json:"is_bot"`
}
