package domain

import (
	"slices"
	"sync"
)

// Participant is a live voice/text session member. Exists only while joined.
type Participant struct {
	ID          PlayerID `json:"id"`
	DisplayName string   `json:"display_name"`
	Muted       bool     `json:"muted"`
	Speaking    bool     `json:"speaking"`
}

// ChatChannel is one communication context. The participant set and the
// history are mutated only through its methods.
type ChatChannel struct {
	ID        ChannelID
	Name      string
	Moderator PlayerID
	Members   []PlayerID
	// TargetID is the peer of a private channel.
	TargetID PlayerID

	mu           sync.RWMutex
	participants map[PlayerID]Participant
	muted        bool
	history      *History
}

func NewChatChannel(id ChannelID, name string, moderator PlayerID, members []PlayerID) *ChatChannel {
	ch := &ChatChannel{
		ID:           id,
		Name:         name,
		Moderator:    moderator,
		Members:      slices.Clone(members),
		participants: make(map[PlayerID]Participant),
		history:      NewHistory(MaxMessages),
	}
	if id.IsPrivate() {
		ch.TargetID, _ = id.OtherMember(moderator)
	}
	return ch
}

func (c *ChatChannel) CommunicationType() CommunicationType { return c.ID.CommunicationType() }
func (c *ChatChannel) MediaType() MediaType                 { return c.ID.MediaType() }
func (c *ChatChannel) IsGlobal() bool                       { return c.ID.IsGlobal() }
func (c *ChatChannel) IsPrivate() bool                      { return c.ID.IsPrivate() }
func (c *ChatChannel) IsVoice() bool                        { return c.ID.IsVoice() }

// AddParticipant reports false when the participant was already present.
func (c *ChatChannel) AddParticipant(p Participant) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.participants[p.ID]; ok {
		return false
	}
	c.participants[p.ID] = p
	return true
}

func (c *ChatChannel) RemoveParticipant(id PlayerID) (Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.participants[id]
	if ok {
		delete(c.participants, id)
	}
	return p, ok
}

func (c *ChatChannel) Participant(id PlayerID) (Participant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.participants[id]
	return p, ok
}

func (c *ChatChannel) Participants() []Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Participant, 0, len(c.participants))
	for _, p := range c.participants {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Participant) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

func (c *ChatChannel) ParticipantCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.participants)
}

func (c *ChatChannel) SetParticipantMuted(id PlayerID, muted bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.participants[id]
	if !ok {
		return false
	}
	p.Muted = muted
	c.participants[id] = p
	return true
}

func (c *ChatChannel) ClearParticipants() {
	c.mu.Lock()
	c.participants = make(map[PlayerID]Participant)
	c.mu.Unlock()
}

func (c *ChatChannel) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
}

func (c *ChatChannel) Muted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.muted
}

func (c *ChatChannel) AddMessage(m ChatMessage) { c.history.Append(m) }

func (c *ChatChannel) Messages() []ChatMessage { return c.history.Snapshot() }
