package core

import (
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/rs/zerolog/log"
)

// channelImpl is a threadsafe in-memory channel session.
// It never closes adapter-owned resources.
type channelImpl struct {
	id    domain.ChannelID
	mu    sync.RWMutex
	bySID map[SessionID]MemberSession
}

func NewChannelSession(id domain.ChannelID) ChannelSession {
	return &channelImpl{
		id:    id,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (c *channelImpl) ID() domain.ChannelID { return c.id }

func (c *channelImpl) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bySID)
}

func (c *channelImpl) Has(sid SessionID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.bySID[sid]
	return ok
}

func (c *channelImpl) AddMember(sid SessionID, ms MemberSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.bySID[sid]; ok {
		return false
	}
	c.bySID[sid] = ms
	log.Info().Str("module", "core.channel").Str("channel", string(c.id)).Str("sid", string(sid)).Msg("member added")
	return true
}

func (c *channelImpl) RemoveMember(sid SessionID) (MemberSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms, ok := c.bySID[sid]
	if !ok {
		return nil, false
	}
	delete(c.bySID, sid)
	log.Info().Str("module", "core.channel").Str("channel", string(c.id)).Str("sid", string(sid)).Msg("member removed")
	return ms, true
}

func (c *channelImpl) Broadcast(data Frame) PublishResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := PublishResult{}
	for _, m := range c.bySID {
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.channel").Str("channel", string(c.id)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (c *channelImpl) Participants() []domain.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Participant, 0, len(c.bySID))
	for _, ms := range c.bySID {
		p := ms.Player()
		out = append(out, domain.Participant{ID: p.ID, DisplayName: p.Name})
	}
	slices.SortFunc(out, func(a, b domain.Participant) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}
