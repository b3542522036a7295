package core

import "github.com/dkeye/voicesync/internal/domain"

// PublishResult reports delivery stats/backpressure to the orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// ChannelSession is the server side of one voice/text channel: the set of
// connections currently joined to it. It never touches transport resources.
type ChannelSession interface {
	ID() domain.ChannelID
	MemberCount() int
	Participants() []domain.Participant
	Has(sid SessionID) bool

	// AddMember reports false when sid was already joined.
	AddMember(sid SessionID, ms MemberSession) bool
	RemoveMember(sid SessionID) (MemberSession, bool)
	// Broadcast delivers to every member, the sender included.
	Broadcast(data Frame) PublishResult
}

type ChannelInfo struct {
	ID          domain.ChannelID `json:"id"`
	MemberCount int              `json:"member_count"`
}

type ChannelFactory interface {
	GetOrCreate(id domain.ChannelID) ChannelSession
	Get(id domain.ChannelID) (ChannelSession, bool)
	List() []ChannelInfo
	Stop(id domain.ChannelID)
}
