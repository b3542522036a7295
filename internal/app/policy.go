package app

import "github.com/dkeye/voicesync/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(ch core.ChannelSession, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks slow members out of call channels and drops the frame
// for everything else.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(ch core.ChannelSession, member core.MemberSession) BackpressureAction {
	if ch.ID().IsVoice() && !ch.ID().IsGlobal() {
		return KickMember
	}
	return DropFrame
}
