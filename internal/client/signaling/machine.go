// Package signaling runs the per-client call state machine: placing,
// answering and tearing down calls on top of the channel manager.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/events"
	"github.com/dkeye/voicesync/internal/replica"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Channels is the part of the channel manager the machine drives.
type Channels interface {
	CurrentChannel() *domain.ChatChannel
	GlobalChannel() *domain.ChatChannel
	SetCurrentChannel(ch *domain.ChatChannel)
	ChannelExists(id domain.ChannelID) bool
	VoiceChannel(id domain.ChannelID, name string, moderator domain.PlayerID, members []domain.PlayerID) *domain.ChatChannel
	Join(ctx context.Context, ch *domain.ChatChannel, kind domain.TransportKind, flags domain.ConnectFlags) error
	Leave(ctx context.Context, ch *domain.ChatChannel) error
	MuteGlobalChannel()
	UnmuteGlobalChannel()
}

type Deps struct {
	Session  core.Session
	Registry core.CallRegistry
	Lookup   core.CallLookup
	Signaler core.Signaler
	Channels Channels
	Bus      *events.Bus
	// Timeout bounds the transport waits of transitions triggered by the
	// server rather than by a caller with its own context.
	Timeout time.Duration
}

// Machine tracks at most one outgoing and one incoming call. Its lock is never
// held across a transport wait; epoch changes on every transition so a
// transition that resumes after a wait can tell it was overtaken.
type Machine struct {
	d Deps

	mu       sync.Mutex
	state    events.CallState
	epoch    uint64
	current  *domain.CallInfo
	incoming *domain.CallInfo
	declined map[domain.PlayerID]struct{}
	watch    func()
	outbox   []func()
}

func NewMachine(d Deps) *Machine {
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
	return &Machine{d: d}
}

func (m *Machine) State() events.CallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the call being placed or joined.
func (m *Machine) Current() (domain.CallInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return domain.CallInfo{}, false
	}
	return *m.current, true
}

func (m *Machine) Incoming() (domain.CallInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incoming == nil {
		return domain.CallInfo{}, false
	}
	return *m.incoming, true
}

// CallInfoFor describes a call on the voice sibling of text channel ch.
func CallInfoFor(self domain.PlayerID, ch *domain.ChatChannel) domain.CallInfo {
	members := ch.Members
	if len(members) == 0 {
		members = ch.ID.Members()
	}
	if !lo.Contains(members, self) {
		members = append([]domain.PlayerID{self}, members...)
	}
	return domain.CallInfo{
		CallerID:      self,
		Members:       lo.Uniq(members),
		ChannelName:   ch.Name,
		ChannelID:     ch.ID.VoiceID(),
		ChannelType:   domain.NonPositional,
		TextChannelID: ch.ID.TextID(),
	}
}

// Initiate places a call on the voice sibling of text channel ch. When the
// call already exists it is joined directly.
func (m *Machine) Initiate(ctx context.Context, ch *domain.ChatChannel) error {
	if m.d.Session.LoginState() != domain.LoggedIn {
		return fmt.Errorf("initiate: %w", domain.ErrNotAuthenticated)
	}
	if ch.IsGlobal() {
		return fmt.Errorf("initiate %s: %w: global channel", ch.ID, domain.ErrPrecondition)
	}
	self := m.d.Session.LocalPlayer().ID
	info := CallInfoFor(self, ch)

	m.mu.Lock()
	if m.state != events.Idle {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("initiate %s: %w: already %s", ch.ID, domain.ErrPrecondition, state)
	}
	if _, exists := m.d.Lookup.Call(info.ChannelID); exists {
		m.current = &info
		m.mu.Unlock()
		log.Info().Str("module", "client.signaling").Str("call", string(info.ChannelID)).Msg("call exists, joining")
		return m.enterCall(ctx, info)
	}
	m.current = &info
	m.declined = make(map[domain.PlayerID]struct{})
	m.transitionLocked(events.Calling, info.ChannelID)
	m.affordanceLocked(info.TextChannelID, events.AffordanceCalling)
	epoch := m.epoch
	m.unlock()

	if err := m.d.Registry.CreateCall(ctx, info.ChannelID, info.Members); err != nil {
		log.Error().Err(err).Str("module", "client.signaling").Str("call", string(info.ChannelID)).Msg("create call")
		m.abort(epoch, info)
		return fmt.Errorf("initiate %s: %w", ch.ID, err)
	}
	m.mu.Lock()
	superseded := m.epoch != epoch
	m.mu.Unlock()
	if superseded {
		m.removeCall(info.ChannelID)
		return fmt.Errorf("initiate %s: %w", ch.ID, domain.ErrCallSuperseded)
	}
	if err := m.d.Signaler.SendCallStarted(ctx, lo.Without(info.Members, self), info); err != nil {
		log.Error().Err(err).Str("module", "client.signaling").Str("call", string(info.ChannelID)).Msg("send call started")
		m.abort(epoch, info)
		m.removeCall(info.ChannelID)
		return fmt.Errorf("initiate %s: %w", ch.ID, err)
	}
	log.Info().Str("module", "client.signaling").Str("call", string(info.ChannelID)).Int("members", len(info.Members)).Msg("calling")
	return nil
}

// abort returns to Idle if nothing else has moved the machine since epoch.
func (m *Machine) abort(epoch uint64, info domain.CallInfo) {
	m.mu.Lock()
	if m.epoch == epoch {
		m.endLocked(info)
	}
	m.unlock()
}

// OnCallStarted handles a peer's "call started". A second incoming call is
// declined at once so the caller's quorum still completes.
func (m *Machine) OnCallStarted(ctx context.Context, from domain.PlayerID, info domain.CallInfo) error {
	m.mu.Lock()
	if m.state != events.Idle {
		state := m.state
		m.mu.Unlock()
		log.Info().Str("module", "client.signaling").Str("from", string(from)).Str("state", state.String()).Msg("busy, declining")
		if err := m.d.Signaler.SendCallDeclined(ctx, info.CallerID, info); err != nil {
			log.Warn().Err(err).Str("module", "client.signaling").Msg("send busy decline")
		}
		return fmt.Errorf("incoming %s: %w: already %s", info.ChannelID, domain.ErrPrecondition, state)
	}
	m.incoming = &info
	m.transitionLocked(events.Ringing, info.ChannelID)
	m.emit(func() { events.Publish(m.d.Bus, events.IncomingCall{Info: info}) })
	m.unlock()
	log.Info().Str("module", "client.signaling").Str("from", string(from)).Str("call", string(info.ChannelID)).Msg("ringing")
	return nil
}

// Cancel withdraws the outgoing call. Only the caller may cancel.
func (m *Machine) Cancel(ctx context.Context) error {
	self := m.d.Session.LocalPlayer().ID
	m.mu.Lock()
	if m.state != events.Calling || m.current == nil || m.current.CallerID != self {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("cancel: %w: %s", domain.ErrPrecondition, state)
	}
	info := *m.current
	m.endLocked(info)
	m.unlock()

	err := m.d.Signaler.SendCallCanceled(ctx, lo.Without(info.Members, self), info)
	if rmErr := m.d.Registry.RemoveCall(ctx, info.ChannelID); rmErr != nil {
		err = errors.Join(err, rmErr)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "client.signaling").Str("call", string(info.ChannelID)).Msg("cancel")
		return fmt.Errorf("cancel %s: %w", info.ChannelID, err)
	}
	return nil
}

// OnCallCanceled ends a matching incoming call. Anything else is stale.
func (m *Machine) OnCallCanceled(info domain.CallInfo) {
	m.mu.Lock()
	if m.state == events.Ringing && m.incoming != nil && m.incoming.ChannelID == info.ChannelID {
		m.endIncomingLocked()
	}
	m.unlock()
}

// Decline rejects the incoming call and tells the caller.
func (m *Machine) Decline(ctx context.Context) error {
	m.mu.Lock()
	if m.state != events.Ringing || m.incoming == nil {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("decline: %w: %s", domain.ErrPrecondition, state)
	}
	info := *m.incoming
	m.endIncomingLocked()
	m.unlock()

	if err := m.d.Signaler.SendCallDeclined(ctx, info.CallerID, info); err != nil {
		log.Warn().Err(err).Str("module", "client.signaling").Str("call", string(info.ChannelID)).Msg("send declined")
		return fmt.Errorf("decline %s: %w", info.ChannelID, err)
	}
	return nil
}

// OnCallDeclined counts a decline of the outgoing call. A private call ends
// on the first decline; a group call once every other member has declined.
// Once the caller is in the call, declines no longer matter.
func (m *Machine) OnCallDeclined(ctx context.Context, from domain.PlayerID, info domain.CallInfo) error {
	m.mu.Lock()
	if m.state != events.Calling || m.current == nil || m.current.ChannelID != info.ChannelID {
		m.mu.Unlock()
		return nil
	}
	ended, teardown := m.declineLocked(from)
	m.unlock()
	if teardown {
		log.Info().Str("module", "client.signaling").Str("call", string(ended.ChannelID)).Msg("declined by everyone")
		return m.d.Registry.RemoveCall(ctx, ended.ChannelID)
	}
	return nil
}

func (m *Machine) declineLocked(from domain.PlayerID) (domain.CallInfo, bool) {
	info := *m.current
	if from == info.CallerID || !lo.Contains(info.Members, from) {
		return info, false
	}
	if !info.IsPrivate() {
		if m.declined == nil {
			m.declined = make(map[domain.PlayerID]struct{})
		}
		m.declined[from] = struct{}{}
		if len(m.declined) < len(info.Members)-1 {
			return info, false
		}
	}
	m.endLocked(info)
	return info, true
}

// Accept answers the incoming call and joins it.
func (m *Machine) Accept(ctx context.Context) error {
	m.mu.Lock()
	if m.state != events.Ringing || m.incoming == nil {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("accept: %w: %s", domain.ErrPrecondition, state)
	}
	info := *m.incoming
	m.incoming = nil
	m.current = &info
	m.emit(func() { events.Publish(m.d.Bus, events.IncomingCallEnded{Info: info}) })
	epoch := m.epoch
	m.unlock()

	if err := m.d.Signaler.SendCallAccepted(ctx, info.CallerID, info); err != nil {
		log.Error().Err(err).Str("module", "client.signaling").Str("call", string(info.ChannelID)).Msg("send accepted")
		m.abort(epoch, info)
		return fmt.Errorf("accept %s: %w", info.ChannelID, err)
	}
	return m.enterCall(ctx, info)
}

// OnCallAccepted joins the caller as soon as any member accepts.
func (m *Machine) OnCallAccepted(ctx context.Context, from domain.PlayerID, info domain.CallInfo) error {
	m.mu.Lock()
	if m.state != events.Calling || m.current == nil || m.current.ChannelID != info.ChannelID {
		m.mu.Unlock()
		return nil
	}
	current := *m.current
	m.mu.Unlock()
	log.Info().Str("module", "client.signaling").Str("from", string(from)).Str("call", string(info.ChannelID)).Msg("accepted")
	return m.enterCall(ctx, current)
}

// enterCall moves into the call's voice channel. The global channel is muted
// rather than left; any other channel is left first.
func (m *Machine) enterCall(ctx context.Context, info domain.CallInfo) error {
	ch := m.d.Channels.VoiceChannel(info.ChannelID, info.ChannelName, info.CallerID, info.Members)
	prev := m.d.Channels.CurrentChannel()

	m.mu.Lock()
	if prev != nil && prev.ID == info.ChannelID && m.d.Channels.ChannelExists(info.ChannelID) {
		if m.state != events.InCall {
			m.transitionLocked(events.InCall, info.ChannelID)
			m.affordanceLocked(info.TextChannelID, events.AffordanceInCall)
		}
		m.unlock()
		return nil
	}
	m.transitionLocked(events.InCall, info.ChannelID)
	epoch := m.epoch
	m.unlock()

	if prev != nil && prev.ID != info.ChannelID {
		if prev.IsGlobal() {
			m.d.Channels.MuteGlobalChannel()
		} else if err := m.d.Channels.Leave(ctx, prev); err != nil {
			log.Warn().Err(err).Str("module", "client.signaling").Str("channel", string(prev.ID)).Msg("leave previous channel")
		}
	}
	m.d.Channels.SetCurrentChannel(ch)

	err := m.d.Channels.Join(ctx, ch, domain.NonPositional, domain.ConnectFlags{Audio: true, SwitchTransmission: true})

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		if err == nil {
			if lErr := m.d.Channels.Leave(ctx, ch); lErr != nil {
				log.Warn().Err(lErr).Str("module", "client.signaling").Str("channel", string(ch.ID)).Msg("roll back join")
			}
		}
		return fmt.Errorf("enter %s: %w", info.ChannelID, domain.ErrCallSuperseded)
	}
	if err != nil {
		m.endLocked(info)
		m.unlock()
		log.Error().Err(err).Str("module", "client.signaling").Str("call", string(info.ChannelID)).Msg("join call")
		m.restore(prev)
		return fmt.Errorf("enter %s: %w", info.ChannelID, err)
	}
	if _, ok := m.d.Lookup.Call(info.ChannelID); !ok {
		m.endLocked(info)
		m.unlock()
		log.Info().Str("module", "client.signaling").Str("call", string(info.ChannelID)).Msg("call ended while joining")
		if lErr := m.d.Channels.Leave(ctx, ch); lErr != nil {
			log.Warn().Err(lErr).Str("module", "client.signaling").Str("channel", string(ch.ID)).Msg("leave ended call")
		}
		m.restore(nil)
		return fmt.Errorf("enter %s: %w", info.ChannelID, domain.ErrCallNotFound)
	}
	m.affordanceLocked(info.TextChannelID, events.AffordanceInCall)
	m.unlock()
	log.Info().Str("module", "client.signaling").Str("call", string(info.ChannelID)).Msg("in call")
	return nil
}

// restore puts the channel state back after a failed join. A non-global
// previous channel was already left, so the player falls back to global.
func (m *Machine) restore(prev *domain.ChatChannel) {
	if prev != nil && !prev.IsGlobal() && m.d.Channels.ChannelExists(prev.ID) {
		m.d.Channels.SetCurrentChannel(prev)
		return
	}
	if g := m.d.Channels.GlobalChannel(); g != nil {
		m.d.Channels.SetCurrentChannel(g)
		m.d.Channels.UnmuteGlobalChannel()
	}
}

// LeaveCall hangs up, returns to the global channel and unmutes it.
func (m *Machine) LeaveCall(ctx context.Context) error {
	m.mu.Lock()
	if m.state != events.InCall || m.current == nil {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("leave call: %w: %s", domain.ErrPrecondition, state)
	}
	info := *m.current
	m.endLocked(info)
	m.unlock()

	var err error
	if cur := m.d.Channels.CurrentChannel(); cur != nil && !cur.IsGlobal() {
		err = m.d.Channels.Leave(ctx, cur)
	}
	if g := m.d.Channels.GlobalChannel(); g != nil {
		m.d.Channels.SetCurrentChannel(g)
		m.d.Channels.UnmuteGlobalChannel()
	}
	log.Info().Str("module", "client.signaling").Str("call", string(info.ChannelID)).Msg("left call")
	if err != nil {
		return fmt.Errorf("leave call %s: %w", info.ChannelID, err)
	}
	return nil
}

func (m *Machine) onCallChanged(ev events.VoiceCallChanged) {
	self := m.d.Session.LocalPlayer().ID

	m.mu.Lock()
	var leave bool
	switch {
	case m.state == events.Ringing && m.incoming != nil && m.incoming.ChannelID == ev.ID:
		if ev.Op == replica.OpRemove {
			m.endIncomingLocked()
		}
	case m.current == nil || m.current.ChannelID != ev.ID:
	case m.state == events.Calling && ev.Op == replica.OpRemove:
		log.Info().Str("module", "client.signaling").Str("call", string(ev.ID)).Msg("call removed while ringing out")
		m.endLocked(*m.current)
	case m.state == events.InCall && ev.Op == replica.OpRemove:
		leave = true
	case m.state == events.InCall && ev.Op == replica.OpSet && m.current.IsPrivate():
		c := ev.Call
		if c.LastModifiedID != self && !c.LastOperationWasAdd && len(c.Participants) == 1 && c.HasParticipant(self) {
			leave = true
		}
	}
	m.unlock()

	if leave {
		ctx, cancel := context.WithTimeout(context.Background(), m.d.Timeout)
		defer cancel()
		if err := m.LeaveCall(ctx); err != nil && !errors.Is(err, domain.ErrPrecondition) {
			log.Warn().Err(err).Str("module", "client.signaling").Str("call", string(ev.ID)).Msg("passive leave")
		}
	}
}

// onPlayerDisconnected counts a member that went away while the call rings
// as a decline.
func (m *Machine) onPlayerDisconnected(ev events.PlayerDisconnected) {
	m.mu.Lock()
	if m.state != events.Calling || m.current == nil {
		m.mu.Unlock()
		return
	}
	ended, teardown := m.declineLocked(ev.ID)
	m.unlock()
	if teardown {
		log.Info().Str("module", "client.signaling").Str("player", string(ev.ID)).Msg("last pending member went offline")
		m.removeCall(ended.ChannelID)
	}
}

func (m *Machine) removeCall(id domain.ChannelID) {
	ctx, cancel := context.WithTimeout(context.Background(), m.d.Timeout)
	defer cancel()
	if err := m.d.Registry.RemoveCall(ctx, id); err != nil {
		log.Warn().Err(err).Str("module", "client.signaling").Str("call", string(id)).Msg("remove call")
	}
}
