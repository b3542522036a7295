package signaling

import (
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/events"
	"github.com/dkeye/voicesync/internal/replica"
)

// emit queues fn to run after the lock is released.
func (m *Machine) emit(fn func()) {
	m.outbox = append(m.outbox, fn)
}

// unlock releases the lock and then publishes what the transition queued.
func (m *Machine) unlock() {
	out := m.outbox
	m.outbox = nil
	m.mu.Unlock()
	for _, fn := range out {
		fn()
	}
}

func (m *Machine) transitionLocked(to events.CallState, ch domain.ChannelID) {
	from := m.state
	m.state = to
	m.epoch++
	if to == events.Idle {
		m.stopWatchLocked()
	} else {
		m.startWatchLocked()
	}
	if from != to {
		m.emit(func() { events.Publish(m.d.Bus, events.CallStateChanged{From: from, To: to, Channel: ch}) })
	}
}

func (m *Machine) affordanceLocked(text domain.ChannelID, a events.Affordance) {
	m.emit(func() { events.Publish(m.d.Bus, events.CallAffordance{TextChannelID: text, State: a}) })
}

// endLocked closes the current call cycle.
func (m *Machine) endLocked(info domain.CallInfo) {
	m.current = nil
	m.declined = nil
	m.transitionLocked(events.Idle, info.ChannelID)
	m.affordanceLocked(info.TextChannelID, events.AffordanceDefault)
}

func (m *Machine) endIncomingLocked() {
	info := *m.incoming
	m.incoming = nil
	m.transitionLocked(events.Idle, info.ChannelID)
	m.emit(func() { events.Publish(m.d.Bus, events.IncomingCallEnded{Info: info}) })
}

func (m *Machine) startWatchLocked() {
	if m.watch != nil {
		return
	}
	stopCalls := events.Subscribe(m.d.Bus, m.onCallChanged)
	stopPlayers := events.Subscribe(m.d.Bus, m.onPlayerDisconnected)
	m.watch = func() {
		stopCalls()
		stopPlayers()
	}
}

func (m *Machine) stopWatchLocked() {
	if m.watch != nil {
		m.watch()
		m.watch = nil
	}
}

// Watching reports whether the machine listens to call and presence changes.
func (m *Machine) Watching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watch != nil
}

// WatchCalls republishes the call mirror on bus as VoiceCallChanged, dropping
// a notification identical to the one before it.
func WatchCalls(calls *replica.Map[domain.ChannelID, domain.VoiceCall], bus *events.Bus) (cancel func()) {
	f := &replica.Filter[replica.CallbackInfo]{}
	return calls.Subscribe(replica.Dedup(f, replica.CallKey, func(op replica.Op, id domain.ChannelID, call domain.VoiceCall) {
		events.Publish(bus, events.VoiceCallChanged{Op: op, ID: id, Call: call})
	}))
}
