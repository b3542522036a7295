package storage

import (
	"context"
	"time"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/replica"
	"github.com/rs/zerolog/log"
)

type callEvent struct {
	op   replica.Op
	id   domain.ChannelID
	call domain.VoiceCall
	at   time.Time
}

// Recorder copies call map changes into a CallLog off the publishing path.
type Recorder struct {
	log    *CallLog
	events chan callEvent
}

func NewRecorder(l *CallLog, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{log: l, events: make(chan callEvent, buffer)}
}

type callSource interface {
	Subscribe(replica.Handler[domain.ChannelID, domain.VoiceCall]) (cancel func())
}

// Attach subscribes to calls. Events that do not fit the buffer are dropped.
func (r *Recorder) Attach(calls callSource) (cancel func()) {
	return calls.Subscribe(func(op replica.Op, id domain.ChannelID, call domain.VoiceCall) {
		select {
		case r.events <- callEvent{op: op, id: id, call: call, at: time.Now()}:
		default:
			log.Warn().Str("module", "storage.recorder").Str("call", string(id)).Msg("history buffer full, event dropped")
		}
	})
}

// Run writes events until ctx is done.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "storage.recorder").Msg("recorder ctx done")
			return
		case e := <-r.events:
			if err := r.write(ctx, e); err != nil {
				log.Error().Err(err).Str("module", "storage.recorder").Str("call", string(e.id)).Msg("write history")
			}
		}
	}
}

func (r *Recorder) write(ctx context.Context, e callEvent) error {
	switch e.op {
	case replica.OpAdd:
		return r.log.Started(ctx, e.call, e.at)
	case replica.OpSet:
		return r.log.Joined(ctx, e.call, e.at)
	case replica.OpRemove:
		return r.log.Ended(ctx, e.id, e.at)
	}
	return nil
}
