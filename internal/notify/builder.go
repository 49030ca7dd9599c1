package notify

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

// Deps are the shared resources dependency-aware channels receive.
type Deps struct {
	Recorder Recorder
	NATS     *nats.Conn
}

type switchable interface {
	SetEnabled(enabled bool)
}

// Build creates a channel per configuration entry. Entries with an unknown
// type or an Init error are logged and treated as disabled.
func Build(cfgs []model.AlertChannel, deps Deps) []Channel {
	channels := make([]Channel, 0, len(cfgs))
	for _, cfg := range cfgs {
		ch, ok := Create(cfg.Type)
		if !ok {
			log.Warn().Str("channel_id", cfg.ID).Str("channel_type", string(cfg.Type)).Msg("unknown channel type, skipped")
			continue
		}

		if ra, ok := ch.(RecorderAware); ok && deps.Recorder != nil {
			ra.SetRecorder(deps.Recorder)
		}
		if na, ok := ch.(NATSAware); ok && deps.NATS != nil {
			na.SetNATSConnection(deps.NATS)
		}

		if err := ch.Init(cfg); err != nil {
			log.Warn().Err(err).Str("channel_id", cfg.ID).Str("channel_type", string(cfg.Type)).Msg("channel init failed, treated as disabled")
			disable(ch)
		}
		channels = append(channels, ch)
	}
	return channels
}

// StartAll starts every enabled channel. A channel that fails to start is
// disabled.
func StartAll(ctx context.Context, channels []Channel) {
	for _, ch := range channels {
		if !ch.Enabled() {
			continue
		}
		if err := ch.Start(ctx); err != nil {
			log.Warn().Err(err).Str("channel_id", ch.ID()).Str("channel_type", string(ch.Type())).Msg("channel start failed, disabled")
			disable(ch)
		}
	}
}

// StopAll stops every channel, logging errors.
func StopAll(channels []Channel) {
	for _, ch := range channels {
		if err := ch.Stop(); err != nil {
			log.Warn().Err(err).Str("channel_id", ch.ID()).Msg("channel stop failed")
		}
	}
}

func disable(ch Channel) {
	if s, ok := ch.(switchable); ok {
		s.SetEnabled(false)
	}
}
