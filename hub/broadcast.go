package hub

import (
	"errors"

	"github.com/room4-2/callbridge/messages"
	"github.com/room4-2/callbridge/session"

	"github.com/rs/zerolog"
)

// Broadcaster delivers encoded messages to sessions in the registry.
type Broadcaster struct {
	registry *session.Registry
	logger   zerolog.Logger
}

func NewBroadcaster(registry *session.Registry, logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		logger:   logger.With().Str("component", "broadcast").Logger(),
	}
}

// Broadcast encodes msg once and delivers it to every open session except
// excludeID (pass "" to exclude nobody). It returns the number of sessions
// the message was queued for.
func (b *Broadcaster) Broadcast(msg any, excludeID string) int {
	data, err := messages.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Msg("encode broadcast")
		return 0
	}
	return b.BroadcastRaw(data, excludeID)
}

// BroadcastRaw is Broadcast for an already encoded message.
func (b *Broadcaster) BroadcastRaw(data []byte, excludeID string) int {
	sent := 0
	for _, s := range b.registry.All() {
		if s.ID == excludeID {
			continue
		}
		if b.deliver(s, data) {
			sent++
		}
	}
	return sent
}

// SendTo delivers msg to a single session.
func (b *Broadcaster) SendTo(id string, msg any) error {
	s, ok := b.registry.Get(id)
	if !ok {
		return session.ErrClosed
	}
	data, err := messages.Marshal(msg)
	if err != nil {
		return err
	}
	if !b.deliver(s, data) {
		return session.ErrClosed
	}
	return nil
}

// deliver skips closed sessions silently. A session whose write queue is
// full is closed in the background, since its close frame can wait on the
// stuck writer; its read loop then runs the normal disconnect path.
func (b *Broadcaster) deliver(s *session.Session, data []byte) bool {
	err := s.Send(data)
	switch {
	case err == nil:
		return true
	case errors.Is(err, session.ErrBackpressure):
		b.logger.Warn().Str("sid", s.ID).Msg("client is not draining its queue, closing")
		go s.Close()
	}
	return false
}
