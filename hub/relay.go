package hub

import (
	"github.com/room4-2/callbridge/messages"

	"github.com/rs/zerolog"
)

// Relay forwards signaling messages between peers without interpreting them.
type Relay struct {
	broadcaster *Broadcaster
	logger      zerolog.Logger
}

func NewRelay(broadcaster *Broadcaster, logger *zerolog.Logger) *Relay {
	return &Relay{
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "relay").Logger(),
	}
}

// Relay sends the frame, byte for byte, to every session but the sender.
func (r *Relay) Relay(senderID string, frame messages.Frame) int {
	n := r.broadcaster.BroadcastRaw(frame.Data, senderID)
	r.logger.Debug().
		Str("sid", senderID).
		Str("type", frame.Type).
		Int("recipients", n).
		Msg("relayed")
	return n
}

// NotifyDisconnect tells every remaining session that clientID left.
func (r *Relay) NotifyDisconnect(clientID string) int {
	return r.broadcaster.Broadcast(messages.NewClientDisconnected(clientID), "")
}
