package hub

import (
	"github.com/room4-2/callbridge/messages"
	"github.com/room4-2/callbridge/session"

	"github.com/rs/zerolog"
)

// Router dispatches classified frames. It keeps no state of its own.
type Router struct {
	registry *session.Registry
	relay    *Relay
	pipeline *Pipeline
	logger   zerolog.Logger
}

func NewRouter(registry *session.Registry, relay *Relay, pipeline *Pipeline, logger *zerolog.Logger) *Router {
	return &Router{
		registry: registry,
		relay:    relay,
		pipeline: pipeline,
		logger:   logger.With().Str("component", "router").Logger(),
	}
}

// Route handles one frame from senderID. No frame, however malformed, ends
// the connection.
func (rt *Router) Route(senderID string, frame messages.Frame) {
	switch frame.Kind {
	case messages.KindAudio:
		rt.logger.Trace().Str("sid", senderID).Int("bytes", len(frame.Data)).Msg("audio chunk")
		rt.pipeline.HandleAudio(senderID, frame.Data)
	case messages.KindControl:
		rt.routeControl(senderID, frame)
	default:
		rt.logger.Warn().Str("sid", senderID).Int("bytes", len(frame.Data)).Msg("discarding malformed frame")
	}
}

func (rt *Router) routeControl(senderID string, frame messages.Frame) {
	switch frame.Type {
	case messages.TypeWebRTCOffer, messages.TypeWebRTCAnswer, messages.TypeWebRTCICECandidate:
		rt.relay.Relay(senderID, frame)
	case messages.TypeLanguageToggle:
		rt.toggleLanguage(senderID, frame.Data)
	default:
		rt.logger.Warn().Str("sid", senderID).Str("type", frame.Type).Msg("unknown message type")
	}
}

func (rt *Router) toggleLanguage(senderID string, data []byte) {
	code, err := messages.DecodeLanguageToggle(data)
	if err != nil {
		rt.logger.Warn().Err(err).Str("sid", senderID).Msg("bad language-toggle")
		return
	}
	lang, err := session.ParseLanguage(code)
	if err != nil {
		rt.logger.Warn().Err(err).Str("sid", senderID).Msg("bad language-toggle")
		return
	}
	if !rt.registry.SetLanguage(senderID, lang) {
		rt.logger.Debug().Str("sid", senderID).Msg("language-toggle for departed session")
	}
}
