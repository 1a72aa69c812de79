package hub

import (
	"context"
	"errors"
	"time"

	"github.com/room4-2/callbridge/messages"
	"github.com/room4-2/callbridge/session"
	"github.com/room4-2/callbridge/translation"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const rejectTimeout = time.Second

// Config holds the hub's collaborators and limits
type Config struct {
	Registry   *session.Registry
	Translator translation.Service

	TranslationTimeout time.Duration
	MaxConcurrent      int64
	// SessionTimeout closes sessions idle for longer; zero disables the reaper.
	SessionTimeout time.Duration

	Logger *zerolog.Logger
}

// Hub wires the registry, router, relay and pipeline together and owns the
// lifecycle of each connection.
type Hub struct {
	registry    *session.Registry
	broadcaster *Broadcaster
	relay       *Relay
	pipeline    *Pipeline
	router      *Router

	sessionTimeout time.Duration
	logger         zerolog.Logger
}

// New creates a hub
func New(cfg Config) *Hub {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	broadcaster := NewBroadcaster(cfg.Registry, &logger)
	relay := NewRelay(broadcaster, &logger)
	pipeline := NewPipeline(PipelineConfig{
		Translator:    cfg.Translator,
		Timeout:       cfg.TranslationTimeout,
		MaxConcurrent: cfg.MaxConcurrent,
	}, cfg.Registry, broadcaster, &logger)

	return &Hub{
		registry:       cfg.Registry,
		broadcaster:    broadcaster,
		relay:          relay,
		pipeline:       pipeline,
		router:         NewRouter(cfg.Registry, relay, pipeline, &logger),
		sessionTimeout: cfg.SessionTimeout,
		logger:         logger.With().Str("component", "hub").Logger(),
	}
}

// Registry exposes the session registry
func (h *Hub) Registry() *session.Registry { return h.registry }

// Broadcaster exposes the broadcast primitive
func (h *Hub) Broadcaster() *Broadcaster { return h.broadcaster }

// Serve runs one client connection until it ends. The client receives its
// assign-id before anything else. Serve returns ErrRegistryFull or
// ErrRegistryClosed when the connection was refused; a normal disconnect
// returns nil.
func (h *Hub) Serve(conn session.Conn) error {
	s, err := h.registry.Register(conn, func(s *session.Session) {
		data, err := messages.Marshal(messages.NewAssignID(s.ID))
		if err != nil {
			h.logger.Error().Err(err).Str("sid", s.ID).Msg("encode assign-id")
			return
		}
		_ = s.Send(data)
	})
	if err != nil {
		h.reject(conn, err)
		return err
	}

	s.Start()
	h.pipeline.Attach(s)

	err = s.ReadLoop(func(messageType int, data []byte) {
		h.router.Route(s.ID, messages.Classify(messageType, data))
	})
	h.logReadError(s.ID, err)
	h.Disconnect(s.ID)
	return nil
}

// Disconnect removes and closes a session and tells the others it left.
// Repeated calls for the same id notify nobody.
func (h *Hub) Disconnect(id string) {
	s, ok := h.registry.Remove(id)
	if !ok {
		return
	}
	_ = s.Close()
	n := h.relay.NotifyDisconnect(id)
	h.logger.Info().Str("sid", id).Int("notified", n).Msg("client disconnected")
}

func (h *Hub) reject(conn session.Conn, reason error) {
	h.logger.Warn().Err(reason).Msg("rejecting connection")
	text, code := messages.ErrTextSessionRejected, websocket.CloseTryAgainLater
	if errors.Is(reason, session.ErrRegistryClosed) {
		text, code = messages.ErrTextShuttingDown, websocket.CloseServiceRestart
	}
	if data, err := messages.Marshal(messages.NewErrorMessage(text)); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(rejectTimeout))
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason.Error()),
		time.Now().Add(rejectTimeout),
	)
	_ = conn.Close()
}

func (h *Hub) logReadError(id string, err error) {
	switch {
	case err == nil:
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		h.logger.Debug().Str("sid", id).Msg("client closed connection")
	case errors.Is(err, websocket.ErrReadLimit):
		h.logger.Warn().Err(err).Str("sid", id).Msg("frame too large")
	default:
		h.logger.Warn().Err(err).Str("sid", id).Msg("read error")
	}
}

// RunReaper closes sessions idle past the session timeout and refreshes
// presence records every interval, until ctx is done.
func (h *Hub) RunReaper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.reap(ctx)
		}
	}
}

func (h *Hub) reap(ctx context.Context) {
	if h.sessionTimeout > 0 {
		for _, s := range h.registry.Stale(time.Now().Add(-h.sessionTimeout)) {
			h.logger.Info().Str("sid", s.ID).Time("last_seen", s.LastSeen()).Msg("closing idle session")
			// The read loop fails and runs Disconnect.
			_ = s.Close()
		}
	}
	h.registry.Refresh(ctx)
}

// Shutdown stops translations and closes every session.
func (h *Hub) Shutdown() {
	h.pipeline.Stop()
	h.registry.Shutdown()
}
