package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/room4-2/callbridge/config"
	"github.com/room4-2/callbridge/hub"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// RootText is served on GET / for plain HTTP requests
const RootText = "Call translation hub is running!"

type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *hub.Hub
	config     *config.Config
	logger     zerolog.Logger
}

func NewServerWebsocket(cfg *config.Config, h *hub.Hub, logger *zerolog.Logger) (*Server, error) {
	s := &Server{
		hub:    h,
		config: cfg,
		logger: logger.With().Str("component", "server").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    64 * 1024, // 64KB for audio chunks
			WriteBufferSize:   64 * 1024,
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
			},
		},
	}

	engine, err := s.router()
	if err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: engine,
		// No ReadTimeout/WriteTimeout: they interfere with long-lived WebSocket
		// connections, which manage their own deadlines.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func originAllowed(allowed []string, origin string) bool {
	return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

func (s *Server) router() (*gin.Engine, error) {
	gin.SetMode(s.config.Mode)

	corsConfig := cors.DefaultConfig()
	if slices.Contains(s.config.AllowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.config.AllowedOrigins
	}
	if err := corsConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ALLOWED_ORIGINS: %w", err)
	}

	r := gin.New()
	if s.config.Mode == gin.DebugMode {
		r.Use(s.requestLogger())
	}
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig))

	r.GET("/", func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			s.handleWebSocket(c)
			return
		}
		c.String(http.StatusOK, RootText)
	})
	r.GET("/ws", s.handleWebSocket)
	r.GET("/health", s.handleHealth)
	return r, nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// Handler exposes the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for connections. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, then closes every session. An
// upgrade still in flight is refused by the closed registry.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")
	err := s.httpServer.Shutdown(ctx)
	s.hub.Shutdown()
	return err
}

func (s *Server) handleWebSocket(c *gin.Context) {
	// Upgrade writes the HTTP error response itself.
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", c.ClientIP()).Msg("websocket upgrade failed")
		return
	}
	s.logger.Debug().Str("remote", c.ClientIP()).Msg("websocket connected")

	// Serve blocks until the client is gone.
	if err := s.hub.Serve(conn); err != nil {
		s.logger.Warn().Err(err).Str("remote", c.ClientIP()).Msg("connection refused")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.hub.Registry().Count(),
	})
}
