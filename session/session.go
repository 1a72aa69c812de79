package session

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	closeTimeout    = time.Second
)

var (
	// ErrClosed is returned when sending to a session that already closed.
	ErrClosed = errors.New("session closed")
	// ErrBackpressure is returned when a client does not drain its queue.
	ErrBackpressure = errors.New("session write queue full")
)

// Options tunes per-connection behaviour.
type Options struct {
	// KeepAlivePeriod is the ping interval. The read deadline is set to one
	// and a half periods, so a client that misses a pong is dropped.
	KeepAlivePeriod time.Duration
	// ReadLimit caps a single inbound frame in bytes.
	ReadLimit int64
	// AudioQueueChunks and AudioQueueBytes bound pending audio per sender.
	AudioQueueChunks int
	AudioQueueBytes  int
}

// Session represents a single client's connection
type Session struct {
	ID        string
	CreatedAt time.Time
	Audio     *AudioQueue

	conn   Conn
	opts   Options
	logger zerolog.Logger

	// Use channels for non-blocking writes
	writeChan chan []byte

	mu        sync.RWMutex
	language  Language
	lastSeen  time.Time
	closed    bool
	CloseChan chan struct{}
}

func newSession(id string, conn Conn, opts Options, logger zerolog.Logger) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		Audio:     NewAudioQueue(opts.AudioQueueChunks, opts.AudioQueueBytes),
		conn:      conn,
		opts:      opts,
		logger:    logger,
		writeChan: make(chan []byte, writeBufferSize),
		language:  DefaultLanguage,
		lastSeen:  now,
		CloseChan: make(chan struct{}),
	}
}

// Language returns the language the client currently speaks
func (s *Session) Language() Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

func (s *Session) setLanguage(l Language) {
	s.mu.Lock()
	s.language = l
	s.mu.Unlock()
}

// LastSeen is the time of the last frame or pong from the client
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// IsClosed returns whether the session is closed
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Send queues an encoded message for the client without blocking.
func (s *Session) Send(data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.writeChan <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Start launches the write pump. Messages queued before Start are delivered
// first, in order.
func (s *Session) Start() {
	go s.writePump()
}

// writePump handles all outgoing messages and keepalive pings in a single goroutine
func (s *Session) writePump() {
	var ping <-chan time.Time
	if s.opts.KeepAlivePeriod > 0 {
		ticker := time.NewTicker(s.opts.KeepAlivePeriod)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-s.CloseChan:
			return
		case msg := <-s.writeChan:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				s.logger.Debug().Err(err).Msg("set write deadline")
				_ = s.Close()
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debug().Err(err).Msg("write failed")
				_ = s.Close()
				return
			}
		case <-ping:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				s.logger.Debug().Err(err).Msg("ping failed")
				_ = s.Close()
				return
			}
		}
	}
}

func (s *Session) pongWait() time.Duration {
	return s.opts.KeepAlivePeriod + s.opts.KeepAlivePeriod/2
}

// ReadLoop reads frames until the connection fails or is closed and hands each
// one to handle on the calling goroutine. The returned error is the transport
// error that ended the loop.
func (s *Session) ReadLoop(handle func(messageType int, data []byte)) error {
	if s.opts.ReadLimit > 0 {
		s.conn.SetReadLimit(s.opts.ReadLimit)
	}
	wait := s.pongWait()
	extend := func() error {
		s.touch()
		if wait <= 0 {
			return nil
		}
		return s.conn.SetReadDeadline(time.Now().Add(wait))
	}
	s.conn.SetPongHandler(func(string) error {
		return extend()
	})
	if err := extend(); err != nil {
		return err
	}

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := extend(); err != nil {
			return err
		}
		handle(messageType, data)
	}
}

// Close terminates the session and releases the connection. Safe to call
// more than once and from any goroutine.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.CloseChan)
	s.mu.Unlock()

	s.Audio.Clear()

	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeTimeout),
	)
	return s.conn.Close()
}
