package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrRegistryFull is returned by Register when MaxSessions is reached
	ErrRegistryFull = errors.New("maximum sessions reached")
	// ErrRegistryClosed is returned by Register after Shutdown
	ErrRegistryClosed = errors.New("registry is shut down")
)

// RegistryConfig configures a Registry
type RegistryConfig struct {
	// MaxSessions caps concurrent sessions; zero means unlimited.
	MaxSessions int
	Session     Options
	// Presence is optional.
	Presence Presence
	Logger   *zerolog.Logger
	// NewID overrides id generation in tests.
	NewID func() string
}

// Registry holds every connected session. It is the only shared mutable
// state of the hub; all methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	maxSessions int
	opts        Options
	presence    Presence
	newID       func() string
	logger      zerolog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		sessions:    make(map[string]*Session),
		maxSessions: cfg.MaxSessions,
		opts:        cfg.Session,
		presence:    cfg.Presence,
		newID:       cfg.NewID,
		logger:      zerolog.Nop(),
	}
	if r.presence == nil {
		r.presence = nopPresence{}
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	if cfg.Logger != nil {
		r.logger = cfg.Logger.With().Str("component", "registry").Logger()
	}
	return r
}

// Register creates a session for conn under a fresh id and inserts it.
// prepare, if set, runs before the session becomes visible to All, so
// anything it queues reaches the client ahead of any broadcast. It must not
// call back into the registry.
func (r *Registry) Register(conn Conn, prepare func(*Session)) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		return nil, ErrRegistryFull
	}

	id := r.newID()
	for _, taken := r.sessions[id]; taken; _, taken = r.sessions[id] {
		id = r.newID()
	}

	s := newSession(id, conn, r.opts, r.logger.With().Str("sid", id).Logger())
	if prepare != nil {
		prepare(s)
	}
	r.sessions[id] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.presence.Joined(context.Background(), id, s.Language(), s.CreatedAt)
	r.logger.Info().Str("sid", id).Int("sessions", count).Msg("session registered")
	return s, nil
}

// Get retrieves a session by id
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Remove evicts a session. Removing an absent id is a no-op that reports false.
// Remove does not close the session.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	r.presence.Left(context.Background(), id)
	r.logger.Info().Str("sid", id).Int("sessions", count).Msg("session removed")
	return s, true
}

// SetLanguage updates a session's language. It reports false, changing
// nothing, when the session is gone.
func (r *Registry) SetLanguage(id string, lang Language) bool {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	s.setLanguage(lang)
	r.presence.LanguageChanged(context.Background(), id, lang)
	r.logger.Info().Str("sid", id).Str("language", string(lang)).Msg("language changed")
	return true
}

// All returns a snapshot of the live sessions in no particular order
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns current session count
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stale returns sessions not seen since cutoff
func (r *Registry) Stale(cutoff time.Time) []*Session {
	var out []*Session
	for _, s := range r.All() {
		if s.LastSeen().Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// Refresh extends presence records of every live session.
func (r *Registry) Refresh(ctx context.Context) {
	sessions := r.All()
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	r.presence.Refresh(ctx, ids)
}

// Shutdown closes all sessions and the presence mirror. Later Register
// calls fail with ErrRegistryClosed.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	ids := make([]string, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		ids = append(ids, id)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	// Each close may wait on a stuck writer, so they run side by side.
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Close()
		}()
	}
	wg.Wait()

	if len(ids) > 0 {
		r.presence.Left(context.Background(), ids...)
	}
	if err := r.presence.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("presence close")
	}
}
