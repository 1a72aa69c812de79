package session

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/room4-2/callbridge/session/sessiontest"

	"github.com/stretchr/testify/require"
)

type recordingPresence struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPresence) add(e string) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPresence) Joined(_ context.Context, id string, lang Language, _ time.Time) {
	p.add("join " + id + " " + string(lang))
}
func (p *recordingPresence) LanguageChanged(_ context.Context, id string, lang Language) {
	p.add("lang " + id + " " + string(lang))
}
func (p *recordingPresence) Left(_ context.Context, ids ...string) {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	p.add("left " + strings.Join(ids, " "))
}
func (p *recordingPresence) Refresh(context.Context, []string) {}
func (p *recordingPresence) Close() error                      { p.add("close"); return nil }

func (p *recordingPresence) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func sequenceIDs(ids ...string) func() string {
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		ids = ids[1:]
		return id
	}
}

func TestRegistryRegisterAndRemove(t *testing.T) {
	r := NewRegistry(RegistryConfig{})

	s, err := r.Register(sessiontest.NewConn(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.Equal(t, DefaultLanguage, s.Language())

	got, ok := r.Get(s.ID)
	require.True(t, ok)
	require.Same(t, s, got)
	require.Equal(t, 1, r.Count())

	removed, ok := r.Remove(s.ID)
	require.True(t, ok)
	require.Same(t, s, removed)

	_, ok = r.Remove(s.ID)
	require.False(t, ok)
	_, ok = r.Get(s.ID)
	require.False(t, ok)
	require.Zero(t, r.Count())
}

func TestRegistrySkipsTakenIDs(t *testing.T) {
	r := NewRegistry(RegistryConfig{NewID: sequenceIDs("a", "a", "b")})

	first, err := r.Register(sessiontest.NewConn(), nil)
	require.NoError(t, err)
	second, err := r.Register(sessiontest.NewConn(), nil)
	require.NoError(t, err)

	require.Equal(t, "a", first.ID)
	require.Equal(t, "b", second.ID)
	require.Len(t, r.All(), 2)
}

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry(RegistryConfig{MaxSessions: 1})

	_, err := r.Register(sessiontest.NewConn(), nil)
	require.NoError(t, err)
	_, err = r.Register(sessiontest.NewConn(), nil)
	require.ErrorIs(t, err, ErrRegistryFull)
}

func TestRegistryPrepareRunsBeforeVisible(t *testing.T) {
	r := NewRegistry(RegistryConfig{})

	var seen int
	_, err := r.Register(sessiontest.NewConn(), func(s *Session) {
		seen = len(r.sessions)
		require.NoError(t, s.Send([]byte("first")))
	})
	require.NoError(t, err)
	require.Zero(t, seen)
}

func TestRegistrySetLanguage(t *testing.T) {
	presence := &recordingPresence{}
	r := NewRegistry(RegistryConfig{Presence: presence, NewID: sequenceIDs("a")})

	s, err := r.Register(sessiontest.NewConn(), nil)
	require.NoError(t, err)

	require.True(t, r.SetLanguage(s.ID, Urdu))
	require.Equal(t, Urdu, s.Language())

	require.False(t, r.SetLanguage("missing", English))

	r.Remove(s.ID)
	require.False(t, r.SetLanguage(s.ID, English))
	require.Equal(t, Urdu, s.Language())

	require.Equal(t, []string{"join a en", "lang a ur", "left a"}, presence.Events())
}

func TestRegistryStale(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	s, err := r.Register(sessiontest.NewConn(), nil)
	require.NoError(t, err)

	require.Empty(t, r.Stale(s.LastSeen().Add(-time.Second)))
	require.Len(t, r.Stale(time.Now().Add(time.Second)), 1)
}

func TestRegistryShutdown(t *testing.T) {
	presence := &recordingPresence{}
	r := NewRegistry(RegistryConfig{Presence: presence, NewID: sequenceIDs("a")})
	s, err := r.Register(sessiontest.NewConn(), nil)
	require.NoError(t, err)

	r.Shutdown()
	require.True(t, s.IsClosed())
	require.Zero(t, r.Count())
	require.Equal(t, []string{"join a en", "left a", "close"}, presence.Events())
}

func TestRegistryConcurrentRegister(t *testing.T) {
	r := NewRegistry(RegistryConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.Register(sessiontest.NewConn(), nil)
			require.NoError(t, err)
			r.SetLanguage(s.ID, Urdu)
		}()
	}
	wg.Wait()

	ids := map[string]bool{}
	for _, s := range r.All() {
		require.False(t, ids[s.ID])
		ids[s.ID] = true
	}
	require.Len(t, ids, 50)
}

func TestRegistryShutdownBatchesPresence(t *testing.T) {
	presence := &recordingPresence{}
	r := NewRegistry(RegistryConfig{Presence: presence, NewID: sequenceIDs("a", "b", "c")})
	for i := 0; i < 3; i++ {
		_, err := r.Register(sessiontest.NewConn(), nil)
		require.NoError(t, err)
	}

	r.Shutdown()
	require.Equal(t, []string{"join a en", "join b en", "join c en", "left a b c", "close"}, presence.Events())
}

func TestRegistryShutdownClosesStuckSessionsTogether(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	for i := 0; i < 3; i++ {
		conn := sessiontest.NewConn()
		conn.Stall()
		_, err := r.Register(conn, nil)
		require.NoError(t, err)
	}

	start := time.Now()
	r.Shutdown()
	require.Less(t, time.Since(start), 2*closeTimeout)
}

func TestRegistryRejectsAfterShutdown(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	r.Shutdown()

	conn := sessiontest.NewConn()
	_, err := r.Register(conn, nil)
	require.ErrorIs(t, err, ErrRegistryClosed)
	require.Zero(t, r.Count())
}
