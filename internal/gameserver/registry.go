package gameserver

import (
	"context"
	"net"
	"sync"

	"github.com/ffa-tycoon/ffa-tycoon/internal/config"
)

// Registry owns the sessions of every configured game server.
type Registry struct {
	sessions []*Session
}

func NewRegistry(fleet *config.Fleet, opts ...Option) *Registry {
	sessions := make([]*Session, 0, len(fleet.Servers))
	for i, def := range fleet.Servers {
		sessions = append(sessions, NewSession(i, def, opts...))
	}
	return &Registry{sessions: sessions}
}

// NewRegistryFromSessions wraps already built sessions.
func NewRegistryFromSessions(sessions ...*Session) *Registry {
	return &Registry{sessions: sessions}
}

func (r *Registry) All() []*Session {
	return r.sessions
}

func (r *Registry) Len() int {
	return len(r.sessions)
}

// Get returns the session at index, or nil when out of range.
func (r *Registry) Get(index int) *Session {
	if index < 0 || index >= len(r.sessions) {
		return nil
	}
	return r.sessions[index]
}

// Group returns the sessions tagged with group.
func (r *Registry) Group(group string) []*Session {
	var out []*Session
	for _, s := range r.sessions {
		if s.Group() == group {
			out = append(out, s)
		}
	}
	return out
}

// MatchIP finds the session whose hostname resolves to ip. Cached
// resolutions are tried first; on a miss every hostname is resolved again,
// since container addresses change between deploys.
func (r *Registry) MatchIP(ctx context.Context, ip net.IP) *Session {
	for _, s := range r.sessions {
		if s.HasIP(ip) {
			return s
		}
	}
	for _, s := range r.sessions {
		for _, known := range s.ResolveIP(ctx) {
			if known.Equal(ip) {
				return s
			}
		}
	}
	return nil
}

// RefreshDetails refreshes every session's details concurrently.
func (r *Registry) RefreshDetails(ctx context.Context, force bool) {
	var wg sync.WaitGroup
	for _, s := range r.sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Details(ctx, force)
		}(s)
	}
	wg.Wait()
}
