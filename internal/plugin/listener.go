// Package plugin serves the TCP endpoint the in-game plugin of every game
// server talks to.
package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ffa-tycoon/ffa-tycoon/internal/config"
	apperrors "github.com/ffa-tycoon/ffa-tycoon/internal/errors"
	"github.com/ffa-tycoon/ffa-tycoon/internal/gameserver"
	"github.com/ffa-tycoon/ffa-tycoon/internal/service"
)

// Archiver runs the save pipeline for one session.
type Archiver interface {
	Save(ctx context.Context, s *gameserver.Session) (*service.SaveResult, error)
}

// MapMatcher resolves a chat vote to a map name.
type MapMatcher interface {
	Match(mapType, input string) (string, error)
}

type sourceLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Listener accepts plugin connections. A connection is accepted only when
// its source address belongs to a configured game server.
type Listener struct {
	registry *gameserver.Registry
	archiver Archiver
	maps     MapMatcher
	siteName string

	replyDeadline time.Duration
	limit         rate.Limit
	burst         int

	mu       sync.Mutex
	limiters map[string]*sourceLimiter

	wg sync.WaitGroup
}

type Option func(*Listener)

// WithRateLimit sets the per-source connection rate.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(l *Listener) {
		l.limit = rate.Limit(perSecond)
		l.burst = burst
	}
}

// WithReplyDeadline bounds how long writing one reply may block. Reads have
// no deadline: the plugin keeps its connection open while the game runs.
func WithReplyDeadline(d time.Duration) Option {
	return func(l *Listener) { l.replyDeadline = d }
}

func NewListener(registry *gameserver.Registry, archiver Archiver, maps MapMatcher, siteName string, opts ...Option) *Listener {
	l := &Listener{
		registry:      registry,
		archiver:      archiver,
		maps:          maps,
		siteName:      siteName,
		replyDeadline: config.PluginReplyDeadline,
		limit:         rate.Limit(config.PluginRateLimitPerSec),
		burst:         config.PluginRateLimitBurst,
		limiters:      make(map[string]*sourceLimiter),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("plugin listen: %w", err)
	}
	log.Info().Str("addr", addr).Msg("plugin listener started")
	return l.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then waits for
// in-flight connections to finish.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go l.pruneLimiters(ctx)

	defer l.wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Error().Err(err).Msg("plugin accept error")
			continue
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(ctx, conn)
		}()
	}
}

func (l *Listener) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &sourceLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

func (l *Listener) pruneLimiters(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			for ip, entry := range l.limiters {
				if time.Since(entry.lastSeen) > 10*time.Minute {
					delete(l.limiters, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

func remoteIP(addr net.Addr) net.IP {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	ip := remoteIP(conn.RemoteAddr())
	if ip == nil {
		return
	}
	if !l.allow(ip.String()) {
		log.Warn().Str("ip", ip.String()).Msg("plugin connection rate limit exceeded")
		return
	}

	session := l.registry.MatchIP(ctx, ip)
	if session == nil {
		err := apperrors.UnknownPluginSource(ip.String())
		log.Error().Err(err).Str("ip", ip.String()).Msg("rejected plugin connection")
		return
	}

	logger := log.With().Str("server", session.Name()).Logger()
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetKeepAlive(true)
		tcp.SetKeepAlivePeriod(config.PluginKeepAlive)
	}
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Warn().Err(err).Msg("error reading plugin message")
			}
			return
		}

		reply, ok := l.Dispatch(ctx, session, msg)
		if !ok {
			logger.Warn().Str("type", msg.Type).Msg("unknown plugin message")
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(l.replyDeadline))
		if err := enc.Encode(reply); err != nil {
			logger.Warn().Err(err).Msg("error writing plugin reply")
			return
		}
	}
}

// Dispatch applies msg to session and builds the reply. ok is false for
// unknown message types, which get no reply.
func (l *Listener) Dispatch(ctx context.Context, session *gameserver.Session, msg Message) (Reply, bool) {
	switch msg.Type {
	case TypeNewPark:
		session.NewPark()
		return Reply{Msg: msgDone}, true

	case TypeLoadPark:
		return Reply{ID: session.LoadPark(msg.ID), Msg: msgDone}, true

	case TypeArchive:
		if msg.ID != nil && *msg.ID >= 0 {
			session.Bind(*msg.ID)
		}
		if _, err := l.archiver.Save(ctx, session); err != nil {
			log.Error().Err(err).Str("server", session.Name()).Msg("plugin archive failed")
			return Reply{ID: session.ArchiveID(), Msg: msgArchiveFailed}, true
		}
		return Reply{ID: session.ArchiveID(), Msg: msgDone}, true

	case TypeMOTD:
		motd, _, err := session.MOTD()
		if err != nil {
			log.Warn().Err(err).Str("server", session.Name()).Msg("error reading motd")
		}
		return Reply{ID: session.ArchiveID(), Msg: motd}, true

	case TypeVote:
		return Reply{Msg: l.vote(session, msg)}, true

	default:
		return Reply{}, false
	}
}

func (l *Listener) vote(session *gameserver.Session, msg Message) string {
	mapType := session.MapType()
	listHint := fmt.Sprintf("Go to %s/%s for the map list.", l.siteName, mapType)

	name := service.NormalizeVote(msg.Map)
	if name == "" {
		return "That is not a valid map. " + listHint
	}

	match, err := l.maps.Match(mapType, name)
	if err != nil {
		appErr, _ := apperrors.AsAppError(err)
		if appErr != nil && appErr.Code == apperrors.ErrCodeAmbiguousVote {
			matches, _ := appErr.Details.([]string)
			return "Multiple maps found: " + strings.Join(matches, ", ")
		}
		return fmt.Sprintf("%s is not a valid map. %s", name, listHint)
	}

	identifier := msg.Identifier
	if identifier == "" {
		identifier = "null"
	}
	session.CastVote(identifier, match)
	return fmt.Sprintf("vote for %s cast", match)
}
