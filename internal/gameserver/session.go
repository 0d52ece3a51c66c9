package gameserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ffa-tycoon/ffa-tycoon/internal/config"
)

const economyMode = "free for all economy"

// Commander executes a single remote-control command.
type Commander interface {
	Execute(ctx context.Context, command any) (json.RawMessage, error)
}

// Resolver looks up the addresses of a hostname.
type Resolver func(ctx context.Context, host string) ([]net.IP, error)

func defaultResolver(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, nil
}

// Session is the in-memory state of one configured game server. All fields
// behind mu are reached only through methods, so HTTP handlers, the plugin
// listener and background jobs can share one Session safely.
type Session struct {
	index    int
	name     string
	group    string
	mode     string
	hostname string
	saveDir  string
	motdPath string

	client     Commander
	resolve    Resolver
	now        func() time.Time
	pick       func(n int) int
	detailsTTL time.Duration

	mu      sync.Mutex
	details cachedDetails
	ips     []net.IP
	state   ParkState
	park    uint64
	ballot  *Ballot

	saving sync.Mutex
}

type Option func(*Session)

// WithCommander replaces the TCP transport, mostly for tests.
func WithCommander(c Commander) Option {
	return func(s *Session) { s.client = c }
}

func WithResolver(r Resolver) Option {
	return func(s *Session) { s.resolve = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithPicker sets the random source used to break vote ties.
func WithPicker(pick func(n int) int) Option {
	return func(s *Session) { s.pick = pick }
}

func WithTransportTimeout(d time.Duration) Option {
	return func(s *Session) {
		if c, ok := s.client.(*Client); ok {
			c.timeout = d
		}
	}
}

func NewSession(index int, def config.ServerDefinition, opts ...Option) *Session {
	s := &Session{
		index:      index,
		name:       def.Name,
		group:      def.Group,
		mode:       def.GameMode,
		hostname:   def.Hostname,
		saveDir:    def.Dir,
		client:     NewClient(def.Hostname, def.Port, config.TransportTimeout),
		resolve:    defaultResolver,
		now:        time.Now,
		detailsTTL: config.DetailsTTL,
		state:      FreshState(),
		ballot:     NewBallot(),
	}
	if def.MOTD != nil {
		s.motdPath = *def.MOTD
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Index() int       { return s.index }
func (s *Session) Name() string     { return s.name }
func (s *Session) Group() string    { return s.group }
func (s *Session) Mode() string     { return s.mode }
func (s *Session) Hostname() string { return s.hostname }

// SaveDir is the game's user directory; saves land in its "save" folder.
func (s *Session) SaveDir() string { return s.saveDir }

// Managed reports whether this process can archive the server's saves.
func (s *Session) Managed() bool { return s.saveDir != "" }

// MapType is the park catalog section this server draws maps from.
func (s *Session) MapType() string {
	if s.mode == economyMode {
		return "economy"
	}
	return "sandbox"
}

// Execute runs a raw remote-control command.
func (s *Session) Execute(ctx context.Context, command any) (json.RawMessage, error) {
	return s.client.Execute(ctx, command)
}

// Details returns the cached park status, refreshing it when forced or
// expired. Transport failures are logged and the last snapshot is returned.
func (s *Session) Details(ctx context.Context, force bool) *Details {
	now := s.now()

	s.mu.Lock()
	cached := s.details
	s.mu.Unlock()

	if !force && cached.details != nil && now.Before(cached.expiresAt) {
		return cached.details
	}

	details, err := s.Park(ctx)
	if err != nil {
		log.Warn().Err(err).Str("server", s.name).Msg("error getting server details")
		return cached.details
	}

	s.mu.Lock()
	s.details = cachedDetails{details: details, expiresAt: now.Add(s.detailsTTL)}
	s.mu.Unlock()

	return details
}

// DetailsSync returns the cached snapshot without touching the network.
func (s *Session) DetailsSync() *Details {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.details.details
}

// ResolveIP refreshes the cached addresses of the server's hostname. On
// failure the previous addresses are kept.
func (s *Session) ResolveIP(ctx context.Context) []net.IP {
	ips, err := s.resolve(ctx, s.hostname)
	if err != nil {
		log.Error().Err(err).Str("hostname", s.hostname).Msg("error resolving hostname")
		return s.IPs()
	}

	s.mu.Lock()
	s.ips = ips
	s.mu.Unlock()
	return ips
}

func (s *Session) IPs() []net.IP {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ips
}

// HasIP reports whether ip is one of the cached addresses.
func (s *Session) HasIP(ip net.IP) bool {
	for _, known := range s.IPs() {
		if known.Equal(ip) {
			return true
		}
	}
	return false
}

func (s *Session) State() ParkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ArchiveID is the archive row this park belongs to, nil when not bound.
func (s *Session) ArchiveID() *int64 {
	return s.State().ArchiveID()
}

// Bind ties the running park to an archive row.
func (s *Session) Bind(id int64) {
	s.mu.Lock()
	s.state = BoundState(id)
	s.mu.Unlock()
}

// Ref captures the running park and its archive identity so a later
// BindFrom can tell whether either changed in between.
func (s *Session) Ref() ParkRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ParkRef{park: s.park, state: s.state}
}

// BindFrom binds the park to id only while the session still matches ref.
// A park started or a load queued since ref was taken is left untouched.
func (s *Session) BindFrom(ref ParkRef, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.park != ref.park || s.state.Kind == PendingLoad || !s.state.same(ref.state) {
		return false
	}
	s.state = BoundState(id)
	return true
}

// Reset forgets a bound archive identity, e.g. after the server was stopped.
// A queued load survives so the restarted server can fetch it.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.state.Kind == Bound {
		s.state = FreshState()
	}
	s.mu.Unlock()
}

// RequestLoad queues an archived save to be served as the next park.
func (s *Session) RequestLoad(req LoadRequest) {
	s.mu.Lock()
	s.state = PendingLoadState(req)
	s.mu.Unlock()
}

// LoadRequest returns the queued load, if any.
func (s *Session) LoadRequest() (LoadRequest, bool) {
	st := s.State()
	if st.Kind != PendingLoad {
		return LoadRequest{}, false
	}
	return st.Load, true
}

// CancelLoad drops the queued load if it still names file, leaving the
// session fresh. It reports whether anything was dropped.
func (s *Session) CancelLoad(file string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Kind != PendingLoad || s.state.Load.File != file {
		return false
	}
	s.state = FreshState()
	return true
}

// NewPark is called when the game server starts a fresh or restored park.
// A pending load turns into the bound archive id; votes are discarded.
func (s *Session) NewPark() {
	s.mu.Lock()
	s.state = s.state.resolve()
	s.park++
	s.ballot = NewBallot()
	s.mu.Unlock()
}

// LoadPark binds the session after the server restored a park. An explicit
// non-negative id wins; otherwise the pending load's id is used. The
// resulting archive id is returned.
func (s *Session) LoadPark(explicit *int64) *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.park++
	if explicit != nil && *explicit >= 0 {
		s.state = BoundState(*explicit)
	} else {
		s.state = s.state.resolve()
	}
	return s.state.ArchiveID()
}

// CastVote records a map choice. A repeated identifier overwrites its vote.
func (s *Session) CastVote(identifier, mapName string) {
	s.mu.Lock()
	s.ballot.Cast(identifier, mapName)
	s.mu.Unlock()
}

// TallyVotes picks the next map; see Ballot.Tally.
func (s *Session) TallyVotes(allMaps []string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ballot.Tally(allMaps, s.pick)
}

func (s *Session) VoteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ballot.Len()
}

// MOTD reads the message of the day. ok is false when none is configured.
func (s *Session) MOTD() (string, bool, error) {
	if s.motdPath == "" {
		return "", false, nil
	}
	data, err := os.ReadFile(s.motdPath)
	if err != nil {
		return "", false, fmt.Errorf("read motd: %w", err)
	}
	return string(data), true, nil
}

// TryBeginSave claims the session for one save pipeline run. The returned
// release function must be called when the run ends.
func (s *Session) TryBeginSave() (release func(), ok bool) {
	if !s.saving.TryLock() {
		return nil, false
	}
	return s.saving.Unlock, true
}

// CommandResult is the generic {"result": ...} answer of most commands.
type CommandResult struct {
	Result any `json:"result"`
}

// OK reports whether the server answered with a truthy result.
func (r *CommandResult) OK() bool {
	if r == nil {
		return false
	}
	switch v := r.Result.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	default:
		return true
	}
}

func (s *Session) command(ctx context.Context, command string) (*CommandResult, error) {
	raw, err := s.Execute(ctx, command)
	if err != nil {
		return nil, err
	}
	var res CommandResult
	if len(raw) == 0 || string(raw) == "null" {
		return &res, nil
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode %q response: %w", strings.Fields(command)[0], err)
	}
	return &res, nil
}

// Park queries the current park status.
func (s *Session) Park(ctx context.Context) (*Details, error) {
	raw, err := s.Execute(ctx, "park")
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var d Details
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode park response: %w", err)
	}
	d.Raw = raw
	return &d, nil
}

func (s *Session) Say(ctx context.Context, message string) (*CommandResult, error) {
	return s.command(ctx, "say "+message)
}

// Save asks the game to write a save named base into its save folder.
func (s *Session) Save(ctx context.Context, base string) (*CommandResult, error) {
	return s.command(ctx, "save "+base)
}

// Stop shuts the game server down. A bound park is forgotten; a queued
// load is kept for the restart.
func (s *Session) Stop(ctx context.Context) (*CommandResult, error) {
	res, err := s.command(ctx, "stop")
	if err != nil {
		return nil, err
	}
	s.Reset()
	return res, nil
}

func (s *Session) Hire(ctx context.Context, staffType string, amount int) (*CommandResult, error) {
	return s.command(ctx, fmt.Sprintf("hire %s %d", staffType, amount))
}

func (s *Session) Cheat(ctx context.Context, payload string) (*CommandResult, error) {
	return s.command(ctx, "cheat "+payload)
}

func (s *Session) UpdatePlayer(ctx context.Context, player, group string) (*CommandResult, error) {
	return s.command(ctx, fmt.Sprintf("update player %s %s", player, group))
}

func (s *Session) Kick(ctx context.Context, player string) (*CommandResult, error) {
	return s.command(ctx, "kick "+player)
}
