package game

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pong-arena/internal/metrics"
)

// ManagerConfig controls the session registry.
type ManagerConfig struct {
	Defaults      SessionConfig // template for new sessions
	MaxSessions   int           // 0 = unlimited
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// DefaultManagerConfig returns the default registry settings.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Defaults:      DefaultSessionConfig(),
		MaxSessions:   1000,
		IdleTimeout:   5 * time.Minute,
		SweepInterval: 30 * time.Second,
	}
}

// Manager is the registry of live sessions. Each registered session runs its
// own tick goroutine; the manager only owns the id → session map.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cfg ManagerConfig
	now func() time.Time

	// hooks are set during wiring and read from inside session locks, so they
	// have their own lock and never call back into the registry.
	hooksMu   sync.RWMutex
	sinks     Sinks
	reporters []Reporter

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithManagerClock injects the time source used for idle checks and new sessions.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an empty registry.
func NewManager(cfg ManagerConfig, opts ...ManagerOption) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultManagerConfig().IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultManagerConfig().SweepInterval
	}
	cfg.Defaults = cfg.Defaults.normalized()

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddEventSink registers a sink that receives the events of every session
// created afterwards.
func (m *Manager) AddEventSink(sink EventSink) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// AddReporter registers a callback for finished-match summaries.
func (m *Manager) AddReporter(r Reporter) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.reporters = append(m.reporters, r)
}

func (m *Manager) publish(ev Event) {
	m.hooksMu.RLock()
	sinks := m.sinks
	m.hooksMu.RUnlock()
	sinks.Publish(ev)
}

func (m *Manager) report(summary MatchSummary) {
	m.hooksMu.RLock()
	reporters := m.reporters
	m.hooksMu.RUnlock()
	for _, r := range reporters {
		r(summary)
	}
}

// SessionConfig returns the registry's session template for the given mode.
func (m *Manager) SessionConfig(mode Mode) SessionConfig {
	cfg := m.cfg.Defaults
	cfg.Mode = mode
	return cfg
}

// Start launches the sweep loop.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.sweepLoop()

	log.Printf("🧹 Session sweep every %v (idle timeout %v)", m.cfg.SweepInterval, m.cfg.IdleTimeout)
}

// Stop cancels every session loop and waits for them to exit.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	log.Println("🛑 Session manager stopped")
}

// CreateSession registers a new session under a fresh id and starts its
// tick loop. pve sessions get their AI opponent in slot 2 straight away.
func (m *Manager) CreateSession(cfg SessionConfig) (*Session, error) {
	return m.CreateSessionWithID(uuid.NewString(), cfg)
}

// CreateSessionWithID is CreateSession under a caller-chosen id. It fails
// with ErrSessionExists when the id is taken.
func (m *Manager) CreateSessionWithID(id string, cfg SessionConfig) (*Session, error) {
	if !ValidSessionID(id) {
		return nil, fmt.Errorf("%w %q", ErrInvalidID, id)
	}

	m.mu.RLock()
	_, taken := m.sessions[id]
	count := len(m.sessions)
	m.mu.RUnlock()
	if taken {
		return nil, ErrSessionExists
	}
	if m.cfg.MaxSessions > 0 && count >= m.cfg.MaxSessions {
		return nil, ErrTooManySessions
	}

	s := NewSession(id, cfg,
		WithClock(m.now),
		WithEventSink(EventSinkFunc(m.publish)),
		WithReporter(m.report),
	)

	if cfg.Mode == ModePvE {
		name := fmt.Sprintf("AI (%s)", s.Config().AIDifficulty)
		if _, err := s.AddAI(name); err != nil {
			return nil, fmt.Errorf("seat ai: %w", err)
		}
	}

	m.mu.Lock()
	if _, taken := m.sessions[id]; taken {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	m.sessions[id] = s
	count = len(m.sessions)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.Run(m.ctx)
	}()

	metrics.SessionCreated(string(s.Config().Mode))
	metrics.SetActiveSessions(count)
	log.Printf("🆕 Game %s created (%s)", id, s.Config().Mode)

	return s, nil
}

// ValidSessionID accepts 1 to 64 characters of letters, digits, '-' and '_'.
func ValidSessionID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// JoinSession seats a human in an existing session.
func (m *Manager) JoinSession(id string, info PlayerInfo) (*Session, *Player, error) {
	s, ok := m.GetSession(id)
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	p, err := s.AddPlayer(info)
	if err != nil {
		return s, nil, err
	}
	return s, p, nil
}

// GetSession looks up a session by id.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// RemoveSession unregisters a session, finishing it first if it is still live.
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.ForceFinish(ReasonAbandoned)
	metrics.SetActiveSessions(count)
	return true
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ListActive returns snapshots of every session that has not finished, oldest first.
func (m *Manager) ListActive() []Snapshot {
	return m.list(func(st Status) bool { return st != StatusFinished })
}

// ListWaiting returns snapshots of sessions that still accept players, oldest first.
func (m *Manager) ListWaiting() []Snapshot {
	return m.list(func(st Status) bool { return st == StatusWaiting })
}

func (m *Manager) list(keep func(Status) bool) []Snapshot {
	out := make([]Snapshot, 0)
	for _, s := range m.all() {
		snap := s.Snapshot()
		if keep(snap.Status) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// all copies the session pointers so callers never hold the registry lock
// while taking a session lock.
func (m *Manager) all() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}

// Sweep removes finished sessions and force-finishes sessions that have had
// no connected human and no activity for longer than the idle timeout.
// It returns the number of sessions removed.
func (m *Manager) Sweep(now time.Time) int {
	var stale []string
	for _, s := range m.all() {
		if s.Status() == StatusFinished {
			stale = append(stale, s.ID())
			continue
		}
		if !s.HasConnectedHuman() && now.Sub(s.LastActivity()) > m.cfg.IdleTimeout {
			s.ForceFinish(ReasonIdle)
			stale = append(stale, s.ID())
		}
	}
	if len(stale) == 0 {
		return 0
	}

	m.mu.Lock()
	for _, id := range stale {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.SetActiveSessions(count)
	log.Printf("🧹 Swept %d sessions (%d remaining)", len(stale), count)
	return len(stale)
}
