package game

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T, mutate func(*ManagerConfig)) (*Manager, *fakeClock) {
	t.Helper()
	cfg := DefaultManagerConfig()
	cfg.Defaults.Countdown = 0
	if mutate != nil {
		mutate(&cfg)
	}
	clock := newFakeClock()
	m := NewManager(cfg, WithManagerClock(clock.Now))
	t.Cleanup(m.Stop)
	return m, clock
}

func TestManagerCreateAndJoin(t *testing.T) {
	m, _ := newTestManager(t, nil)

	s, err := m.CreateSession(m.SessionConfig(ModePvP))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := m.GetSession(s.ID()); !ok {
		t.Fatal("session not registered")
	}

	waiting := m.ListWaiting()
	if len(waiting) != 1 || waiting[0].ID != s.ID() {
		t.Fatalf("expected the new session to be waiting, got %+v", waiting)
	}

	if _, _, err := m.JoinSession(s.ID(), PlayerInfo{Name: "alice"}); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, _, err := m.JoinSession(s.ID(), PlayerInfo{Name: "bob"}); err != nil {
		t.Fatalf("join bob: %v", err)
	}

	if len(m.ListWaiting()) != 0 {
		t.Error("full session should no longer be waiting")
	}
	if len(m.ListActive()) != 1 {
		t.Error("full session should be active")
	}
}

func TestManagerJoinUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, nil)

	if _, _, err := m.JoinSession("missing", PlayerInfo{Name: "alice"}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManagerCreateWithRequestedID(t *testing.T) {
	m, _ := newTestManager(t, nil)

	s, err := m.CreateSessionWithID("lobby-1", m.SessionConfig(ModePvP))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID() != "lobby-1" {
		t.Errorf("expected id lobby-1, got %s", s.ID())
	}

	if _, err := m.CreateSessionWithID("lobby-1", m.SessionConfig(ModePvP)); !errors.Is(err, ErrSessionExists) {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("expected 1 session, got %d", m.Count())
	}

	for _, bad := range []string{"", "has space", "semi;colon", string(make([]byte, 65))} {
		if _, err := m.CreateSessionWithID(bad, m.SessionConfig(ModePvP)); !errors.Is(err, ErrInvalidID) {
			t.Errorf("id %q: expected ErrInvalidID, got %v", bad, err)
		}
	}
}

func TestManagerPvESeatsAI(t *testing.T) {
	m, _ := newTestManager(t, nil)

	s, err := m.CreateSession(m.SessionConfig(ModePvE))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	players := s.Players()
	if len(players) != 1 || !players[0].IsAI || players[0].Slot != 2 {
		t.Fatalf("expected AI in slot 2, got %+v", players)
	}
}

func TestManagerMaxSessions(t *testing.T) {
	m, _ := newTestManager(t, func(c *ManagerConfig) { c.MaxSessions = 2 })

	for i := 0; i < 2; i++ {
		if _, err := m.CreateSession(m.SessionConfig(ModePvP)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := m.CreateSession(m.SessionConfig(ModePvP)); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("expected ErrTooManySessions, got %v", err)
	}
}

func TestManagerSweepIdleSessions(t *testing.T) {
	m, clock := newTestManager(t, nil)

	idle, _ := m.CreateSession(m.SessionConfig(ModePvP))
	busy, _ := m.CreateSession(m.SessionConfig(ModePvP))
	m.JoinSession(busy.ID(), PlayerInfo{Name: "alice"})

	if removed := m.Sweep(clock.Now()); removed != 0 {
		t.Fatalf("nothing should be swept yet, removed %d", removed)
	}

	now := clock.Advance(6 * time.Minute)
	if removed := m.Sweep(now); removed != 1 {
		t.Fatalf("expected one idle session swept, removed %d", removed)
	}

	if _, ok := m.GetSession(idle.ID()); ok {
		t.Error("idle session should be gone")
	}
	if idle.Status() != StatusFinished {
		t.Errorf("idle session should be finished, got %s", idle.Status())
	}
	if idle.Snapshot().Reason != ReasonIdle {
		t.Errorf("expected reason idle, got %q", idle.Snapshot().Reason)
	}
	if _, ok := m.GetSession(busy.ID()); !ok {
		t.Error("session with a connected human must survive the sweep")
	}
}

func TestManagerSweepRemovesFinished(t *testing.T) {
	m, clock := newTestManager(t, nil)

	s, _ := m.CreateSession(m.SessionConfig(ModePvP))
	s.ForceFinish(ReasonAbandoned)

	if removed := m.Sweep(clock.Now()); removed != 1 {
		t.Errorf("expected finished session to be swept, removed %d", removed)
	}
	if m.Count() != 0 {
		t.Errorf("expected empty registry, got %d", m.Count())
	}
}

func TestManagerHooksReceiveEventsAndSummaries(t *testing.T) {
	m, _ := newTestManager(t, nil)

	events := &recorder{}
	m.AddEventSink(events)

	var mu sync.Mutex
	var summaries []MatchSummary
	m.AddReporter(func(s MatchSummary) {
		mu.Lock()
		defer mu.Unlock()
		summaries = append(summaries, s)
	})

	s, _ := m.CreateSession(m.SessionConfig(ModePvP))
	if !m.RemoveSession(s.ID()) {
		t.Fatal("remove failed")
	}
	if m.RemoveSession(s.ID()) {
		t.Error("second remove should report false")
	}

	if events.count(EventGameCreated) != 1 {
		t.Errorf("expected gameCreated event, got %d", events.count(EventGameCreated))
	}
	if events.count(EventGameEnd) != 1 {
		t.Errorf("expected gameEnd event, got %d", events.count(EventGameEnd))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(summaries) != 1 || summaries[0].SessionID != s.ID() {
		t.Fatalf("expected one summary for the removed session, got %+v", summaries)
	}
	if summaries[0].Winner != nil {
		t.Error("removed session has no winner")
	}
}
