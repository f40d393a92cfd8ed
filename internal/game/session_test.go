package game

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"pong-arena/internal/physics"
)

// recorder is an EventSink that keeps everything it receives.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) count(t EventType) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(t EventType) (Event, bool) {
	events := r.all()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == t {
			return events[i], true
		}
	}
	return Event{}, false
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

type harness struct {
	s         *Session
	events    *recorder
	clock     *fakeClock
	summaries []MatchSummary
}

func newHarness(t *testing.T, cfg SessionConfig) *harness {
	t.Helper()
	h := &harness{events: &recorder{}, clock: newFakeClock()}
	h.s = NewSession("test-game", cfg,
		WithClock(h.clock.Now),
		WithRand(rand.New(rand.NewSource(1))),
		WithEventSink(h.events),
		WithReporter(func(m MatchSummary) { h.summaries = append(h.summaries, m) }),
	)
	return h
}

// playing returns a harness with two humans seated and the ball in play.
func playing(t *testing.T, mutate func(*SessionConfig)) (*harness, *Player, *Player) {
	t.Helper()
	cfg := DefaultSessionConfig()
	cfg.Countdown = 0
	if mutate != nil {
		mutate(&cfg)
	}
	h := newHarness(t, cfg)

	p1, err := h.s.AddPlayer(PlayerInfo{Name: "alice"})
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	p2, err := h.s.AddPlayer(PlayerInfo{Name: "bob"})
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if got := h.s.Status(); got != StatusPlaying {
		t.Fatalf("expected playing after second join, got %s", got)
	}
	return h, p1, p2
}

func TestSessionSlotsFollowJoinOrder(t *testing.T) {
	h, p1, p2 := playing(t, nil)

	if p1.Slot != 1 || p2.Slot != 2 {
		t.Errorf("expected slots 1 and 2, got %d and %d", p1.Slot, p2.Slot)
	}
	if n := h.events.count(EventPlayerJoined); n != 2 {
		t.Errorf("expected 2 playerJoined events, got %d", n)
	}
}

func TestSessionCountdownThenPlaying(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.Countdown = time.Second
	h := newHarness(t, cfg)

	h.s.AddPlayer(PlayerInfo{Name: "alice"})
	h.s.AddPlayer(PlayerInfo{Name: "bob"})

	if got := h.s.Status(); got != StatusCountdown {
		t.Fatalf("expected countdown, got %s", got)
	}
	ev, ok := h.events.last(EventCountdown)
	if !ok || ev.Data.(CountdownPayload).Seconds != 1 {
		t.Fatalf("expected countdown event with 1 second, got %+v", ev)
	}

	h.s.Tick(h.clock.Advance(500 * time.Millisecond))
	if got := h.s.Status(); got != StatusCountdown {
		t.Fatalf("expected countdown half way through, got %s", got)
	}

	h.s.Tick(h.clock.Advance(500 * time.Millisecond))
	if got := h.s.Status(); got != StatusPlaying {
		t.Fatalf("expected playing after countdown, got %s", got)
	}

	started, ok := h.events.last(EventGameStarted)
	if !ok {
		t.Fatal("expected gameStarted event")
	}
	snap := started.Data.(Snapshot)
	if math.Abs(snap.Ball.VX) != cfg.Layout.BallSpeed {
		t.Errorf("expected serve |vx| == %v, got %v", cfg.Layout.BallSpeed, snap.Ball.VX)
	}
	if len(snap.Players) != 2 {
		t.Errorf("expected full initial state with 2 players, got %d", len(snap.Players))
	}
}

func TestSessionStartRequiresTwoPlayers(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.AutoStart = false
	h := newHarness(t, cfg)

	h.s.AddPlayer(PlayerInfo{Name: "alice"})
	if err := h.s.Start(); !errors.Is(err, ErrNotStartable) {
		t.Fatalf("expected ErrNotStartable, got %v", err)
	}

	h.s.AddPlayer(PlayerInfo{Name: "bob"})
	if got := h.s.Status(); got != StatusWaiting {
		t.Fatalf("expected waiting without auto start, got %s", got)
	}
	if err := h.s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := h.s.Status(); got != StatusCountdown {
		t.Errorf("expected countdown after start, got %s", got)
	}
}

func TestSessionBallPastLeftEdgeScoresRight(t *testing.T) {
	h, _, _ := playing(t, nil)
	layout := h.s.Config().Layout

	h.s.mu.Lock()
	h.s.ball = physics.Ball{X: 0, Y: 300, VX: -300, VY: 0, Radius: layout.BallRadius, Speed: 300}
	h.s.mu.Unlock()

	h.s.Tick(h.clock.Advance(time.Second / 60))

	score := h.s.Score()
	if score.Right != 1 || score.Left != 0 {
		t.Fatalf("expected 0-1, got %d-%d", score.Left, score.Right)
	}

	snap := h.s.Snapshot()
	if snap.Ball.X != layout.Dims.Width/2 || snap.Ball.Y != layout.Dims.Height/2 {
		t.Errorf("expected ball at centre, got (%v, %v)", snap.Ball.X, snap.Ball.Y)
	}
	if math.Abs(math.Abs(snap.Ball.VX)-layout.BallSpeed) > 1e-9 {
		t.Errorf("expected |vx| == %v, got %v", layout.BallSpeed, snap.Ball.VX)
	}
	if snap.Ball.VX >= 0 {
		t.Errorf("expected serve towards the left side that conceded, got vx %v", snap.Ball.VX)
	}

	ev, ok := h.events.last(EventScore)
	if !ok || ev.Data.(ScorePayload).ScorerSlot != 2 {
		t.Errorf("expected score event for slot 2, got %+v", ev)
	}
}

func TestSessionMaxScoreFinishes(t *testing.T) {
	h, p1, _ := playing(t, func(c *SessionConfig) { c.MaxScore = 1 })

	h.s.mu.Lock()
	h.s.ball = physics.Ball{X: 800, Y: 300, VX: 300, Radius: 8, Speed: 300}
	h.s.mu.Unlock()

	h.s.Tick(h.clock.Advance(time.Second / 60))

	if got := h.s.Status(); got != StatusFinished {
		t.Fatalf("expected finished, got %s", got)
	}
	select {
	case <-h.s.Done():
	default:
		t.Error("Done should be closed")
	}

	if len(h.summaries) != 1 {
		t.Fatalf("expected one summary, got %d", len(h.summaries))
	}
	sum := h.summaries[0]
	if sum.Winner == nil || sum.Winner.ID != p1.ID {
		t.Errorf("expected alice to win, got %+v", sum.Winner)
	}
	if sum.Reason != ReasonScore || sum.Score1 != 1 || sum.Score2 != 0 {
		t.Errorf("unexpected summary %+v", sum)
	}

	end, ok := h.events.last(EventGameEnd)
	if !ok || end.Data.(EndPayload).Reason != ReasonScore {
		t.Errorf("expected gameEnd with reason score, got %+v", end)
	}

	// Inert afterwards
	h.s.Tick(h.clock.Advance(time.Second))
	if len(h.summaries) != 1 {
		t.Error("summary must be reported exactly once")
	}
}

func TestSessionBothDisconnectedIsAbandoned(t *testing.T) {
	h, p1, p2 := playing(t, nil)

	h.s.MarkDisconnected(p1.ID)
	h.s.MarkDisconnected(p2.ID)

	h.s.Tick(h.clock.Advance(5 * time.Second))
	if got := h.s.Status(); got != StatusPlaying {
		t.Fatalf("expected still playing inside grace, got %s", got)
	}

	h.s.Tick(h.clock.Advance(6 * time.Second))
	if got := h.s.Status(); got != StatusFinished {
		t.Fatalf("expected finished after grace, got %s", got)
	}
	if len(h.summaries) != 1 {
		t.Fatalf("expected summary, got %d", len(h.summaries))
	}
	if h.summaries[0].Winner != nil {
		t.Errorf("expected no winner, got %+v", h.summaries[0].Winner)
	}
	if h.summaries[0].Reason != ReasonAbandoned {
		t.Errorf("expected abandoned, got %s", h.summaries[0].Reason)
	}
}

func TestSessionAsymmetricTimeoutIsForfeit(t *testing.T) {
	h, p1, p2 := playing(t, nil)

	h.s.MarkDisconnected(p1.ID)
	h.clock.Advance(5 * time.Second)
	h.s.MarkDisconnected(p2.ID)

	h.s.Tick(h.clock.Advance(6 * time.Second))

	if got := h.s.Status(); got != StatusFinished {
		t.Fatalf("expected finished, got %s", got)
	}
	sum := h.summaries[0]
	if sum.Winner == nil || sum.Winner.ID != p2.ID {
		t.Errorf("expected bob to win by forfeit, got %+v", sum.Winner)
	}
	if sum.Reason != ReasonForfeit {
		t.Errorf("expected forfeit, got %s", sum.Reason)
	}
}

func TestSessionReconnectCancelsForfeit(t *testing.T) {
	h, p1, _ := playing(t, nil)

	h.s.MarkDisconnected(p1.ID)
	h.clock.Advance(3 * time.Second)

	again, err := h.s.AddPlayer(PlayerInfo{Name: "alice"})
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if again.ID != p1.ID || again.Slot != 1 {
		t.Errorf("expected slot 1 back with the same id, got %+v", again)
	}

	h.s.Tick(h.clock.Advance(20 * time.Second))
	if got := h.s.Status(); got != StatusPlaying {
		t.Errorf("expected still playing, got %s", got)
	}
}

func TestSessionDisconnectStopsPaddle(t *testing.T) {
	h, p1, _ := playing(t, nil)

	h.s.SetDirection(p1.ID, physics.DirUp)
	h.s.MarkDisconnected(p1.ID)

	before := h.s.Snapshot().LeftPaddle.Y
	h.s.Tick(h.clock.Advance(time.Second / 60))
	after := h.s.Snapshot().LeftPaddle.Y

	if before != after {
		t.Errorf("paddle of a disconnected player moved from %v to %v", before, after)
	}
	if _, ok := h.events.last(EventPlayerDisconnected); !ok {
		t.Error("expected playerDisconnected event")
	}
}

func TestSessionSetDirectionMovesPaddle(t *testing.T) {
	h, p1, _ := playing(t, nil)
	layout := h.s.Config().Layout

	if err := h.s.SetDirection(p1.ID, physics.DirUp); err != nil {
		t.Fatalf("set direction: %v", err)
	}
	h.s.Tick(h.clock.Advance(time.Second / 60))

	want := layout.LeftPaddle().Y - layout.PaddleSpeed/60
	if got := h.s.Snapshot().LeftPaddle.Y; math.Abs(got-want) > 1e-9 {
		t.Errorf("expected paddle y %v, got %v", want, got)
	}

	if err := h.s.SetDirection("nobody", physics.DirDown); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestSessionPauseAndResume(t *testing.T) {
	h, p1, p2 := playing(t, nil)

	if err := h.s.Pause(p1.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	ball := h.s.Snapshot().Ball
	h.s.Tick(h.clock.Advance(time.Second))
	if h.s.Snapshot().Ball != ball {
		t.Error("ball moved while paused")
	}

	if err := h.s.Resume(p2.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := h.s.Status(); got != StatusPlaying {
		t.Errorf("expected playing after resume, got %s", got)
	}
	if h.events.count(EventGamePaused) != 1 || h.events.count(EventGameResumed) != 1 {
		t.Error("expected one gamePaused and one gameResumed event")
	}
}

func TestSessionPauseDisabledForTournament(t *testing.T) {
	h, p1, _ := playing(t, func(c *SessionConfig) {
		c.Mode = ModeTournament
		c.AllowPause = true
	})

	if err := h.s.Pause(p1.ID); !errors.Is(err, ErrPauseDisabled) {
		t.Errorf("expected ErrPauseDisabled, got %v", err)
	}
}

func TestSessionLeaveMidGameForfeits(t *testing.T) {
	h, p1, p2 := playing(t, nil)

	if err := h.s.Leave(p1.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if got := h.s.Status(); got != StatusFinished {
		t.Fatalf("expected finished, got %s", got)
	}
	sum := h.summaries[0]
	if sum.Winner == nil || sum.Winner.ID != p2.ID || sum.Reason != ReasonLeft {
		t.Errorf("expected bob to win with reason left, got %+v", sum)
	}
	if _, ok := h.events.last(EventPlayerLeft); !ok {
		t.Error("expected playerLeft event")
	}
}

func TestSessionLeaveWhileWaitingFreesSlot(t *testing.T) {
	h := newHarness(t, DefaultSessionConfig())

	p1, _ := h.s.AddPlayer(PlayerInfo{Name: "alice"})
	if err := h.s.Leave(p1.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}

	p2, err := h.s.AddPlayer(PlayerInfo{Name: "carol"})
	if err != nil {
		t.Fatalf("join after leave: %v", err)
	}
	if p2.Slot != 1 {
		t.Errorf("expected freed slot 1, got %d", p2.Slot)
	}
}

func TestSessionRejectsThirdPlayerAndLateJoin(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.AutoStart = false
	h := newHarness(t, cfg)

	h.s.AddPlayer(PlayerInfo{Name: "alice"})
	h.s.AddPlayer(PlayerInfo{Name: "bob"})
	if _, err := h.s.AddPlayer(PlayerInfo{Name: "carol"}); !errors.Is(err, ErrSessionFull) {
		t.Errorf("expected ErrSessionFull, got %v", err)
	}

	h2, _, _ := playing(t, nil)
	if _, err := h2.s.AddPlayer(PlayerInfo{Name: "carol"}); !errors.Is(err, ErrNotJoinable) {
		t.Errorf("expected ErrNotJoinable once playing, got %v", err)
	}
}

func TestSessionReservedSlots(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.Mode = ModeTournament
	cfg.ReservedNames = []string{"alice", "bob"}
	h := newHarness(t, cfg)

	if _, err := h.s.AddPlayer(PlayerInfo{Name: "mallory"}); !errors.Is(err, ErrNotJoinable) {
		t.Errorf("expected stranger to be rejected, got %v", err)
	}

	bob, err := h.s.AddPlayer(PlayerInfo{Name: "bob"})
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if bob.Slot != 2 {
		t.Errorf("expected bob in his reserved slot 2, got %d", bob.Slot)
	}
}

func TestSessionAISeatedInSlotTwoForPvE(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.Mode = ModePvE
	cfg.Countdown = 0
	h := newHarness(t, cfg)

	bot, err := h.s.AddAI("AI")
	if err != nil {
		t.Fatalf("add ai: %v", err)
	}
	if bot.Slot != 2 || !bot.IsAI {
		t.Errorf("expected AI in slot 2, got %+v", bot)
	}

	human, _ := h.s.AddPlayer(PlayerInfo{Name: "alice"})
	if human.Slot != 1 {
		t.Errorf("expected human in slot 1, got %d", human.Slot)
	}
	if got := h.s.Status(); got != StatusPlaying {
		t.Fatalf("expected playing, got %s", got)
	}

	for i := 0; i < 120; i++ {
		h.s.Tick(h.clock.Advance(time.Second / 60))
	}
	if !h.s.HasConnectedHuman() {
		t.Error("expected the human to be connected")
	}
	if h.s.Status() == StatusWaiting {
		t.Error("pve game should never fall back to waiting")
	}
}

func TestSessionEventsAreSequenced(t *testing.T) {
	h, p1, _ := playing(t, nil)
	h.s.SetDirection(p1.ID, physics.DirDown)
	for i := 0; i < 30; i++ {
		h.s.Tick(h.clock.Advance(time.Second / 60))
	}

	events := h.events.all()
	for i := 1; i < len(events); i++ {
		if events[i].Sequence != events[i-1].Sequence+1 {
			t.Fatalf("event %d out of order: %d after %d", i, events[i].Sequence, events[i-1].Sequence)
		}
	}
	if h.events.count(EventGameState) != 30 {
		t.Errorf("expected one gameState per playing tick, got %d", h.events.count(EventGameState))
	}
}

func TestSessionForceFinishTournamentAwardsPresentPlayer(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.Mode = ModeTournament
	cfg.ReservedNames = []string{"alice", "bob"}
	h := newHarness(t, cfg)

	h.s.AddPlayer(PlayerInfo{Name: "alice"})
	if !h.s.ForceFinish(ReasonIdle) {
		t.Fatal("expected force finish to succeed")
	}
	if h.summaries[0].WinnerSlot() != 1 {
		t.Errorf("expected slot 1 to win, got %d", h.summaries[0].WinnerSlot())
	}
	if h.s.ForceFinish(ReasonIdle) {
		t.Error("second force finish should be a no-op")
	}
}
