package game

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"pong-arena/internal/ai"
	"pong-arena/internal/metrics"
	"pong-arena/internal/physics"
)

// Session is one match: two paddles, one ball, a score and a lifecycle.
//
// All state is guarded by mu. Inputs from connections are applied immediately
// between ticks; Tick itself runs start to finish under the lock, so events
// reach the sink in the order they were produced.
type Session struct {
	mu sync.Mutex

	id  string
	cfg SessionConfig

	status  Status
	players [2]*Player
	ais     [2]*ai.Engine
	dirs    [2]physics.Direction
	paddles [2]physics.Paddle
	ball    physics.Ball
	score   Score

	createdAt     time.Time
	startedAt     time.Time
	endedAt       time.Time
	lastActivity  time.Time
	countdownEnds time.Time
	lastCountdown int

	tickCount uint64
	sequence  uint64

	winner  *Player
	reason  string
	pending *MatchSummary // set by finish, handed to the reporter after unlock

	now      func() time.Time
	rng      *rand.Rand
	sink     EventSink
	reporter Reporter

	done chan struct{}
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithClock injects the time source.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithRand injects the random source for serves and AI noise.
func WithRand(rng *rand.Rand) SessionOption {
	return func(s *Session) { s.rng = rng }
}

// WithEventSink sets where events are published.
func WithEventSink(sink EventSink) SessionOption {
	return func(s *Session) { s.sink = sink }
}

// WithReporter sets the callback that receives the match summary.
func WithReporter(r Reporter) SessionOption {
	return func(s *Session) { s.reporter = r }
}

// NewSession creates a session in the waiting state.
func NewSession(id string, cfg SessionConfig, opts ...SessionOption) *Session {
	cfg = cfg.normalized()
	s := &Session{
		id:            id,
		cfg:           cfg,
		status:        StatusWaiting,
		lastCountdown: -1,
		now:           time.Now,
		sink:          nopSink{},
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.sink == nil {
		s.sink = nopSink{}
	}

	s.paddles = [2]physics.Paddle{cfg.Layout.LeftPaddle(), cfg.Layout.RightPaddle()}
	s.ball = cfg.Layout.CenteredBall()
	s.createdAt = s.now()
	s.lastActivity = s.createdAt

	s.mu.Lock()
	s.emitLocked(EventGameCreated, s.snapshotLocked())
	s.mu.Unlock()

	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Config returns the normalized configuration.
func (s *Session) Config() SessionConfig { return s.cfg }

// Done is closed when the session finishes.
func (s *Session) Done() <-chan struct{} { return s.done }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Score returns the current score.
func (s *Session) Score() Score {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// LastActivity returns the time of the last input, join or played tick.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// HasConnectedHuman reports whether any human player is currently connected.
func (s *Session) HasConnectedHuman() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p != nil && !p.IsAI && p.IsConnected {
			return true
		}
	}
	return false
}

// Player returns a copy of the player with the given id.
func (s *Session) Player(playerID string) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOfLocked(playerID); i >= 0 {
		return *s.players[i], true
	}
	return Player{}, false
}

// Players returns copies of the occupied slots in slot order.
func (s *Session) Players() []Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playersLocked()
}

// =============================================================================
// JOINING
// =============================================================================

// AddPlayer seats a human. A disconnected player joining again under the same
// name gets their slot back in any non-finished state; new players are only
// accepted while waiting or counting down.
func (s *Session) AddPlayer(info PlayerInfo) (*Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusFinished {
		return nil, ErrNotJoinable
	}

	for _, p := range s.players {
		if p != nil && !p.IsAI && !p.IsConnected && p.Name == info.Name {
			s.reconnectLocked(p)
			cp := *p
			return &cp, nil
		}
	}

	if s.status != StatusWaiting && s.status != StatusCountdown {
		return nil, ErrNotJoinable
	}

	idx, err := s.slotForLocked(info.Name)
	if err != nil {
		return nil, err
	}

	p := &Player{
		ID:          uuid.NewString(),
		Slot:        idx + 1,
		Name:        info.Name,
		UserID:      info.UserID,
		IsConnected: true,
	}
	s.seatLocked(idx, p)

	cp := *p
	return &cp, nil
}

// AddAI seats a computer player. In pve mode the AI takes slot 2.
func (s *Session) AddAI(name string) (*Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return nil, ErrNotJoinable
	}

	var idx int
	var err error
	if s.cfg.Mode == ModePvE && len(s.cfg.ReservedNames) == 0 {
		idx = 1
		if s.players[1] != nil {
			err = ErrSessionFull
		}
	} else {
		idx, err = s.slotForLocked(name)
	}
	if err != nil {
		return nil, err
	}

	p := &Player{
		ID:          "ai-" + uuid.NewString(),
		Slot:        idx + 1,
		Name:        name,
		IsAI:        true,
		IsConnected: true,
	}
	s.ais[idx] = ai.NewEngine(s.cfg.AIDifficulty, ai.WithRand(s.rng))
	s.seatLocked(idx, p)

	cp := *p
	return &cp, nil
}

// slotForLocked picks the slot index for a newcomer: the reserved slot when
// the session has reservations, otherwise the first free one.
func (s *Session) slotForLocked(name string) (int, error) {
	if len(s.cfg.ReservedNames) > 0 {
		for i, reserved := range s.cfg.ReservedNames {
			if i > 1 || reserved != name {
				continue
			}
			if s.players[i] != nil {
				return -1, ErrSessionFull
			}
			return i, nil
		}
		return -1, ErrNotJoinable
	}
	for i, p := range s.players {
		if p == nil {
			return i, nil
		}
	}
	return -1, ErrSessionFull
}

func (s *Session) seatLocked(idx int, p *Player) {
	now := s.now()
	s.players[idx] = p
	s.dirs[idx] = physics.DirStop
	s.lastActivity = now

	s.emitLocked(EventPlayerJoined, PlayerPayload{Player: *p})
	log.Printf("👤 %s joined game %s as player %d", p.Name, s.id, p.Slot)

	if s.cfg.AutoStart && s.status == StatusWaiting && s.fullLocked() {
		s.beginCountdownLocked(now)
	}
}

func (s *Session) reconnectLocked(p *Player) {
	p.IsConnected = true
	p.DisconnectedAt = time.Time{}
	s.lastActivity = s.now()
	s.emitLocked(EventPlayerJoined, PlayerPayload{Player: *p, Reconnected: true})
	log.Printf("🔌 %s reconnected to game %s", p.Name, s.id)
}

// Reconnect reattaches a disconnected player by id.
func (s *Session) Reconnect(playerID string) (*Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusFinished {
		return nil, ErrNotJoinable
	}
	i := s.indexOfLocked(playerID)
	if i < 0 {
		return nil, ErrPlayerNotFound
	}
	p := s.players[i]
	if !p.IsConnected {
		s.reconnectLocked(p)
	}
	cp := *p
	return &cp, nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start begins the countdown of a full waiting session.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting || !s.fullLocked() {
		return ErrNotStartable
	}
	s.beginCountdownLocked(s.now())
	return nil
}

func (s *Session) beginCountdownLocked(now time.Time) {
	s.status = StatusCountdown
	s.countdownEnds = now.Add(s.cfg.Countdown)
	s.lastCountdown = -1

	if s.cfg.Countdown <= 0 {
		s.startPlayingLocked(now)
		return
	}
	s.emitCountdownLocked(now)
}

func (s *Session) emitCountdownLocked(now time.Time) {
	secs := int(math.Ceil(s.countdownEnds.Sub(now).Seconds()))
	if secs != s.lastCountdown {
		s.lastCountdown = secs
		s.emitLocked(EventCountdown, CountdownPayload{Seconds: secs})
	}
}

func (s *Session) startPlayingLocked(now time.Time) {
	s.status = StatusPlaying
	s.startedAt = now
	s.lastActivity = now

	serve := physics.SideLeft
	if s.rng.Intn(2) == 1 {
		serve = physics.SideRight
	}
	s.ball = physics.ResetBall(s.ball, s.cfg.Layout.Dims, serve, s.cfg.Layout.BallSpeed, s.rng)

	s.emitLocked(EventGameStarted, s.snapshotLocked())
	log.Printf("🎮 Game %s started (%s)", s.id, s.cfg.Mode)
}

// Pause freezes a match in progress.
func (s *Session) Pause(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.AllowPause {
		return ErrPauseDisabled
	}
	if s.indexOfLocked(playerID) < 0 {
		return ErrPlayerNotFound
	}
	if s.status != StatusPlaying {
		return ErrNotPlaying
	}
	s.status = StatusPaused
	s.lastActivity = s.now()
	s.emitLocked(EventGamePaused, PausePayload{PlayerID: playerID})
	return nil
}

// Resume continues a paused match.
func (s *Session) Resume(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOfLocked(playerID) < 0 {
		return ErrPlayerNotFound
	}
	if s.status != StatusPaused {
		return ErrNotPlaying
	}
	s.status = StatusPlaying
	s.lastActivity = s.now()
	s.emitLocked(EventGameResumed, PausePayload{PlayerID: playerID})
	return nil
}

// SetDirection records the paddle direction for the next ticks. Last write wins.
func (s *Session) SetDirection(playerID string, dir physics.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfLocked(playerID)
	if i < 0 || s.players[i].IsAI {
		return ErrPlayerNotFound
	}
	if s.status == StatusFinished {
		return ErrNotPlaying
	}
	s.dirs[i] = dir
	s.lastActivity = s.now()
	return nil
}

// SetAIDifficulty retunes every AI in the session without resetting its memory.
func (s *Session) SetAIDifficulty(d ai.Difficulty) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg.AIDifficulty = d
	for _, engine := range s.ais {
		if engine != nil {
			engine.SetDifficulty(d)
		}
	}
}

// MarkDisconnected records that a player's connection went away. The paddle
// stops and the forfeit clock starts.
func (s *Session) MarkDisconnected(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfLocked(playerID)
	if i < 0 {
		return
	}
	p := s.players[i]
	if p.IsAI || !p.IsConnected {
		return
	}
	p.IsConnected = false
	p.DisconnectedAt = s.now()
	s.dirs[i] = physics.DirStop

	if s.status != StatusFinished {
		s.emitLocked(EventPlayerDisconnected, PlayerPayload{Player: *p})
		log.Printf("🔌 %s disconnected from game %s", p.Name, s.id)
	}
}

// Leave is an explicit exit. While waiting the slot is freed; once the match
// is under way the opponent wins immediately.
func (s *Session) Leave(playerID string) error {
	s.mu.Lock()
	i := s.indexOfLocked(playerID)
	if i < 0 {
		s.mu.Unlock()
		return ErrPlayerNotFound
	}

	p := s.players[i]
	now := s.now()
	p.IsConnected = false
	p.DisconnectedAt = now
	s.emitLocked(EventPlayerLeft, PlayerPayload{Player: *p})

	switch s.status {
	case StatusWaiting:
		s.players[i] = nil
		s.ais[i] = nil
		s.lastActivity = now
	case StatusCountdown, StatusPlaying, StatusPaused:
		s.finishLocked(s.players[1-i], ReasonLeft, now)
	}

	summary := s.takeSummaryLocked()
	s.mu.Unlock()

	s.report(summary)
	return nil
}

// ForceFinish ends the session with the given reason. A tournament match with
// a single seated player awards them the win; otherwise there is no winner.
// It returns false if the session had already finished.
func (s *Session) ForceFinish(reason string) bool {
	s.mu.Lock()
	if s.status == StatusFinished {
		s.mu.Unlock()
		return false
	}

	var winner *Player
	if s.cfg.Mode == ModeTournament {
		switch {
		case s.players[0] != nil && s.players[1] == nil:
			winner = s.players[0]
		case s.players[0] == nil && s.players[1] != nil:
			winner = s.players[1]
		}
	}
	s.finishLocked(winner, reason, s.now())
	summary := s.takeSummaryLocked()
	s.mu.Unlock()

	s.report(summary)
	return true
}

// =============================================================================
// TICK
// =============================================================================

// Run drives Tick on a fixed ticker until the session finishes or ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.Tick(s.now())
		}
	}
}

// Tick advances the session by one fixed step.
func (s *Session) Tick(now time.Time) {
	start := time.Now()

	s.mu.Lock()
	s.tickLocked(now)
	summary := s.takeSummaryLocked()
	s.mu.Unlock()

	metrics.RecordTick(time.Since(start))
	s.report(summary)
}

func (s *Session) tickLocked(now time.Time) {
	if s.status == StatusFinished {
		return
	}
	if s.checkForfeitLocked(now) {
		return
	}

	switch s.status {
	case StatusCountdown:
		if !now.Before(s.countdownEnds) {
			s.startPlayingLocked(now)
			return
		}
		s.emitCountdownLocked(now)
	case StatusPlaying:
		s.stepLocked(now)
	}
}

// checkForfeitLocked finishes the match when a human has been disconnected
// for longer than the grace period.
func (s *Session) checkForfeitLocked(now time.Time) bool {
	var timedOut [2]bool
	for i, p := range s.players {
		if p == nil || p.IsAI || p.IsConnected {
			continue
		}
		timedOut[i] = now.Sub(p.DisconnectedAt) > s.cfg.ForfeitGrace
	}

	switch {
	case timedOut[0] && timedOut[1]:
		s.finishLocked(nil, ReasonAbandoned, now)
	case timedOut[0]:
		s.finishLocked(s.players[1], ReasonForfeit, now)
	case timedOut[1]:
		s.finishLocked(s.players[0], ReasonForfeit, now)
	default:
		return false
	}
	return true
}

// stepLocked runs one playing tick: paddle inputs, AI, ball physics, scoring.
func (s *Session) stepLocked(now time.Time) {
	s.tickCount++
	s.lastActivity = now

	dt := 1.0 / float64(s.cfg.TickRate)
	dims := s.cfg.Layout.Dims

	for i, p := range s.players {
		if p != nil && !p.IsAI {
			s.paddles[i] = physics.MovePaddle(s.paddles[i], s.dirs[i], dt, dims)
		}
	}

	for i, engine := range s.ais {
		if engine == nil {
			continue
		}
		cmd := engine.Update(ai.Snapshot{Ball: s.ball, Paddle: s.paddles[i], Dims: dims}, now)
		s.paddles[i] = physics.MovePaddle(s.paddles[i], cmd.Direction(), dt, dims)
	}

	b := physics.AdvanceBall(s.ball, dt)
	b, _ = physics.ReflectOffWalls(b, dims)
	for i, paddle := range s.paddles {
		if physics.DetectPaddleCollision(b, paddle) {
			b = physics.ResolvePaddleCollision(b, paddle, paddleSide(i), s.cfg.Layout.BallMaxSpeed)
		}
	}
	s.ball = physics.CapVelocity(b, s.cfg.Layout.BallMaxSpeed)

	if scorer := physics.CheckOutOfBounds(s.ball, dims); scorer != physics.SideNone {
		if s.awardPointLocked(scorer, now) {
			return
		}
	}

	s.emitLocked(EventGameState, s.statePayloadLocked())
}

// paddleSide maps a paddle index to the goal it defends.
func paddleSide(i int) physics.Side {
	if i == 0 {
		return physics.SideLeft
	}
	return physics.SideRight
}

// awardPointLocked scores for scorer and reports whether the match ended.
func (s *Session) awardPointLocked(scorer physics.Side, now time.Time) bool {
	slot := 1
	if scorer == physics.SideLeft {
		s.score.Left++
	} else {
		s.score.Right++
		slot = 2
	}
	s.emitLocked(EventScore, ScorePayload{ScorerSlot: slot, Score: s.score})

	if s.score.Left >= s.cfg.MaxScore || s.score.Right >= s.cfg.MaxScore {
		s.emitLocked(EventGameState, s.statePayloadLocked())
		s.finishLocked(s.players[slot-1], ReasonScore, now)
		return true
	}

	// Serve towards the side that conceded.
	s.ball = physics.ResetBall(s.ball, s.cfg.Layout.Dims, scorer.Opposite(), s.cfg.Layout.BallSpeed, s.rng)
	return false
}

// finishLocked moves the session to its terminal state and queues the summary.
// A nil winner always means the match was abandoned.
func (s *Session) finishLocked(winner *Player, reason string, now time.Time) {
	if s.status == StatusFinished {
		return
	}
	if winner == nil && reason != ReasonIdle {
		reason = ReasonAbandoned
	}

	s.status = StatusFinished
	s.endedAt = now
	s.reason = reason
	if winner != nil {
		w := *winner
		s.winner = &w
	}

	summary := MatchSummary{
		SessionID:    s.id,
		Mode:         s.cfg.Mode,
		Score1:       s.score.Left,
		Score2:       s.score.Right,
		Winner:       s.winner,
		Reason:       reason,
		StartedAt:    s.startedAt,
		EndedAt:      now,
		TournamentID: s.cfg.TournamentID,
		MatchLabel:   s.cfg.MatchLabel,
	}
	if s.players[0] != nil {
		summary.Player1 = *s.players[0]
	}
	if s.players[1] != nil {
		summary.Player2 = *s.players[1]
	}
	if !s.startedAt.IsZero() {
		summary.DurationMs = now.Sub(s.startedAt).Milliseconds()
	}
	s.pending = &summary

	s.emitLocked(EventGameEnd, EndPayload{
		Winner:     s.winner,
		Score:      s.score,
		Reason:     reason,
		DurationMs: summary.DurationMs,
	})
	close(s.done)

	metrics.MatchFinished(reason)
	log.Printf("🏁 Game %s finished (%s) %d-%d", s.id, reason, s.score.Left, s.score.Right)
}

func (s *Session) takeSummaryLocked() *MatchSummary {
	summary := s.pending
	s.pending = nil
	return summary
}

func (s *Session) report(summary *MatchSummary) {
	if summary != nil && s.reporter != nil {
		s.reporter(*summary)
	}
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID           string             `json:"id"`
	Mode         Mode               `json:"mode"`
	Status       Status             `json:"status"`
	Dimensions   physics.Dimensions `json:"dimensions"`
	MaxScore     int                `json:"maxScore"`
	AllowPause   bool               `json:"allowPause"`
	Ball         physics.Ball       `json:"ball"`
	LeftPaddle   physics.Paddle     `json:"leftPaddle"`
	RightPaddle  physics.Paddle     `json:"rightPaddle"`
	Score        Score              `json:"score"`
	Players      []Player           `json:"players"`
	Winner       *Player            `json:"winner,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	TournamentID string             `json:"tournamentId,omitempty"`
	MatchLabel   string             `json:"matchLabel,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	StartedAt    *time.Time         `json:"startedAt,omitempty"`
	EndedAt      *time.Time         `json:"endedAt,omitempty"`
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:           s.id,
		Mode:         s.cfg.Mode,
		Status:       s.status,
		Dimensions:   s.cfg.Layout.Dims,
		MaxScore:     s.cfg.MaxScore,
		AllowPause:   s.cfg.AllowPause,
		Ball:         s.ball,
		LeftPaddle:   s.paddles[0],
		RightPaddle:  s.paddles[1],
		Score:        s.score,
		Players:      s.playersLocked(),
		Winner:       s.winner,
		Reason:       s.reason,
		TournamentID: s.cfg.TournamentID,
		MatchLabel:   s.cfg.MatchLabel,
		CreatedAt:    s.createdAt,
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if !s.endedAt.IsZero() {
		t := s.endedAt
		snap.EndedAt = &t
	}
	return snap
}

func (s *Session) statePayloadLocked() StatePayload {
	return StatePayload{
		Tick:        s.tickCount,
		Ball:        s.ball,
		LeftPaddle:  s.paddles[0],
		RightPaddle: s.paddles[1],
		Score:       s.score,
	}
}

func (s *Session) playersLocked() []Player {
	out := make([]Player, 0, 2)
	for _, p := range s.players {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func (s *Session) fullLocked() bool {
	return s.players[0] != nil && s.players[1] != nil
}

func (s *Session) indexOfLocked(playerID string) int {
	for i, p := range s.players {
		if p != nil && p.ID == playerID {
			return i
		}
	}
	return -1
}

func (s *Session) emitLocked(t EventType, data interface{}) {
	s.sequence++
	s.sink.Publish(Event{
		Type:      t,
		SessionID: s.id,
		Sequence:  s.sequence,
		Timestamp: s.now(),
		Data:      data,
	})
}
