package game

import (
	"errors"
	"time"

	"pong-arena/internal/ai"
	"pong-arena/internal/physics"
)

// Sentinel errors returned by sessions and the manager.
var (
	ErrSessionNotFound = errors.New("game not found")
	ErrSessionFull     = errors.New("game is full")
	ErrNotJoinable     = errors.New("game is not accepting players")
	ErrNotStartable    = errors.New("game cannot be started")
	ErrPauseDisabled   = errors.New("pausing is disabled for this game")
	ErrNotPlaying      = errors.New("game is not in progress")
	ErrPlayerNotFound  = errors.New("player not in this game")
	ErrTooManySessions = errors.New("server is at its game limit")
	ErrSessionExists   = errors.New("game id already in use")
	ErrInvalidID       = errors.New("invalid game id")
)

// Mode is the kind of match.
type Mode string

const (
	ModePvP        Mode = "pvp"
	ModePvE        Mode = "pve"
	ModeTournament Mode = "tournament"
)

// ParseMode accepts pvp, pve or tournament; anything else is pvp.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModePvE, ModeTournament:
		return Mode(s)
	default:
		return ModePvP
	}
}

// Status is the session lifecycle state.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCountdown Status = "countdown"
	StatusPlaying   Status = "playing"
	StatusPaused    Status = "paused"
	StatusFinished  Status = "finished"
)

// Reasons a match can finish.
const (
	ReasonScore     = "score"
	ReasonForfeit   = "forfeit"
	ReasonLeft      = "left"
	ReasonAbandoned = "abandoned"
	ReasonIdle      = "idle"
)

// Score is the running score. Left belongs to slot 1, Right to slot 2.
type Score struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Player occupies one of the two paddle slots. Players are never removed
// from a session; a closed connection only clears IsConnected.
type Player struct {
	ID             string    `json:"id"`
	Slot           int       `json:"slot"`
	Name           string    `json:"name"`
	IsAI           bool      `json:"isAI"`
	IsConnected    bool      `json:"isConnected"`
	DisconnectedAt time.Time `json:"-"`
	UserID         string    `json:"userId,omitempty"`
}

// PlayerInfo is what a joining human supplies.
type PlayerInfo struct {
	Name   string
	UserID string
}

// SessionConfig holds the per-match settings.
type SessionConfig struct {
	Mode         Mode
	Layout       physics.Layout
	TickRate     int
	MaxScore     int
	AIDifficulty ai.Difficulty
	Countdown    time.Duration
	ForfeitGrace time.Duration
	AllowPause   bool
	AutoStart    bool // begin the countdown as soon as the second slot fills

	// Set for tournament matches. ReservedNames[i] may only sit in slot i+1.
	TournamentID  string
	MatchLabel    string
	ReservedNames []string
}

// DefaultSessionConfig returns a pvp configuration on the default court.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Mode:         ModePvP,
		Layout:       physics.DefaultLayout(),
		TickRate:     60,
		MaxScore:     5,
		AIDifficulty: ai.Medium,
		Countdown:    time.Second,
		ForfeitGrace: 10 * time.Second,
		AllowPause:   true,
		AutoStart:    true,
	}
}

func (c SessionConfig) normalized() SessionConfig {
	def := DefaultSessionConfig()
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.Layout.Dims.Width <= 0 || c.Layout.Dims.Height <= 0 {
		c.Layout = def.Layout
	}
	if c.TickRate <= 0 {
		c.TickRate = def.TickRate
	}
	if c.MaxScore <= 0 {
		c.MaxScore = def.MaxScore
	}
	if c.AIDifficulty == "" {
		c.AIDifficulty = def.AIDifficulty
	}
	if c.Countdown < 0 {
		c.Countdown = 0
	}
	if c.ForfeitGrace <= 0 {
		c.ForfeitGrace = def.ForfeitGrace
	}
	if c.Mode == ModeTournament {
		c.AllowPause = false
	}
	return c
}

// MatchSummary is handed to the Reporter once a session finishes.
// Winner is nil when the match was abandoned.
type MatchSummary struct {
	SessionID    string    `json:"sessionId"`
	Mode         Mode      `json:"mode"`
	Player1      Player    `json:"player1"`
	Player2      Player    `json:"player2"`
	Score1       int       `json:"score1"`
	Score2       int       `json:"score2"`
	Winner       *Player   `json:"winner"`
	Reason       string    `json:"reason"`
	DurationMs   int64     `json:"durationMs"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt"`
	TournamentID string    `json:"tournamentId,omitempty"`
	MatchLabel   string    `json:"matchLabel,omitempty"`
}

// WinnerSlot returns 1 or 2, or 0 when there is no winner.
func (m MatchSummary) WinnerSlot() int {
	if m.Winner == nil {
		return 0
	}
	return m.Winner.Slot
}

// Reporter receives finished-match summaries. It is called outside the
// session lock and must not block.
type Reporter func(MatchSummary)
