package game

import (
	"time"

	"pong-arena/internal/physics"
)

// EventType names an event a session publishes. The values double as the
// outbound wire types.
type EventType string

const (
	EventGameCreated        EventType = "gameCreated"
	EventGameStarted        EventType = "gameStarted"
	EventGameState          EventType = "gameState"
	EventScore              EventType = "score"
	EventGameEnd            EventType = "gameEnd"
	EventCountdown          EventType = "countdown"
	EventPlayerJoined       EventType = "playerJoined"
	EventPlayerLeft         EventType = "playerLeft"
	EventPlayerDisconnected EventType = "playerDisconnected"
	EventGamePaused         EventType = "gamePaused"
	EventGameResumed        EventType = "gameResumed"
)

// Event is one thing that happened in a session, in production order.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"gameId"`
	Sequence  uint64      `json:"sequence"` // per session, monotonic
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// EventSink consumes session events. Publish is called with the session lock
// held, so implementations must not block and must not call back into the session.
type EventSink interface {
	Publish(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Publish(ev Event) { f(ev) }

// Sinks fans one event out to several sinks in order.
type Sinks []EventSink

func (s Sinks) Publish(ev Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Publish(ev)
		}
	}
}

type nopSink struct{}

func (nopSink) Publish(Event) {}

// Typed payloads for the different event types

// StatePayload is the per-tick state broadcast.
type StatePayload struct {
	Tick        uint64         `json:"tick"`
	Ball        physics.Ball   `json:"ball"`
	LeftPaddle  physics.Paddle `json:"leftPaddle"`
	RightPaddle physics.Paddle `json:"rightPaddle"`
	Score       Score          `json:"score"`
}

// ScorePayload announces a point.
type ScorePayload struct {
	ScorerSlot int   `json:"scorerSlot"`
	Score      Score `json:"score"`
}

// EndPayload announces the end of a match. Reason is one of the Reason* constants.
type EndPayload struct {
	Winner     *Player `json:"winner"`
	Score      Score   `json:"score"`
	Reason     string  `json:"reason"`
	DurationMs int64   `json:"durationMs"`
}

// CountdownPayload carries the whole seconds left before play starts.
type CountdownPayload struct {
	Seconds int `json:"seconds"`
}

// PlayerPayload carries the player a join/leave/disconnect event is about.
type PlayerPayload struct {
	Player      Player `json:"player"`
	Reconnected bool   `json:"reconnected,omitempty"`
}

// PausePayload names who paused or resumed.
type PausePayload struct {
	PlayerID string `json:"playerId"`
}
