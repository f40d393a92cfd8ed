// Package protocol defines the WebSocket wire format.
//
// Every frame is an envelope {type, data, gameId?, playerId?}. Inbound frames
// are decoded into one of a closed set of message structs; anything else is
// rejected at the boundary with ErrUnknownType or ErrMalformed.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pong-arena/internal/physics"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
)

// MaxMessageSize bounds a single inbound frame.
const MaxMessageSize = 4096

// Inbound message types
const (
	TypeCreateGame   = "createGame"
	TypeJoinGame     = "joinGame"
	TypeStartGame    = "startGame"
	TypeLeaveGame    = "leaveGame"
	TypePlayerMove   = "playerMove"
	TypeGetGames     = "getGames"
	TypeGetGameState = "getGameState"
	TypePauseGame    = "pauseGame"
	TypeResumeGame   = "resumeGame"
	TypePing         = "ping"
)

// Outbound message types not produced by sessions
const (
	TypeGameCreated = "gameCreated"
	TypeGameJoined  = "gameJoined"
	TypeGamesList   = "gamesList"
	TypeGameState   = "gameState"
	TypePong        = "pong"
	TypeError       = "error"
)

// Envelope is the raw frame in both directions.
type Envelope struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	GameID   string          `json:"gameId,omitempty"`
	PlayerID string          `json:"playerId,omitempty"`
}

// Inbound is implemented by every decodable client message.
type Inbound interface {
	Type() string
}

type CreateGame struct {
	Mode       string `json:"mode"` // pvp | pve
	Username   string `json:"username"`
	Difficulty string `json:"difficulty,omitempty"`
	MaxScore   int    `json:"maxScore,omitempty"`
}

type JoinGame struct {
	GameID   string `json:"gameId"`
	Username string `json:"username"`
	Spectate bool   `json:"spectate,omitempty"`
}

type StartGame struct {
	GameID string `json:"gameId"`
}

type LeaveGame struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

type PlayerMove struct {
	GameID    string `json:"gameId"`
	PlayerID  string `json:"playerId"`
	Direction string `json:"direction"` // up | down | stop
}

type GetGames struct{}

type GetGameState struct {
	GameID string `json:"gameId"`
}

type PauseGame struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

type ResumeGame struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

type Ping struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

func (CreateGame) Type() string   { return TypeCreateGame }
func (JoinGame) Type() string     { return TypeJoinGame }
func (StartGame) Type() string    { return TypeStartGame }
func (LeaveGame) Type() string    { return TypeLeaveGame }
func (PlayerMove) Type() string   { return TypePlayerMove }
func (GetGames) Type() string     { return TypeGetGames }
func (GetGameState) Type() string { return TypeGetGameState }
func (PauseGame) Type() string    { return TypePauseGame }
func (ResumeGame) Type() string   { return TypeResumeGame }
func (Ping) Type() string         { return TypePing }

// Dir converts the textual direction.
func (m PlayerMove) Dir() physics.Direction {
	switch m.Direction {
	case "up":
		return physics.DirUp
	case "down":
		return physics.DirDown
	default:
		return physics.DirStop
	}
}

// Decode parses one inbound frame into its message struct.
// gameId and playerId on the envelope fill in fields the data object leaves empty.
func Decode(raw []byte) (Inbound, error) {
	if len(raw) > MaxMessageSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrMalformed, len(raw), MaxMessageSize)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch env.Type {
	case TypeCreateGame:
		var m CreateGame
		if err := decodeData(env, &m); err != nil {
			return nil, err
		}
		m.Username = strings.TrimSpace(m.Username)
		if m.Mode == "" {
			m.Mode = "pvp"
		}
		if m.Mode != "pvp" && m.Mode != "pve" {
			return nil, fmt.Errorf("%w: mode must be pvp or pve", ErrMalformed)
		}
		if m.Username == "" {
			return nil, fmt.Errorf("%w: username is required", ErrMalformed)
		}
		if m.MaxScore < 0 || m.MaxScore > 21 {
			return nil, fmt.Errorf("%w: maxScore must be between 1 and 21", ErrMalformed)
		}
		return m, nil

	case TypeJoinGame:
		var m JoinGame
		if err := decodeData(env, &m); err != nil {
			return nil, err
		}
		m.GameID = firstNonEmpty(m.GameID, env.GameID)
		m.Username = strings.TrimSpace(m.Username)
		if m.GameID == "" || m.Username == "" {
			return nil, fmt.Errorf("%w: gameId and username are required", ErrMalformed)
		}
		return m, nil

	case TypeStartGame:
		var m StartGame
		if err := decodeData(env, &m); err != nil {
			return nil, err
		}
		m.GameID = firstNonEmpty(m.GameID, env.GameID)
		if m.GameID == "" {
			return nil, fmt.Errorf("%w: gameId is required", ErrMalformed)
		}
		return m, nil

	case TypeLeaveGame:
		var m LeaveGame
		if err := decodeData(env, &m); err != nil {
			return nil, err
		}
		m.GameID = firstNonEmpty(m.GameID, env.GameID)
		m.PlayerID = firstNonEmpty(m.PlayerID, env.PlayerID)
		if m.GameID == "" {
			return nil, fmt.Errorf("%w: gameId is required", ErrMalformed)
		}
		return m, nil

	case TypePlayerMove:
		var m PlayerMove
		if err := decodeData(env, &m); err != nil {
			return nil, err
		}
		m.GameID = firstNonEmpty(m.GameID, env.GameID)
		m.PlayerID = firstNonEmpty(m.PlayerID, env.PlayerID)
		switch m.Direction {
		case "up", "down", "stop":
		case "":
			m.Direction = "stop"
		default:
			return nil, fmt.Errorf("%w: direction must be up, down or stop", ErrMalformed)
		}
		if m.GameID == "" {
			return nil, fmt.Errorf("%w: gameId is required", ErrMalformed)
		}
		return m, nil

	case TypeGetGames:
		return GetGames{}, nil

	case TypeGetGameState:
		var m GetGameState
		if err := decodeData(env, &m); err != nil {
			return nil, err
		}
		m.GameID = firstNonEmpty(m.GameID, env.GameID)
		if m.GameID == "" {
			return nil, fmt.Errorf("%w: gameId is required", ErrMalformed)
		}
		return m, nil

	case TypePauseGame:
		var m PauseGame
		if err := decodeData(env, &m); err != nil {
			return nil, err
		}
		m.GameID = firstNonEmpty(m.GameID, env.GameID)
		m.PlayerID = firstNonEmpty(m.PlayerID, env.PlayerID)
		if m.GameID == "" {
			return nil, fmt.Errorf("%w: gameId is required", ErrMalformed)
		}
		return m, nil

	case TypeResumeGame:
		var m ResumeGame
		if err := decodeData(env, &m); err != nil {
			return nil, err
		}
		m.GameID = firstNonEmpty(m.GameID, env.GameID)
		m.PlayerID = firstNonEmpty(m.PlayerID, env.PlayerID)
		if m.GameID == "" {
			return nil, fmt.Errorf("%w: gameId is required", ErrMalformed)
		}
		return m, nil

	case TypePing:
		var m Ping
		if err := decodeData(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func decodeData(env Envelope, v interface{}) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformed, env.Type, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// OUTBOUND
// =============================================================================

// Outbound is a server → client frame.
type Outbound struct {
	Type   string      `json:"type"`
	Data   interface{} `json:"data,omitempty"`
	GameID string      `json:"gameId,omitempty"`
}

// ErrorPayload is the data of an error frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JoinedPayload is sent to the connection that joined or created a game.
type JoinedPayload struct {
	GameID    string      `json:"gameId"`
	PlayerID  string      `json:"playerId,omitempty"`
	Slot      int         `json:"slot,omitempty"`
	Spectator bool        `json:"spectator,omitempty"`
	State     interface{} `json:"state"`
}

// PongPayload echoes the client timestamp.
type PongPayload struct {
	Timestamp  int64 `json:"timestamp,omitempty"`
	ServerTime int64 `json:"serverTime"`
}

// NewError builds an error frame.
func NewError(gameID, code, message string) Outbound {
	return Outbound{
		Type:   TypeError,
		GameID: gameID,
		Data:   ErrorPayload{Code: code, Message: message},
	}
}

// Encode marshals an outbound frame.
func Encode(o Outbound) ([]byte, error) {
	return json.Marshal(o)
}
