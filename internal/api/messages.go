package api

import (
	"errors"
	"log"
	"time"

	"pong-arena/internal/ai"
	"pong-arena/internal/game"
	"pong-arena/internal/protocol"
)

// handle applies one decoded client message. Failures are answered with an
// error frame; the connection stays open.
func (h *Hub) handle(c *client, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.CreateGame:
		h.handleCreate(c, m)
	case protocol.JoinGame:
		h.handleJoin(c, m)
	case protocol.StartGame:
		h.withSession(c, m.GameID, func(s *game.Session) error { return s.Start() })
	case protocol.LeaveGame:
		h.handleLeave(c, m)
	case protocol.PlayerMove:
		h.withPlayer(c, m.GameID, m.PlayerID, func(s *game.Session, playerID string) error {
			return s.SetDirection(playerID, m.Dir())
		})
	case protocol.PauseGame:
		h.withPlayer(c, m.GameID, m.PlayerID, func(s *game.Session, playerID string) error {
			return s.Pause(playerID)
		})
	case protocol.ResumeGame:
		h.withPlayer(c, m.GameID, m.PlayerID, func(s *game.Session, playerID string) error {
			return s.Resume(playerID)
		})
	case protocol.GetGames:
		h.sendTo(c, protocol.Outbound{Type: protocol.TypeGamesList, Data: h.manager.ListActive()})
	case protocol.GetGameState:
		s, ok := h.manager.GetSession(m.GameID)
		if !ok {
			h.sendError(c, m.GameID, game.ErrSessionNotFound)
			return
		}
		h.sendTo(c, protocol.Outbound{Type: protocol.TypeGameState, Data: s.Snapshot(), GameID: m.GameID})
	case protocol.Ping:
		h.sendTo(c, protocol.Outbound{
			Type: protocol.TypePong,
			Data: protocol.PongPayload{Timestamp: m.Timestamp, ServerTime: time.Now().UnixMilli()},
		})
	default:
		h.sendTo(c, protocol.NewError("", "unknown_type", "unsupported message"))
	}
}

func (h *Hub) handleCreate(c *client, m protocol.CreateGame) {
	cfg := h.manager.SessionConfig(game.ParseMode(m.Mode))
	if m.Difficulty != "" {
		d, err := ai.ParseDifficulty(m.Difficulty)
		if err != nil {
			h.sendTo(c, protocol.NewError("", "invalid_difficulty", err.Error()))
			return
		}
		cfg.AIDifficulty = d
	}
	if m.MaxScore > 0 {
		cfg.MaxScore = m.MaxScore
	}

	s, err := h.manager.CreateSession(cfg)
	if err != nil {
		h.sendError(c, "", err)
		return
	}
	h.created(c, s)
	h.joinAsPlayer(c, s, m.Username)
}

// created tells the creator about the new game. The session's own
// gameCreated event fires before any connection is attached to it.
func (h *Hub) created(c *client, s *game.Session) {
	h.sendTo(c, protocol.Outbound{
		Type:   protocol.TypeGameCreated,
		GameID: s.ID(),
		Data:   s.Snapshot(),
	})
}

func (h *Hub) handleJoin(c *client, m protocol.JoinGame) {
	s, ok := h.manager.GetSession(m.GameID)
	if !ok {
		h.sendError(c, m.GameID, game.ErrSessionNotFound)
		return
	}
	if m.Spectate {
		h.rebind(c, s.ID(), "", true)
		h.sendTo(c, protocol.Outbound{
			Type:   protocol.TypeGameJoined,
			GameID: s.ID(),
			Data:   protocol.JoinedPayload{GameID: s.ID(), Spectator: true, State: s.Snapshot()},
		})
		return
	}
	h.joinAsPlayer(c, s, m.Username)
}

// joinAsPlayer attaches c to the game before seating the player, so the
// events the join itself produces reach the new player too.
func (h *Hub) joinAsPlayer(c *client, s *game.Session, username string) {
	prevGame, prevPlayer, prevSpectator := h.binding(c)
	h.rebind(c, s.ID(), "", false)

	p, err := s.AddPlayer(game.PlayerInfo{Name: username})
	if err != nil {
		// Restore whatever the connection was attached to before.
		h.bind(c, prevGame, prevPlayer, prevSpectator)
		if prevPlayer != "" && prevGame != s.ID() {
			if prev, ok := h.manager.GetSession(prevGame); ok {
				prev.Reconnect(prevPlayer)
			}
		}
		h.sendError(c, s.ID(), err)
		return
	}
	h.bind(c, s.ID(), p.ID, false)

	h.sendTo(c, protocol.Outbound{
		Type:   protocol.TypeGameJoined,
		GameID: s.ID(),
		Data: protocol.JoinedPayload{
			GameID:   s.ID(),
			PlayerID: p.ID,
			Slot:     p.Slot,
			State:    s.Snapshot(),
		},
	})
}

// autoJoin handles the gameId/username query parameters of the upgrade
// request: join the game if it exists, otherwise create a pvp game under
// that id. Without a gameId a game with a fresh id is created.
func (h *Hub) autoJoin(c *client, gameID, username string) {
	if gameID == "" {
		h.handleCreate(c, protocol.CreateGame{Mode: string(game.ModePvP), Username: username})
		return
	}
	if s, ok := h.manager.GetSession(gameID); ok {
		h.joinAsPlayer(c, s, username)
		return
	}

	s, err := h.manager.CreateSessionWithID(gameID, h.manager.SessionConfig(game.ModePvP))
	if errors.Is(err, game.ErrSessionExists) {
		// Lost the race to another connection with the same gameId.
		if s, ok := h.manager.GetSession(gameID); ok {
			h.joinAsPlayer(c, s, username)
			return
		}
	}
	if err != nil {
		h.sendError(c, gameID, err)
		return
	}
	h.created(c, s)
	h.joinAsPlayer(c, s, username)
}

func (h *Hub) handleLeave(c *client, m protocol.LeaveGame) {
	gameID, playerID, spectator := h.binding(c)
	if gameID != m.GameID {
		h.sendTo(c, protocol.NewError(m.GameID, "not_in_game", "Not attached to this game"))
		return
	}
	if spectator || playerID == "" {
		h.bind(c, "", "", false)
		return
	}
	if m.PlayerID != "" && m.PlayerID != playerID {
		h.sendTo(c, protocol.NewError(m.GameID, "forbidden", "Cannot act for another player"))
		return
	}

	s, ok := h.manager.GetSession(gameID)
	if ok {
		if err := s.Leave(playerID); err != nil && !errors.Is(err, game.ErrPlayerNotFound) {
			h.sendError(c, gameID, err)
		}
	}
	// Detached after Leave so the leaver still sees playerLeft / gameEnd.
	h.bind(c, "", "", false)
}

// rebind attaches c to a new game and marks the player it was bound to in
// another game as disconnected.
func (h *Hub) rebind(c *client, gameID, playerID string, spectator bool) {
	prevGame, prevPlayer := h.bind(c, gameID, playerID, spectator)
	if prevGame == "" || prevPlayer == "" || prevGame == gameID {
		return
	}
	if s, ok := h.manager.GetSession(prevGame); ok {
		s.MarkDisconnected(prevPlayer)
	}
}

func (h *Hub) withSession(c *client, gameID string, fn func(*game.Session) error) {
	s, ok := h.manager.GetSession(gameID)
	if !ok {
		h.sendError(c, gameID, game.ErrSessionNotFound)
		return
	}
	if err := fn(s); err != nil {
		h.sendError(c, gameID, err)
	}
}

// withPlayer runs fn for the player this connection is bound to. A
// connection may only act for its own player.
func (h *Hub) withPlayer(c *client, gameID, claimed string, fn func(*game.Session, string) error) {
	boundGame, playerID, _ := h.binding(c)
	if boundGame != gameID || playerID == "" {
		h.sendTo(c, protocol.NewError(gameID, "not_in_game", "Not a player in this game"))
		return
	}
	if claimed != "" && claimed != playerID {
		h.sendTo(c, protocol.NewError(gameID, "forbidden", "Cannot act for another player"))
		return
	}
	h.withSession(c, gameID, func(s *game.Session) error { return fn(s, playerID) })
}

func (h *Hub) sendError(c *client, gameID string, err error) {
	code, message := errorCode(err)
	if code == "internal" {
		log.Printf("❌ Client %s: %v", c.id, err)
	}
	h.sendTo(c, protocol.NewError(gameID, code, message))
}

// errorCode maps domain errors to wire error codes.
func errorCode(err error) (code, message string) {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		return "game_not_found", "Game not found"
	case errors.Is(err, game.ErrSessionFull):
		return "game_full", "Game is full"
	case errors.Is(err, game.ErrSessionExists):
		return "game_exists", "Game id already in use"
	case errors.Is(err, game.ErrInvalidID):
		return "invalid_game_id", "Invalid game id"
	case errors.Is(err, game.ErrNotJoinable):
		return "not_joinable", "Game cannot be joined"
	case errors.Is(err, game.ErrNotStartable):
		return "not_startable", "Game cannot be started yet"
	case errors.Is(err, game.ErrPauseDisabled):
		return "pause_disabled", "Pausing is disabled for this game"
	case errors.Is(err, game.ErrNotPlaying):
		return "not_playing", "Game is not in progress"
	case errors.Is(err, game.ErrPlayerNotFound):
		return "player_not_found", "Player not found"
	case errors.Is(err, game.ErrTooManySessions):
		return "server_full", "Too many games in progress"
	case errors.Is(err, protocol.ErrUnknownType):
		return "unknown_type", err.Error()
	case errors.Is(err, protocol.ErrMalformed):
		return "malformed", err.Error()
	default:
		return "internal", "Internal error"
	}
}
