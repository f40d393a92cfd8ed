package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pong-arena/internal/ai"
	"pong-arena/internal/tournament"
)

const maxBodyBytes = 1 << 16

func (h *routerHandlers) handleListGames(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("status") == "waiting" {
		writeJSON(w, h.games.ListWaiting())
		return
	}
	writeJSON(w, h.games.ListActive())
}

func (h *routerHandlers) handleGetGame(w http.ResponseWriter, r *http.Request) {
	s, ok := h.games.GetSession(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "Game not found", http.StatusNotFound)
		return
	}
	writeJSON(w, s.Snapshot())
}

func (h *routerHandlers) handleListTournaments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.tournaments.List())
}

func (h *routerHandlers) handleCreateTournament(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Username        string `json:"username"`
		MaxPlayers      int    `json:"maxPlayers"`
		AllowEarlyStart bool   `json:"allowEarlyStart"`
		BotDifficulty   string `json:"botDifficulty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	t, err := h.tournaments.Create(tournament.CreateRequest{
		Name:            req.Name,
		Creator:         req.Username,
		MaxPlayers:      req.MaxPlayers,
		AllowEarlyStart: req.AllowEarlyStart,
		BotDifficulty:   req.BotDifficulty,
	})
	if err != nil {
		writeTournamentError(w, err)
		return
	}
	writeJSONStatus(w, t, http.StatusCreated)
}

func (h *routerHandlers) handleGetTournament(w http.ResponseWriter, r *http.Request) {
	t, err := h.tournaments.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeTournamentError(w, err)
		return
	}
	writeJSON(w, t)
}

func (h *routerHandlers) handleJoinTournament(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	t, p, err := h.tournaments.Join(chi.URLParam(r, "id"), req.Username)
	if err != nil {
		writeTournamentError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"tournament":  t,
		"participant": p,
	})
}

func (h *routerHandlers) handleStartTournament(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	t, err := h.starter.Start(chi.URLParam(r, "id"), req.Username)
	if err != nil {
		writeTournamentError(w, err)
		return
	}
	writeJSON(w, t)
}

func (h *routerHandlers) handleDeleteTournament(w http.ResponseWriter, r *http.Request) {
	requester := r.URL.Query().Get("username")
	if err := h.tournaments.Delete(chi.URLParam(r, "id"), requester); err != nil {
		writeTournamentError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody reads a JSON request body, answering 400 itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeTournamentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tournament.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, tournament.ErrForbidden):
		writeError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, tournament.ErrNotPending),
		errors.Is(err, tournament.ErrTournamentFull),
		errors.Is(err, tournament.ErrNotEnoughPlayers),
		errors.Is(err, tournament.ErrAlreadyJoined):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, tournament.ErrInvalidPlayerCount),
		errors.Is(err, tournament.ErrInvalidName),
		errors.Is(err, ai.ErrUnknownDifficulty):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("❌ Tournament request failed: %v", err)
		writeError(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, data, http.StatusOK)
}

func writeJSONStatus(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
