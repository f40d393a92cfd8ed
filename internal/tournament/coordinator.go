package tournament

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"pong-arena/internal/game"
)

// MatchLauncher starts the game session for one bracket match and returns its id.
type MatchLauncher interface {
	LaunchMatch(t Tournament, pair MatchPair) (sessionID string, err error)
}

// ManagerLauncher launches matches as tournament sessions on a game.Manager.
// Both seats are reserved by name; bots are seated immediately.
type ManagerLauncher struct {
	Manager *game.Manager
}

func (l ManagerLauncher) LaunchMatch(t Tournament, pair MatchPair) (string, error) {
	cfg := l.Manager.SessionConfig(game.ModeTournament)
	cfg.AIDifficulty = t.BotDifficulty
	cfg.TournamentID = t.ID
	cfg.MatchLabel = pair.Label
	cfg.ReservedNames = []string{pair.Player1.Name, pair.Player2.Name}

	s, err := l.Manager.CreateSession(cfg)
	if err != nil {
		return "", fmt.Errorf("launch %s: %w", pair.Label, err)
	}
	for _, p := range []Participant{pair.Player1, pair.Player2} {
		if !p.IsBot {
			continue
		}
		if _, err := s.AddAI(p.Name); err != nil {
			l.Manager.RemoveSession(s.ID())
			return "", fmt.Errorf("seat %s in %s: %w", p.Name, pair.Label, err)
		}
	}
	return s.ID(), nil
}

type matchRef struct {
	tournamentID string
	round        int
	match        int
	player1      Participant
	player2      Participant
}

// Coordinator plays a started tournament to the end: it launches every
// match of a round, records winners as sessions report back and launches the
// next round once the current one is complete.
type Coordinator struct {
	svc      *Service
	launcher MatchLauncher

	mu      sync.Mutex
	byLabel map[string]matchRef // tournamentID + "/" + match label
}

// NewCoordinator wires a service to a launcher.
func NewCoordinator(svc *Service, launcher MatchLauncher) *Coordinator {
	return &Coordinator{
		svc:      svc,
		launcher: launcher,
		byLabel:  make(map[string]matchRef),
	}
}

// Start starts a tournament through the service and launches round one.
func (c *Coordinator) Start(id, requester string) (Tournament, error) {
	t, err := c.svc.Start(id, requester)
	if err != nil {
		return Tournament{}, err
	}
	c.launch(t, t.CurrentRound())
	return c.svc.Get(id)
}

func (c *Coordinator) launch(t Tournament, pairs []MatchPair) {
	for _, pair := range pairs {
		// Registered before launch: a bot-only match may finish before LaunchMatch returns.
		c.mu.Lock()
		c.byLabel[key(t.ID, pair.Label)] = matchRef{
			tournamentID: t.ID,
			round:        pair.Round,
			match:        pair.Match,
			player1:      pair.Player1,
			player2:      pair.Player2,
		}
		c.mu.Unlock()

		sessionID, err := c.launcher.LaunchMatch(t, pair)
		if err != nil {
			log.Printf("❌ Tournament %s: could not launch %s: %v", t.ID, pair.Label, err)
			c.mu.Lock()
			delete(c.byLabel, key(t.ID, pair.Label))
			c.mu.Unlock()
			// Keep the bracket moving; the first player advances.
			c.advance(t.ID, pair.Round, pair.Match, pair.Player1)
			continue
		}
		if err := c.svc.AttachSession(t.ID, pair.Round, pair.Match, sessionID); err != nil {
			log.Printf("⚠️ Tournament %s: %v", t.ID, err)
		}
	}
}

// Report consumes finished-match summaries; its signature matches
// game.Reporter. Summaries of non-tournament sessions are ignored.
func (c *Coordinator) Report(summary game.MatchSummary) {
	if summary.TournamentID == "" {
		return
	}

	c.mu.Lock()
	k := key(summary.TournamentID, summary.MatchLabel)
	ref, ok := c.byLabel[k]
	delete(c.byLabel, k)
	c.mu.Unlock()
	if !ok {
		return
	}

	// A match without a winner advances its first player.
	winner := ref.player1
	if summary.Winner != nil && summary.Winner.Name == ref.player2.Name {
		winner = ref.player2
	}
	c.advance(ref.tournamentID, ref.round, ref.match, winner)
}

func (c *Coordinator) advance(id string, round, match int, winner Participant) {
	next, err := c.svc.RecordWinner(id, round, match, winner)
	if err != nil {
		if errors.Is(err, ErrInvariantViolation) {
			log.Printf("❌ Tournament %s: %v", id, err)
		} else {
			log.Printf("⚠️ Tournament %s: dropping result of round %d match %d: %v", id, round, match, err)
		}
		return
	}
	if len(next) == 0 {
		return
	}
	t, err := c.svc.Get(id)
	if err != nil {
		return
	}
	c.launch(t, next)
}

func key(tournamentID, label string) string {
	return tournamentID + "/" + label
}
