package tournament

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pong-arena/internal/ai"
)

var (
	ErrNotFound         = errors.New("tournament not found")
	ErrNotPending       = errors.New("tournament already started")
	ErrTournamentFull   = errors.New("tournament is full")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
	ErrForbidden        = errors.New("only the creator may do that")
	ErrAlreadyJoined    = errors.New("name already taken in this tournament")
	ErrInvalidName      = errors.New("name must not be empty")
	ErrMatchNotFound    = errors.New("match not found")
)

// Status is the tournament lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusStarted  Status = "started"
	StatusFinished Status = "finished"
)

// Tournament sizes a creator may pick.
var creatableSizes = map[int]bool{4: true, 8: true, 16: true}

// Tournament is a copy of the service's state; mutating it has no effect.
type Tournament struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Creator         string        `json:"creator"`
	Status          Status        `json:"status"`
	MaxPlayers      int           `json:"maxPlayers"`
	AllowEarlyStart bool          `json:"allowEarlyStart"`
	BotDifficulty   ai.Difficulty `json:"botDifficulty"`
	Participants    []Participant `json:"participants"`
	Rounds          [][]MatchPair `json:"rounds"`
	Champion        *Participant  `json:"champion,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	EndedAt         *time.Time    `json:"endedAt,omitempty"`
}

// CurrentRound returns the latest round's matches, or nil before start.
func (t Tournament) CurrentRound() []MatchPair {
	if len(t.Rounds) == 0 {
		return nil
	}
	return t.Rounds[len(t.Rounds)-1]
}

func (t *Tournament) clone() Tournament {
	out := *t
	out.Participants = append([]Participant(nil), t.Participants...)
	out.Rounds = make([][]MatchPair, len(t.Rounds))
	for i, r := range t.Rounds {
		out.Rounds[i] = append([]MatchPair(nil), r...)
	}
	if t.Champion != nil {
		c := *t.Champion
		out.Champion = &c
	}
	return out
}

// CreateRequest describes a new tournament.
type CreateRequest struct {
	Name            string
	Creator         string
	MaxPlayers      int
	AllowEarlyStart bool
	BotDifficulty   string
}

// record is the service-side state of a tournament. order keeps each round's
// winners in the order their matches completed.
type record struct {
	t     *Tournament
	order [][]Participant
}

// Service owns every tournament. All methods are safe for concurrent use and
// return copies.
type Service struct {
	mu          sync.Mutex
	tournaments map[string]*record

	rng *rand.Rand
	now func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithServiceRand makes seeding deterministic.
func WithServiceRand(rng *rand.Rand) ServiceOption {
	return func(s *Service) { s.rng = rng }
}

// WithServiceClock injects the time source.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates an empty tournament store.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		tournaments: make(map[string]*record),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a pending tournament. The creator is its first participant.
func (s *Service) Create(req CreateRequest) (Tournament, error) {
	name := strings.TrimSpace(req.Creator)
	if name == "" {
		return Tournament{}, ErrInvalidName
	}
	if !creatableSizes[req.MaxPlayers] {
		return Tournament{}, fmt.Errorf("%w: tournaments hold 4, 8 or 16 players, got %d", ErrInvalidPlayerCount, req.MaxPlayers)
	}
	difficulty := ai.Medium
	if req.BotDifficulty != "" {
		d, err := ai.ParseDifficulty(req.BotDifficulty)
		if err != nil {
			return Tournament{}, err
		}
		difficulty = d
	}

	title := strings.TrimSpace(req.Name)
	if title == "" {
		title = name + "'s tournament"
	}

	t := &Tournament{
		ID:              uuid.NewString(),
		Name:            title,
		Creator:         name,
		Status:          StatusPending,
		MaxPlayers:      req.MaxPlayers,
		AllowEarlyStart: req.AllowEarlyStart,
		BotDifficulty:   difficulty,
		Participants:    []Participant{{ID: uuid.NewString(), Name: name}},
		CreatedAt:       s.now(),
	}

	s.mu.Lock()
	s.tournaments[t.ID] = &record{t: t}
	out := t.clone()
	s.mu.Unlock()

	log.Printf("🏆 Tournament %s created by %s (%d players)", t.ID, name, t.MaxPlayers)
	return out, nil
}

// Join adds a human participant while the tournament is pending.
func (s *Service) Join(id, name string) (Tournament, Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tournament{}, Participant{}, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tournaments[id]
	if !ok {
		return Tournament{}, Participant{}, ErrNotFound
	}
	t := rec.t
	if t.Status != StatusPending {
		return Tournament{}, Participant{}, ErrNotPending
	}
	if len(t.Participants) >= t.MaxPlayers {
		return Tournament{}, Participant{}, ErrTournamentFull
	}
	for _, p := range t.Participants {
		if strings.EqualFold(p.Name, name) {
			return Tournament{}, Participant{}, ErrAlreadyJoined
		}
	}

	p := Participant{ID: uuid.NewString(), Name: name}
	t.Participants = append(t.Participants, p)
	log.Printf("👤 %s joined tournament %s (%d/%d)", name, id, len(t.Participants), t.MaxPlayers)
	return t.clone(), p, nil
}

// Start seeds round one. Without early start the tournament must be full;
// with it, the empty seats are filled with bots at the tournament's difficulty.
func (s *Service) Start(id, requester string) (Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tournaments[id]
	if !ok {
		return Tournament{}, ErrNotFound
	}
	t := rec.t
	if !strings.EqualFold(t.Creator, strings.TrimSpace(requester)) {
		return Tournament{}, ErrForbidden
	}
	if t.Status != StatusPending {
		return Tournament{}, ErrNotPending
	}

	participants := append([]Participant(nil), t.Participants...)
	if len(participants) < t.MaxPlayers && t.AllowEarlyStart {
		participants = padWithBots(participants, t.MaxPlayers)
	}
	if len(participants) < t.MaxPlayers {
		return Tournament{}, fmt.Errorf("%w: %d of %d joined", ErrNotEnoughPlayers, len(participants), t.MaxPlayers)
	}

	round, err := GenerateFirstRoundMatches(Shuffle(participants, s.rng), t.MaxPlayers)
	if err != nil {
		return Tournament{}, err
	}

	now := s.now()
	t.Participants = participants
	t.Rounds = [][]MatchPair{round}
	t.Status = StatusStarted
	t.StartedAt = &now
	rec.order = [][]Participant{nil}

	log.Printf("🏆 Tournament %s started: %d players, %d rounds", id, t.MaxPlayers, Rounds(t.MaxPlayers))
	return t.clone(), nil
}

// padWithBots appends Bot-1, Bot-2, ... until there are size participants,
// skipping names a human already uses.
func padWithBots(participants []Participant, size int) []Participant {
	taken := make(map[string]bool, len(participants))
	for _, p := range participants {
		taken[strings.ToLower(p.Name)] = true
	}
	for n := 1; len(participants) < size; n++ {
		name := fmt.Sprintf("Bot-%d", n)
		if taken[strings.ToLower(name)] {
			continue
		}
		participants = append(participants, Participant{ID: uuid.NewString(), Name: name, IsBot: true})
	}
	return participants
}

// Get returns a tournament by id.
func (s *Service) Get(id string) (Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tournaments[id]
	if !ok {
		return Tournament{}, ErrNotFound
	}
	return rec.t.clone(), nil
}

// List returns every tournament, newest first.
func (s *Service) List() []Tournament {
	s.mu.Lock()
	out := make([]Tournament, 0, len(s.tournaments))
	for _, rec := range s.tournaments {
		out = append(out, rec.t.clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Delete removes a tournament. Only its creator may delete it.
func (s *Service) Delete(id, requester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tournaments[id]
	if !ok {
		return ErrNotFound
	}
	if !strings.EqualFold(rec.t.Creator, strings.TrimSpace(requester)) {
		return ErrForbidden
	}
	delete(s.tournaments, id)
	log.Printf("🧹 Tournament %s deleted", id)
	return nil
}

// AttachSession records the game session playing a match.
func (s *Service) AttachSession(id string, round, match int, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.matchLocked(id, round, match)
	if err != nil {
		return err
	}
	pair.SessionID = sessionID
	return nil
}

// RecordWinner stores the result of a match. When it completes its round the
// next round is generated from the winners in completion order and returned.
// After the final the tournament is finished and the champion set.
func (s *Service) RecordWinner(id string, round, match int, winner Participant) ([]MatchPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.matchLocked(id, round, match)
	if err != nil {
		return nil, err
	}
	if pair.Done() {
		return nil, nil
	}
	if winner.ID != pair.Player1.ID && winner.ID != pair.Player2.ID {
		return nil, fmt.Errorf("%w: %s did not play %s", ErrInvariantViolation, winner.Name, pair.Label)
	}

	rec := s.tournaments[id]
	t := rec.t
	w := winner
	pair.Winner = &w
	rec.order[round-1] = append(rec.order[round-1], winner)

	current := t.Rounds[round-1]
	if len(rec.order[round-1]) < len(current) {
		return nil, nil
	}

	players := len(current) * 2
	if players == 2 {
		now := s.now()
		t.Champion = &w
		t.Status = StatusFinished
		t.EndedAt = &now
		log.Printf("🏆 Tournament %s won by %s", id, winner.Name)
		return nil, nil
	}

	next, err := GenerateNextRoundMatches(rec.order[round-1], players, round+1)
	if err != nil {
		return nil, err
	}
	t.Rounds = append(t.Rounds, next)
	rec.order = append(rec.order, nil)
	log.Printf("🏆 Tournament %s advancing to %s", id, RoundLabel(players/2, round+1))
	return append([]MatchPair(nil), next...), nil
}

func (s *Service) matchLocked(id string, round, match int) (*MatchPair, error) {
	rec, ok := s.tournaments[id]
	if !ok {
		return nil, ErrNotFound
	}
	t := rec.t
	if t.Status != StatusStarted {
		return nil, fmt.Errorf("%w: tournament %s is %s", ErrMatchNotFound, id, t.Status)
	}
	// Only the latest round is still being played.
	if round != len(t.Rounds) || match < 1 || match > len(t.Rounds[round-1]) {
		return nil, fmt.Errorf("%w: round %d match %d", ErrMatchNotFound, round, match)
	}
	return &t.Rounds[round-1][match-1], nil
}
