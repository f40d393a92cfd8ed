// Package tournament seeds and advances single-elimination brackets.
//
// The pairing functions in this file are pure: they never shuffle, never
// reorder and never drop a participant. Seeding order is decided by the
// caller (Shuffle for round one, match-completion order afterwards).
package tournament

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	ErrInvalidPlayerCount = errors.New("player count must be a power of two between 2 and 64")
	ErrInvariantViolation = errors.New("bracket invariant violated")
)

// validCounts are the bracket sizes a tournament may have.
var validCounts = map[int]bool{2: true, 4: true, 8: true, 16: true, 32: true, 64: true}

// Participant is a tournament entrant. Bots are filled in at start to reach
// the bracket size.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	IsBot bool   `json:"isBot"`
}

// MatchPair is one match of one round.
type MatchPair struct {
	Round     int          `json:"round"`
	Match     int          `json:"match"`
	Label     string       `json:"label"`
	Player1   Participant  `json:"player1"`
	Player2   Participant  `json:"player2"`
	SessionID string       `json:"sessionId,omitempty"`
	Winner    *Participant `json:"winner,omitempty"`
}

// Done reports whether the match has a recorded winner.
func (m MatchPair) Done() bool { return m.Winner != nil }

// ValidatePlayerCount accepts 2, 4, 8, 16, 32 or 64.
func ValidatePlayerCount(n int) error {
	if !validCounts[n] {
		return fmt.Errorf("%w: got %d", ErrInvalidPlayerCount, n)
	}
	return nil
}

// Shuffle returns a Fisher-Yates shuffled copy of participants.
func Shuffle(participants []Participant, rng *rand.Rand) []Participant {
	out := make([]Participant, len(participants))
	copy(out, participants)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// GenerateFirstRoundMatches pairs participants positionally: 0 with 1, 2 with 3 and so on.
func GenerateFirstRoundMatches(participants []Participant, n int) ([]MatchPair, error) {
	if err := ValidatePlayerCount(n); err != nil {
		return nil, err
	}
	if len(participants) != n {
		return nil, fmt.Errorf("%w: %d participants for a bracket of %d", ErrInvariantViolation, len(participants), n)
	}
	return pairUp(participants, n, 1), nil
}

// GenerateNextRoundMatches pairs the winners of a round in the order given.
// currentRoundPlayers is the player count of the round that just finished.
func GenerateNextRoundMatches(winners []Participant, currentRoundPlayers, round int) ([]MatchPair, error) {
	if currentRoundPlayers < 4 || currentRoundPlayers%2 != 0 {
		return nil, fmt.Errorf("%w: no round follows a round of %d players", ErrInvariantViolation, currentRoundPlayers)
	}
	if len(winners) != currentRoundPlayers/2 {
		return nil, fmt.Errorf("%w: %d winners from a round of %d players", ErrInvariantViolation, len(winners), currentRoundPlayers)
	}
	return pairUp(winners, len(winners), round), nil
}

func pairUp(players []Participant, count, round int) []MatchPair {
	matches := make([]MatchPair, 0, count/2)
	for i := 0; i+1 < count; i += 2 {
		num := i/2 + 1
		matches = append(matches, MatchPair{
			Round:   round,
			Match:   num,
			Label:   MatchLabel(count, round, num),
			Player1: players[i],
			Player2: players[i+1],
		})
	}
	return matches
}

// RoundLabel names a round by how many players are in it.
func RoundLabel(players, round int) string {
	switch players {
	case 2:
		return "Final"
	case 4:
		return "1/2"
	case 8:
		return "1/4"
	case 16:
		return "1/8"
	case 32:
		return "1/16"
	default:
		return fmt.Sprintf("Round-%d", round)
	}
}

// MatchLabel is the round label with the match number appended, e.g. "1/4(3)".
// The final has no number.
func MatchLabel(players, round, match int) string {
	label := RoundLabel(players, round)
	if players == 2 {
		return label
	}
	return fmt.Sprintf("%s(%d)", label, match)
}

// Rounds returns how many rounds a bracket of n players has.
func Rounds(n int) int {
	r := 0
	for n > 1 {
		n /= 2
		r++
	}
	return r
}
