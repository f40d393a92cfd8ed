package tournament

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pong-arena/internal/ai"
	"pong-arena/internal/game"
)

func newService() *Service {
	return NewService(WithServiceRand(rand.New(rand.NewSource(1))))
}

func createWith(t *testing.T, svc *Service, max int, early bool, humans int) Tournament {
	t.Helper()
	tour, err := svc.Create(CreateRequest{Name: "cup", Creator: "host", MaxPlayers: max, AllowEarlyStart: early, BotDifficulty: "hard"})
	require.NoError(t, err)
	for i := 1; i < humans; i++ {
		_, _, err := svc.Join(tour.ID, fmt.Sprintf("player-%d", i))
		require.NoError(t, err)
	}
	return tour
}

func TestCreateValidatesSize(t *testing.T) {
	svc := newService()
	for _, n := range []int{2, 3, 32} {
		_, err := svc.Create(CreateRequest{Creator: "host", MaxPlayers: n})
		assert.ErrorIs(t, err, ErrInvalidPlayerCount, "n=%d", n)
	}

	tour, err := svc.Create(CreateRequest{Creator: "host", MaxPlayers: 4})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, tour.Status)
	assert.Equal(t, ai.Medium, tour.BotDifficulty)
	assert.Len(t, tour.Participants, 1)

	_, err = svc.Create(CreateRequest{Creator: "host", MaxPlayers: 4, BotDifficulty: "impossible"})
	assert.Error(t, err)
}

func TestJoinRules(t *testing.T) {
	svc := newService()
	tour := createWith(t, svc, 4, false, 3)

	_, _, err := svc.Join(tour.ID, "PLAYER-1")
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	_, _, err = svc.Join(tour.ID, "last")
	require.NoError(t, err)

	_, _, err = svc.Join(tour.ID, "extra")
	assert.ErrorIs(t, err, ErrTournamentFull)

	_, _, err = svc.Join("missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEarlyStartPadsBots(t *testing.T) {
	svc := newService()
	tour := createWith(t, svc, 8, true, 5)

	started, err := svc.Start(tour.ID, "host")
	require.NoError(t, err)

	assert.Equal(t, StatusStarted, started.Status)
	require.Len(t, started.Participants, 8)
	bots := 0
	for _, p := range started.Participants {
		if p.IsBot {
			bots++
		}
	}
	assert.Equal(t, 3, bots)
	require.Len(t, started.Rounds, 1)
	assert.Len(t, started.Rounds[0], 4)
	assert.Equal(t, ai.Hard, started.BotDifficulty)
}

func TestStartWithoutEarlyStartNeedsFullBracket(t *testing.T) {
	svc := newService()
	tour := createWith(t, svc, 8, false, 5)

	_, err := svc.Start(tour.ID, "host")
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	got, err := svc.Get(tour.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestStartAndDeleteAreCreatorOnly(t *testing.T) {
	svc := newService()
	tour := createWith(t, svc, 4, true, 2)

	_, err := svc.Start(tour.ID, "player-1")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.Delete(tour.ID, "player-1"), ErrForbidden)

	_, err = svc.Start(tour.ID, "host")
	require.NoError(t, err)
	_, err = svc.Start(tour.ID, "host")
	assert.ErrorIs(t, err, ErrNotPending)

	_, _, err = svc.Join(tour.ID, "late")
	assert.ErrorIs(t, err, ErrNotPending)

	require.NoError(t, svc.Delete(tour.ID, "host"))
	_, err = svc.Get(tour.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBotNamesAvoidHumans(t *testing.T) {
	svc := newService()
	tour, err := svc.Create(CreateRequest{Creator: "Bot-1", MaxPlayers: 4, AllowEarlyStart: true})
	require.NoError(t, err)

	started, err := svc.Start(tour.ID, "Bot-1")
	require.NoError(t, err)

	names := map[string]bool{}
	for _, p := range started.Participants {
		assert.False(t, names[p.Name], "duplicate name %s", p.Name)
		names[p.Name] = true
	}
}

func TestRecordWinnerAdvancesInCompletionOrder(t *testing.T) {
	svc := newService()
	tour := createWith(t, svc, 4, false, 4)
	started, err := svc.Start(tour.ID, "host")
	require.NoError(t, err)

	semi := started.Rounds[0]
	// Match 2 finishes first.
	next, err := svc.RecordWinner(tour.ID, 1, 2, semi[1].Player2)
	require.NoError(t, err)
	assert.Empty(t, next)

	next, err = svc.RecordWinner(tour.ID, 1, 1, semi[0].Player1)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "Final", next[0].Label)
	assert.Equal(t, semi[1].Player2, next[0].Player1)
	assert.Equal(t, semi[0].Player1, next[0].Player2)

	_, err = svc.RecordWinner(tour.ID, 2, 1, semi[1].Player1)
	assert.ErrorIs(t, err, ErrInvariantViolation, "loser of the semi cannot win the final")

	_, err = svc.RecordWinner(tour.ID, 2, 1, semi[0].Player1)
	require.NoError(t, err)

	done, err := svc.Get(tour.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, done.Status)
	require.NotNil(t, done.Champion)
	assert.Equal(t, semi[0].Player1.Name, done.Champion.Name)
	assert.NotNil(t, done.EndedAt)
}

// fakeLauncher hands out session ids and remembers what it launched.
type fakeLauncher struct {
	mu       sync.Mutex
	launched []MatchPair
	fail     bool
}

func (f *fakeLauncher) LaunchMatch(_ Tournament, pair MatchPair) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("no capacity")
	}
	f.launched = append(f.launched, pair)
	return fmt.Sprintf("session-%d", len(f.launched)), nil
}

func (f *fakeLauncher) pairs() []MatchPair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MatchPair(nil), f.launched...)
}

func finished(tourID string, pair MatchPair, winner *Participant) game.MatchSummary {
	s := game.MatchSummary{
		SessionID:    pair.SessionID,
		Mode:         game.ModeTournament,
		TournamentID: tourID,
		MatchLabel:   pair.Label,
		Player1:      game.Player{ID: "a", Slot: 1, Name: pair.Player1.Name},
		Player2:      game.Player{ID: "b", Slot: 2, Name: pair.Player2.Name},
		Reason:       game.ReasonScore,
	}
	if winner != nil {
		w := s.Player1
		if winner.Name == pair.Player2.Name {
			w = s.Player2
		}
		s.Winner = &w
	}
	return s
}

func TestCoordinatorPlaysToChampion(t *testing.T) {
	svc := newService()
	launcher := &fakeLauncher{}
	coord := NewCoordinator(svc, launcher)

	tour := createWith(t, svc, 4, true, 1)
	started, err := coord.Start(tour.ID, "host")
	require.NoError(t, err)
	for _, m := range started.Rounds[0] {
		assert.NotEmpty(t, m.SessionID)
	}
	require.Len(t, launcher.pairs(), 2)

	semis := launcher.pairs()
	coord.Report(finished(tour.ID, semis[0], &semis[0].Player2))
	// Abandoned: player 1 advances.
	coord.Report(finished(tour.ID, semis[1], nil))

	require.Len(t, launcher.pairs(), 3)
	final := launcher.pairs()[2]
	assert.Equal(t, "Final", final.Label)
	assert.Equal(t, semis[0].Player2.Name, final.Player1.Name)
	assert.Equal(t, semis[1].Player1.Name, final.Player2.Name)

	coord.Report(finished(tour.ID, final, &final.Player2))

	done, err := svc.Get(tour.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, done.Status)
	assert.Equal(t, final.Player2.Name, done.Champion.Name)
}

func TestCoordinatorIgnoresOtherSummaries(t *testing.T) {
	svc := newService()
	launcher := &fakeLauncher{}
	coord := NewCoordinator(svc, launcher)

	coord.Report(game.MatchSummary{SessionID: "x", Mode: game.ModePvP})
	coord.Report(game.MatchSummary{SessionID: "y", TournamentID: "unknown", MatchLabel: "Final"})
	assert.Empty(t, launcher.pairs())
}

func TestCoordinatorLaunchFailureAdvancesFirstPlayer(t *testing.T) {
	svc := newService()
	coord := NewCoordinator(svc, &fakeLauncher{fail: true})

	tour := createWith(t, svc, 4, true, 1)
	_, err := coord.Start(tour.ID, "host")
	require.NoError(t, err)

	done, err := svc.Get(tour.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, done.Status)
	require.Len(t, done.Rounds, 2)
	assert.Equal(t, done.Rounds[1][0].Player1.Name, done.Champion.Name)
}
