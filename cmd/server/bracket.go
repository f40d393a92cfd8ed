package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"pong-arena/internal/tournament"
)

func bracketCmd() *cobra.Command {
	var (
		players int
		seed    int64
	)

	cmd := &cobra.Command{
		Use:   "bracket [names...]",
		Short: "Print a shuffled tournament bracket",
		Long: `Print the bracket a tournament would start with, without running a server.

Names given as arguments are seated first; the rest of the bracket is
filled with bots.

Examples:
  pong-arena bracket --players 8
  pong-arena bracket --players 4 --seed 42 alice bob`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			return printBracket(cmd, args, players, seed)
		},
	}

	cmd.Flags().IntVarP(&players, "players", "n", 8, "Bracket size (2, 4, 8, 16, 32 or 64)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Shuffle seed (default: current time)")

	return cmd
}

func printBracket(cmd *cobra.Command, names []string, n int, seed int64) error {
	if err := tournament.ValidatePlayerCount(n); err != nil {
		return err
	}
	if len(names) > n {
		return fmt.Errorf("%d names given for a bracket of %d", len(names), n)
	}

	participants := make([]tournament.Participant, 0, n)
	for i, name := range names {
		participants = append(participants, tournament.Participant{ID: fmt.Sprintf("p%d", i+1), Name: name})
	}
	for i := len(participants); i < n; i++ {
		participants = append(participants, tournament.Participant{
			ID:    fmt.Sprintf("p%d", i+1),
			Name:  fmt.Sprintf("Bot-%d", i-len(names)+1),
			IsBot: true,
		})
	}

	shuffled := tournament.Shuffle(participants, rand.New(rand.NewSource(seed)))
	first, err := tournament.GenerateFirstRoundMatches(shuffled, n)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🏁 %d players, %d rounds (seed %d)\n\n", n, tournament.Rounds(n), seed)

	fmt.Fprintf(out, "%s\n", tournament.RoundLabel(n, 1))
	labels := make([]string, 0, len(first))
	for _, m := range first {
		fmt.Fprintf(out, "  %-10s %s vs %s\n", m.Label, m.Player1.Name, m.Player2.Name)
		labels = append(labels, m.Label)
	}

	// Later rounds pair winners positionally.
	remaining := n / 2
	for round := 2; remaining >= 2; round++ {
		fmt.Fprintf(out, "\n%s\n", tournament.RoundLabel(remaining, round))
		next := make([]string, 0, remaining/2)
		for i := 0; i+1 < len(labels); i += 2 {
			label := tournament.MatchLabel(remaining, round, i/2+1)
			fmt.Fprintf(out, "  %-10s Winner of %s vs Winner of %s\n", label, labels[i], labels[i+1])
			next = append(next, label)
		}
		labels = next
		remaining /= 2
	}
	return nil
}
