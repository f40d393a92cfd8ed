package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pong-arena",
		Short: "Authoritative multiplayer Pong server",
		Long: `pong-arena runs two-player Pong matches over WebSocket.

The server owns the simulation; clients only send paddle input. Matches can
be played against another human, against the AI, or inside a single
elimination tournament.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		bracketCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %s\n", err)
		os.Exit(1)
	}
}
