// Package stats delivers finished-match summaries to external collaborators.
//
// Sessions never talk to a sink directly. They hand summaries to a Dispatcher,
// which decorates them with persisted user ids and delivers them in the
// background so a slow or broken backend can never hold up a match.
package stats

import (
	"context"
	"errors"
	"log"

	"pong-arena/internal/game"
)

// Sink accepts finished matches.
type Sink interface {
	ReportMatchFinished(ctx context.Context, summary game.MatchSummary) error
}

// UserResolver maps a display name to a persisted user id. A miss returns
// ok == false and a nil error.
type UserResolver interface {
	ResolveUserID(ctx context.Context, username string) (id string, ok bool, err error)
}

// MultiSink delivers to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) ReportMatchFinished(ctx context.Context, summary game.MatchSummary) error {
	var errs []error
	for _, s := range m {
		if err := s.ReportMatchFinished(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes one line per match. It is the fallback when no backend is configured.
type LogSink struct{}

func (LogSink) ReportMatchFinished(_ context.Context, s game.MatchSummary) error {
	winner := "nobody"
	if s.Winner != nil {
		winner = s.Winner.Name
	}
	log.Printf("📊 Match %s (%s): %s %d - %d %s, winner %s, %s, %dms",
		s.SessionID, s.Mode, s.Player1.Name, s.Score1, s.Score2, s.Player2.Name, winner, s.Reason, s.DurationMs)
	return nil
}

// StaticResolver resolves from a fixed map.
type StaticResolver map[string]string

func (r StaticResolver) ResolveUserID(_ context.Context, username string) (string, bool, error) {
	id, ok := r[username]
	return id, ok, nil
}

// NopResolver never resolves anyone.
type NopResolver struct{}

func (NopResolver) ResolveUserID(context.Context, string) (string, bool, error) {
	return "", false, nil
}
