package lineup

import "context"

// RemoteService is the remote source of truth for lineups.
type RemoteService interface {
	Fetch(ctx context.Context, teamID string, period int) (Lineup, error)
	Put(ctx context.Context, teamID string, period int, starters, bench []Slot) (Lineup, error)
}
