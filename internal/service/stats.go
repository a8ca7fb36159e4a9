package service

import (
	"context"

	"github.com/MisterZedd/SourceStalker/internal/domain"
)

// StatsClient is the read side of the Riot API the tracker depends on.
// Implementations classify failures as *api.Error.
type StatsClient interface {
	FetchLiveStatus(ctx context.Context, puuid string) (*domain.LiveGameSnapshot, error)
	FetchRecentMatches(ctx context.Context, puuid string, count int) ([]domain.CompletedMatch, error)
	FetchCurrentRank(ctx context.Context, puuid, queueType string) (*domain.RankObservation, error)
}

// Notifier delivers notifications to the outbound collaborators.
type Notifier interface {
	Dispatch(ctx context.Context, n domain.Notification) error
}
