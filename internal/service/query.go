package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/config"
	"github.com/MisterZedd/SourceStalker/internal/constants"
	"github.com/MisterZedd/SourceStalker/internal/domain"
	"github.com/MisterZedd/SourceStalker/internal/graph"
	"github.com/MisterZedd/SourceStalker/internal/repository"

	"github.com/rs/zerolog"
)

var ErrInvalidArgument = errors.New("invalid argument")

// LiveStatus is the tracker's current view of the player.
type LiveStatus struct {
	Presence domain.PresenceState
	Snapshot *domain.LiveGameSnapshot
	Seeded   bool
}

// RankSummary is the latest rank plus the trend over the most recent
// observations. LP changes compare consecutive observations.
type RankSummary struct {
	Current        *domain.RankObservation
	Streak         int
	StreakWins     bool
	RecentLPChange int
	RecentGames    int
}

// QueryService answers on-demand requests. It only reads history.
type QueryService struct {
	repo     *repository.HistoryRepository
	stats    StatsClient
	tracker  *StateTracker
	renderer *graph.Renderer
	cfg      *config.Config
	logger   zerolog.Logger
}

func NewQueryService(repo *repository.HistoryRepository, stats StatsClient, tracker *StateTracker, cfg *config.Config, logger zerolog.Logger) *QueryService {
	return &QueryService{
		repo:     repo,
		stats:    stats,
		tracker:  tracker,
		renderer: graph.NewRenderer(),
		cfg:      cfg,
		logger:   logger.With().Str("component", "query").Logger(),
	}
}

// History returns the tracked queue's observations from the last days.
// days == 0 selects the default window.
func (s *QueryService) History(ctx context.Context, days int) ([]domain.RankObservation, error) {
	if days == 0 {
		days = constants.DefaultGraphDays
	}
	if days < 0 || days > constants.MaxGraphDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidArgument, constants.MaxGraphDays)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	end := time.Now()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)

	out := []domain.RankObservation{}
	for obs, err := range s.repo.QueryWindow(ctx, start, end) {
		if err != nil {
			return nil, err
		}
		if obs.QueueType == s.cfg.QueueType {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (s *QueryService) RankGraph(ctx context.Context, days int) ([]byte, error) {
	obs, err := s.History(ctx, days)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int("days", days).Int("points", len(obs)).Msg("rendering rank graph")
	return s.renderer.Render(obs)
}

func (s *QueryService) RankGraphHTML(ctx context.Context, days int) (string, error) {
	obs, err := s.History(ctx, days)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	title := fmt.Sprintf("%s - %s", s.cfg.DisplayName(), domain.QueueName(s.cfg.QueueType))
	if err := graph.RenderHTML(&buf, obs, title); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *QueryService) RankSummary(ctx context.Context, days int) (RankSummary, error) {
	obs, err := s.History(ctx, days)
	if err != nil {
		return RankSummary{}, err
	}
	return SummarizeRank(obs, constants.SummaryGames), nil
}

// SummarizeRank looks at the last games observations. The streak counts
// trailing LP changes with the same sign as the newest one; a zero change
// ends it.
func SummarizeRank(obs []domain.RankObservation, games int) RankSummary {
	var summary RankSummary
	if len(obs) == 0 {
		return summary
	}
	current := obs[len(obs)-1]
	summary.Current = &current

	recent := obs[max(0, len(obs)-games):]
	changes := make([]int, 0, len(recent))
	for i := 1; i < len(recent); i++ {
		changes = append(changes, recent[i].LeaguePoints-recent[i-1].LeaguePoints)
	}
	if len(changes) == 0 {
		return summary
	}

	for _, c := range changes {
		summary.RecentLPChange += c
	}
	summary.RecentGames = len(changes)

	summary.StreakWins = changes[len(changes)-1] > 0
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if (summary.StreakWins && c > 0) || (!summary.StreakWins && c < 0) {
			summary.Streak++
			continue
		}
		break
	}
	return summary
}

func (s *QueryService) LiveStatus() LiveStatus {
	presence, snap := s.tracker.Presence()
	return LiveStatus{Presence: presence, Snapshot: snap, Seeded: s.tracker.Seeded()}
}

// RecentMatches goes straight to the stats API. count == 0 selects the
// default.
func (s *QueryService) RecentMatches(ctx context.Context, count int) ([]domain.CompletedMatch, error) {
	if count == 0 {
		count = constants.RecentMatchCount
	}
	if count < 0 || count > constants.MaxRecentMatchCount {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidArgument, constants.MaxRecentMatchCount)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()
	return s.stats.FetchRecentMatches(ctx, s.cfg.PUUID, count)
}
