package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/config"
	"github.com/MisterZedd/SourceStalker/internal/constants"
	"github.com/MisterZedd/SourceStalker/internal/domain"
	"github.com/MisterZedd/SourceStalker/internal/repository"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoMatch means no recent match correlates with the anchor yet.
var ErrNoMatch = errors.New("no completed match found for anchor")

// ReconcileService turns a finished game into at most one completed-match
// notification and records it in history.
type ReconcileService struct {
	stats    StatsClient
	repo     *repository.HistoryRepository
	notifier Notifier
	cfg      *config.Config
	logger   zerolog.Logger
	now      func() time.Time
}

func NewReconcileService(stats StatsClient, repo *repository.HistoryRepository, notifier Notifier, cfg *config.Config, logger zerolog.Logger) *ReconcileService {
	return &ReconcileService{
		stats:    stats,
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "reconciler").Logger(),
		now:      time.Now,
	}
}

// Reconcile always concludes the game: it returns the completed
// notification, nil when the match was already notified, or a degraded
// unavailable notification when no match could be correlated.
func (s *ReconcileService) Reconcile(ctx context.Context, anchor time.Time) (*domain.Notification, error) {
	n, err := s.TryReconcile(ctx, anchor)
	if err == nil {
		return n, nil
	}

	if errors.Is(err, ErrNoMatch) {
		s.logger.Warn().Time("anchor", anchor).Msg("no match within lookback, sending degraded notification")
	} else {
		s.logger.Warn().Err(err).Time("anchor", anchor).Msg("reconciliation failed, sending degraded notification")
	}

	degraded := domain.Notification{
		Kind:      domain.NotificationUnavailable,
		QueueType: s.cfg.QueueType,
		CreatedAt: s.now(),
	}
	if err := s.notifier.Dispatch(ctx, degraded); err != nil {
		s.logger.Warn().Err(err).Msg("degraded notification delivery incomplete")
	}
	return &degraded, nil
}

// TryReconcile is Reconcile without the degraded fallback. It returns
// ErrNoMatch when nothing correlates yet and a wrapped client error when
// the match list could not be fetched.
func (s *ReconcileService) TryReconcile(ctx context.Context, anchor time.Time) (*domain.Notification, error) {
	ctx, span := otel.Tracer("service/reconcile").Start(ctx, "ReconcileService.TryReconcile", trace.WithAttributes(
		attribute.String("anchor", anchor.UTC().Format(time.RFC3339)),
	))
	defer span.End()

	matches, err := s.stats.FetchRecentMatches(ctx, s.cfg.PUUID, constants.RecentMatchCount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch recent matches")
		return nil, fmt.Errorf("failed to fetch recent matches: %w", err)
	}

	match, ok := SelectMatch(matches, anchor, s.cfg.MatchTolerance, s.cfg.LookbackWindow)
	if !ok {
		return nil, ErrNoMatch
	}
	span.SetAttributes(attribute.String("match.id", match.MatchID))

	notified, err := s.repo.IsNotified(ctx, match.MatchID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check notified set: %w", err)
	}
	if notified {
		s.logger.Info().Str("match_id", match.MatchID).Msg("match already notified, suppressing")
		return nil, nil
	}

	n := domain.Notification{
		Kind:       domain.NotificationCompleted,
		MatchID:    match.MatchID,
		Win:        match.Win,
		Kills:      match.Kills,
		Deaths:     match.Deaths,
		Assists:    match.Assists,
		ChampionID: match.ChampionID,
		QueueType:  domain.QueueTypeForID(match.QueueID),
		CreatedAt:  s.now(),
	}

	obs := s.postGameRank(ctx, n.QueueType)
	if obs != nil {
		prev, err := s.repo.LatestObservation(ctx, obs.QueueType)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to load previous observation, skipping lp delta")
		} else if prev != nil {
			n.LPDelta = obs.LeaguePoints - prev.LeaguePoints
			n.HasLPDelta = true
		}
	}

	if err := s.notifier.Dispatch(ctx, n); err != nil {
		s.logger.Warn().Err(err).Str("match_id", n.MatchID).Msg("notification delivery incomplete")
	}

	// Delivery was attempted; a failed commit only risks a duplicate later.
	if err := s.repo.RecordMatch(ctx, n.MatchID, obs); err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Str("match_id", n.MatchID).Msg("failed to record notified match")
	}

	s.logger.Info().
		Str("match_id", n.MatchID).
		Bool("win", n.Win).
		Int("kills", n.Kills).
		Int("deaths", n.Deaths).
		Int("assists", n.Assists).
		Int("lp_delta", n.LPDelta).
		Bool("has_lp_delta", n.HasLPDelta).
		Msg("match reconciled")
	return &n, nil
}

// CaptureBaseline appends the current rank for queueType when it differs
// from the latest stored observation, so the next match has an LP delta.
func (s *ReconcileService) CaptureBaseline(ctx context.Context, queueType string) error {
	if queueType == "" {
		return nil
	}

	obs, err := s.stats.FetchCurrentRank(ctx, s.cfg.PUUID, queueType)
	if err != nil {
		return fmt.Errorf("failed to fetch current rank: %w", err)
	}
	if obs == nil {
		return nil
	}

	prev, err := s.repo.LatestObservation(ctx, queueType)
	if err != nil {
		return err
	}
	if prev != nil && prev.Tier == obs.Tier && prev.Division == obs.Division && prev.LeaguePoints == obs.LeaguePoints {
		return nil
	}

	if _, err := s.repo.AppendObservation(ctx, *obs); err != nil {
		return err
	}
	s.logger.Debug().Str("queue_type", queueType).Str("tier", obs.Tier).Int("lp", obs.LeaguePoints).Msg("baseline rank captured")
	return nil
}

// postGameRank fetches the rank for a ranked queue. Failures are logged
// and yield nil; the match is still recorded.
func (s *ReconcileService) postGameRank(ctx context.Context, queueType string) *domain.RankObservation {
	if queueType == "" {
		return nil
	}
	obs, err := s.stats.FetchCurrentRank(ctx, s.cfg.PUUID, queueType)
	if err != nil {
		s.logger.Warn().Err(err).Str("queue_type", queueType).Msg("failed to fetch post-game rank")
		return nil
	}
	return obs
}

// SelectMatch picks the match that correlates with a game started at
// anchor. A candidate must end no earlier than anchor-tolerance and start
// no later than anchor+lookback. The closest start wins; ties prefer a
// start at or after the anchor, then the earlier end, then the match ID.
func SelectMatch(matches []domain.CompletedMatch, anchor time.Time, tolerance, lookback time.Duration) (domain.CompletedMatch, bool) {
	var candidates []domain.CompletedMatch
	for _, m := range matches {
		if m.EndedAt.Before(anchor.Add(-tolerance)) {
			continue
		}
		if m.StartedAt().Sub(anchor) > lookback {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return domain.CompletedMatch{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		da, db := absDuration(a.StartedAt().Sub(anchor)), absDuration(b.StartedAt().Sub(anchor))
		if da != db {
			return da < db
		}
		aAfter, bAfter := !a.StartedAt().Before(anchor), !b.StartedAt().Before(anchor)
		if aAfter != bAfter {
			return aAfter
		}
		if !a.EndedAt.Equal(b.EndedAt) {
			return a.EndedAt.Before(b.EndedAt)
		}
		return a.MatchID < b.MatchID
	})
	return candidates[0], true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
