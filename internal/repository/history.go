package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// HistoryRepository owns rank observations and the notified match set.
// Writes are serialized; reads go straight to the pool and see committed
// state only.
type HistoryRepository struct {
	db      *sql.DB
	logger  zerolog.Logger
	writeMu sync.Mutex
}

func NewHistoryRepository(sqlDB *sql.DB, logger zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     sqlDB,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

const observationColumns = `id, timestamp, queue_type, tier, division, lp, match_id`

func (r *HistoryRepository) AppendObservation(ctx context.Context, obs domain.RankObservation) (domain.RankObservation, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return obs, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	obs, err = insertObservation(ctx, tx, obs)
	if err != nil {
		return obs, err
	}
	if err := tx.Commit(); err != nil {
		return obs, fmt.Errorf("failed to commit observation: %w", err)
	}

	r.logger.Debug().
		Str("id", obs.ID).
		Str("queue_type", obs.QueueType).
		Str("tier", obs.Tier).
		Str("division", obs.Division).
		Int("lp", obs.LeaguePoints).
		Msg("rank observation appended")
	return obs, nil
}

func (r *HistoryRepository) MarkNotified(ctx context.Context, matchID string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notified_matches (match_id, notified_at) VALUES (?, ?) ON CONFLICT(match_id) DO NOTHING`,
		matchID, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to mark match notified: %w", err)
	}
	return nil
}

func (r *HistoryRepository) IsNotified(ctx context.Context, matchID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM notified_matches WHERE match_id = ?`, matchID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check notified match: %w", err)
	}
	return true, nil
}

func (r *HistoryRepository) CountNotified(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notified_matches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count notified matches: %w", err)
	}
	return n, nil
}

// RecordMatch marks matchID notified and, when obs is non-nil, appends the
// post-game observation in the same transaction.
func (r *HistoryRepository) RecordMatch(ctx context.Context, matchID string, obs *domain.RankObservation) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO notified_matches (match_id, notified_at) VALUES (?, ?) ON CONFLICT(match_id) DO NOTHING`,
		matchID, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to mark match notified: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		r.logger.Warn().Str("match_id", matchID).Msg("match already recorded, skipping observation")
		return tx.Commit()
	}

	if obs != nil {
		obs.MatchID = matchID
		if _, err := insertObservation(ctx, tx, *obs); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit match record: %w", err)
	}
	r.logger.Debug().Str("match_id", matchID).Bool("observation", obs != nil).Msg("match recorded")
	return nil
}

// LatestObservation returns the newest observation for queueType, or nil.
func (r *HistoryRepository) LatestObservation(ctx context.Context, queueType string) (*domain.RankObservation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+observationColumns+` FROM rank_observations
		 WHERE queue_type = ?
		 ORDER BY timestamp DESC, seq DESC
		 LIMIT 1`, queueType)

	obs, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest observation: %w", err)
	}
	return &obs, nil
}

// QueryWindow yields observations with start <= timestamp <= end in
// ascending order. The query runs each time the sequence is ranged over.
func (r *HistoryRepository) QueryWindow(ctx context.Context, start, end time.Time) iter.Seq2[domain.RankObservation, error] {
	return func(yield func(domain.RankObservation, error) bool) {
		if end.Before(start) {
			return
		}

		rows, err := r.db.QueryContext(ctx,
			`SELECT `+observationColumns+` FROM rank_observations
			 WHERE timestamp >= ? AND timestamp <= ?
			 ORDER BY timestamp ASC, seq ASC`,
			start.UnixNano(), end.UnixNano())
		if err != nil {
			yield(domain.RankObservation{}, fmt.Errorf("failed to query window: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			obs, err := scanObservation(rows)
			if err != nil {
				yield(domain.RankObservation{}, fmt.Errorf("failed to scan observation: %w", err))
				return
			}
			if !yield(obs, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.RankObservation{}, fmt.Errorf("failed to iterate window: %w", err))
		}
	}
}

// Trim deletes observations older than now minus retention.
func (r *HistoryRepository) Trim(ctx context.Context, retention time.Duration) (int64, error) {
	return r.TrimBefore(ctx, time.Now().Add(-retention))
}

func (r *HistoryRepository) TrimBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM rank_observations WHERE timestamp < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to trim observations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read trimmed count: %w", err)
	}

	r.logger.Info().Time("cutoff", cutoff).Int64("removed", n).Msg("rank history trimmed")
	return n, nil
}

// Collect drains a window sequence into a slice.
func Collect(seq iter.Seq2[domain.RankObservation, error]) ([]domain.RankObservation, error) {
	out := []domain.RankObservation{}
	for obs, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, nil
}

func insertObservation(ctx context.Context, tx *sql.Tx, obs domain.RankObservation) (domain.RankObservation, error) {
	if obs.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return obs, fmt.Errorf("failed to generate nanoid: %w", err)
		}
		obs.ID = id
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now()
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO rank_observations (`+observationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		obs.ID, obs.Timestamp.UnixNano(), obs.QueueType, obs.Tier, obs.Division, obs.LeaguePoints, obs.MatchID)
	if err != nil {
		return obs, fmt.Errorf("failed to insert observation: %w", err)
	}
	return obs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObservation(s scanner) (domain.RankObservation, error) {
	var obs domain.RankObservation
	var ts int64
	err := s.Scan(&obs.ID, &ts, &obs.QueueType, &obs.Tier, &obs.Division, &obs.LeaguePoints, &obs.MatchID)
	if err != nil {
		return obs, err
	}
	obs.Timestamp = time.Unix(0, ts).UTC()
	return obs, nil
}
