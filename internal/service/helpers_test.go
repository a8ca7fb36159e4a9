package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/config"
	"github.com/MisterZedd/SourceStalker/internal/database"
	"github.com/MisterZedd/SourceStalker/internal/domain"
	"github.com/MisterZedd/SourceStalker/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const trackedPUUID = "puuid-tracked"

type fakeStats struct {
	mu       sync.Mutex
	live     []*domain.LiveGameSnapshot
	liveErr  error
	matches  []domain.CompletedMatch
	matchErr error
	rank     *domain.RankObservation
	rankErr  error

	liveCalls  int
	matchCalls int
}

func (f *fakeStats) FetchLiveStatus(context.Context, string) (*domain.LiveGameSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liveCalls++
	if f.liveErr != nil {
		return nil, f.liveErr
	}
	if len(f.live) == 0 {
		return nil, nil
	}
	next := f.live[0]
	f.live = f.live[1:]
	return next, nil
}

func (f *fakeStats) FetchRecentMatches(_ context.Context, _ string, count int) ([]domain.CompletedMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matchCalls++
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	if count < len(f.matches) {
		return f.matches[:count], nil
	}
	return f.matches, nil
}

func (f *fakeStats) FetchCurrentRank(_ context.Context, _ string, queueType string) (*domain.RankObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rankErr != nil {
		return nil, f.rankErr
	}
	if f.rank == nil {
		return nil, nil
	}
	obs := *f.rank
	obs.QueueType = queueType
	obs.Timestamp = time.Now()
	return &obs, nil
}

func (f *fakeStats) setMatches(m ...domain.CompletedMatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches = m
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (r *recordingNotifier) Dispatch(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) Sent() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.sent...)
}

func testConfig() *config.Config {
	return &config.Config{
		PUUID:           trackedPUUID,
		SummonerName:    "Tester",
		QueueType:       domain.QueueSolo,
		PollInterval:    30 * time.Second,
		RetentionWindow: 30 * 24 * time.Hour,
		TrimInterval:    time.Hour,
		LookbackWindow:  15 * time.Minute,
		MatchTolerance:  60 * time.Second,
		SettleWindow:    0,
		Messages:        config.DefaultMessages(),
	}
}

func newTestRepo(t *testing.T) *repository.HistoryRepository {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return repository.NewHistoryRepository(db, zerolog.Nop())
}

func match(id string, end time.Time, duration time.Duration, win bool) domain.CompletedMatch {
	return domain.CompletedMatch{
		MatchID:    id,
		EndedAt:    end,
		Duration:   duration,
		Win:        win,
		Kills:      5,
		Deaths:     3,
		Assists:    11,
		ChampionID: 238,
		QueueID:    420,
	}
}
