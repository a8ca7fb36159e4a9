package service

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQuery(t *testing.T, stats *fakeStats) (*QueryService, *StateTracker) {
	t.Helper()
	tracker := NewStateTracker()
	return NewQueryService(newTestRepo(t), stats, tracker, testConfig(), zerolog.Nop()), tracker
}

func TestQueryService_HistoryFiltersQueueAndWindow(t *testing.T) {
	q, _ := newTestQuery(t, &fakeStats{})
	ctx := context.Background()
	now := time.Now()

	seed := []domain.RankObservation{
		{Timestamp: now.Add(-40 * 24 * time.Hour), QueueType: domain.QueueSolo, Tier: "GOLD", Division: "IV", LeaguePoints: 5},
		{Timestamp: now.Add(-2 * 24 * time.Hour), QueueType: domain.QueueSolo, Tier: "GOLD", Division: "IV", LeaguePoints: 25},
		{Timestamp: now.Add(-1 * 24 * time.Hour), QueueType: domain.QueueFlex, Tier: "SILVER", Division: "I", LeaguePoints: 80},
		{Timestamp: now.Add(-time.Hour), QueueType: domain.QueueSolo, Tier: "GOLD", Division: "III", LeaguePoints: 2},
	}
	for _, o := range seed {
		_, err := q.repo.AppendObservation(ctx, o)
		require.NoError(t, err)
	}

	got, err := q.History(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 25, got[0].LeaguePoints)
	assert.Equal(t, 2, got[1].LeaguePoints)

	got, err = q.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = q.History(ctx, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = q.History(ctx, 366)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestQueryService_RankGraph(t *testing.T) {
	q, _ := newTestQuery(t, &fakeStats{})

	out, err := q.RankGraph(context.Background(), 30)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	html, err := q.RankGraphHTML(context.Background(), 30)
	require.NoError(t, err)
	assert.Contains(t, html, "Tester - Solo Queue")
}

func TestQueryService_LiveStatus(t *testing.T) {
	q, tracker := newTestQuery(t, &fakeStats{})

	status := q.LiveStatus()
	assert.False(t, status.Seeded)
	assert.Equal(t, domain.PresenceAbsent, status.Presence)

	tracker.Observe(true, liveGame(time.Now()))
	status = q.LiveStatus()
	assert.Equal(t, domain.PresenceInGame, status.Presence)
	require.NotNil(t, status.Snapshot)
	assert.Equal(t, int64(77), status.Snapshot.GameID)
}

func TestQueryService_RecentMatches(t *testing.T) {
	now := time.Now()
	stats := &fakeStats{matches: []domain.CompletedMatch{
		match("NA1_1", now, 20*time.Minute, true),
		match("NA1_2", now.Add(-time.Hour), 20*time.Minute, false),
	}}
	q, _ := newTestQuery(t, stats)

	got, err := q.RecentMatches(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NA1_1", got[0].MatchID)

	got, err = q.RecentMatches(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = q.RecentMatches(context.Background(), 21)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func lpSeries(start time.Time, lps ...int) []domain.RankObservation {
	out := make([]domain.RankObservation, len(lps))
	for i, lp := range lps {
		out[i] = domain.RankObservation{
			Timestamp:    start.Add(time.Duration(i) * time.Hour),
			QueueType:    domain.QueueSolo,
			Tier:         "GOLD",
			Division:     "II",
			LeaguePoints: lp,
		}
	}
	return out
}

func TestSummarizeRank(t *testing.T) {
	start := time.Now().Add(-24 * time.Hour)

	tests := []struct {
		name       string
		lps        []int
		streak     int
		wins       bool
		lpChange   int
		games      int
		hasCurrent bool
	}{
		{name: "empty", lps: nil},
		{name: "single observation", lps: []int{40}, hasCurrent: true},
		{name: "win streak", lps: []int{10, 5, 25, 44, 63}, streak: 3, wins: true, lpChange: 53, games: 4, hasCurrent: true},
		{name: "loss streak", lps: []int{60, 80, 62, 45}, streak: 2, wins: false, lpChange: -15, games: 3, hasCurrent: true},
		{name: "window keeps last games", lps: []int{0, 90, 10, 30, 50, 70, 90}, streak: 4, wins: true, lpChange: 80, games: 4, hasCurrent: true},
		{name: "unchanged ends streak", lps: []int{10, 30, 30}, streak: 0, wins: false, lpChange: 20, games: 2, hasCurrent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SummarizeRank(lpSeries(start, tt.lps...), 5)
			assert.Equal(t, tt.streak, s.Streak)
			assert.Equal(t, tt.wins, s.StreakWins)
			assert.Equal(t, tt.lpChange, s.RecentLPChange)
			assert.Equal(t, tt.games, s.RecentGames)
			if tt.hasCurrent {
				require.NotNil(t, s.Current)
				assert.Equal(t, tt.lps[len(tt.lps)-1], s.Current.LeaguePoints)
			} else {
				assert.Nil(t, s.Current)
			}
		})
	}
}

func TestQueryService_RankSummary(t *testing.T) {
	q, _ := newTestQuery(t, &fakeStats{})
	ctx := context.Background()

	for _, o := range lpSeries(time.Now().Add(-6*time.Hour), 20, 38, 55) {
		_, err := q.repo.AppendObservation(ctx, o)
		require.NoError(t, err)
	}
	_, err := q.repo.AppendObservation(ctx, domain.RankObservation{
		Timestamp: time.Now().Add(-time.Hour), QueueType: domain.QueueFlex, Tier: "IRON", Division: "I", LeaguePoints: 0,
	})
	require.NoError(t, err)

	s, err := q.RankSummary(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, s.Current)
	assert.Equal(t, 55, s.Current.LeaguePoints)
	assert.Equal(t, 2, s.Streak)
	assert.True(t, s.StreakWins)
	assert.Equal(t, 35, s.RecentLPChange)

	_, err = q.RankSummary(ctx, 400)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
