package repository

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/database"
	"github.com/MisterZedd/SourceStalker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHistoryRepo(t *testing.T) (*HistoryRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := database.Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewHistoryRepository(db, zerolog.Nop()), path
}

func obsAt(ts time.Time, tier, division string, lp int) domain.RankObservation {
	return domain.RankObservation{
		Timestamp:    ts,
		QueueType:    domain.QueueSolo,
		Tier:         tier,
		Division:     division,
		LeaguePoints: lp,
	}
}

func TestMarkNotified_Idempotent(t *testing.T) {
	repo, _ := setupHistoryRepo(t)
	ctx := context.Background()

	ok, err := repo.IsNotified(ctx, "NA1_100")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.MarkNotified(ctx, "NA1_100"))
	require.NoError(t, repo.MarkNotified(ctx, "NA1_100"))

	n, err := repo.CountNotified(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err = repo.IsNotified(ctx, "NA1_100")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueryWindow_SortedInclusive(t *testing.T) {
	repo, _ := setupHistoryRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// inserted out of order, two share a timestamp
	offsets := []time.Duration{5 * time.Hour, 1 * time.Hour, 3 * time.Hour, 3 * time.Hour, 0, 9 * time.Hour}
	for i, off := range offsets {
		_, err := repo.AppendObservation(ctx, obsAt(base.Add(off), "GOLD", "II", i))
		require.NoError(t, err)
	}

	start, end := base.Add(1*time.Hour), base.Add(5*time.Hour)
	got, err := Collect(repo.QueryWindow(ctx, start, end))
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Timestamp.Before(got[j].Timestamp) }))
	for _, o := range got {
		assert.False(t, o.Timestamp.Before(start))
		assert.False(t, o.Timestamp.After(end))
	}
	assert.True(t, got[0].Timestamp.Equal(start))
	assert.True(t, got[3].Timestamp.Equal(end))
	// equal timestamps keep insertion order
	assert.Equal(t, 2, got[1].LeaguePoints)
	assert.Equal(t, 3, got[2].LeaguePoints)
}

func TestQueryWindow_EmptyAndRestartable(t *testing.T) {
	repo, _ := setupHistoryRepo(t)
	ctx := context.Background()
	now := time.Now()

	empty, err := Collect(repo.QueryWindow(ctx, now.Add(-time.Hour), now))
	require.NoError(t, err)
	assert.Empty(t, empty)

	inverted, err := Collect(repo.QueryWindow(ctx, now, now.Add(-time.Hour)))
	require.NoError(t, err)
	assert.Empty(t, inverted)

	_, err = repo.AppendObservation(ctx, obsAt(now.Add(-time.Minute), "SILVER", "I", 40))
	require.NoError(t, err)

	seq := repo.QueryWindow(ctx, now.Add(-time.Hour), now)
	first, err := Collect(seq)
	require.NoError(t, err)
	second, err := Collect(seq)
	require.NoError(t, err)
	assert.Len(t, first, 1)
	assert.Equal(t, first, second)

	// early break must not leak the cursor
	for range seq {
		break
	}
}

func TestTrim_RemovesOnlyExpired(t *testing.T) {
	repo, _ := setupHistoryRepo(t)
	ctx := context.Background()
	now := time.Now()

	for _, age := range []time.Duration{45 * 24 * time.Hour, 10 * 24 * time.Hour, 0} {
		_, err := repo.AppendObservation(ctx, obsAt(now.Add(-age), "GOLD", "I", 10))
		require.NoError(t, err)
	}

	removed, err := repo.Trim(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	left, err := Collect(repo.QueryWindow(ctx, now.Add(-60*24*time.Hour), now.Add(time.Minute)))
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.WithinDuration(t, now.Add(-10*24*time.Hour), left[0].Timestamp, time.Millisecond)
}

func TestRecordMatch_AtomicAndIdempotent(t *testing.T) {
	repo, _ := setupHistoryRepo(t)
	ctx := context.Background()
	now := time.Now()

	obs := obsAt(now, "PLATINUM", "IV", 55)
	require.NoError(t, repo.RecordMatch(ctx, "NA1_7", &obs))
	again := obsAt(now.Add(time.Second), "PLATINUM", "IV", 70)
	require.NoError(t, repo.RecordMatch(ctx, "NA1_7", &again))

	got, err := Collect(repo.QueryWindow(ctx, now.Add(-time.Hour), now.Add(time.Hour)))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NA1_7", got[0].MatchID)
	assert.Equal(t, 55, got[0].LeaguePoints)

	require.NoError(t, repo.RecordMatch(ctx, "NA1_8", nil))
	n, err := repo.CountNotified(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLatestObservation(t *testing.T) {
	repo, _ := setupHistoryRepo(t)
	ctx := context.Background()
	now := time.Now()

	latest, err := repo.LatestObservation(ctx, domain.QueueSolo)
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, err = repo.AppendObservation(ctx, obsAt(now.Add(-time.Hour), "GOLD", "I", 10))
	require.NoError(t, err)
	_, err = repo.AppendObservation(ctx, obsAt(now, "GOLD", "I", 30))
	require.NoError(t, err)
	flex := obsAt(now.Add(time.Minute), "SILVER", "II", 80)
	flex.QueueType = domain.QueueFlex
	_, err = repo.AppendObservation(ctx, flex)
	require.NoError(t, err)

	latest, err = repo.LatestObservation(ctx, domain.QueueSolo)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 30, latest.LeaguePoints)
	assert.NotEmpty(t, latest.ID)
}

func TestHistory_SurvivesReopen(t *testing.T) {
	repo, path := setupHistoryRepo(t)
	ctx := context.Background()
	now := time.Now()

	_, err := repo.AppendObservation(ctx, obsAt(now, "EMERALD", "III", 12))
	require.NoError(t, err)
	require.NoError(t, repo.MarkNotified(ctx, "NA1_42"))
	require.NoError(t, repo.db.Close())

	db, err := database.Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()
	reopened := NewHistoryRepository(db, zerolog.Nop())

	ok, err := reopened.IsNotified(ctx, "NA1_42")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := Collect(reopened.QueryWindow(ctx, now.Add(-time.Minute), now.Add(time.Minute)))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
