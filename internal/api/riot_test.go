package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/config"
	"github.com/MisterZedd/SourceStalker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPUUID = "puuid-tracked"

func newTestClient(t *testing.T, handler http.Handler) *RiotClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewRiotClient(&config.Config{
		RiotAPIKey:   "RGAPI-test",
		RegionHost:   srv.URL,
		PlatformHost: srv.URL,
		AppRateLimit: "1000:1",
	}, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func TestFetchLiveStatus_InGame(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/lol/spectator/v5/active-games/by-summoner/"+testPUUID, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "RGAPI-test", r.Header.Get("X-Riot-Token"))
		w.Header().Set("X-App-Rate-Limit", "20:1,100:120")
		w.Header().Set("X-App-Rate-Limit-Count", "1:1,1:120")
		fmt.Fprint(w, `{"gameId": 987, "gameStartTime": 1700000000000, "gameQueueConfigId": 420,
			"participants": [{"puuid": "puuid-tracked", "championId": 238, "teamId": 100},
			                 {"puuid": "other", "championId": 1, "teamId": 200}]}`)
	})
	client := newTestClient(t, mux)

	snap, err := client.FetchLiveStatus(context.Background(), testPUUID)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, int64(987), snap.GameID)
	assert.Equal(t, 420, snap.QueueID)
	assert.True(t, snap.StartedAt.Equal(time.UnixMilli(1700000000000)))
	p, ok := snap.Participant(testPUUID)
	require.True(t, ok)
	assert.Equal(t, 238, p.ChampionID)

	info := client.GetRateLimitInfo()
	assert.Equal(t, "20:1,100:120", info.AppLimit)
	assert.Equal(t, "1:1,1:120", info.AppCount)
}

func TestFetchLiveStatus_NotInGame(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"status_code":404}}`, http.StatusNotFound)
	}))

	snap, err := client.FetchLiveStatus(context.Background(), testPUUID)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		body       string
		kind       ErrorKind
		wait       time.Duration
	}{
		{name: "rate limited with hint", status: 429, retryAfter: "7", kind: KindRateLimited, wait: 7 * time.Second},
		{name: "rate limited without hint", status: 429, kind: KindRateLimited},
		{name: "bad key", status: 403, kind: KindFatal},
		{name: "unauthorized", status: 401, kind: KindFatal},
		{name: "server error", status: 503, kind: KindTransient},
		{name: "malformed body", status: 200, body: `[{"queueType": 5`, kind: KindFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))

			_, err := client.FetchCurrentRank(context.Background(), testPUUID, domain.QueueSolo)
			require.Error(t, err)

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.wait, RetryAfterOf(err))
		})
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client, err := NewRiotClient(&config.Config{RegionHost: addr, PlatformHost: addr}, zerolog.Nop())
	require.NoError(t, err)

	_, err = client.FetchLiveStatus(context.Background(), testPUUID)
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
}

func TestFetchCurrentRank(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"queueType": "RANKED_FLEX_SR", "tier": "SILVER", "rank": "I", "leaguePoints": 12},
			{"queueType": "RANKED_SOLO_5x5", "tier": "MASTER", "rank": "I", "leaguePoints": 140}
		]`)
	}))

	obs, err := client.FetchCurrentRank(context.Background(), testPUUID, domain.QueueSolo)
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, "MASTER", obs.Tier)
	assert.Empty(t, obs.Division)
	assert.Equal(t, 140, obs.LeaguePoints)

	obs, err = client.FetchCurrentRank(context.Background(), testPUUID, "CHERRY")
	require.NoError(t, err)
	assert.Nil(t, obs)
}

func TestFetchRecentMatches(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/lol/match/v5/matches/by-puuid/"+testPUUID+"/ids", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		fmt.Fprint(w, `["NA1_3", "NA1_2", "NA1_1"]`)
	})
	mux.HandleFunc("/lol/match/v5/matches/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/lol/match/v5/matches/")
		if id == "NA1_3" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"metadata": {"matchId": %q}, "info": {
			"gameEndTimestamp": 1700001800000, "gameDuration": 1800, "queueId": 420,
			"participants": [{"puuid": "puuid-tracked", "win": true, "kills": 7, "deaths": 2, "assists": 9, "championId": 238}]}}`, id)
	})
	client := newTestClient(t, mux)

	matches, err := client.FetchRecentMatches(context.Background(), testPUUID, 3)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "NA1_2", matches[0].MatchID)
	assert.Equal(t, "NA1_1", matches[1].MatchID)
	assert.Equal(t, 30*time.Minute, matches[0].Duration)
	assert.True(t, matches[0].EndedAt.Equal(time.UnixMilli(1700001800000)))
	assert.True(t, matches[0].Win)
	assert.Equal(t, 7, matches[0].Kills)
}

func TestParseRateLimits(t *testing.T) {
	limiters, err := ParseRateLimits("20:1,100:120")
	require.NoError(t, err)
	require.Len(t, limiters, 2)
	assert.Equal(t, 20, limiters[0].Burst())
	assert.InDelta(t, 100.0/120.0, float64(limiters[1].Limit()), 1e-9)

	none, err := ParseRateLimits("")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = ParseRateLimits("20")
	assert.Error(t, err)
}
