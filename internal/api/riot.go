package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/config"
	"github.com/MisterZedd/SourceStalker/internal/constants"
	"github.com/MisterZedd/SourceStalker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const matchDetailConcurrency = 4

// RiotClient talks to the Riot spectator, league and match APIs. It holds
// no cached results; every call goes to the network.
type RiotClient struct {
	apiKey       string
	regionHost   string
	platformHost string
	client       *fasthttp.Client
	limiters     []*rate.Limiter
	logger       zerolog.Logger

	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

// RateLimitInfo is the last set of rate limit headers Riot returned.
type RateLimitInfo struct {
	AppLimit    string    `json:"app_limit"`
	AppCount    string    `json:"app_count"`
	MethodLimit string    `json:"method_limit"`
	MethodCount string    `json:"method_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewRiotClient(cfg *config.Config, logger zerolog.Logger) (*RiotClient, error) {
	limiters, err := ParseRateLimits(cfg.AppRateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid app rate limit: %w", err)
	}

	return &RiotClient{
		apiKey:       cfg.RiotAPIKey,
		regionHost:   cfg.RegionHost,
		platformHost: cfg.PlatformHost,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		limiters: limiters,
		logger:   logger.With().Str("component", "riot_client").Logger(),
	}, nil
}

// ParseRateLimits turns "20:1,100:120" (requests:seconds pairs) into token
// bucket limiters. An empty string disables client-side limiting.
func ParseRateLimits(limits string) ([]*rate.Limiter, error) {
	var limiters []*rate.Limiter
	for _, part := range strings.Split(limits, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		reqStr, secStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("expected requests:seconds, got %q", part)
		}
		requests, err := strconv.Atoi(reqStr)
		if err != nil || requests <= 0 {
			return nil, fmt.Errorf("invalid request count in %q", part)
		}
		seconds, err := strconv.Atoi(secStr)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("invalid window in %q", part)
		}
		every := time.Duration(seconds) * time.Second / time.Duration(requests)
		limiters = append(limiters, rate.NewLimiter(rate.Every(every), requests))
	}
	return limiters, nil
}

func (c *RiotClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *RiotClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if v := string(resp.Header.Peek("X-App-Rate-Limit")); v != "" {
		c.rateLimit.AppLimit = v
	}
	if v := string(resp.Header.Peek("X-App-Rate-Limit-Count")); v != "" {
		c.rateLimit.AppCount = v
	}
	if v := string(resp.Header.Peek("X-Method-Rate-Limit")); v != "" {
		c.rateLimit.MethodLimit = v
	}
	if v := string(resp.Header.Peek("X-Method-Rate-Limit-Count")); v != "" {
		c.rateLimit.MethodCount = v
	}
	c.rateLimit.UpdatedAt = time.Now()
}

// FetchLiveStatus returns the active game for puuid, or nil when the
// player is not in a game.
func (c *RiotClient) FetchLiveStatus(ctx context.Context, puuid string) (*domain.LiveGameSnapshot, error) {
	u := fmt.Sprintf("%s/lol/spectator/v5/active-games/by-summoner/%s", c.regionHost, url.PathEscape(puuid))
	game, err := doRequest[ActiveGameResponse](ctx, c, "live_status", u)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return game.toSnapshot(), nil
}

// FetchCurrentRank returns the ranked entry for queueType, or nil when the
// player is unranked in that queue.
func (c *RiotClient) FetchCurrentRank(ctx context.Context, puuid, queueType string) (*domain.RankObservation, error) {
	u := fmt.Sprintf("%s/lol/league/v4/entries/by-puuid/%s", c.regionHost, url.PathEscape(puuid))
	entries, err := doRequest[[]LeagueEntry](ctx, c, "current_rank", u)
	if err != nil {
		return nil, err
	}

	for _, e := range *entries {
		if e.QueueType != queueType {
			continue
		}
		division := e.Rank
		if domain.IsApexTier(e.Tier) {
			division = ""
		}
		return &domain.RankObservation{
			Timestamp:    time.Now().UTC(),
			QueueType:    e.QueueType,
			Tier:         strings.ToUpper(e.Tier),
			Division:     division,
			LeaguePoints: e.LeaguePoints,
		}, nil
	}
	return nil, nil
}

// FetchRecentMatches returns up to count completed matches, newest first.
// Matches whose detail is not yet published are skipped.
func (c *RiotClient) FetchRecentMatches(ctx context.Context, puuid string, count int) ([]domain.CompletedMatch, error) {
	if count <= 0 {
		return []domain.CompletedMatch{}, nil
	}

	u := fmt.Sprintf("%s/lol/match/v5/matches/by-puuid/%s/ids?start=0&count=%d", c.platformHost, url.PathEscape(puuid), count)
	ids, err := doRequest[[]string](ctx, c, "match_ids", u)
	if err != nil {
		return nil, err
	}

	results := make([]*domain.CompletedMatch, len(*ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(matchDetailConcurrency)

	for i, id := range *ids {
		g.Go(func() error {
			u := fmt.Sprintf("%s/lol/match/v5/matches/%s", c.platformHost, url.PathEscape(id))
			detail, err := doRequest[MatchResponse](gctx, c, "match_detail", u)
			if err != nil {
				if IsNotFound(err) {
					c.logger.Debug().Str("match_id", id).Msg("match detail not published yet")
					return nil
				}
				return err
			}
			m, ok := detail.toCompletedMatch(puuid)
			if !ok {
				c.logger.Warn().Str("match_id", id).Msg("tracked player missing from match participants")
				return nil
			}
			results[i] = &m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matches := make([]domain.CompletedMatch, 0, len(results))
	for _, m := range results {
		if m != nil {
			matches = append(matches, *m)
		}
	}
	return matches, nil
}

func doRequest[T any](ctx context.Context, client *RiotClient, op, url string) (*T, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	for _, l := range client.limiters {
		if err := l.Wait(ctx); err != nil {
			return nil, classifyTransport(op, fmt.Errorf("rate limiter: %w", err))
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("X-Riot-Token", client.apiKey)
	req.Header.Set("Accept", "application/json")

	deadline, _ := ctx.Deadline()
	if err := client.client.DoDeadline(req, resp, deadline); err != nil {
		client.logger.Debug().Err(err).Str("op", op).Msg("riot request failed")
		return nil, classifyTransport(op, err)
	}

	client.updateRateLimit(resp)

	if resp.StatusCode() != fasthttp.StatusOK {
		apiErr := classifyStatus(op, resp)
		client.logger.Debug().
			Str("op", op).
			Int("status", apiErr.StatusCode).
			Str("kind", apiErr.Kind.String()).
			Dur("retry_after", apiErr.RetryAfter).
			Msg("riot request rejected")
		return nil, apiErr
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, decodeError(op, err)
	}
	return &result, nil
}

type ActiveGameResponse struct {
	GameID            int64  `json:"gameId"`
	GameStartTime     int64  `json:"gameStartTime"` // epoch ms, 0 during loading
	GameQueueConfigID int    `json:"gameQueueConfigId"`
	GameMode          string `json:"gameMode"`
	Participants      []struct {
		PUUID      string `json:"puuid"`
		ChampionID int    `json:"championId"`
		TeamID     int    `json:"teamId"`
	} `json:"participants"`
}

func (g *ActiveGameResponse) toSnapshot() *domain.LiveGameSnapshot {
	started := time.Now().UTC()
	if g.GameStartTime > 0 {
		started = time.UnixMilli(g.GameStartTime).UTC()
	}

	snap := &domain.LiveGameSnapshot{
		GameID:       g.GameID,
		StartedAt:    started,
		QueueID:      g.GameQueueConfigID,
		Participants: make([]domain.Participant, 0, len(g.Participants)),
	}
	for _, p := range g.Participants {
		snap.Participants = append(snap.Participants, domain.Participant{
			PUUID:      p.PUUID,
			ChampionID: p.ChampionID,
			TeamID:     p.TeamID,
		})
	}
	return snap
}

type LeagueEntry struct {
	QueueType    string `json:"queueType"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

type MatchResponse struct {
	Metadata struct {
		MatchID string `json:"matchId"`
	} `json:"metadata"`
	Info struct {
		GameCreation       int64 `json:"gameCreation"`
		GameStartTimestamp int64 `json:"gameStartTimestamp"`
		GameEndTimestamp   int64 `json:"gameEndTimestamp"`
		GameDuration       int64 `json:"gameDuration"`
		QueueID            int   `json:"queueId"`
		Participants       []struct {
			PUUID      string `json:"puuid"`
			Win        bool   `json:"win"`
			Kills      int    `json:"kills"`
			Deaths     int    `json:"deaths"`
			Assists    int    `json:"assists"`
			ChampionID int    `json:"championId"`
		} `json:"participants"`
	} `json:"info"`
}

// toCompletedMatch extracts puuid's result. gameDuration is seconds when
// gameEndTimestamp is present and milliseconds on older payloads.
func (m *MatchResponse) toCompletedMatch(puuid string) (domain.CompletedMatch, bool) {
	info := m.Info

	var duration time.Duration
	var ended time.Time
	if info.GameEndTimestamp > 0 {
		duration = time.Duration(info.GameDuration) * time.Second
		ended = time.UnixMilli(info.GameEndTimestamp).UTC()
	} else {
		duration = time.Duration(info.GameDuration) * time.Millisecond
		start := info.GameStartTimestamp
		if start == 0 {
			start = info.GameCreation
		}
		ended = time.UnixMilli(start).Add(duration).UTC()
	}

	for _, p := range info.Participants {
		if p.PUUID != puuid {
			continue
		}
		return domain.CompletedMatch{
			MatchID:    m.Metadata.MatchID,
			EndedAt:    ended,
			Duration:   duration,
			Win:        p.Win,
			Kills:      p.Kills,
			Deaths:     p.Deaths,
			Assists:    p.Assists,
			ChampionID: p.ChampionID,
			QueueID:    info.QueueID,
		}, true
	}
	return domain.CompletedMatch{}, false
}
