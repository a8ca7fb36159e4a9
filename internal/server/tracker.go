package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/api"
	"github.com/MisterZedd/SourceStalker/internal/domain"
	"github.com/MisterZedd/SourceStalker/internal/service"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	TrackerServiceName = "sourcestalker.v1.TrackerService"
	TrackerServicePath = "/" + TrackerServiceName + "/"

	GetRankGraphProcedure     = TrackerServicePath + "GetRankGraph"
	GetRankGraphHTMLProcedure = TrackerServicePath + "GetRankGraphHTML"
	GetLiveStatusProcedure    = TrackerServicePath + "GetLiveStatus"
	GetRecentMatchesProcedure = TrackerServicePath + "GetRecentMatches"
	GetRankSummaryProcedure   = TrackerServicePath + "GetRankSummary"
)

type TrackerServer struct {
	querySvc *service.QueryService
	logger   zerolog.Logger
}

func NewTrackerServer(querySvc *service.QueryService, logger zerolog.Logger) *TrackerServer {
	return &TrackerServer{querySvc: querySvc, logger: logger.With().Str("component", "rpc").Logger()}
}

// Handler mounts every procedure under TrackerServicePath.
func (s *TrackerServer) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(GetRankGraphProcedure, connect.NewUnaryHandler(GetRankGraphProcedure, s.GetRankGraph, opts...))
	mux.Handle(GetRankGraphHTMLProcedure, connect.NewUnaryHandler(GetRankGraphHTMLProcedure, s.GetRankGraphHTML, opts...))
	mux.Handle(GetLiveStatusProcedure, connect.NewUnaryHandler(GetLiveStatusProcedure, s.GetLiveStatus, opts...))
	mux.Handle(GetRecentMatchesProcedure, connect.NewUnaryHandler(GetRecentMatchesProcedure, s.GetRecentMatches, opts...))
	mux.Handle(GetRankSummaryProcedure, connect.NewUnaryHandler(GetRankSummaryProcedure, s.GetRankSummary, opts...))
	return TrackerServicePath, mux
}

func (s *TrackerServer) GetRankGraph(ctx context.Context, req *connect.Request[wrapperspb.Int32Value]) (*connect.Response[wrapperspb.BytesValue], error) {
	img, err := s.querySvc.RankGraph(ctx, int(req.Msg.GetValue()))
	if err != nil {
		return nil, s.toConnectError(ctx, "GetRankGraph", err)
	}
	return connect.NewResponse(wrapperspb.Bytes(img)), nil
}

func (s *TrackerServer) GetRankGraphHTML(ctx context.Context, req *connect.Request[wrapperspb.Int32Value]) (*connect.Response[wrapperspb.StringValue], error) {
	page, err := s.querySvc.RankGraphHTML(ctx, int(req.Msg.GetValue()))
	if err != nil {
		return nil, s.toConnectError(ctx, "GetRankGraphHTML", err)
	}
	return connect.NewResponse(wrapperspb.String(page)), nil
}

func (s *TrackerServer) GetLiveStatus(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	status := s.querySvc.LiveStatus()

	fields := map[string]any{
		"presence": status.Presence.String(),
		"seeded":   status.Seeded,
	}
	if snap := status.Snapshot; snap != nil {
		participants := make([]any, 0, len(snap.Participants))
		for _, p := range snap.Participants {
			participants = append(participants, map[string]any{
				"puuid":       p.PUUID,
				"champion_id": p.ChampionID,
				"team_id":     p.TeamID,
			})
		}
		fields["snapshot"] = map[string]any{
			"game_id":      snap.GameID,
			"started_at":   snap.StartedAt.UTC().Format(time.RFC3339),
			"queue_id":     snap.QueueID,
			"queue_type":   domain.QueueName(domain.QueueTypeForID(snap.QueueID)),
			"participants": participants,
		}
	}

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, s.toConnectError(ctx, "GetLiveStatus", err)
	}
	return connect.NewResponse(msg), nil
}

func (s *TrackerServer) GetRecentMatches(ctx context.Context, req *connect.Request[wrapperspb.Int32Value]) (*connect.Response[structpb.Struct], error) {
	matches, err := s.querySvc.RecentMatches(ctx, int(req.Msg.GetValue()))
	if err != nil {
		return nil, s.toConnectError(ctx, "GetRecentMatches", err)
	}

	list := make([]any, 0, len(matches))
	for _, m := range matches {
		list = append(list, map[string]any{
			"match_id":         m.MatchID,
			"ended_at":         m.EndedAt.UTC().Format(time.RFC3339),
			"duration_seconds": int64(m.Duration / time.Second),
			"win":              m.Win,
			"kills":            m.Kills,
			"deaths":           m.Deaths,
			"assists":          m.Assists,
			"champion_id":      m.ChampionID,
			"queue_id":         m.QueueID,
		})
	}

	msg, err := structpb.NewStruct(map[string]any{"matches": list})
	if err != nil {
		return nil, s.toConnectError(ctx, "GetRecentMatches", err)
	}
	return connect.NewResponse(msg), nil
}

func (s *TrackerServer) GetRankSummary(ctx context.Context, req *connect.Request[wrapperspb.Int32Value]) (*connect.Response[structpb.Struct], error) {
	summary, err := s.querySvc.RankSummary(ctx, int(req.Msg.GetValue()))
	if err != nil {
		return nil, s.toConnectError(ctx, "GetRankSummary", err)
	}

	streakType := "losses"
	if summary.StreakWins {
		streakType = "wins"
	}
	fields := map[string]any{
		"streak":           summary.Streak,
		"streak_type":      streakType,
		"recent_lp_change": summary.RecentLPChange,
		"recent_games":     summary.RecentGames,
	}
	if cur := summary.Current; cur != nil {
		fields["current"] = map[string]any{
			"queue_type":    cur.QueueType,
			"tier":          cur.Tier,
			"division":      cur.Division,
			"league_points": cur.LeaguePoints,
			"label":         domain.ShortLabel(cur.Tier, cur.Division),
			"timestamp":     cur.Timestamp.UTC().Format(time.RFC3339),
		}
	}

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, s.toConnectError(ctx, "GetRankSummary", err)
	}
	return connect.NewResponse(msg), nil
}

func (s *TrackerServer) toConnectError(ctx context.Context, method string, err error) *connect.Error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		code = connect.CodeInvalidArgument
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	default:
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			switch apiErr.Kind {
			case api.KindRateLimited:
				code = connect.CodeResourceExhausted
			case api.KindNotFound:
				code = connect.CodeNotFound
			case api.KindFatal:
				code = connect.CodeFailedPrecondition
			default:
				code = connect.CodeUnavailable
			}
		}
	}

	zerolog.Ctx(ctx).Warn().Err(err).Str("method", method).Str("code", code.String()).Msg("rpc failed")
	if code == connect.CodeInternal {
		s.logger.Error().Err(err).Str("method", method).Msg("internal rpc error")
	}
	return connect.NewError(code, err)
}
