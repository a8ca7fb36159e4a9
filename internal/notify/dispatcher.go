package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MisterZedd/SourceStalker/internal/constants"
	"github.com/MisterZedd/SourceStalker/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Sink delivers a notification to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, n domain.Notification) error
}

// Dispatcher fans a notification out to every sink. A failing sink does
// not stop delivery to the others.
type Dispatcher struct {
	sinks  []Sink
	logger zerolog.Logger
}

func NewDispatcher(logger zerolog.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:  sinks,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, n domain.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DispatchTimeout)
	defer cancel()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, sink := range d.sinks {
		g.Go(func() error {
			if err := sink.Send(ctx, n); err != nil {
				d.logger.Warn().
					Err(err).
					Str("sink", sink.Name()).
					Str("kind", string(n.Kind)).
					Str("match_id", n.MatchID).
					Msg("notification delivery failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	d.logger.Debug().
		Str("kind", string(n.Kind)).
		Str("match_id", n.MatchID).
		Int("sinks", len(d.sinks)).
		Int("failed", len(errs)).
		Msg("notification dispatched")
	return errors.Join(errs...)
}

// LogSink writes notifications to the process log.
type LogSink struct {
	logger    zerolog.Logger
	templates *Templates
}

func NewLogSink(logger zerolog.Logger, templates *Templates) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "log_sink").Logger(), templates: templates}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, n domain.Notification) error {
	ev := s.logger.Info().
		Str("kind", string(n.Kind)).
		Str("queue_type", n.QueueType)
	if n.MatchID != "" {
		ev = ev.Str("match_id", n.MatchID).
			Bool("win", n.Win).
			Str("kda", fmt.Sprintf("%d/%d/%d", n.Kills, n.Deaths, n.Assists)).
			Int("champion_id", n.ChampionID)
	}
	if n.HasLPDelta {
		ev = ev.Int("lp_delta", n.LPDelta)
	}
	ev.Msg(s.templates.Text(n))
	return nil
}
