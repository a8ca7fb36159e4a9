package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/api"
	"github.com/MisterZedd/SourceStalker/internal/config"
	"github.com/MisterZedd/SourceStalker/internal/constants"
	"github.com/MisterZedd/SourceStalker/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type PollerState int

const (
	PollerIdle PollerState = iota
	PollerPolling
	PollerStopped
)

func (s PollerState) String() string {
	switch s {
	case PollerPolling:
		return "polling"
	case PollerStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// pendingGame is a finished game still waiting for its match record.
type pendingGame struct {
	anchor   time.Time
	gameID   int64
	deadline time.Time
}

// Poller drives the tracker: one tick at a time, never overlapping.
type Poller struct {
	stats      StatsClient
	tracker    *StateTracker
	reconciler *ReconcileService
	notifier   Notifier
	cfg        *config.Config
	logger     zerolog.Logger
	now        func() time.Time

	dispatchTimeout time.Duration

	mu      sync.Mutex
	state   PollerState
	cancel  context.CancelFunc
	done    chan struct{}
	pending *pendingGame
}

func NewPoller(stats StatsClient, tracker *StateTracker, reconciler *ReconcileService, notifier Notifier, cfg *config.Config, logger zerolog.Logger) *Poller {
	return &Poller{
		stats:      stats,
		tracker:    tracker,
		reconciler: reconciler,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger.With().Str("component", "poller").Logger(),
		now:        time.Now,

		dispatchTimeout: constants.DispatchTimeout,
	}
}

func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start launches the polling loop. The first tick runs immediately.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != PollerIdle {
		return fmt.Errorf("poller cannot start from state %s", p.state)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.state = PollerPolling

	go p.run(ctx)

	p.logger.Info().
		Dur("interval", p.cfg.PollInterval).
		Str("puuid", p.cfg.PUUID).
		Msg("poller started")
	return nil
}

// Stop cancels the timer and waits for the current tick to return. A
// reconciliation already in flight finishes on its own context.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.state != PollerPolling {
		p.state = PollerStopped
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	done := p.done
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("poller did not stop in time: %w", ctx.Err())
	}

	p.mu.Lock()
	p.state = PollerStopped
	p.mu.Unlock()
	p.logger.Info().Msg("poller stopped")
	return nil
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			next := p.Tick(ctx)
			timer.Reset(next)
		}
	}
}

// Tick performs one poll and returns the delay before the next one.
func (p *Poller) Tick(ctx context.Context) time.Duration {
	tickID := uuid.New().String()
	ctx, span := otel.Tracer("service/poller").Start(ctx, "Poller.Tick", trace.WithAttributes(
		attribute.String("tick.id", tickID),
	))
	defer span.End()
	logger := p.logger.With().Str("tick_id", tickID).Logger()

	fetchCtx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	snapshot, err := p.stats.FetchLiveStatus(fetchCtx, p.cfg.PUUID)
	cancel()

	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			return p.cfg.PollInterval
		}
		if delay, skip := p.handleFetchError(logger, err); skip {
			return delay
		}
	} else {
		p.observe(ctx, logger, snapshot)
	}

	if ctx.Err() == nil {
		p.reconcilePending(ctx, logger)
	}
	return p.cfg.PollInterval
}

// handleFetchError logs by class. Rate limiting skips the rest of the
// tick and stretches the delay to the server's hint.
func (p *Poller) handleFetchError(logger zerolog.Logger, err error) (time.Duration, bool) {
	switch api.KindOf(err) {
	case api.KindRateLimited:
		wait := api.RetryAfterOf(err)
		if wait <= 0 {
			wait = constants.DefaultRateLimitWait
		}
		wait = max(wait, p.cfg.PollInterval)
		logger.Warn().Err(err).Dur("retry_after", wait).Msg("rate limited, delaying next poll")
		return wait, true
	case api.KindNotFound:
		logger.Info().Err(err).Msg("live status not found")
	case api.KindFatal:
		logger.Error().Err(err).Msg("live status request rejected, check API key and PUUID")
	default:
		logger.Warn().Err(err).Msg("live status poll failed")
	}
	return 0, false
}

func (p *Poller) observe(ctx context.Context, logger zerolog.Logger, snapshot *domain.LiveGameSnapshot) {
	bootstrap := !p.tracker.Seeded()
	transition, snap := p.tracker.Observe(snapshot != nil, snapshot)

	if bootstrap {
		state, _ := p.tracker.Presence()
		logger.Info().Str("presence", state.String()).Msg("initial presence seeded")
		return
	}

	switch transition {
	case domain.TransitionEnteredGame:
		p.onEntered(ctx, logger, snap)
	case domain.TransitionLeftGame:
		p.onLeft(ctx, logger, snap)
	}
}

func (p *Poller) onEntered(ctx context.Context, logger zerolog.Logger, snap *domain.LiveGameSnapshot) {
	queueType := domain.QueueTypeForID(snap.QueueID)
	n := domain.Notification{
		Kind:      domain.NotificationEntered,
		QueueType: queueType,
		Snapshot:  snap,
		CreatedAt: p.now(),
	}
	if me, ok := snap.Participant(p.cfg.PUUID); ok {
		n.ChampionID = me.ChampionID
	}

	logger.Info().
		Int64("game_id", snap.GameID).
		Int("queue_id", snap.QueueID).
		Time("started_at", snap.StartedAt).
		Msg("player entered game")

	bctx, cancelBaseline := context.WithTimeout(context.WithoutCancel(ctx), constants.ExternalAPITimeout)
	defer cancelBaseline()
	if err := p.reconciler.CaptureBaseline(bctx, queueType); err != nil {
		logger.Warn().Err(err).Msg("failed to capture pre-game rank")
	}

	dctx, cancelDispatch := context.WithTimeout(context.WithoutCancel(ctx), p.dispatchTimeout)
	defer cancelDispatch()
	if err := p.notifier.Dispatch(dctx, n); err != nil {
		logger.Warn().Err(err).Msg("entered notification delivery incomplete")
	}
}

func (p *Poller) onLeft(ctx context.Context, logger zerolog.Logger, snap *domain.LiveGameSnapshot) {
	now := p.now()
	game := &pendingGame{anchor: now, deadline: now.Add(p.cfg.SettleWindow)}
	if snap != nil {
		game.anchor = snap.StartedAt
		game.gameID = snap.GameID
	}

	logger.Info().Int64("game_id", game.gameID).Time("anchor", game.anchor).Msg("player left game")

	p.mu.Lock()
	previous := p.pending
	p.pending = game
	p.mu.Unlock()

	if previous != nil {
		logger.Warn().Int64("game_id", previous.gameID).Msg("previous game still unresolved, concluding it")
		p.conclude(ctx, logger, previous, true)
	}
}

// reconcilePending retries the pending game until its settle deadline,
// then falls back to a degraded notification.
func (p *Poller) reconcilePending(ctx context.Context, logger zerolog.Logger) {
	p.mu.Lock()
	game := p.pending
	p.mu.Unlock()
	if game == nil {
		return
	}

	final := !p.now().Before(game.deadline)
	if p.conclude(ctx, logger, game, final) {
		p.mu.Lock()
		if p.pending == game {
			p.pending = nil
		}
		p.mu.Unlock()
	}
}

// conclude runs one reconciliation attempt detached from ctx so shutdown
// cannot interrupt the record write. It reports whether the game is done.
func (p *Poller) conclude(ctx context.Context, logger zerolog.Logger, game *pendingGame, final bool) bool {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ReconcileTimeout)
	defer cancel()

	if final {
		if _, err := p.reconciler.Reconcile(rctx, game.anchor); err != nil {
			logger.Error().Err(err).Int64("game_id", game.gameID).Msg("reconciliation failed")
		}
		return true
	}

	n, err := p.reconciler.TryReconcile(rctx, game.anchor)
	switch {
	case errors.Is(err, ErrNoMatch):
		logger.Debug().Int64("game_id", game.gameID).Time("deadline", game.deadline).Msg("match not published yet")
		return false
	case err != nil:
		logger.Warn().Err(err).Int64("game_id", game.gameID).Msg("reconciliation attempt failed, retrying next tick")
		return false
	case n == nil:
		logger.Debug().Int64("game_id", game.gameID).Msg("match already notified")
	}
	return true
}

// Pending reports whether a finished game is awaiting reconciliation.
func (p *Poller) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}
