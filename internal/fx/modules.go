package fx

import (
	"github.com/MisterZedd/SourceStalker/internal/api"
	"github.com/MisterZedd/SourceStalker/internal/config"
	"github.com/MisterZedd/SourceStalker/internal/database"
	"github.com/MisterZedd/SourceStalker/internal/logger"
	"github.com/MisterZedd/SourceStalker/internal/notify"
	"github.com/MisterZedd/SourceStalker/internal/repository"
	"github.com/MisterZedd/SourceStalker/internal/server"
	"github.com/MisterZedd/SourceStalker/internal/service"
	"github.com/MisterZedd/SourceStalker/internal/telemetry"

	"go.uber.org/fx"
)

func ProvideNotifier(d *notify.Dispatcher) service.Notifier {
	return d
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	telemetry.Module,
	// repos
	fx.Provide(repository.NewHistoryRepository),
	// api client
	fx.Provide(fx.Annotate(api.NewRiotClient, fx.As(new(service.StatsClient)))),
	// notifications
	notify.Module,
	fx.Provide(ProvideNotifier),
	// svc
	fx.Provide(service.NewStateTracker),
	fx.Provide(service.NewReconcileService),
	fx.Provide(service.NewPoller),
	fx.Provide(service.NewRetentionScheduler),
	fx.Provide(service.NewQueryService),
	// server
	fx.Provide(server.NewTrackerServer),
)
