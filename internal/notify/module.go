package notify

import (
	"context"

	"github.com/MisterZedd/SourceStalker/internal/config"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// NewConfiguredDispatcher wires the log and websocket sinks, plus the
// webhook when a URL is configured.
func NewConfiguredDispatcher(cfg *config.Config, templates *Templates, hub *Hub, logger zerolog.Logger) *Dispatcher {
	sinks := []Sink{NewLogSink(logger, templates), hub}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, NewWebhookSink(cfg, templates, logger))
	}
	return NewDispatcher(logger, sinks...)
}

func newLifecycleHub(lc fx.Lifecycle, logger zerolog.Logger) *Hub {
	hub := NewHub(logger)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			hub.Close()
			return nil
		},
	})
	return hub
}

var Module = fx.Options(
	fx.Provide(NewTemplates),
	fx.Provide(newLifecycleHub),
	fx.Provide(NewConfiguredDispatcher),
)
