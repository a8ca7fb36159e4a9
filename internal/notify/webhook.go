package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/config"
	"github.com/MisterZedd/SourceStalker/internal/constants"
	"github.com/MisterZedd/SourceStalker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// WebhookSink posts rendered notifications to a Discord-compatible
// webhook URL.
type WebhookSink struct {
	url       string
	username  string
	client    *fasthttp.Client
	templates *Templates
	logger    zerolog.Logger
}

type webhookPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content"`
	Embeds   []webhookEmbed `json:"embeds,omitempty"`
}

type webhookEmbed struct {
	Title     string `json:"title,omitempty"`
	Color     int    `json:"color,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

const (
	colorWin  = 0x2ecc71
	colorLoss = 0xe74c3c
	colorInfo = 0x3498db
)

func NewWebhookSink(cfg *config.Config, templates *Templates, logger zerolog.Logger) *WebhookSink {
	return &WebhookSink{
		url:      cfg.WebhookURL,
		username: "SourceStalker",
		client: &fasthttp.Client{
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		templates: templates,
		logger:    logger.With().Str("component", "webhook_sink").Logger(),
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Send(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(s.payload(n))
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(constants.ExternalAPITimeout)
	}
	if err := s.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}

	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return fmt.Errorf("webhook rejected notification: status %d", status)
	}

	s.logger.Debug().Str("kind", string(n.Kind)).Str("match_id", n.MatchID).Msg("webhook delivered")
	return nil
}

func (s *WebhookSink) payload(n domain.Notification) webhookPayload {
	p := webhookPayload{
		Username: s.username,
		Content:  s.templates.Text(n),
	}

	embed := webhookEmbed{Color: colorInfo, Timestamp: n.CreatedAt.UTC().Format(time.RFC3339)}
	switch n.Kind {
	case domain.NotificationCompleted:
		embed.Title = fmt.Sprintf("%s  %d/%d/%d", domain.QueueName(n.QueueType), n.Kills, n.Deaths, n.Assists)
		embed.Color = colorLoss
		if n.Win {
			embed.Color = colorWin
		}
	case domain.NotificationEntered:
		embed.Title = domain.QueueName(n.QueueType)
	default:
		return p
	}
	p.Embeds = []webhookEmbed{embed}
	return p
}
