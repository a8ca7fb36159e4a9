package notify

import (
	"strconv"
	"strings"

	"github.com/MisterZedd/SourceStalker/internal/config"
	"github.com/MisterZedd/SourceStalker/internal/domain"
)

// Templates renders notifications into chat lines using the configured
// message set.
type Templates struct {
	messages config.Messages
	name     string
}

func NewTemplates(cfg *config.Config) *Templates {
	return &Templates{messages: cfg.Messages, name: cfg.DisplayName()}
}

// Lines returns the chat lines for n, in posting order.
func (t *Templates) Lines(n domain.Notification) []string {
	queue := domain.QueueName(n.QueueType)
	switch n.Kind {
	case domain.NotificationEntered:
		return []string{t.fill(t.messages.GameStart, 0, 0, queue)}

	case domain.NotificationUnavailable:
		return []string{t.fill(t.messages.Unavailable, 0, 0, queue)}

	case domain.NotificationCompleted:
		result := t.messages.GameLoss
		if n.Win {
			result = t.messages.GameWin
		}
		lines := []string{
			t.fill(result, 0, n.Deaths, queue),
			t.fill(t.messages.DeathCount, 0, n.Deaths, queue),
		}
		if n.HasLPDelta && n.LPDelta != 0 {
			tmpl := t.messages.LPGain
			delta := n.LPDelta
			if delta < 0 {
				tmpl = t.messages.LPLoss
				delta = -delta
			}
			lines = append(lines, t.fill(tmpl, delta, n.Deaths, queue))
		}
		return lines
	}
	return nil
}

func (t *Templates) Text(n domain.Notification) string {
	return strings.Join(t.Lines(n), "\n")
}

func (t *Templates) fill(tmpl string, lp, deaths int, queue string) string {
	return strings.NewReplacer(
		"{summoner_name}", t.name,
		"{lp_change}", strconv.Itoa(lp),
		"{deaths}", strconv.Itoa(deaths),
		"{queue_type}", queue,
	).Replace(tmpl)
}
