package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/config"
	"github.com/MisterZedd/SourceStalker/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{SummonerName: "Faker", Messages: config.DefaultMessages()}
}

func completed(win bool, lp int, hasLP bool) domain.Notification {
	return domain.Notification{
		Kind:       domain.NotificationCompleted,
		MatchID:    "KR_1",
		Win:        win,
		Kills:      3,
		Deaths:     9,
		Assists:    4,
		LPDelta:    lp,
		HasLPDelta: hasLP,
		QueueType:  domain.QueueSolo,
		CreatedAt:  time.Now(),
	}
}

func TestTemplates_Completed(t *testing.T) {
	tmpl := NewTemplates(testConfig())

	lines := tmpl.Lines(completed(false, -18, true))
	require.Len(t, lines, 3)
	assert.Equal(t, "Faker threw the game!", lines[0])
	assert.Equal(t, "Amount of times Faker died: 9", lines[1])
	assert.Equal(t, "Faker lost 18 LP in Solo Queue!", lines[2])

	lines = tmpl.Lines(completed(true, 21, true))
	assert.Equal(t, "Faker got carried!", lines[0])
	assert.Equal(t, "Faker gained 21 LP in Solo Queue!", lines[2])

	// baseline observation: no LP line
	assert.Len(t, tmpl.Lines(completed(true, 0, false)), 2)
}

func TestTemplates_NicknameAndOtherKinds(t *testing.T) {
	cfg := testConfig()
	cfg.Messages.Nickname = "the GOAT"
	tmpl := NewTemplates(cfg)

	assert.Equal(t, "the GOAT is in a game now! Monitoring...",
		tmpl.Text(domain.Notification{Kind: domain.NotificationEntered}))
	assert.Contains(t, tmpl.Text(domain.Notification{Kind: domain.NotificationUnavailable}), "not available")
}

type fakeSink struct {
	name  string
	err   error
	calls atomic.Int32
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Send(context.Context, domain.Notification) error {
	f.calls.Add(1)
	return f.err
}

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	ok := &fakeSink{name: "ok"}
	broken := &fakeSink{name: "broken", err: errors.New("boom")}
	other := &fakeSink{name: "other"}

	d := NewDispatcher(zerolog.Nop(), ok, broken, other)
	err := d.Dispatch(context.Background(), completed(true, 10, true))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, int32(1), ok.calls.Load())
	assert.Equal(t, int32(1), broken.calls.Load())
	assert.Equal(t, int32(1), other.calls.Load())

	assert.NoError(t, NewDispatcher(zerolog.Nop(), ok).Dispatch(context.Background(), completed(true, 1, true)))
}

func TestWebhookSink_Send(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.WebhookURL = srv.URL
	sink := NewWebhookSink(cfg, NewTemplates(cfg), zerolog.Nop())

	require.NoError(t, sink.Send(context.Background(), completed(true, 20, true)))
	assert.True(t, strings.HasPrefix(got.Content, "Faker got carried!"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, colorWin, got.Embeds[0].Color)
	assert.Equal(t, "Solo Queue  3/9/4", got.Embeds[0].Title)
}

func TestWebhookSink_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.WebhookURL = srv.URL
	sink := NewWebhookSink(cfg, NewTemplates(cfg), zerolog.Nop())

	err := sink.Send(context.Background(), domain.Notification{Kind: domain.NotificationUnavailable})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var welcome Event
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "tracker:connected", welcome.Type)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Send(context.Background(), completed(false, -12, true)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "game:completed", ev.Type)
	assert.Equal(t, "KR_1", ev.Data["match_id"])
	assert.Equal(t, float64(-12), ev.Data["lp_delta"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var pong Event
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong.Type)
}

func TestNotificationEvent_Entered(t *testing.T) {
	snap := &domain.LiveGameSnapshot{GameID: 5, StartedAt: time.Unix(100, 0)}
	ev := NotificationEvent(domain.Notification{Kind: domain.NotificationEntered, Snapshot: snap, ChampionID: 7})
	assert.Equal(t, "game:entered", ev.Type)
	assert.Equal(t, int64(5), ev.Data["game_id"])
	assert.False(t, ev.Timestamp.IsZero())
}
