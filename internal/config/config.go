package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/constants"
	"github.com/MisterZedd/SourceStalker/internal/domain"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	RiotAPIKey   string
	PUUID        string
	SummonerName string
	RegionHost   string // e.g. https://na1.api.riotgames.com
	PlatformHost string // e.g. https://americas.api.riotgames.com
	QueueType    string
	AppRateLimit string

	DBPath     string
	ServerPort string

	PollInterval    time.Duration
	RetentionWindow time.Duration
	TrimInterval    time.Duration
	LookbackWindow  time.Duration
	MatchTolerance  time.Duration
	SettleWindow    time.Duration

	WebhookURL  string
	TraceStdout bool
	Messages    Messages
}

// Messages are the chat templates. Placeholders: {summoner_name},
// {lp_change}, {deaths}, {queue_type}.
type Messages struct {
	Nickname    string `toml:"nickname"`
	GameStart   string `toml:"game_start"`
	GameWin     string `toml:"game_win"`
	GameLoss    string `toml:"game_loss"`
	DeathCount  string `toml:"death_count"`
	LPGain      string `toml:"lp_gain"`
	LPLoss      string `toml:"lp_loss"`
	Unavailable string `toml:"unavailable"`
}

func DefaultMessages() Messages {
	return Messages{
		GameStart:   "{summoner_name} is in a game now! Monitoring...",
		GameWin:     "{summoner_name} got carried!",
		GameLoss:    "{summoner_name} threw the game!",
		DeathCount:  "Amount of times {summoner_name} died: {deaths}",
		LPGain:      "{summoner_name} gained {lp_change} LP in {queue_type}!",
		LPLoss:      "{summoner_name} lost {lp_change} LP in {queue_type}!",
		Unavailable: "{summoner_name} finished a game, but the result is not available yet.",
	}
}

// fileConfig mirrors the optional TOML file. Every key may be overridden
// by its environment variable.
type fileConfig struct {
	Riot struct {
		APIKey       string `toml:"api_key"`
		PUUID        string `toml:"puuid"`
		SummonerName string `toml:"summoner_name"`
		Region       string `toml:"region"`
		Platform     string `toml:"platform"`
		QueueType    string `toml:"queue_type"`
		AppRateLimit string `toml:"app_rate_limit"`
	} `toml:"riot"`
	Database struct {
		Path string `toml:"path"`
	} `toml:"database"`
	Tracker struct {
		PollInterval    string `toml:"poll_interval"`
		RetentionWindow string `toml:"retention_window"`
		TrimInterval    string `toml:"trim_interval"`
		LookbackWindow  string `toml:"lookback_window"`
		MatchTolerance  string `toml:"match_tolerance"`
		SettleWindow    string `toml:"settle_window"`
	} `toml:"tracker"`
	Server struct {
		Port string `toml:"port"`
	} `toml:"server"`
	Discord struct {
		WebhookURL string `toml:"webhook_url"`
	} `toml:"discord"`
	Messages Messages `toml:"messages"`
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	var fc fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := readFile(path, &fc); err != nil {
			return nil, err
		}
		logger.Info().Str("path", path).Msg("config file loaded")
	}

	cfg := &Config{
		RiotAPIKey:   getEnv("RIOT_API_KEY", fc.Riot.APIKey),
		PUUID:        getEnv("RIOT_PUUID", fc.Riot.PUUID),
		SummonerName: getEnv("RIOT_SUMMONER_NAME", fc.Riot.SummonerName),
		RegionHost:   hostURL(getEnv("RIOT_REGION", or(fc.Riot.Region, "na1"))),
		PlatformHost: hostURL(getEnv("RIOT_PLATFORM", or(fc.Riot.Platform, "americas"))),
		QueueType:    getEnv("RIOT_QUEUE_TYPE", or(fc.Riot.QueueType, domain.QueueSolo)),
		AppRateLimit: getEnv("RIOT_APP_RATE_LIMIT", or(fc.Riot.AppRateLimit, constants.DefaultAppRateLimit)),
		DBPath:       getEnv("DB_PATH", or(fc.Database.Path, "sourcestalker.db")),
		ServerPort:   getEnv("SERVER_PORT", or(fc.Server.Port, "8080")),
		WebhookURL:   getEnv("DISCORD_WEBHOOK_URL", fc.Discord.WebhookURL),
		TraceStdout:  strings.EqualFold(os.Getenv("TRACE_STDOUT"), "true"),
		Messages:     mergeMessages(fc.Messages),
	}
	cfg.Messages.Nickname = getEnv("MESSAGE_NICKNAME", cfg.Messages.Nickname)

	durations := []struct {
		env      string
		file     string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"POLL_INTERVAL", fc.Tracker.PollInterval, constants.DefaultPollInterval, &cfg.PollInterval},
		{"RETENTION_WINDOW", fc.Tracker.RetentionWindow, constants.DefaultRetentionWindow, &cfg.RetentionWindow},
		{"TRIM_INTERVAL", fc.Tracker.TrimInterval, constants.DefaultTrimInterval, &cfg.TrimInterval},
		{"LOOKBACK_WINDOW", fc.Tracker.LookbackWindow, constants.DefaultLookbackWindow, &cfg.LookbackWindow},
		{"MATCH_TOLERANCE", fc.Tracker.MatchTolerance, constants.DefaultMatchTolerance, &cfg.MatchTolerance},
		{"SETTLE_WINDOW", fc.Tracker.SettleWindow, constants.DefaultSettleWindow, &cfg.SettleWindow},
	}
	for _, d := range durations {
		v, err := parseDuration(getEnv(d.env, d.file), d.fallback)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.env, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("region_host", cfg.RegionHost).
		Str("queue_type", cfg.QueueType).
		Dur("poll_interval", cfg.PollInterval).
		Dur("retention_window", cfg.RetentionWindow).
		Dur("lookback_window", cfg.LookbackWindow).
		Bool("webhook", cfg.WebhookURL != "").
		Msg("configuration loaded")

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.RiotAPIKey == "" {
		errs = append(errs, errors.New("RIOT_API_KEY is required"))
	}
	if c.PUUID == "" {
		errs = append(errs, errors.New("RIOT_PUUID is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.RetentionWindow <= 0 {
		errs = append(errs, errors.New("RETENTION_WINDOW must be positive"))
	}
	if c.TrimInterval <= 0 {
		errs = append(errs, errors.New("TRIM_INTERVAL must be positive"))
	}
	if c.LookbackWindow <= 0 {
		errs = append(errs, errors.New("LOOKBACK_WINDOW must be positive"))
	}
	if c.SettleWindow <= 0 {
		errs = append(errs, errors.New("SETTLE_WINDOW must be positive"))
	}
	if c.MatchTolerance < 0 {
		errs = append(errs, errors.New("MATCH_TOLERANCE must not be negative"))
	}
	return errors.Join(errs...)
}

// DisplayName is the nickname when set, otherwise the summoner name.
func (c *Config) DisplayName() string {
	if c.Messages.Nickname != "" {
		return c.Messages.Nickname
	}
	if c.SummonerName != "" {
		return c.SummonerName
	}
	return "Player"
}

func readFile(path string, fc *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func mergeMessages(m Messages) Messages {
	d := DefaultMessages()
	d.Nickname = m.Nickname
	d.GameStart = or(m.GameStart, d.GameStart)
	d.GameWin = or(m.GameWin, d.GameWin)
	d.GameLoss = or(m.GameLoss, d.GameLoss)
	d.DeathCount = or(m.DeathCount, d.DeathCount)
	d.LPGain = or(m.LPGain, d.LPGain)
	d.LPLoss = or(m.LPLoss, d.LPLoss)
	d.Unavailable = or(m.Unavailable, d.Unavailable)
	return d
}

// hostURL accepts either a routing value ("na1") or a full base URL.
func hostURL(v string) string {
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return strings.TrimRight(v, "/")
	}
	return fmt.Sprintf("https://%s.api.riotgames.com", strings.ToLower(v))
}

func parseDuration(v string, fallback time.Duration) (time.Duration, error) {
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

var Module = fx.Provide(Load)
