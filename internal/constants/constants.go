package constants

import "time"

const (
	DefaultPollInterval    = 30 * time.Second
	DefaultRetentionWindow = 30 * 24 * time.Hour
	DefaultTrimInterval    = 6 * time.Hour
	DefaultLookbackWindow  = 15 * time.Minute
	DefaultMatchTolerance  = 60 * time.Second
	DefaultSettleWindow    = 3 * time.Minute
	DefaultRateLimitWait   = 60 * time.Second
	DefaultAppRateLimit    = "20:1,100:120"
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	ReconcileTimeout   = 45 * time.Second
	DispatchTimeout    = 10 * time.Second
)

const (
	DBMaxOpenConns    = 8
	DBMaxIdleConns    = 4
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	RecentMatchCount    = 5
	MaxRecentMatchCount = 20
	MaxGraphDays        = 365
	DefaultGraphDays    = 30
	SessionGap          = 45 * time.Minute
	SummaryGames        = 5
)
