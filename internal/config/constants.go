package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Game server transport
const (
	DefaultRemotePort = 35711
	TransportTimeout  = 5 * time.Second
	DetailsTTL        = 2 * time.Minute
)

// Save pipeline
const (
	SaveWaitTimeout     = 3 * time.Second
	SavePollInterval    = 2 * time.Second
	SavePollCount       = 8
	SaveAttempts        = 2
	SaveNameMaxLength   = 25
	UploadMaxBodySize   = 100 << 20
	PluginReplyDeadline = 2 * time.Minute
	PluginKeepAlive     = 30 * time.Second
)

// Background job intervals
const (
	ImageScanInterval  = 1 * time.Minute
	MapListRefreshSpec = "@every 6h"
)

// Plugin listener flood guard, per source address
const (
	PluginRateLimitPerSec = 5
	PluginRateLimitBurst  = 10
)

// IP lookup cache
const IPInfoCacheTTL = 24 * time.Hour

// Public download limits, per client address
const (
	DownloadRateLimit  = 30
	DownloadRateWindow = time.Minute
)
