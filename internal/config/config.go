package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	PrivatePort   int    `env:"PRIVATE_PORT" envDefault:"8081"`
	PluginPort    int    `env:"PLUGIN_PORT" envDefault:"35712"`
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"sqlite://storage/db/ffaweb.db"`
	RedisURL      string `env:"REDIS_URL"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	FleetFile     string `env:"CONFIG" envDefault:"config/config.yaml"`
	ArchiveDir    string `env:"ARCHIVE_DIR" envDefault:"storage/archive"`
	ParksDir      string `env:"PARKS_DIR" envDefault:"parks"`
	Screenshotter string `env:"SCREENSHOTTER"`
	PublicURL     string `env:"PUBLIC_URL" envDefault:""`
	DefaultMOTD   string `env:"MOTD"`
	VPNAPIKey     string `env:"VPNAPI_KEY"`
	SiteName      string `env:"SITE_NAME" envDefault:"ffa-tycoon.com"`
	Production    bool   `env:"PRODUCTION" envDefault:"false"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) PrivateAddr() string {
	return fmt.Sprintf(":%d", c.PrivatePort)
}

func (c *Config) PluginAddr() string {
	return fmt.Sprintf(":%d", c.PluginPort)
}

func (c *Config) Validate() error {
	if c.Port == c.PrivatePort || c.Port == c.PluginPort || c.PrivatePort == c.PluginPort {
		return fmt.Errorf("PORT, PRIVATE_PORT and PLUGIN_PORT must differ (got %d, %d, %d)",
			c.Port, c.PrivatePort, c.PluginPort)
	}
	if !strings.HasPrefix(c.DatabaseURL, "postgres://") &&
		!strings.HasPrefix(c.DatabaseURL, "postgresql://") &&
		!strings.HasPrefix(c.DatabaseURL, "sqlite://") {
		return fmt.Errorf("DATABASE_URL must use the postgres:// or sqlite:// scheme")
	}
	if c.Screenshotter == "" {
		log.Warn().Msg("SCREENSHOTTER is empty: missing park images will not be rendered")
	}
	if c.RedisURL == "" && c.VPNAPIKey != "" {
		log.Warn().Msg("REDIS_URL is empty: ip lookups will not be cached")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
