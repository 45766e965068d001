// Package config loads ORC's server configuration: a .env file (if present)
// via godotenv, then a typed struct populated from the environment via
// caarlos0/env. The capability/rate-limit fields are the "input constants
// to the core" spec.md §1 and §6.3 describe.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full set of environment-driven settings for cmd/orc-server.
type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	WSOriginAllow string `env:"WS_ORIGIN_ALLOW" envDefault:""`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	MaxMessageBytes        int `env:"MAX_MESSAGE_BYTES" envDefault:"4000"`
	MaxReactionsPerMessage int `env:"MAX_REACTIONS_PER_MESSAGE" envDefault:"64"`
	MaxUploadBytes         int `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	TicketTTLMS     int64 `env:"TICKET_TTL_MS" envDefault:"60000"`
	HeartbeatMS     int64 `env:"HEARTBEAT_MS" envDefault:"30000"`
	OutboundBufSize int   `env:"OUTBOUND_BUF_SIZE" envDefault:"256"`

	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"300"`
	RateLimitBurst     int `env:"RATE_LIMIT_BURST" envDefault:"30"`

	// OwnerLeavePolicy records the §9 Open Question decision: "forbid" (the
	// default, recommended by DESIGN.md) or "auto_promote".
	OwnerLeavePolicy string `env:"OWNER_LEAVE_POLICY" envDefault:"forbid"`
	// TombstoneRetainText records the §9 decision on deleted-message text;
	// default "false" wipes text from the in-memory record on delete.
	TombstoneRetainText bool `env:"TOMBSTONE_RETAIN_TEXT" envDefault:"false"`

	EntityStoreDriver   string `env:"ENTITY_STORE_DRIVER" envDefault:"memory"`
	PostgresDSN         string `env:"POSTGRES_DSN" envDefault:""`
	IdentityStoreDriver string `env:"IDENTITY_STORE_DRIVER" envDefault:"memory"`
	RedisAddr           string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
}

// Load reads an optional .env file and then parses the process environment
// into a Config. A missing .env file is not an error: Load discards
// godotenv.Load's error, as the teacher's dependents (tbourn, progressdb) do.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}

// OriginAllowlist splits WS_ORIGIN_ALLOW into its comma-separated entries.
func (c *Config) OriginAllowlist() []string {
	if c.WSOriginAllow == "" {
		return nil
	}
	parts := strings.Split(c.WSOriginAllow, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) TicketTTL() time.Duration     { return time.Duration(c.TicketTTLMS) * time.Millisecond }
func (c *Config) HeartbeatPeriod() time.Duration { return time.Duration(c.HeartbeatMS) * time.Millisecond }
