// Package config loads the server and worker settings from a TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nadmax/bordo/internal/ai"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	AI       AIConfig       `toml:"ai"`
	Auth     AuthConfig     `toml:"auth"`
	Timer    TimerConfig    `toml:"timer"`
	Worker   WorkerConfig   `toml:"worker"`
	Email    EmailConfig    `toml:"email"`
}

// Change feed backends. FeedLocal keeps events inside the server process, so
// events published by the worker are not delivered.
const (
	FeedRedis = "redis"
	FeedLocal = "local"
)

type ServerConfig struct {
	Port            int      `toml:"port"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	MetricsInterval Duration `toml:"metrics_interval"`
	ChangeFeed      string   `toml:"change_feed"`
}

type PostgresConfig struct {
	DSN             string   `toml:"dsn"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr string `toml:"addr"`
}

type AIConfig struct {
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	Model       string   `toml:"model"`
	Temperature float64  `toml:"temperature"`
	Timeout     Duration `toml:"timeout"`
}

type AuthConfig struct {
	SessionTTL Duration `toml:"session_ttl"`
}

type TimerConfig struct {
	TickInterval Duration `toml:"tick_interval"`
	OrphanAfter  Duration `toml:"orphan_after"`
}

type WorkerConfig struct {
	ID            string   `toml:"id"`
	PollInterval  Duration `toml:"poll_interval"`
	SweepSchedule string   `toml:"sweep_schedule"`
}

type EmailConfig struct {
	APIKey      string `toml:"api_key"`
	FromName    string `toml:"from_name"`
	FromAddress string `toml:"from_address"`
}

// Duration reads Go duration strings such as "15m" or "12h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}

	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: Duration{10 * time.Second},
			MetricsInterval: Duration{10 * time.Second},
			ChangeFeed:      FeedRedis,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration{5 * time.Minute},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		AI: AIConfig{
			BaseURL:     ai.DefaultBaseURL,
			Model:       ai.DefaultModel,
			Temperature: ai.DefaultTemperature,
			Timeout:     Duration{ai.DefaultTimeout},
		},
		Auth: AuthConfig{
			SessionTTL: Duration{7 * 24 * time.Hour},
		},
		Timer: TimerConfig{
			TickInterval: Duration{time.Second},
			OrphanAfter:  Duration{12 * time.Hour},
		},
		Worker: WorkerConfig{
			PollInterval:  Duration{time.Second},
			SweepSchedule: "@every 15m",
		},
		Email: EmailConfig{
			FromName: "Comando de Bordo",
		},
	}
}

// Load reads the TOML file at path over the defaults, then applies environment
// overrides. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err == nil {
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		c.Server.Port = p
	}

	setString(&c.Server.ChangeFeed, "CHANGE_FEED")
	setString(&c.Postgres.DSN, "POSTGRES_DSN")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.AI.APIKey, "LOVABLE_API_KEY")
	setString(&c.Worker.ID, "WORKER_ID")
	setString(&c.Email.APIKey, "EMAIL_API_KEY")
	setString(&c.Email.FromName, "FROM_NAME")
	setString(&c.Email.FromAddress, "FROM_ADDRESS")

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// Validate reports settings without which the processes cannot start.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}
	if c.Server.ChangeFeed != FeedRedis && c.Server.ChangeFeed != FeedLocal {
		return fmt.Errorf("unknown change_feed %q", c.Server.ChangeFeed)
	}

	return nil
}
