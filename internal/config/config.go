package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log     LoggingConfig  `yaml:"log"`
	Cache   CacheConfig    `yaml:"cache"`
	State   StateConfig    `yaml:"state"`
	REST    RESTConfig     `yaml:"rest"`
	WS      WSConfig       `yaml:"ws"`
	Binance BinanceConfig  `yaml:"binance"`
	Refresh RefreshConfig  `yaml:"refresh"`
	Series  []SeriesConfig `yaml:"series"`
	HTTP    HTTPConfig     `yaml:"http"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CacheConfig struct {
	MaxCandles int           `yaml:"max_candles"`
	MaxAge     time.Duration `yaml:"max_age"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type StateConfig struct {
	Driver     string         `yaml:"driver"`
	SQLitePath string         `yaml:"sqlite_path"`
	Postgres   PostgresConfig `yaml:"postgres"`
	Redis      RedisConfig    `yaml:"redis"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	Table           string        `yaml:"table"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type BinanceConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type RefreshConfig struct {
	Schedule   string        `yaml:"schedule"`
	FetchLimit int           `yaml:"fetch_limit"`
	Timeout    time.Duration `yaml:"timeout"`
}

const (
	SourceHyperliquid = "hyperliquid"
	SourceBinance     = "binance"
)

type SeriesConfig struct {
	Symbol   string `yaml:"symbol"`
	Interval string `yaml:"interval"`
	Source   string `yaml:"source"`
}

type HTTPConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
}

func (c HTTPConfig) EnabledValue() bool {
	return c.Enabled == nil || *c.Enabled
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func (c MetricsConfig) EnabledValue() bool {
	return c.Enabled == nil || *c.Enabled
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Cache.MaxCandles == 0 {
		cfg.Cache.MaxCandles = 500
	}
	if cfg.Cache.MaxAge == 0 {
		cfg.Cache.MaxAge = 60 * time.Second
	}
	if cfg.State.Driver == "" {
		cfg.State.Driver = DriverSQLite
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/seriescache.db"
	}
	if cfg.State.Postgres.Table == "" {
		cfg.State.Postgres.Table = "series_entries"
	}
	if cfg.State.Redis.Prefix == "" {
		cfg.State.Redis.Prefix = "seriescache:"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://api.hyperliquid.xyz"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = deriveWSURL(cfg.REST.BaseURL)
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 30 * time.Second
	}
	if cfg.Binance.Timeout == 0 {
		cfg.Binance.Timeout = 10 * time.Second
	}
	if cfg.Refresh.Schedule == "" {
		cfg.Refresh.Schedule = "@every 15s"
	}
	if cfg.Refresh.FetchLimit == 0 {
		cfg.Refresh.FetchLimit = cfg.Cache.MaxCandles
	}
	if cfg.Refresh.Timeout == 0 {
		cfg.Refresh.Timeout = 20 * time.Second
	}
	for i := range cfg.Series {
		cfg.Series[i].Symbol = strings.TrimSpace(cfg.Series[i].Symbol)
		cfg.Series[i].Interval = strings.TrimSpace(cfg.Series[i].Interval)
		if cfg.Series[i].Source == "" {
			cfg.Series[i].Source = SourceHyperliquid
		}
	}
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = "127.0.0.1:8088"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func deriveWSURL(restURL string) string {
	base := strings.TrimRight(restURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return "wss://api.hyperliquid.xyz/ws"
	}
}

func validate(cfg *Config) error {
	if cfg.Cache.MaxCandles < 0 {
		return errors.New("cache.max_candles must be > 0")
	}
	if cfg.Cache.MaxAge < 0 {
		return errors.New("cache.max_age must be > 0")
	}
	switch cfg.State.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(cfg.State.Postgres.DSN) == "" {
			return errors.New("state.postgres.dsn is required for the postgres driver")
		}
	case DriverRedis:
		if strings.TrimSpace(cfg.State.Redis.Addr) == "" {
			return errors.New("state.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown state.driver %q", cfg.State.Driver)
	}
	if cfg.Refresh.FetchLimit < 0 {
		return errors.New("refresh.fetch_limit must be > 0")
	}
	seen := make(map[string]struct{}, len(cfg.Series))
	for i, s := range cfg.Series {
		if s.Symbol == "" || s.Interval == "" {
			return fmt.Errorf("series[%d]: symbol and interval are required", i)
		}
		if strings.Contains(s.Interval, "_") {
			return fmt.Errorf("series[%d]: interval %q must not contain '_'", i, s.Interval)
		}
		if s.Source != SourceHyperliquid && s.Source != SourceBinance {
			return fmt.Errorf("series[%d]: unknown source %q", i, s.Source)
		}
		key := s.Symbol + "_" + s.Interval
		if _, dup := seen[key]; dup {
			return fmt.Errorf("series[%d]: duplicate series %s", i, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
