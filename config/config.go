package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"` // 0 picks an ephemeral port
	Schema        string        `mapstructure:"schema"`
	Debug         bool          `mapstructure:"debug"`
	AdminKey      string        `mapstructure:"admin_key"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// AdminIPs restricts /admin/*; empty allows any address.
	AdminIPs []string `mapstructure:"admin_ips"`
}

// Flags returns the command-line flag set understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("gamecaps", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("host", "127.0.0.1", "listen host")
	fs.Int("port", 0, "listen port (0 = ephemeral)")
	fs.String("schema", "game_world", "bootstrap service: game_world | chat | inventory | matchmaking")
	fs.Bool("debug", false, "development logging")
	return fs
}

// flag name → config key
var flagKeys = map[string]string{
	"host":   "server.host",
	"port":   "server.port",
	"schema": "server.schema",
	"debug":  "server.debug",
}

// Load builds the config from defaults, an optional YAML file, GAMECAPS_*
// environment variables and flags, later sources winning. path may be empty;
// a flag set carrying --config overrides it.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GAMECAPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 0)
	v.SetDefault("server.schema", "game_world")
	v.SetDefault("server.debug", false)
	v.SetDefault("server.stats_interval", "30s")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", ":memory:")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
		if f := flags.Lookup("config"); f != nil && f.Changed {
			path = f.Value.String()
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
