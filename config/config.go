package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Quest    QuestConfig    `mapstructure:"quest"`
	Curse    CurseConfig    `mapstructure:"curse"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port     int      `mapstructure:"port"`
	Debug    bool     `mapstructure:"debug"`
	AdminKey string   `mapstructure:"admin_key"`
	AdminIPs []string `mapstructure:"admin_ips"` // empty allows any IP
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
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket origins that are accepted.
	// Empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type QuestConfig struct {
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	MinMinutes       int           `mapstructure:"min_minutes"`
	MaxMinutes       int           `mapstructure:"max_minutes"`
	RecentLogSize    int           `mapstructure:"recent_log_size"`
	MaxLate          time.Duration `mapstructure:"max_late"`
	FutureStartGrace time.Duration `mapstructure:"future_start_grace"`
	FutureEndGrace   time.Duration `mapstructure:"future_end_grace"`
	Timezone         string        `mapstructure:"timezone"` // IANA name or "Local"
}

// Location resolves Timezone, falling back to time.Local.
func (q QuestConfig) Location() *time.Location {
	if q.Timezone == "" || q.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

type CurseConfig struct {
	Grace            time.Duration `mapstructure:"grace"`
	Cap              time.Duration `mapstructure:"cap"`
	ResetsAtMidnight bool          `mapstructure:"resets_at_midnight"`
	GoldMultiplier   float64       `mapstructure:"gold_multiplier"`
	XPMultiplier     float64       `mapstructure:"xp_multiplier"`
}

type NotifyConfig struct {
	Driver  string `mapstructure:"driver"` // pubsub | amqp
	AMQPURL string `mapstructure:"amqp_url"`
	Queue   string `mapstructure:"queue"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with every default applied and no file read.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/focusquest.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("quest.tick_interval", "1s")
	v.SetDefault("quest.min_minutes", 1)
	v.SetDefault("quest.max_minutes", 180)
	v.SetDefault("quest.recent_log_size", 20)
	v.SetDefault("quest.max_late", "10m")
	v.SetDefault("quest.future_start_grace", "5s")
	v.SetDefault("quest.future_end_grace", "5s")
	v.SetDefault("quest.timezone", "Local")
	v.SetDefault("curse.grace", "30s")
	v.SetDefault("curse.cap", "30m")
	v.SetDefault("curse.resets_at_midnight", true)
	v.SetDefault("curse.gold_multiplier", 0.5)
	v.SetDefault("curse.xp_multiplier", 0.5)
	v.SetDefault("notify.driver", "pubsub")
	v.SetDefault("notify.queue", "focusquest.notifications")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
