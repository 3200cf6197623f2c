// Package config loads search profiles and the ambient settings of the
// query layer from YAML via Viper. A profile names either one node or a
// weighted pool of replicas.
package config

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/koustreak/sphinxql/internal/database"
	"github.com/koustreak/sphinxql/internal/errs"
	"github.com/koustreak/sphinxql/internal/logger"
)

const (
	envPrefix   = "SPHINXQL"
	defaultPort = 9306
)

// MaxWeight is the largest node weight a profile may declare.
const MaxWeight = math.MaxInt32

// RedisCfg points the health cache at a shared Redis.
type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresCfg points the health cache at a shared Postgres table.
type PostgresCfg struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// HealthCacheCfg selects and tunes the live-node cache backend.
type HealthCacheCfg struct {
	Backend   string        `mapstructure:"backend"` // memory | redis | postgres
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Redis     RedisCfg      `mapstructure:"redis"`
	Postgres  PostgresCfg   `mapstructure:"postgres"`
}

// NodeCfg is the YAML shape of one replica. Weight is a pointer so an
// omitted weight can be told apart from an explicit 0.
type NodeCfg struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Weight *int   `mapstructure:"weight"`
}

// ProfileCfg is the YAML shape of a profile: host/port for a single node,
// or a nodes list for a balanced pool.
type ProfileCfg struct {
	Active *bool     `mapstructure:"active"`
	Host   string    `mapstructure:"host"`
	Port   int       `mapstructure:"port"`
	Nodes  []NodeCfg `mapstructure:"nodes"`
}

// Config is the top-level configuration document.
type Config struct {
	Log         logger.Config         `mapstructure:"log"`
	Transport   database.Config       `mapstructure:"transport"`
	HealthCache HealthCacheCfg        `mapstructure:"health_cache"`
	Debug       bool                  `mapstructure:"debug"`
	RawProfiles map[string]ProfileCfg `mapstructure:"profiles"`

	profiles map[string]Profile
}

// Default returns a config with every ambient default and no profiles.
func Default() *Config {
	return &Config{
		Log: logger.Config{
			Level:      "info",
			Format:     "json",
			TimeFormat: "rfc3339",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Transport: *database.DefaultConfig(),
		HealthCache: HealthCacheCfg{
			Backend:   "memory",
			TTL:       time.Minute,
			KeyPrefix: "sphinxql:health:",
			Postgres:  PostgresCfg{Table: "sphinxql_health"},
		},
		profiles: map[string]Profile{},
	}
}

// Profile implements Provider.
func (c *Config) Profile(name string) (Profile, error) {
	p, ok := c.profiles[strings.ToLower(name)]
	if !ok {
		return Profile{}, errs.Newf(errs.ErrKindConfig, "profile %q not found", name)
	}
	return p, nil
}

// ProfileNames lists the configured profile names.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}
	return names
}

// Load reads and parses the YAML file at path.
// It returns the parsed Config and the Viper instance (needed for Watch).
func Load(path string) (*Config, *viper.Viper, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, errs.Wrap(errs.ErrKindConfig, fmt.Sprintf("reading %q", path), err)
	}
	cfg, err := unmarshal(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Parse reads a YAML document from r.
func Parse(r io.Reader) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(r); err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "reading config document", err)
	}
	return unmarshal(v)
}

// Watch registers onChange to run whenever the config file is saved.
// Invalid reloads are logged and skipped; the previous config stays active.
func Watch(v *viper.Viper, log *logger.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshal(v)
		if err != nil {
			log.ErrorWith("config hot-reload failed", err, nil)
			return
		}
		log.InfoWith("config hot-reloaded", map[string]interface{}{
			"profiles": len(cfg.profiles),
		})
		onChange(cfg)
	})
	v.WatchConfig()
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.time_format", d.Log.TimeFormat)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("transport.user", "")
	v.SetDefault("transport.password", "")
	v.SetDefault("transport.connect_timeout", d.Transport.ConnectTimeout)
	v.SetDefault("transport.read_timeout", d.Transport.ReadTimeout)
	v.SetDefault("transport.write_timeout", d.Transport.WriteTimeout)
	v.SetDefault("health_cache.backend", d.HealthCache.Backend)
	v.SetDefault("health_cache.ttl", d.HealthCache.TTL)
	v.SetDefault("health_cache.key_prefix", d.HealthCache.KeyPrefix)
	v.SetDefault("health_cache.redis.addr", "")
	v.SetDefault("health_cache.postgres.dsn", "")
	v.SetDefault("health_cache.postgres.table", d.HealthCache.Postgres.Table)
	v.SetDefault("debug", false)

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "parsing config", err)
	}

	switch cfg.HealthCache.Backend {
	case "memory", "redis", "postgres":
	default:
		return nil, errs.Newf(errs.ErrKindConfig, "unknown health_cache.backend %q", cfg.HealthCache.Backend)
	}

	if len(cfg.RawProfiles) == 0 {
		return nil, errs.New(errs.ErrKindConfig, "at least one profile must be defined")
	}

	cfg.profiles = make(map[string]Profile, len(cfg.RawProfiles))
	for name, raw := range cfg.RawProfiles {
		p, err := buildProfile(name, raw)
		if err != nil {
			return nil, err
		}
		cfg.profiles[strings.ToLower(name)] = p
	}
	return cfg, nil
}
