package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	PathEnv = "FITSPO_CONFIG"

	storageModeEnv = "STORAGE_MODE"
	mongoURLEnv    = "MONGO_URL"
	mongoDBEnv     = "MONGO_DB_NAME"
	redisURLEnv    = "REDIS_URL"
	sqlitePathEnv  = "SQLITE_PATH"
	httpAddrEnv    = "HTTP_ADDR"
	timezoneEnv    = "FEED_TIMEZONE"
	logLevelEnv    = "LOG_LEVEL"
	logFormatEnv   = "LOG_FORMAT"
)

const (
	ModeInMemory = "inmemory"
	ModeMongo    = "mongo"
	ModeSQLite   = "sqlite"
	ModeCached   = "cached"
)

type Config struct {
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Feed    FeedConfig    `yaml:"feed"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig picks the post store. "cached" is Mongo behind a Redis post
// cache, with rank snapshots shared through the same Redis.
type StorageConfig struct {
	Mode       string `yaml:"mode"`
	MongoURL   string `yaml:"mongoUrl"`
	MongoDB    string `yaml:"mongoDb"`
	RedisURL   string `yaml:"redisUrl"`
	SQLitePath string `yaml:"sqlitePath"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type FeedConfig struct {
	// Timezone decides where a calendar day starts for the hot feed and the
	// rank cache.
	Timezone       string         `yaml:"timezone"`
	RefreshCron    string         `yaml:"refreshCron"`
	RankLimit      int            `yaml:"rankLimit"`
	RankPageSize   int            `yaml:"rankPageSize"`
	MaxBatches     int            `yaml:"maxBatches"`
	FetchTimeout   time.Duration  `yaml:"fetchTimeout"`
	RefreshTimeout time.Duration  `yaml:"refreshTimeout"`
	location       *time.Location `yaml:"-"`
}

// Location is the resolved Timezone. It is only set on configs returned by
// Load.
func (f FeedConfig) Location() *time.Location {
	if f.location != nil {
		return f.location
	}
	return time.UTC
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Storage: StorageConfig{
			Mode:       ModeInMemory,
			MongoDB:    "fitspo",
			SQLitePath: "data/fitspo.db",
		},
		HTTP: HTTPConfig{Addr: "0.0.0.0:8080"},
		Feed: FeedConfig{
			Timezone:       "UTC",
			RefreshCron:    "1 0 * * *",
			RankLimit:      100,
			RankPageSize:   100,
			MaxBatches:     10,
			FetchTimeout:   10 * time.Second,
			RefreshTimeout: time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path, if any, over the defaults, then applies
// environment overrides and validates the result. An empty path falls back
// to $FITSPO_CONFIG; no file at all is fine.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env string
		dst *string
	}{
		{storageModeEnv, &c.Storage.Mode},
		{mongoURLEnv, &c.Storage.MongoURL},
		{mongoDBEnv, &c.Storage.MongoDB},
		{redisURLEnv, &c.Storage.RedisURL},
		{sqlitePathEnv, &c.Storage.SQLitePath},
		{httpAddrEnv, &c.HTTP.Addr},
		{timezoneEnv, &c.Feed.Timezone},
		{logLevelEnv, &c.Log.Level},
		{logFormatEnv, &c.Log.Format},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

func (c *Config) validate() error {
	var errs []error

	switch c.Storage.Mode {
	case ModeInMemory:
	case ModeSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlitePath is required in sqlite mode"))
		}
	case ModeMongo, ModeCached:
		if c.Storage.MongoURL == "" {
			errs = append(errs, fmt.Errorf("storage.mongoUrl is required in %s mode", c.Storage.Mode))
		}
		if c.Storage.Mode == ModeCached && c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("storage.redisUrl is required in cached mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage mode %q", c.Storage.Mode))
	}

	loc, err := time.LoadLocation(c.Feed.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("feed.timezone: %w", err))
	}
	c.Feed.location = loc

	if c.Feed.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.Feed.RefreshCron); err != nil {
			errs = append(errs, fmt.Errorf("feed.refreshCron: %w", err))
		}
	}
	if c.Feed.RankLimit <= 0 || c.Feed.RankPageSize <= 0 || c.Feed.MaxBatches <= 0 {
		errs = append(errs, errors.New("feed.rankLimit, feed.rankPageSize and feed.maxBatches must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
