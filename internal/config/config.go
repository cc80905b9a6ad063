package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/stagetrack/stagetrack/internal/core/domain"
)

// EnvPrefix is the prefix for environment overrides. Nested keys are
// separated by a double underscore: STAGETRACK_STORAGE__REDIS__ADDR.
const EnvPrefix = "STAGETRACK_"

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Storage   StorageConfig   `koanf:"storage"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Seed      SeedConfig      `koanf:"seed"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

type StorageConfig struct {
	Type     string         `koanf:"type"` // memory, sqlite, postgres, redis
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres
	DSN    string `koanf:"dsn"`    // Data source name / connection string
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

type PipelineConfig struct {
	Stages      []StageConfig `koanf:"stages"`
	MaxParallel int           `koanf:"max_parallel"`
	// AllowOtherTypes accepts stage types beyond COMMIT, BUILD and DEPLOY.
	// Such stages resolve through the owner mapping but are never reported
	// as unmapped.
	AllowOtherTypes bool `koanf:"allow_other_types"`
}

type StageConfig struct {
	Name string `koanf:"name"`
	Type string `koanf:"type"` // COMMIT, BUILD, DEPLOY
}

type SeedConfig struct {
	Path  string `koanf:"path"`  // Optional fixture loaded at startup
	Watch bool   `koanf:"watch"` // Reapply the fixture when it changes
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// DefaultStages is the stage order used when none is configured.
var DefaultStages = []StageConfig{
	{Name: "COMMIT", Type: "COMMIT"},
	{Name: "BUILD", Type: "BUILD"},
	{Name: "DEV", Type: "DEPLOY"},
	{Name: "QA", Type: "DEPLOY"},
	{Name: "INT", Type: "DEPLOY"},
	{Name: "PERF", Type: "DEPLOY"},
	{Name: "PROD", Type: "DEPLOY"},
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration from path (DefaultPath when empty), then applies
// environment overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	k := koanf.New(".")

	// Load from config file
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// Load environment variables (overrides file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Pipeline.Stages) == 0 {
		cfg.Pipeline.Stages = append([]StageConfig(nil), DefaultStages...)
	}

	// Substitute environment variables in secrets
	cfg.Storage.Database.DSN = substituteEnvVars(cfg.Storage.Database.DSN)
	cfg.Storage.Redis.Password = substituteEnvVars(cfg.Storage.Redis.Password)

	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":            8080,
		"server.request_timeout": "30s",
		"log.level":              "info",
		"storage.type":           StorageMemory,
		"storage.redis.prefix":   "stagetrack",
		"pipeline.max_parallel":  4,
		"telemetry.service_name": "stagetrack",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

// substituteEnvVars replaces ${VAR} with the value of the environment variable VAR
func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Pipeline.MaxParallel < 1 {
		return fmt.Errorf("pipeline.max_parallel must be at least 1, got %d", c.Pipeline.MaxParallel)
	}
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("pipeline.stages: %w", err)
	}
	if !c.Pipeline.AllowOtherTypes {
		for _, s := range c.Pipeline.Stages {
			if t := domain.ParseStageType(s.Type); !t.Known() {
				return fmt.Errorf("pipeline.stages: stage %q has unknown type %q (set pipeline.allow_other_types to accept it)", s.Name, s.Type)
			}
		}
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageSQLite, StoragePostgres:
		if c.Storage.Database.DSN == "" {
			return fmt.Errorf("storage.database.dsn is required for %s", c.Storage.Type)
		}
	case StorageRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for redis")
		}
	default:
		return fmt.Errorf("unsupported storage.type %q", c.Storage.Type)
	}
	return nil
}

// Registry builds the stage registry from the configured stage order.
func (c *Config) Registry() (*domain.StageRegistry, error) {
	stages := make([]domain.Stage, len(c.Pipeline.Stages))
	for i, s := range c.Pipeline.Stages {
		stages[i] = domain.Stage{Name: s.Name, Type: domain.ParseStageType(s.Type)}
	}
	return domain.NewStageRegistry(stages)
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
