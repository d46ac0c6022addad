package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/damoang/angple-workflow/pkg/logger"
)

// Config is the full runtime configuration, loaded from a YAML file with
// environment variable overrides on top.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type AppConfig struct {
	Env string `yaml:"env"`
}

type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Name            string `yaml:"name"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// GetDSN builds the MySQL DSN
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type StorageConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	CDNURL          string `yaml:"cdn_url"`
	BasePath        string `yaml:"base_path"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

type SchedulerConfig struct {
	Interval    Duration `yaml:"interval"`     // trigger sweep interval
	LockTTL     Duration `yaml:"lock_ttl"`     // per-schedule lock expiry
	BatchSize   int      `yaml:"batch_size"`   // max due schedules per sweep
	MetricsAddr string   `yaml:"metrics_addr"` // prometheus listen address
}

// Duration parses YAML values like "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads configuration from path and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		App: AppConfig{Env: "local"},
		Database: DatabaseConfig{
			Host: "localhost", Port: 3306, User: "root", Name: "angple_workflow",
			MaxIdleConns: 10, MaxOpenConns: 100, ConnMaxLifetime: 3600,
		},
		Redis:     RedisConfig{Host: "localhost", Port: 6379, PoolSize: 10},
		Scheduler: SchedulerConfig{Interval: Duration(time.Minute), LockTTL: Duration(30 * time.Second), BatchSize: 100, MetricsAddr: ":9091"},
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.App.Env, "APP_ENV")

	overrideString(&cfg.Database.Host, "DB_HOST")
	overrideInt(&cfg.Database.Port, "DB_PORT")
	overrideString(&cfg.Database.User, "DB_USER")
	overrideString(&cfg.Database.Password, "DB_PASSWORD")
	overrideString(&cfg.Database.Name, "DB_NAME")

	overrideString(&cfg.Redis.Host, "REDIS_HOST")
	overrideInt(&cfg.Redis.Port, "REDIS_PORT")
	overrideString(&cfg.Redis.Password, "REDIS_PASSWORD")
	overrideInt(&cfg.Redis.DB, "REDIS_DB")

	overrideString(&cfg.Storage.Endpoint, "STORAGE_ENDPOINT")
	overrideString(&cfg.Storage.AccessKeyID, "STORAGE_ACCESS_KEY_ID")
	overrideString(&cfg.Storage.SecretAccessKey, "STORAGE_SECRET_ACCESS_KEY")
	overrideString(&cfg.Storage.Bucket, "STORAGE_BUCKET")

	overrideDuration(&cfg.Scheduler.Interval, "SCHEDULER_INTERVAL")
	overrideString(&cfg.Scheduler.MetricsAddr, "SCHEDULER_METRICS_ADDR")
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// IsDevelopment reports whether the app runs in a dev-like environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "" || c.App.Env == "local" || c.App.Env == "development"
}

// LogResolved logs the effective configuration with secrets masked.
func LogResolved(cfg *Config) {
	logger.Info("config: env=%s db=%s@%s:%d/%s redis=%s:%d storage_enabled=%v sweep=%s",
		cfg.App.Env,
		cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name,
		cfg.Redis.Host, cfg.Redis.Port,
		cfg.Storage.Enabled,
		cfg.Scheduler.Interval.Std(),
	)
}
