package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const appName = "ddtscan"

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Security SecurityConfig `mapstructure:"security" yaml:"security"`
	Scanner  ScannerConfig  `mapstructure:"scanner" yaml:"scanner"`
	Filter   FilterConfig   `mapstructure:"filter" yaml:"filter"`
	Stamp    StampConfig    `mapstructure:"stamp" yaml:"stamp"`
	Archive  ArchiveConfig  `mapstructure:"archive" yaml:"archive"`
	Batch    BatchConfig    `mapstructure:"batch" yaml:"batch"`
	Cron     CronConfig     `mapstructure:"cron" yaml:"cron"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Address      string `mapstructure:"address" yaml:"address"`
	Port         int    `mapstructure:"port" yaml:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" yaml:"write_timeout"`
	BodyLimitMB  int    `mapstructure:"body_limit_mb" yaml:"body_limit_mb"`
}

type StorageConfig struct {
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir"`
	Driver      string `mapstructure:"driver" yaml:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	BadgerPath  string `mapstructure:"badger_path" yaml:"badger_path"`
}

type SecurityConfig struct {
	JWTSecret    string   `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	AuthRequired bool     `mapstructure:"auth_required" yaml:"auth_required"`
	AllowOrigins []string `mapstructure:"allow_origins" yaml:"allow_origins"`
}

// ScannerConfig bounds capture sessions and the correction worker pool.
type ScannerConfig struct {
	MaxDimension      int `mapstructure:"max_dimension" yaml:"max_dimension"`
	MaxMegapixels     int `mapstructure:"max_megapixels" yaml:"max_megapixels"`
	MaxPages          int `mapstructure:"max_pages" yaml:"max_pages"`
	MaxSessionMB      int `mapstructure:"max_session_mb" yaml:"max_session_mb"`
	MaxSessions       int `mapstructure:"max_sessions" yaml:"max_sessions"`
	Workers           int `mapstructure:"workers" yaml:"workers"`
	SessionTTLMinutes int `mapstructure:"session_ttl_minutes" yaml:"session_ttl_minutes"`
}

type FilterConfig struct {
	Enabled          bool    `mapstructure:"enabled" yaml:"enabled"`
	ContrastGain     float64 `mapstructure:"contrast_gain" yaml:"contrast_gain"`
	BrightnessOffset float64 `mapstructure:"brightness_offset" yaml:"brightness_offset"`
	BlurSigma        float64 `mapstructure:"blur_sigma" yaml:"blur_sigma"`
	ThresholdBlock   int     `mapstructure:"threshold_block" yaml:"threshold_block"`
	ThresholdOffset  int     `mapstructure:"threshold_offset" yaml:"threshold_offset"`
	CloseKernel      int     `mapstructure:"close_kernel" yaml:"close_kernel"`
}

type StampConfig struct {
	SealLabel    string `mapstructure:"seal_label" yaml:"seal_label"`
	CarrierLabel string `mapstructure:"carrier_label" yaml:"carrier_label"`
	PageFormat   string `mapstructure:"page_format" yaml:"page_format"`
	JPEGQuality  int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
}

type ArchiveConfig struct {
	Backend string        `mapstructure:"backend" yaml:"backend"`
	Dir     string        `mapstructure:"dir" yaml:"dir"`
	S3      S3Config      `mapstructure:"s3" yaml:"s3"`
	Breaker BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
}

type S3Config struct {
	Bucket       string `mapstructure:"bucket" yaml:"bucket"`
	Region       string `mapstructure:"region" yaml:"region"`
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey    string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey    string `mapstructure:"secret_key" yaml:"secret_key"`
	Prefix       string `mapstructure:"prefix" yaml:"prefix"`
	UsePathStyle bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
}

type BreakerConfig struct {
	MaxFailures        int `mapstructure:"max_failures" yaml:"max_failures"`
	OpenTimeoutSeconds int `mapstructure:"open_timeout_seconds" yaml:"open_timeout_seconds"`
}

type BatchConfig struct {
	Concurrency    int     `mapstructure:"concurrency" yaml:"concurrency"`
	RatePerSecond  float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst          int     `mapstructure:"burst" yaml:"burst"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	RetryCount     int     `mapstructure:"retry_count" yaml:"retry_count"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	SweepSchedule string `mapstructure:"sweep_schedule" yaml:"sweep_schedule"`
	GCSchedule    string `mapstructure:"gc_schedule" yaml:"gc_schedule"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, appName+".db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))
	v.SetDefault("archive.dir", filepath.Join(dataDir, "archive"))

	if configPath == "" {
		configPath = DefaultConfigPath(dataDir)
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("DDTSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in configuration rooted at dataDir.
func Default(dataDir string) *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("storage.data_dir", dataDir)
	v.Set("storage.sqlite_path", filepath.Join(dataDir, appName+".db"))
	v.Set("storage.badger_path", filepath.Join(dataDir, "badger"))
	v.Set("archive.dir", filepath.Join(dataDir, "archive"))

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// WriteDefault writes the built-in configuration as YAML, refusing to
// overwrite an existing file.
func WriteDefault(path, dataDir string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	data, err := yaml.Marshal(Default(dataDir))
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// Watch reloads the config file on change and hands the fresh config to
// onChange. Invalid edits are reported through onError and otherwise ignored.
func Watch(configPath, dataDir string, onChange func(*Config), onError func(error)) error {
	if configPath == "" {
		configPath = DefaultConfigPath(dataDir)
	}
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(configPath, dataDir)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}

func DefaultConfigPath(dataDir string) string {
	return filepath.Join(dataDir, appName+".yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.body_limit_mb", 32)

	v.SetDefault("storage.driver", "sqlite")

	v.SetDefault("security.auth_required", false)
	v.SetDefault("security.allow_origins", []string{"*"})

	v.SetDefault("scanner.max_dimension", 32768)
	v.SetDefault("scanner.max_megapixels", 64)
	v.SetDefault("scanner.max_pages", 40)
	v.SetDefault("scanner.max_session_mb", 256)
	v.SetDefault("scanner.max_sessions", 32)
	v.SetDefault("scanner.workers", 0)
	v.SetDefault("scanner.session_ttl_minutes", 120)

	v.SetDefault("filter.enabled", true)
	v.SetDefault("filter.contrast_gain", 1.1)
	v.SetDefault("filter.brightness_offset", 5.0)
	v.SetDefault("filter.blur_sigma", 0.6)
	v.SetDefault("filter.threshold_block", 31)
	v.SetDefault("filter.threshold_offset", 10)
	v.SetDefault("filter.close_kernel", 2)

	v.SetDefault("stamp.seal_label", "Sigillo")
	v.SetDefault("stamp.carrier_label", "Trasportatore")
	v.SetDefault("stamp.page_format", "png")
	v.SetDefault("stamp.jpeg_quality", 95)

	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.s3.region", "eu-south-1")
	v.SetDefault("archive.s3.prefix", "ddt/")
	v.SetDefault("archive.breaker.max_failures", 5)
	v.SetDefault("archive.breaker.open_timeout_seconds", 30)

	v.SetDefault("batch.concurrency", 3)
	v.SetDefault("batch.rate_per_second", 5.0)
	v.SetDefault("batch.burst", 3)
	v.SetDefault("batch.timeout_seconds", 60)
	v.SetDefault("batch.retry_count", 1)

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.sweep_schedule", "@every 5m")
	v.SetDefault("cron.gc_schedule", "@every 30m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
}

// DefaultDataDir is $XDG_DATA_HOME/ddtscan or ~/.local/share/ddtscan.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", appName)
}

func loadEnvOverrides(cfg *Config) {
	cfg.Server.Address = GetEnvDefault("DDTSCAN_SERVER_ADDRESS", cfg.Server.Address)
	if port := os.Getenv("DDTSCAN_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if secret := ResolveEnvWithAliases("DDTSCAN_SECURITY_JWT_SECRET"); secret != "" {
		cfg.Security.JWTSecret = secret
	}
	if dsn := ResolveEnvWithAliases("DDTSCAN_STORAGE_POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if key := ResolveEnvWithAliases("DDTSCAN_ARCHIVE_S3_ACCESS_KEY"); key != "" {
		cfg.Archive.S3.AccessKey = key
	}
	if secret := ResolveEnvWithAliases("DDTSCAN_ARCHIVE_S3_SECRET_KEY"); secret != "" {
		cfg.Archive.S3.SecretKey = secret
	}
	if region := ResolveEnvWithAliases("DDTSCAN_ARCHIVE_S3_REGION"); region != "" {
		cfg.Archive.S3.Region = region
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}

	switch cfg.Storage.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", cfg.Storage.Driver)
	}

	if cfg.Security.AuthRequired && cfg.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required when auth is enabled")
	}

	if cfg.Filter.ThresholdBlock < 3 || cfg.Filter.ThresholdBlock%2 == 0 {
		return fmt.Errorf("filter.threshold_block must be an odd number >= 3, got %d", cfg.Filter.ThresholdBlock)
	}
	if cfg.Filter.CloseKernel < 1 {
		return fmt.Errorf("filter.close_kernel must be >= 1")
	}

	switch cfg.Stamp.PageFormat {
	case "png", "jpeg":
	default:
		return fmt.Errorf("stamp.page_format must be png or jpeg, got %q", cfg.Stamp.PageFormat)
	}
	if cfg.Stamp.JPEGQuality < 1 || cfg.Stamp.JPEGQuality > 100 {
		return fmt.Errorf("stamp.jpeg_quality must be within 1..100")
	}

	switch cfg.Archive.Backend {
	case "none", "local":
	case "s3":
		if cfg.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", cfg.Archive.Backend)
	}

	if cfg.Scanner.MaxPages < 1 || cfg.Scanner.MaxSessionMB < 1 {
		return fmt.Errorf("scanner.max_pages and scanner.max_session_mb must be positive")
	}

	if cfg.Batch.Concurrency < 1 {
		cfg.Batch.Concurrency = 1
	}

	return nil
}
