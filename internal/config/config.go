// Package config loads odcat settings from defaults, an optional config
// file, a .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/opendatath/catalog/internal/catalog/migrate"
)

// EnvPrefix prefixes every environment override, e.g. ODCAT_STORE_PATH.
const EnvPrefix = "ODCAT"

// APIKeyEnv is the conventional variable holding the data.go.th API key.
const APIKeyEnv = "DATA_GO_TH_API_KEY"

// Keys
const (
	KeyStorePath         = "store.path"
	KeySnapshotDatasets  = "snapshot.datasets"
	KeySnapshotResources = "snapshot.resources"
	KeySnapshotRankings  = "snapshot.rankings"
	KeyCatalogBaseURL    = "catalog.base_url"
	KeyCatalogAPIKey     = "catalog.api_key"
	KeyCatalogTimeout    = "catalog.timeout"
	KeyRankingCacheSize  = "ranking.cache_size"
	KeyRefreshWorkers    = "refresh.workers"
	KeyDashboardHost     = "dashboard.host"
	KeyDashboardPort     = "dashboard.port"
	KeyWatchDebounce     = "watch.debounce"
	KeyWatchRescan       = "watch.rescan"
	KeyLogFile           = "log.file"
	KeyLogMaxSizeMB      = "log.max_size_mb"
	KeyLogMaxBackups     = "log.max_backups"
	KeyLogMaxAgeDays     = "log.max_age_days"
)

// Config is the resolved configuration.
type Config struct {
	StorePath string

	Snapshot migrate.Options

	CatalogBaseURL string
	CatalogAPIKey  string
	CatalogTimeout time.Duration

	RankingCacheSize int
	RefreshWorkers   int

	DashboardHost string
	DashboardPort int

	WatchDebounce time.Duration
	WatchRescan   time.Duration

	Log LogConfig
}

// LogConfig controls log file rotation. An empty File logs to stderr only.
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Options says where to look for settings.
type Options struct {
	// ConfigFile is an explicit config file (yaml, toml or json by
	// extension). When empty, odcat.yaml is searched for in the working
	// directory and $HOME/.config/odcat; a missing file is not an error.
	ConfigFile string

	// EnvFile is loaded into the environment before reading overrides.
	// Defaults to ".env"; a missing file is ignored.
	EnvFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyStorePath, "data/database.sqlite")
	v.SetDefault(KeySnapshotDatasets, migrate.DefaultDatasetsPath)
	v.SetDefault(KeySnapshotResources, migrate.DefaultResourcesPath)
	v.SetDefault(KeySnapshotRankings, "")
	v.SetDefault(KeyCatalogBaseURL, "https://data.go.th")
	v.SetDefault(KeyCatalogAPIKey, "")
	v.SetDefault(KeyCatalogTimeout, "10s")
	v.SetDefault(KeyRankingCacheSize, 1024)
	v.SetDefault(KeyRefreshWorkers, 4)
	v.SetDefault(KeyDashboardHost, "")
	v.SetDefault(KeyDashboardPort, 8080)
	v.SetDefault(KeyWatchDebounce, "500ms")
	v.SetDefault(KeyWatchRescan, "0s")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeyLogMaxAgeDays, 28)
}

// New returns a viper instance with defaults, config file and environment
// bindings applied. Flags can be bound onto it before calling Decode.
func New(opts Options) (*viper.Viper, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// ODCAT_CATALOG_API_KEY wins, then the conventional variable
	if err := v.BindEnv(KeyCatalogAPIKey, EnvPrefix+"_CATALOG_API_KEY", APIKeyEnv); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", APIKeyEnv, err)
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", opts.ConfigFile, err)
		}
		return v, nil
	}

	v.SetConfigName("odcat")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home + "/.config/odcat")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load reads the configuration in one step.
func Load(opts Options) (*Config, error) {
	v, err := New(opts)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// Decode resolves typed settings from v and validates them.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		StorePath: v.GetString(KeyStorePath),
		Snapshot: migrate.Options{
			DatasetsPath:  v.GetString(KeySnapshotDatasets),
			ResourcesPath: v.GetString(KeySnapshotResources),
			RankingsPath:  v.GetString(KeySnapshotRankings),
		},
		CatalogBaseURL:   v.GetString(KeyCatalogBaseURL),
		CatalogAPIKey:    strings.TrimSpace(v.GetString(KeyCatalogAPIKey)),
		RankingCacheSize: v.GetInt(KeyRankingCacheSize),
		RefreshWorkers:   v.GetInt(KeyRefreshWorkers),
		DashboardHost:    v.GetString(KeyDashboardHost),
		DashboardPort:    v.GetInt(KeyDashboardPort),
		Log: LogConfig{
			File:       v.GetString(KeyLogFile),
			MaxSizeMB:  v.GetInt(KeyLogMaxSizeMB),
			MaxBackups: v.GetInt(KeyLogMaxBackups),
			MaxAgeDays: v.GetInt(KeyLogMaxAgeDays),
		},
	}

	var err error
	if cfg.CatalogTimeout, err = duration(v, KeyCatalogTimeout); err != nil {
		return nil, err
	}
	if cfg.WatchDebounce, err = duration(v, KeyWatchDebounce); err != nil {
		return nil, err
	}
	if cfg.WatchRescan, err = duration(v, KeyWatchRescan); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	s := v.GetString(key)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.StorePath == "":
		return fmt.Errorf("%s must not be empty", KeyStorePath)
	case c.Snapshot.DatasetsPath == "" || c.Snapshot.ResourcesPath == "":
		return fmt.Errorf("snapshot paths must not be empty")
	case c.CatalogTimeout <= 0:
		return fmt.Errorf("%s must be positive", KeyCatalogTimeout)
	case c.DashboardPort < 0 || c.DashboardPort > 65535:
		return fmt.Errorf("%s out of range: %d", KeyDashboardPort, c.DashboardPort)
	case c.RefreshWorkers < 0:
		return fmt.Errorf("%s must not be negative", KeyRefreshWorkers)
	}
	return nil
}

// HasAPIKey reports whether remote refreshes are possible.
func (c *Config) HasAPIKey() bool {
	return c.CatalogAPIKey != ""
}
