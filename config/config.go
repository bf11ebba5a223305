package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const DefaultPath = "./config/config.yaml"

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	Port                string        `yaml:"port"`
	BaseURL             string        `yaml:"base_url"`
	FrontendURL         string        `yaml:"frontend_url"`
	TempDir             string        `yaml:"temp_dir"`
	SpotifyClientID     string        `yaml:"spotify_client_id"`
	SpotifyClientSecret string        `yaml:"spotify_client_secret"`
	FFmpegPath          string        `yaml:"ffmpeg_path"`
	PlaylistConcurrency int           `yaml:"playlist_concurrency"`
	MaxAcquisitions     int           `yaml:"max_acquisitions"`
	SearchResults       int           `yaml:"search_results"`
	SearchRatePerSecond float64       `yaml:"search_rate_per_second"`
	MetadataTimeout     time.Duration `yaml:"metadata_timeout"`
	CoverTimeout        time.Duration `yaml:"cover_timeout"`
	JobRetention        time.Duration `yaml:"job_retention"`
	FileRetention       time.Duration `yaml:"file_retention"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	Store               StoreConfig   `yaml:"store"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver"`
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// LoadConfigFromFile reads path (the default location when empty), applies
// environment overrides and defaults, and validates the result. A missing file
// at the default location is not an error.
func LoadConfigFromFile(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	var config Config
	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err = yaml.NewDecoder(file).Decode(&config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	case explicit || !os.IsNotExist(err):
		return nil, err
	}
	if err = config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	config.applyDefaults()
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("BACKEND_URL", &c.BaseURL)
	str("FRONTEND_URL", &c.FrontendURL)
	str("TEMP_FILES_PATH", &c.TempDir)
	str("SPOTIFY_CLIENT_ID", &c.SpotifyClientID)
	str("SPOTIFY_CLIENT_SECRET", &c.SpotifyClientSecret)
	str("JOB_STORE", &c.Store.Driver)
	str("SQLITE_PATH", &c.Store.SQLitePath)
	str("REDIS_ADDR", &c.Store.RedisAddr)
	str("REDIS_PASSWORD", &c.Store.RedisPassword)

	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		c.Store.RedisDB = n
	}
	if v, ok := lookup("JOB_RETENTION"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid JOB_RETENTION %q: %w", v, err)
		}
		c.JobRetention = d
	}
	if v, ok := lookup("FILE_EXPIRATION_MINUTES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FILE_EXPIRATION_MINUTES %q: %w", v, err)
		}
		c.FileRetention = time.Duration(n) * time.Minute
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "3001"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:" + c.Port
	}
	if c.FrontendURL == "" {
		c.FrontendURL = "http://localhost:3000"
	}
	if c.TempDir == "" {
		c.TempDir = "./temp"
	}
	if c.PlaylistConcurrency == 0 {
		c.PlaylistConcurrency = 4
	}
	if c.MaxAcquisitions == 0 {
		c.MaxAcquisitions = 4
	}
	if c.SearchResults == 0 {
		c.SearchResults = 10
	}
	if c.SearchRatePerSecond == 0 {
		c.SearchRatePerSecond = 2
	}
	if c.MetadataTimeout == 0 {
		c.MetadataTimeout = 15 * time.Second
	}
	if c.CoverTimeout == 0 {
		c.CoverTimeout = 10 * time.Second
	}
	if c.JobRetention == 0 {
		c.JobRetention = 60 * time.Minute
	}
	if c.FileRetention == 0 {
		c.FileRetention = 30 * time.Minute
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 5 * time.Minute
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "./data/jobs.db"
	}
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = "localhost:6379"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("port %q is not a number", c.Port))
	}
	if c.PlaylistConcurrency < 0 || c.MaxAcquisitions < 0 || c.SearchResults < 0 {
		errs = append(errs, errors.New("concurrency and result limits must not be negative"))
	}
	if c.SearchRatePerSecond < 0 {
		errs = append(errs, errors.New("search_rate_per_second must not be negative"))
	}
	if c.JobRetention < 0 || c.FileRetention < 0 || c.SweepInterval < 0 {
		errs = append(errs, errors.New("retention and sweep durations must not be negative"))
	}
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	return errors.Join(errs...)
}

// HasSpotifyCredentials reports whether real client credentials are configured.
func (c *Config) HasSpotifyCredentials() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != "" && c.SpotifyClientID != "your_spotify_client_id"
}
