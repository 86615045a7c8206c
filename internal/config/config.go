// Package config provides configuration management for adsplice.
// Defaults are overlaid by an optional YAML file and then by environment
// variables. A .env file is read first outside production.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort              = 8787
	DefaultLogLevel          = "info"
	DefaultDataDir           = ".adsplice"
	DefaultWindowSeconds     = 30
	DefaultUploadWorkers     = 4
	DefaultProgressInterval  = 200 * time.Millisecond
	DefaultProgressStep      = 10
	DefaultProgressCap       = 90
	DefaultCloudBaseURL      = "https://api.twelvelabs.io/v1.3"
	DefaultCloudRPS          = 5
	DefaultStorage           = StorageLocal
	DefaultS3Region          = "us-east-1"
	DefaultDefaultAdDuration = 5 * time.Second
	DefaultUploadRate        = 2
	DefaultUploadBurst       = 10
	DefaultMaxUploadBytes    = 2 << 30
	DefaultRetention         = 7 * 24 * time.Hour

	StorageLocal = "local"
	StorageS3    = "s3"

	// Environment variable names
	EnvEnv               = "ADSPLICE_ENV"
	EnvConfigFile        = "ADSPLICE_CONFIG"
	EnvPort              = "ADSPLICE_PORT"
	EnvLogLevel          = "ADSPLICE_LOG_LEVEL"
	EnvDataDir           = "ADSPLICE_DATA_DIR"
	EnvBaseURL           = "ADSPLICE_BASE_URL"
	EnvWindowSeconds     = "ADSPLICE_WINDOW_SECONDS"
	EnvUploadWorkers     = "ADSPLICE_UPLOAD_WORKERS"
	EnvProgressInterval  = "ADSPLICE_PROGRESS_INTERVAL"
	EnvProgressStep      = "ADSPLICE_PROGRESS_STEP"
	EnvProgressCap       = "ADSPLICE_PROGRESS_CAP"
	EnvCloudBaseURL      = "ADSPLICE_CLOUD_BASE_URL"
	EnvCloudAPIKey       = "ADSPLICE_CLOUD_API_KEY"
	EnvCloudIndexID      = "ADSPLICE_CLOUD_INDEX_ID"
	EnvCloudRPS          = "ADSPLICE_CLOUD_RPS"
	EnvCloudMockScenes   = "ADSPLICE_CLOUD_MOCK_SCENES"
	EnvStitchURL         = "ADSPLICE_STITCH_URL"
	EnvStitchMinDelay    = "ADSPLICE_STITCH_MIN_DELAY"
	EnvStitchMaxDelay    = "ADSPLICE_STITCH_MAX_DELAY"
	EnvStorage           = "ADSPLICE_STORAGE"
	EnvS3Bucket          = "ADSPLICE_S3_BUCKET"
	EnvS3Region          = "ADSPLICE_S3_REGION"
	EnvS3Prefix          = "ADSPLICE_S3_PREFIX"
	EnvS3Endpoint        = "ADSPLICE_S3_ENDPOINT"
	EnvAllowedOrigins    = "ADSPLICE_ALLOWED_ORIGINS"
	EnvPlaceholderURL    = "ADSPLICE_PLACEHOLDER_URL"
	EnvDefaultAdDuration = "ADSPLICE_DEFAULT_AD_DURATION"
	EnvUploadRate        = "ADSPLICE_UPLOAD_RATE"
	EnvUploadBurst       = "ADSPLICE_UPLOAD_BURST"
	EnvMaxUploadBytes    = "ADSPLICE_MAX_UPLOAD_BYTES"
	EnvRetention         = "ADSPLICE_COMPOSITION_RETENTION"
	EnvHeadless          = "ADSPLICE_HEADLESS"

	// Database filename
	DBFilename = "adsplice.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	MediaDir() string
	BaseURL() string
	WindowSeconds() float64
	UploadWorkers() int
	ProgressInterval() time.Duration
	ProgressStep() int
	ProgressCap() int
	CloudBaseURL() string
	CloudAPIKey() string
	CloudIndexID() string
	CloudRPS() float64
	CloudMockScenes() bool
	StitchURL() string
	StitchDelay() (time.Duration, time.Duration)
	Storage() string
	S3Bucket() string
	S3Region() string
	S3Prefix() string
	S3Endpoint() string
	AllowedOrigins() []string
	PlaceholderURL() string
	DefaultAdDuration() time.Duration
	UploadRate() float64
	UploadBurst() int
	MaxUploadBytes() int64
	Retention() time.Duration
	Headless() bool
}

// Duration reads "90s" style values from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

type fileConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`
	BaseURL  string `yaml:"base_url"`
	Headless bool   `yaml:"headless"`

	Timeline struct {
		WindowSeconds     float64  `yaml:"window_seconds"`
		DefaultAdDuration Duration `yaml:"default_ad_duration"`
		PlaceholderURL    string   `yaml:"placeholder_url"`
	} `yaml:"timeline"`

	Upload struct {
		Workers          int      `yaml:"workers"`
		ProgressInterval Duration `yaml:"progress_interval"`
		ProgressStep     int      `yaml:"progress_step"`
		ProgressCap      int      `yaml:"progress_cap"`
		Rate             float64  `yaml:"rate"`
		Burst            int      `yaml:"burst"`
		MaxBytes         int64    `yaml:"max_bytes"`
	} `yaml:"upload"`

	Cloud struct {
		BaseURL    string  `yaml:"base_url"`
		APIKey     string  `yaml:"api_key"`
		IndexID    string  `yaml:"index_id"`
		RPS        float64 `yaml:"rps"`
		MockScenes bool    `yaml:"mock_scenes"`
	} `yaml:"cloud"`

	Stitch struct {
		URL       string   `yaml:"url"`
		MinDelay  Duration `yaml:"min_delay"`
		MaxDelay  Duration `yaml:"max_delay"`
		Retention Duration `yaml:"retention"`
	} `yaml:"stitch"`

	Storage struct {
		Type       string `yaml:"type"`
		S3Bucket   string `yaml:"s3_bucket"`
		S3Region   string `yaml:"s3_region"`
		S3Prefix   string `yaml:"s3_prefix"`
		S3Endpoint string `yaml:"s3_endpoint"`
	} `yaml:"storage"`

	AllowedOrigins []string `yaml:"allowed_origins"`
}

// EnvConfig holds the resolved configuration.
type EnvConfig struct {
	f fileConfig
}

// New loads .env (outside production), the YAML file named by
// ADSPLICE_CONFIG if any, and then environment overrides.
func New() (*EnvConfig, error) {
	if os.Getenv(EnvEnv) != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := defaults()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *EnvConfig {
	var f fileConfig
	f.Port = DefaultPort
	f.LogLevel = DefaultLogLevel
	f.DataDir = defaultDataDir()
	f.Timeline.WindowSeconds = DefaultWindowSeconds
	f.Timeline.DefaultAdDuration = Duration(DefaultDefaultAdDuration)
	f.Upload.Workers = DefaultUploadWorkers
	f.Upload.ProgressInterval = Duration(DefaultProgressInterval)
	f.Upload.ProgressStep = DefaultProgressStep
	f.Upload.ProgressCap = DefaultProgressCap
	f.Upload.Rate = DefaultUploadRate
	f.Upload.Burst = DefaultUploadBurst
	f.Upload.MaxBytes = DefaultMaxUploadBytes
	f.Cloud.BaseURL = DefaultCloudBaseURL
	f.Cloud.RPS = DefaultCloudRPS
	f.Stitch.Retention = Duration(DefaultRetention)
	f.Storage.Type = DefaultStorage
	f.Storage.S3Region = DefaultS3Region
	f.AllowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	return &EnvConfig{f: f}
}

func (c *EnvConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &c.f); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	f := &c.f

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		f.Port = port
	}

	setString(&f.LogLevel, EnvLogLevel)
	setString(&f.DataDir, EnvDataDir)
	setString(&f.BaseURL, EnvBaseURL)
	setString(&f.Timeline.PlaceholderURL, EnvPlaceholderURL)
	setString(&f.Cloud.BaseURL, EnvCloudBaseURL)
	setString(&f.Cloud.APIKey, EnvCloudAPIKey)
	setString(&f.Cloud.IndexID, EnvCloudIndexID)
	setString(&f.Stitch.URL, EnvStitchURL)
	setString(&f.Storage.Type, EnvStorage)
	setString(&f.Storage.S3Bucket, EnvS3Bucket)
	setString(&f.Storage.S3Region, EnvS3Region)
	setString(&f.Storage.S3Prefix, EnvS3Prefix)
	setString(&f.Storage.S3Endpoint, EnvS3Endpoint)

	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		f.AllowedOrigins = splitList(v)
	}

	steps := []func() error{
		func() error { return setFloat(&f.Timeline.WindowSeconds, EnvWindowSeconds) },
		func() error { return setFloat(&f.Upload.Rate, EnvUploadRate) },
		func() error { return setFloat(&f.Cloud.RPS, EnvCloudRPS) },
		func() error { return setInt(&f.Upload.Workers, EnvUploadWorkers) },
		func() error { return setInt(&f.Upload.ProgressStep, EnvProgressStep) },
		func() error { return setInt(&f.Upload.ProgressCap, EnvProgressCap) },
		func() error { return setInt(&f.Upload.Burst, EnvUploadBurst) },
		func() error { return setInt64(&f.Upload.MaxBytes, EnvMaxUploadBytes) },
		func() error { return setDuration(&f.Upload.ProgressInterval, EnvProgressInterval) },
		func() error { return setDuration(&f.Timeline.DefaultAdDuration, EnvDefaultAdDuration) },
		func() error { return setDuration(&f.Stitch.MinDelay, EnvStitchMinDelay) },
		func() error { return setDuration(&f.Stitch.MaxDelay, EnvStitchMaxDelay) },
		func() error { return setDuration(&f.Stitch.Retention, EnvRetention) },
		func() error { return setBool(&f.Cloud.MockScenes, EnvCloudMockScenes) },
		func() error { return setBool(&f.Headless, EnvHeadless) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (c *EnvConfig) validate() error {
	f := c.f
	if f.Port < 1 || f.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", f.Port)
	}
	if f.Timeline.WindowSeconds < 1 {
		return fmt.Errorf("invalid window seconds %v: must be at least 1", f.Timeline.WindowSeconds)
	}
	if f.Upload.Workers < 1 {
		return fmt.Errorf("invalid upload workers %d: must be at least 1", f.Upload.Workers)
	}
	if f.Upload.ProgressCap < 0 || f.Upload.ProgressCap > 100 {
		return fmt.Errorf("invalid progress cap %d: must be between 0 and 100", f.Upload.ProgressCap)
	}
	switch f.Storage.Type {
	case StorageLocal:
	case StorageS3:
		if f.Storage.S3Bucket == "" {
			return fmt.Errorf("%s is required when storage is s3", EnvS3Bucket)
		}
	default:
		return fmt.Errorf("invalid storage %q: must be local or s3", f.Storage.Type)
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.f.Port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.f.LogLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.f.DataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.f.DataDir, DBFilename)
}

// MediaDir is where the local store keeps uploaded media.
func (c *EnvConfig) MediaDir() string {
	return filepath.Join(c.f.DataDir, "media")
}

// BaseURL is the externally reachable origin of this server, used to build
// media URLs.
func (c *EnvConfig) BaseURL() string {
	if c.f.BaseURL != "" {
		return strings.TrimRight(c.f.BaseURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.f.Port)
}

func (c *EnvConfig) WindowSeconds() float64 {
	return c.f.Timeline.WindowSeconds
}

func (c *EnvConfig) UploadWorkers() int {
	return c.f.Upload.Workers
}

func (c *EnvConfig) ProgressInterval() time.Duration {
	return time.Duration(c.f.Upload.ProgressInterval)
}

func (c *EnvConfig) ProgressStep() int {
	return c.f.Upload.ProgressStep
}

func (c *EnvConfig) ProgressCap() int {
	return c.f.Upload.ProgressCap
}

func (c *EnvConfig) CloudBaseURL() string {
	return c.f.Cloud.BaseURL
}

// CloudAPIKey returns the video-intelligence API key. When empty the stub
// client is used.
func (c *EnvConfig) CloudAPIKey() string {
	return c.f.Cloud.APIKey
}

func (c *EnvConfig) CloudIndexID() string {
	return c.f.Cloud.IndexID
}

func (c *EnvConfig) CloudRPS() float64 {
	return c.f.Cloud.RPS
}

func (c *EnvConfig) CloudMockScenes() bool {
	return c.f.Cloud.MockScenes
}

// StitchURL returns the remote stitch endpoint. When empty compositions are
// handled in-process.
func (c *EnvConfig) StitchURL() string {
	return c.f.Stitch.URL
}

// StitchDelay returns the bounds of the simulated processing time.
func (c *EnvConfig) StitchDelay() (time.Duration, time.Duration) {
	return time.Duration(c.f.Stitch.MinDelay), time.Duration(c.f.Stitch.MaxDelay)
}

func (c *EnvConfig) Storage() string {
	return c.f.Storage.Type
}

func (c *EnvConfig) S3Bucket() string {
	return c.f.Storage.S3Bucket
}

func (c *EnvConfig) S3Region() string {
	return c.f.Storage.S3Region
}

func (c *EnvConfig) S3Prefix() string {
	return c.f.Storage.S3Prefix
}

// S3Endpoint overrides the S3 endpoint, for MinIO and similar.
func (c *EnvConfig) S3Endpoint() string {
	return c.f.Storage.S3Endpoint
}

func (c *EnvConfig) AllowedOrigins() []string {
	return append([]string(nil), c.f.AllowedOrigins...)
}

func (c *EnvConfig) PlaceholderURL() string {
	return c.f.Timeline.PlaceholderURL
}

func (c *EnvConfig) DefaultAdDuration() time.Duration {
	return time.Duration(c.f.Timeline.DefaultAdDuration)
}

// UploadRate is the per-IP upload request rate in requests per second.
func (c *EnvConfig) UploadRate() float64 {
	return c.f.Upload.Rate
}

func (c *EnvConfig) UploadBurst() int {
	return c.f.Upload.Burst
}

func (c *EnvConfig) MaxUploadBytes() int64 {
	return c.f.Upload.MaxBytes
}

// Retention is how long stitch records are kept.
func (c *EnvConfig) Retention() time.Duration {
	return time.Duration(c.f.Stitch.Retention)
}

// Headless disables the system tray.
func (c *EnvConfig) Headless() bool {
	return c.f.Headless
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = Duration(d)
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
