package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultBaseURL        = "https://data.airquality.nsw.gov.au"
	defaultRequestTimeout = 60 * time.Second
	defaultStmtTimeout    = 30 * time.Second
	defaultBrokerURL      = "mqtt://localhost:1883"
	defaultTopic          = "aqms/observations"
	defaultConnectTimeout = 10 * time.Second
	defaultDataDir        = "data"
	defaultSnapshotFile   = "real_time_data.csv"
	defaultSiteCacheFile  = "site.csv"
	defaultRegions        = "Sydney East,Sydney South-west,Sydney North-west"
	defaultParameter      = "PM2.5"
	defaultStartDate      = "2023-01-01"
	defaultCategory       = "Averages"
	defaultSubCategory    = "Daily"
	defaultPublishEvery   = time.Second
	defaultFrequency      = "Hourly average"
	defaultPort           = 8080
	defaultLogDir         = "logs"
	defaultLogLevel       = "info"
)

// Load modes for the historical observation table.
const (
	LoadBestEffort = "best-effort"
	LoadAtomic     = "atomic"
)

// Config holds runtime configuration shared by every pipeline service.
type Config struct {
	Upstream struct {
		BaseURL        string
		RequestTimeout time.Duration
	}
	Database struct {
		URL              string
		StatementTimeout time.Duration
	}
	Broker struct {
		URL            string
		Topic          string
		ClientID       string
		ConnectTimeout time.Duration
	}
	Files struct {
		DataDir   string
		Snapshot  string
		SiteCache string
	}
	ETL struct {
		Regions     []string
		Parameter   string
		StartDate   time.Time
		Category    string
		SubCategory string
		LoadMode    string
		SyncSites   bool
	}
	Publisher struct {
		Interval  time.Duration
		Parameter string
		Frequency string
	}
	HTTP struct {
		Port int
	}
	Logging struct {
		Dir   string
		Level string
	}
	DryRun bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	var err error

	cfg.Upstream.BaseURL = strings.TrimRight(getenvDefault("AQMS_BASE_URL", defaultBaseURL), "/")
	if cfg.Upstream.RequestTimeout, err = durationEnv("AQMS_REQUEST_TIMEOUT", defaultRequestTimeout); err != nil {
		return cfg, err
	}

	cfg.Database.URL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.Database.StatementTimeout, err = durationEnv("DB_STATEMENT_TIMEOUT", defaultStmtTimeout); err != nil {
		return cfg, err
	}

	cfg.Broker.URL = getenvDefault("BROKER_URL", defaultBrokerURL)
	cfg.Broker.Topic = getenvDefault("BROKER_TOPIC", defaultTopic)
	cfg.Broker.ClientID = strings.TrimSpace(os.Getenv("BROKER_CLIENT_ID"))
	if cfg.Broker.ConnectTimeout, err = durationEnv("BROKER_CONNECT_TIMEOUT", defaultConnectTimeout); err != nil {
		return cfg, err
	}

	cfg.Files.DataDir = getenvDefault("DATA_DIR", defaultDataDir)
	cfg.Files.Snapshot = getenvDefault("SNAPSHOT_FILE", defaultSnapshotFile)
	cfg.Files.SiteCache = getenvDefault("SITE_CACHE_FILE", defaultSiteCacheFile)

	cfg.ETL.Regions = splitList(getenvDefault("ETL_REGIONS", defaultRegions))
	cfg.ETL.Parameter = getenvDefault("ETL_PARAMETER", defaultParameter)
	cfg.ETL.Category = getenvDefault("ETL_CATEGORY", defaultCategory)
	cfg.ETL.SubCategory = getenvDefault("ETL_SUBCATEGORY", defaultSubCategory)
	start := getenvDefault("ETL_START_DATE", defaultStartDate)
	if cfg.ETL.StartDate, err = time.ParseInLocation("2006-01-02", start, time.UTC); err != nil {
		return cfg, fmt.Errorf("invalid ETL_START_DATE: %w", err)
	}
	cfg.ETL.LoadMode = getenvDefault("ETL_LOAD_MODE", LoadBestEffort)
	if cfg.ETL.LoadMode != LoadBestEffort && cfg.ETL.LoadMode != LoadAtomic {
		return cfg, fmt.Errorf("invalid ETL_LOAD_MODE: %q (want %s|%s)", cfg.ETL.LoadMode, LoadBestEffort, LoadAtomic)
	}
	if cfg.ETL.SyncSites, err = boolEnv("ETL_SYNC_SITES", true); err != nil {
		return cfg, err
	}

	if cfg.Publisher.Interval, err = durationEnv("PUBLISH_INTERVAL", defaultPublishEvery); err != nil {
		return cfg, err
	}
	if cfg.Publisher.Interval < 0 {
		return cfg, fmt.Errorf("invalid PUBLISH_INTERVAL: must not be negative")
	}
	cfg.Publisher.Parameter = getenvDefault("PUBLISH_PARAMETER", defaultParameter)
	cfg.Publisher.Frequency = getenvDefault("PUBLISH_FREQUENCY", defaultFrequency)

	cfg.HTTP.Port = defaultPort
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return cfg, fmt.Errorf("invalid PORT: %s", v)
		}
		cfg.HTTP.Port = port
	}

	cfg.Logging.Dir = getenvDefault("LOG_DIR", defaultLogDir)
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", defaultLogLevel)

	if cfg.DryRun, err = boolEnv("DRY_RUN", false); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// SnapshotPath returns the location of the realtime snapshot file.
func (c Config) SnapshotPath() string {
	return filepath.Join(c.Files.DataDir, c.Files.Snapshot)
}

// SiteCachePath returns the location of the cached site directory.
func (c Config) SiteCachePath() string {
	return filepath.Join(c.Files.DataDir, c.Files.SiteCache)
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
