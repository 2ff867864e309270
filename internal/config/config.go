package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Logger   LoggerConfig   `yaml:"logger"`
	Security SecurityConfig `yaml:"security"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatasetConfig struct {
	CSVFile  string `yaml:"csv_file"`
	Encoding string `yaml:"encoding"`
	CacheDir string `yaml:"cache_dir"`
}

// AnalysisConfig holds the defaults a run falls back to when a request omits them.
type AnalysisConfig struct {
	DefaultK        int     `yaml:"default_k"`
	Country         string  `yaml:"country"`
	RevenueTarget   float64 `yaml:"revenue_target"`
	Seed            uint64  `yaml:"seed"`
	Restarts        int     `yaml:"restarts"`
	MaxIterations   int     `yaml:"max_iterations"`
	ForecastHorizon int     `yaml:"forecast_horizon"`
	ImpactAlpha     float64 `yaml:"impact_alpha"`
	PreWindow       int     `yaml:"pre_window"`
	PostWindow      int     `yaml:"post_window"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SecurityConfig struct {
	EnableRateLimit bool     `yaml:"enable_rate_limit"`
	RateLimitRPS    int      `yaml:"rate_limit_rps"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	TrustedProxies  []string `yaml:"trusted_proxies"`
}

const (
	MinClusters = 2
	MaxClusters = 10
)

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8084,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Dataset: DatasetConfig{
			CSVFile:  "online_retail.csv",
			Encoding: "latin1",
			CacheDir: ".cache",
		},
		Analysis: AnalysisConfig{
			DefaultK:        3,
			Country:         "all",
			RevenueTarget:   100000,
			Seed:            42,
			Restarts:        10,
			MaxIterations:   300,
			ForecastHorizon: 3,
			ImpactAlpha:     0.05,
			PreWindow:       6,
			PostWindow:      3,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			EnableRateLimit: true,
			RateLimitRPS:    20,
			RateLimitBurst:  10,
			AllowedOrigins:  []string{"http://localhost:8084"},
			TrustedProxies:  []string{"127.0.0.1"},
		},
	}
}

// Load starts from Default, overlays CONFIG_FILE when set, then applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvString("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Dataset.CSVFile = getEnvString("CSV_FILE", c.Dataset.CSVFile)
	c.Dataset.Encoding = getEnvString("CSV_ENCODING", c.Dataset.Encoding)
	c.Dataset.CacheDir = getEnvString("CACHE_DIR", c.Dataset.CacheDir)

	c.Analysis.DefaultK = getEnvInt("ANALYSIS_DEFAULT_K", c.Analysis.DefaultK)
	c.Analysis.Country = getEnvString("ANALYSIS_COUNTRY", c.Analysis.Country)
	c.Analysis.RevenueTarget = getEnvFloat("ANALYSIS_REVENUE_TARGET", c.Analysis.RevenueTarget)
	c.Analysis.Seed = uint64(getEnvInt("ANALYSIS_SEED", int(c.Analysis.Seed)))
	c.Analysis.Restarts = getEnvInt("ANALYSIS_RESTARTS", c.Analysis.Restarts)
	c.Analysis.MaxIterations = getEnvInt("ANALYSIS_MAX_ITERATIONS", c.Analysis.MaxIterations)
	c.Analysis.ForecastHorizon = getEnvInt("ANALYSIS_FORECAST_HORIZON", c.Analysis.ForecastHorizon)
	c.Analysis.ImpactAlpha = getEnvFloat("ANALYSIS_IMPACT_ALPHA", c.Analysis.ImpactAlpha)
	c.Analysis.PreWindow = getEnvInt("ANALYSIS_PRE_WINDOW", c.Analysis.PreWindow)
	c.Analysis.PostWindow = getEnvInt("ANALYSIS_POST_WINDOW", c.Analysis.PostWindow)

	c.Logger.Level = getEnvString("LOG_LEVEL", c.Logger.Level)
	c.Logger.Format = getEnvString("LOG_FORMAT", c.Logger.Format)

	c.Security.EnableRateLimit = getEnvBool("SECURITY_RATE_LIMIT_ENABLED", c.Security.EnableRateLimit)
	c.Security.RateLimitRPS = getEnvInt("SECURITY_RATE_LIMIT_RPS", c.Security.RateLimitRPS)
	c.Security.RateLimitBurst = getEnvInt("SECURITY_RATE_LIMIT_BURST", c.Security.RateLimitBurst)
	c.Security.AllowedOrigins = getEnvStringSlice("SECURITY_ALLOWED_ORIGINS", c.Security.AllowedOrigins)
	c.Security.TrustedProxies = getEnvStringSlice("SECURITY_TRUSTED_PROXIES", c.Security.TrustedProxies)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Dataset.CSVFile == "" {
		return fmt.Errorf("CSV file path cannot be empty")
	}

	validEncodings := []string{"latin1", "utf-8"}
	if !contains(validEncodings, strings.ToLower(c.Dataset.Encoding)) {
		return fmt.Errorf("invalid CSV encoding %q, must be one of: %s", c.Dataset.Encoding, strings.Join(validEncodings, ", "))
	}

	if c.Analysis.DefaultK < MinClusters || c.Analysis.DefaultK > MaxClusters {
		return fmt.Errorf("default k must be between %d and %d, got %d", MinClusters, MaxClusters, c.Analysis.DefaultK)
	}

	if c.Analysis.RevenueTarget < 0 {
		return fmt.Errorf("revenue target cannot be negative")
	}

	if c.Analysis.Restarts <= 0 || c.Analysis.MaxIterations <= 0 {
		return fmt.Errorf("k-means restarts and max iterations must be positive")
	}

	if c.Analysis.ForecastHorizon <= 0 {
		return fmt.Errorf("forecast horizon must be positive")
	}

	if c.Analysis.ImpactAlpha <= 0 || c.Analysis.ImpactAlpha >= 1 {
		return fmt.Errorf("impact alpha must be in (0, 1), got %g", c.Analysis.ImpactAlpha)
	}

	if c.Analysis.PreWindow <= 0 || c.Analysis.PostWindow <= 0 {
		return fmt.Errorf("impact windows must be positive")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
