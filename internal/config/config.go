package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the AIOps engine.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Anomaly     AnomalyConfig     `yaml:"anomaly"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Remediation RemediationConfig `yaml:"remediation"`
	Rules       RulesConfig       `yaml:"rules"`
	Storage     StorageConfig     `yaml:"storage"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	MaxBatchSize    int           `yaml:"maxBatchSize"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CorrelationConfig tunes the correlation engine.
type CorrelationConfig struct {
	Enabled              bool     `yaml:"enabled"`
	Methods              []string `yaml:"methods"`
	WindowMinutes        int      `yaml:"windowMinutes"`
	MinCorrelationEvents int      `yaml:"minCorrelationEvents"`
	AlertThreshold       float64  `yaml:"alertThreshold"`
}

// AnomalyConfig tunes the ensemble anomaly detector.
type AnomalyConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Algorithms          []string `yaml:"algorithms"`
	MinSamples          int      `yaml:"minSamples"`
	ExpectedAnomalyRate float64  `yaml:"expectedAnomalyRate"`
}

// AlertingConfig tunes the alert optimizer.
type AlertingConfig struct {
	Enabled             bool    `yaml:"enabled"`
	TimeWindowMinutes   int     `yaml:"timeWindowMinutes"`
	MaxAlertsPerGroup   int     `yaml:"maxAlertsPerGroup"`
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
}

// RemediationConfig tunes the auto-remediation engine.
type RemediationConfig struct {
	Enabled              bool          `yaml:"enabled"`
	MaxConcurrentActions int           `yaml:"maxConcurrentActions"`
	ActionTimeout        time.Duration `yaml:"actionTimeout"`
	CooldownMinutes      int           `yaml:"cooldownMinutes"`
	ExecutorURL          string        `yaml:"executorURL"`
	ExecutorTimeout      time.Duration `yaml:"executorTimeout"`
}

// RulesConfig points at the YAML rule packs.
type RulesConfig struct {
	SuppressionPath string `yaml:"suppressionPath"`
	RemediationPath string `yaml:"remediationPath"`
	Watch           bool   `yaml:"watch"`
}

// StorageConfig controls the Valkey-backed storage collaborator and TTLs.
type StorageConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	MaxRetries      int           `yaml:"maxRetries"`
	TLS             bool          `yaml:"tls"`
	EventTTL        time.Duration `yaml:"eventTTL"`
	AnomalyAlertTTL time.Duration `yaml:"anomalyAlertTTL"`
	CorrelationTTL  time.Duration `yaml:"correlationTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("AIOPS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			MaxBatchSize:    500,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Correlation: CorrelationConfig{
			Enabled:              true,
			Methods:              []string{"temporal", "causal"},
			WindowMinutes:        10,
			MinCorrelationEvents: 2,
			AlertThreshold:       0.8,
		},
		Anomaly: AnomalyConfig{
			Enabled:             true,
			Algorithms:          []string{"isolation_forest", "local_outlier_factor"},
			MinSamples:          100,
			ExpectedAnomalyRate: 0.1,
		},
		Alerting: AlertingConfig{
			Enabled:             true,
			TimeWindowMinutes:   10,
			MaxAlertsPerGroup:   50,
			SimilarityThreshold: 0.7,
		},
		Remediation: RemediationConfig{
			Enabled:              true,
			MaxConcurrentActions: 5,
			ActionTimeout:        30 * time.Second,
			CooldownMinutes:      15,
			ExecutorTimeout:      5 * time.Second,
		},
		Rules: RulesConfig{
			SuppressionPath: "configs/rules/suppression.yaml",
			RemediationPath: "configs/rules/remediation.yaml",
			Watch:           false,
		},
		Storage: StorageConfig{
			Enabled:         false,
			DialTimeout:     2 * time.Second,
			ReadTimeout:     500 * time.Millisecond,
			WriteTimeout:    500 * time.Millisecond,
			MaxRetries:      2,
			EventTTL:        24 * time.Hour,
			AnomalyAlertTTL: time.Hour,
			CorrelationTTL:  2 * time.Hour,
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Correlation.WindowMinutes <= 0 {
		return fmt.Errorf("correlation.windowMinutes must be positive, got %d", cfg.Correlation.WindowMinutes)
	}
	if cfg.Correlation.MinCorrelationEvents < 2 {
		return fmt.Errorf("correlation.minCorrelationEvents must be at least 2, got %d", cfg.Correlation.MinCorrelationEvents)
	}
	if cfg.Correlation.AlertThreshold < 0 || cfg.Correlation.AlertThreshold > 1 {
		return fmt.Errorf("correlation.alertThreshold must be in [0,1], got %f", cfg.Correlation.AlertThreshold)
	}
	if cfg.Anomaly.MinSamples <= 0 {
		return fmt.Errorf("anomaly.minSamples must be positive, got %d", cfg.Anomaly.MinSamples)
	}
	if cfg.Anomaly.ExpectedAnomalyRate <= 0 || cfg.Anomaly.ExpectedAnomalyRate >= 1 {
		return fmt.Errorf("anomaly.expectedAnomalyRate must be in (0,1), got %f", cfg.Anomaly.ExpectedAnomalyRate)
	}
	if cfg.Alerting.SimilarityThreshold < 0 || cfg.Alerting.SimilarityThreshold > 1 {
		return fmt.Errorf("alerting.similarityThreshold must be in [0,1], got %f", cfg.Alerting.SimilarityThreshold)
	}
	if cfg.Remediation.MaxConcurrentActions <= 0 {
		return fmt.Errorf("remediation.maxConcurrentActions must be positive, got %d", cfg.Remediation.MaxConcurrentActions)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AIOPS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("AIOPS_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("AIOPS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AIOPS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("AIOPS_CORRELATION_WINDOW_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Correlation.WindowMinutes = n
		}
	}
	if v := os.Getenv("AIOPS_ANOMALY_MIN_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Anomaly.MinSamples = n
		}
	}
	if v := os.Getenv("AIOPS_SUPPRESSION_RULES_PATH"); v != "" {
		cfg.Rules.SuppressionPath = v
	}
	if v := os.Getenv("AIOPS_REMEDIATION_RULES_PATH"); v != "" {
		cfg.Rules.RemediationPath = v
	}
	if v := os.Getenv("AIOPS_EXECUTOR_URL"); v != "" {
		cfg.Remediation.ExecutorURL = v
	}
	if v := os.Getenv("AIOPS_STORAGE_ADDR"); v != "" {
		cfg.Storage.Addr = v
	}
	if v := os.Getenv("AIOPS_STORAGE_ENABLED"); v != "" {
		cfg.Storage.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("AIOPS_STORAGE_USERNAME"); v != "" {
		cfg.Storage.Username = v
	}
	if v := os.Getenv("AIOPS_STORAGE_PASSWORD"); v != "" {
		cfg.Storage.Password = v
	}
	if v := os.Getenv("AIOPS_STORAGE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Storage.DB = db
		}
	}
	if v := os.Getenv("AIOPS_STORAGE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Storage.TLS = true
	}
	if v := os.Getenv("AIOPS_ACTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Remediation.ActionTimeout = d
		}
	}
	if v := os.Getenv("AIOPS_EVENT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Storage.EventTTL = d
		}
	}
	if v := os.Getenv("AIOPS_ANOMALY_ALERT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Storage.AnomalyAlertTTL = d
		}
	}
	if v := os.Getenv("AIOPS_CORRELATION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Storage.CorrelationTTL = d
		}
	}
	if v := os.Getenv("AIOPS_RULES_WATCH"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Rules.Watch = true
	}
}
