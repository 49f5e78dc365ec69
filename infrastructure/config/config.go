package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the metrics/health HTTP surface (the API surface
// itself is out of scope; this only serves /metrics and /healthz).
type ServerConfig struct {
	Host string `json:"host" yaml:"host" env:"SERVER_HOST"`
	Port int    `json:"port" yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls persistence.
type DatabaseConfig struct {
	Driver          string `json:"driver" yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
}

// BusConfig controls the event bus transport.
type BusConfig struct {
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr" env:"BUS_REDIS_ADDR"`
	RedisPassword string `json:"redis_password" yaml:"redis_password" env:"BUS_REDIS_PASSWORD"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" env:"BUS_REDIS_DB"`
	StreamMaxLen  int64  `json:"stream_max_len" yaml:"stream_max_len" env:"BUS_STREAM_MAX_LEN"`
	UseInMemory   bool   `json:"use_in_memory" yaml:"use_in_memory" env:"BUS_USE_IN_MEMORY"`
	MaxRetries    int    `json:"max_retries" yaml:"max_retries" env:"BUS_MAX_RETRIES"`
}

// PolicyConfig holds the tunables named in the invoice pipeline's default
// configuration: OCR confidence gate, auto-approval limits, duplicate
// detection windows, SLA hours, and approval tiers. The fields listed in
// PolicyOverride can be overridden per tenant through Config.Tenants.
type PolicyConfig struct {
	OCRConfidenceThreshold   float64 `json:"ocr_confidence_threshold" yaml:"ocr_confidence_threshold" env:"POLICY_OCR_CONFIDENCE_THRESHOLD"`
	AutoApproveEnabled       bool    `json:"auto_approve_enabled" yaml:"auto_approve_enabled" env:"POLICY_AUTO_APPROVE_ENABLED"`
	AutoApproveMaxAmount     float64 `json:"auto_approve_max_amount" yaml:"auto_approve_max_amount" env:"POLICY_AUTO_APPROVE_MAX_AMOUNT"`
	DuplicateDetectionOn     bool    `json:"duplicate_detection_enabled" yaml:"duplicate_detection_enabled" env:"POLICY_DUPLICATE_DETECTION_ENABLED"`
	DuplicateHashWindowDays  int     `json:"duplicate_hash_window_days" yaml:"duplicate_hash_window_days" env:"POLICY_DUPLICATE_HASH_WINDOW_DAYS"`
	SLAWarningHours          float64 `json:"sla_warning_hours" yaml:"sla_warning_hours" env:"POLICY_SLA_WARNING_HOURS"`
	SLABreachHours           float64 `json:"sla_breach_hours" yaml:"sla_breach_hours" env:"POLICY_SLA_BREACH_HOURS"`
	RetentionDays            int     `json:"retention_days" yaml:"retention_days" env:"POLICY_RETENTION_DAYS"`
	ApprovalTierLowMax       float64 `json:"approval_tier_low_max" yaml:"approval_tier_low_max" env:"POLICY_APPROVAL_TIER_LOW_MAX"`
	ApprovalTierMediumMax    float64 `json:"approval_tier_medium_max" yaml:"approval_tier_medium_max" env:"POLICY_APPROVAL_TIER_MEDIUM_MAX"`
	ApprovalTierHighMax      float64 `json:"approval_tier_high_max" yaml:"approval_tier_high_max" env:"POLICY_APPROVAL_TIER_HIGH_MAX"`
	RiskReviewThreshold      float64 `json:"risk_review_threshold" yaml:"risk_review_threshold" env:"POLICY_RISK_REVIEW_THRESHOLD"`
	POMatchAmountTolerance   float64 `json:"po_match_amount_tolerance" yaml:"po_match_amount_tolerance" env:"POLICY_PO_MATCH_AMOUNT_TOLERANCE"`
	POMatchQuantityTolerance float64 `json:"po_match_quantity_tolerance" yaml:"po_match_quantity_tolerance" env:"POLICY_PO_MATCH_QUANTITY_TOLERANCE"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig                  `json:"server" yaml:"server"`
	Database DatabaseConfig                `json:"database" yaml:"database"`
	Logging  LoggingConfig                 `json:"logging" yaml:"logging"`
	Bus      BusConfig                     `json:"bus" yaml:"bus"`
	Policy   PolicyConfig                  `json:"policy" yaml:"policy"`
	Tenants  map[string]PolicyOverride     `json:"tenants" yaml:"tenants"`
}

// PolicyOverride carries the subset of PolicyConfig a tenant may override;
// zero values mean "inherit the default". Applied via Config.PolicyFor.
type PolicyOverride struct {
	AutoApproveEnabled   *bool    `json:"auto_approve_enabled" yaml:"auto_approve_enabled"`
	AutoApproveMaxAmount *float64 `json:"auto_approve_max_amount" yaml:"auto_approve_max_amount"`
	SLAWarningHours      *float64 `json:"sla_warning_hours" yaml:"sla_warning_hours"`
	SLABreachHours       *float64 `json:"sla_breach_hours" yaml:"sla_breach_hours"`
	RiskReviewThreshold  *float64 `json:"risk_review_threshold" yaml:"risk_review_threshold"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Bus: BusConfig{
			RedisAddr:    "localhost:6379",
			StreamMaxLen: 10000,
			MaxRetries:   3,
		},
		Policy: PolicyConfig{
			OCRConfidenceThreshold:   0.75,
			AutoApproveEnabled:       true,
			AutoApproveMaxAmount:     500,
			DuplicateDetectionOn:     true,
			DuplicateHashWindowDays:  90,
			SLAWarningHours:          36,
			SLABreachHours:           48,
			RetentionDays:            2555, // 7 years, matching compliance retention norms
			ApprovalTierLowMax:       1000,
			ApprovalTierMediumMax:    10000,
			ApprovalTierHighMax:      50000,
			RiskReviewThreshold:      0.5,
			POMatchAmountTolerance:   0.02,
			POMatchQuantityTolerance: 0.05,
		},
		Tenants: map[string]PolicyOverride{},
	}
}

// Load loads configuration from a YAML file (if present) and environment
// variables, the latter taking precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// PolicyFor resolves the effective policy for a tenant, applying its
// override (if any) on top of the global default.
func (c *Config) PolicyFor(tenantID string) PolicyConfig {
	policy := c.Policy
	override, ok := c.Tenants[tenantID]
	if !ok {
		return policy
	}
	if override.AutoApproveEnabled != nil {
		policy.AutoApproveEnabled = *override.AutoApproveEnabled
	}
	if override.AutoApproveMaxAmount != nil {
		policy.AutoApproveMaxAmount = *override.AutoApproveMaxAmount
	}
	if override.SLAWarningHours != nil {
		policy.SLAWarningHours = *override.SLAWarningHours
	}
	if override.SLABreachHours != nil {
		policy.SLABreachHours = *override.SLABreachHours
	}
	if override.RiskReviewThreshold != nil {
		policy.RiskReviewThreshold = *override.RiskReviewThreshold
	}
	return policy
}

// Validate checks the invariants the pipeline depends on at startup.
func (c *Config) Validate() error {
	if c.Policy.SLABreachHours <= c.Policy.SLAWarningHours {
		return fmt.Errorf("config: sla_breach_hours (%.2f) must exceed sla_warning_hours (%.2f)",
			c.Policy.SLABreachHours, c.Policy.SLAWarningHours)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("config: database.max_open_conns must be positive, got %d", c.Database.MaxOpenConns)
	}
	return nil
}
