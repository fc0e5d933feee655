package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the base server configuration.
type Config struct {
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	SQLiteDBPath string `yaml:"sqlite_db_path"`
	Environment  string `yaml:"environment"`

	// CredentialEncryptionKey protects vendor credentials at rest.
	// Must decode to exactly 32 bytes (AES-256).
	CredentialEncryptionKey string `yaml:"credential_encryption_key"`

	// OperatorTokenSecret signs operator JWTs for the /v1/ops surface.
	OperatorTokenSecret    string `yaml:"operator_token_secret"`
	OperatorTokenExpirySec int    `yaml:"operator_token_expiry_sec"`

	// RequireHMAC enforces request-signature verification on authenticated routes.
	RequireHMAC bool `yaml:"require_hmac"`

	// Vendor (EXEDRA) HTTP settings. Credentials themselves are per-client
	// and live encrypted in the database, not here.
	ExedraVerifySSL    bool `yaml:"exedra_verify_ssl"`
	ExedraTimeoutSec   int  `yaml:"exedra_timeout_sec"`
	CommissionTimeout  int  `yaml:"commission_timeout_sec"`
	CommissionInterval int  `yaml:"commission_interval_sec"`
	CommissionBatch    int  `yaml:"commission_batch"`

	// SMTP settings for failure alerts.
	SMTPServer   string `yaml:"smtp_server"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	EmailFrom    string `yaml:"email_from"`
}

// Load reads configuration from an optional YAML file (CONFIG_FILE) with
// environment variables taking precedence, then validates.
func Load() (Config, error) {
	cfg := Config{
		Host:                   "0.0.0.0",
		Port:                   "9000",
		SQLiteDBPath:           "./data/lumen-hub.db",
		Environment:            "development",
		OperatorTokenExpirySec: 3600,
		ExedraVerifySSL:        true,
		ExedraTimeoutSec:       30,
		CommissionTimeout:      180,
		CommissionInterval:     30,
		CommissionBatch:        10,
		SMTPPort:               587,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise fail at first use.
func (c Config) Validate() error {
	if len(c.CredentialEncryptionKey) != 32 {
		return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.CredentialEncryptionKey))
	}
	if len(strings.TrimSpace(c.OperatorTokenSecret)) < 32 {
		return fmt.Errorf("OPERATOR_TOKEN_SECRET must be at least 32 characters")
	}
	if c.CommissionBatch <= 0 {
		return fmt.Errorf("COMMISSION_BATCH must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Host = envString("HOST", cfg.Host)
	cfg.Port = envString("PORT", cfg.Port)
	cfg.SQLiteDBPath = envString("SQLITE_DB_PATH", cfg.SQLiteDBPath)
	cfg.Environment = envString("ENVIRONMENT", cfg.Environment)
	cfg.CredentialEncryptionKey = envString("CREDENTIAL_ENCRYPTION_KEY", cfg.CredentialEncryptionKey)
	cfg.OperatorTokenSecret = envString("OPERATOR_TOKEN_SECRET", cfg.OperatorTokenSecret)
	cfg.OperatorTokenExpirySec = envInt("OPERATOR_TOKEN_EXPIRY", cfg.OperatorTokenExpirySec)
	cfg.RequireHMAC = envBool("REQUIRE_HMAC", cfg.RequireHMAC)
	cfg.ExedraVerifySSL = envBool("EXEDRA_VERIFY_SSL", cfg.ExedraVerifySSL)
	cfg.ExedraTimeoutSec = envInt("EXEDRA_TIMEOUT_SEC", cfg.ExedraTimeoutSec)
	cfg.CommissionTimeout = envInt("COMMISSION_TIMEOUT_SEC", cfg.CommissionTimeout)
	cfg.CommissionInterval = envInt("COMMISSION_INTERVAL_SEC", cfg.CommissionInterval)
	cfg.CommissionBatch = envInt("COMMISSION_BATCH", cfg.CommissionBatch)
	cfg.SMTPServer = envString("SMTP_SERVER", cfg.SMTPServer)
	cfg.SMTPPort = envInt("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = envString("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = envString("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.EmailFrom = envString("EMAIL_FROM", cfg.EmailFrom)
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}
