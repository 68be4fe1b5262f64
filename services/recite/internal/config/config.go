package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	IdentityModeHeader = "header"
	IdentityModeJWT    = "jwt"
)

// ConfigPath is the default config location, overridable with RECITE_CONFIG.
var ConfigPath = configPathFromEnv("RECITE_CONFIG", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseURL"`
	LogLevel    string `yaml:"logLevel"`
	// Timezone is an IANA name; the check-in day starts at its midnight.
	Timezone string `yaml:"timezone"`

	IdentityMode string `yaml:"identityMode"`
	AuthJWKSURL  string `yaml:"authJwksUrl"`
	JWTIssuer    string `yaml:"jwtIssuer"`
	JWTAudience  string `yaml:"jwtAudience"`
	JWTLeeway    string `yaml:"jwtLeeway"`
	AdminToken   string `yaml:"adminToken"`

	RedisAddr                string   `yaml:"redisAddr"`
	RedisPassword            string   `yaml:"redisPassword"`
	ReportRateLimitPerMinute int      `yaml:"reportRateLimitPerMinute"`
	PingRateLimitPerMinute   int      `yaml:"pingRateLimitPerMinute"`
	ImportRateLimitPerMinute int      `yaml:"importRateLimitPerMinute"`
	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs"`

	ImportMaxParagraphRunes int   `yaml:"importMaxParagraphRunes"`
	MaxImportBytes          int64 `yaml:"maxImportBytes"`
}

// Load reads config from path (defaults to ConfigPath), applies environment
// overrides and defaults, then validates.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RECITE_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("RECITE_IDENTITY_MODE"); v != "" {
		cfg.IdentityMode = v
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		cfg.AuthJWKSURL = v
	}
	if v := os.Getenv("RECITE_ADMIN_TOKEN"); v != "" {
		cfg.AdminToken = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("RECITE_IMPORT_MAX_PARAGRAPH_RUNES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ImportMaxParagraphRunes = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.IdentityMode = strings.ToLower(strings.TrimSpace(cfg.IdentityMode))
	if cfg.IdentityMode == "" {
		cfg.IdentityMode = IdentityModeHeader
	}
	if cfg.ReportRateLimitPerMinute == 0 {
		cfg.ReportRateLimitPerMinute = 30
	}
	if cfg.PingRateLimitPerMinute == 0 {
		cfg.PingRateLimitPerMinute = 120
	}
	if cfg.ImportRateLimitPerMinute == 0 {
		cfg.ImportRateLimitPerMinute = 10
	}
	if cfg.ImportMaxParagraphRunes == 0 {
		cfg.ImportMaxParagraphRunes = 300
	}
	if cfg.MaxImportBytes == 0 {
		cfg.MaxImportBytes = 8 << 20
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	switch cfg.IdentityMode {
	case IdentityModeHeader:
	case IdentityModeJWT:
		if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
			return errors.New("config: authJwksUrl is required when identityMode is jwt")
		}
	default:
		return fmt.Errorf("config: identityMode must be %q or %q", IdentityModeHeader, IdentityModeJWT)
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("config: timezone: %w", err)
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return err
	}
	if cfg.ImportMaxParagraphRunes < 0 || cfg.MaxImportBytes < 0 {
		return errors.New("config: import limits must not be negative")
	}
	if cfg.ReportRateLimitPerMinute < 0 || cfg.PingRateLimitPerMinute < 0 || cfg.ImportRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must not be negative")
	}
	return nil
}

// Location resolves Timezone; empty means the process local zone.
func (c FileConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// ParseJWTLeeway parses a Go duration; empty means the verifier default.
func ParseJWTLeeway(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: jwtLeeway %q is not a valid duration", raw)
	}
	return d, nil
}

func configPathFromEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
