package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Port           int           `yaml:"port"`
	Mode           string        `yaml:"mode"` // dev | release
	RequestTimeout time.Duration `yaml:"request_timeout"`
	TrustedProxies []string      `yaml:"trusted_proxies"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"url"`
	Driver          string        `yaml:"driver"` // postgres | memory
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	ConnectAttempts int           `yaml:"connect_attempts"`
}

type EmailConfig struct {
	Provider       string        `yaml:"provider"` // smtp | sendgrid | log
	SMTPHost       string        `yaml:"smtp_host"`
	SMTPPort       int           `yaml:"smtp_port"`
	SMTPUser       string        `yaml:"smtp_user"`
	SMTPPassword   string        `yaml:"smtp_password"`
	SendGridAPIKey string        `yaml:"sendgrid_api_key"`
	FromEmail      string        `yaml:"from_email"`
	FromName       string        `yaml:"from_name"`
	Timeout        time.Duration `yaml:"timeout"`
}

type VerificationConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"`
	CodeExpiry       time.Duration `yaml:"code_expiry"`
	TokenExpiry      time.Duration `yaml:"token_expiry"`
	MaxAttempts      int           `yaml:"max_attempts"`
	Cooldown         time.Duration `yaml:"cooldown"`
	IPAttemptCap     int           `yaml:"ip_attempt_cap"`
	IPAttemptWindow  time.Duration `yaml:"ip_attempt_window"`
	IPHourlyIssueCap int           `yaml:"ip_hourly_issue_cap"`
	BcryptCost       int           `yaml:"bcrypt_cost"`
}

type CasesConfig struct {
	SubmissionCooldown time.Duration `yaml:"submission_cooldown"`
	MaxPerEmailPerDay  int           `yaml:"max_per_email_per_day"`
	MaxPerIPPerDay     int           `yaml:"max_per_ip_per_day"`
}

type RateLimitConfig struct {
	Backend   string `yaml:"backend"` // local | redis
	KeyPrefix string `yaml:"key_prefix"`
	LocalSize int    `yaml:"local_size"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type AdminConfig struct {
	APIKey string `yaml:"api_key"`
}

type FilesConfig struct {
	FontPath string `yaml:"font_path"`
}

type CleanupConfig struct {
	Schedule string `yaml:"schedule"`
	Enabled  bool   `yaml:"enabled"`
}

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Email        EmailConfig        `yaml:"email"`
	Verification VerificationConfig `yaml:"verification"`
	Cases        CasesConfig        `yaml:"cases"`
	RateLimit    RateLimitConfig    `yaml:"ratelimit"`
	Redis        RedisConfig        `yaml:"redis"`
	Log          LogConfig          `yaml:"log"`
	Admin        AdminConfig        `yaml:"admin"`
	Files        FilesConfig        `yaml:"files"`
	Cleanup      CleanupConfig      `yaml:"cleanup"`
}

// LoadConfig — для старта приложения: при ошибке паникуем.
func LoadConfig() *Config {
	path := os.Getenv("UNVEIL_CONFIG")
	if path == "" {
		path = DefaultPath
	}
	cfg, err := Load(path)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	return cfg
}

func Load(path string) (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Verification.JWTSecret, "UNVEIL_JWT_SECRET")
	setFromEnv(&c.Database.DSN, "UNVEIL_DATABASE_URL")
	setFromEnv(&c.Email.SMTPPassword, "UNVEIL_SMTP_PASSWORD")
	setFromEnv(&c.Email.SendGridAPIKey, "UNVEIL_SENDGRID_API_KEY")
	setFromEnv(&c.Admin.APIKey, "UNVEIL_ADMIN_KEY")
	setFromEnv(&c.Redis.Addr, "UNVEIL_REDIS_ADDR")
	setFromEnv(&c.Redis.Password, "UNVEIL_REDIS_PASSWORD")
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "dev"
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 15 * time.Second
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.QueryTimeout <= 0 {
		c.Database.QueryTimeout = 5 * time.Second
	}
	if c.Database.ConnectAttempts <= 0 {
		c.Database.ConnectAttempts = 5
	}

	if c.Email.Provider == "" {
		c.Email.Provider = "log"
	}
	if c.Email.Timeout <= 0 {
		c.Email.Timeout = 10 * time.Second
	}
	if c.Email.FromName == "" {
		c.Email.FromName = "Unveil"
	}

	v := &c.Verification
	if v.CodeExpiry <= 0 {
		v.CodeExpiry = 10 * time.Minute
	}
	if v.TokenExpiry <= 0 {
		v.TokenExpiry = 24 * time.Hour
	}
	if v.MaxAttempts <= 0 {
		v.MaxAttempts = 5
	}
	if v.Cooldown <= 0 {
		v.Cooldown = time.Minute
	}
	if v.IPAttemptCap <= 0 {
		v.IPAttemptCap = 10
	}
	if v.IPAttemptWindow <= 0 {
		v.IPAttemptWindow = time.Hour
	}
	if v.IPHourlyIssueCap <= 0 {
		v.IPHourlyIssueCap = 20
	}
	if v.BcryptCost == 0 {
		v.BcryptCost = 10
	}

	if c.Cases.SubmissionCooldown <= 0 {
		c.Cases.SubmissionCooldown = 5 * time.Minute
	}
	if c.Cases.MaxPerEmailPerDay <= 0 {
		c.Cases.MaxPerEmailPerDay = 5
	}
	if c.Cases.MaxPerIPPerDay <= 0 {
		c.Cases.MaxPerIPPerDay = 3
	}

	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "local"
	}
	if c.RateLimit.KeyPrefix == "" {
		c.RateLimit.KeyPrefix = "unveil:rl:"
	}
	if c.RateLimit.LocalSize <= 0 {
		c.RateLimit.LocalSize = 100_000
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}

	if c.Cleanup.Schedule == "" {
		c.Cleanup.Schedule = "0 3 * * *"
	}
}

// Validate: в release-режиме секрет JWT обязателен и не короче 32 байт.
func (c *Config) Validate() error {
	if c.Server.Mode != "dev" && len(c.Verification.JWTSecret) < 32 {
		return errors.New("verification.jwt_secret must be at least 32 bytes outside dev mode")
	}
	if c.Verification.JWTSecret == "" {
		return errors.New("verification.jwt_secret is required")
	}
	switch c.RateLimit.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("ratelimit.backend: unknown backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("redis.addr is required for the redis rate limit backend")
	}
	switch c.Email.Provider {
	case "smtp", "sendgrid", "log":
	default:
		return fmt.Errorf("email.provider: unknown provider %q", c.Email.Provider)
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return errors.New("database.url is required for the postgres driver")
	}
	return nil
}
