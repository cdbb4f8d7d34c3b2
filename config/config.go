package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"password-game/utils"
)

const devJWTSecret = "dev-secret"

type Config struct {
	Port           string
	DatabaseURL    string
	AllowedOrigins []string

	JWTSecret string
	TokenTTL  time.Duration

	GeminiAPIKey  string
	GeminiModel   string
	GeminiTimeout time.Duration

	RuleCheckRatePerMinute int
	RuleCheckBuffer        int
	RuleCheckRetention     time.Duration
	RuleCheckPruneInterval time.Duration

	R2 utils.R2Config

	LogLevel      string
	LogDir        string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnvString("PORT", "5200"),
		DatabaseURL:    getEnvString("DATABASE_URL", "sqlite:password-game.db"),
		AllowedOrigins: getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"}),

		JWTSecret: getEnvString("JWT_SECRET", devJWTSecret),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 2*time.Hour),

		GeminiAPIKey:  getEnvString("GEMINI_API_KEY", ""),
		GeminiModel:   getEnvString("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTimeout: time.Duration(getEnvInt("GEMINI_TIMEOUT_SECONDS", 30)) * time.Second,

		RuleCheckRatePerMinute: getEnvInt("RULE_CHECK_RATE_PER_MINUTE", 120),
		RuleCheckBuffer:        getEnvInt("RULE_CHECK_BUFFER", 256),
		RuleCheckRetention:     time.Duration(getEnvPositiveInt("RULE_CHECK_RETENTION_DAYS", 30)) * 24 * time.Hour,
		RuleCheckPruneInterval: getEnvDuration("RULE_CHECK_PRUNE_INTERVAL", time.Hour),

		R2: utils.R2Config{
			AccountID:       getEnvString("CLOUDFLARE_ACCOUNT_ID", ""),
			AccessKeyID:     getEnvString("R2_ACCESS_KEY_ID", ""),
			AccessKeySecret: getEnvString("R2_ACCESS_KEY_SECRET", ""),
			Bucket:          getEnvString("R2_BUCKET_NAME", ""),
			Endpoint:        getEnvString("R2_ENDPOINT", ""),
		},

		LogLevel:      getEnvString("LOG_LEVEL", "info"),
		LogDir:        getEnvString("LOG_DIR", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 14),
	}
}

// UsingDevSecret reports whether tokens are signed with the built-in secret.
func (c *Config) UsingDevSecret() bool {
	return c.JWTSecret == devJWTSecret
}

// SQLitePath returns the file path when DatabaseURL uses the sqlite: scheme.
func (c *Config) SQLitePath() (string, bool) {
	if path, ok := strings.CutPrefix(c.DatabaseURL, "sqlite:"); ok {
		return path, true
	}
	return "", false
}

func getEnvString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvPositiveInt is getEnvInt that also falls back on values below 1.
func getEnvPositiveInt(key string, defaultValue int) int {
	if v := getEnvInt(key, defaultValue); v > 0 {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
