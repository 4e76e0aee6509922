package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnMaxLife  time.Duration

	// Redis
	RedisURL string

	// Token
	JWTSecretKey       string
	RefreshSecretKey   string
	CheckinTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	ForgotPasswordTTL  time.Duration
	TokenBlacklistTTL  time.Duration
	BcryptCost         int

	// Mail
	ResendAPIKey string
	MailFrom     string
	MailFromName string

	// Check-in
	Location            *time.Location
	FirstTimerThreshold int

	// Rate Limit
	RateLimitGeneral int
	RateLimitAuth    int

	// Server
	ServerPort      string
	BaseURL         string
	ShutdownTimeout time.Duration

	// CORS
	CORSAllowedOrigin string
}

// Load はカレントディレクトリの.envを読み込んだ上で、環境変数からConfigを読み込む。
// .envが存在しない場合は環境変数のみを使う。既に設定済みの環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return loadFromEnv()
}

func loadFromEnv() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.RedisURL = required("REDIS_URL")
	cfg.JWTSecretKey = required("JWT_SECRET_KEY")
	cfg.RefreshSecretKey = required("REF_JWT_SECRET_KEY")
	cfg.CheckinTokenSecret = required("CHECKIN_TOKEN_SECRET")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.JWTSecretKey == cfg.RefreshSecretKey {
		return nil, errors.New("JWT_SECRET_KEY and REF_JWT_SECRET_KEY must differ")
	}

	tz := getEnvString("TIMEZONE", "Africa/Lagos")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}
	cfg.Location = loc

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLife = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.AccessTokenTTL = getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute)
	cfg.RefreshTokenTTL = getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour)
	cfg.ForgotPasswordTTL = getEnvDuration("FORGOT_PASSWORD_TTL", 120*time.Second)
	cfg.TokenBlacklistTTL = getEnvDuration("TOKEN_BLACKLIST_TTL", 24*time.Hour)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 12)
	cfg.ResendAPIKey = getEnvString("RESEND_API_KEY", "")
	cfg.MailFrom = getEnvString("MAIL_FROM", "no-reply@example.com")
	cfg.MailFromName = getEnvString("MAIL_FROM_NAME", "Church Check-in")
	cfg.FirstTimerThreshold = getEnvInt("FIRST_TIMER_THRESHOLD", 4)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
