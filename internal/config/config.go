package config

import (
	"os"
	"strconv"
	"time"

	"rps_duel/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	JWTSecret     string
	AllowedOrigin string

	// Room store backend. Empty RedisAddr means the in-memory store
	// (single node only).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Optional round history. Empty means history is disabled.
	DatabaseURL string

	LogLevel string
	LogJSON  bool

	// Protocol timers
	DisplayDelay       time.Duration
	ResponseClearDelay time.Duration

	// Rate limits
	APIRateLimit  int
	APIRateWindow time.Duration
}

// Загрузка конфига из env
func Load() *Config {
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	displayDelay := 3 * time.Second
	if v := os.Getenv("DISPLAY_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			displayDelay = time.Duration(n) * time.Millisecond
		}
	}

	responseClearDelay := 3 * time.Second
	if v := os.Getenv("RESET_CLEAR_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			responseClearDelay = time.Duration(n) * time.Millisecond
		}
	}

	apiRateLimit := 30
	if v := os.Getenv("API_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			apiRateLimit = n
		}
	}

	apiRateWindow := time.Minute
	if v := os.Getenv("API_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			apiRateWindow = time.Duration(n) * time.Second
		}
	}

	return &Config{
		AppPort:            port,
		JWTSecret:          jwtSecret,
		AllowedOrigin:      os.Getenv("ALLOWED_ORIGIN"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            redisDB,
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		LogLevel:           logLevel,
		LogJSON:            os.Getenv("LOG_JSON") == "true",
		DisplayDelay:       displayDelay,
		ResponseClearDelay: responseClearDelay,
		APIRateLimit:       apiRateLimit,
		APIRateWindow:      apiRateWindow,
	}
}
