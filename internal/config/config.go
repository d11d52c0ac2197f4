// Package config はクライアント全体の設定管理を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend API
	APIBaseURL    string
	APITimeout    time.Duration
	UploadTimeout time.Duration

	// Local state
	StateDBPath string

	// AI Assist
	AssistPerMinute int
	AssistBurst     int

	// Inspiration
	InspirationTimeout         time.Duration
	InspirationMaxSize         int64
	InspirationPerSource       int
	InspirationRefreshInterval time.Duration
	InspirationMaxConcurrent   int

	// Status server
	StatusPort string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envファイルがあれば先に読み込む（無ければ無視）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envファイルはローカル開発用。存在しなくてもエラーにしない。
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = os.Getenv("SPARKLE_API_BASE_URL")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "SPARKLE_API_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.APITimeout = getEnvDuration("SPARKLE_API_TIMEOUT", 10*time.Second)
	cfg.UploadTimeout = getEnvDuration("SPARKLE_UPLOAD_TIMEOUT", 60*time.Second)
	cfg.StateDBPath = getEnvString("SPARKLE_STATE_DB_PATH", "sparkle.db")
	cfg.AssistPerMinute = getEnvInt("SPARKLE_ASSIST_PER_MINUTE", 10)
	cfg.AssistBurst = getEnvInt("SPARKLE_ASSIST_BURST", 3)
	cfg.InspirationTimeout = getEnvDuration("SPARKLE_INSPIRATION_TIMEOUT", 10*time.Second)
	cfg.InspirationMaxSize = getEnvInt64("SPARKLE_INSPIRATION_MAX_SIZE", 5242880)
	cfg.InspirationPerSource = getEnvInt("SPARKLE_INSPIRATION_PER_SOURCE", 3)
	cfg.InspirationRefreshInterval = getEnvDuration("SPARKLE_INSPIRATION_REFRESH_INTERVAL", 15*time.Minute)
	cfg.InspirationMaxConcurrent = getEnvInt("SPARKLE_INSPIRATION_MAX_CONCURRENT", 3)
	cfg.StatusPort = getEnvString("SPARKLE_STATUS_PORT", "8090")

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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
