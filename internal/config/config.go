package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// YouTube Data API
	YouTubeAPIKey string

	// OpenAI (Whisper fallback)
	OpenAIAPIKey string

	// Acquisition pipeline
	DefaultCommittee   string
	WorkerCount        int
	AcquisitionDelay   time.Duration
	FallbackOnAnyError bool

	// Whisper fallback tuning
	WhisperMaxFileBytes int64
	WhisperChunkSeconds int
	WhisperAudioBitrate string
	DiscoveryMaxNew     int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		Env:                getEnvOrDefault("ENV", "development"),
		DatabaseURL:        mustGetEnv("DATABASE_URL"),
		RedisURL:           mustGetEnv("REDIS_URL"),
		YouTubeAPIKey:      mustGetEnv("YOUTUBE_API_KEY"),
		OpenAIAPIKey:       mustGetEnv("OPENAI_API_KEY"),
		DefaultCommittee:   getEnvOrDefault("DEFAULT_COMMITTEE", ""),
		WorkerCount:        getEnvAsIntOrDefault("WORKER_COUNT", 2),
		AcquisitionDelay:   time.Duration(getEnvAsIntOrDefault("ACQUISITION_DELAY_SECONDS", 10)) * time.Second,
		FallbackOnAnyError: getEnvAsBoolOrDefault("FALLBACK_ON_ANY_CAPTION_ERROR", false),

		WhisperMaxFileBytes: int64(getEnvAsIntOrDefault("WHISPER_MAX_FILE_MB", 25)) * 1024 * 1024,
		WhisperChunkSeconds: getEnvAsIntOrDefault("WHISPER_CHUNK_SECONDS", 1200),
		WhisperAudioBitrate: getEnvOrDefault("WHISPER_AUDIO_BITRATE", "96k"),
		DiscoveryMaxNew:     getEnvAsIntOrDefault("DISCOVERY_MAX_NEW", 100),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
