package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const devJWTSecret = "dev-insecure-secret-change"

type config struct {
	AppEnv         string
	DBDSN          string
	AutoMigrate    bool
	JWTSecret      []byte
	ListenAddr     string
	UploadBase     string
	MaxUploadBytes int64

	GeminiAPIKey     string
	GeminiModel      string
	GeminiEmbedModel string
	VectorPath       string
	TopK             int
	MemoryTurns      int
	LLMTimeout       time.Duration
	LLMRatePerMin    int
}

// loadConfig reads the environment. A ./.env file is loaded first without
// overriding variables that are already set.
func loadConfig() config {
	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = devJWTSecret
	}
	return config{
		AppEnv:         envOr("APP_ENV", "production"),
		DBDSN:          os.Getenv("DB_DSN"),
		AutoMigrate:    envBool("DB_AUTO_MIGRATE", true),
		JWTSecret:      []byte(secret),
		ListenAddr:     envOr("LISTEN_ADDR", ":8081"),
		UploadBase:     envOr("UPLOAD_BASE", "uploads"),
		MaxUploadBytes: int64(envInt("MAX_UPLOAD_MB", 10)) << 20,

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      envOr("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiEmbedModel: envOr("GEMINI_EMBED_MODEL", "text-embedding-004"),
		VectorPath:       envOr("VECTOR_PATH", "vectorstore"),
		TopK:             envInt("RAG_TOP_K", 6),
		MemoryTurns:      envInt("CHAT_MEMORY_TURNS", 4),
		LLMTimeout:       envDuration("LLM_TIMEOUT", 30*time.Second),
		LLMRatePerMin:    envInt("LLM_RATE_PER_MIN", 60),
	}
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "false", "0", "no":
		return false
	case "true", "1", "yes":
		return true
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
