package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv           string
	AppName          string
	AppPort          string
	DatabasePath     string
	CORSAllowOrigins []string
	AIProvider       string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	ReplyModel       string
	ParserModel      string
	ReplyMaxTokens   int
	ParserMaxTokens  int
	AITimeoutSeconds int
	HistoryLimit     int
	JWTSecret        string
	JWTAlgorithm     string
}

func Load() Config {
	_ = godotenv.Load(".env")

	return Config{
		AppEnv:           getEnv("APP_ENV", "local"),
		AppName:          getEnv("APP_NAME", "CalorieBuddy API"),
		AppPort:          getEnv("APP_PORT", "3000"),
		DatabasePath:     getEnv("DATABASE_PATH", "caloriebuddy.db"),
		CORSAllowOrigins: getEnvCSV("CORS_ALLOW_ORIGINS", []string{"*"}),
		AIProvider:       strings.ToLower(getEnv("AI_PROVIDER", "openai")),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ReplyModel:       getEnv("OPENAI_REPLY_MODEL", "gpt-4o-mini"),
		ParserModel:      getEnv("OPENAI_PARSER_MODEL", "gpt-4o"),
		ReplyMaxTokens:   getEnvInt("REPLY_MAX_TOKENS", 200),
		ParserMaxTokens:  getEnvInt("PARSER_MAX_TOKENS", 5000),
		AITimeoutSeconds: getEnvInt("AI_TIMEOUT_SECONDS", 20),
		HistoryLimit:     getEnvInt("HISTORY_LIMIT", 25),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAlgorithm:     getEnv("JWT_ALGORITHM", "HS256"),
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.AppPort) == "" {
		return errors.New("APP_PORT is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return errors.New("DATABASE_PATH is required")
	}
	switch c.AIProvider {
	case "openai":
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return errors.New("OPENAI_API_KEY is required when AI_PROVIDER is openai")
		}
		if strings.TrimSpace(c.OpenAIBaseURL) == "" {
			return errors.New("OPENAI_BASE_URL is required when AI_PROVIDER is openai")
		}
	case "mock":
	default:
		return errors.New("AI_PROVIDER must be one of: openai, mock")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("HISTORY_LIMIT must be positive")
	}
	if secret := strings.TrimSpace(c.JWTSecret); secret != "" && len(secret) < 16 {
		return errors.New("JWT_SECRET is too short; use at least 16 characters")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvCSV(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, item := range parts {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
