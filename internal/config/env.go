package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env files from the working directory and the user
// config directory. Variables already set in the environment win.
func LoadEnvFiles() error {
	envPaths := []string{
		"./.env",
	}

	if home, err := os.UserHomeDir(); err == nil {
		envPaths = append(envPaths,
			filepath.Join(home, ".config", appName, ".env"),
		)
	}

	var existing []string
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	return godotenv.Load(existing...)
}

func GetEnvWithFallback(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func GetEnvDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

var envAliases = map[string][]string{
	"DDTSCAN_SECURITY_JWT_SECRET":   {"DDTSCAN_JWT_SECRET", "JWT_SECRET"},
	"DDTSCAN_STORAGE_POSTGRES_DSN":  {"DATABASE_URL"},
	"DDTSCAN_ARCHIVE_S3_ACCESS_KEY": {"AWS_ACCESS_KEY_ID"},
	"DDTSCAN_ARCHIVE_S3_SECRET_KEY": {"AWS_SECRET_ACCESS_KEY"},
	"DDTSCAN_ARCHIVE_S3_REGION":     {"AWS_REGION", "AWS_DEFAULT_REGION"},
}

func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	if aliases, ok := envAliases[canonicalKey]; ok {
		return GetEnvWithFallback(aliases...)
	}

	return ""
}

func GetRequiredEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", &MissingEnvError{Key: key}
	}
	return val, nil
}

type MissingEnvError struct {
	Key string
}

func (e *MissingEnvError) Error() string {
	return "required environment variable not set: " + e.Key
}
