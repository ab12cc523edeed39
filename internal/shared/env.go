package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override values from config.toml.
const (
	EnvAPIEndpoint    = "MUSICTIME_API_ENDPOINT"
	EnvDatabasePath   = "MUSICTIME_DATABASE_PATH"
	EnvStorageDriver  = "MUSICTIME_STORAGE_DRIVER"
	EnvRedisURL       = "MUSICTIME_REDIS_URL"
	EnvRefreshDelayMS = "MUSICTIME_REFRESH_DELAY_MS"
)

// LoadEnv loads variables from the .env file at path (if present) into the process
// environment and applies any MUSICTIME_* overrides to config.
//
// A missing .env file is not an error. Variables already set in the environment win over the file.
func LoadEnv(path string, config *Config) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	applyEnv(config)
	return nil
}

func applyEnv(config *Config) {
	if v := os.Getenv(EnvAPIEndpoint); v != "" {
		config.Backend.APIEndpoint = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		config.Database.Path = v
	}
	if v := os.Getenv(EnvStorageDriver); v != "" {
		config.Storage.Driver = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		config.Storage.RedisURL = v
	}
	if v := os.Getenv(EnvRefreshDelayMS); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			config.Integration.RefreshDelayMS = ms
		}
	}
}
