package config

import (
	"bufio"
	"os"
	"strings"
)

const (
	EnvPostgresDSN   = "SERIESCACHE_POSTGRES_DSN"
	EnvRedisPassword = "SERIESCACHE_REDIS_PASSWORD"
)

// LoadEnv reads a .env file and sets environment variables.
// Missing files are ignored to keep startup flexible.
func LoadEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = unquote(strings.TrimSpace(val))
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}

	return scanner.Err()
}

func unquote(val string) string {
	if len(val) >= 2 {
		if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
			return val[1 : len(val)-1]
		}
	}
	return val
}

// applyEnv fills secrets that should not live in the YAML file.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvPostgresDSN)); v != "" {
		cfg.State.Postgres.DSN = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		cfg.State.Redis.Password = v
	}
}
