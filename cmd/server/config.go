package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// fileConfig mirrors the optional YAML configuration file. Flags take
// precedence over environment variables, which take precedence over the file.
type fileConfig struct {
	Addr          string   `yaml:"addr"`
	Mode          string   `yaml:"mode"`
	Data          string   `yaml:"data"`
	Files         string   `yaml:"files"`
	StorageDriver string   `yaml:"storageDriver"`
	PostgresDSN   string   `yaml:"postgresDSN"`
	UploadStore   string   `yaml:"uploadStore"`
	UploadTTL     string   `yaml:"uploadTTL"`
	RedisAddr     string   `yaml:"redisAddr"`
	RedisUsername string   `yaml:"redisUsername"`
	RedisPassword string   `yaml:"redisPassword"`
	RedisDB       int      `yaml:"redisDB"`
	TLSCert       string   `yaml:"tlsCert"`
	TLSKey        string   `yaml:"tlsKey"`
	LogLevel      string   `yaml:"logLevel"`
	LogFormat     string   `yaml:"logFormat"`
	CORSOrigins   []string `yaml:"corsOrigins"`
	GlobalRPS     float64  `yaml:"rateGlobalRPS"`
	GlobalBurst   int      `yaml:"rateGlobalBurst"`
	UploadLimit   int      `yaml:"rateUploadLimit"`
	UploadWindow  string   `yaml:"rateUploadWindow"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func modeValue(flagMode, envMode, fileMode string) string {
	mode := strings.ToLower(firstNonEmpty(flagMode, envMode, fileMode))
	if mode == "" {
		mode = "development"
	}
	return mode
}

func resolveListenAddr(flagValue, envAddr, fileAddr, mode string) string {
	listenAddr := firstNonEmpty(flagValue, envAddr, fileAddr)
	if listenAddr == "" {
		if mode == "production" {
			return ":80"
		}
		return ":8080"
	}
	return listenAddr
}

func resolveStorageDriver(flagValue, envValue, fileValue, postgresDSN string) (string, error) {
	driver := strings.ToLower(firstNonEmpty(flagValue, envValue, fileValue))
	if driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func validateProductionDatastore(driver, dsn string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return errors.New("postgres storage selected without DSN")
	}
	return nil
}

func resolveUploadStore(flagValue, envValue, fileValue, redisAddr string) (string, error) {
	driver := strings.ToLower(firstNonEmpty(flagValue, envValue, fileValue))
	switch driver {
	case "":
		if strings.TrimSpace(redisAddr) != "" {
			return "redis", nil
		}
		return "memory", nil
	case "memory", "redis":
		return driver, nil
	default:
		return "", fmt.Errorf("unsupported upload store driver %q", driver)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveFloat(flagValue float64, envKey string, fileValue float64) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return fileValue
}

func resolveInt(flagValue int, envKey string, fileValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return fileValue
}

func resolveDuration(flagValue time.Duration, envKey, fileValue string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if raw := strings.TrimSpace(fileValue); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil {
			return value
		}
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
