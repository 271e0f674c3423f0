package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ludorush/ludorush/go/internal/engine"
)

// Config is the process configuration, loaded from config.yaml with
// environment overrides for deploy-time values.
type Config struct {
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	Wallet struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"wallet"`

	Session struct {
		AnimationDelayMs   int `yaml:"animation_delay_ms"`
		ChecksumIntervalMs int `yaml:"checksum_interval_ms"`
		HeartbeatSeconds   int `yaml:"heartbeat_seconds"`
		GraceSeconds       int `yaml:"disconnect_grace_seconds"`
	} `yaml:"session"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults plus env overrides are enough to run.
			applyEnv(&config)
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnv(&config)
	return &config, nil
}

func applyEnv(config *Config) {
	config.NATS.URL = getEnv("NATS_URL", firstNonEmpty(config.NATS.URL, "nats://localhost:4222"))
	config.Wallet.BaseURL = getEnv("WALLET_API_URL", firstNonEmpty(config.Wallet.BaseURL, "http://localhost:9090"))
	config.Wallet.APIKey = getEnv("WALLET_API_KEY", config.Wallet.APIKey)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// sessionConfig maps the file values onto the engine defaults.
func (c *Config) sessionConfig() engine.Config {
	cfg := engine.DefaultConfig()
	if c.Session.AnimationDelayMs > 0 {
		cfg.AnimationDelay = time.Duration(c.Session.AnimationDelayMs) * time.Millisecond
	}
	if c.Session.ChecksumIntervalMs > 0 {
		cfg.Reconcile.Interval = time.Duration(c.Session.ChecksumIntervalMs) * time.Millisecond
	}
	if c.Session.HeartbeatSeconds > 0 {
		cfg.HeartbeatInterval = time.Duration(c.Session.HeartbeatSeconds) * time.Second
		cfg.Presence.Interval = cfg.HeartbeatInterval
	}
	if c.Session.GraceSeconds > 0 {
		cfg.Forfeit.GraceWindow = time.Duration(c.Session.GraceSeconds) * time.Second
	}
	return cfg
}
