package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config defines the session coordinator configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"COORDINATOR_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"COORDINATOR_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"COORDINATOR_REDIS_ADDR"`
		Password string `yaml:"password" env:"COORDINATOR_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"COORDINATOR_REDIS_DB"`
		TTL      int    `yaml:"ttlSeconds" env:"COORDINATOR_REDIS_TTL"`
	} `yaml:"redis"`
	MQTT struct {
		BrokerURL string `yaml:"brokerUrl" env:"COORDINATOR_MQTT_BROKER_URL"`
		ClientID  string `yaml:"clientId" env:"COORDINATOR_MQTT_CLIENT_ID"`
		Username  string `yaml:"username" env:"COORDINATOR_MQTT_USERNAME"`
		Password  string `yaml:"password" env:"COORDINATOR_MQTT_PASSWORD"`
	} `yaml:"mqtt"`
	Sessions struct {
		InactivityTimeoutSec int `yaml:"inactivityTimeoutSeconds" env:"COORDINATOR_INACTIVITY_TIMEOUT"`
		ReconcileIntervalSec int `yaml:"reconcileIntervalSeconds" env:"COORDINATOR_RECONCILE_INTERVAL"`
	} `yaml:"sessions"`
}

// Load reads configuration from the optional YAML file and the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8085"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.TTL = 86400
	cfg.MQTT.ClientID = "session-coordinator"
	cfg.Sessions.InactivityTimeoutSec = 60
	cfg.Sessions.ReconcileIntervalSec = 60

	if err := hydrate(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, errors.New("config: redis addr required")
	}
	if strings.TrimSpace(cfg.MQTT.BrokerURL) == "" {
		return nil, errors.New("config: mqtt broker url required")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8085"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// ActiveSessionTTL returns the redis mirror ttl as duration.
func (c *Config) ActiveSessionTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Redis.TTL) * time.Second
}

// InactivityTimeout returns the idle window after which a session closes.
func (c *Config) InactivityTimeout() time.Duration {
	if c.Sessions.InactivityTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Sessions.InactivityTimeoutSec) * time.Second
}

// ReconcileInterval returns the cadence of the stale session sweep.
func (c *Config) ReconcileInterval() time.Duration {
	if c.Sessions.ReconcileIntervalSec <= 0 {
		return time.Minute
	}
	return time.Duration(c.Sessions.ReconcileIntervalSec) * time.Second
}
