package config

import (
	"fmt"
	"os"
	"path/filepath"

	"daycard/pkg/config"
)

// Server is the sync/proxy server's configuration.
type Server struct {
	DB     config.DBConfig     `yaml:"db"`
	Redis  config.RedisConfig  `yaml:"redis"`
	MQ     config.MQConfig     `yaml:"mq"`
	Auth   config.AuthConfig   `yaml:"auth"`
	Server config.ServerConfig `yaml:"server"`
	Proxy  config.ProxyConfig  `yaml:"proxy"`
}

// Device is the configuration of the planner CLI and its agent.
type Device struct {
	Sync       config.SyncConfig   `yaml:"sync"`
	Auth       config.AuthConfig   `yaml:"auth"`
	Device     config.DeviceConfig `yaml:"device"`
	Calendar   CalendarConfig      `yaml:"calendar"`
	PushPeriod string              `yaml:"push_period"`
	DigestAt   string              `yaml:"digest_at"`
}

// CalendarConfig controls device-side ingestion.
type CalendarConfig struct {
	PastDays   int `yaml:"past_days"`
	FutureDays int `yaml:"future_days"`
}

// Load reads the server configuration for env from dir and applies the
// environment overrides.
func Load(env, dir string) (*Server, error) {
	merged, err := config.LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}

	cfg := Server{
		Server: config.ServerConfig{Port: ":8080"},
		Proxy:  config.ProxyConfig{RateLimitPerMin: 60},
	}
	if err := config.Decode(merged, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideAuthFromEnv(&cfg.Auth)
	config.OverrideServerFromEnv(&cfg.Server)
	return &cfg, nil
}

// LoadDevice reads the device configuration. An empty data dir resolves to
// ~/.daycard.
func LoadDevice(env, dir string) (*Device, error) {
	merged, err := config.LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}

	cfg := Device{
		Calendar:   CalendarConfig{PastDays: 1, FutureDays: 7},
		PushPeriod: "@every 1m",
	}
	if err := config.Decode(merged, &cfg); err != nil {
		return nil, err
	}

	config.OverrideSyncFromEnv(&cfg.Sync)
	if dataDir := os.Getenv("DAYCARD_DATA_DIR"); dataDir != "" {
		cfg.Device.DataDir = dataDir
	}
	if cfg.Device.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home dir: %w", err)
		}
		cfg.Device.DataDir = filepath.Join(home, ".daycard")
	}
	return &cfg, nil
}

// DBPath is the local SQLite file inside the data dir.
func (d *Device) DBPath() string {
	return filepath.Join(d.Device.DataDir, "planner.db")
}
