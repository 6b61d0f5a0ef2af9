package config

import (
	"os"
	"strconv"
	"time"
)

// DBConfig 远端快照库（PostgreSQL）配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// Bound reports whether a remote store has been configured at all.
func (c DBConfig) Bound() bool {
	return c.Host != "" && c.Name != ""
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig holds the optional shared secret. An empty secret disables the
// credential check entirely.
type AuthConfig struct {
	Secret     string `yaml:"secret"`
	SecretHash string `yaml:"secret_hash"`
	CookieName string `yaml:"cookie_name"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port   string `yaml:"port"`
	UserID string `yaml:"user_id"`
}

// ProxyConfig bounds the calendar fetch proxy.
type ProxyConfig struct {
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	MaxBytes        int64  `yaml:"max_bytes"`
	UserAgent       string `yaml:"user_agent"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Timeout returns the fetch timeout, defaulting to 10s.
func (c ProxyConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SyncConfig is the device-side view of the remote sync endpoint.
type SyncConfig struct {
	BaseURL        string `yaml:"base_url"`
	Secret         string `yaml:"secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-call timeout for sync requests, defaulting to 15s.
func (c SyncConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DeviceConfig 设备端配置
type DeviceConfig struct {
	DataDir  string `yaml:"data_dir"`
	LogFile  string `yaml:"log_file"`
	Timezone string `yaml:"timezone"`
}

// Location resolves the configured timezone, falling back to time.Local.
func (c DeviceConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
	if mode := os.Getenv("DB_SSLMODE"); mode != "" {
		cfg.SSLMode = mode
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
	if exchange := os.Getenv("MQ_EXCHANGE"); exchange != "" {
		cfg.Exchange = exchange
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideAuthFromEnv 从环境变量覆盖共享密钥
func OverrideAuthFromEnv(cfg *AuthConfig) {
	if secret := os.Getenv("APP_PASSWORD"); secret != "" {
		cfg.Secret = secret
	}
	if hash := os.Getenv("APP_PASSWORD_HASH"); hash != "" {
		cfg.SecretHash = hash
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if userID := os.Getenv("USER_ID"); userID != "" {
		cfg.UserID = userID
	}
}

// OverrideSyncFromEnv 从环境变量覆盖同步客户端配置
func OverrideSyncFromEnv(cfg *SyncConfig) {
	if url := os.Getenv("SYNC_BASE_URL"); url != "" {
		cfg.BaseURL = url
	}
	if secret := os.Getenv("APP_PASSWORD"); secret != "" {
		cfg.Secret = secret
	}
}
