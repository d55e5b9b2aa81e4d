package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Cache         CacheConfig         `mapstructure:"cache"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Forwarding    ForwardingConfig    `mapstructure:"forwarding"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Workers       WorkersConfig       `mapstructure:"workers"`
	Retention     RetentionConfig     `mapstructure:"retention"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type CacheConfig struct {
	WebhookTTL time.Duration `mapstructure:"webhook_ttl"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// IngestConfig controls the public receiving endpoint.
type IngestConfig struct {
	MountPrefix  string `mapstructure:"mount_prefix"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

type ForwardingConfig struct {
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`
	TunnelHost      string        `mapstructure:"tunnel_host"`
	MaxResponseBody int64         `mapstructure:"max_response_body"`
	UserAgent       string        `mapstructure:"user_agent"`
}

type NotificationsConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type WorkersConfig struct {
	PoolSize  int `mapstructure:"pool_size"`
	QueueSize int `mapstructure:"queue_size"`
}

type RetentionConfig struct {
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	ExpiryInterval time.Duration `mapstructure:"expiry_interval"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("database.path", "data/hookrelay.db")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("cache.webhook_ttl", time.Minute)
	v.SetDefault("jwt.issuer", "hookrelay")
	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)
	v.SetDefault("ingest.mount_prefix", "/webhook")
	v.SetDefault("ingest.max_body_bytes", 10<<20)
	v.SetDefault("forwarding.default_timeout", 30*time.Second)
	v.SetDefault("forwarding.tunnel_host", "localhost")
	v.SetDefault("forwarding.max_response_body", 64<<10)
	v.SetDefault("forwarding.user_agent", "hookrelay/1.0")
	v.SetDefault("notifications.timeout", 10*time.Second)
	v.SetDefault("workers.pool_size", 8)
	v.SetDefault("workers.queue_size", 1024)
	v.SetDefault("retention.sweep_interval", time.Hour)
	v.SetDefault("retention.expiry_interval", 5*time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("telemetry.service_name", "hookrelay")
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
