// Package config 加载进程配置：.env、可选配置文件与 ESTATEMGMT_* 环境变量
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，键中的 "." 替换为 "_"，如 ESTATEMGMT_EVENTSTORE_DRIVER
const EnvPrefix = "ESTATEMGMT"

// 事件存储驱动
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// 事件发布传输
const (
	TransportNone   = "none"
	TransportMemory = "memory"
	TransportRedis  = "redis"
	TransportNATS   = "nats"
)

// Config 进程配置
type Config struct {
	EventStore EventStoreConfig `mapstructure:"eventstore"`
	Publisher  PublisherConfig  `mapstructure:"publisher"`
	Log        LogConfig        `mapstructure:"log"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type EventStoreConfig struct {
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	Table           string `mapstructure:"table"`
	MongoDatabase   string `mapstructure:"mongo_database"`
	ConnectAttempts int    `mapstructure:"connect_attempts"` // 启动时连接存储与传输的最大尝试次数
}

type PublisherConfig struct {
	Transport    string `mapstructure:"transport"`
	RedisAddr    string `mapstructure:"redis_addr"`
	NATSURL      string `mapstructure:"nats_url"`
	StreamPrefix string `mapstructure:"stream_prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("eventstore.driver", DriverMemory)
	v.SetDefault("eventstore.dsn", "")
	v.SetDefault("eventstore.table", "event_store")
	v.SetDefault("eventstore.mongo_database", "estatemgmt")
	v.SetDefault("eventstore.connect_attempts", 3)
	v.SetDefault("publisher.transport", TransportNone)
	v.SetDefault("publisher.redis_addr", "localhost:6379")
	v.SetDefault("publisher.nats_url", "nats://localhost:4222")
	v.SetDefault("publisher.stream_prefix", "estatemgmt")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("tracing.enabled", false)
}

// Load 读取配置
//
// path 为空时只使用默认值与环境变量；当前目录下的 .env 存在时先载入，
// 已经存在的环境变量不会被覆盖。
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查驱动、传输及其必填连接参数
func (c *Config) Validate() error {
	c.EventStore.Driver = strings.ToLower(strings.TrimSpace(c.EventStore.Driver))
	c.Publisher.Transport = strings.ToLower(strings.TrimSpace(c.Publisher.Transport))

	switch c.EventStore.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres, DriverMongo:
		if c.EventStore.DSN == "" {
			return fmt.Errorf("eventstore.dsn is required for driver %q", c.EventStore.Driver)
		}
	default:
		return fmt.Errorf("unsupported eventstore.driver %q", c.EventStore.Driver)
	}
	if c.EventStore.Driver == DriverMongo && c.EventStore.MongoDatabase == "" {
		return fmt.Errorf("eventstore.mongo_database is required for driver %q", DriverMongo)
	}

	switch c.Publisher.Transport {
	case TransportNone, TransportMemory:
	case TransportRedis:
		if c.Publisher.RedisAddr == "" {
			return fmt.Errorf("publisher.redis_addr is required for transport %q", TransportRedis)
		}
	case TransportNATS:
		if c.Publisher.NATSURL == "" {
			return fmt.Errorf("publisher.nats_url is required for transport %q", TransportNATS)
		}
	default:
		return fmt.Errorf("unsupported publisher.transport %q", c.Publisher.Transport)
	}
	return nil
}
