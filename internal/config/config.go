package config

import (
	"fmt"
	"strings"
	"time"

	"schoolnotify/internal/dedup"
	"schoolnotify/internal/service"
	"schoolnotify/internal/watcher"
	"schoolnotify/pkg/config"
)

// DispatchConfig durations are strings such as "5m"; see Timings.
type DispatchConfig struct {
	SessionMaxAge    string `yaml:"session_max_age"`
	Cooldown         string `yaml:"cooldown"`
	DedupRetention   string `yaml:"dedup_retention"`
	SweepInterval    string `yaml:"sweep_interval"`
	ReadTimeout      string `yaml:"read_timeout"`
	SendTimeout      string `yaml:"send_timeout"`
	ReattachDelay    string `yaml:"reattach_delay"`
	AdminRecipientID string `yaml:"admin_recipient_id"`
	AdminContainerID string `yaml:"admin_container_id"`
	DedupBackend     string `yaml:"dedup_backend"`
	QueueSize        int    `yaml:"queue_size"`
	LogBufferSize    int    `yaml:"log_buffer_size"`
}

type PushConfig struct {
	Driver                  string  `yaml:"driver"`
	RoutingKey              string  `yaml:"routing_key"`
	RatePerSecond           float64 `yaml:"rate_per_second"`
	Burst                   int     `yaml:"burst"`
	BreakerFailureThreshold int     `yaml:"breaker_failure_threshold"`
	BreakerOpenTimeout      string  `yaml:"breaker_open_timeout"`
}

type Config struct {
	Env      string              `yaml:"-"`
	DB       config.DBConfig     `yaml:"db"`
	MQ       config.MQConfig     `yaml:"mq"`
	Redis    config.RedisConfig  `yaml:"redis"`
	Server   config.ServerConfig `yaml:"server"`
	Otel     config.OtelConfig   `yaml:"otel"`
	Dispatch DispatchConfig      `yaml:"dispatch"`
	Push     PushConfig          `yaml:"push"`
}

// Timings is DispatchConfig with every duration parsed and defaulted.
type Timings struct {
	SessionMaxAge  time.Duration
	Cooldown       time.Duration
	DedupRetention time.Duration
	SweepInterval  time.Duration
	ReadTimeout    time.Duration
	SendTimeout    time.Duration
	ReattachDelay  time.Duration
}

func (d DispatchConfig) Timings() Timings {
	return Timings{
		SessionMaxAge:  config.ParseDuration(d.SessionMaxAge, service.DefaultSessionMaxAge),
		Cooldown:       config.ParseDuration(d.Cooldown, dedup.DefaultCooldown),
		DedupRetention: config.ParseDuration(d.DedupRetention, dedup.DefaultRetention),
		SweepInterval:  config.ParseDuration(d.SweepInterval, dedup.DefaultSweepInterval),
		ReadTimeout:    config.ParseDuration(d.ReadTimeout, 5*time.Second),
		SendTimeout:    config.ParseDuration(d.SendTimeout, 10*time.Second),
		ReattachDelay:  config.ParseDuration(d.ReattachDelay, watcher.DefaultReattachDelay),
	}
}

// BreakerOpenTimeoutDuration defaults to 30s.
func (p PushConfig) BreakerOpenTimeoutDuration() time.Duration {
	return config.ParseDuration(p.BreakerOpenTimeout, 30*time.Second)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8086"
	}
	if c.Dispatch.AdminRecipientID == "" {
		c.Dispatch.AdminRecipientID = "admin"
	}
	if c.Dispatch.AdminContainerID == "" {
		c.Dispatch.AdminContainerID = "inbox"
	}
	c.Dispatch.DedupBackend = strings.ToLower(strings.TrimSpace(c.Dispatch.DedupBackend))
	if c.Dispatch.DedupBackend == "" {
		c.Dispatch.DedupBackend = "memory"
	}
	if c.Dispatch.QueueSize <= 0 {
		c.Dispatch.QueueSize = watcher.DefaultQueueSize
	}
	if c.Dispatch.LogBufferSize <= 0 {
		c.Dispatch.LogBufferSize = 256
	}
	c.Push.Driver = strings.ToLower(strings.TrimSpace(c.Push.Driver))
	if c.Push.Driver == "" {
		c.Push.Driver = "log"
	}
	if c.Push.RoutingKey == "" {
		c.Push.RoutingKey = "push.requested"
	}
	if c.Otel.ServiceName == "" {
		c.Otel.ServiceName = "alert-dispatcher"
	}
}

func (c *Config) validate() error {
	switch c.Dispatch.DedupBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown dedup_backend %q", c.Dispatch.DedupBackend)
	}
	switch c.Push.Driver {
	case "mq", "log":
	default:
		return fmt.Errorf("unknown push driver %q", c.Push.Driver)
	}
	return nil
}

// Load reads CONFIG_DIR (default "config") for CONFIG_ENV (default "local").
func Load() (*Config, error) {
	return LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
}

func LoadFrom(env, configDir string) (*Config, error) {
	var cfg Config
	if err := config.LoadInto(env, configDir, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Env = env

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideServerFromEnv(&cfg.Server)

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
