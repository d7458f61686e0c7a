package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是 api 与 worker 共用的完整配置
type Config struct {
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	MQ       MQConfig       `yaml:"mq"`
	Server   ServerConfig   `yaml:"server"`
	JWT      JWTConfig      `yaml:"jwt"`
	AI       AIConfig       `yaml:"ai"`
	Google   GoogleConfig   `yaml:"google"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	OTel     OTelConfig     `yaml:"otel"`
}

// Load reads base.yaml + <env>.yaml from dir, resolves secrets and applies
// environment overrides.
func Load(env, dir string) (*Config, error) {
	cfgMap, err := LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}

	// map -> struct
	data, err := yaml.Marshal(cfgMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults 未在 yaml 中出现的字段使用这些值
func Defaults() *Config {
	return &Config{
		Log:    LogConfig{Level: "info"},
		Store:  StoreConfig{Driver: "postgres", SQLitePath: "mailsense.db"},
		MQ:     MQConfig{Exchange: "mailsense.events", Queue: "mailsense.requests", Prefetch: 10},
		Server: ServerConfig{Port: "8080"},
		AI: AIConfig{
			BaseURL:          "https://api.mistral.ai/v1/",
			Model:            "open-mistral-7b",
			Timeout:          60 * time.Second,
			MaxRetries:       2,
			BreakerFailures:  5,
			BreakerOpenDelay: 30 * time.Second,
		},
		Pipeline: PipelineConfig{
			TokenLimit:     30000,
			BodyTokenLimit: 5000,
			Encoding:       "cl100k_base",
			ChunkSize:      10,
			ChunkPause:     time.Second,
			Workers:        1,
			BatchDays:      15,
			LockTTL:        2 * time.Minute,
			DedupTTL:       time.Hour,
		},
		OTel: OTelConfig{ServiceName: "mailsense"},
	}
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if c.Pipeline.TokenLimit <= 0 || c.Pipeline.BodyTokenLimit <= 0 {
		return fmt.Errorf("pipeline token limits must be positive")
	}
	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk_size must be positive")
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 1
	}
	return nil
}
