package config

import "time"

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	MaxConns int32  `yaml:"max_conns"`
}

// StoreConfig 选择存储实现：postgres 或 sqlite
type StoreConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
}

type MQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// AIConfig 模型服务配置（Mistral OpenAI 兼容接口）
type AIConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Model            string        `yaml:"model"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	BreakerFailures  int           `yaml:"breaker_failures"`
	BreakerOpenDelay time.Duration `yaml:"breaker_open_delay"`
}

// GoogleConfig OAuth client used to refresh stored mailbox tokens.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type PipelineConfig struct {
	TokenLimit     int           `yaml:"token_limit"`
	BodyTokenLimit int           `yaml:"body_token_limit"`
	Encoding       string        `yaml:"encoding"`
	ChunkSize      int           `yaml:"chunk_size"`
	ChunkPause     time.Duration `yaml:"chunk_pause"`
	Workers        int           `yaml:"workers"`
	BatchDays      int           `yaml:"batch_days"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
	DedupTTL       time.Duration `yaml:"dedup_ttl"`
}

type OTelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}
