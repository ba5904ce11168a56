package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config 应用配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Whisper WhisperConfig `yaml:"whisper"`
	Storage StorageConfig `yaml:"storage"`
	Queue   QueueConfig   `yaml:"queue"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port          int    `yaml:"port"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
	UploadDir     string `yaml:"upload_dir"`
}

// WhisperConfig 识别引擎配置
// Language/ModelSize/Device 是新条目创建时的默认快照值
type WhisperConfig struct {
	Provider        string  `yaml:"provider"` // sidecar（本地 faster-whisper）或 openai
	SidecarURL      string  `yaml:"sidecar_url"`
	APIKey          string  `yaml:"api_key"`
	Language        string  `yaml:"language"`
	ModelSize       string  `yaml:"model_size"`
	Device          string  `yaml:"device"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	MinAudioSeconds float64 `yaml:"min_audio_seconds"` // 超过该时长却识别出 0 个片段视为失败
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type     string      `yaml:"type"` // memory 或 postgres
	Postgres string      `yaml:"postgres"`
	Redis    RedisConfig `yaml:"redis"`
}

// RedisConfig Redis 读缓存配置（可选）
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// QueueConfig 队列配置
type QueueConfig struct {
	Type       string         `yaml:"type"` // memory 或 rabbitmq
	BufferSize int            `yaml:"buffer_size"`
	Workers    int            `yaml:"workers"`
	RabbitMQ   RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig RabbitMQ 配置
type RabbitMQConfig struct {
	URL       string `yaml:"url"`
	QueueName string `yaml:"queue_name"`
	Prefetch  int    `yaml:"prefetch"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %v", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %v", err)
	}

	return &config, nil
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxUploadSize <= 0 {
		c.Server.MaxUploadSize = 200 * 1024 * 1024
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = "uploads"
	}

	switch c.Whisper.Provider {
	case "":
		c.Whisper.Provider = "sidecar"
	case "sidecar", "openai":
	default:
		return fmt.Errorf("不支持的识别引擎: %s", c.Whisper.Provider)
	}
	if c.Whisper.Provider == "openai" && c.Whisper.APIKey == "" {
		return fmt.Errorf("使用 openai 识别引擎时必须设置 api_key")
	}
	if c.Whisper.SidecarURL == "" {
		c.Whisper.SidecarURL = "http://localhost:8387"
	}
	if c.Whisper.Language == "" {
		c.Whisper.Language = "ja"
	}
	if c.Whisper.ModelSize == "" {
		c.Whisper.ModelSize = "base"
	}
	if c.Whisper.Device == "" {
		c.Whisper.Device = "cpu"
	}
	if c.Whisper.TimeoutSeconds <= 0 {
		c.Whisper.TimeoutSeconds = 600
	}
	if c.Whisper.MinAudioSeconds <= 0 {
		c.Whisper.MinAudioSeconds = 1.0
	}

	switch c.Storage.Type {
	case "":
		c.Storage.Type = "memory"
	case "memory", "postgres":
	default:
		return fmt.Errorf("不支持的存储类型: %s", c.Storage.Type)
	}
	if c.Storage.Type == "postgres" && c.Storage.Postgres == "" {
		return fmt.Errorf("使用 postgres 存储时必须设置连接串")
	}
	if c.Storage.Redis.Enabled {
		if c.Storage.Redis.Addr == "" {
			c.Storage.Redis.Addr = "localhost:6379"
		}
		if c.Storage.Redis.TTLMinutes <= 0 {
			c.Storage.Redis.TTLMinutes = 60
		}
	}

	switch c.Queue.Type {
	case "":
		c.Queue.Type = "memory"
	case "memory", "rabbitmq":
	default:
		return fmt.Errorf("不支持的队列类型: %s", c.Queue.Type)
	}
	if c.Queue.BufferSize <= 0 {
		c.Queue.BufferSize = 100
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.Type == "rabbitmq" {
		if c.Queue.RabbitMQ.URL == "" {
			return fmt.Errorf("使用 rabbitmq 队列时必须设置 url")
		}
		if c.Queue.RabbitMQ.QueueName == "" {
			c.Queue.RabbitMQ.QueueName = "audioscribe.transcribe"
		}
		if c.Queue.RabbitMQ.Prefetch <= 0 {
			c.Queue.RabbitMQ.Prefetch = c.Queue.Workers
		}
	}

	return nil
}
