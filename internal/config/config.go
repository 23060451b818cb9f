package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 OpenDCA 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	Directory DirectoryConfig `json:"directory"`
	Notify    NotifyConfig    `json:"notify"`
	Market    MarketConfig    `json:"market"`
	Keeper    KeeperConfig    `json:"keeper"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 描述智能体账本的持久化后端。
type StorageConfig struct {
	AgentStore AgentStoreConfig `json:"agent_store"`
}

// AgentStoreConfig 支持 memory 与 mysql 两种驱动。
type AgentStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// DirectoryConfig 描述目录服务投影的后端。
type DirectoryConfig struct {
	Driver string      `json:"driver"`
	Redis  RedisConfig `json:"redis"`
}

// RedisConfig 保存 Redis 连接参数。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// NotifyConfig 描述事件通知的投递方式。
type NotifyConfig struct {
	Driver   string         `json:"driver"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 保存 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// MarketConfig 描述价格预言机与兑换路由的来源。
type MarketConfig struct {
	Driver     string `json:"driver"`
	RPCURL     string `json:"rpc_url"`
	AssetsFile string `json:"assets_file"`
}

// KeeperConfig 列出允许代为触发执行的账户。
type KeeperConfig struct {
	Allowed []string `json:"allowed"`
}

// LoggingConfig 透传给 pkg/logger。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.AgentStore.Driver == "" {
		c.Storage.AgentStore.Driver = "memory"
	}

	if c.Directory.Driver == "" {
		c.Directory.Driver = "memory"
	}
	if c.Directory.Redis.KeyPrefix == "" {
		c.Directory.Redis.KeyPrefix = "opendca"
	}

	if c.Notify.Driver == "" {
		c.Notify.Driver = "log"
	}
	if c.Notify.RabbitMQ.Queue == "" {
		c.Notify.RabbitMQ.Queue = "opendca.events"
	}

	if c.Market.Driver == "" {
		c.Market.Driver = "static"
	}
	if c.Market.AssetsFile != "" && !filepath.IsAbs(c.Market.AssetsFile) {
		c.Market.AssetsFile = filepath.Join(baseDir, c.Market.AssetsFile)
	}
}
