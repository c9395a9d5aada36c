package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// AppConfig 汇总运行服务所需的基础配置
// 远端镜像默认关闭，开启后本地写路径依旧不受远端可用性影响
type AppConfig struct {
	ListenAddr   string `env:"LISTEN_ADDR" envDefault:":8080"`
	GinMode      string `env:"GIN_MODE" envDefault:"release"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"habitto.db"`

	DefaultUserID string `env:"DEFAULT_USER_ID" envDefault:"local"`
	UnitReward    int    `env:"UNIT_REWARD" envDefault:"50"`

	RemoteEnabled    bool   `env:"REMOTE_ENABLED" envDefault:"false"`
	RedisAddr        string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword    string `env:"REDIS_PASSWORD"`
	MirrorQueueSize  int    `env:"MIRROR_QUEUE_SIZE" envDefault:"256"`
	MirrorMaxRetries uint64 `env:"MIRROR_MAX_RETRIES" envDefault:"5"`
}

// Load 从环境变量读取应用配置，缺失项使用安全默认值
// 本地开发时优先读取 .env 文件，生产环境直接注入环境变量
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err == nil {
		logrus.Info("loaded environment variables from .env file")
	}

	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config from environment: %w", err)
	}

	if cfg.UnitReward <= 0 {
		return nil, fmt.Errorf("UNIT_REWARD must be positive, got %d", cfg.UnitReward)
	}

	return cfg, nil
}
