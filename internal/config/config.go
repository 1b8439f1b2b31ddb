package config

import (
	"fmt"
	"log"
	"time"

	"creditledger/internal/engine"
	"creditledger/internal/formula"
	"creditledger/internal/retry"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Credits CreditsConfig `mapstructure:"credits"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	AuditLog string `mapstructure:"audit_log"`
}

// CreditsConfig 积分引擎业务配置
// costs 的值既可以是数字（固定费用）也可以是公式字符串，
// 在 EngineConfig 里统一转换并校验
type CreditsConfig struct {
	Costs       map[string]map[string]interface{} `mapstructure:"costs"`
	Membership  MembershipConfig                  `mapstructure:"membership"`
	Retry       retry.Config                      `mapstructure:"retry"`
	Idempotency IdempotencyConfig                 `mapstructure:"idempotency"`
	Audit       AuditConfig                       `mapstructure:"audit"`
}

type MembershipConfig struct {
	Tiers        map[string]int     `mapstructure:"tiers"`
	Requirements map[string]string  `mapstructure:"requirements"`
	CreditsCaps  map[string]float64 `mapstructure:"credits_caps"`
}

type IdempotencyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	TTL     string `mapstructure:"ttl"`
}

type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}

// EngineConfig 把业务配置转换成引擎配置
// 费用表在这里完成原始值 → CostValue 的转换，引擎构造时再整体校验
func (c *CreditsConfig) EngineConfig() (engine.Config, error) {
	costs := make(formula.CostTable, len(c.Costs))
	for action, tiers := range c.Costs {
		entry := make(formula.ActionCosts, len(tiers))
		for tier, raw := range tiers {
			value, err := formula.ValueOf(raw)
			if err != nil {
				return engine.Config{}, fmt.Errorf("costs.%s.%s: %w", action, tier, err)
			}
			entry[tier] = value
		}
		costs[action] = entry
	}

	cfg := engine.Config{
		Costs: costs,
		Membership: engine.MembershipConfig{
			Tiers:        c.Membership.Tiers,
			Requirements: c.Membership.Requirements,
			CreditsCaps:  c.Membership.CreditsCaps,
		},
		Retry: c.Retry,
		Audit: engine.AuditConfig{Enabled: c.Audit.Enabled},
	}

	cfg.Idempotency.Enabled = c.Idempotency.Enabled
	if c.Idempotency.TTL != "" {
		ttl, err := time.ParseDuration(c.Idempotency.TTL)
		if err != nil {
			return engine.Config{}, fmt.Errorf("idempotency.ttl: %w", err)
		}
		cfg.Idempotency.TTL = ttl
	}

	return cfg, nil
}
