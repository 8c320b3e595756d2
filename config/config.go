package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Admin   AdminConfig   `mapstructure:"admin"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Draw    DrawConfig    `mapstructure:"draw"`
	ETCD    ETCDConfig    `mapstructure:"etcd"`
	GraphQL GraphQLConfig `mapstructure:"graphql"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type AdminConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Master       string `mapstructure:"master"`
	Slave        string `mapstructure:"slave"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	// 数据存储Redis
	DataAddress string        `mapstructure:"data_address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// Redlock使用的Redis节点
	LockAddresses []string `mapstructure:"lock_addresses"`
}

type KafkaConfig struct {
	Brokers   []string `mapstructure:"brokers"`
	Topic     string   `mapstructure:"topic"`
	Partition int      `mapstructure:"partition"`
	GroupID   string   `mapstructure:"group_id"`
}

// DrawConfig 开奖相关配置
type DrawConfig struct {
	// SellOutDelay 售罄后到开奖之间的等待时间（留给争议/退款窗口）
	SellOutDelay time.Duration `mapstructure:"sell_out_delay"`
	// SweepInterval 状态巡检任务的执行间隔
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// PeriodRetryCount 期次编号冲突时的最大重试次数
	PeriodRetryCount int `mapstructure:"period_retry_count"`
	// LockProvider 分布式锁实现: etcd 或 redlock
	LockProvider   string        `mapstructure:"lock_provider"`
	LockTimeout    time.Duration `mapstructure:"lock_timeout"`
	LockRetryCount int           `mapstructure:"lock_retry_count"`
}

type ETCDConfig struct {
	Endpoints      []string      `mapstructure:"endpoints"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
}

type GraphQLConfig struct {
	Path string `mapstructure:"path"`
}

var AppConfig Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	applyDefaults(&AppConfig)

	return &AppConfig, nil
}

// applyDefaults 补齐未配置的关键参数
func applyDefaults(cfg *Config) {
	if cfg.Draw.SellOutDelay <= 0 {
		cfg.Draw.SellOutDelay = 180 * time.Second
	}
	if cfg.Draw.SweepInterval <= 0 {
		cfg.Draw.SweepInterval = 5 * time.Second
	}
	if cfg.Draw.PeriodRetryCount <= 0 {
		cfg.Draw.PeriodRetryCount = 5
	}
	if cfg.Draw.LockTimeout <= 0 {
		cfg.Draw.LockTimeout = 10 * time.Second
	}
	if cfg.Draw.LockRetryCount <= 0 {
		cfg.Draw.LockRetryCount = 3
	}
	if cfg.Draw.LockProvider == "" {
		cfg.Draw.LockProvider = "etcd"
	}
}
