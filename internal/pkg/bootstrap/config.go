// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构。
// 加载顺序：默认值 → YAML 文件（CONFIG_FILE）→ 环境变量 → Nacos 配置中心
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
	Log   LogConfig   `yaml:"log"`
}

type AppConfig struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`

	// 账本
	FixedFee            uint64        `yaml:"fixed_fee"`
	GraceWindow         int64         `yaml:"grace_window"`
	StatusPolicy        string        `yaml:"status_policy"` // CEL 表达式，空串表示不限制
	CustodyAddress      string        `yaml:"custody_address"`
	RejectingRecipients []string      `yaml:"rejecting_recipients"`
	Store               string        `yaml:"store"` // memory | mysql
	RelayInterval       time.Duration `yaml:"relay_interval"`
	RelayBatchSize      int           `yaml:"relay_batch_size"`

	// 索引器
	ViewStore     string        `yaml:"view_store"` // memory | redis
	ConsumerGroup string        `yaml:"consumer_group"`
	LedgerURL     string        `yaml:"ledger_url"` // 未配置 Kafka 时轮询账本的 GET /audit
	PollInterval  time.Duration `yaml:"poll_interval"`
}

type InfraConfig struct {
	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Redis struct {
		Addrs    string `yaml:"addrs"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	MySQL struct {
		Addr     string `yaml:"addr"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"db_name"`
	} `yaml:"mysql"`
	Zookeeper struct {
		Servers        []string      `yaml:"servers"`
		SessionTimeout time.Duration `yaml:"session_timeout"`
	} `yaml:"zookeeper"`
	Nacos struct {
		Enabled   bool   `yaml:"enabled"`
		Addrs     string `yaml:"addrs"`
		Namespace string `yaml:"namespace"`
		Group     string `yaml:"group"`
	} `yaml:"nacos"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

var current atomic.Pointer[Config]

// DefaultConfig 返回单机可运行的默认配置（内存存储、不连接任何外部组件）
func DefaultConfig(serviceName string) *Config {
	cfg := &Config{}
	cfg.App.Name = serviceName
	cfg.App.Port = 8080
	cfg.App.FixedFee = 10_000_000_000_000
	cfg.App.GraceWindow = 300
	cfg.App.CustodyAddress = "0x00000000000000000000000000000000000c0570"
	cfg.App.Store = "memory"
	cfg.App.RelayInterval = time.Second
	cfg.App.RelayBatchSize = 100
	cfg.App.ViewStore = "memory"
	cfg.App.ConsumerGroup = "order-indexer"
	cfg.App.PollInterval = time.Second
	cfg.Infra.Kafka.Topic = "ledger-audit"
	cfg.Infra.Zookeeper.SessionTimeout = 10 * time.Second
	cfg.Infra.Nacos.Addrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Log.Level = "info"
	return cfg
}

// Load 按默认值 → YAML → 环境变量的顺序构造配置
func Load(serviceName string) (*Config, error) {
	cfg := DefaultConfig(serviceName)
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init 加载配置并设为全局当前配置
func Init(serviceName string) (*Config, error) {
	cfg, err := Load(serviceName)
	if err != nil {
		return nil, err
	}
	current.Store(cfg)
	return cfg, nil
}

// GetCurrentConfig 返回当前生效的配置。未初始化时返回默认配置。
func GetCurrentConfig() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig("")
}

// MergeRemote 把配置中心下发的 YAML 覆盖到当前配置上，返回新配置
func MergeRemote(content string) (*Config, error) {
	next := *GetCurrentConfig()
	// 切片字段需要深拷贝，避免与旧配置共享底层数组
	next.App.RejectingRecipients = append([]string(nil), next.App.RejectingRecipients...)
	next.Infra.Kafka.Brokers = append([]string(nil), next.Infra.Kafka.Brokers...)
	next.Infra.Zookeeper.Servers = append([]string(nil), next.Infra.Zookeeper.Servers...)
	if strings.TrimSpace(content) == "" {
		return &next, nil
	}
	if err := yaml.Unmarshal([]byte(content), &next); err != nil {
		return nil, fmt.Errorf("parse remote config: %w", err)
	}
	current.Store(&next)
	return &next, nil
}

func applyEnv(cfg *Config) error {
	var err error
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setList := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = splitList(v)
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			*dst, err = strconv.Atoi(v)
			err = wrapEnvErr(key, err)
		}
	}
	setInt64 := func(key string, dst *int64) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			*dst, err = strconv.ParseInt(v, 10, 64)
			err = wrapEnvErr(key, err)
		}
	}
	setUint64 := func(key string, dst *uint64) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			*dst, err = strconv.ParseUint(v, 10, 64)
			err = wrapEnvErr(key, err)
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			*dst, err = strconv.ParseBool(v)
			err = wrapEnvErr(key, err)
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			*dst, err = time.ParseDuration(v)
			err = wrapEnvErr(key, err)
		}
	}

	setInt("APP_PORT", &cfg.App.Port)
	setUint64("LEDGER_FIXED_FEE", &cfg.App.FixedFee)
	setInt64("LEDGER_GRACE_WINDOW", &cfg.App.GraceWindow)
	setString("LEDGER_STATUS_POLICY", &cfg.App.StatusPolicy)
	setString("LEDGER_CUSTODY_ADDRESS", &cfg.App.CustodyAddress)
	setList("LEDGER_REJECTING_RECIPIENTS", &cfg.App.RejectingRecipients)
	setString("LEDGER_STORE", &cfg.App.Store)
	setDuration("LEDGER_RELAY_INTERVAL", &cfg.App.RelayInterval)
	setInt("LEDGER_RELAY_BATCH_SIZE", &cfg.App.RelayBatchSize)
	setString("INDEXER_VIEW_STORE", &cfg.App.ViewStore)
	setString("INDEXER_CONSUMER_GROUP", &cfg.App.ConsumerGroup)
	setString("INDEXER_LEDGER_URL", &cfg.App.LedgerURL)
	setDuration("INDEXER_POLL_INTERVAL", &cfg.App.PollInterval)

	setString("JAEGER_ENDPOINT", &cfg.Infra.Jaeger.Endpoint)
	setList("KAFKA_BROKERS", &cfg.Infra.Kafka.Brokers)
	setString("KAFKA_TOPIC", &cfg.Infra.Kafka.Topic)
	setString("REDIS_ADDRS", &cfg.Infra.Redis.Addrs)
	setString("REDIS_PASSWORD", &cfg.Infra.Redis.Password)
	setString("MYSQL_ADDR", &cfg.Infra.MySQL.Addr)
	setString("MYSQL_USER", &cfg.Infra.MySQL.User)
	setString("MYSQL_PASSWORD", &cfg.Infra.MySQL.Password)
	setString("MYSQL_DB", &cfg.Infra.MySQL.DBName)
	setList("ZK_SERVERS", &cfg.Infra.Zookeeper.Servers)
	setDuration("ZK_SESSION_TIMEOUT", &cfg.Infra.Zookeeper.SessionTimeout)
	setBool("NACOS_ENABLED", &cfg.Infra.Nacos.Enabled)
	setString("NACOS_SERVER_ADDRS", &cfg.Infra.Nacos.Addrs)
	setString("NACOS_NAMESPACE", &cfg.Infra.Nacos.Namespace)
	setString("NACOS_GROUP", &cfg.Infra.Nacos.Group)

	setString("LOG_LEVEL", &cfg.Log.Level)
	setBool("LOG_PRETTY", &cfg.Log.Pretty)
	return err
}

func wrapEnvErr(key string, err error) error {
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
