package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/embedding"
	"github.com/rushteam/embedrec/pkg/logging"
)

const (
	// ConfigPathEnvVar 指定配置文件路径
	ConfigPathEnvVar = "EMBEDREC_CONFIG"

	// EnvPrefix 是环境变量前缀：EMBEDREC_EMBEDDING_API_KEY -> embedding.api_key
	EnvPrefix = "EMBEDREC_"

	defaultConfigPath = "config.yaml"
)

// Config 是 embedrec 的应用配置。
// 加载顺序（后者覆盖前者）：内置默认值 → YAML 文件 → 环境变量。
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Store     StoreConfig     `koanf:"store"`
	Recommend RecommendConfig `koanf:"recommend"`
	Backfill  BackfillConfig  `koanf:"backfill"`
	Server    ServerConfig    `koanf:"server"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled off"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

// EmbeddingConfig 是外部文本向量 API 的配置。url 只在需要获取类目向量时必填。
type EmbeddingConfig struct {
	URL               string        `koanf:"url" validate:"omitempty,url"`
	APIKey            string        `koanf:"api_key"`
	GatewayKey        string        `koanf:"gateway_key"`
	RequestID         string        `koanf:"request_id"`
	Timeout           time.Duration `koanf:"timeout" validate:"gte=0"`
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0"`
	InitialDelay      time.Duration `koanf:"initial_delay" validate:"gte=0"`
	MaxDelay          time.Duration `koanf:"max_delay" validate:"gte=0"`
	Multiplier        float64       `koanf:"multiplier" validate:"gte=1"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int           `koanf:"burst" validate:"gte=0"`
	BreakerFailures   uint32        `koanf:"breaker_failures"`
	BreakerTimeout    time.Duration `koanf:"breaker_timeout" validate:"gte=0"`
}

// StoreConfig 配置目录存储与物品向量共享缓存。
//
// memory 与 badger 缓存只在当前进程内有效：其他进程（例如 embedrec backfill items）
// 写入的新平均向量在 CacheTTL 到期前不可见。需要跨进程失效时使用 redis，默认不缓存。
type StoreConfig struct {
	SQLitePath   string        `koanf:"sqlite_path" validate:"required"`
	CacheBackend string        `koanf:"cache_backend" validate:"oneof=memory redis badger none"`
	RedisAddr    string        `koanf:"redis_addr" validate:"required_if=CacheBackend redis"`
	RedisDB      int           `koanf:"redis_db" validate:"gte=0"`
	RedisPrefix  string        `koanf:"redis_prefix"`
	BadgerPath   string        `koanf:"badger_path"`
	CacheTTL     time.Duration `koanf:"cache_ttl" validate:"gte=0"`
}

type RecommendConfig struct {
	PoolSize        int     `koanf:"pool_size" validate:"min=1"`
	DefaultPageSize int     `koanf:"default_page_size" validate:"min=1"`
	MaxPageSize     int     `koanf:"max_page_size" validate:"gtefield=DefaultPageSize"`
	BoostWeight     float64 `koanf:"boost_weight" validate:"gte=0"`
	KeepExpr        string  `koanf:"keep_expr"`
	PipelineFile    string  `koanf:"pipeline_file"`
}

type BackfillConfig struct {
	// Workers 是后台队列的消费协程数
	Workers int `koanf:"workers" validate:"min=1"`
	// Parallelism 是单个任务内（类目/物品批次）的并发数
	Parallelism  int    `koanf:"parallelism" validate:"min=1"`
	BatchSize    int    `koanf:"batch_size" validate:"min=1"`
	QueueSize    int    `koanf:"queue_size" validate:"min=1"`
	CategoryCron string `koanf:"category_cron"`
	ItemCron     string `koanf:"item_cron"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`

	// TriggerRateLimit 是每个 IP 每分钟调用回填接口的上限，0 表示不限制
	TriggerRateLimit int      `koanf:"trigger_rate_limit" validate:"gte=0"`
	CORSOrigins      []string `koanf:"cors_origins"`
}

// ProcessLocalCache 判断物品向量缓存是否只在当前进程内有效。
func (c StoreConfig) ProcessLocalCache() bool {
	return c.CacheBackend == "memory" || c.CacheBackend == "badger"
}

// Default 返回内置默认配置。
func Default() *Config {
	ec := embedding.DefaultConfig()
	rc := &core.DefaultRankConfig{}
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Embedding: EmbeddingConfig{
			Timeout:         ec.Timeout,
			MaxRetries:      ec.MaxRetries,
			InitialDelay:    ec.InitialDelay,
			MaxDelay:        ec.MaxDelay,
			Multiplier:      ec.Multiplier,
			Burst:           ec.Burst,
			BreakerFailures: ec.BreakerFailures,
			BreakerTimeout:  ec.BreakerTimeout,
		},
		Store: StoreConfig{
			SQLitePath:   "embedrec.db",
			CacheBackend: "none",
			RedisDB:      0,
			RedisPrefix:  "embedrec:",
			CacheTTL:     10 * time.Minute,
		},
		Recommend: RecommendConfig{
			PoolSize:        rc.DefaultPoolSize(),
			DefaultPageSize: rc.DefaultPageSize(),
			MaxPageSize:     rc.MaxPageSize(),
			BoostWeight:     rc.DefaultBoostWeight(),
		},
		Backfill: BackfillConfig{
			Workers:     1,
			Parallelism: 4,
			BatchSize:   core.DefaultBatchSize,
			QueueSize:   64,
		},
		Server: ServerConfig{
			Addr:             ":8080",
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     60 * time.Second,
			ShutdownTimeout:  15 * time.Second,
			TriggerRateLimit: 30,
		},
	}
}

// Load 加载配置。path 为空时依次尝试 $EMBEDREC_CONFIG 与 ./config.yaml（不存在则跳过）。
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate 按 validate 标签校验配置。
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// ClientConfig 转换为 embedding.Client 的配置。
func (c EmbeddingConfig) ClientConfig() embedding.Config {
	return embedding.Config{
		URL:               c.URL,
		APIKey:            c.APIKey,
		GatewayKey:        c.GatewayKey,
		RequestID:         c.RequestID,
		Timeout:           c.Timeout,
		MaxRetries:        c.MaxRetries,
		InitialDelay:      c.InitialDelay,
		MaxDelay:          c.MaxDelay,
		Multiplier:        c.Multiplier,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		BreakerFailures:   c.BreakerFailures,
		BreakerTimeout:    c.BreakerTimeout,
	}
}

// LoggingConfig 转换为 logging.Config。
func (c LogConfig) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format}
}

// RankConfig 以配置值实现 core.RankConfig。
func (c RecommendConfig) RankConfig() core.RankConfig {
	return rankConfig{c: c}
}

type rankConfig struct {
	c RecommendConfig
}

func (r rankConfig) DefaultPoolSize() int        { return r.c.PoolSize }
func (r rankConfig) DefaultPageSize() int        { return r.c.DefaultPageSize }
func (r rankConfig) MaxPageSize() int            { return r.c.MaxPageSize }
func (r rankConfig) DefaultBoostWeight() float64 { return r.c.BoostWeight }

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// envTransformFunc 去掉前缀并把第一个下划线换成层级分隔符：
// EMBEDREC_STORE_SQLITE_PATH -> store.sqlite_path。
// EMBEDREC_CONFIG 本身不是配置项，返回空 key 以忽略。
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	return strings.Replace(key, "_", ".", 1)
}
