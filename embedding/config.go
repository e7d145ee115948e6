package embedding

import (
	"time"

	"github.com/rushteam/embedrec/core"
)

// Config 是向量 API 客户端配置。
//
// 限流重试采用统一的指数退避：第 n 次重试前等待
// min(InitialDelay * Multiplier^(n-1), MaxDelay)，响应带 Retry-After 时以其为准。
// InitialDelay=5s、Multiplier=1 即等价于固定 5 秒间隔。
type Config struct {
	URL        string
	APIKey     string
	GatewayKey string
	// RequestID 为空时每次请求生成一个 UUID
	RequestID string

	Timeout time.Duration

	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// RequestsPerSecond 客户端限速，0 表示不限速
	RequestsPerSecond float64
	Burst             int

	// BreakerFailures 连续传输失败多少次后熔断，0 表示不启用熔断
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultConfig 返回默认配置（地址与凭据需调用方填写）。
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		MaxRetries:      5,
		InitialDelay:    2 * time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2,
		Burst:           1,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = d.BreakerTimeout
	}
	return c
}

// Validate 校验必填项。
func (c Config) Validate() error {
	if c.URL == "" {
		return core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeInvalidInput, "embedding: url is required")
	}
	return nil
}

func (c Config) nextDelay(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * c.Multiplier)
	if next > c.MaxDelay {
		return c.MaxDelay
	}
	return next
}
