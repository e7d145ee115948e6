// Package embedding 实现对外部文本向量 API（CLOVA Studio embedding 兼容接口）的调用。
//
// 一次 Embed 调用发送一个 HTTP 请求：
//   - 2xx：解析 result.embedding 数组
//   - 429：按统一的指数退避策略重试，超过 MaxRetries 返回 core.ErrRateLimitExceeded
//   - 其他状态码或网络错误：立即返回 core.ErrTransportFailure，不重试
//
// 客户端本身无跨调用状态，只有限速器与熔断器，可被多个 goroutine 并发使用。
package embedding

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/metrics"
)

const (
	HeaderAPIKey     = "X-NCP-CLOVASTUDIO-API-KEY"
	HeaderGatewayKey = "X-NCP-APIGW-API-KEY"
	HeaderRequestID  = "X-NCP-CLOVASTUDIO-REQUEST-ID"
)

// errRateLimited 标记单次尝试被限流（内部使用，不会返回给调用方）
var errRateLimited = errors.New("embedding: rate limited")

// Client 是文本向量 API 客户端，实现 core.Embedder。
type Client struct {
	cfg     Config
	http    *resty.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[attemptResult]
	logger  zerolog.Logger

	// sleep 可在测试中替换，避免真实等待
	sleep func(ctx context.Context, d time.Duration) error
}

type attemptResult struct {
	vector     []float64
	retryAfter time.Duration
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Result *struct {
		Embedding []float64 `json:"embedding"`
	} `json:"result"`
}

// NewClient 创建客户端。凭据与地址均来自 cfg，不读取任何全局状态。
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader(HeaderAPIKey, cfg.APIKey).
		SetHeader(HeaderGatewayKey, cfg.GatewayKey)

	c := &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With().Str("embedder", "clova").Logger(),
		sleep:  sleepContext,
	}

	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	if cfg.BreakerFailures > 0 {
		c.breaker = gobreaker.NewCircuitBreaker[attemptResult](gobreaker.Settings{
			Name:    "embedding-api",
			Timeout: cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			// 只有传输失败计入熔断，限流与解析失败说明服务端仍可达
			IsSuccessful: func(err error) bool {
				return err == nil || !core.IsTransportFailure(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("embedding circuit breaker state changed")
			},
		})
	}

	return c, nil
}

func (c *Client) Name() string { return "clova" }

// Embed 获取文本的向量。
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	delay := c.cfg.InitialDelay
	for attempt := 0; ; attempt++ {
		res, err := c.do(ctx, text)
		if err == nil {
			metrics.EmbeddingRequests.WithLabelValues("ok").Inc()
			return res.vector, nil
		}

		if !errors.Is(err, errRateLimited) {
			metrics.EmbeddingRequests.WithLabelValues(outcome(err)).Inc()
			return nil, err
		}

		if attempt >= c.cfg.MaxRetries {
			metrics.EmbeddingRequests.WithLabelValues("rate_limited").Inc()
			return nil, core.Wrap(core.ErrRateLimitExceeded, nil, "gave up after %d retries", attempt)
		}

		wait := delay
		if res.retryAfter > 0 {
			wait = res.retryAfter
		}
		metrics.EmbeddingRetries.WithLabelValues("rate_limited").Inc()
		c.logger.Debug().Int("attempt", attempt+1).Dur("wait", wait).Msg("embedding rate limited, backing off")

		if err := c.sleep(ctx, wait); err != nil {
			metrics.EmbeddingRequests.WithLabelValues("transport_failure").Inc()
			return nil, core.Wrap(core.ErrTransportFailure, err, "interrupted during backoff")
		}
		delay = c.cfg.nextDelay(delay)
	}
}

// do 执行一次请求（经过限速器与熔断器）。
func (c *Client) do(ctx context.Context, text string) (attemptResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return attemptResult{}, core.Wrap(core.ErrTransportFailure, err, "rate limiter")
		}
	}
	if c.breaker == nil {
		return c.attempt(ctx, text)
	}

	res, err := c.breaker.Execute(func() (attemptResult, error) {
		r, err := c.attempt(ctx, text)
		if errors.Is(err, errRateLimited) {
			// 限流结果需带出 Retry-After，这里不当作错误交给熔断器
			return r, nil
		}
		return r, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return attemptResult{}, core.Wrap(core.ErrTransportFailure, err, "circuit open")
	}
	if err == nil && res.vector == nil {
		return res, errRateLimited
	}
	return res, err
}

func (c *Client) attempt(ctx context.Context, text string) (attemptResult, error) {
	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return attemptResult{}, core.Wrap(core.ErrTransportFailure, err, "encode request")
	}

	requestID := c.cfg.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(HeaderRequestID, requestID).
		SetBody(body).
		Post(c.cfg.URL)
	if err != nil {
		return attemptResult{}, core.Wrap(core.ErrTransportFailure, err, "post %s", c.cfg.URL)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusTooManyRequests:
		return attemptResult{retryAfter: parseRetryAfter(resp.Header().Get("Retry-After"))}, errRateLimited
	case status < 200 || status >= 300:
		return attemptResult{}, core.Wrap(core.ErrTransportFailure, nil, "unexpected status %d", status)
	}

	vec, err := parseEmbedding(resp.Body())
	if err != nil {
		return attemptResult{}, err
	}
	return attemptResult{vector: vec}, nil
}

func parseEmbedding(body []byte) ([]float64, error) {
	var out embedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, core.Wrap(core.ErrParseFailure, err, "decode body")
	}
	if out.Result == nil || len(out.Result.Embedding) == 0 {
		return nil, core.Wrap(core.ErrParseFailure, nil, "result.embedding missing")
	}
	return out.Result.Embedding, nil
}

// parseRetryAfter 只支持秒数格式，其他格式忽略。
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func outcome(err error) string {
	switch {
	case core.IsParseFailure(err):
		return "parse_failure"
	case core.IsRateLimited(err):
		return "rate_limited"
	default:
		return "transport_failure"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ core.Embedder = (*Client)(nil)
