// Package transport 提供外部 HTTP 调用的共享客户端：有界重试、指数退避、熔断与限流。
//
// 重试只作用于幂等 GET，且只针对连接级失败与配置的 5xx 状态码；4xx 从不重试，
// 原样返回给调用方决定如何处理。这里不做缓存，缓存在各 Resolver 之上分层。
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rushteam/cinerank/pkg/logger"
	"github.com/rushteam/cinerank/pkg/metrics"
)

const (
	defaultTimeout      = 4 * time.Second
	defaultMaxAttempts  = 3
	defaultBaseDelay    = 200 * time.Millisecond
	defaultMaxDelay     = 2 * time.Second
	defaultMaxBodyBytes = 4 << 20
)

// DefaultRetryStatuses 是默认会被重试的服务端错误码。
var DefaultRetryStatuses = []int{
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// ErrCircuitOpen 表示熔断器打开，请求未发出。
var ErrCircuitOpen = errors.New("transport: circuit open")

// Config 是客户端配置，零值字段使用默认值。
type Config struct {
	// Name 是上游名称，用于熔断器与指标
	Name string `yaml:"name"`

	// Timeout 是单次尝试的超时
	Timeout time.Duration `yaml:"timeout"`

	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	RetryStatuses []int         `yaml:"retry_statuses"`

	// RateLimit 是每秒请求数上限，0 表示不限流
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	// 熔断：最近窗口内请求数 >= BreakerMinRequests 且失败率 >= BreakerFailureRatio 时打开
	BreakerMinRequests  uint32        `yaml:"breaker_min_requests"`
	BreakerFailureRatio float64       `yaml:"breaker_failure_ratio"`
	BreakerTimeout      time.Duration `yaml:"breaker_timeout"`
}

// Response 是一次成功往返的结果（状态码可能是 4xx）。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError 表示重试耗尽后仍是可重试的服务端错误码。
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: %s returned status %d", e.URL, e.StatusCode)
}

// Client 是带重试、熔断、限流的 HTTP 客户端，可被多个 worker 并发使用。
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*Response]
	retryOn    map[int]struct{}
	sleeper    func(context.Context, time.Duration) error
	logger     *zap.Logger
}

// Option 定制 Client。
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client（测试中可注入 httptest 客户端）。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithSleeper 替换退避等待（测试中可跳过真实等待）。
func WithSleeper(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleeper = fn
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger.OrNop(l)
	}
}

// New 创建客户端。
func New(cfg Config, opts ...Option) *Client {
	if cfg.Name == "" {
		cfg.Name = "upstream"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if len(cfg.RetryStatuses) == 0 {
		cfg.RetryStatuses = DefaultRetryStatuses
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = 10
	}
	if cfg.BreakerFailureRatio <= 0 {
		cfg.BreakerFailureRatio = 0.6
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		retryOn:    make(map[int]struct{}, len(cfg.RetryStatuses)),
		sleeper:    sleepContext,
		logger:     zap.NewNop(),
	}
	for _, code := range cfg.RetryStatuses {
		c.retryOn[code] = struct{}{}
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = c.newBreaker()
	return c
}

func (c *Client) newBreaker() *gobreaker.CircuitBreaker[*Response] {
	minRequests := c.cfg.BreakerMinRequests
	ratio := c.cfg.BreakerFailureRatio
	return gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        c.cfg.Name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     c.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		// 调用方主动取消（提前停止时放弃的 worker）不算上游失败
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				zap.String("upstream", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// Name 返回上游名称。
func (c *Client) Name() string { return c.cfg.Name }

// Get 发出幂等 GET，按配置重试。返回的 Response 可能是 4xx；
// 重试耗尽的 5xx 返回 *StatusError，连接级失败返回底层错误。
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	return c.execute(func() (*Response, error) {
		return c.getWithRetry(ctx, url, header)
	})
}

// Post 发出单次 POST，不重试（非幂等），仍受熔断与限流保护。
func (c *Client) Post(ctx context.Context, url string, header http.Header, body []byte) (*Response, error) {
	return c.execute(func() (*Response, error) {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.once(ctx, http.MethodPost, url, header, body)
		if err != nil {
			return nil, err
		}
		if c.retryableStatus(resp.StatusCode) {
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: url, Body: string(resp.Body)}
		}
		return resp, nil
	})
}

func (c *Client) execute(fn func() (*Response, error)) (*Response, error) {
	resp, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.BreakerRejections.WithLabelValues(c.cfg.Name).Inc()
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, c.cfg.Name)
	}
	return resp, err
}

func (c *Client) getWithRetry(ctx context.Context, url string, header http.Header) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.once(ctx, http.MethodGet, url, header, nil)
		switch {
		case err != nil:
			// 父 ctx 已结束：不再重试
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var reqErr *requestError
			if errors.As(err, &reqErr) {
				return nil, err
			}
			lastErr = err
		case c.retryableStatus(resp.StatusCode):
			lastErr = &StatusError{StatusCode: resp.StatusCode, URL: url, Body: string(resp.Body)}
		default:
			return resp, nil
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}
		delay := c.backoff(attempt)
		metrics.HTTPRetries.WithLabelValues(c.cfg.Name).Inc()
		c.logger.Debug("retrying upstream request",
			zap.String("upstream", c.cfg.Name),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		if err := c.sleeper(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// requestError 表示请求构建失败，重试没有意义。
type requestError struct{ err error }

func (e *requestError) Error() string { return "transport: build request: " + e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func (c *Client) once(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, url, reader)
	if err != nil {
		return nil, &requestError{err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: %s %s: %w", method, c.cfg.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) retryableStatus(code int) bool {
	_, ok := c.retryOn[code]
	return ok
}

// backoff: attempt 1 -> base, 2 -> base*2, 3 -> base*4 ...，上限 MaxDelay。
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		if delay > c.cfg.MaxDelay/2 {
			return c.cfg.MaxDelay
		}
		delay *= 2
	}
	if delay > c.cfg.MaxDelay {
		return c.cfg.MaxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
