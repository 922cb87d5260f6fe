// Package cache 提供 Resolver 使用的本地 TTL 缓存，可选挂接 core.Store 作为二级缓存。
package cache

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/pkg/logger"
	"github.com/rushteam/cinerank/pkg/metrics"
)

// DefaultLoadTimeout 是共享加载的默认超时。
const DefaultLoadTimeout = 30 * time.Second

// Loader 在缓存未命中时计算值。cacheable 为 false 时结果只返回不写入缓存
// （例如传输失败，不应把短暂故障缓存一整天）。
type Loader[V any] func(ctx context.Context) (v V, cacheable bool, err error)

// TTL 是内存 TTL 缓存，采用 LRU 淘汰，并发安全。
// 同一 key 的并发未命中通过 singleflight 合并为一次加载（原子的 check-or-compute）。
type TTL[V any] struct {
	name string

	mu         sync.RWMutex
	entries    map[string]*entry[V]
	maxSize    int
	defaultTTL time.Duration

	group singleflight.Group

	// L2 是可选的二级存储（如 Redis），值以 JSON 编码
	L2     core.Store
	logger *zap.Logger

	now func() time.Time

	// loadTimeout 约束单次共享加载（含二级存储读写）
	loadTimeout time.Duration

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

type entry[V any] struct {
	value      V
	expireTime time.Time
	accessTime time.Time
}

// Option 定制 TTL 缓存。
type Option[V any] func(*TTL[V])

// WithStore 设置二级存储。
func WithStore[V any](s core.Store) Option[V] {
	return func(c *TTL[V]) { c.L2 = s }
}

func WithLogger[V any](l *zap.Logger) Option[V] {
	return func(c *TTL[V]) { c.logger = logger.OrNop(l) }
}

// WithClock 替换时间源（测试用）。
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *TTL[V]) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLoadTimeout 覆盖单次加载的超时，默认 DefaultLoadTimeout。
func WithLoadTimeout[V any](d time.Duration) Option[V] {
	return func(c *TTL[V]) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// WithCleanupInterval 启动后台过期清理；不设置时仅在访问和写入时惰性淘汰。
func WithCleanupInterval[V any](d time.Duration) Option[V] {
	return func(c *TTL[V]) {
		if d > 0 {
			c.cleanupTicker = time.NewTicker(d)
		}
	}
}

// New 创建 TTL 缓存。maxSize <= 0 表示不限容量。
func New[V any](name string, maxSize int, defaultTTL time.Duration, opts ...Option[V]) *TTL[V] {
	c := &TTL[V]{
		name:        name,
		entries:     make(map[string]*entry[V]),
		maxSize:     maxSize,
		defaultTTL:  defaultTTL,
		logger:      zap.NewNop(),
		now:         time.Now,
		loadTimeout: DefaultLoadTimeout,
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cleanupTicker != nil {
		go c.cleanup()
	}
	return c
}

func (c *TTL[V]) cleanup() {
	for {
		select {
		case <-c.cleanupTicker.C:
			c.cleanExpired()
		case <-c.stopCleanup:
			c.cleanupTicker.Stop()
			return
		}
	}
}

func (c *TTL[V]) cleanExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expireTime) {
			delete(c.entries, k)
		}
	}
}

// Get 读取未过期的值。
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	now := c.now()
	if now.After(e.expireTime) {
		delete(c.entries, key)
		return zero, false
	}
	e.accessTime = now
	return e.value, true
}

// Set 写入值；ttl <= 0 使用默认 TTL。
func (c *TTL[V]) Set(key string, v V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictLRU()
	}
	c.entries[key] = &entry[V]{value: v, expireTime: now.Add(ttl), accessTime: now}
}

// evictLRU 删除最久未访问的条目，调用方需持有写锁。
func (c *TTL[V]) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.accessTime.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.accessTime
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Len 返回当前条目数（含尚未清理的过期条目）。
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetOrLoad 依次查本地、二级存储，仍未命中时调用 load；
// 同一 key 的并发调用只会触发一次 load。
//
// load 与发起它的调用方解耦：某个调用方的 ctx 被取消只会让它自己提前返回，
// 共享同一次加载的其他调用方仍拿到结果。load 受 loadTimeout 约束。
func (c *TTL[V]) GetOrLoad(ctx context.Context, key string, load Loader[V]) (V, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// 等待期间可能已被其他调用写入
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		if v, ok := c.getL2(loadCtx, key); ok {
			metrics.CacheLookups.WithLabelValues(c.name, "l2_hit").Inc()
			c.Set(key, v, 0)
			return v, nil
		}
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		v, cacheable, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		if cacheable {
			c.Set(key, v, 0)
			c.setL2(loadCtx, key, v)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Val == nil {
			return zero, res.Err
		}
		return res.Val.(V), res.Err
	}
}

func (c *TTL[V]) l2Key(key string) string {
	return "cache:" + c.name + ":" + key
}

func (c *TTL[V]) getL2(ctx context.Context, key string) (V, bool) {
	var v V
	if c.L2 == nil {
		return v, false
	}
	data, err := c.L2.Get(ctx, c.l2Key(key))
	if err != nil {
		if !core.IsStoreNotFound(err) {
			c.logger.Debug("l2 cache read failed", zap.String("cache", c.name), zap.Error(err))
		}
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Debug("l2 cache decode failed", zap.String("cache", c.name), zap.Error(err))
		return v, false
	}
	return v, true
}

func (c *TTL[V]) setL2(ctx context.Context, key string, v V) {
	if c.L2 == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.L2.Set(ctx, c.l2Key(key), data, int(c.defaultTTL/time.Second)); err != nil {
		c.logger.Debug("l2 cache write failed", zap.String("cache", c.name), zap.Error(err))
	}
}

// Close 停止后台清理协程。
func (c *TTL[V]) Close() {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
}
