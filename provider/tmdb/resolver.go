package tmdb

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/cinerank/cache"
	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/pkg/logger"
)

const (
	// DefaultAvailabilityTTL 可用性变化缓慢，按天缓存
	DefaultAvailabilityTTL = 24 * time.Hour
	DefaultLinksTTL        = 24 * time.Hour
	defaultCacheSize       = 10000
)

var errNoRegionData = errors.New("tmdb: no offers for region")

// availabilityRecord 是缓存中的可用性条目；Found=false 表示该区域没有数据。
type availabilityRecord struct {
	Found        bool              `json:"found"`
	Availability core.Availability `json:"availability"`
}

// AvailabilityResolver 查询单个作品在固定区域的订阅/租赁渠道，结果按 (id, type) 缓存。
// 任何失败都返回非 OK 的 Outcome，不会中断批量富化。
type AvailabilityResolver struct {
	client *Client
	region string
	cache  *cache.TTL[availabilityRecord]
	logger *zap.Logger
}

// ResolverOption 定制 Resolver。
type ResolverOption func(*resolverOptions)

type resolverOptions struct {
	ttl     time.Duration
	size    int
	cleanup time.Duration
	l2      core.Store
	logger  *zap.Logger
}

// WithTTL 覆盖缓存 TTL。
func WithTTL(ttl time.Duration) ResolverOption {
	return func(o *resolverOptions) { o.ttl = ttl }
}

// WithCacheSize 覆盖本地缓存容量。
func WithCacheSize(n int) ResolverOption {
	return func(o *resolverOptions) { o.size = n }
}

// WithSharedStore 挂接二级缓存（如 Redis），多实例共享。
func WithSharedStore(s core.Store) ResolverOption {
	return func(o *resolverOptions) { o.l2 = s }
}

// WithCleanupInterval 开启本地缓存的后台过期清理，需调用 Close 停止。
func WithCleanupInterval(d time.Duration) ResolverOption {
	return func(o *resolverOptions) { o.cleanup = d }
}

func WithLogger(l *zap.Logger) ResolverOption {
	return func(o *resolverOptions) { o.logger = l }
}

func buildOptions(defaultTTL time.Duration, opts []ResolverOption) resolverOptions {
	o := resolverOptions{ttl: defaultTTL, size: defaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logger.OrNop(o.logger)
	return o
}

// NewAvailabilityResolver 创建可用性 Resolver；region 为 ISO 3166-1 区域码（如 "BR"、"US"）。
func NewAvailabilityResolver(client *Client, region string, opts ...ResolverOption) *AvailabilityResolver {
	o := buildOptions(DefaultAvailabilityTTL, opts)
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = "US"
	}
	return &AvailabilityResolver{
		client: client,
		region: region,
		cache: cache.New[availabilityRecord]("availability", o.size, o.ttl,
			cache.WithStore[availabilityRecord](o.l2),
			cache.WithCleanupInterval[availabilityRecord](o.cleanup),
			cache.WithLogger[availabilityRecord](o.logger)),
		logger: o.logger,
	}
}

// Region 返回查询的区域。
func (r *AvailabilityResolver) Region() string { return r.region }

// Close 停止缓存的后台清理。
func (r *AvailabilityResolver) Close() error {
	r.cache.Close()
	return nil
}

// Resolve 返回作品在区域内的渠道。
//   - OK: 区域有数据（可能只有购买渠道，由过滤策略决定去留）
//   - Unavailable: 区域无数据、4xx、载荷不合法（会被缓存）
//   - TransportError: 连接失败/超时/重试耗尽的 5xx（不缓存）
func (r *AvailabilityResolver) Resolve(ctx context.Context, id core.ExternalID, ct core.ContentType) core.Outcome[core.Availability] {
	key := string(ct) + ":" + strconv.FormatInt(int64(id), 10) + ":" + r.region
	rec, err := r.cache.GetOrLoad(ctx, key, func(ctx context.Context) (availabilityRecord, bool, error) {
		resp, err := r.client.WatchProviders(ctx, ct, id)
		if err != nil {
			if classify(err) == core.OutcomeUnavailable {
				return availabilityRecord{}, cacheableFailure(err), nil
			}
			return availabilityRecord{}, false, err
		}
		region, ok := resp.Results[r.region]
		if !ok {
			return availabilityRecord{}, true, nil
		}
		return availabilityRecord{Found: true, Availability: toAvailability(region)}, true, nil
	})
	if err != nil {
		r.logger.Debug("availability lookup failed",
			zap.Int64("id", int64(id)), zap.String("type", string(ct)), zap.Error(err))
		return core.TransportError[core.Availability](err)
	}
	if !rec.Found {
		return core.Unavailable[core.Availability](errNoRegionData)
	}
	return core.OK(rec.Availability)
}

func toAvailability(rp RegionProviders) core.Availability {
	a := core.Availability{
		Flatrate: core.NewServiceSet(),
		Rent:     core.NewServiceSet(),
		Link:     rp.Link,
	}
	for _, o := range rp.Flatrate {
		if n := strings.TrimSpace(o.ProviderName); n != "" {
			a.Flatrate[n] = struct{}{}
		}
	}
	for _, o := range rp.Rent {
		if n := strings.TrimSpace(o.ProviderName); n != "" {
			a.Rent[n] = struct{}{}
		}
	}
	return a
}

// LinkResolver 解析预告片地址与作品详情页地址，结果按 (id, type) 缓存。
type LinkResolver struct {
	client *Client
	cache  *cache.TTL[core.Links]
	logger *zap.Logger
}

// NewLinkResolver 创建链接 Resolver。
func NewLinkResolver(client *Client, opts ...ResolverOption) *LinkResolver {
	o := buildOptions(DefaultLinksTTL, opts)
	return &LinkResolver{
		client: client,
		cache: cache.New[core.Links]("links", o.size, o.ttl,
			cache.WithStore[core.Links](o.l2),
			cache.WithCleanupInterval[core.Links](o.cleanup),
			cache.WithLogger[core.Links](o.logger)),
		logger: o.logger,
	}
}

// Resolve 返回链接。DeepLinkURL 总是可用（TMDB 详情页）；TrailerURL 为尽力而为。
// 预告片接口失败时返回非 OK 的 Outcome，但 Value 中仍带有 DeepLinkURL。
func (r *LinkResolver) Resolve(ctx context.Context, id core.ExternalID, ct core.ContentType) core.Outcome[core.Links] {
	fallback := core.Links{DeepLinkURL: PageURL(ct, id)}
	key := string(ct) + ":" + strconv.FormatInt(int64(id), 10)
	links, err := r.cache.GetOrLoad(ctx, key, func(ctx context.Context) (core.Links, bool, error) {
		resp, err := r.client.Videos(ctx, ct, id)
		if err != nil {
			if classify(err) == core.OutcomeUnavailable {
				return fallback, cacheableFailure(err), nil
			}
			return fallback, false, err
		}
		out := fallback
		out.TrailerURL = pickTrailer(resp.Results)
		return out, true, nil
	})
	if err != nil {
		r.logger.Debug("trailer lookup failed",
			zap.Int64("id", int64(id)), zap.String("type", string(ct)), zap.Error(err))
		o := core.TransportError[core.Links](err)
		o.Value = fallback
		return o
	}
	return core.OK(links)
}

// Close 停止缓存的后台清理。
func (r *LinkResolver) Close() error {
	r.cache.Close()
	return nil
}

// PageURL 返回作品在 TMDB 的详情页。
func PageURL(ct core.ContentType, id core.ExternalID) string {
	return core.TMDBPageURL(ct, id)
}

// pickTrailer 优先官方 YouTube 预告片，其次任意 YouTube 预告片，最后 Teaser。
func pickTrailer(videos []Video) string {
	best, bestRank := "", 0
	for _, v := range videos {
		if !strings.EqualFold(v.Site, "YouTube") || v.Key == "" {
			continue
		}
		rank := 0
		switch {
		case v.Type == "Trailer" && v.Official:
			rank = 3
		case v.Type == "Trailer":
			rank = 2
		case v.Type == "Teaser":
			rank = 1
		}
		if rank > bestRank {
			best, bestRank = v.Key, rank
		}
	}
	if best == "" {
		return ""
	}
	return "https://www.youtube.com/watch?v=" + best
}
