// Package tmdb 提供推荐链路所需的最小 TMDB 客户端与 Resolver。
//
// 客户端只负责构造请求、解析载荷、把失败分为“永久”（4xx、载荷不合法）与
// “暂时”（连接失败、重试耗尽的 5xx）两类；Resolver 据此返回显式的 core.Outcome，
// 并在其上叠加缓存。
package tmdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/transport"
)

// DefaultBaseURL 是 TMDB v3 API 地址。
const DefaultBaseURL = "https://api.themoviedb.org/3"

// ErrPermanent 标记不可重试、应按“无数据”处理的失败。
var ErrPermanent = errors.New("tmdb: permanent failure")

// APIError 是非 2xx 且不可重试的响应。
type APIError struct {
	StatusCode int
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tmdb: %s returned status %d", e.Path, e.StatusCode)
}

func (e *APIError) Unwrap() error { return ErrPermanent }

// Cacheable 表示该状态码是作品本身的结论（如 404），可以按 TTL 缓存。
// 鉴权失败与限流只说明这一次请求没拿到数据，不代表作品没有数据。
func (e *APIError) Cacheable() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden,
		http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return true
}

// Config 是 TMDB 客户端配置。
type Config struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Region   string `yaml:"region"`
	Language string `yaml:"language"`
}

// Client 访问 TMDB 的 watch providers 与 videos 接口。
type Client struct {
	apiKey   string
	baseURL  string
	language string
	http     *transport.Client
}

// New 创建客户端；httpClient 为共享的重试客户端。
func New(cfg Config, httpClient *transport.Client) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("tmdb api key required")
	}
	if httpClient == nil {
		return nil, errors.New("tmdb http client required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		apiKey:   key,
		baseURL:  strings.TrimRight(base, "/"),
		language: strings.TrimSpace(cfg.Language),
		http:     httpClient,
	}, nil
}

// ProviderOffer 是单个服务的报价条目。
type ProviderOffer struct {
	ProviderID   int    `json:"provider_id"`
	ProviderName string `json:"provider_name"`
}

// RegionProviders 是单个区域的报价列表。
type RegionProviders struct {
	Link     string          `json:"link"`
	Flatrate []ProviderOffer `json:"flatrate"`
	Rent     []ProviderOffer `json:"rent"`
	Buy      []ProviderOffer `json:"buy"`
}

// WatchProvidersResponse 是 /{type}/{id}/watch/providers 的载荷。
type WatchProvidersResponse struct {
	ID      int64                      `json:"id"`
	Results map[string]RegionProviders `json:"results"`
}

// Video 是 /{type}/{id}/videos 中的单个视频。
type Video struct {
	Key      string `json:"key"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
	Language string `json:"iso_639_1"`
}

// VideosResponse 是 /{type}/{id}/videos 的载荷。
type VideosResponse struct {
	ID      int64   `json:"id"`
	Results []Video `json:"results"`
}

// WatchProviders 查询作品在各区域的报价。
func (c *Client) WatchProviders(ctx context.Context, ct core.ContentType, id core.ExternalID) (*WatchProvidersResponse, error) {
	var out WatchProvidersResponse
	if err := c.get(ctx, titlePath(ct, id)+"/watch/providers", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Videos 查询作品的视频列表。
func (c *Client) Videos(ctx context.Context, ct core.ContentType, id core.ExternalID) (*VideosResponse, error) {
	params := url.Values{}
	if c.language != "" {
		params.Set("language", c.language)
		params.Set("include_video_language", c.language[:min(2, len(c.language))]+",null")
	}
	var out VideosResponse
	if err := c.get(ctx, titlePath(ct, id)+"/videos", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func titlePath(ct core.ContentType, id core.ExternalID) string {
	kind := "movie"
	if ct == core.ContentTV {
		kind = "tv"
	}
	return "/" + kind + "/" + strconv.FormatInt(int64(id), 10)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("tmdb: parse url: %w", err)
	}
	if params == nil {
		params = url.Values{}
	}
	header := http.Header{"Accept": []string{"application/json"}}
	// v4 读令牌是 JWT，走 Bearer；否则按 v3 api_key 传参
	if strings.HasPrefix(c.apiKey, "eyJ") {
		header.Set("Authorization", "Bearer "+c.apiKey)
	} else {
		params.Set("api_key", c.apiKey)
	}
	endpoint.RawQuery = params.Encode()

	resp, err := c.http.Get(ctx, endpoint.String(), header)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Path: path}
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrPermanent, path, err)
	}
	return nil
}

// cacheableFailure 判断一次 Unavailable 结论是否可以缓存。
func cacheableFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Cacheable()
	}
	return true
}

// classify 把客户端错误映射为 Outcome 状态。
func classify(err error) core.OutcomeStatus {
	if errors.Is(err, ErrPermanent) {
		return core.OutcomeUnavailable
	}
	return core.OutcomeTransportError
}
