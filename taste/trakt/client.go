// Package trakt 是 Trakt 观影历史接口的最小客户端。
package trakt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/transport"
)

// DefaultBaseURL 是 Trakt API 地址。
const DefaultBaseURL = "https://api.trakt.tv"

// APIVersion 是请求头 trakt-api-version 的取值。
const APIVersion = "2"

// Config 是 Trakt 客户端配置。
type Config struct {
	ClientID string `yaml:"client_id"`
	BaseURL  string `yaml:"base_url"`
}

// APIError 是非 200 响应。
type APIError struct {
	StatusCode int
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trakt: %s returned status %d", e.Path, e.StatusCode)
}

// Client 读取用户的已看列表与评分。
type Client struct {
	clientID string
	baseURL  string
	http     *transport.Client
}

// New 创建客户端。
func New(cfg Config, httpClient *transport.Client) (*Client, error) {
	id := strings.TrimSpace(cfg.ClientID)
	if id == "" {
		return nil, errors.New("trakt client id required")
	}
	if httpClient == nil {
		return nil, errors.New("trakt http client required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{clientID: id, baseURL: strings.TrimRight(base, "/"), http: httpClient}, nil
}

type ids struct {
	Trakt int64 `json:"trakt"`
	TMDB  int64 `json:"tmdb"`
}

type media struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
	IDs   ids    `json:"ids"`
}

// entry 覆盖 watched 与 ratings 两个接口的公共字段。
type entry struct {
	Rating int    `json:"rating"`
	Movie  *media `json:"movie"`
	Show   *media `json:"show"`
}

func (e entry) media() *media {
	if e.Movie != nil {
		return e.Movie
	}
	return e.Show
}

// Watched 返回用户已看作品的 TMDB ID（没有 TMDB ID 的条目被忽略）。
func (c *Client) Watched(ctx context.Context, username string, ct core.ContentType) ([]core.ExternalID, error) {
	var entries []entry
	if err := c.get(ctx, "/users/"+url.PathEscape(username)+"/watched/"+collection(ct), &entries); err != nil {
		return nil, err
	}
	out := make([]core.ExternalID, 0, len(entries))
	for _, e := range entries {
		if m := e.media(); m != nil && m.IDs.TMDB > 0 {
			out = append(out, core.ExternalID(m.IDs.TMDB))
		}
	}
	return out, nil
}

// Ratings 返回用户的评分（1-10），保持接口返回顺序（最近评分在前）。
func (c *Client) Ratings(ctx context.Context, username string, ct core.ContentType) ([]core.RatedTitle, error) {
	var entries []entry
	if err := c.get(ctx, "/users/"+url.PathEscape(username)+"/ratings/"+collection(ct), &entries); err != nil {
		return nil, err
	}
	out := make([]core.RatedTitle, 0, len(entries))
	for _, e := range entries {
		m := e.media()
		if m == nil || strings.TrimSpace(m.Title) == "" {
			continue
		}
		out = append(out, core.RatedTitle{Title: m.Title, Rating: e.Rating, ID: core.ExternalID(m.IDs.TMDB)})
	}
	return out, nil
}

func collection(ct core.ContentType) string {
	if ct == core.ContentTV {
		return "shows"
	}
	return "movies"
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("trakt-api-version", APIVersion)
	header.Set("trakt-api-key", c.clientID)

	resp, err := c.http.Get(ctx, c.baseURL+path, header)
	if err != nil {
		return fmt.Errorf("trakt %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Path: path}
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("trakt: decode %s: %w", path, err)
	}
	return nil
}
