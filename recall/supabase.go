package recall

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/transport"
)

// SupabaseConfig 是向量检索 RPC 的配置。
type SupabaseConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
	// MovieFunction / SeriesFunction 是两种内容类型对应的 RPC 名
	MovieFunction  string `yaml:"movie_function"`
	SeriesFunction string `yaml:"series_function"`
}

// SupabaseSearcher 通过 PostgREST RPC（pgvector 上的 match 函数）检索候选。
//
// 请求体：
//
//	{"query_embedding": [...], "match_threshold": 0.4, "match_count": 80, "filter_ids": [603, 550]}
type SupabaseSearcher struct {
	baseURL   string
	key       string
	functions map[core.ContentType]string
	http      *transport.Client
}

// NewSupabaseSearcher 创建检索客户端。
func NewSupabaseSearcher(cfg SupabaseConfig, httpClient *transport.Client) (*SupabaseSearcher, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" || strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("supabase url and key required")
	}
	if httpClient == nil {
		return nil, errors.New("supabase http client required")
	}
	movies, series := cfg.MovieFunction, cfg.SeriesFunction
	if movies == "" {
		movies = "match_movies"
	}
	if series == "" {
		series = "match_series"
	}
	return &SupabaseSearcher{
		baseURL:   base,
		key:       strings.TrimSpace(cfg.Key),
		functions: map[core.ContentType]string{core.ContentMovie: movies, core.ContentTV: series},
		http:      httpClient,
	}, nil
}

type matchRequest struct {
	QueryEmbedding []float32         `json:"query_embedding"`
	MatchThreshold float64           `json:"match_threshold"`
	MatchCount     int               `json:"match_count"`
	FilterIDs      []core.ExternalID `json:"filter_ids"`
}

type matchRow struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	Name         string   `json:"name"`
	Overview     string   `json:"overview"`
	PosterPath   *string  `json:"poster_path"`
	Similarity   float64  `json:"similarity"`
	VoteAverage  *float64 `json:"vote_average"`
	Popularity   *float64 `json:"popularity"`
	ReleaseYear  int      `json:"release_year"`
	ReleaseDate  string   `json:"release_date"`
	FirstAirDate string   `json:"first_air_date"`
}

func (r matchRow) candidate() core.Candidate {
	c := core.Candidate{
		ID:          core.ExternalID(r.ID),
		Title:       r.Title,
		Overview:    r.Overview,
		Similarity:  r.Similarity,
		ReleaseYear: r.ReleaseYear,
	}
	if c.Title == "" {
		c.Title = r.Name
	}
	if r.PosterPath != nil {
		c.PosterPath = *r.PosterPath
	}
	if r.VoteAverage != nil {
		c.VoteAverage = *r.VoteAverage
	}
	if r.Popularity != nil {
		c.Popularity = *r.Popularity
	}
	if c.ReleaseYear == 0 {
		c.ReleaseYear = yearOf(r.ReleaseDate)
	}
	if c.ReleaseYear == 0 {
		c.ReleaseYear = yearOf(r.FirstAirDate)
	}
	return c
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}

// Search 执行一次检索。任何失败都返回错误：检索失败时没有候选可富化。
func (s *SupabaseSearcher) Search(ctx context.Context, q core.SearchQuery) ([]core.Candidate, error) {
	fn, ok := s.functions[q.ContentType]
	if !ok {
		return nil, fmt.Errorf("supabase: unsupported content type %q", q.ContentType)
	}
	if len(q.Vector) == 0 {
		return nil, errors.New("supabase: empty query vector")
	}
	filterIDs := q.ExcludeIDs.Sorted()
	body, err := json.Marshal(matchRequest{
		QueryEmbedding: q.Vector,
		MatchThreshold: q.Threshold,
		MatchCount:     q.MaxResults,
		FilterIDs:      filterIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("supabase: encode request: %w", err)
	}

	header := http.Header{}
	header.Set("apikey", s.key)
	header.Set("Authorization", "Bearer "+s.key)
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")

	resp, err := s.http.Post(ctx, s.baseURL+"/rest/v1/rpc/"+fn, header, body)
	if err != nil {
		return nil, fmt.Errorf("supabase %s: %w", fn, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &transport.StatusError{StatusCode: resp.StatusCode, URL: s.baseURL + "/rest/v1/rpc/" + fn, Body: string(resp.Body)}
	}

	var rows []matchRow
	if err := json.Unmarshal(resp.Body, &rows); err != nil {
		return nil, fmt.Errorf("supabase %s: decode: %w", fn, err)
	}
	out := make([]core.Candidate, 0, len(rows))
	for _, r := range rows {
		if r.ID <= 0 {
			continue
		}
		out = append(out, r.candidate())
	}
	return out, nil
}
