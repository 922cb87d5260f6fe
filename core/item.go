package core

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rushteam/cinerank/pkg/utils"
)

// ExternalID 是外部目录（TMDB）中的作品 ID。
type ExternalID int64

// ContentType 区分电影与剧集，决定外部接口路径与持久化分区。
type ContentType string

const (
	ContentMovie ContentType = "movie"
	ContentTV    ContentType = "tv"
)

// Valid 判断是否为已知的内容类型。
func (t ContentType) Valid() bool {
	return t == ContentMovie || t == ContentTV
}

// TMDBImageBase 是海报相对路径的拼接前缀。
const TMDBImageBase = "https://image.tmdb.org/t/p/w500"

// TMDBPageURL 返回作品在 TMDB 的详情页，作为深链的兜底。
func TMDBPageURL(ct ContentType, id ExternalID) string {
	kind := "movie"
	if ct == ContentTV {
		kind = "tv"
	}
	return "https://www.themoviedb.org/" + kind + "/" + strconv.FormatInt(int64(id), 10)
}

// Candidate 是向量检索返回的候选作品，接收后不可变。
// 注意：Candidate 上没有分数字段，HybridScore 只存在于 Item。
type Candidate struct {
	ID          ExternalID `json:"id"`
	Title       string     `json:"title"`
	Overview    string     `json:"overview"`
	PosterPath  string     `json:"poster_path"`
	Similarity  float64    `json:"similarity"`   // [0,1]
	VoteAverage float64    `json:"vote_average"` // [0,10]
	Popularity  float64    `json:"popularity"`   // >= 0
	ReleaseYear int        `json:"release_year"`
}

// PosterURL 返回可直接展示的海报地址；相对路径补全 TMDB 图片前缀。
func (c Candidate) PosterURL() string {
	p := strings.TrimSpace(c.PosterPath)
	if p == "" || strings.HasPrefix(p, "http") {
		return p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return TMDBImageBase + p
}

// ServiceSet 是流媒体服务名集合。
type ServiceSet map[string]struct{}

// NewServiceSet 从服务名列表构建集合，忽略空白项。
func NewServiceSet(names ...string) ServiceSet {
	s := make(ServiceSet, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

func (s ServiceSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Clone 返回独立副本。
func (s ServiceSet) Clone() ServiceSet {
	out := make(ServiceSet, len(s))
	for n := range s {
		out[n] = struct{}{}
	}
	return out
}

// Names 返回排序后的服务名，便于展示与稳定输出。
func (s ServiceSet) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Item 是富化后的候选（EnrichedCandidate）：可用性、链接、分数、标签。
// 由 enrich.Worker 创建，之后只读；Labels 用于解释与观测。
type Item struct {
	Candidate

	Flatrate    ServiceSet
	Rent        ServiceSet
	TrailerURL  string // 可选，空表示未解析到
	DeepLinkURL string
	HybridScore float64

	Labels map[string]utils.Label
}

// NewItem 以候选的副本创建 Item，不与调用方共享任何可变状态。
func NewItem(c Candidate) *Item {
	return &Item{
		Candidate: c,
		Flatrate:  make(ServiceSet),
		Rent:      make(ServiceSet),
		Labels:    make(map[string]utils.Label),
	}
}

// Watchable 表示至少有一种订阅或租赁渠道。
func (it *Item) Watchable() bool {
	return len(it.Flatrate) > 0 || len(it.Rent) > 0
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// IDs 提取 Item 列表的 ID，保持顺序。
func IDs(items []*Item) []ExternalID {
	out := make([]ExternalID, 0, len(items))
	for _, it := range items {
		if it != nil {
			out = append(out, it.ID)
		}
	}
	return out
}
