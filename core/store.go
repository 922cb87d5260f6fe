package core

import (
	"context"
	"time"
)

// Store 是存储的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 领域层不依赖基础设施层
//
// 使用场景：
//   - 可用性缓存的二级存储（跨进程共享）
//   - 拉黑列表、精选列表的持久化
//
// 实现：
//   - store.MemoryStore
//   - store.RedisStore
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值，不存在时返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value，ttl 单位为秒
	Set(ctx context.Context, key string, value []byte, ttl ...int) error

	Delete(ctx context.Context, key string) error

	Close() error
}

// KeyValueStore 是 Store 的扩展接口，支持 Hash 操作。
// Hash 用于按用户、内容类型分区的拉黑列表（field 为作品 ID）。
type KeyValueStore interface {
	Store

	// HSetNX 仅当 field 不存在时写入，返回是否写入（幂等插入）
	HSetNX(ctx context.Context, key, field string, value []byte) (bool, error)

	// HGetAll 读取整个 Hash
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
}

// ErrStoreNotFound 表示 key 不存在
var ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

// IsStoreNotFound 检查错误是否为 key 不存在
func IsStoreNotFound(err error) bool {
	de := GetDomainError(err)
	return de != nil && de.Module == ModuleStore && de.Code == ErrorCodeNotFound
}

// BlockStore 是永久排除列表（拉黑）的持久化契约。
type BlockStore interface {
	// Block 幂等插入；重复拉黑同一 ID 不是错误
	Block(ctx context.Context, userID string, id ExternalID, ct ContentType) error

	// Blocked 返回用户在该内容类型下的全部拉黑 ID
	Blocked(ctx context.Context, userID string, ct ContentType) (IDSet, error)
}

// CuratedList 是用户的精选推荐快照。
type CuratedList struct {
	UserID      string         `json:"user_id"`
	Items       []Candidate    `json:"items"`
	Preferences map[string]any `json:"preferences,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CuratedListStore 是精选列表的持久化契约。
type CuratedListStore interface {
	UpsertCuratedList(ctx context.Context, list *CuratedList) error

	// CuratedList 不存在时返回 ErrStoreNotFound
	CuratedList(ctx context.Context, userID string) (*CuratedList, error)
}

// SearchQuery 是向量检索请求。
type SearchQuery struct {
	ContentType ContentType
	Vector      []float32
	Threshold   float64
	MaxResults  int
	ExcludeIDs  IDSet
}

// CandidateSearcher 是向量相似检索协作方（实现不在本模块范围内，仅有客户端）。
type CandidateSearcher interface {
	Search(ctx context.Context, q SearchQuery) ([]Candidate, error)
}

// Embedder 把文本（如口味画像）转为查询向量。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
