package core

// OutcomeStatus 是外部解析结果的标签。
type OutcomeStatus int

const (
	// OutcomeOK 表示解析成功，Value 有效
	OutcomeOK OutcomeStatus = iota
	// OutcomeUnavailable 表示外部明确没有数据（404、区域无数据、载荷不合法等）
	OutcomeUnavailable
	// OutcomeTransportError 表示网络/5xx 等传输失败（已重试）
	OutcomeTransportError
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeOK:
		return "ok"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Outcome 是 Resolver 的显式返回类型，调用方据此决定按缺失处理还是上抛。
type Outcome[T any] struct {
	Status OutcomeStatus
	Value  T
	Err    error // 非 OK 时的原因，仅用于日志
}

func OK[T any](v T) Outcome[T] {
	return Outcome[T]{Status: OutcomeOK, Value: v}
}

func Unavailable[T any](err error) Outcome[T] {
	return Outcome[T]{Status: OutcomeUnavailable, Err: err}
}

func TransportError[T any](err error) Outcome[T] {
	return Outcome[T]{Status: OutcomeTransportError, Err: err}
}

func (o Outcome[T]) OK() bool { return o.Status == OutcomeOK }

// Availability 是单个作品在固定区域的可用渠道。
type Availability struct {
	Flatrate ServiceSet `json:"flatrate"`
	Rent     ServiceSet `json:"rent"`
	Link     string     `json:"link,omitempty"` // 区域聚合页（深链）
}

// Empty 表示没有任何订阅或租赁渠道。
func (a Availability) Empty() bool {
	return len(a.Flatrate) == 0 && len(a.Rent) == 0
}

// Links 是作品的辅助链接。
type Links struct {
	TrailerURL  string `json:"trailer_url,omitempty"`
	DeepLinkURL string `json:"deep_link_url,omitempty"`
}
