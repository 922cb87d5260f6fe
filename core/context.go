package core

import (
	"github.com/google/uuid"

	"github.com/rushteam/cinerank/pkg/utils"
)

// RequestContext 承载单次推荐请求的全部输入，贯穿整个 Pipeline 透传。
// 每次请求构建一次；排除集合在请求开始时读取，请求过程中不变。
type RequestContext struct {
	RequestID   string
	UserID      string
	ContentType ContentType

	// Services 是用户订阅的服务；空表示不过滤
	Services ServiceFilter

	// Exclusions = 永久拉黑 ∪ 已看 ∪ 本会话忽略
	Exclusions IDSet

	// Profile 是口味画像（可选）
	Profile *TasteProfile

	// Limit 是期望返回的数量
	Limit int

	// Seed 是本次请求的打散种子，固定种子可复现排序
	Seed uint64

	// Pool 是检索返回的候选池，由 engine 在检索后写入
	Pool []Candidate

	// Labels 是请求级标签
	Labels map[string]utils.Label

	// Params 请求级参数
	Params map[string]any
}

// NewRequestContext 创建请求上下文并分配 RequestID。
func NewRequestContext(userID string, ct ContentType) *RequestContext {
	return &RequestContext{
		RequestID:   uuid.NewString(),
		UserID:      userID,
		ContentType: ct,
		Services:    NewServiceFilter(),
		Exclusions:  NewIDSet(),
	}
}

// Excluded 判断 ID 是否在本次请求的排除集合中。
func (rctx *RequestContext) Excluded(id ExternalID) bool {
	if rctx == nil {
		return false
	}
	return rctx.Exclusions.Has(id)
}

// PutLabel 写入请求级 Label。
func (rctx *RequestContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}
