package core

import (
	"strings"
	"time"
)

// RatedTitle 是观影历史中的一条评分（1-10）。
type RatedTitle struct {
	Title  string     `json:"title"`
	Rating int        `json:"rating"`
	ID     ExternalID `json:"id,omitempty"`
}

// TasteProfile 是从观影历史构建的口味画像。
//
// 一次同步构建一次，构建后不可变；重新同步时整体重建，不做增量合并。
//   - Liked: 高分作品，"挚爱"（>=9）在前，"喜欢"（7-8）在后
//   - Disliked: 低分作品（<=5）
//   - Watched: 已看作品 ID，请求时并入排除集合
type TasteProfile struct {
	Liked    []RatedTitle
	Disliked []RatedTitle
	Watched  IDSet
	SyncedAt time.Time
}

// Empty 表示没有任何可用于生成画像文本的信号。
func (p *TasteProfile) Empty() bool {
	return p == nil || (len(p.Liked) == 0 && len(p.Disliked) == 0)
}

// Text 把画像渲染为一段短文本，作为 embedding 生成（外部）的输入。
func (p *TasteProfile) Text() string {
	if p.Empty() {
		return ""
	}
	var b strings.Builder
	if len(p.Liked) > 0 {
		b.WriteString("Liked: ")
		b.WriteString(joinTitles(p.Liked))
		b.WriteString(".")
	}
	if len(p.Disliked) > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("Disliked: ")
		b.WriteString(joinTitles(p.Disliked))
		b.WriteString(".")
	}
	return b.String()
}

func joinTitles(ts []RatedTitle) string {
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		names = append(names, t.Title)
	}
	return strings.Join(names, ", ")
}
