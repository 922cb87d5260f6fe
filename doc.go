// Package cinerank 按用户订阅的流媒体服务推荐电影与剧集。
//
// 设计要点：
// - Pipeline-first: 检索之后的阶段通过 Node 串联（Enrich → Filter → ReRank）
// - Outcome-first: 外部查询返回显式的 OK / Unavailable / TransportError，缺失不等于失败
// - Labels-first: 可用性与分数拆解以 Label 透传，便于解释与观测
//
// 入口见 engine.Engine 与 cmd/cinerank。
package cinerank

import "github.com/rushteam/cinerank/pipeline"

// 轻量 facade：便于直接 import "cinerank" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRecall = pipeline.KindRecall
	KindEnrich = pipeline.KindEnrich
	KindFilter = pipeline.KindFilter
	KindReRank = pipeline.KindReRank
)
