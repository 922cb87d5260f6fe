package core

import "time"

// RecommendConfig 提供推荐链路的默认值。
type RecommendConfig interface {
	// DefaultLimit 返回默认的返回数量
	DefaultLimit() int

	// DefaultOverFetch 返回检索超取倍数（检索数量 = limit * 倍数）
	DefaultOverFetch() int

	// DefaultThreshold 返回默认的相似度阈值
	DefaultThreshold() float64

	// DefaultConcurrency 返回富化并发数
	DefaultConcurrency() int

	// DefaultTimeout 返回外部调用的超时时间
	DefaultTimeout() time.Duration
}

// DefaultRecommendConfig 是默认的推荐配置实现。
type DefaultRecommendConfig struct{}

func (c *DefaultRecommendConfig) DefaultLimit() int { return 10 }

func (c *DefaultRecommendConfig) DefaultOverFetch() int { return 8 }

func (c *DefaultRecommendConfig) DefaultThreshold() float64 { return 0.40 }

func (c *DefaultRecommendConfig) DefaultConcurrency() int { return 8 }

func (c *DefaultRecommendConfig) DefaultTimeout() time.Duration { return 4 * time.Second }
