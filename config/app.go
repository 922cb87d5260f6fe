package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/provider/tmdb"
	"github.com/rushteam/cinerank/rank"
	"github.com/rushteam/cinerank/recall"
	"github.com/rushteam/cinerank/store"
	"github.com/rushteam/cinerank/taste"
	"github.com/rushteam/cinerank/taste/trakt"
	"github.com/rushteam/cinerank/transport"
)

// App 是应用配置。YAML 中可以使用 ${VAR} 引用环境变量，
// 密钥类字段另外支持直接用环境变量覆盖。
type App struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | console
	} `yaml:"log"`

	Recommend RecommendSection `yaml:"recommend"`
	Weights   rank.Weights     `yaml:"weights"`
	Taste     taste.Limits     `yaml:"taste"`

	TMDB     tmdb.Config           `yaml:"tmdb"`
	Trakt    trakt.Config          `yaml:"trakt"`
	Supabase recall.SupabaseConfig `yaml:"supabase"`
	HTTP     transport.Config      `yaml:"http"`

	Cache struct {
		Size            int           `yaml:"size"`
		AvailabilityTTL time.Duration `yaml:"availability_ttl"`
		LinksTTL        time.Duration `yaml:"links_ttl"`
		// CleanupInterval 是本地缓存后台清理过期条目的周期
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
		// Shared 为 true 时以 Redis 作为二级缓存
		Shared bool `yaml:"shared"`
	} `yaml:"cache"`

	Store struct {
		Driver string            `yaml:"driver"` // memory | redis | sqlite
		Redis  store.RedisConfig `yaml:"redis"`
		SQLite string            `yaml:"sqlite"`
	} `yaml:"store"`

	// Pipeline 是富化后半段的 Node 配置文件；为空时使用内置配置
	Pipeline string `yaml:"pipeline"`
}

// RecommendSection 是推荐请求的默认参数，实现 core.RecommendConfig。
type RecommendSection struct {
	Limit       int           `yaml:"limit"`
	OverFetch   int           `yaml:"over_fetch"`
	Threshold   float64       `yaml:"threshold"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	Policy      string        `yaml:"policy"` // exhaustive | early_stop
	Relaxed     bool          `yaml:"relaxed"`
	Rule        string        `yaml:"rule"`
}

func (r RecommendSection) DefaultLimit() int { return r.Limit }
func (r RecommendSection) DefaultOverFetch() int { return r.OverFetch }
func (r RecommendSection) DefaultThreshold() float64 { return r.Threshold }
func (r RecommendSection) DefaultConcurrency() int { return r.Concurrency }
func (r RecommendSection) DefaultTimeout() time.Duration { return r.Timeout }

var _ core.RecommendConfig = RecommendSection{}

// Default 返回默认配置。
func Default() *App {
	cfg := &App{}
	cfg.applyDefaults()
	return cfg
}

// Load 读取 YAML 配置，展开环境变量并补全默认值。path 为空时只使用默认值与环境变量。
func Load(path string) (*App, error) {
	cfg := &App{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv 依次尝试加载 .env 文件，已存在的环境变量不会被覆盖。
// 返回成功加载的文件路径，都不存在时返回空串。
func LoadDotEnv(paths ...string) string {
	if len(paths) == 0 {
		paths = []string{".env", "../.env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *App) applyEnv() {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&c.TMDB.APIKey, "TMDB_API_KEY")
	override(&c.TMDB.Region, "TMDB_REGION")
	override(&c.Trakt.ClientID, "TRAKT_CLIENT_ID")
	override(&c.Supabase.URL, "SUPABASE_URL")
	override(&c.Supabase.Key, "SUPABASE_KEY")
	override(&c.Store.Redis.Addr, "REDIS_ADDR")
	override(&c.Store.Redis.Password, "REDIS_PASSWORD")
}

func (c *App) applyDefaults() {
	d := core.DefaultRecommendConfig{}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Recommend.Limit <= 0 {
		c.Recommend.Limit = d.DefaultLimit()
	}
	if c.Recommend.OverFetch <= 0 {
		c.Recommend.OverFetch = d.DefaultOverFetch()
	}
	if c.Recommend.Threshold <= 0 {
		c.Recommend.Threshold = d.DefaultThreshold()
	}
	if c.Recommend.Concurrency <= 0 {
		c.Recommend.Concurrency = d.DefaultConcurrency()
	}
	if c.Recommend.Timeout <= 0 {
		c.Recommend.Timeout = d.DefaultTimeout()
	}
	if c.Recommend.Policy == "" {
		c.Recommend.Policy = "exhaustive"
	}
	if c.Weights == (rank.Weights{}) {
		c.Weights = rank.DefaultWeights()
	}
	if c.Taste == (taste.Limits{}) {
		c.Taste = taste.DefaultLimits()
	}
	if c.TMDB.Region == "" {
		c.TMDB.Region = "US"
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = c.Recommend.Timeout
	}
	if c.Cache.Size <= 0 {
		c.Cache.Size = 10000
	}
	if c.Cache.AvailabilityTTL <= 0 {
		c.Cache.AvailabilityTTL = tmdb.DefaultAvailabilityTTL
	}
	if c.Cache.LinksTTL <= 0 {
		c.Cache.LinksTTL = tmdb.DefaultLinksTTL
	}
	if c.Cache.CleanupInterval <= 0 {
		c.Cache.CleanupInterval = 10 * time.Minute
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
		if c.Store.Redis.Addr != "" {
			c.Store.Driver = "redis"
		}
	}
	if c.Store.SQLite == "" {
		c.Store.SQLite = "cinerank.db"
	}
}

// Validate 校验取值范围；外部凭据是否齐全由使用方按需检查。
func (c *App) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "redis", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.Driver == "redis" && c.Store.Redis.Addr == "" {
		errs = append(errs, errors.New("store.redis.addr required for redis driver"))
	}
	if c.Cache.Shared && c.Store.Redis.Addr == "" {
		errs = append(errs, errors.New("cache.shared requires store.redis.addr"))
	}
	switch c.Recommend.Policy {
	case "exhaustive", "early_stop":
	default:
		errs = append(errs, fmt.Errorf("unknown policy %q", c.Recommend.Policy))
	}
	if c.Recommend.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold must be <= 1, got %v", c.Recommend.Threshold))
	}
	return errors.Join(errs...)
}
