package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rushteam/cinerank/config"
	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/enrich"
	"github.com/rushteam/cinerank/engine"
	"github.com/rushteam/cinerank/exclusion"
	"github.com/rushteam/cinerank/pkg/logger"
	"github.com/rushteam/cinerank/provider/tmdb"
	"github.com/rushteam/cinerank/recall"
	"github.com/rushteam/cinerank/store"
	"github.com/rushteam/cinerank/taste"
	"github.com/rushteam/cinerank/taste/trakt"
	"github.com/rushteam/cinerank/transport"
)

// persistence 是 CLI 需要的持久化能力。
type persistence interface {
	core.BlockStore
	core.CuratedListStore
}

type commandContext struct {
	configFlag *string
	envFlag    *string
	logLevel   *string

	configOnce sync.Once
	config     *config.App
	configErr  error

	storeOnce sync.Once
	store     persistence
	shared    core.Store
	storeErr  error
	closers   []func() error

	logger *zap.Logger
}

func newCommandContext(configFlag, envFlag, logLevel *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		envFlag:    envFlag,
		logLevel:   logLevel,
	}
}

func (c *commandContext) ensureConfig() (*config.App, error) {
	c.configOnce.Do(func() {
		if c.envFlag != nil && strings.TrimSpace(*c.envFlag) != "" {
			config.LoadDotEnv(strings.TrimSpace(*c.envFlag))
		} else {
			config.LoadDotEnv()
		}
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevel != nil && *c.logLevel != "" {
			cfg.Log.Level = *c.logLevel
		}
		c.config = cfg
		c.logger = logger.New(cfg.Log.Level, cfg.Log.Format)
	})
	return c.config, c.configErr
}

func (c *commandContext) log() *zap.Logger {
	return logger.OrNop(c.logger)
}

// persistence 按配置打开拉黑/精选列表存储。
func (c *commandContext) persistence(ctx context.Context) (persistence, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.storeOnce.Do(func() {
		switch cfg.Store.Driver {
		case "redis":
			rs, err := store.NewRedisStore(ctx, cfg.Store.Redis)
			if err != nil {
				c.storeErr = fmt.Errorf("connect redis: %w", err)
				return
			}
			c.closers = append(c.closers, rs.Close)
			c.store = store.NewKVPersistence(rs)
			c.shared = rs
		case "sqlite":
			sq, err := store.OpenSQLite(ctx, cfg.Store.SQLite)
			if err != nil {
				c.storeErr = err
				return
			}
			c.closers = append(c.closers, sq.Close)
			c.store = sq
		default:
			mem := store.NewMemoryStore()
			c.closers = append(c.closers, mem.Close)
			c.store = store.NewKVPersistence(mem)
		}
		if cfg.Cache.Shared && c.shared == nil {
			rs, err := store.NewRedisStore(ctx, cfg.Store.Redis)
			if err != nil {
				c.storeErr = fmt.Errorf("connect redis cache: %w", err)
				return
			}
			c.closers = append(c.closers, rs.Close)
			c.shared = rs
		}
	})
	return c.store, c.storeErr
}

func (c *commandContext) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	return errors.Join(errs...)
}

func (c *commandContext) httpClient(name string) *transport.Client {
	hc := c.config.HTTP
	hc.Name = name
	return transport.New(hc, transport.WithLogger(c.log()))
}

func (c *commandContext) tasteBuilder() (*taste.Builder, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := trakt.New(cfg.Trakt, c.httpClient("trakt"))
	if err != nil {
		return nil, err
	}
	b := taste.NewBuilder(client, c.log())
	b.Limits = cfg.Taste
	return b, nil
}

// engine 组装推荐链路：Supabase 检索 + TMDB 富化 + 配置化流水线。
func (c *commandContext) engine(ctx context.Context) (*engine.Engine, *exclusion.Manager, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	p, err := c.persistence(ctx)
	if err != nil {
		return nil, nil, err
	}
	log := c.log()

	tc, err := tmdb.New(cfg.TMDB, c.httpClient("tmdb"))
	if err != nil {
		return nil, nil, err
	}
	common := []tmdb.ResolverOption{
		tmdb.WithCacheSize(cfg.Cache.Size),
		tmdb.WithCleanupInterval(cfg.Cache.CleanupInterval),
		tmdb.WithLogger(log),
	}
	if cfg.Cache.Shared && c.shared != nil {
		common = append(common, tmdb.WithSharedStore(c.shared))
	}
	avail := tmdb.NewAvailabilityResolver(tc, cfg.TMDB.Region, append(common,
		tmdb.WithTTL(cfg.Cache.AvailabilityTTL))...)
	links := tmdb.NewLinkResolver(tc, append(common,
		tmdb.WithTTL(cfg.Cache.LinksTTL))...)
	c.closers = append(c.closers, avail.Close, links.Close)
	log.Debug("tmdb resolvers ready",
		zap.String("region", avail.Region()),
		zap.Duration("availability_ttl", cfg.Cache.AvailabilityTTL))

	worker := enrich.NewWorker(avail, links, log)
	worker.Weights = cfg.Weights
	worker.Relaxed = cfg.Recommend.Relaxed

	factory := config.NewFactory(config.Deps{
		Worker:         worker,
		BlockStore:     p,
		Logger:         log,
		EnrichDefaults: config.EnrichDefaults(cfg.Recommend),
	})
	pl, err := config.LoadPipeline(cfg.Pipeline, factory)
	if err != nil {
		return nil, nil, err
	}
	pl.Logger = log

	searcher, err := recall.NewSupabaseSearcher(cfg.Supabase, c.httpClient("supabase"))
	if err != nil {
		return nil, nil, err
	}
	vr := &recall.VectorRecall{
		Searcher:  searcher,
		Threshold: cfg.Recommend.Threshold,
		OverFetch: cfg.Recommend.OverFetch,
		Logger:    log,
	}

	mgr := exclusion.NewManager(p, log)
	e := engine.New(vr, pl, mgr, log)
	e.Config = cfg.Recommend
	return e, mgr, nil
}
