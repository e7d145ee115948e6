package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rushteam/embedrec/backfill"
	"github.com/rushteam/embedrec/config"
	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/embedding"
	"github.com/rushteam/embedrec/pkg/logging"
	"github.com/rushteam/embedrec/profile"
	"github.com/rushteam/embedrec/recommend"
	"github.com/rushteam/embedrec/store"
)

// app 持有一次命令执行所需的全部组件。
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	catalog *store.SQLiteCatalog
	shared  core.Store
	vectors *profile.ItemVectorCache
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.Log.LoggingConfig())

	a := &app{cfg: cfg, logger: logging.Component("embedrec")}

	a.catalog, err = store.NewSQLiteCatalog(cfg.Store.SQLitePath)
	if err != nil {
		return nil, err
	}

	a.shared, err = openCache(ctx, cfg.Store)
	if err != nil {
		_ = a.catalog.Close()
		return nil, err
	}
	a.vectors = profile.NewItemVectorCache(a.catalog, a.shared, cfg.Store.CacheTTL, logging.Component("item_vectors"))

	backend := "none"
	if a.shared != nil {
		backend = a.shared.Name()
	}
	a.logger.Debug().Str("sqlite", cfg.Store.SQLitePath).Str("cache", backend).Msg("stores opened")
	if cfg.Store.ProcessLocalCache() {
		a.logger.Warn().Str("cache", backend).Dur("ttl", cfg.Store.CacheTTL).
			Msg("item vector cache is process-local, item backfills from other processes stay invisible until ttl expires")
	}
	return a, nil
}

func openCache(ctx context.Context, sc config.StoreConfig) (core.Store, error) {
	switch sc.CacheBackend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		return store.NewRedisStore(ctx, sc.RedisAddr, sc.RedisDB, sc.RedisPrefix)
	case "badger":
		return store.NewBadgerStore(sc.BadgerPath)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", sc.CacheBackend)
	}
}

func (a *app) Close() {
	if a.shared != nil {
		if err := a.shared.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close cache")
		}
	}
	if err := a.catalog.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close catalog")
	}
}

func (a *app) embedder() (*embedding.Client, error) {
	if a.cfg.Embedding.URL == "" {
		return nil, fmt.Errorf("embedding.url is required (EMBEDREC_EMBEDDING_URL)")
	}
	return embedding.NewClient(a.cfg.Embedding.ClientConfig(), logging.Component("embedding"))
}

// runner 组装回填执行器（未启动）。
func (a *app) runner(onDone func(backfill.Result)) (*backfill.Runner, error) {
	emb, err := a.embedder()
	if err != nil {
		return nil, err
	}
	bc := a.cfg.Backfill
	categories := profile.NewCategoryVectors(a.catalog, emb, bc.Parallelism, logging.Component("category_vectors"))
	items := profile.NewItemProfiles(a.catalog, categories, profile.ItemOptions{
		BatchSize: bc.BatchSize,
		Workers:   bc.Parallelism,
		Cache:     a.vectors,
	}, logging.Component("item_profiles"))

	return backfill.NewRunner(categories, items, backfill.Options{
		Workers:        bc.Workers,
		QueueSize:      bc.QueueSize,
		CategoryCron:   bc.CategoryCron,
		ItemCron:       bc.ItemCron,
		SweepBatchSize: bc.BatchSize,
		OnDone:         onDone,
	}, logging.Component("backfill")), nil
}

func (a *app) ranker() (*recommend.Ranker, error) {
	rc := a.cfg.Recommend
	return recommend.NewRanker(recommend.Options{
		Catalog:     a.catalog,
		Reviews:     a.catalog,
		Preferences: a.catalog,
		Vectors:     a.vectors,
		Config:      &rc,
		Logger:      logging.Component("recommend"),
	})
}
