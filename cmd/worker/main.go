// Command worker runs the delegation worker as a standalone process,
// separate from the HTTP server, so auto-merge throughput can be scaled
// independently of request-handling capacity. The worker processes only
// targets passed to its Notify method within this process, and nothing in
// this command calls Notify.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/S-Corkum/agentmesh/pkg/cache"
	"github.com/S-Corkum/agentmesh/pkg/config"
	"github.com/S-Corkum/agentmesh/pkg/contextengine"
	"github.com/S-Corkum/agentmesh/pkg/observability"
	"github.com/S-Corkum/agentmesh/pkg/repository/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := os.Getenv("AGENTMESH_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs"
	}
	cfg, err := config.NewLoader(configPath).Load(os.Getenv("AGENTMESH_ENV"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewStandardLogger("worker")
	metrics := observability.NewPrometheusMetrics("agentmesh_worker")
	tracer := observability.NoopTracer()

	writeDB, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer writeDB.Close()

	redisCache := cache.NewRedisCache(cache.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer redisCache.Close()
	lru, err := cache.NewLRUCache(cfg.Core.MaxCacheEntries)
	if err != nil {
		log.Fatalf("failed to build LRU cache: %v", err)
	}
	resolvedCache := cache.NewTieredCache(lru, redisCache)

	base := postgres.NewBaseRepository(writeDB, writeDB, resolvedCache, logger, metrics, tracer)
	tasks := postgres.NewTaskRepository(base)
	branches := postgres.NewBranchRepository(base)
	contextRepo := postgres.NewContextRepository(base)

	parents := contextengine.NewEntityParentResolver(tasks, branches)
	engine := contextengine.New(contextRepo, resolvedCache, parents, logger, metrics, tracer, cfg.Core.CacheTTL())
	worker := contextengine.NewDelegationWorker(engine, cfg.Core.DelegationWorkerParallelism, 5*time.Second)

	logger.Info("delegation worker starting", map[string]interface{}{"parallelism": cfg.Core.DelegationWorkerParallelism})
	worker.Run(ctx)
	logger.Info("delegation worker stopped", nil)
}
