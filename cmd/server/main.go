// Command server runs the orchestration core's HTTP front door: it loads
// configuration, wires the repository/context-engine/scheduler/coordinator
// stack onto Postgres and Redis, starts the delegation worker in-process,
// and serves the Tool Dispatch Facade over HTTP until it receives
// SIGINT/SIGTERM.
package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"github.com/S-Corkum/agentmesh/internal/api"
	"github.com/S-Corkum/agentmesh/pkg/agentcoord"
	"github.com/S-Corkum/agentmesh/pkg/cache"
	"github.com/S-Corkum/agentmesh/pkg/config"
	"github.com/S-Corkum/agentmesh/pkg/contextengine"
	"github.com/S-Corkum/agentmesh/pkg/facade"
	"github.com/S-Corkum/agentmesh/pkg/observability"
	"github.com/S-Corkum/agentmesh/pkg/repository/postgres"
	"github.com/S-Corkum/agentmesh/pkg/scheduler"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	environment := os.Getenv("AGENTMESH_ENV")
	configPath := os.Getenv("AGENTMESH_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs"
	}

	cfg, err := config.NewLoader(configPath).Load(environment)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewStandardLogger("server")
	metrics := observability.NewPrometheusMetrics("agentmesh")
	tracer := observability.NoopTracer()
	if cfg.Observability.TracingEnabled {
		shutdownTracer, err := observability.NewOTLPTracerProvider(ctx, observability.TracerProviderConfig{
			ServiceName: "agentmesh-server",
			Endpoint:    cfg.Observability.TracingEndpoint,
			Insecure:    true,
		})
		if err != nil {
			logger.Warn("tracing disabled: failed to dial collector", map[string]interface{}{"error": err.Error()})
		} else {
			tracer = observability.NewTracer("agentmesh-server")
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracer(shutdownCtx)
			}()
		}
	}

	writeDB, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer writeDB.Close()
	writeDB.SetMaxOpenConns(orDefaultInt(cfg.Database.MaxOpenConns, 25))
	writeDB.SetMaxIdleConns(orDefaultInt(cfg.Database.MaxIdleConns, 5))
	if cfg.Database.ConnMaxLifetime > 0 {
		writeDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	readDB := writeDB
	if cfg.Database.ReadReplicaURL != "" {
		readDB, err = sqlx.Connect("postgres", cfg.Database.ReadReplicaURL)
		if err != nil {
			log.Fatalf("failed to connect to read replica: %v", err)
		}
		defer readDB.Close()
	}

	redisCache := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisCache.Close()

	lru, err := cache.NewLRUCache(orDefaultInt(cfg.Core.MaxCacheEntries, 10000))
	if err != nil {
		log.Fatalf("failed to build LRU cache: %v", err)
	}
	resolvedCache := cache.NewTieredCache(lru, redisCache)

	base := postgres.NewBaseRepository(writeDB, readDB, resolvedCache, logger, metrics, tracer)
	projects := postgres.NewProjectRepository(base)
	branches := postgres.NewBranchRepository(base)
	tasks := postgres.NewTaskRepository(base)
	subtasks := postgres.NewSubtaskRepository(base)
	dependencies := postgres.NewDependencyRepository(base)
	agents := postgres.NewAgentRepository(base)
	audit := postgres.NewAuditRepository(base)
	contextRepo := postgres.NewContextRepository(base)
	coordination := postgres.NewCoordinationRepository(base)

	parents := contextengine.NewEntityParentResolver(tasks, branches)
	engine := contextengine.New(contextRepo, resolvedCache, parents, logger, metrics, tracer, cfg.Core.CacheTTL())

	worker := contextengine.NewDelegationWorker(engine, cfg.Core.DelegationWorkerParallelism, 5*time.Second)
	go worker.Run(ctx)
	defer worker.Stop()

	sched := &scheduler.Scheduler{
		Tasks: tasks, Subtasks: subtasks, Dependencies: dependencies, Branches: branches,
		Engine: engine, Logger: logger, Tracer: tracer,
		LabelAgentMap: map[string]string{},
		PollRateLimit: rate.Limit(cfg.Core.PollRateLimitPerSecond),
		PollBurst:     cfg.Core.PollBurst,
	}

	coord := agentcoord.New(agents, branches, tasks, contextRepo, coordination, logger, tracer, metrics)
	workloadStream := agentcoord.NewWorkloadStreamServer()
	coord.Push = workloadStream

	grpcAddr := cfg.Server.GRPCAddr
	if grpcAddr == "" {
		grpcAddr = ":9090"
	}
	grpcListener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatalf("failed to bind grpc listener: %v", err)
	}
	grpcServer := grpc.NewServer()
	workloadStream.RegisterOn(grpcServer)
	go func() {
		logger.Info("grpc workload-push listening", map[string]interface{}{"addr": grpcAddr})
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Error("grpc server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	defer grpcServer.GracefulStop()

	validator := facade.NewValidator()
	f := facade.New(projects, branches, tasks, subtasks, dependencies, agents, audit,
		engine, sched, coord, resolvedCache, validator, logger, tracer, metrics)
	f.ToolCallTimeout = cfg.Core.ToolCallTimeout()
	f.NextTaskTimeout = cfg.Core.NextTaskTimeout()
	f.ReopenGrace = cfg.Core.ReopenGrace()

	server := api.NewServer(f, api.Config{Addr: cfg.Server.Addr, JWTSecret: cfg.Auth.JWTSecret}, logger)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("server stopped gracefully", nil)
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
