// Command collectorctl is the core's process entrypoint: it loads
// configuration once, constructs every component over it, and runs the
// orchestrator worker pool and the illustrative HTTP facade side by side
// until interrupted. No component here reads ambient global state —
// every dependency is built in this file and passed down through
// constructors (internal/config's own package doc, spec.md §9's "no
// global configuration singletons").
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jordigilh/realestate-collector/internal/config"
	"github.com/jordigilh/realestate-collector/internal/database"
	"github.com/jordigilh/realestate-collector/pkg/cascade"
	"github.com/jordigilh/realestate-collector/pkg/changeledger"
	"github.com/jordigilh/realestate-collector/pkg/collector"
	"github.com/jordigilh/realestate-collector/pkg/coreapi"
	"github.com/jordigilh/realestate-collector/pkg/coreapi/httpfacade"
	"github.com/jordigilh/realestate-collector/pkg/dedupe"
	"github.com/jordigilh/realestate-collector/pkg/entitystore"
	"github.com/jordigilh/realestate-collector/pkg/llm"
	"github.com/jordigilh/realestate-collector/pkg/models"
	"github.com/jordigilh/realestate-collector/pkg/orchestrator"
	"github.com/jordigilh/realestate-collector/pkg/ratelimit"
	"github.com/jordigilh/realestate-collector/pkg/review"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the core's YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "collectorctl:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := buildLogrus(cfg.Logging)
	zapLog := buildZap(cfg.Logging)
	defer func() { _ = zapLog.Sync() }()

	dbConfig := database.DefaultConfig()
	dbConfig.Host = cfg.Database.Host
	dbConfig.Port = cfg.Database.Port
	dbConfig.User = cfg.Database.User
	dbConfig.Password = cfg.Database.Password
	dbConfig.Database = cfg.Database.Database
	dbConfig.SSLMode = cfg.Database.SSLMode

	sqlxDB, err := database.OpenSQLX(dbConfig)
	if err != nil {
		return fmt.Errorf("open sqlx connection: %w", err)
	}
	defer func() { _ = sqlxDB.Close() }()

	if err := migrate(sqlxDB.DB); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	pgPool, err := database.Connect(dbConfig, log)
	if err != nil {
		return fmt.Errorf("open pgx pool: %w", err)
	}
	defer pgPool.Close()

	entities := entitystore.New(sqlxDB, zapLog)
	changes := changeledger.New(sqlxDB, zapLog)
	jobStore := orchestrator.NewJobStore(pgPool)

	cascader := cascade.New(jobStore, entities, entities, log)
	reviewEngine := review.New(changes, entities, entities, jobStore, cascader, log)

	llmClient := buildLLMClient(cfg.LLM, log)
	detector := dedupe.NewDetector(entities.FindByFingerprint)
	policy := autoApprovePolicy(cfg.Review)

	exec := collector.New(llmClient, detector, entities, changes, reviewEngine, cascader, policy, log)

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.WorkerCount = cfg.Orchestrator.WorkerPoolSize
	orchCfg.PollInterval = cfg.Orchestrator.QueuePollInterval
	orchCfg.JobDeadline = cfg.Orchestrator.JobDeadline
	orchCfg.BackoffBase = cfg.Orchestrator.RetryBase
	orchCfg.BackoffCap = cfg.Orchestrator.RetryCap

	orch := orchestrator.New(pgPool, exec, orchCfg, log)
	facade := coreapi.New(orch, changes, reviewEngine, entities, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Start(ctx)
	})

	server := &http.Server{
		Addr:    ":" + cfg.Server.ListenPort,
		Handler: httpfacade.NewRouter(facade),
	}
	g.Go(func() error {
		log.WithField("addr", server.Addr).Info("command surface listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// migrate runs the embedded goose migrations over the sqlx connection's
// underlying *sql.DB (internal/database.Migrate drives schema changes
// through database/sql; the pgxpool above is reserved for request
// traffic, per internal/database's own package doc).
func migrate(db *sql.DB) error {
	return database.Migrate(db)
}

func buildLogrus(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	}
	return log
}

func buildZap(cfg config.LoggingConfig) *zap.Logger {
	var zapLog *zap.Logger
	var err error
	if cfg.Format == "json" {
		zapLog, err = zap.NewProduction()
	} else {
		zapLog, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return zapLog
}

// buildLLMClient builds the circuit-broken Anthropic client and wraps it
// in the process-wide concurrency limiter (spec.md §5, §6.4
// llm_concurrency): REDIS_ADDR selects the horizontally-scaled
// pkg/ratelimit.Redis bucket shared across orchestrator processes;
// otherwise a local pkg/ratelimit.Semaphore bounds this process alone.
func buildLLMClient(cfg config.LLMConfig, log *logrus.Logger) llm.Client {
	client := llm.NewClient(llm.Config{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		RetryCount:  cfg.RetryCount,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: addr})
		limiter := ratelimit.NewRedis(redisClient, "llm_concurrency", concurrency, 2*time.Minute)
		log.WithField("addr", addr).Info("using Redis-backed LLM concurrency limiter")
		return llm.WithLimiter(client, limiter)
	}

	return llm.WithLimiter(client, ratelimit.NewSemaphore(concurrency))
}

// autoApprovePolicy builds the collector's auto-approval policy from
// config, overriding collector.DefaultPolicy's entity-type allowlist when
// the operator has configured one (spec.md §6.4
// auto_approve_entity_types).
func autoApprovePolicy(cfg config.ReviewConfig) collector.Policy {
	policy := collector.DefaultPolicy()
	policy.MinConfidence = cfg.AutoApproveMinConfidence
	if len(cfg.AutoApproveEntityTypes) > 0 {
		entityTypes := make(map[models.EntityType]bool, len(cfg.AutoApproveEntityTypes))
		for _, et := range cfg.AutoApproveEntityTypes {
			entityTypes[models.EntityType(et)] = true
		}
		policy.EntityTypes = entityTypes
	}
	return policy
}
