// cmd/insight-agent/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"insight-agent/internal/api"
	"insight-agent/internal/auth"
	"insight-agent/internal/cache"
	"insight-agent/internal/chart"
	"insight-agent/internal/common/config"
	"insight-agent/internal/common/database"
	"insight-agent/internal/common/logger"
	"insight-agent/internal/llm"
	"insight-agent/internal/metadata"
	"insight-agent/internal/pipeline"
	"insight-agent/internal/prompt"
	"insight-agent/internal/retrieval"
	"insight-agent/internal/warehouse"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting insight agent...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	ctx := context.Background()

	// --- Init warehouse connection with retry ---
	var wh *database.WarehouseClient
	err = retryWithBackoff(func() error {
		var err error
		wh, err = database.NewWarehouse(cfg.Warehouse)
		if err != nil {
			return err
		}
		return wh.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Warehouse connection")

	if err != nil {
		zapLog.Fatal("warehouse failed after retries", zap.Error(err))
	}
	defer wh.Close()
	zapLog.Info("Warehouse connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Vector)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Cache)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Retrieval layer ---
	vectorStore := retrieval.NewElasticStore(esClient.Client, cfg.Vector.Index)
	graph := retrieval.NewGraph()
	if err := graph.Load(cfg.Retrieval.GraphPath); err != nil {
		zapLog.Warn("graph snapshot load failed, continuing without graph fallback",
			zap.Error(err),
			zap.String("path", cfg.Retrieval.GraphPath),
		)
	}
	retriever := retrieval.NewRetriever(vectorStore, graph, cfg.Retrieval, log)

	// --- Pipeline ---
	answerCache := cache.New(redisClient.GetClient(), cfg.Cache, cfg.GenAI.Model, log)
	svc := pipeline.NewService(
		retriever,
		prompt.NewAssembler(cfg.Prompt.MaxContextChars),
		llm.NewClient(cfg.GenAI, log),
		warehouse.NewExecutor(wh.GetDB(), cfg.Warehouse, log),
		chart.NewAdvisor(cfg.Chart.CategoryCardinality),
		answerCache,
		cfg.Retrieval,
		log,
	)

	refresher := metadata.NewRefresher(vectorStore, graph, answerCache, cfg.Retrieval, log)

	users, err := auth.LoadUsers(cfg.Auth.UsersFile)
	if err != nil {
		zapLog.Fatal("users file load failed", zap.Error(err))
	}
	if len(users) == 0 {
		zapLog.Warn("no users configured, authentication disabled")
	}

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: api.NewServer(svc, refresher, users, log),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// pprof stays on the default mux, separate from the API port.
	go func() {
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			zapLog.Error("pprof server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Shutdown complete")
}
