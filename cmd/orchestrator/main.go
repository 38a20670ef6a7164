package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"evalhub/internal/common/cache"
	"evalhub/internal/common/mq"
	"evalhub/internal/common/storage"
	"evalhub/internal/eval/broker"
	"evalhub/internal/eval/consumer"
	"evalhub/internal/eval/controller"
	"evalhub/internal/eval/dispatch"
	"evalhub/internal/eval/lifecycle"
	"evalhub/internal/eval/queue"
	"evalhub/internal/eval/storageapi"
	"evalhub/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/orchestrator.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     appCfg.Redis.Addr,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
	})
	defer func() {
		_ = redisClient.Close()
	}()
	redisCache, err := cache.NewRedisCacheWithClient(redisClient)
	if err != nil {
		logger.Error(context.Background(), "init redis cache failed", zap.Error(err))
		return
	}
	if err := redisCache.Ping(context.Background()); err != nil {
		logger.Error(context.Background(), "ping redis failed", zap.Error(err))
		return
	}

	storeClient := storageapi.New(appCfg.StorageAPI.BaseURL, appCfg.StorageAPI.Timeout)
	machine := lifecycle.NewStateMachineFromFile(appCfg.Lifecycle.TransitionsPath)
	updater := lifecycle.NewStatusUpdater(storeClient, machine)

	taskBroker, err := broker.NewRedisBroker(redisClient, appCfg.Broker.ResultTTL)
	if err != nil {
		logger.Error(context.Background(), "init broker failed", zap.Error(err))
		return
	}
	mapper := dispatch.NewTaskMapper(redisCache, appCfg.Lifecycle.MappingTTL)

	var objStorage storage.ObjectStorage
	if appCfg.Source.MinIO.Endpoint != "" {
		objStorage, err = storage.NewMinIOStorage(appCfg.Source.MinIO)
		if err != nil {
			logger.Error(context.Background(), "init minio failed", zap.Error(err))
			return
		}
	}

	dispatcher, err := dispatch.NewDispatcher(dispatch.Config{
		Broker:          taskBroker,
		Mapper:          mapper,
		Storage:         objStorage,
		SourceBucket:    appCfg.Source.Bucket,
		InlineCodeLimit: appCfg.Broker.InlineCodeLimit,
	})
	if err != nil {
		logger.Error(context.Background(), "init dispatcher failed", zap.Error(err))
		return
	}
	canceller := dispatch.NewCancellationController(mapper, taskBroker)

	var mirror *consumer.StatusMirror
	if len(appCfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(mq.KafkaConfig{
			Brokers:  appCfg.Kafka.Brokers,
			ClientID: appCfg.Kafka.ClientID,
		})
		if err != nil {
			logger.Error(context.Background(), "init kafka producer failed", zap.Error(err))
			return
		}
		defer func() {
			_ = producer.Close()
		}()
		mirror = consumer.NewStatusMirror(producer, appCfg.Kafka.FinalTopic)
	}

	logBatcher := consumer.NewLogBatcher(storeClient, redisCache, consumer.LogBatcherConfig{
		BatchSize:  appCfg.LogBatch.BatchSize,
		FlushDelay: appCfg.LogBatch.FlushDelay,
		TailTTL:    appCfg.LogBatch.TailTTL,
	})
	leases := consumer.NewLeaseStore(redisCache, appCfg.Lifecycle.LeaseBuffer)

	worker, err := consumer.NewWorker(consumer.Config{
		Cache:   redisCache,
		Creator: storeClient,
		Updater: updater,
		Logs:    logBatcher,
		Leases:  leases,
		Mirror:  mirror,
	})
	if err != nil {
		logger.Error(context.Background(), "init consistency worker failed", zap.Error(err))
		return
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	workerErr := make(chan error, 1)
	go func() {
		workerErr <- worker.Run(workerCtx)
	}()

	queueSvc := queue.New()
	httpServer := buildHTTPServer(appCfg.Server, dispatcher, canceller, queueSvc, redisCache)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "orchestrator http server started",
			zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case err := <-workerErr:
		if err != nil {
			logger.Error(context.Background(), "consistency worker stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(cfg ServerConfig, dispatcher *dispatch.Dispatcher, canceller *dispatch.CancellationController, queueSvc *queue.Service, bus cache.Cache) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	api := router.Group("/api/v1")
	evalController := controller.NewEvalController(dispatcher, canceller, queueSvc, bus)
	api.POST("/evaluations", evalController.Submit)
	api.POST("/evaluations/:id/cancel", evalController.Cancel)
	api.GET("/evaluations/:id/task", evalController.TaskInfo)
	api.GET("/queue/status", evalController.QueueStatus)
	api.POST("/queue/clear", evalController.QueueClear)

	return &http.Server{
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info(c.Request.Context(), "http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
