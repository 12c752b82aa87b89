package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"contractx/api/handler"
	"contractx/api/router"
	"contractx/job"
	"contractx/logic/aggregate"
	"contractx/logic/chat"
	"contractx/logic/ingestion/extract"
	"contractx/logic/ingestion/loaders"
	"contractx/logic/ingestion/pipeline"
	"contractx/logic/ingestion/transform"
	"contractx/logic/retrieval"
	"contractx/logic/retry"
	"contractx/service"
	"contractx/storage"
	"contractx/storage/es"
	"contractx/storage/memory"
	"contractx/storage/milvus"
	"contractx/storage/postgres"
	"contractx/vars"
)

func main() {
	cfg := vars.Load()
	setupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("配置校验失败")
	}
	ctx := context.Background()

	// 1. 初始化 LLM Model 和 embedder
	chatModel, err := chat.NewChatModel(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("chat model 初始化失败")
	}
	embedder, err := transform.NewEmbedder(ctx, cfg.OllamaPath, cfg.EmbedModel, cfg.LLMTimeout)
	if err != nil {
		logrus.WithError(err).Fatal("embedder 初始化失败")
	}

	// 模型调用都经过用量统计
	usage := chat.NewUsageTracker()
	tracked := usage.Wrap(chatModel)

	// 2. 初始化存储
	docs, graph := initStores(cfg)
	vectors := initVectorStore(ctx, cfg, embedder)

	// 3. 初始化 Service (业务层)
	policy := retry.Policy{MaxAttempts: cfg.RetryMaxAttempts, BaseDelay: cfg.RetryBaseDelay, MaxDelay: cfg.RetryMaxDelay}
	buffer := pipeline.NewBuffer()
	pool := pipeline.NewPool(extract.NewLLMExtractor(tracked), buffer, pipeline.Config{
		Concurrency: cfg.ExtractConcurrency,
		RPS:         cfg.ExtractRPS,
		Burst:       cfg.ExtractBurst,
		Retry:       policy,
	}, nil)
	aggregator := aggregate.NewAggregator(chat.NewSummarizer(tracked, cfg.SummaryMaxChars), policy, cfg.SummaryMaxChars)
	loader, err := loaders.NewPDFLoader(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("PDF loader 初始化失败")
	}
	ingestionSvc := service.NewIngestionService(docs, service.NewIndexer(vectors, graph, policy, nil), pool, aggregator, loader, nil).WithUsage(usage)

	engine := retrieval.NewEngine(embedder, vectors, graph, retrieval.Config{
		DefaultK: cfg.RetrievalK,
		MaxDepth: cfg.GraphMaxDepth,
		Retry:    policy,
	}, nil)
	retrievalSvc := service.NewRetrievalService(engine, chat.NewAnswerer(tracked), policy, nil)

	// 4. 启动定时任务
	c, err := job.StartCronJob(job.Config{
		SweepSpec: cfg.SweepSpec,
		BufferTTL: cfg.BufferTTL,
		InboxDir:  cfg.InboxDir,
		InboxSpec: cfg.InboxSpec,
	}, buffer, ingestionSvc)
	if err != nil {
		logrus.WithError(err).Fatal("定时任务注册失败")
	}

	// 5. 启动 Web Server
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	router.RegisterRoutes(r, handler.NewContractHandler(ingestionSvc, retrievalSvc, cfg.ModelInfo()))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logrus.WithField("addr", cfg.HTTPAddr).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("HTTP 服务异常退出")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("收到退出信号，开始关闭")

	<-c.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP 服务关闭失败")
	}
}

func setupLogger(cfg vars.Config) {
	if strings.EqualFold(cfg.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start),
		}).Info("request")
	}
}

func initStores(cfg vars.Config) (storage.DocumentStore, storage.GraphStore) {
	if cfg.StoreBackend == vars.BackendMemory {
		logrus.Warn("使用内存存储，重启后数据丢失")
		return memory.NewDocumentStore(), memory.NewGraphStore()
	}
	db, err := postgres.InitDB(cfg.DSN(), cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("PostgreSQL 初始化失败")
	}
	return postgres.NewDocumentRepo(db), postgres.NewGraphRepo(db)
}

func initVectorStore(ctx context.Context, cfg vars.Config, embedder embedding.Embedder) storage.VectorStore {
	switch cfg.VectorBackend {
	case vars.BackendMemory:
		return memory.NewVectorStore(embedder)
	case vars.BackendES:
		dim, err := transform.DetectDimension(ctx, embedder)
		if err != nil {
			logrus.WithError(err).Fatal("获取向量维度失败")
		}
		store, err := es.NewStore(ctx, []string{cfg.ESAddr}, cfg.ESIndex, embedder, dim)
		if err != nil {
			logrus.WithError(err).Fatal("ES 初始化失败")
		}
		return store
	default:
		cli, err := milvus.Connect(ctx, cfg.MilvusAddr)
		if err != nil {
			logrus.WithError(err).Fatal("Milvus 连接失败")
		}
		idx, err := milvus.NewChunkIndexer(ctx, cli, embedder, cfg.Collection)
		if err != nil {
			logrus.WithError(err).Fatal("Milvus 初始化失败")
		}
		return milvus.NewStore(cli, idx, cfg.Collection)
	}
}
