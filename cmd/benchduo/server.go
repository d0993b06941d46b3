package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/benchduo/api/handlers"
	"github.com/BaSui01/benchduo/batch"
	"github.com/BaSui01/benchduo/broadcast"
	"github.com/BaSui01/benchduo/config"
	"github.com/BaSui01/benchduo/connector/factory"
	"github.com/BaSui01/benchduo/duel"
	"github.com/BaSui01/benchduo/evaluate"
	"github.com/BaSui01/benchduo/internal/database"
	"github.com/BaSui01/benchduo/internal/metrics"
	"github.com/BaSui01/benchduo/internal/server"
	"github.com/BaSui01/benchduo/status"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 BenchDuo 的主服务器，持有全部长生命周期组件。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	pool        *database.PoolManager
	collector   *metrics.Collector
	hub         *broadcast.Hub
	queue       *duel.Queue
	scheduler   *batch.Scheduler
	httpManager *server.Manager

	// 后台工作协程的生命周期
	workerCancel context.CancelFunc

	rateLimiterCancel context.CancelFunc
}

// NewServer 装配全部组件。失败时返回错误而不是部分初始化的实例。
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	// 1. 数据库
	db, err := database.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	poolCfg := database.DefaultPoolConfig()
	if cfg.Database.MaxOpenConns > 0 {
		poolCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns > 0 {
		poolCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	}
	pool, err := database.NewPoolManager(db, poolCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init pool manager: %w", err)
	}
	s.pool = pool

	// 2. 指标
	if cfg.Server.MetricsEnabled {
		s.collector = metrics.NewCollector("benchduo", logger)
	}

	// 3. 领域服务
	connFactory := factory.New(cfg.Connector.Timeout, logger)
	statusSvc := status.NewService(db, connFactory, status.NewLogBuffer(), logger)
	s.hub = broadcast.NewHub(logger)

	engine := duel.NewEngine(db, connFactory, statusSvc, s.hub, s.collector, logger)
	s.queue = duel.NewQueue(engine, logger)
	s.scheduler = batch.NewScheduler(db, engine, s.collector, logger)
	evaluator := evaluate.NewEvaluator(db, connFactory, s.collector, logger)

	// 4. Handlers 与路由
	modelHandler := handlers.NewModelHandler(db, statusSvc, connFactory, cfg.Connector.DetectTimeout, logger)
	agentHandler := handlers.NewAgentHandler(db, statusSvc, logger)
	chatHandler := handlers.NewChatHandler(db, s.queue, engine, logger)
	batchHandler := handlers.NewBatchHandler(db, s.scheduler, logger)
	evaluateHandler := handlers.NewEvaluateHandler(db, evaluator, logger)

	healthHandler := handlers.NewHealthHandler(logger)
	healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("sqlite", pool.Ping))

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthHandler.HandleHealthz)
	mux.HandleFunc("GET /readyz", healthHandler.HandleReady)
	mux.HandleFunc("GET /version", healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("GET /api/models", modelHandler.HandleList)
	mux.HandleFunc("POST /api/models", modelHandler.HandleCreate)
	mux.HandleFunc("PUT /api/models/{id}", modelHandler.HandleUpdate)
	mux.HandleFunc("DELETE /api/models/{id}", modelHandler.HandleDelete)
	mux.HandleFunc("POST /api/models/probe", modelHandler.HandleProbe)
	mux.HandleFunc("POST /api/models/test", modelHandler.HandleDetect)
	mux.HandleFunc("POST /api/models/warm", modelHandler.HandleWarm)
	mux.HandleFunc("GET /api/v1/models/{id}/status", modelHandler.HandleStatus)
	mux.HandleFunc("POST /api/v1/models/{id}/reload", modelHandler.HandleReload)
	mux.HandleFunc("POST /api/v1/engine/check", modelHandler.HandleEngineCheck)

	mux.HandleFunc("GET /api/agents", agentHandler.HandleList)
	mux.HandleFunc("POST /api/agents", agentHandler.HandleCreate)
	mux.HandleFunc("PUT /api/agents/{id}", agentHandler.HandleUpdate)
	mux.HandleFunc("DELETE /api/agents/{id}", agentHandler.HandleDelete)
	mux.HandleFunc("GET /api/v1/agents/{id}/status", agentHandler.HandleStatus)

	mux.HandleFunc("POST /api/chat", chatHandler.HandleStart)
	mux.HandleFunc("GET /api/conversations/{id}", chatHandler.HandleGet)
	mux.Handle("GET /ws", s.hub)

	mux.HandleFunc("POST /api/batch_jobs", batchHandler.HandleCreate)
	mux.HandleFunc("GET /api/batch_jobs", batchHandler.HandleList)
	mux.HandleFunc("GET /api/batch_jobs/{id}", batchHandler.HandleGet)
	mux.HandleFunc("POST /api/batch_jobs/{id}/cancel", batchHandler.HandleCancel)

	mux.HandleFunc("POST /api/evaluate", evaluateHandler.HandleCreate)
	mux.HandleFunc("GET /api/evaluate/{id}", evaluateHandler.HandleGet)

	if cfg.Server.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// 5. 中间件链
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(logger),
		CORS(cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst, logger),
	}
	if s.collector != nil {
		middlewares = append(middlewares, MetricsMiddleware(s.collector))
	}
	handler := Chain(mux, middlewares...)

	// 6. HTTP 管理器
	serverConfig := server.Config{
		Addr:            fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(handler, serverConfig, logger)

	return s, nil
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动后台工作协程与 HTTP 服务器。
func (s *Server) Start() error {
	workerCtx, workerCancel := context.WithCancel(context.Background())
	s.workerCancel = workerCancel

	s.queue.Start(workerCtx)
	s.scheduler.Start(workerCtx)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("All servers started",
		zap.String("addr", s.httpManager.Addr()),
		zap.Bool("metrics_enabled", s.cfg.Server.MetricsEnabled),
	)
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务。先停 HTTP 入口，再排空工作队列。
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if err := s.httpManager.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	s.queue.Stop()
	s.scheduler.Stop()
	if s.workerCancel != nil {
		s.workerCancel()
	}

	if err := s.pool.Close(); err != nil {
		s.logger.Error("Database close error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
