package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"anxiease-alert/internal/config"
	"anxiease-alert/internal/consumer"
	"anxiease-alert/internal/database"
	"anxiease-alert/internal/dispatcher"
	"anxiease-alert/internal/evaluator"
	"anxiease-alert/internal/metrics"
	"anxiease-alert/internal/mqtt"
	"anxiease-alert/internal/ratelimit"
	rediscommon "anxiease-alert/internal/redis"
	"anxiease-alert/internal/repository"

	"go.uber.org/zap"
)

// AlertService 告警服务（整合各层）
type AlertService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *rediscommon.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger
	metrics     *metrics.Metrics

	// 各层组件
	cacheManager   *consumer.CacheManager
	stateManager   *consumer.StateManager
	streamConsumer *consumer.StreamConsumer
	alertRepo      *repository.AlertRepository
	baselineRepo   *repository.BaselineRepository
	deviceRepo     *repository.DeviceRepository
	limiter        *ratelimit.Limiter
	dispatcher     *dispatcher.Dispatcher
	pipeline       *evaluator.Pipeline
}

// NewAlertService 创建告警服务
func NewAlertService(cfg *config.Config, logger *zap.Logger) (*AlertService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	ctx := context.Background()
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT（失败不致命：推送与落库通道仍可用）
	mqttClient, err := mqtt.NewClient(&cfg.MQTT)
	if err != nil {
		logger.Warn("Failed to connect MQTT broker, alerts will not reach the companion topic",
			zap.Error(err),
		)
		mqttClient = nil
	}

	m := metrics.NewMetrics()

	// 4. 创建 Repository 层
	alertRepo := repository.NewAlertRepository(db, logger)
	baselineRepo := repository.NewBaselineRepository(db, logger)
	deviceRepo := repository.NewDeviceRepository(db, logger)

	// 5. 创建缓存与状态层
	cacheManager := consumer.NewCacheManager(cfg, redisClient, baselineRepo, logger)
	stateManager := consumer.NewStateManager(cfg, redisClient, logger)
	assignments := consumer.NewAssignmentCache(deviceRepo, time.Duration(cfg.Cache.AssignmentTTLSec)*time.Second)

	// 6. 限流器与分发器
	limiter := ratelimit.NewLimiter(cfg, redisClient, logger)
	pushSender := dispatcher.NewPushSender(&cfg.Push, logger)

	var mqttPublisher dispatcher.MQTTPublisher
	if mqttClient != nil {
		mqttPublisher = mqttClient
	}

	disp := dispatcher.NewDispatcher(
		cfg,
		pushSender,
		mqttPublisher,
		alertRepo,
		cacheManager,
		limiter,
		m,
		logger,
	)

	// 7. 评估管线
	pipeline := evaluator.NewPipeline(
		cfg,
		evaluator.NewThresholdMovementFilter(cfg),
		evaluator.NewWindowEvaluator(cfg),
		evaluator.NewClassifier(cfg),
		cacheManager,
		stateManager,
		limiter,
		disp,
		m,
		logger,
	)

	// 8. 遥测流消费者
	streamConsumer := consumer.NewStreamConsumer(cfg, redisClient, assignments, m, logger)

	return &AlertService{
		config:         cfg,
		db:             db,
		redisClient:    redisClient,
		mqttClient:     mqttClient,
		logger:         logger,
		metrics:        m,
		cacheManager:   cacheManager,
		stateManager:   stateManager,
		streamConsumer: streamConsumer,
		alertRepo:      alertRepo,
		baselineRepo:   baselineRepo,
		deviceRepo:     deviceRepo,
		limiter:        limiter,
		dispatcher:     disp,
		pipeline:       pipeline,
	}, nil
}

// Metrics 返回服务指标（/metrics 监听使用）
func (s *AlertService) Metrics() *metrics.Metrics {
	return s.metrics
}

// Start 启动服务（阻塞直到 ctx 取消）
func (s *AlertService) Start(ctx context.Context) error {
	s.logger.Info("Starting alert service",
		zap.String("stream", s.config.Stream.Telemetry),
		zap.String("consumer_group", s.config.Stream.ConsumerGroup),
	)

	s.dispatcher.Start(ctx)

	if err := s.streamConsumer.Start(ctx, s.pipeline); err != nil {
		return fmt.Errorf("failed to run stream consumer: %w", err)
	}

	s.dispatcher.Wait()
	return nil
}

// Stop 停止服务
func (s *AlertService) Stop() error {
	s.logger.Info("Stopping alert service")

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	return nil
}
