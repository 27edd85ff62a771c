package consumer

import (
	"context"
	"fmt"
	"time"

	"anxiease-alert/internal/config"
	"anxiease-alert/internal/metrics"
	"anxiease-alert/internal/models"
	rediscommon "anxiease-alert/internal/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// SampleProcessor 样本处理器接口（由 evaluator 实现）
type SampleProcessor interface {
	// Process 处理单条遥测样本（所有可恢复错误由实现内部记录并吞掉，
	// 返回 error 仅表示共享存储不可用等需要上层退避的故障）
	Process(ctx context.Context, sample *models.TelemetrySample) error
}

// StreamConsumer 遥测流消费者（Redis Streams 消费者组）
type StreamConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	assignments *AssignmentCache
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewStreamConsumer 创建遥测流消费者
func NewStreamConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	assignments *AssignmentCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		assignments: assignments,
		metrics:     m,
		logger:      logger,
	}
}

// Start 启动消费循环（阻塞直到 ctx 取消）
func (c *StreamConsumer) Start(ctx context.Context, processor SampleProcessor) error {
	stream := c.config.Stream.Telemetry
	group := c.config.Stream.ConsumerGroup

	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, stream, group); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", stream),
		zap.String("consumer_group", group),
		zap.String("consumer_name", c.config.Stream.ConsumerName),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stream consumer stopped")
			return nil
		default:
			if err := c.consumeOnce(ctx, processor); err != nil {
				c.logger.Error("Failed to consume telemetry stream",
					zap.Error(err),
					zap.Duration("backoff", backoffDuration),
				)

				// 指数退避：等待后重试
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoffDuration):
					backoffDuration *= 2
					if backoffDuration > maxBackoff {
						backoffDuration = maxBackoff
					}
				}
			} else {
				backoffDuration = time.Second
			}
		}
	}
}

// consumeOnce 读取并处理一批消息
func (c *StreamConsumer) consumeOnce(ctx context.Context, processor SampleProcessor) error {
	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		c.config.Stream.Telemetry,
		c.config.Stream.ConsumerGroup,
		c.config.Stream.ConsumerName,
		c.config.Stream.BatchSize,
	)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, msg := range messages {
		if err := c.processMessage(ctx, processor, &msg); err != nil {
			c.logger.Error("Failed to process telemetry message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			// 继续处理下一条消息，不中断
		}

		if err := rediscommon.AckMessage(ctx, c.redisClient, c.config.Stream.Telemetry, c.config.Stream.ConsumerGroup, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// processMessage 处理单条遥测消息
func (c *StreamConsumer) processMessage(ctx context.Context, processor SampleProcessor, msg *rediscommon.StreamMessage) error {
	sample, err := models.ParseTelemetrySample(msg.Values)
	if err != nil {
		// 格式错误的样本：告警日志后丢弃，不影响后续样本
		c.metrics.SamplesTotal.WithLabelValues("malformed").Inc()
		c.logger.Warn("Dropping malformed telemetry sample",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return nil
	}

	// 过期样本：丢弃
	staleCutoff := time.Now().Add(-time.Duration(c.config.Detection.StaleSampleSeconds) * time.Second)
	if sample.Time().Before(staleCutoff) {
		c.metrics.SamplesTotal.WithLabelValues("stale").Inc()
		c.logger.Debug("Dropping stale telemetry sample",
			zap.String("device_id", sample.DeviceID),
			zap.Int64("timestamp", sample.Timestamp),
		)
		return nil
	}

	// 解析设备归属
	userID, err := c.assignments.ResolveUser(ctx, sample.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to resolve device assignment: %w", err)
	}
	if userID == "" {
		c.metrics.SamplesTotal.WithLabelValues("unassigned").Inc()
		c.logger.Debug("Dropping sample from unassigned device",
			zap.String("device_id", sample.DeviceID),
		)
		return nil
	}
	sample.UserID = userID

	return processor.Process(ctx, sample)
}
